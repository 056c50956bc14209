package user

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormRegistry 是基于关系数据库（SQLite或PostgreSQL）的 Registry 实现
type GormRegistry struct {
	db *gorm.DB
}

// NewGormRegistry 迁移user表并返回仓库
func NewGormRegistry(db *gorm.DB) (*GormRegistry, error) {
	if err := db.AutoMigrate(&User{}); err != nil {
		return nil, fmt.Errorf("无法迁移user表: %w", err)
	}
	return &GormRegistry{db: db}, nil
}

func (r *GormRegistry) EnsureUser(ctx context.Context, id int64, displayName string) (User, error) {
	// ON CONFLICT DO NOTHING 让并发的首次创建保持幂等
	newUser := NewUser(id, displayName)
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&newUser).Error
	if err != nil {
		return User{}, classify(fmt.Errorf("无法创建用户 %d: %w", id, err))
	}
	return r.Get(ctx, id)
}

func (r *GormRegistry) Rename(ctx context.Context, id int64, displayName string) error {
	u, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if u.DisplayName == displayName {
		return nil
	}
	err = r.db.WithContext(ctx).Model(&User{}).
		Where("user_id = ?", id).
		Update("display_name", displayName).Error
	if err != nil {
		return classify(fmt.Errorf("无法更新用户 %d 的名字: %w", id, err))
	}
	return nil
}

func (r *GormRegistry) Get(ctx context.Context, id int64) (User, error) {
	var u User
	err := r.db.WithContext(ctx).Where("user_id = ?", id).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return User{}, notFound(id)
		}
		return User{}, classify(fmt.Errorf("无法读取用户 %d: %w", id, err))
	}
	return u, nil
}

func (r *GormRegistry) ListAll(ctx context.Context) ([]User, error) {
	var users []User
	if err := r.db.WithContext(ctx).Order("id asc").Find(&users).Error; err != nil {
		return nil, classify(fmt.Errorf("无法读取用户列表: %w", err))
	}
	return users, nil
}

func (r *GormRegistry) Update(ctx context.Context, ids []int64, fn MutateFunc) error {
	if err := checkDistinct(ids); err != nil {
		return err
	}
	return r.transact(ctx, fn, func(tx *gorm.DB) ([]*User, error) {
		users := make([]*User, len(ids))
		for i, id := range ids {
			var u User
			// 行锁在PostgreSQL上生效；SQLite本身串行化写事务，会忽略该子句
			err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("user_id = ?", id).First(&u).Error
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return nil, notFound(id)
				}
				return nil, err
			}
			users[i] = &u
		}
		return users, nil
	})
}

func (r *GormRegistry) UpdateAll(ctx context.Context, fn MutateFunc) error {
	return r.transact(ctx, fn, func(tx *gorm.DB) ([]*User, error) {
		var rows []User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Order("id asc").Find(&rows).Error; err != nil {
			return nil, err
		}
		users := make([]*User, len(rows))
		for i := range rows {
			users[i] = &rows[i]
		}
		return users, nil
	})
}

// transact 在一个事务内完成 读取 -> fn -> 保存
func (r *GormRegistry) transact(ctx context.Context, fn MutateFunc, load func(tx *gorm.DB) ([]*User, error)) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		users, err := load(tx)
		if err != nil {
			return err
		}
		if err := fn(users); err != nil {
			return err
		}
		for _, u := range users {
			if err := tx.Save(u).Error; err != nil {
				return fmt.Errorf("无法保存用户 %d: %w", u.UserID, err)
			}
		}
		return nil
	})
	if errors.Is(err, ErrSkipCommit) {
		return nil
	}
	return classify(err)
}

// classify 把驱动层的锁竞争与序列化失败统一为 ErrConflict
func classify(err error) error {
	if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) {
		return err
	}
	msg := err.Error()
	for _, marker := range conflictMarkers {
		if strings.Contains(msg, marker) {
			return fmt.Errorf("%w: %v", ErrConflict, err)
		}
	}
	return err
}

var conflictMarkers = []string{
	"database is locked", // SQLITE_BUSY
	"database table is locked",
	"SQLSTATE 40001", // serialization_failure
	"SQLSTATE 40P01", // deadlock_detected
	"could not serialize access",
}
