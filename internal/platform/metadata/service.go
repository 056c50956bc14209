package metadata

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store 是元数据键值存储。不存在的键返回空字符串。
type Store interface {
	GetValue(ctx context.Context, key string) (string, error)
	SetValue(ctx context.Context, key, value string) error
}

// GormStore 把元数据保存在关系数据库的 metadata 表中
type GormStore struct {
	db *gorm.DB
}

// NewGormStore 创建 GormStore，调用前应先执行 PrimeDB
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// GetValue retrieves a value for a given key from the metadata table.
func (s *GormStore) GetValue(ctx context.Context, key string) (string, error) {
	var meta Metadata
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&meta).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return meta.Value, nil
}

// SetValue creates or updates a value for a given key.
func (s *GormStore) SetValue(ctx context.Context, key, value string) error {
	meta := Metadata{
		Key:   key,
		Value: value,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&meta).Error
}
