package user

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound 表示用户ID不存在，调用方应先 EnsureUser
	ErrNotFound = errors.New("user not found")

	// ErrConflict 表示提交时检测到并发修改，整个读-改-写可以重试
	ErrConflict = errors.New("concurrent update conflict")

	// ErrSkipCommit 由 Update 的回调返回，表示放弃本次修改。
	// Update 会丢弃所有变更并返回 nil。
	ErrSkipCommit = errors.New("skip commit")

	// ErrDuplicateID 表示 Update 收到了重复的用户ID
	ErrDuplicateID = errors.New("duplicate user id in update")
)

// MutateFunc 修改传入的记录；返回 nil 时所有记录一起提交。
type MutateFunc func(users []*User) error

// Registry 是用户记录的存储抽象。
// 实现必须保证 Update 与 UpdateAll 对涉及的记录是原子的。
type Registry interface {
	// EnsureUser 返回已有记录（不做任何修改），或用默认值创建新记录
	EnsureUser(ctx context.Context, id int64, displayName string) (User, error)
	// Rename 在名字变化时更新显示名
	Rename(ctx context.Context, id int64, displayName string) error
	Get(ctx context.Context, id int64) (User, error)
	// ListAll 按注册顺序返回所有记录
	ListAll(ctx context.Context) ([]User, error)
	// Update 读取 ids 对应的记录（顺序与 ids 一致），交给 fn 修改后一并提交
	Update(ctx context.Context, ids []int64, fn MutateFunc) error
	// UpdateAll 对全部记录执行同样的读-改-写，记录按注册顺序传入
	UpdateAll(ctx context.Context, fn MutateFunc) error
}

// Maintain 确保用户存在，并在显示名变化时同步新名字
func Maintain(ctx context.Context, r Registry, id int64, displayName string) (User, error) {
	u, err := r.EnsureUser(ctx, id, displayName)
	if err != nil {
		return User{}, err
	}
	if displayName != "" && u.DisplayName != displayName {
		if err := r.Rename(ctx, id, displayName); err != nil {
			return User{}, err
		}
		u.DisplayName = displayName
	}
	return u, nil
}

func checkDistinct(ids []int64) error {
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			return fmt.Errorf("%w: %d", ErrDuplicateID, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

func notFound(id int64) error {
	return fmt.Errorf("%w: %d", ErrNotFound, id)
}
