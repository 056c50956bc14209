package user

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// --- Redis 键名常量 ---

const (
	// recordKeyPrefix 是单个用户记录的键前缀，值为 User 的JSON序列化字符串
	// Key: user:record:<id>
	recordKeyPrefix = "user:record:"

	// IndexKey 是一个 Sorted Set，记录所有已注册的用户
	// Score: 注册序号 Seq
	// Member: 用户ID
	IndexKey = "user:index"

	// SeqKey 是注册序号计数器
	SeqKey = "user:seq"
)

func recordKey(id int64) string {
	return recordKeyPrefix + strconv.FormatInt(id, 10)
}

// RedisRegistry 把每个用户保存为独立的键，通过 WATCH/MULTI 实现乐观并发控制。
// 只有涉及的记录会被监视，不同用户之间的投票不会互相冲突。
type RedisRegistry struct {
	rdb *redis.Client
	now func() time.Time
}

// NewRedisRegistry 返回基于给定客户端的仓库
func NewRedisRegistry(rdb *redis.Client) *RedisRegistry {
	return &RedisRegistry{rdb: rdb, now: time.Now}
}

func (r *RedisRegistry) EnsureUser(ctx context.Context, id int64, displayName string) (User, error) {
	u, err := r.Get(ctx, id)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return User{}, err
	}

	seq, err := r.rdb.Incr(ctx, SeqKey).Result()
	if err != nil {
		return User{}, fmt.Errorf("无法分配注册序号: %w", err)
	}
	newUser := NewUser(id, displayName)
	newUser.Seq = uint(seq)
	newUser.CreatedAt = r.now()
	newUser.UpdatedAt = newUser.CreatedAt
	payload, err := json.Marshal(newUser)
	if err != nil {
		return User{}, err
	}

	key := recordKey(id)
	err = r.rdb.Watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if exists > 0 {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			pipe.ZAdd(ctx, IndexKey, redis.Z{Score: float64(seq), Member: id})
			return nil
		})
		return err
	}, key)
	// 并发创建失败时由另一方写入了记录，重新读取即可
	if err != nil && !errors.Is(err, redis.TxFailedErr) {
		return User{}, fmt.Errorf("无法创建用户 %d: %w", id, err)
	}
	return r.Get(ctx, id)
}

func (r *RedisRegistry) Rename(ctx context.Context, id int64, displayName string) error {
	return r.Update(ctx, []int64{id}, func(users []*User) error {
		if users[0].DisplayName == displayName {
			return ErrSkipCommit
		}
		users[0].DisplayName = displayName
		return nil
	})
}

func (r *RedisRegistry) Get(ctx context.Context, id int64) (User, error) {
	raw, err := r.rdb.Get(ctx, recordKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return User{}, notFound(id)
	}
	if err != nil {
		return User{}, fmt.Errorf("无法从Redis读取用户 %d: %w", id, err)
	}
	var u User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return User{}, fmt.Errorf("无法解析用户 %d 的数据: %w", id, err)
	}
	return u, nil
}

func (r *RedisRegistry) ListAll(ctx context.Context) ([]User, error) {
	ids, err := r.rdb.ZRange(ctx, IndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("无法从Redis读取用户索引: %w", err)
	}
	if len(ids) == 0 {
		return []User{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = recordKeyPrefix + id
	}
	values, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("无法从Redis批量读取用户: %w", err)
	}
	users, err := decodeRecords(keys, values)
	if err != nil {
		return nil, err
	}
	out := make([]User, len(users))
	for i, u := range users {
		out[i] = *u
	}
	return out, nil
}

func (r *RedisRegistry) Update(ctx context.Context, ids []int64, fn MutateFunc) error {
	if err := checkDistinct(ids); err != nil {
		return err
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = recordKey(id)
	}
	err := r.rdb.Watch(ctx, func(tx *redis.Tx) error {
		values, err := tx.MGet(ctx, keys...).Result()
		if err != nil {
			return fmt.Errorf("无法从Redis读取用户: %w", err)
		}
		// 顺序必须与 ids 一致，不能按 Seq 重排
		users := make([]*User, len(values))
		for i, v := range values {
			if v == nil {
				return notFound(ids[i])
			}
			u, err := decodeRecord(keys[i], v)
			if err != nil {
				return err
			}
			users[i] = u
		}
		return r.commit(ctx, tx, users, fn)
	}, keys...)
	return r.translate(err)
}

func (r *RedisRegistry) UpdateAll(ctx context.Context, fn MutateFunc) error {
	err := r.rdb.Watch(ctx, func(tx *redis.Tx) error {
		ids, err := tx.ZRange(ctx, IndexKey, 0, -1).Result()
		if err != nil {
			return fmt.Errorf("无法从Redis读取用户索引: %w", err)
		}
		if len(ids) == 0 {
			return fn(nil)
		}
		keys := make([]string, len(ids))
		for i, id := range ids {
			keys[i] = recordKeyPrefix + id
		}
		// 索引已被监视，这里补上所有记录键
		if err := tx.Watch(ctx, keys...).Err(); err != nil {
			return err
		}
		values, err := tx.MGet(ctx, keys...).Result()
		if err != nil {
			return fmt.Errorf("无法从Redis批量读取用户: %w", err)
		}
		users, err := decodeRecords(keys, values)
		if err != nil {
			return err
		}
		return r.commit(ctx, tx, users, fn)
	}, IndexKey)
	return r.translate(err)
}

func (r *RedisRegistry) commit(ctx context.Context, tx *redis.Tx, users []*User, fn MutateFunc) error {
	if err := fn(users); err != nil {
		return err
	}
	now := r.now()
	_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, u := range users {
			u.UpdatedAt = now
			payload, err := json.Marshal(u)
			if err != nil {
				return err
			}
			pipe.Set(ctx, recordKey(u.UserID), payload, 0)
		}
		return nil
	})
	return err
}

func (r *RedisRegistry) translate(err error) error {
	switch {
	case err == nil, errors.Is(err, ErrSkipCommit):
		return nil
	case errors.Is(err, redis.TxFailedErr):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	default:
		return err
	}
}

// decodeRecords 解析 MGET 的结果，缺失的记录被跳过，结果按 Seq 排序
func decodeRecords(keys []string, values []interface{}) ([]*User, error) {
	users := make([]*User, 0, len(values))
	for i, v := range values {
		if v == nil {
			continue
		}
		u, err := decodeRecord(keys[i], v)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	sort.SliceStable(users, func(i, j int) bool { return users[i].Seq < users[j].Seq })
	return users, nil
}

func decodeRecord(key string, v interface{}) (*User, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("键 %s 的数据类型异常", key)
	}
	var u User
	if err := json.Unmarshal([]byte(s), &u); err != nil {
		return nil, fmt.Errorf("无法解析键 %s: %w", key, err)
	}
	return &u, nil
}
