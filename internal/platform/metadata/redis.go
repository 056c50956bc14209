package metadata

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// RedisStore 把元数据保存为Redis字符串键，供Redis存储后端使用
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore 创建 RedisStore
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) GetValue(ctx context.Context, key string) (string, error) {
	val, err := s.rdb.Get(ctx, RedisPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return val, err
}

func (s *RedisStore) SetValue(ctx context.Context, key, value string) error {
	return s.rdb.Set(ctx, RedisPrefix+key, value, 0).Err()
}
