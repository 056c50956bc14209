package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/SlpAus/group-reputation-backend/internal/platform/config"
	"github.com/redis/go-redis/v9"
)

const redisPingTimeout = 2 * time.Second

// OpenRedis 创建Redis客户端，并用Ping确认连接可用
func OpenRedis(ctx context.Context, cfg config.RedisConfig, log *slog.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("无法连接到Redis %s: %w", cfg.Address, err)
	}

	log.Info("Redis 连接成功", "address", cfg.Address, "db", cfg.DB)
	return rdb, nil
}
