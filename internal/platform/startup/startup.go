package startup

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/SlpAus/group-reputation-backend/internal/platform/config"
	"github.com/SlpAus/group-reputation-backend/internal/platform/database"
	"github.com/SlpAus/group-reputation-backend/internal/platform/health"
	"github.com/SlpAus/group-reputation-backend/internal/platform/metadata"
	"github.com/SlpAus/group-reputation-backend/internal/user"
)

// Storage 聚合了所选存储后端提供的组件
type Storage struct {
	Registry user.Registry
	Meta     metadata.Store
	Probe    health.Probe
}

// OnClose 登记停机时需要关闭的资源
type OnClose func(name string, fn func() error)

// InitializeStorage 是应用启动时执行的存储初始化总入口：
// 连接配置选定的后端，迁移表结构，并返回注册表、元数据存储和健康探针。
func InitializeStorage(ctx context.Context, cfg config.StorageConfig, log *slog.Logger, onClose OnClose) (*Storage, error) {
	log.Info("开始初始化存储...", "backend", cfg.Backend)

	switch cfg.Backend {
	case config.BackendRedis:
		rdb, err := database.OpenRedis(ctx, cfg.Redis, log)
		if err != nil {
			return nil, err
		}
		onClose("redis", rdb.Close)
		return &Storage{
			Registry: user.NewRedisRegistry(rdb),
			Meta:     metadata.NewRedisStore(rdb),
			Probe:    health.RedisProbe{RDB: rdb},
		}, nil

	case config.BackendSQL:
		db, err := database.OpenDB(cfg.SQL, log)
		if err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("无法获取数据库连接池: %w", err)
		}
		onClose("database", sqlDB.Close)

		registry, err := user.NewGormRegistry(db)
		if err != nil {
			return nil, err
		}
		if err := metadata.PrimeDB(db, log); err != nil {
			return nil, err
		}
		log.Info("存储初始化完成。", "driver", cfg.SQL.Driver)
		return &Storage{
			Registry: registry,
			Meta:     metadata.NewGormStore(db),
			Probe:    health.SQLProbe{DB: db},
		}, nil

	default:
		return nil, fmt.Errorf("不支持的存储后端: %q", cfg.Backend)
	}
}
