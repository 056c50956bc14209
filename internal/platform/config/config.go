package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvFile 是可选的环境变量文件，适合存放 ADMIN_TOKEN 等不进入配置文件的密钥
const EnvFile = ".env"

// Config 结构体定义了应用程序的所有配置项
// 它与 config.yaml 文件的结构完全对应
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Scoring  ScoringConfig  `mapstructure:"scoring"`
	Admin    AdminConfig    `mapstructure:"admin"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig 定义了服务器相关的配置
type ServerConfig struct {
	Mode    string     `mapstructure:"mode"`
	Address string     `mapstructure:"address"`
	Cors    CorsConfig `mapstructure:"cors"`
	// RateLimit 按客户端IP限流。调用方通常只有一个聊天机器人进程，
	// 所以它是整个群的总上限。
	RateLimit RateLimitConfig `mapstructure:"rateLimit"`
	// VoterRateLimit 按投票者ID限制 /api/votes
	VoterRateLimit RateLimitConfig `mapstructure:"voterRateLimit"`
}

// CorsConfig 定义了CORS相关的配置
type CorsConfig struct {
	AllowedOrigins []string `mapstructure:"allowedOrigins"`
}

// RateLimitConfig 定义了每个限流键的请求速率上限，RequestsPerSecond <= 0 表示不限流
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requestsPerSecond"`
	Burst             int     `mapstructure:"burst"`
}

// 存储后端
const (
	BackendSQL   = "sql"
	BackendRedis = "redis"
)

// StorageConfig 决定用户记录保存在哪里
type StorageConfig struct {
	Backend string      `mapstructure:"backend"`
	SQL     SQLConfig   `mapstructure:"sql"`
	Redis   RedisConfig `mapstructure:"redis"`
}

// SQLConfig 定义了关系数据库的配置，driver 为 sqlite 或 postgres
type SQLConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// RedisConfig 定义了Redis的配置
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// ScheduleConfig 定义了两个周期任务的触发时刻
type ScheduleConfig struct {
	Timezone       string `mapstructure:"timezone"`
	ReplenishAt    string `mapstructure:"replenishAt"`
	WeeklyCloseDay string `mapstructure:"weeklyCloseDay"`
	WeeklyCloseAt  string `mapstructure:"weeklyCloseAt"`
}

// ScoringConfig 定义了投票事务的冲突重试策略。
// MaxAttempts 是总尝试次数，包含第一次提交。
type ScoringConfig struct {
	MaxAttempts int `mapstructure:"maxAttempts"`
}

// AdminConfig 定义了管理接口使用的令牌，为空时管理接口关闭
type AdminConfig struct {
	Token string `mapstructure:"token"`
}

// LogConfig 定义了日志输出
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"maxSizeMB"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAgeDays"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.rateLimit.requestsPerSecond", 20)
	v.SetDefault("server.rateLimit.burst", 40)
	v.SetDefault("server.voterRateLimit.requestsPerSecond", 1)
	v.SetDefault("server.voterRateLimit.burst", 5)
	v.SetDefault("storage.backend", BackendSQL)
	v.SetDefault("storage.sql.driver", "sqlite")
	v.SetDefault("storage.sql.dsn", "reputation.db")
	v.SetDefault("storage.redis.address", "localhost:6379")
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("schedule.timezone", "UTC")
	v.SetDefault("schedule.replenishAt", "05:00")
	v.SetDefault("schedule.weeklyCloseDay", "sunday")
	v.SetDefault("schedule.weeklyCloseAt", "12:00")
	v.SetDefault("scoring.maxAttempts", 3)
	// 管理令牌通常只通过 ADMIN_TOKEN 提供，需要默认值以便环境变量生效
	v.SetDefault("admin.token", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.maxSizeMB", 50)
	v.SetDefault("log.maxBackups", 5)
	v.SetDefault("log.maxAgeDays", 28)
}

// LoadConfig 函数负责查找、加载和解析配置文件
// 它会在指定的路径中查找名为 config.yaml 的文件，找不到时使用默认值
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{"./config", "."}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	// 已存在的环境变量优先于 .env 文件
	if err := godotenv.Load(EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("无法读取 %s: %w", EnvFile, err)
	}

	// 允许通过环境变量覆盖配置，例如 STORAGE_BACKEND=redis
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("无法读取配置文件: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("无法解析配置: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 检查配置之间的一致性
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendSQL:
		switch c.Storage.SQL.Driver {
		case "sqlite", "postgres":
		default:
			return fmt.Errorf("不支持的数据库驱动: %q", c.Storage.SQL.Driver)
		}
	case BackendRedis:
		if c.Storage.Redis.Address == "" {
			return fmt.Errorf("storage.redis.address 不能为空")
		}
	default:
		return fmt.Errorf("不支持的存储后端: %q", c.Storage.Backend)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Scoring.MaxAttempts < 1 {
		return fmt.Errorf("scoring.maxAttempts 必须至少为1")
	}
	return nil
}

// Location 解析调度使用的时区
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return nil, fmt.Errorf("无效的时区 %q: %w", c.Schedule.Timezone, err)
	}
	return loc, nil
}
