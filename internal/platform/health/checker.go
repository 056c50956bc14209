package health

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/SlpAus/group-reputation-backend/pkg/lifecycle"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const (
	checkInterval = 5 * time.Second
	pingTimeout   = 2 * time.Second
)

// Probe 探测一次存储。runID 是存储实例的标识，没有时返回空字符串。
type Probe interface {
	Name() string
	Probe(ctx context.Context) (runID string, err error)
}

// SQLProbe 通过 database/sql 的 Ping 探测关系数据库
type SQLProbe struct {
	DB *gorm.DB
}

func (p SQLProbe) Name() string { return "sql" }

func (p SQLProbe) Probe(ctx context.Context) (string, error) {
	sqlDB, err := p.DB.DB()
	if err != nil {
		return "", err
	}
	return "", sqlDB.PingContext(ctx)
}

// RedisProbe 探测Redis并读取 run_id，用于发现Redis重启
type RedisProbe struct {
	RDB *redis.Client
}

var runIDPattern = regexp.MustCompile(`run_id:([a-f0-9]+)`)

func (p RedisProbe) Name() string { return "redis" }

func (p RedisProbe) Probe(ctx context.Context) (string, error) {
	if err := p.RDB.Ping(ctx).Err(); err != nil {
		return "", err
	}
	info, err := p.RDB.Info(ctx, "server").Result()
	if err != nil {
		// 部分兼容实现不支持 INFO，只要能 PING 就视为健康
		return "", nil
	}
	matches := runIDPattern.FindStringSubmatch(info)
	if len(matches) < 2 {
		return "", nil
	}
	return matches[1], nil
}

// Checker 周期性地探测存储，并通过 /healthz 报告结果
type Checker struct {
	probe  Probe
	status *statusManager
	now    func() time.Time
}

// NewChecker 创建检查器。创建时不会探测，首次状态为健康。
func NewChecker(probe Probe, log *slog.Logger) *Checker {
	return &Checker{
		probe: probe,
		status: &statusManager{
			report: Report{State: StateHealthy, Status: StateHealthy.String(), Backend: probe.Name()},
			log:    log,
		},
		now: time.Now,
	}
}

// PerformCheck 执行一次探测并更新状态
func (c *Checker) PerformCheck(ctx context.Context) Report {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	runID, err := c.probe.Probe(ctx)
	if err != nil {
		err = fmt.Errorf("%s 探测失败: %w", c.probe.Name(), err)
	}
	c.status.assess(err, runID, c.now())
	return c.status.snapshot()
}

// Current 返回最近一次检查的结果
func (c *Checker) Current() Report {
	return c.status.snapshot()
}

// Run 启动阻塞式的检查循环，直到 handle 被取消。
func (c *Checker) Run(h *lifecycle.Handle) {
	defer h.Close()
	c.status.log.Info("存储健康检查器已启动。", "backend", c.probe.Name())
	c.PerformCheck(h.Ctx())
	for h.Sleep(checkInterval) == nil {
		c.PerformCheck(h.Ctx())
	}
}

// Handler 返回 /healthz 的处理函数：健康时200，降级时503。
// 每次请求都会实时探测一次。
func (c *Checker) Handler() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		report := c.PerformCheck(ctx.Request.Context())
		code := http.StatusOK
		if report.State != StateHealthy {
			code = http.StatusServiceUnavailable
		}
		ctx.JSON(code, report)
	}
}
