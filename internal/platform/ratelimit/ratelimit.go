package ratelimit

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/SlpAus/group-reputation-backend/internal/platform/config"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// idleTTL 之后未再出现的客户端会被清理
const idleTTL = 5 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter 按任意字符串键限制请求速率，Middleware 以客户端IP为键
type Limiter struct {
	limit rate.Limit
	burst int
	log   *slog.Logger

	mu        sync.Mutex
	visitors  map[string]*visitor
	lastSweep time.Time
	clockNow  func() time.Time
}

// New 根据配置创建限流器。RequestsPerSecond <= 0 时不限流。
func New(cfg config.RateLimitConfig, log *slog.Logger) *Limiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Limit(cfg.RequestsPerSecond)
	if cfg.RequestsPerSecond <= 0 {
		limit = rate.Inf
	}
	return &Limiter{
		limit:    limit,
		burst:    burst,
		log:      log,
		visitors: make(map[string]*visitor),
		clockNow: time.Now,
	}
}

// Allow 报告来自 id 的请求此刻是否放行
func (l *Limiter) Allow(id string) bool {
	if l.limit == rate.Inf {
		return true
	}
	now := l.clockNow()

	l.mu.Lock()
	defer l.mu.Unlock()
	if now.Sub(l.lastSweep) > idleTTL {
		l.sweep(now)
	}
	v, ok := l.visitors[id]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[id] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

func (l *Limiter) sweep(now time.Time) {
	for id, v := range l.visitors {
		if now.Sub(v.lastSeen) > idleTTL {
			delete(l.visitors, id)
		}
	}
	l.lastSweep = now
}

// Middleware 返回按客户端IP限流的gin中间件，超限时返回429。
// 所有请求都经同一个机器人进程转发时，它只是整个进程的总上限。
func (l *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !l.Allow(ip) {
			l.log.Warn("请求过于频繁", "client", ip, "path", c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "请求过于频繁，请稍后再试"})
			return
		}
		c.Next()
	}
}
