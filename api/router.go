package api

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/SlpAus/group-reputation-backend/internal/platform/config"
	"github.com/SlpAus/group-reputation-backend/internal/platform/health"
	"github.com/SlpAus/group-reputation-backend/internal/platform/logging"
	"github.com/SlpAus/group-reputation-backend/internal/platform/metrics"
	"github.com/SlpAus/group-reputation-backend/internal/platform/ratelimit"
	"github.com/SlpAus/group-reputation-backend/internal/scoring"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// AdminTokenHeader 是管理接口读取令牌的请求头，也接受 Authorization: Bearer <token>
const AdminTokenHeader = "X-Admin-Token"

// Deps 是路由需要的全部组件
type Deps struct {
	Config  *config.Config
	Engine  *scoring.Engine
	Checker *health.Checker
	Log     *slog.Logger
}

// NewRouter 创建gin引擎并注册中间件和所有路由
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), logging.GinMiddleware(d.Log))

	origins := d.Config.Server.Cors.AllowedOrigins
	if len(origins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     origins,
			AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", AdminTokenHeader},
			ExposeHeaders:    []string{"Content-Length", logging.RequestIDHeader},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.GET("/healthz", d.Checker.Handler())
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	limiter := ratelimit.New(d.Config.Server.RateLimit, d.Log)
	handler := scoring.NewHandler(d.Engine, d.Log)
	handler.LimitVoters(ratelimit.New(d.Config.Server.VoterRateLimit, d.Log))
	SetupRoutes(r, handler, d.Config.Admin.Token, limiter.Middleware())
	return r
}

// SetupRoutes 注册项目的所有API路由
func SetupRoutes(router *gin.Engine, h *scoring.Handler, adminToken string, middleware ...gin.HandlerFunc) {
	api := router.Group("/api", middleware...)
	{
		// 用户相关的路由组 /api/users
		users := api.Group("/users")
		{
			users.POST("", h.EnsureUser)
			users.GET("/:id", h.GetUser)
			users.PUT("/:id/name", h.RenameUser)
			users.GET("/:id/stats", h.GetStats)
		}

		// 投票相关的路由 /api/votes
		api.POST("/votes", h.CastVote)

		// 排行榜 /api/rankings
		rankings := api.Group("/rankings")
		{
			rankings.GET("/reputation", h.GetReputationRanking)
			rankings.GET("/weekly", h.GetWeeklyRanking)
		}

		// 管理接口 /api/admin，手动结算不受每周一次的限制
		admin := api.Group("/admin", RequireAdmin(adminToken))
		{
			admin.POST("/replenish", h.Replenish)
			admin.POST("/close-week", h.CloseWeek)
		}
	}
}

// RequireAdmin 校验管理令牌。令牌未配置时管理接口一律返回403。
func RequireAdmin(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "管理接口未启用"})
			return
		}
		got := c.GetHeader(AdminTokenHeader)
		if got == "" {
			got = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "无效的管理令牌"})
			return
		}
		c.Next()
	}
}
