package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/SlpAus/group-reputation-backend/api"
	"github.com/SlpAus/group-reputation-backend/internal/platform/config"
	"github.com/SlpAus/group-reputation-backend/internal/platform/health"
	"github.com/SlpAus/group-reputation-backend/internal/platform/logging"
	"github.com/SlpAus/group-reputation-backend/internal/platform/metadata"
	"github.com/SlpAus/group-reputation-backend/internal/platform/metrics"
	"github.com/SlpAus/group-reputation-backend/internal/platform/shutdown"
	"github.com/SlpAus/group-reputation-backend/internal/platform/startup"
	"github.com/SlpAus/group-reputation-backend/internal/schedule"
	"github.com/SlpAus/group-reputation-backend/internal/scoring"
	"github.com/SlpAus/group-reputation-backend/pkg/lifecycle"
	"github.com/gin-gonic/gin"
)

// retryBackoff 是存储冲突后第一次重试前的等待时间，之后逐次翻倍
const retryBackoff = 8 * time.Millisecond

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "配置加载失败: %v\n", err)
		os.Exit(1)
	}
	log := logging.New(cfg.Log)
	slog.SetDefault(log)
	gin.SetMode(cfg.Server.Mode)

	gracefulManager := lifecycle.NewManager(log)
	forcefulManager := lifecycle.NewManager(log)
	coordinator := shutdown.NewCoordinator(gracefulManager, forcefulManager, log)

	// 1. 连接存储后端
	store, err := startup.InitializeStorage(context.Background(), cfg.Storage, log, coordinator.OnClose)
	if err != nil {
		fatal(log, "存储初始化失败，无法启动", err)
	}

	// 2. 计分引擎
	engine := scoring.NewEngine(store.Registry,
		scoring.WithLogger(log),
		scoring.WithMetrics(metrics.Scoring()),
		scoring.WithRetry(cfg.Scoring.MaxAttempts, retryBackoff),
	)

	// 3. 后台服务：健康检查与两个周期任务
	checker := health.NewChecker(store.Probe, log)
	if report := checker.PerformCheck(context.Background()); report.State != health.StateHealthy {
		fatal(log, "启动后健康检查失败", errors.New(report.Error))
	}
	if err := startBackground(cfg, log, engine, store.Meta, checker, gracefulManager, forcefulManager); err != nil {
		fatal(log, "后台服务启动失败", err)
	}

	// 4. HTTP服务器
	router := api.NewRouter(api.Deps{Config: cfg, Engine: engine, Checker: checker, Log: log})
	server := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("服务器已准备就绪，开始监听", "address", cfg.Server.Address)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal(log, "HTTP服务器启动失败", err)
		}
	}()

	coordinator.ListenForSignalsAndShutdown(server)
}

func startBackground(
	cfg *config.Config,
	log *slog.Logger,
	engine *scoring.Engine,
	meta metadata.Store,
	checker *health.Checker,
	graceful, forceful *lifecycle.Manager,
) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	replenishAt, err := schedule.ParseClock(cfg.Schedule.ReplenishAt)
	if err != nil {
		return err
	}
	closeDay, err := schedule.ParseWeekday(cfg.Schedule.WeeklyCloseDay)
	if err != nil {
		return err
	}
	closeAt, err := schedule.ParseClock(cfg.Schedule.WeeklyCloseAt)
	if err != nil {
		return err
	}

	runners := []*schedule.Runner{
		{
			Name:     "replenish",
			Schedule: schedule.DailyAt(replenishAt, loc),
			Task:     schedule.ReplenishTask(engine, meta, log),
			Log:      log,
		},
		{
			Name:     "weekly-close",
			Schedule: schedule.WeeklyAt(closeDay, closeAt, loc),
			Task:     schedule.WeeklyCloseTask(engine, meta, log),
			Log:      log,
		},
	}
	for _, r := range runners {
		gh, err := graceful.NewServiceHandle(r.Name)
		if err != nil {
			return err
		}
		fh, err := forceful.NewServiceHandle(r.Name)
		if err != nil {
			return err
		}
		go r.Run(gh, fh)
	}

	hh, err := graceful.NewServiceHandle("health")
	if err != nil {
		return err
	}
	go checker.Run(hh)
	return nil
}

func fatal(log *slog.Logger, msg string, err error) {
	log.Error(msg, "error", err)
	os.Exit(1)
}
