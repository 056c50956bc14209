package shutdown

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SlpAus/group-reputation-backend/pkg/lifecycle"
)

// Timeouts 定义了各停机阶段的最长等待时间
type Timeouts struct {
	HTTP     time.Duration
	Graceful time.Duration
	Forceful time.Duration
}

// DefaultTimeouts 是生产环境使用的停机时限
var DefaultTimeouts = Timeouts{
	HTTP:     15 * time.Second,
	Graceful: 30 * time.Second,
	Forceful: 1 * time.Second,
}

// Closer 在所有后台服务退出之后执行，例如关闭数据库连接
type Closer struct {
	Name  string
	Close func() error
}

// Coordinator 负责编排应用程序的优雅停机流程。
// 它接收外部创建的生命周期管理器，并使用它们来协调停机。
type Coordinator struct {
	GracefulManager *lifecycle.Manager
	ForcefulManager *lifecycle.Manager
	Timeouts        Timeouts

	log     *slog.Logger
	closers []Closer
}

// NewCoordinator 创建一个新的停机协调器。
func NewCoordinator(gracefulMgr, forcefulMgr *lifecycle.Manager, log *slog.Logger) *Coordinator {
	return &Coordinator{
		GracefulManager: gracefulMgr,
		ForcefulManager: forcefulMgr,
		Timeouts:        DefaultTimeouts,
		log:             log,
	}
}

// OnClose 登记一个最终步骤，按登记的逆序执行
func (c *Coordinator) OnClose(name string, fn func() error) {
	c.closers = append(c.closers, Closer{Name: name, Close: fn})
}

// ListenForSignalsAndShutdown 启动信号监听并阻塞，直到停机流程完成。
func (c *Coordinator) ListenForSignalsAndShutdown(server *http.Server) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	sig := <-sigChan
	c.log.Info("收到关闭信号，开始优雅停机...", "signal", sig.String())
	c.Shutdown(server)
}

// Shutdown 执行完整的停机流程：先关闭HTTP服务器，再停止后台服务，最后执行登记的关闭步骤。
func (c *Coordinator) Shutdown(server *http.Server) {
	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), c.Timeouts.HTTP)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.log.Error("Gin服务器关闭错误", "error", err)
		} else {
			c.log.Info("Gin服务器已关闭。")
		}
	}

	// --- 阶段一: 优雅停机 ---
	c.log.Info("第一阶段停机：等待后台服务完成任务...", "timeout", c.Timeouts.Graceful)
	c.GracefulManager.Shutdown()

	remainingServices := c.GracefulManager.WaitWithTimeout(c.Timeouts.Graceful)
	if len(remainingServices) == 0 {
		c.log.Info("所有服务已在第一阶段优雅关闭。")
	} else {
		// --- 阶段二: 强制停机 ---
		c.log.Warn("第一阶段超时。发送第二停机信号，强制退出", "remaining", remainingServices, "timeout", c.Timeouts.Forceful)
		c.ForcefulManager.Shutdown()
		if stuck := c.ForcefulManager.WaitWithTimeout(c.Timeouts.Forceful); len(stuck) > 0 {
			c.log.Error("部分服务未能退出", "services", stuck)
		}
	}

	// --- 最终步骤 ---
	for i := len(c.closers) - 1; i >= 0; i-- {
		closer := c.closers[i]
		if err := closer.Close(); err != nil {
			c.log.Error("关闭失败", "resource", closer.Name, "error", err)
		} else {
			c.log.Info("已关闭", "resource", closer.Name)
		}
	}

	c.log.Info("优雅停机完成。")
}
