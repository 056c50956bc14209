package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/SlpAus/group-reputation-backend/internal/platform/metadata"
	"github.com/SlpAus/group-reputation-backend/internal/scoring"
	"github.com/SlpAus/group-reputation-backend/pkg/lifecycle"
)

// Task 在计划时刻执行，firedAt 是该次触发的计划时刻
type Task func(ctx context.Context, firedAt time.Time) error

// Runner 按计划循环执行一个任务
type Runner struct {
	Name     string
	Schedule Schedule
	Task     Task
	Log      *slog.Logger

	now func() time.Time
}

// Run 阻塞直到 graceful 被取消。任务失败只记录日志，不会终止循环。
// 任务使用 forceful 的上下文，进行中的结算在第一阶段停机期间可以完成。
func (r *Runner) Run(graceful, forceful *lifecycle.Handle) {
	defer graceful.Close()
	if forceful == nil {
		forceful = graceful
	} else {
		defer forceful.Close()
	}
	now := r.now
	if now == nil {
		now = time.Now
	}
	r.Log.Info("周期任务已启动", "task", r.Name, "schedule", r.Schedule.String())

	for {
		next := r.Schedule.Next(now())
		r.Log.Debug("等待下一次触发", "task", r.Name, "at", next)
		if err := graceful.SleepUntil(next); err != nil {
			r.Log.Info("周期任务已停止", "task", r.Name)
			return
		}
		if err := r.Task(forceful.Ctx(), next); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			r.Log.Error("周期任务执行失败", "task", r.Name, "error", err)
		}
	}
}

// Replenisher 是每日任务需要的计分操作
type Replenisher interface {
	ReplenishVotes(ctx context.Context) (scoring.ReplenishReport, error)
}

// WeekCloser 是每周任务需要的计分操作
type WeekCloser interface {
	CloseWeek(ctx context.Context) (scoring.WeeklyResult, error)
}

// ReplenishTask 补充所有用户的投票，并记录执行日期
func ReplenishTask(engine Replenisher, store metadata.Store, log *slog.Logger) Task {
	return func(ctx context.Context, firedAt time.Time) error {
		report, err := engine.ReplenishVotes(ctx)
		if err != nil {
			return fmt.Errorf("补充投票失败: %w", err)
		}
		log.Info("每日投票已补充", "users", len(report.Budgets), "weeklyLeaders", len(report.Weekly))
		if err := store.SetValue(ctx, metadata.LastReplenishKey, DayKey(firedAt)); err != nil {
			return fmt.Errorf("无法记录补充日期: %w", err)
		}
		return nil
	}
}

// WeeklyCloseTask 执行周结算。同一ISO周内只结算一次，重复触发会被跳过。
func WeeklyCloseTask(engine WeekCloser, store metadata.Store, log *slog.Logger) Task {
	return func(ctx context.Context, firedAt time.Time) error {
		week := WeekKey(firedAt)
		last, err := store.GetValue(ctx, metadata.LastWeeklyCloseKey)
		if err != nil {
			return fmt.Errorf("无法读取上次周结算: %w", err)
		}
		if last == week {
			log.Warn("本周已结算，跳过", "week", week)
			return nil
		}

		res, err := engine.CloseWeek(ctx)
		if err != nil {
			return fmt.Errorf("周结算失败: %w", err)
		}
		if res.HasWinner {
			log.Info("周结算完成", "week", week, "winner", res.WinnerID, "name", res.WinnerName,
				"score", res.WinningScore, "championCount", res.ChampionCount)
		} else {
			log.Info("周结算完成，本周无用户", "week", week)
		}
		if err := store.SetValue(ctx, metadata.LastWeeklyCloseKey, week); err != nil {
			return fmt.Errorf("无法记录周结算: %w", err)
		}
		return nil
	}
}
