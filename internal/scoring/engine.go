package scoring

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/SlpAus/group-reputation-backend/internal/platform/metrics"
	"github.com/SlpAus/group-reputation-backend/internal/user"
)

const (
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 8 * time.Millisecond
	lockStripes           = 64
)

// Engine 负责投票、升级判定和周期结算，所有读写都经过注入的 Registry。
//
// 并发模型：每次投票持有 gate 的读锁，以及投票双方对应的分段锁；
// 补充投票与周结算持有 gate 的写锁，扫描期间不会有投票落地。
type Engine struct {
	registry user.Registry
	log      *slog.Logger
	metrics  *metrics.ScoringMetrics

	maxAttempts    int
	initialBackoff time.Duration

	gate  sync.RWMutex
	locks [lockStripes]sync.Mutex
}

// Option 配置 Engine
type Option func(*Engine)

// WithLogger 设置日志器
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithMetrics 设置指标收集器
func WithMetrics(m *metrics.ScoringMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithRetry 设置冲突重试的总尝试次数与初始退避
func WithRetry(maxAttempts int, initialBackoff time.Duration) Option {
	return func(e *Engine) {
		if maxAttempts > 0 {
			e.maxAttempts = maxAttempts
		}
		if initialBackoff > 0 {
			e.initialBackoff = initialBackoff
		}
	}
}

// NewEngine 创建引擎
func NewEngine(registry user.Registry, opts ...Option) *Engine {
	e := &Engine{
		registry:       registry,
		log:            slog.New(slog.NewTextHandler(io.Discard, nil)),
		maxAttempts:    defaultMaxAttempts,
		initialBackoff: defaultInitialBackoff,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry 返回引擎使用的用户仓库
func (e *Engine) Registry() user.Registry {
	return e.registry
}

// screen 执行不需要读取存储的前置检查
func screen(req VoteRequest) (RejectReason, string, bool) {
	if req.Voter.ID == req.Target.ID {
		return ReasonSelfVote, "You cannot vote for yourself.", false
	}
	switch {
	case req.Target.IsBot:
		return ReasonInvalidTarget, "Sorry, you cannot vote for bots.", false
	case req.RepliedText == "+" || req.RepliedText == "-":
		return ReasonInvalidTarget, "Sorry, you cannot vote for votes.", false
	case strings.HasPrefix(req.RepliedText, "/"):
		return ReasonInvalidTarget, "Sorry, you cannot vote for commands.", false
	}
	return ReasonNone, "", true
}

// CastVote 处理一次投票。
// 被拒绝的投票以 Accepted=false 的结果返回，error 只表示存储层失败。
func (e *Engine) CastVote(ctx context.Context, req VoteRequest) (VoteResult, error) {
	if err := req.Direction.Validate(); err != nil {
		return VoteResult{}, err
	}
	if reason, detail, ok := screen(req); !ok {
		e.metrics.ObserveVote(string(req.Direction), string(reason))
		return rejected(reason, detail), nil
	}

	e.gate.RLock()
	defer e.gate.RUnlock()
	unlock := e.lockUsers(req.Voter.ID, req.Target.ID)
	defer unlock()

	if err := e.withRetry(ctx, func() error {
		if _, err := e.registry.EnsureUser(ctx, req.Voter.ID, req.Voter.Name); err != nil {
			return fmt.Errorf("无法准备投票者 %d: %w", req.Voter.ID, err)
		}
		if _, err := e.registry.EnsureUser(ctx, req.Target.ID, req.Target.Name); err != nil {
			return fmt.Errorf("无法准备被投票者 %d: %w", req.Target.ID, err)
		}
		return nil
	}); err != nil {
		e.metrics.ObserveVote(string(req.Direction), "error")
		return VoteResult{}, err
	}

	// 改名与扣票在同一个事务里提交
	var result VoteResult
	err := e.withRetry(ctx, func() error {
		return e.registry.Update(ctx, []int64{req.Voter.ID, req.Target.ID}, func(users []*user.User) error {
			voter, target := users[0], users[1]
			renamed := voter.SyncName(req.Voter.Name)
			renamed = target.SyncName(req.Target.Name) || renamed

			leveledUp, ok := ApplyVote(voter, target, req.Direction)
			if !ok {
				result = rejected(ReasonInsufficientVotes, "Sorry, not enough voting power.")
				result.VotesRemaining = voter.VotesRemaining
				if renamed {
					return nil
				}
				return user.ErrSkipCommit
			}
			result = VoteResult{
				Accepted:       true,
				TargetID:       target.UserID,
				TargetName:     target.DisplayName,
				NewReputation:  target.ReputationScore,
				LeveledUp:      leveledUp,
				NewLevel:       target.Level,
				VotesRemaining: voter.VotesRemaining,
			}
			return nil
		})
	})
	if err != nil {
		e.metrics.ObserveVote(string(req.Direction), "error")
		return VoteResult{}, err
	}

	if !result.Accepted {
		e.metrics.ObserveVote(string(req.Direction), string(result.Reason))
		return result, nil
	}
	e.metrics.ObserveVote(string(req.Direction), "accepted")
	if result.LeveledUp {
		e.metrics.ObserveLevelUp()
		e.log.Info("用户升级", "user_id", result.TargetID, "level", result.NewLevel)
	}
	e.log.Debug("投票成功",
		"voter_id", req.Voter.ID,
		"target_id", req.Target.ID,
		"direction", req.Direction,
		"reputation", result.NewReputation)
	return result, nil
}

// ReplenishVotes 把每个用户的额度重置为 1 + 周冠军次数 + 等级。
// 重复调用得到相同的结果。
func (e *Engine) ReplenishVotes(ctx context.Context) (ReplenishReport, error) {
	e.gate.Lock()
	defer e.gate.Unlock()

	var report ReplenishReport
	err := e.withRetry(ctx, func() error {
		return e.registry.UpdateAll(ctx, func(users []*user.User) error {
			report = ReplenishReport{Budgets: make([]BudgetChange, 0, len(users))}
			snapshot := make([]user.User, len(users))
			for i, u := range users {
				u.VotesRemaining = ReplenishedVotes(*u)
				report.Budgets = append(report.Budgets, BudgetChange{
					UserID:         u.UserID,
					DisplayName:    u.DisplayName,
					VotesRemaining: u.VotesRemaining,
				})
				snapshot[i] = *u
			}
			report.Weekly = TopByWeeklyScore(snapshot, DefaultLeaderboardSize)
			return nil
		})
	})
	if err != nil {
		return ReplenishReport{}, fmt.Errorf("补充投票失败: %w", err)
	}

	e.metrics.ObserveReset("daily")
	e.log.Info("投票额度已补充", "users", len(report.Budgets))
	return report, nil
}

// CloseWeek 为周分最高的用户加冕，并把所有人的周分清零。
// 同一周内只应调用一次，由调度方保证。
func (e *Engine) CloseWeek(ctx context.Context) (WeeklyResult, error) {
	e.gate.Lock()
	defer e.gate.Unlock()

	var result WeeklyResult
	err := e.withRetry(ctx, func() error {
		return e.registry.UpdateAll(ctx, func(users []*user.User) error {
			result = WeeklyResult{}
			idx, ok := SelectWeeklyWinner(users)
			if !ok {
				return user.ErrSkipCommit
			}
			winner := users[idx]
			winner.WeeklyChampionCount++
			result = WeeklyResult{
				HasWinner:     true,
				WinnerID:      winner.UserID,
				WinnerName:    winner.DisplayName,
				WinningScore:  winner.WeeklyScore,
				ChampionCount: winner.WeeklyChampionCount,
				UsersReset:    len(users),
			}
			for _, u := range users {
				u.WeeklyScore = 0
			}
			return nil
		})
	})
	if err != nil {
		return WeeklyResult{}, fmt.Errorf("周结算失败: %w", err)
	}

	e.metrics.ObserveReset("weekly")
	if result.HasWinner {
		e.log.Info("周冠军产生",
			"user_id", result.WinnerID,
			"name", result.WinnerName,
			"score", result.WinningScore)
	} else {
		e.log.Info("周结算：没有用户")
	}
	return result, nil
}

// ComputeStats 返回用户的统计，用户不存在时先创建。
// 与投票使用同一组分段锁，改名不会和同一用户的投票在进程内冲突。
func (e *Engine) ComputeStats(ctx context.Context, id int64, name string) (StatsView, error) {
	e.gate.RLock()
	defer e.gate.RUnlock()
	unlock := e.lockUsers(id, id)
	defer unlock()

	var u user.User
	err := e.withRetry(ctx, func() error {
		var err error
		u, err = user.Maintain(ctx, e.registry, id, name)
		return err
	})
	if err != nil {
		return StatsView{}, err
	}
	all, err := e.registry.ListAll(ctx)
	if err != nil {
		return StatsView{}, err
	}
	return BuildStats(u, RankByReputation(all)), nil
}

// TopByReputation 返回历史信誉榜，n<=0 时取默认人数
func (e *Engine) TopByReputation(ctx context.Context, n int) ([]Standing, error) {
	all, err := e.registry.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return TopByReputation(all, n), nil
}

// TopByWeeklyScore 返回本周榜，n<=0 时取默认人数
func (e *Engine) TopByWeeklyScore(ctx context.Context, n int) ([]Standing, error) {
	all, err := e.registry.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return TopByWeeklyScore(all, n), nil
}

// withRetry 在存储冲突时以指数退避重试 op
func (e *Engine) withRetry(ctx context.Context, op func() error) error {
	delay := e.initialBackoff
	var err error
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		err = op()
		if !errors.Is(err, user.ErrConflict) {
			return err
		}
		e.metrics.ObserveRetry()
		e.log.Warn("存储冲突，准备重试", "attempt", attempt, "error", err)
		if attempt == e.maxAttempts {
			break
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
	return fmt.Errorf("%w: %w", ErrRetriesExhausted, err)
}

// lockUsers 按分段序号升序加锁，避免两笔相向的投票互相死锁
func (e *Engine) lockUsers(a, b int64) func() {
	i, j := stripe(a), stripe(b)
	if i > j {
		i, j = j, i
	}
	e.locks[i].Lock()
	if i != j {
		e.locks[j].Lock()
	}
	return func() {
		if i != j {
			e.locks[j].Unlock()
		}
		e.locks[i].Unlock()
	}
}

func stripe(id int64) int {
	return int(uint64(id) % lockStripes)
}
