package scoring

import (
	"errors"
	"fmt"

	"github.com/SlpAus/group-reputation-backend/internal/user"
)

// Direction 是投票方向
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// ErrInvalidDirection 表示无法识别的投票方向
var ErrInvalidDirection = errors.New("invalid vote direction")

// ErrRetriesExhausted 表示存储冲突在重试上限内仍未解决
var ErrRetriesExhausted = errors.New("vote transaction retries exhausted")

// Validate 检查方向是否合法
func (d Direction) Validate() error {
	switch d {
	case Up, Down:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidDirection, string(d))
	}
}

// Cost 返回该方向消耗的投票数：赞成1票，反对3票
func (d Direction) Cost() int {
	if d == Down {
		return downvoteCost
	}
	return upvoteCost
}

// RejectReason 是投票被拒绝的原因
type RejectReason string

const (
	ReasonNone              RejectReason = ""
	ReasonSelfVote          RejectReason = "self-vote"
	ReasonInvalidTarget     RejectReason = "invalid target"
	ReasonInsufficientVotes RejectReason = "insufficient votes"
)

// Participant 是投票双方在聊天平台上的身份
type Participant struct {
	ID    int64  `json:"id" binding:"required"`
	Name  string `json:"name"`
	IsBot bool   `json:"isBot"`
}

// VoteRequest 描述一次投票：Voter 回复了 Target 的一条消息。
// RepliedText 是被回复消息的文本，用来识别对投票或命令本身的投票。
type VoteRequest struct {
	Voter       Participant `json:"voter"`
	Target      Participant `json:"target"`
	Direction   Direction   `json:"direction" binding:"required"`
	RepliedText string      `json:"repliedText"`
}

// VoteResult 是一次投票的结果，包含渲染回复消息需要的全部数据
type VoteResult struct {
	Accepted bool         `json:"accepted"`
	Reason   RejectReason `json:"reason,omitempty"`
	Detail   string       `json:"detail,omitempty"`

	TargetID       int64  `json:"targetId"`
	TargetName     string `json:"targetName"`
	NewReputation  int    `json:"newReputation"`
	LeveledUp      bool   `json:"leveledUp"`
	NewLevel       int    `json:"newLevel"`
	VotesRemaining int    `json:"votesRemaining"`
}

func rejected(reason RejectReason, detail string) VoteResult {
	return VoteResult{Reason: reason, Detail: detail}
}

// Standing 是排行榜上的一行
type Standing struct {
	Place       int    `json:"place"`
	Badge       string `json:"badge,omitempty"`
	UserID      int64  `json:"id"`
	DisplayName string `json:"displayName"`
	Score       int    `json:"score"`
}

// StatsView 是单个用户的信誉统计
type StatsView struct {
	User user.User `json:"user"`

	// Place 是在历史信誉总榜上的名次，仅前三名非零
	Place            int    `json:"place"`
	RankBadge        string `json:"rankBadge"`
	VotesToNextLevel int    `json:"votesToNextLevel"`
	Trophies         string `json:"trophies"`
}

// BudgetChange 是补充投票后某个用户的新额度
type BudgetChange struct {
	UserID         int64  `json:"id"`
	DisplayName    string `json:"displayName"`
	VotesRemaining int    `json:"votesRemaining"`
}

// ReplenishReport 是每日补充投票的结果，附带当前周榜
type ReplenishReport struct {
	Budgets []BudgetChange `json:"budgets"`
	Weekly  []Standing     `json:"weekly"`
}

// WeeklyResult 是周结算的结果
type WeeklyResult struct {
	HasWinner     bool   `json:"hasWinner"`
	WinnerID      int64  `json:"winnerId,omitempty"`
	WinnerName    string `json:"winnerName,omitempty"`
	WinningScore  int    `json:"winningScore"`
	ChampionCount int    `json:"championCount"`
	UsersReset    int    `json:"usersReset"`
}
