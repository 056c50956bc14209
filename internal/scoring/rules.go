package scoring

import (
	"sort"
	"strings"

	"github.com/SlpAus/group-reputation-backend/internal/user"
)

const (
	upvoteCost   = 1
	downvoteCost = 3

	// DefaultLeaderboardSize 是排行榜默认展示的人数
	DefaultLeaderboardSize = 10

	trophyBadge = "🏆"
)

var placeBadges = [...]string{"🥇", "🥈", "🥉"}

// 以下为纯函数，只修改传入的记录，不访问存储

// ApplyVote 扣除投票者的额度并修改被投票者的分数。
// 额度不足时不做任何修改并返回 ok=false。
func ApplyVote(voter, target *user.User, dir Direction) (leveledUp, ok bool) {
	cost := dir.Cost()
	if voter.VotesRemaining < cost {
		return false, false
	}
	voter.VotesRemaining -= cost

	switch dir {
	case Up:
		target.ReputationScore++
		target.WeeklyScore++
		target.XP++
		return EvaluateLevelUp(target), true
	case Down:
		// 反对票不影响经验
		target.ReputationScore--
		target.WeeklyScore--
	}
	return false, true
}

// RequiredXP 返回从 level 升到下一级所需的经验：(level+1)^2
func RequiredXP(level int) int {
	next := level + 1
	return next * next
}

// EvaluateLevelUp 在经验达到要求时升一级，多出的经验保留到下一级。
// 每次调用最多升一级。
func EvaluateLevelUp(u *user.User) bool {
	required := RequiredXP(u.Level)
	if u.XP < required {
		return false
	}
	u.Level++
	u.XP -= required
	return true
}

// VotesToNextLevel 返回距离下一级还差的赞成票数
func VotesToNextLevel(u user.User) int {
	return RequiredXP(u.Level) - u.XP
}

// ReplenishedVotes 返回每日补充后的额度：1 + 周冠军次数 + 等级
func ReplenishedVotes(u user.User) int {
	return 1 + u.WeeklyChampionCount + u.Level
}

// SelectWeeklyWinner 返回周分最高的用户下标。
// 并列时取遍历顺序中最先出现的用户；列表为空时 ok=false。
func SelectWeeklyWinner(users []*user.User) (idx int, ok bool) {
	if len(users) == 0 {
		return -1, false
	}
	idx = 0
	for i := 1; i < len(users); i++ {
		if users[i].WeeklyScore > users[idx].WeeklyScore {
			idx = i
		}
	}
	return idx, true
}

// RankByReputation 按历史信誉从高到低稳定排序，不修改输入
func RankByReputation(users []user.User) []user.User {
	ranked := make([]user.User, len(users))
	copy(ranked, users)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].ReputationScore > ranked[j].ReputationScore
	})
	return ranked
}

// TopByReputation 返回信誉为正的前 n 名
func TopByReputation(users []user.User, n int) []Standing {
	return top(users, n,
		func(u user.User) int { return u.ReputationScore },
		func(score int) bool { return score > 0 })
}

// TopByWeeklyScore 返回周分至少为1的前 n 名
func TopByWeeklyScore(users []user.User, n int) []Standing {
	return top(users, n,
		func(u user.User) int { return u.WeeklyScore },
		func(score int) bool { return score >= 1 })
}

func top(users []user.User, n int, score func(user.User) int, keep func(int) bool) []Standing {
	if n <= 0 {
		n = DefaultLeaderboardSize
	}
	filtered := make([]user.User, 0, len(users))
	for _, u := range users {
		if keep(score(u)) {
			filtered = append(filtered, u)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return score(filtered[i]) > score(filtered[j])
	})
	if len(filtered) > n {
		filtered = filtered[:n]
	}
	standings := make([]Standing, len(filtered))
	for i, u := range filtered {
		standings[i] = Standing{
			Place:       i + 1,
			Badge:       PlaceBadge(i + 1),
			UserID:      u.UserID,
			DisplayName: u.DisplayName,
			Score:       score(u),
		}
	}
	return standings
}

// BuildStats 根据按信誉排好序的全体用户计算单个用户的统计
func BuildStats(u user.User, ranked []user.User) StatsView {
	view := StatsView{
		User:             u,
		VotesToNextLevel: VotesToNextLevel(u),
		Trophies:         strings.Repeat(trophyBadge, max(u.WeeklyChampionCount, 0)),
	}
	for i := 0; i < len(ranked) && i < len(placeBadges); i++ {
		if ranked[i].UserID == u.UserID {
			view.Place = i + 1
			view.RankBadge = placeBadges[i]
			break
		}
	}
	return view
}

// PlaceBadge 返回排行榜前三名的奖牌，其余名次为空
func PlaceBadge(place int) string {
	if place < 1 || place > len(placeBadges) {
		return ""
	}
	return placeBadges[place-1]
}
