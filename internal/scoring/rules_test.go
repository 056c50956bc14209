package scoring

import (
	"testing"

	"github.com/SlpAus/group-reputation-backend/internal/user"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectionCost(t *testing.T) {
	assert.Equal(t, 1, Up.Cost())
	assert.Equal(t, 3, Down.Cost())
	assert.NoError(t, Up.Validate())
	assert.ErrorIs(t, Direction("sideways").Validate(), ErrInvalidDirection)
}

func TestApplyUpvote(t *testing.T) {
	voter := user.User{UserID: 1, VotesRemaining: 2}
	target := user.User{UserID: 2, ReputationScore: 4, WeeklyScore: -1, XP: 0, Level: 1}

	leveled, ok := ApplyVote(&voter, &target, Up)
	require.True(t, ok)
	assert.False(t, leveled)
	assert.Equal(t, 1, voter.VotesRemaining)
	assert.Equal(t, 5, target.ReputationScore)
	assert.Equal(t, 0, target.WeeklyScore)
	assert.Equal(t, 1, target.XP)
}

func TestApplyDownvote(t *testing.T) {
	voter := user.User{UserID: 1, VotesRemaining: 5}
	target := user.User{UserID: 2, ReputationScore: 0, WeeklyScore: 0, XP: 3, Level: 2}

	leveled, ok := ApplyVote(&voter, &target, Down)
	require.True(t, ok)
	assert.False(t, leveled)
	assert.Equal(t, 2, voter.VotesRemaining)
	assert.Equal(t, -1, target.ReputationScore)
	assert.Equal(t, -1, target.WeeklyScore)
	assert.Equal(t, 3, target.XP)
	assert.Equal(t, 2, target.Level)
}

func TestApplyVoteInsufficientBalance(t *testing.T) {
	for _, tc := range []struct {
		dir     Direction
		balance int
	}{
		{Up, 0},
		{Down, 2},
	} {
		voter := user.User{UserID: 1, VotesRemaining: tc.balance}
		target := user.User{UserID: 2, ReputationScore: 3, WeeklyScore: 3, XP: 1}
		beforeVoter, beforeTarget := voter, target

		leveled, ok := ApplyVote(&voter, &target, tc.dir)
		assert.False(t, ok, tc.dir)
		assert.False(t, leveled)
		assert.Equal(t, beforeVoter, voter)
		assert.Equal(t, beforeTarget, target)
	}
}

func TestUpvoteTriggersLevelUp(t *testing.T) {
	voter := user.User{UserID: 1, VotesRemaining: 1}
	target := user.User{UserID: 2, Level: 0, XP: 0}

	leveled, ok := ApplyVote(&voter, &target, Up)
	require.True(t, ok)
	assert.True(t, leveled)
	assert.Equal(t, 1, target.Level)
	assert.Equal(t, 0, target.XP)
}

func TestEvaluateLevelUp(t *testing.T) {
	for level := 0; level < 6; level++ {
		required := (level + 1) * (level + 1)
		u := user.User{Level: level, XP: required}
		assert.True(t, EvaluateLevelUp(&u))
		assert.Equal(t, level+1, u.Level)
		assert.Equal(t, 0, u.XP)

		u = user.User{Level: level, XP: required - 1}
		assert.False(t, EvaluateLevelUp(&u))
		assert.Equal(t, level, u.Level)
		assert.Equal(t, required-1, u.XP)
	}
}

func TestEvaluateLevelUpCarriesExcessOneLevelPerCall(t *testing.T) {
	// 等级0需要1点，等级1需要4点
	u := user.User{Level: 0, XP: 6}
	assert.True(t, EvaluateLevelUp(&u))
	assert.Equal(t, 1, u.Level)
	assert.Equal(t, 5, u.XP)

	assert.True(t, EvaluateLevelUp(&u))
	assert.Equal(t, 2, u.Level)
	assert.Equal(t, 1, u.XP)

	assert.False(t, EvaluateLevelUp(&u))
}

func TestVotesToNextLevel(t *testing.T) {
	assert.Equal(t, 1, VotesToNextLevel(user.User{Level: 0, XP: 0}))
	assert.Equal(t, 7, VotesToNextLevel(user.User{Level: 2, XP: 2}))
}

func TestReplenishedVotes(t *testing.T) {
	assert.Equal(t, 6, ReplenishedVotes(user.User{WeeklyChampionCount: 2, Level: 3, VotesRemaining: 40}))
	assert.Equal(t, 1, ReplenishedVotes(user.User{}))
}

func TestSelectWeeklyWinnerFirstEncounteredOnTie(t *testing.T) {
	users := []*user.User{
		{UserID: 1, WeeklyScore: 5},
		{UserID: 2, WeeklyScore: 9},
		{UserID: 3, WeeklyScore: 9},
	}
	idx, ok := SelectWeeklyWinner(users)
	require.True(t, ok)
	assert.Equal(t, 1, idx)

	_, ok = SelectWeeklyWinner(nil)
	assert.False(t, ok)

	idx, ok = SelectWeeklyWinner([]*user.User{{UserID: 1, WeeklyScore: -4}, {UserID: 2, WeeklyScore: -2}})
	require.True(t, ok)
	assert.Equal(t, 1, idx)
}

func TestTopByReputationFiltersAndSorts(t *testing.T) {
	users := []user.User{
		{UserID: 1, DisplayName: "a", ReputationScore: 10},
		{UserID: 2, DisplayName: "b", ReputationScore: 0},
		{UserID: 3, DisplayName: "c", ReputationScore: -3},
		{UserID: 4, DisplayName: "d", ReputationScore: 7},
	}
	top := TopByReputation(users, 10)
	require.Len(t, top, 2)
	assert.Equal(t, 10, top[0].Score)
	assert.Equal(t, int64(1), top[0].UserID)
	assert.Equal(t, "🥇", top[0].Badge)
	assert.Equal(t, 7, top[1].Score)
	assert.Equal(t, 2, top[1].Place)
}

func TestTopByReputationStableTiesAndLimit(t *testing.T) {
	var users []user.User
	for i := int64(1); i <= 15; i++ {
		users = append(users, user.User{UserID: i, ReputationScore: 5})
	}
	top := TopByReputation(users, 0)
	require.Len(t, top, DefaultLeaderboardSize)
	for i, s := range top {
		assert.Equal(t, int64(i+1), s.UserID)
	}
	assert.Len(t, TopByReputation(users, 3), 3)
}

func TestTopByWeeklyScore(t *testing.T) {
	users := []user.User{
		{UserID: 1, WeeklyScore: 1},
		{UserID: 2, WeeklyScore: 0},
		{UserID: 3, WeeklyScore: 4},
		{UserID: 4, WeeklyScore: -2},
		{UserID: 5, WeeklyScore: 4},
	}
	top := TopByWeeklyScore(users, 10)
	require.Len(t, top, 3)
	assert.Equal(t, []int64{3, 5, 1}, []int64{top[0].UserID, top[1].UserID, top[2].UserID})
}

func TestBuildStats(t *testing.T) {
	all := []user.User{
		{UserID: 1, ReputationScore: 3},
		{UserID: 2, ReputationScore: 9, Level: 2, XP: 4, WeeklyChampionCount: 3},
		{UserID: 3, ReputationScore: 5},
		{UserID: 4, ReputationScore: 1},
	}
	ranked := RankByReputation(all)
	assert.Equal(t, int64(1), all[0].UserID, "input must not be reordered")

	view := BuildStats(all[1], ranked)
	assert.Equal(t, 1, view.Place)
	assert.Equal(t, "🥇", view.RankBadge)
	assert.Equal(t, 5, view.VotesToNextLevel)
	assert.Equal(t, "🏆🏆🏆", view.Trophies)

	view = BuildStats(all[0], ranked)
	assert.Equal(t, 3, view.Place)
	assert.Equal(t, "🥉", view.RankBadge)
	assert.Empty(t, view.Trophies)

	view = BuildStats(all[3], ranked)
	assert.Zero(t, view.Place)
	assert.Empty(t, view.RankBadge)
}

func TestPlaceBadge(t *testing.T) {
	assert.Equal(t, "🥈", PlaceBadge(2))
	assert.Empty(t, PlaceBadge(0))
	assert.Empty(t, PlaceBadge(4))
}
