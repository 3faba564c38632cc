package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skillTrackerAPI/internal/types/leaderboard"
	"skillTrackerAPI/internal/types/profile"
)

func TestLeaderboard_PagesAndRanks(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 12; i++ {
		_, p := h.subscribe(t, fmt.Sprintf("u%02d@example.com", i), h.lc, fmt.Sprintf("u%02d", i), stats(2000-i*10, 100, 1))
		ids = append(ids, p.ID)
	}
	caller, err := h.db.GetSubscriberByEmail(ctx, "u11@example.com")
	require.NoError(t, err)

	first, err := h.boards.Leaderboard(ctx, caller, leaderboard.Query{Page: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, first.Pages)
	require.Len(t, first.Results, 10)
	assert.Equal(t, 1, first.Results[0].Rank)
	assert.Equal(t, ids[0], first.Results[0].ID)
	assert.Equal(t, profile.SortByRating, first.SortBy)

	mine := first.UserRankings[profile.LeetCode]
	require.NotNil(t, mine)
	assert.Equal(t, 12, mine.Rank)
	assert.Equal(t, 12, mine.TotalInLeaderboard)

	// Out of range pages clamp.
	last, err := h.boards.Leaderboard(ctx, caller, leaderboard.Query{Page: 99})
	require.NoError(t, err)
	assert.Equal(t, 2, last.Page)
	require.Len(t, last.Results, 2)
	assert.Equal(t, 11, last.Results[0].Rank)

	zero, err := h.boards.Leaderboard(ctx, caller, leaderboard.Query{Page: 0})
	require.NoError(t, err)
	assert.Equal(t, 1, zero.Page)
}

func TestLeaderboard_GroupFilterOnlyForOwnGroup(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice, _ := h.subscribe(t, "alice@example.com", h.lc, "alice", stats(1500, 100, 3))
	bob, _ := h.subscribe(t, "bob@example.com", h.lc, "bob", stats(1600, 50, 7))
	h.subscribe(t, "carol@example.com", h.lc, "carol", stats(1700, 10, 1))

	require.NoError(t, h.subs.CreateGroup(ctx, alice, "team"))
	require.NoError(t, h.subs.JoinGroup(ctx, bob, "team"))

	own, err := h.boards.Leaderboard(ctx, alice, leaderboard.Query{Group: "team"})
	require.NoError(t, err)
	assert.Equal(t, "team", own.Filters.Group)
	assert.Len(t, own.Results, 2)
	assert.Equal(t, 2, own.UserRankings[profile.LeetCode].Rank)

	carol, err := h.db.GetSubscriberByEmail(ctx, "carol@example.com")
	require.NoError(t, err)
	foreign, err := h.boards.Leaderboard(ctx, carol, leaderboard.Query{Group: "team"})
	require.NoError(t, err)
	assert.Empty(t, foreign.Filters.Group)
	assert.Len(t, foreign.Results, 3)
}

func TestLeaderboard_PlatformAndSort(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice, _ := h.subscribe(t, "alice@example.com", h.lc, "alice", stats(1500, 100, 3))
	h.subscribe(t, "bob@example.com", h.cf, "bob", stats(1600, 300, 7))
	h.subscribe(t, "carol@example.com", h.lc, "carol", stats(1700, 10, 1))

	b, err := h.boards.Leaderboard(ctx, alice, leaderboard.Query{Platform: "leetcode", SortBy: profile.SortByProblemsSolved})
	require.NoError(t, err)
	require.Len(t, b.Results, 2)
	assert.Equal(t, "alice", b.Results[0].Username)
	assert.Equal(t, "LeetCode", b.Filters.Platform)
	assert.Equal(t, 1, b.UserRankings[profile.LeetCode].Rank)

	_, err = h.boards.Leaderboard(ctx, alice, leaderboard.Query{Platform: "atcoder"})
	assert.ErrorIs(t, err, ErrUnknownPlatform)
}

func TestPublicStats(t *testing.T) {
	h := newHarness(t)
	h.subscribe(t, "alice@example.com", h.lc, "alice", stats(1500, 100, 3))

	out, err := h.boards.PublicStats(context.Background(), map[string]string{
		"leetcode":   "alice",
		"codeforces": "nobody",
	})
	require.NoError(t, err)

	assert.Equal(t, PublicStatOK, out["leetcode"].Status)
	assert.Equal(t, stats(1500, 100, 3), *out["leetcode"].Stats)
	assert.Equal(t, PublicStatNotFound, out["codeforces"].Status)
	assert.Equal(t, PublicStatNoUsername, out["codechef"].Status)
}
