package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skillTrackerAPI/internal/subscriber"
	"skillTrackerAPI/internal/types/profile"
)

func seed(t *testing.T, m *Memory, email, group string) *subscriber.Subscriber {
	t.Helper()
	sub := &subscriber.Subscriber{Email: email, Group: group}
	require.NoError(t, m.CreateSubscriber(context.Background(), sub))
	return sub
}

func TestMemory_ProfileUniqueness(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	alice := seed(t, m, "alice@example.com", "")
	bob := seed(t, m, "bob@example.com", "")

	require.NoError(t, m.CreateProfile(ctx, &profile.Profile{SubscriberID: alice.ID, Platform: profile.LeetCode, Username: "alice"}))

	err := m.CreateProfile(ctx, &profile.Profile{SubscriberID: alice.ID, Platform: profile.LeetCode, Username: "other"})
	assert.ErrorIs(t, err, ErrConflict)

	err = m.CreateProfile(ctx, &profile.Profile{SubscriberID: bob.ID, Platform: profile.LeetCode, Username: "alice"})
	assert.ErrorIs(t, err, ErrConflict)

	assert.NoError(t, m.CreateProfile(ctx, &profile.Profile{SubscriberID: bob.ID, Platform: profile.CodeChef, Username: "alice"}))
}

func TestMemory_FilterKeepsInsertionOrder(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	a := seed(t, m, "a@example.com", "uni")
	b := seed(t, m, "b@example.com", "")
	c := seed(t, m, "c@example.com", "uni")

	for _, sub := range []*subscriber.Subscriber{a, b, c} {
		require.NoError(t, m.CreateProfile(ctx, &profile.Profile{SubscriberID: sub.ID, Platform: profile.Codeforces, Username: sub.Email}))
	}
	require.NoError(t, m.CreateProfile(ctx, &profile.Profile{SubscriberID: a.ID, Platform: profile.LeetCode, Username: "a"}))

	got, err := m.ListProfilesByFilter(ctx, profile.Filter{Group: "uni", Platform: profile.Codeforces})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a@example.com", got[0].SubscriberEmail)
	assert.Equal(t, "c@example.com", got[1].SubscriberEmail)
	assert.Equal(t, "uni", got[1].SubscriberGroup)

	all, err := m.ListProfilesByFilter(ctx, profile.Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestMemory_LatestSnapshotsNewestFirst(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	sub := seed(t, m, "a@example.com", "")
	p := &profile.Profile{SubscriberID: sub.ID, Platform: profile.LeetCode, Username: "a"}
	require.NoError(t, m.CreateProfile(ctx, p))

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_, err := m.InsertSnapshot(ctx, p.ID, profile.Stats{ProblemsSolved: profile.Known(100 + i)}, base.Add(time.Duration(i)*7*24*time.Hour), "batch")
		require.NoError(t, err)
	}

	snaps, err := m.LatestSnapshots(ctx, p.ID, 2)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, profile.Known(102), snaps[0].ProblemsSolved)
	assert.Equal(t, profile.Known(101), snaps[1].ProblemsSolved)
}

func TestMemory_DeleteSubscriberCascades(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	sub := seed(t, m, "a@example.com", "")
	p := &profile.Profile{SubscriberID: sub.ID, Platform: profile.LeetCode, Username: "a"}
	require.NoError(t, m.CreateProfile(ctx, p))
	_, err := m.InsertSnapshot(ctx, p.ID, profile.Stats{}, time.Now(), "batch")
	require.NoError(t, err)
	require.NoError(t, m.UpsertDevice(ctx, &subscriber.Device{SubscriberID: sub.ID, Token: "tok", Platform: "ios"}))

	require.NoError(t, m.DeleteSubscriber(ctx, sub.ID))

	_, err = m.GetProfile(ctx, p.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	snaps, _ := m.LatestSnapshots(ctx, p.ID, 2)
	assert.Empty(t, snaps)
	devices, _ := m.ListDevices(ctx, sub.ID)
	assert.Empty(t, devices)
}

func TestColumnSentinel(t *testing.T) {
	assert.Equal(t, -1, toColumn(profile.Unknown))
	assert.Equal(t, 0, toColumn(profile.Known(0)))
	assert.False(t, fromColumn(-1).IsKnown())
	assert.Equal(t, profile.Known(7), fromColumn(7))
}
