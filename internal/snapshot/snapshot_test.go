package snapshot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skillTrackerAPI/internal/store"
	"skillTrackerAPI/internal/subscriber"
	"skillTrackerAPI/internal/types/profile"
)

type fixture struct {
	t   *testing.T
	db  *store.Memory
	now time.Time
}

func newFixture(t *testing.T) *fixture {
	return &fixture{t: t, db: store.NewMemory(), now: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *fixture) subscriber(email string) *subscriber.Subscriber {
	sub := &subscriber.Subscriber{Email: email}
	require.NoError(f.t, f.db.CreateSubscriber(context.Background(), sub))
	return sub
}

func (f *fixture) profile(sub *subscriber.Subscriber, platform profile.Platform, snaps ...profile.Stats) *profile.Profile {
	ctx := context.Background()
	p := &profile.Profile{SubscriberID: sub.ID, Platform: platform, Username: sub.Email + string(platform)}
	require.NoError(f.t, f.db.CreateProfile(ctx, p))
	// Oldest first.
	for i, s := range snaps {
		_, err := f.db.InsertSnapshot(ctx, p.ID, s, f.now.Add(time.Duration(i)*7*24*time.Hour), "batch")
		require.NoError(f.t, err)
	}
	return p
}

func st(rating, problems, contests int) profile.Stats {
	return profile.Stats{
		Rating:           profile.Known(rating),
		ProblemsSolved:   profile.Known(problems),
		ContestsAttended: profile.Known(contests),
	}
}

func TestComputeChanges_SignedDeltas(t *testing.T) {
	f := newFixture(t)
	alice := f.subscriber("alice@example.com")
	f.profile(alice, profile.LeetCode, st(1500, 100, 3), st(1450, 120, 4))

	res, err := ComputeChanges(context.Background(), f.db, []*subscriber.Subscriber{alice})
	require.NoError(t, err)

	require.Len(t, res.Changes["alice@example.com"], 1)
	c := res.Changes["alice@example.com"][0]
	assert.Equal(t, profile.Known(20), c.ProblemsDelta)
	assert.Equal(t, profile.Known(1), c.ContestsDelta)
	assert.Equal(t, profile.Known(-50), c.RatingDelta)
	assert.Equal(t, 20, res.TotalProblems)
	assert.Equal(t, 1, res.TotalContests)
}

func TestComputeChanges_SkipRule(t *testing.T) {
	f := newFixture(t)
	alice := f.subscriber("alice@example.com")
	bob := f.subscriber("bob@example.com")
	carol := f.subscriber("carol@example.com")

	f.profile(alice, profile.LeetCode, st(1, 10, 1), st(1, 15, 1))
	f.profile(alice, profile.CodeChef, st(1, 10, 1))
	f.profile(bob, profile.LeetCode, st(1, 10, 1))
	f.profile(bob, profile.Codeforces)
	f.subscriber("dave@example.com")
	f.profile(carol, profile.Codeforces, st(1, 5, 1), st(1, 7, 2), st(1, 10, 4))

	subs, _ := f.db.ListSubscribers(context.Background())
	res, err := ComputeChanges(context.Background(), f.db, subs)
	require.NoError(t, err)

	assert.Len(t, res.Changes, 2)
	assert.Len(t, res.Changes["alice@example.com"], 1)
	assert.NotContains(t, res.Changes, "bob@example.com")
	assert.NotContains(t, res.Changes, "dave@example.com")

	// Only the two newest of carol's three snapshots count.
	assert.Equal(t, profile.Known(3), res.Changes["carol@example.com"][0].ProblemsDelta)
	assert.Equal(t, 5+3, res.TotalProblems)
	assert.Equal(t, 0+2, res.TotalContests)
}

func TestComputeChanges_UnknownSideMakesUnknownDelta(t *testing.T) {
	f := newFixture(t)
	alice := f.subscriber("alice@example.com")
	f.profile(alice, profile.LeetCode,
		profile.Stats{ProblemsSolved: profile.Known(10)},
		profile.Stats{ProblemsSolved: profile.Known(12), Rating: profile.Known(1500)},
	)

	res, err := ComputeChanges(context.Background(), f.db, []*subscriber.Subscriber{alice})
	require.NoError(t, err)

	c := res.Changes["alice@example.com"][0]
	assert.Equal(t, profile.Known(2), c.ProblemsDelta)
	assert.False(t, c.RatingDelta.IsKnown())
	assert.False(t, c.ContestsDelta.IsKnown())
	assert.Equal(t, 2, res.TotalProblems)
	assert.Equal(t, 0, res.TotalContests)
}
