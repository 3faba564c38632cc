package ranking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"skillTrackerAPI/internal/cache"
	"skillTrackerAPI/internal/types/profile"
)

type mockLoader struct {
	mock.Mock
}

func (m *mockLoader) ListProfilesByFilter(ctx context.Context, filter profile.Filter) ([]*profile.Profile, error) {
	args := m.Called(ctx, filter)
	if v := args.Get(0); v != nil {
		return v.([]*profile.Profile), args.Error(1)
	}
	return nil, args.Error(1)
}

func prof(id int64, rating profile.Metric, problems int) *profile.Profile {
	return &profile.Profile{ID: id, Stats: profile.Stats{Rating: rating, ProblemsSolved: profile.Known(problems)}}
}

func TestBuild_StableDescending(t *testing.T) {
	profiles := []*profile.Profile{
		prof(1, profile.Known(1500), 10),
		prof(2, profile.Unknown, 50),
		prof(3, profile.Known(1800), 10),
		prof(4, profile.Known(1500), 30),
		prof(5, profile.Known(1500), 20),
	}

	r := Build(profiles, profile.SortByRating)
	assert.Equal(t, []int64{3, 1, 4, 5, 2}, r.OrderedIDs)
	assert.Equal(t, map[int64]int{3: 1, 1: 2, 4: 3, 5: 4, 2: 5}, r.RankMap)
	assert.Equal(t, 5, r.Total())

	byProblems := Build(profiles, profile.SortByProblemsSolved)
	assert.Equal(t, []int64{2, 4, 5, 1, 3}, byProblems.OrderedIDs)

	// Input is not reordered.
	assert.Equal(t, int64(1), profiles[0].ID)
}

func TestCache_HitAfterMiss(t *testing.T) {
	ctx := context.Background()
	kv := cache.NewMemory(nil)
	defer kv.Close()

	loader := &mockLoader{}
	filter := profile.Filter{Platform: profile.LeetCode}
	loader.On("ListProfilesByFilter", mock.Anything, filter).
		Return([]*profile.Profile{prof(1, profile.Known(100), 1), prof(2, profile.Known(200), 1)}, nil).Once()

	c := NewCache(kv, loader, time.Hour, nil, nil)

	first, err := c.GetRanking(ctx, filter, profile.SortByRating)
	require.NoError(t, err)
	second, err := c.GetRanking(ctx, filter, profile.SortByRating)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	rank, ok := second.Rank(2)
	assert.True(t, ok)
	assert.Equal(t, 1, rank)
	loader.AssertExpectations(t)
}

func TestCache_InvalidateRebuildsEveryKey(t *testing.T) {
	ctx := context.Background()
	kv := cache.NewMemory(nil)
	defer kv.Close()

	loader := &mockLoader{}
	before := []*profile.Profile{prof(1, profile.Known(100), 5), prof(2, profile.Known(200), 1)}
	after := []*profile.Profile{prof(1, profile.Known(300), 5), prof(2, profile.Known(200), 1)}

	all := profile.Filter{}
	group := profile.Filter{Group: "uni"}
	loader.On("ListProfilesByFilter", mock.Anything, all).Return(before, nil).Once()
	loader.On("ListProfilesByFilter", mock.Anything, group).Return(before, nil).Once()

	c := NewCache(kv, loader, time.Hour, nil, nil)
	r, _ := c.GetRanking(ctx, all, profile.SortByRating)
	assert.Equal(t, []int64{2, 1}, r.OrderedIDs)
	_, _ = c.GetRanking(ctx, group, profile.SortByRating)

	require.NoError(t, c.Invalidate(ctx))

	loader.On("ListProfilesByFilter", mock.Anything, all).Return(after, nil).Once()
	loader.On("ListProfilesByFilter", mock.Anything, group).Return(after, nil).Once()

	r, _ = c.GetRanking(ctx, all, profile.SortByRating)
	assert.Equal(t, []int64{1, 2}, r.OrderedIDs)
	r, _ = c.GetRanking(ctx, group, profile.SortByRating)
	assert.Equal(t, []int64{1, 2}, r.OrderedIDs)
	loader.AssertExpectations(t)
}

type brokenKV struct{ cache.Store }

func (brokenKV) Get(ctx context.Context, key string) ([]byte, error) {
	return nil, errors.New("redis down")
}
func (brokenKV) Set(ctx context.Context, key string, v []byte, ttl time.Duration) error {
	return errors.New("redis down")
}

func TestCache_DegradesWhenStoreFails(t *testing.T) {
	loader := &mockLoader{}
	loader.On("ListProfilesByFilter", mock.Anything, profile.Filter{}).
		Return([]*profile.Profile{prof(7, profile.Known(1), 1)}, nil)

	c := NewCache(brokenKV{}, loader, time.Hour, nil, nil)
	r, err := c.GetRanking(context.Background(), profile.Filter{}, profile.SortByRating)
	require.NoError(t, err)
	assert.Equal(t, []int64{7}, r.OrderedIDs)
}

func TestKey_DistinctPerCombination(t *testing.T) {
	a := Key(profile.Filter{}, profile.SortByRating, 0)
	b := Key(profile.Filter{Group: "uni"}, profile.SortByRating, 0)
	c := Key(profile.Filter{Platform: profile.LeetCode}, profile.SortByRating, 0)
	d := Key(profile.Filter{}, profile.SortByProblemsSolved, 0)
	e := Key(profile.Filter{}, profile.SortByRating, 1)
	assert.Len(t, map[string]bool{a: true, b: true, c: true, d: true, e: true}, 5)
	for _, k := range []string{a, b, c, d, e} {
		assert.Contains(t, k, keyPrefix)
	}
}

func TestCache_RebuildOverlappingInvalidateIsNotCached(t *testing.T) {
	ctx := context.Background()
	kv := cache.NewMemory(nil)
	defer kv.Close()

	filter := profile.Filter{}
	before := []*profile.Profile{prof(1, profile.Known(200), 1), prof(2, profile.Known(100), 1)}
	after := []*profile.Profile{prof(1, profile.Known(100), 1), prof(2, profile.Known(300), 1)}

	var c *Cache
	loader := &mockLoader{}
	// The stats change and rankings are invalidated while the first rebuild
	// is still holding the old rows.
	loader.On("ListProfilesByFilter", mock.Anything, filter).
		Run(func(mock.Arguments) { require.NoError(t, c.Invalidate(ctx)) }).
		Return(before, nil).Once()
	loader.On("ListProfilesByFilter", mock.Anything, filter).Return(after, nil).Once()

	c = NewCache(kv, loader, time.Hour, nil, nil)

	r, err := c.GetRanking(ctx, filter, profile.SortByRating)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, r.OrderedIDs)

	r, err = c.GetRanking(ctx, filter, profile.SortByRating)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 1}, r.OrderedIDs)
	loader.AssertExpectations(t)
}
