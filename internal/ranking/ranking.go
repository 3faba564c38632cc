// Package ranking builds ordered leaderboards and caches them in the shared
// key-value store, one entry per (group, platform, sort) combination.
package ranking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"skillTrackerAPI/internal/cache"
	"skillTrackerAPI/internal/telemetry"
	"skillTrackerAPI/internal/types/profile"
)

const (
	keyPrefix = "leaderboard:"
	// genKey sits outside keyPrefix so invalidation never resets it.
	genKey    = "ranking_generation"
)

// Ranking is an ordered list of profile ids plus each id's 1-based rank.
type Ranking struct {
	OrderedIDs []int64       `json:"ordered_ids"`
	RankMap    map[int64]int `json:"rank_map"`
}

func (r *Ranking) Rank(profileID int64) (int, bool) {
	rank, ok := r.RankMap[profileID]
	return rank, ok
}

func (r *Ranking) Total() int { return len(r.OrderedIDs) }

// Build sorts profiles descending by the chosen field. Equal values keep their
// input order and unknown values sink below every known one.
func Build(profiles []*profile.Profile, field profile.SortField) *Ranking {
	ordered := make([]*profile.Profile, len(profiles))
	copy(ordered, profiles)
	sort.SliceStable(ordered, func(i, j int) bool {
		return field.Value(ordered[i].Stats).Greater(field.Value(ordered[j].Stats))
	})

	r := &Ranking{
		OrderedIDs: make([]int64, len(ordered)),
		RankMap:    make(map[int64]int, len(ordered)),
	}
	for i, p := range ordered {
		r.OrderedIDs[i] = p.ID
		r.RankMap[p.ID] = i + 1
	}
	return r
}

// Key is the cache key of one filter and sort combination within a
// generation. Invalidate starts a new generation.
func Key(filter profile.Filter, field profile.SortField, gen int64) string {
	return fmt.Sprintf("%sv=%d:g=%s:p=%s:s=%s", keyPrefix, gen, url.QueryEscape(filter.Group), filter.Platform, field)
}

type Loader interface {
	ListProfilesByFilter(ctx context.Context, filter profile.Filter) ([]*profile.Profile, error)
}

type Cache struct {
	kv      cache.Store
	loader  Loader
	ttl     time.Duration
	logger  *zap.Logger
	metrics *telemetry.Metrics
}

func NewCache(kv cache.Store, loader Loader, ttl time.Duration, logger *zap.Logger, metrics *telemetry.Metrics) *Cache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{kv: kv, loader: loader, ttl: ttl, logger: logger, metrics: metrics}
}

func (c *Cache) generation(ctx context.Context) (int64, error) {
	raw, err := c.kv.Get(ctx, genKey)
	if errors.Is(err, cache.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(string(raw), 10, 64)
}

// GetRanking answers from the cache, rebuilding and storing the ranking on a
// miss. A rebuild that overlaps an Invalidate is returned but not stored. A
// failing cache degrades to rebuilding on every call.
func (c *Cache) GetRanking(ctx context.Context, filter profile.Filter, field profile.SortField) (*Ranking, error) {
	gen, err := c.generation(ctx)
	if err != nil {
		c.logger.Warn("Ranking generation unreadable", zap.Error(err))
		c.metrics.RankingCache("miss")
		return c.build(ctx, filter, field)
	}
	key := Key(filter, field, gen)

	data, err := c.kv.Get(ctx, key)
	switch {
	case err == nil:
		var r Ranking
		if jerr := json.Unmarshal(data, &r); jerr == nil {
			c.metrics.RankingCache("hit")
			return &r, nil
		}
		c.logger.Warn("Discarding undecodable ranking", zap.String("key", key))
	case !errors.Is(err, cache.ErrNotFound):
		c.logger.Warn("Ranking cache read failed", zap.String("key", key), zap.Error(err))
	}
	c.metrics.RankingCache("miss")

	r, err := c.build(ctx, filter, field)
	if err != nil {
		return nil, err
	}

	if now, err := c.generation(ctx); err != nil || now != gen {
		c.logger.Debug("Rankings invalidated during rebuild, not caching", zap.String("key", key))
		return r, nil
	}
	if data, err := json.Marshal(r); err == nil {
		if err := c.kv.Set(ctx, key, data, c.ttl); err != nil {
			c.logger.Warn("Ranking cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return r, nil
}

func (c *Cache) build(ctx context.Context, filter profile.Filter, field profile.SortField) (*Ranking, error) {
	profiles, err := c.loader.ListProfilesByFilter(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to load profiles for ranking: %w", err)
	}
	return Build(profiles, field), nil
}

// Invalidate drops every cached ranking. Call it after any change to a
// profile's metrics or to the set of profiles.
func (c *Cache) Invalidate(ctx context.Context) error {
	c.metrics.RankingCache("invalidate")
	if _, err := c.kv.Incr(ctx, genKey); err != nil {
		c.logger.Error("Ranking generation bump failed", zap.Error(err))
		return fmt.Errorf("failed to invalidate rankings: %w", err)
	}
	// Entries of older generations are unreachable now; this only frees them.
	if err := c.kv.DeletePrefix(ctx, keyPrefix); err != nil {
		c.logger.Error("Ranking cache invalidation failed", zap.Error(err))
		return fmt.Errorf("failed to invalidate rankings: %w", err)
	}
	return nil
}
