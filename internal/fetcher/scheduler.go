package fetcher

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"skillTrackerAPI/internal/sources"
	"skillTrackerAPI/internal/telemetry"
	"skillTrackerAPI/internal/types/profile"
	"skillTrackerAPI/internal/workers"
)

// Source tells where a Result's stats came from.
type Source string

const (
	SourceLive     Source = "live"
	SourceFallback Source = "fallback"
	SourceNotFound Source = "not_found"
)

// Result is the transient per-profile product of a refresh. Stats always hold
// the values to show: live ones, or the profile's last known ones.
type Result struct {
	ProfileID int64
	Platform  profile.Platform
	Username  string
	Stats     profile.Stats
	Source    Source
	Attempts  int
	Err       error
}

// Live reports whether the result carries freshly fetched stats.
func (r Result) Live() bool { return r.Source == SourceLive }

type Summary struct {
	Attempted int `json:"attempted"`
	Fetched   int `json:"fetched"`
	FellBack  int `json:"fell_back"`
	NotFound  int `json:"not_found"`
}

func Summarize(results []Result) Summary {
	s := Summary{Attempted: len(results)}
	for _, r := range results {
		switch r.Source {
		case SourceLive:
			s.Fetched++
		case SourceNotFound:
			s.NotFound++
		default:
			s.FellBack++
		}
	}
	return s
}

type Scheduler struct {
	fetcher  *Fetcher
	registry *sources.Registry
	pool     *workers.Pool
	logger   *zap.Logger
	metrics  *telemetry.Metrics
}

func NewScheduler(f *Fetcher, registry *sources.Registry, pool *workers.Pool, logger *zap.Logger, metrics *telemetry.Metrics) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{fetcher: f, registry: registry, pool: pool, logger: logger, metrics: metrics}
}

// RefreshAll fetches every profile on the pool and returns exactly one result
// per profile, in completion order. It never fails as a whole and never
// writes anything; callers merge the results afterwards.
func (s *Scheduler) RefreshAll(ctx context.Context, profiles []*profile.Profile) []Result {
	ctx, span := telemetry.StartSpan(ctx, "fetcher.refresh_all", attribute.Int("profiles", len(profiles)))
	defer span.End()

	start := time.Now()
	resultsCh := make(chan Result, len(profiles))
	tasks := make([]workers.Task, 0, len(profiles))
	for _, p := range profiles {
		tasks = append(tasks, workers.Task{
			ID: strconv.FormatInt(p.ID, 10),
			Fn: func(ctx context.Context) error {
				r := s.FetchOne(ctx, p)
				resultsCh <- r
				if r.Err != nil && r.Source == SourceFallback {
					return r.Err
				}
				return nil
			},
		})
	}

	s.pool.Run(ctx, tasks)
	close(resultsCh)

	results := make([]Result, 0, len(profiles))
	for r := range resultsCh {
		results = append(results, r)
	}

	summary := Summarize(results)
	s.metrics.BatchDuration("refresh_all", time.Since(start).Seconds())
	s.logger.Info("Refresh batch finished",
		zap.Int("attempted", summary.Attempted),
		zap.Int("fetched", summary.Fetched),
		zap.Int("fell_back", summary.FellBack),
		zap.Int("not_found", summary.NotFound),
		zap.Duration("duration", time.Since(start)))
	return results
}

// FetchOne refreshes a single profile. Anything short of a live answer with at
// least one known metric falls back to the profile's stored stats.
func (s *Scheduler) FetchOne(ctx context.Context, p *profile.Profile) (res Result) {
	res = Result{
		ProfileID: p.ID,
		Platform:  p.Platform,
		Username:  p.Username,
		Stats:     p.Stats,
		Source:    SourceFallback,
	}

	defer func() {
		if r := recover(); r != nil {
			res.Stats = p.Stats
			res.Source = SourceFallback
			res.Err = fmt.Errorf("fetch panicked: %v", r)
			s.logger.Error("Profile fetch panicked",
				zap.Int64("profile_id", p.ID),
				zap.String("platform", string(p.Platform)),
				zap.Any("panic", r))
		}
		s.metrics.FetchResult(string(res.Source))
	}()

	adapter, err := s.registry.Get(p.Platform)
	if err != nil {
		res.Err = err
		s.logger.Error("No adapter for profile", zap.Int64("profile_id", p.ID), zap.Error(err))
		return res
	}

	out := s.fetcher.Fetch(ctx, adapter, p.Username)
	res.Attempts = out.Attempts

	switch {
	case out.Status == StatusNotFound:
		res.Source = SourceNotFound
		res.Err = out.Err
		s.logger.Warn("Profile username no longer exists on platform",
			zap.Int64("profile_id", p.ID),
			zap.String("platform", string(p.Platform)),
			zap.String("username", p.Username))
	case out.Status == StatusUnavailable:
		res.Err = out.Err
		s.logger.Warn("Profile fetch unavailable, keeping last known stats",
			zap.Int64("profile_id", p.ID),
			zap.String("platform", string(p.Platform)),
			zap.Error(out.Err))
	case out.Stats.AllUnknown():
		s.logger.Warn("Profile fetch returned no metrics, keeping last known stats",
			zap.Int64("profile_id", p.ID),
			zap.String("platform", string(p.Platform)))
	default:
		res.Stats = out.Stats
		res.Source = SourceLive
	}
	return res
}
