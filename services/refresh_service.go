package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"skillTrackerAPI/internal/fetcher"
	"skillTrackerAPI/internal/ranking"
	"skillTrackerAPI/internal/ratelimit"
	"skillTrackerAPI/internal/store"
	"skillTrackerAPI/internal/subscriber"
	"skillTrackerAPI/internal/types/profile"
)

type RefreshService struct {
	db        store.Store
	scheduler *fetcher.Scheduler
	rankings  *ranking.Cache
	limiter   *ratelimit.Limiter
	logger    *zap.Logger
	now       func() time.Time
}

func NewRefreshService(db store.Store, scheduler *fetcher.Scheduler, rankings *ranking.Cache, limiter *ratelimit.Limiter, logger *zap.Logger) *RefreshService {
	return &RefreshService{
		db:        db,
		scheduler: scheduler,
		rankings:  rankings,
		limiter:   limiter,
		logger:    logger,
		now:       time.Now,
	}
}

// RefreshOutcome is the result of refreshing one profile. Source tells
// whether the profile got live stats or kept its stored ones.
type RefreshOutcome struct {
	Profile *profile.Profile `json:"profile"`
	Source  fetcher.Source   `json:"source"`
}

// RefreshAll fetches every profile concurrently, then writes the live results
// in one pass and invalidates the rankings. Individual fetch failures keep
// the stored stats; only a storage failure is returned.
func (s *RefreshService) RefreshAll(ctx context.Context) (fetcher.Summary, error) {
	profiles, err := s.db.ListProfiles(ctx)
	if err != nil {
		return fetcher.Summary{}, fmt.Errorf("failed to list profiles: %w", err)
	}

	results := s.scheduler.RefreshAll(ctx, profiles)
	summary := fetcher.Summarize(results)

	mergeErr := s.Merge(ctx, results)
	s.invalidate(ctx)
	if mergeErr != nil {
		return summary, mergeErr
	}
	return summary, nil
}

// Merge persists live results. Fallback and not-found results are left
// untouched so their stats and updated_at stay as they were.
func (s *RefreshService) Merge(ctx context.Context, results []fetcher.Result) error {
	now := s.now()
	var errs []error
	for _, r := range results {
		if !r.Live() {
			continue
		}
		if err := s.db.UpdateProfileStats(ctx, r.ProfileID, r.Stats, now); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				// Deleted while the batch was running.
				continue
			}
			s.logger.Error("Failed to persist refreshed stats", zap.Int64("profile_id", r.ProfileID), zap.Error(err))
			errs = append(errs, fmt.Errorf("profile %d: %w", r.ProfileID, err))
		}
	}
	return errors.Join(errs...)
}

// RefreshProfile refreshes one profile owned by the caller, at most once per
// window per caller.
func (s *RefreshService) RefreshProfile(ctx context.Context, sub *subscriber.Subscriber, profileID int64) (*RefreshOutcome, error) {
	p, err := s.db.GetProfile(ctx, profileID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	if p.SubscriberID != sub.ID {
		return nil, ErrProfileNotFound
	}

	decision := s.limiter.TryAcquire(ctx, profileID, sub.Email)
	if !decision.Allowed {
		s.logger.Info("Refresh rate limited",
			zap.Int64("profile_id", profileID),
			zap.String("subscriber", sub.Email),
			zap.Duration("retry_after", decision.RetryAfter))
		return nil, &RateLimitedError{RetryAfter: decision.RetryAfter}
	}

	res := s.scheduler.FetchOne(ctx, p)
	if !res.Live() {
		return &RefreshOutcome{Profile: p, Source: res.Source}, nil
	}

	now := s.now()
	if err := s.db.UpdateProfileStats(ctx, p.ID, res.Stats, now); err != nil {
		return nil, fmt.Errorf("failed to save refreshed profile: %w", err)
	}
	p.Stats, p.UpdatedAt = res.Stats, now
	s.invalidate(ctx)

	s.logger.Info("Profile refreshed",
		zap.Int64("profile_id", p.ID),
		zap.String("platform", string(p.Platform)),
		zap.String("subscriber", sub.Email))
	return &RefreshOutcome{Profile: p, Source: res.Source}, nil
}

func (s *RefreshService) invalidate(ctx context.Context) {
	if err := s.rankings.Invalidate(ctx); err != nil {
		s.logger.Error("Ranking invalidation failed", zap.Error(err))
	}
}
