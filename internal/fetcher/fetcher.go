// Package fetcher pulls live stats from source adapters with bounded retries
// and fans batch refreshes out over a worker pool.
package fetcher

import (
	"context"
	"errors"
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"skillTrackerAPI/internal/sources"
	"skillTrackerAPI/internal/telemetry"
	"skillTrackerAPI/internal/types/profile"
)

type Status string

const (
	StatusOK          Status = "ok"
	StatusNotFound    Status = "not_found"
	StatusUnavailable Status = "unavailable"
)

// Outcome is what one retried fetch produced. When Status is unavailable the
// stats are all unknown and Err holds the last adapter error.
type Outcome struct {
	Stats    profile.Stats
	Status   Status
	Attempts int
	Err      error
}

type Config struct {
	MaxRetries  int
	BackoffBase int
	BackoffUnit time.Duration
	CallTimeout time.Duration
}

type Fetcher struct {
	cfg     Config
	logger  *zap.Logger
	metrics *telemetry.Metrics
	sleep   func(ctx context.Context, d time.Duration) error
}

func New(cfg Config, logger *zap.Logger, metrics *telemetry.Metrics) *Fetcher {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 2
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{cfg: cfg, logger: logger, metrics: metrics, sleep: sleepCtx}
}

// WithSleep replaces the backoff sleeper.
func (f *Fetcher) WithSleep(sleep func(ctx context.Context, d time.Duration) error) *Fetcher {
	f.sleep = sleep
	return f
}

// Backoff is the pause after the given failed attempt (1-based).
func (f *Fetcher) Backoff(attempt int) time.Duration {
	return time.Duration(math.Pow(float64(f.cfg.BackoffBase), float64(attempt-1))) * f.cfg.BackoffUnit
}

// Fetch calls the adapter at most MaxRetries times. It never returns an error:
// a not-found answer stops immediately, and exhausting every attempt yields
// StatusUnavailable with all metrics unknown.
func (f *Fetcher) Fetch(ctx context.Context, adapter sources.Adapter, username string) Outcome {
	platform := string(adapter.Platform())
	var lastErr error
	attempts := 0

	for attempt := 1; attempt <= f.cfg.MaxRetries; attempt++ {
		attempts = attempt
		stats, err := f.attempt(ctx, adapter, username, attempt)
		if err == nil {
			f.metrics.AdapterAttempt(platform, "ok")
			return Outcome{Stats: stats, Status: StatusOK, Attempts: attempt}
		}
		if errors.Is(err, sources.ErrUserNotFound) {
			f.metrics.AdapterAttempt(platform, "not_found")
			return Outcome{Status: StatusNotFound, Attempts: attempt, Err: err}
		}

		f.metrics.AdapterAttempt(platform, "error")
		lastErr = err
		f.logger.Warn("Adapter attempt failed",
			zap.String("platform", platform),
			zap.String("username", username),
			zap.Int("attempt", attempt),
			zap.Error(err))

		if attempt == f.cfg.MaxRetries {
			break
		}
		if err := f.sleep(ctx, f.Backoff(attempt)); err != nil {
			lastErr = err
			break
		}
	}

	return Outcome{
		Stats:    profile.Stats{Rating: profile.Unknown, ProblemsSolved: profile.Unknown, ContestsAttended: profile.Unknown},
		Status:   StatusUnavailable,
		Attempts: attempts,
		Err:      lastErr,
	}
}

func (f *Fetcher) attempt(ctx context.Context, adapter sources.Adapter, username string, n int) (profile.Stats, error) {
	ctx, span := telemetry.StartSpan(ctx, "adapter.fetch",
		attribute.String("platform", string(adapter.Platform())),
		attribute.String("username", username),
		attribute.Int("attempt", n))

	if f.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.cfg.CallTimeout)
		defer cancel()
	}

	stats, err := adapter.Fetch(ctx, username)
	telemetry.EndSpan(span, err)
	return stats, err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
