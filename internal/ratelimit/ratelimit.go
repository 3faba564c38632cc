// Package ratelimit throttles expensive single-profile refreshes per
// (profile, requester) pair.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"skillTrackerAPI/internal/cache"
	"skillTrackerAPI/internal/telemetry"
)

const (
	keyPrefix       = "refresh_lock:"
	acquireAttempts = 3
)

type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds the wait up to whole seconds.
func (d Decision) RetryAfterSeconds() int {
	secs := int(d.RetryAfter / time.Second)
	if d.RetryAfter%time.Second != 0 {
		secs++
	}
	return secs
}

type Config struct {
	Window time.Duration
	// FailOpen allows refreshes while the backing store is unreachable.
	FailOpen bool
}

type Limiter struct {
	kv      cache.Store
	cfg     Config
	now     func() time.Time
	logger  *zap.Logger
	metrics *telemetry.Metrics
}

func New(kv cache.Store, cfg Config, logger *zap.Logger, metrics *telemetry.Metrics) *Limiter {
	if cfg.Window < time.Second {
		cfg.Window = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Limiter{kv: kv, cfg: cfg, now: time.Now, logger: logger, metrics: metrics}
}

// WithClock replaces the time source.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

func Key(profileID int64, requester string) string {
	return fmt.Sprintf("%s%d:%s", keyPrefix, profileID, requester)
}

// TryAcquire allows at most one refresh of a profile per requester per window.
// When allowed, the acquisition time is recorded with a TTL of one window.
// A lock whose stamp has aged out is taken over with a compare-and-swap, so
// concurrent callers racing for the same stale lock admit only one.
func (l *Limiter) TryAcquire(ctx context.Context, profileID int64, requester string) Decision {
	key := Key(profileID, requester)
	now := l.now().Unix()
	window := int64(l.cfg.Window / time.Second)
	stamp := []byte(strconv.FormatInt(now, 10))

	for attempt := 0; attempt < acquireAttempts; attempt++ {
		acquired, err := l.kv.SetNX(ctx, key, stamp, l.cfg.Window)
		if err != nil {
			return l.storeFailure(key, err)
		}
		if acquired {
			return l.allow()
		}

		raw, err := l.kv.Get(ctx, key)
		if errors.Is(err, cache.ErrNotFound) {
			continue
		}
		if err != nil {
			return l.storeFailure(key, err)
		}
		if last, perr := strconv.ParseInt(string(raw), 10, 64); perr == nil {
			if remaining := window - (now - last); remaining > 0 {
				return l.deny(time.Duration(remaining) * time.Second)
			}
		}

		// The lock is stale or holds garbage.
		swapped, err := l.kv.CompareAndSwap(ctx, key, raw, stamp, l.cfg.Window)
		if err != nil {
			return l.storeFailure(key, err)
		}
		if swapped {
			return l.allow()
		}
	}
	return l.deny(l.cfg.Window)
}

func (l *Limiter) deny(retryAfter time.Duration) Decision {
	l.metrics.RefreshDecision("denied")
	return Decision{RetryAfter: retryAfter}
}

func (l *Limiter) allow() Decision {
	l.metrics.RefreshDecision("allowed")
	return Decision{Allowed: true}
}

func (l *Limiter) storeFailure(key string, err error) Decision {
	l.logger.Error("Refresh limiter store unavailable",
		zap.String("key", key),
		zap.Bool("fail_open", l.cfg.FailOpen),
		zap.Error(err))
	if l.cfg.FailOpen {
		l.metrics.RefreshDecision("error_allowed")
		return Decision{Allowed: true}
	}
	l.metrics.RefreshDecision("error_denied")
	return Decision{RetryAfter: l.cfg.Window}
}
