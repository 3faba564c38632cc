// Package sources holds one adapter per competitive-programming platform.
//
// An adapter answers with one of three outcomes: the user's stats (any metric
// may be unknown), ErrUserNotFound, or any other error, which callers treat
// as transient.
package sources

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"skillTrackerAPI/internal/types/profile"
)

var ErrUserNotFound = errors.New("user not found on platform")

type Adapter interface {
	Platform() profile.Platform
	Fetch(ctx context.Context, username string) (profile.Stats, error)
}

// Registry maps each platform to the adapter that serves it.
type Registry struct {
	adapters map[profile.Platform]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[profile.Platform]Adapter, len(adapters))}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

func (r *Registry) Register(a Adapter) {
	r.adapters[a.Platform()] = a
}

func (r *Registry) Get(p profile.Platform) (Adapter, error) {
	a, ok := r.adapters[p]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for platform %q", p)
	}
	return a, nil
}

type Options struct {
	Timeout time.Duration
	RPS     float64
	Burst   int
	Client  *http.Client
}

func (o Options) httpClient() *http.Client {
	if o.Client != nil {
		return o.Client
	}
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

func (o Options) limiter() *rate.Limiter {
	if o.RPS <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	burst := o.Burst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(o.RPS), burst)
}

// NewDefaultRegistry registers the LeetCode, Codeforces and CodeChef adapters.
func NewDefaultRegistry(opts Options) *Registry {
	return NewRegistry(
		NewLeetCode(opts),
		NewCodeforces(opts),
		NewCodeChef(opts),
	)
}

// statusError is returned for unexpected upstream HTTP statuses.
type statusError struct {
	url  string
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s returned HTTP %d", e.url, e.code)
}
