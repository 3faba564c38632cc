package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"skillTrackerAPI/internal/cache"
	"skillTrackerAPI/internal/fetcher"
	"skillTrackerAPI/internal/ranking"
	"skillTrackerAPI/internal/ratelimit"
	"skillTrackerAPI/internal/sources"
	"skillTrackerAPI/internal/store"
	"skillTrackerAPI/internal/subscriber"
	"skillTrackerAPI/internal/types/profile"
	"skillTrackerAPI/internal/workers"
)

// stubAdapter answers from a fixed table. Usernames missing from the table
// do not exist; usernames listed in down fail transiently.
type stubAdapter struct {
	platform profile.Platform

	mu    sync.Mutex
	users map[string]profile.Stats
	down  map[string]bool
	calls int
}

func newStub(platform profile.Platform) *stubAdapter {
	return &stubAdapter{platform: platform, users: map[string]profile.Stats{}, down: map[string]bool{}}
}

func (a *stubAdapter) Platform() profile.Platform { return a.platform }

func (a *stubAdapter) Fetch(ctx context.Context, username string) (profile.Stats, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if a.down[username] {
		return profile.Stats{}, errors.New("503 from upstream")
	}
	s, ok := a.users[username]
	if !ok {
		return profile.Stats{}, sources.ErrUserNotFound
	}
	return s, nil
}

func (a *stubAdapter) set(username string, s profile.Stats) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.users[username] = s
}

func (a *stubAdapter) setDown(username string, down bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.down[username] = down
}

type sentMail struct {
	To, Subject, HTML string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	fail map[string]bool
}

func (m *fakeMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail[to] {
		return errors.New("mailbox unavailable")
	}
	m.sent = append(m.sent, sentMail{To: to, Subject: subject, HTML: htmlBody})
	return nil
}

func (m *fakeMailer) recipients() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.sent))
	for _, s := range m.sent {
		out = append(out, s.To)
	}
	return out
}

type fakePusher struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (p *fakePusher) SendPush(ctx context.Context, devices []*subscriber.Device, title, body string, data map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.err
}

func stats(rating, problems, contests int) profile.Stats {
	return profile.Stats{
		Rating:           profile.Known(rating),
		ProblemsSolved:   profile.Known(problems),
		ContestsAttended: profile.Known(contests),
	}
}

type harness struct {
	db       *store.Memory
	kv       *cache.Memory
	lc       *stubAdapter
	cf       *stubAdapter
	cc       *stubAdapter
	mailer   *fakeMailer
	rankings *ranking.Cache
	clock    time.Time

	subs    *SubscriptionService
	refresh *RefreshService
	boards  *LeaderboardService
	notify  *NotificationService
	reports *ReportService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := zap.NewNop()

	h := &harness{
		db:     store.NewMemory(),
		kv:     cache.NewMemory(logger),
		lc:     newStub(profile.LeetCode),
		cf:     newStub(profile.Codeforces),
		cc:     newStub(profile.CodeChef),
		mailer: &fakeMailer{fail: map[string]bool{}},
		clock:  time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC),
	}
	t.Cleanup(func() { _ = h.kv.Close() })

	registry := sources.NewRegistry(h.lc, h.cf, h.cc)
	f := fetcher.New(fetcher.Config{MaxRetries: 2, BackoffBase: 2, BackoffUnit: time.Millisecond}, logger, nil).
		WithSleep(func(ctx context.Context, d time.Duration) error { return nil })
	pool := workers.NewPool(workers.Config{Name: "fetch", Size: 4, Logger: logger})
	scheduler := fetcher.NewScheduler(f, registry, pool, logger, nil)

	h.rankings = ranking.NewCache(h.kv, h.db, time.Hour, logger, nil)
	limiter := ratelimit.New(h.kv, ratelimit.Config{Window: time.Minute}, logger, nil).
		WithClock(func() time.Time { return h.clock })

	now := func() time.Time { return h.clock }

	h.subs = NewSubscriptionService(h.db, registry, f, h.rankings, logger)
	h.subs.now = now
	h.refresh = NewRefreshService(h.db, scheduler, h.rankings, limiter, logger)
	h.refresh.now = now
	h.boards = NewLeaderboardService(h.db, h.rankings, 10, logger)
	h.notify = NewNotificationService(h.db, h.mailer, logger, nil)
	emailPool := workers.NewPool(workers.Config{Name: "email", Size: 2, Logger: logger})
	h.reports = NewReportService(h.db, h.refresh, scheduler, h.notify, emailPool, logger, nil)
	h.reports.now = now
	return h
}

// subscribe registers email with one profile, making the account exist upstream first.
func (h *harness) subscribe(t *testing.T, email string, adapter *stubAdapter, username string, s profile.Stats) (*subscriber.Subscriber, *profile.Profile) {
	t.Helper()
	adapter.set(username, s)
	sub, p, err := h.subs.Subscribe(context.Background(), "user_"+email, &subscriber.SubscribeRequest{
		Email:        email,
		PlatformName: string(adapter.platform),
		Username:     username,
	})
	require.NoError(t, err)
	return sub, p
}
