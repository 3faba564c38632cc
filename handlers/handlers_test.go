package handlers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"skillTrackerAPI/internal/cache"
	"skillTrackerAPI/internal/fetcher"
	"skillTrackerAPI/internal/notification"
	"skillTrackerAPI/internal/ranking"
	"skillTrackerAPI/internal/ratelimit"
	"skillTrackerAPI/internal/sources"
	"skillTrackerAPI/internal/store"
	"skillTrackerAPI/internal/types/profile"
	"skillTrackerAPI/internal/workers"
	"skillTrackerAPI/middleware"
	"skillTrackerAPI/services"
)

type staticAdapter struct {
	platform profile.Platform
	users    map[string]profile.Stats
}

func (a staticAdapter) Platform() profile.Platform { return a.platform }

func (a staticAdapter) Fetch(ctx context.Context, username string) (profile.Stats, error) {
	s, ok := a.users[username]
	if !ok {
		return profile.Stats{}, sources.ErrUserNotFound
	}
	return s, nil
}

const webhookSecret = "whsec_" + "c2VjcmV0LWtleS1mb3ItdGVzdHM="

type testServer struct {
	router *mux.Router
	db     *store.Memory
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zap.NewNop()
	db := store.NewMemory()
	kv := cache.NewMemory(logger)
	t.Cleanup(func() { _ = kv.Close() })

	lc := staticAdapter{platform: profile.LeetCode, users: map[string]profile.Stats{
		"alice": {Rating: profile.Known(1500), ProblemsSolved: profile.Known(100), ContestsAttended: profile.Known(3)},
		"bob":   {Rating: profile.Known(1600), ProblemsSolved: profile.Known(90), ContestsAttended: profile.Known(5)},
	}}
	registry := sources.NewRegistry(lc)
	f := fetcher.New(fetcher.Config{MaxRetries: 1, BackoffBase: 2, BackoffUnit: time.Millisecond}, logger, nil)
	pool := workers.NewPool(workers.Config{Name: "fetch", Size: 2})
	scheduler := fetcher.NewScheduler(f, registry, pool, logger, nil)
	rankings := ranking.NewCache(kv, db, time.Hour, logger, nil)
	limiter := ratelimit.New(kv, ratelimit.Config{Window: time.Minute}, logger, nil)

	subs := services.NewSubscriptionService(db, registry, f, rankings, logger)
	refresh := services.NewRefreshService(db, scheduler, rankings, limiter, logger)
	boards := services.NewLeaderboardService(db, rankings, 10, logger)
	notify := services.NewNotificationService(db, notification.NewLogMailer(logger), logger, nil)
	reports := services.NewReportService(db, refresh, scheduler, notify, workers.NewPool(workers.Config{Name: "email", Size: 1}), logger, nil)

	subH := NewSubscriptionHandler(subs, logger)
	boardH := NewLeaderboardHandler(boards, subs, refresh, logger)
	notifyH := NewNotificationHandler(notify, reports, subs, logger)
	jobsH := NewJobsHandler(refresh, reports, time.Minute, logger)
	hookH := NewWebhookHandler(subs, webhookSecret, logger)

	// Tests authenticate with "Bearer <subject>".
	auth := middleware.ClerkAuthMiddleware(func(ctx context.Context, token string) (string, error) {
		return token, nil
	}, logger)

	r := mux.NewRouter()
	r.HandleFunc("/health", NewHealthHandler(map[string]Pinger{"store": db, "cache": kv}).Health).Methods("GET")
	r.HandleFunc("/api/v1/stats", boardH.PublicStats).Methods("GET")
	r.HandleFunc("/webhooks/clerk", hookH.HandleClerkWebhook).Methods("POST")

	jobs := r.PathPrefix("/api/v1/jobs").Subrouter()
	jobs.Use(middleware.SharedSecretMiddleware("X-Job-Secret", "s3cret"))
	jobs.HandleFunc("/fetch-leaderboard", jobsH.FetchLeaderboard).Methods("POST")

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(auth)
	api.HandleFunc("/subscribe", subH.Subscribe).Methods("POST")
	api.HandleFunc("/unsubscribe", subH.Unsubscribe).Methods("POST")
	api.HandleFunc("/me/profiles", subH.MyProfiles).Methods("GET")
	api.HandleFunc("/me/profiles/{id:[0-9]+}/refresh", boardH.RefreshProfile).Methods("POST")
	api.HandleFunc("/me/group", subH.GroupAction).Methods("POST")
	api.HandleFunc("/me/devices", notifyH.RegisterDevice).Methods("POST")
	api.HandleFunc("/leaderboard", boardH.GetLeaderboard).Methods("GET")

	return &testServer{router: r, db: db}
}

func (s *testServer) do(t *testing.T, method, path, subject string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if subject != "" {
		req.Header.Set("Authorization", "Bearer "+subject)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestSubscribeFlow(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, "POST", "/api/v1/subscribe", "", map[string]string{"email": "a@example.com"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, "POST", "/api/v1/subscribe", "user_a", map[string]string{
		"email": "a@example.com", "platform_name": "LeetCode", "username": "alice",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, "POST", "/api/v1/subscribe", "user_b", map[string]string{
		"email": "b@example.com", "platform_name": "LeetCode", "username": "alice",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, "POST", "/api/v1/subscribe", "user_b", map[string]string{
		"email": "b@example.com", "platform_name": "LeetCode", "username": "ghost",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, "GET", "/api/v1/me/profiles", "user_a", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	profiles := decode(t, rec)["profiles"].([]interface{})
	assert.Len(t, profiles, 1)

	rec = s.do(t, "GET", "/api/v1/me/profiles", "user_nobody", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRefreshProfile_RateLimitHeader(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, "POST", "/api/v1/subscribe", "user_a", map[string]string{
		"email": "a@example.com", "platform_name": "LeetCode", "username": "alice",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := int64(decode(t, rec)["profile"].(map[string]interface{})["id"].(float64))
	path := "/api/v1/me/profiles/" + strconv.FormatInt(id, 10) + "/refresh"

	rec = s.do(t, "POST", path, "user_a", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "live", decode(t, rec)["source"])

	rec = s.do(t, "POST", path, "user_a", nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Contains(t, decode(t, rec)["detail"], "You have been rate limited.")
}

func TestLeaderboardAndGroupActions(t *testing.T) {
	s := newTestServer(t)
	for subject, user := range map[string]string{"user_a": "alice", "user_b": "bob"} {
		rec := s.do(t, "POST", "/api/v1/subscribe", subject, map[string]string{
			"email": user + "@example.com", "platform_name": "LeetCode", "username": user,
		})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := s.do(t, "POST", "/api/v1/me/group", "user_a", map[string]string{"action": "create_group", "group_name": "team"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "joined", decode(t, rec)["status"])

	rec = s.do(t, "POST", "/api/v1/me/group", "user_b", map[string]string{"action": "join_group", "existing_group_name": "nope"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, "GET", "/api/v1/leaderboard?group=team", "user_a", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	board := decode(t, rec)
	assert.Len(t, board["results"], 1)

	rec = s.do(t, "GET", "/api/v1/leaderboard?page=abc", "user_a", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	board = decode(t, rec)
	assert.Equal(t, float64(1), board["page"])
	results := board["results"].([]interface{})
	require.Len(t, results, 2)
	assert.Equal(t, "bob", results[0].(map[string]interface{})["username"])

	rec = s.do(t, "GET", "/api/v1/leaderboard?platform=atcoder", "user_a", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPublicStatsAndHealth(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, "POST", "/api/v1/subscribe", "user_a", map[string]string{
		"email": "a@example.com", "platform_name": "LeetCode", "username": "alice",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, "GET", "/api/v1/stats?leetcode=alice&codeforces=tourist", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, "ok", out["leetcode"].(map[string]interface{})["status"])
	assert.Equal(t, "not_found", out["codeforces"].(map[string]interface{})["status"])
	assert.Equal(t, "no_username", out["codechef"].(map[string]interface{})["status"])

	rec = s.do(t, "GET", "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestJobsRequireSecret(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, "POST", "/api/v1/jobs/fetch-leaderboard", "", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest("POST", "/api/v1/jobs/fetch-leaderboard", nil)
	req.Header.Set("X-Job-Secret", "s3cret")
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), decode(t, rec)["attempted"])
}

func signWebhook(t *testing.T, id string, ts time.Time, body []byte) http.Header {
	t.Helper()
	key, err := base64.StdEncoding.DecodeString(webhookSecret[len("whsec_"):])
	require.NoError(t, err)
	stamp := strconv.FormatInt(ts.Unix(), 10)
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(id + "." + stamp + "."))
	mac.Write(body)

	h := http.Header{}
	h.Set("svix-id", id)
	h.Set("svix-timestamp", stamp)
	h.Set("svix-signature", "v1,bogus v1,"+base64.StdEncoding.EncodeToString(mac.Sum(nil)))
	return h
}

func TestClerkWebhook_UserDeleted(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, "POST", "/api/v1/subscribe", "user_a", map[string]string{"email": "a@example.com"})
	require.Equal(t, http.StatusCreated, rec.Code)

	body := []byte(`{"type":"user.deleted","data":{"id":"user_a","deleted":true}}`)

	req := httptest.NewRequest("POST", "/webhooks/clerk", bytes.NewReader(body))
	req.Header = signWebhook(t, "msg_1", time.Now(), []byte(`{"tampered":true}`))
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest("POST", "/webhooks/clerk", bytes.NewReader(body))
	req.Header = signWebhook(t, "msg_2", time.Now(), body)
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	_, err := s.db.GetSubscriberByEmail(context.Background(), "a@example.com")
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Replays after deletion are acknowledged.
	req = httptest.NewRequest("POST", "/webhooks/clerk", bytes.NewReader(body))
	req.Header = signWebhook(t, "msg_3", time.Now(), body)
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRegisterDevice(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, "POST", "/api/v1/subscribe", "user_a", map[string]string{"email": "a@example.com"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, "POST", "/api/v1/me/devices", "user_a", map[string]string{"token": "t1", "platform": "ios"})
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, "POST", "/api/v1/me/devices", "user_a", map[string]string{"token": "t1", "platform": "palm"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
