package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"skillTrackerAPI/internal/types/leaderboard"
	"skillTrackerAPI/internal/types/profile"
	"skillTrackerAPI/services"
)

type LeaderboardHandler struct {
	leaderboardService  *services.LeaderboardService
	subscriptionService *services.SubscriptionService
	refreshService      *services.RefreshService
	logger              *zap.Logger
}

func NewLeaderboardHandler(leaderboardService *services.LeaderboardService, subscriptionService *services.SubscriptionService, refreshService *services.RefreshService, logger *zap.Logger) *LeaderboardHandler {
	return &LeaderboardHandler{
		leaderboardService:  leaderboardService,
		subscriptionService: subscriptionService,
		refreshService:      refreshService,
		logger:              logger,
	}
}

func (h *LeaderboardHandler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	sub, ok := resolveCaller(ctx, w, h.subscriptionService, h.logger)
	if !ok {
		return
	}

	q := r.URL.Query()
	page, err := strconv.Atoi(q.Get("page"))
	if err != nil {
		page = 1
	}

	board, err := h.leaderboardService.Leaderboard(ctx, sub, leaderboard.Query{
		SortBy:   profile.ParseSortField(q.Get("sort_by")),
		Platform: q.Get("platform"),
		Group:    q.Get("group"),
		Page:     page,
	})
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, board)
}

// RefreshProfile refreshes one of the caller's profiles on demand.
func (h *LeaderboardHandler) RefreshProfile(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 4*requestTimeout)
	defer cancel()

	sub, ok := resolveCaller(ctx, w, h.subscriptionService, h.logger)
	if !ok {
		return
	}

	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid profile id")
		return
	}

	out, err := h.refreshService.RefreshProfile(ctx, sub, id)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, out)
}

// PublicStats serves stored stats for ?leetcode=&codechef=&codeforces=.
func (h *LeaderboardHandler) PublicStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	q := r.URL.Query()
	usernames := make(map[string]string)
	for _, p := range profile.Platforms() {
		key := strings.ToLower(string(p))
		usernames[key] = q.Get(key)
	}

	stats, err := h.leaderboardService.PublicStats(ctx, usernames)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, stats)
}
