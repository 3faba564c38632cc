package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"skillTrackerAPI/internal/subscriber"
	"skillTrackerAPI/internal/types/profile"
	"skillTrackerAPI/middleware"
	"skillTrackerAPI/services"
)

const requestTimeout = 5 * time.Second

type SubscriptionHandler struct {
	subscriptionService *services.SubscriptionService
	logger              *zap.Logger
}

func NewSubscriptionHandler(subscriptionService *services.SubscriptionService, logger *zap.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{
		subscriptionService: subscriptionService,
		logger:              logger,
	}
}

// resolveCaller turns the authenticated subject into a subscriber, writing the
// error response itself when it cannot.
func resolveCaller(ctx context.Context, w http.ResponseWriter, subs *services.SubscriptionService, logger *zap.Logger) (*subscriber.Subscriber, bool) {
	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return nil, false
	}
	sub, err := subs.SubscriberForSubject(ctx, clerkID)
	if err != nil {
		respondWithServiceError(w, logger, err)
		return nil, false
	}
	return sub, true
}

type subscribeResponse struct {
	Subscriber *subscriber.Subscriber `json:"subscriber"`
	Profile    *profile.Profile       `json:"profile,omitempty"`
}

func (h *SubscriptionHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*requestTimeout)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req subscriber.SubscribeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	sub, p, err := h.subscriptionService.Subscribe(ctx, clerkID, &req)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, subscribeResponse{Subscriber: sub, Profile: p})
}

func (h *SubscriptionHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	sub, ok := resolveCaller(ctx, w, h.subscriptionService, h.logger)
	if !ok {
		return
	}

	if err := h.subscriptionService.Unsubscribe(ctx, sub); err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Unsubscribed successfully"})
}

func (h *SubscriptionHandler) MyProfiles(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	sub, ok := resolveCaller(ctx, w, h.subscriptionService, h.logger)
	if !ok {
		return
	}

	profiles, err := h.subscriptionService.MyProfiles(ctx, sub)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"subscriber": sub,
		"profiles":   profiles,
	})
}

func (h *SubscriptionHandler) AddProfile(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*requestTimeout)
	defer cancel()

	sub, ok := resolveCaller(ctx, w, h.subscriptionService, h.logger)
	if !ok {
		return
	}

	var req subscriber.AddProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	p, err := h.subscriptionService.AddProfile(ctx, sub, &req)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, p)
}

func (h *SubscriptionHandler) UpdateUsername(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*requestTimeout)
	defer cancel()

	sub, ok := resolveCaller(ctx, w, h.subscriptionService, h.logger)
	if !ok {
		return
	}

	vars := mux.Vars(r)
	var req subscriber.UpdateUsernameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	p, err := h.subscriptionService.UpdateUsername(ctx, sub, vars["platform"], vars["username"], &req)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, p)
}

func (h *SubscriptionHandler) GroupAction(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	sub, ok := resolveCaller(ctx, w, h.subscriptionService, h.logger)
	if !ok {
		return
	}

	var req subscriber.GroupActionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	status, group, err := h.subscriptionService.GroupAction(ctx, sub, &req)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"status": status, "group": group})
}
