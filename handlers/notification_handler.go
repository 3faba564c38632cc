package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"skillTrackerAPI/internal/subscriber"
	"skillTrackerAPI/services"
)

type NotificationHandler struct {
	notificationService *services.NotificationService
	reportService       *services.ReportService
	subscriptionService *services.SubscriptionService
	logger              *zap.Logger
}

func NewNotificationHandler(notificationService *services.NotificationService, reportService *services.ReportService, subscriptionService *services.SubscriptionService, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{
		notificationService: notificationService,
		reportService:       reportService,
		subscriptionService: subscriptionService,
		logger:              logger,
	}
}

func (h *NotificationHandler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	sub, ok := resolveCaller(ctx, w, h.subscriptionService, h.logger)
	if !ok {
		return
	}

	var req subscriber.RegisterDeviceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	device, err := h.notificationService.RegisterDevice(ctx, sub, &req)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, device)
}

// SendDailyReport emails the caller a live snapshot of their profiles.
func (h *NotificationHandler) SendDailyReport(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 12*requestTimeout)
	defer cancel()

	sub, ok := resolveCaller(ctx, w, h.subscriptionService, h.logger)
	if !ok {
		return
	}

	report, err := h.reportService.SendDailyReport(ctx, sub)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Report sent",
		"entries": len(report.Entries),
	})
}
