package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"skillTrackerAPI/services"
)

// JobsHandler exposes the batch jobs to an external scheduler. Jobs keep
// running when the triggering client disconnects.
type JobsHandler struct {
	refreshService *services.RefreshService
	reportService  *services.ReportService
	timeout        time.Duration
	logger         *zap.Logger
}

func NewJobsHandler(refreshService *services.RefreshService, reportService *services.ReportService, timeout time.Duration, logger *zap.Logger) *JobsHandler {
	if timeout <= 0 {
		timeout = 15 * time.Minute
	}
	return &JobsHandler{
		refreshService: refreshService,
		reportService:  reportService,
		timeout:        timeout,
		logger:         logger,
	}
}

func (h *JobsHandler) jobContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(r.Context()), h.timeout)
}

func (h *JobsHandler) FetchLeaderboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.jobContext(r)
	defer cancel()

	h.logger.Info("Refresh job triggered")
	summary, err := h.refreshService.RefreshAll(ctx)
	if err != nil {
		h.logger.Error("Refresh job failed", zap.Error(err))
		respondWithJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error":   "Refresh finished with storage errors",
			"summary": summary,
		})
		return
	}

	respondWithJSON(w, http.StatusOK, summary)
}

func (h *JobsHandler) WeeklyUpdate(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.jobContext(r)
	defer cancel()

	h.logger.Info("Weekly update job triggered")
	summary, err := h.reportService.WeeklyUpdate(ctx)
	if err != nil {
		h.logger.Error("Weekly update job failed", zap.Error(err))
		respondWithJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error":   "Weekly update failed",
			"summary": summary,
		})
		return
	}

	respondWithJSON(w, http.StatusOK, summary)
}
