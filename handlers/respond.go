package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"skillTrackerAPI/services"
)

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "Internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, errorResponse{Error: message})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(dst)
}

// respondWithServiceError maps service errors onto HTTP statuses. Anything
// unrecognised is logged and hidden behind a 500.
func respondWithServiceError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var limited *services.RateLimitedError
	if errors.As(err, &limited) {
		w.Header().Set("Retry-After", strconv.Itoa(limited.RetryAfterSeconds()))
		respondWithJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate_limited", Detail: limited.Error()})
		return
	}

	switch {
	case errors.Is(err, services.ErrSubscriberNotFound),
		errors.Is(err, services.ErrProfileNotFound),
		errors.Is(err, services.ErrGroupNotFound):
		respondWithError(w, http.StatusNotFound, err.Error())

	case errors.Is(err, services.ErrSubscriberExists),
		errors.Is(err, services.ErrProfileExists):
		respondWithError(w, http.StatusConflict, err.Error())

	case errors.Is(err, services.ErrInvalidEmail),
		errors.Is(err, services.ErrPlatformTaken),
		errors.Is(err, services.ErrInvalidUsername),
		errors.Is(err, services.ErrPlatformRequired),
		errors.Is(err, services.ErrUnknownPlatform),
		errors.Is(err, services.ErrPlatformUnavailable),
		errors.Is(err, services.ErrInvalidDevice),
		errors.Is(err, services.ErrAlreadyInGroup),
		errors.Is(err, services.ErrGroupExists),
		errors.Is(err, services.ErrNotInGroup),
		errors.Is(err, services.ErrGroupNameRequired),
		errors.Is(err, services.ErrUnknownGroupAction):
		respondWithError(w, http.StatusBadRequest, err.Error())

	default:
		logger.Error("Request failed", zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}
