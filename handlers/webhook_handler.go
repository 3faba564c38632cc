package handlers

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"skillTrackerAPI/services"
)

const webhookTolerance = 5 * time.Minute

type clerkWebhookEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type clerkDeletedUser struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

type WebhookHandler struct {
	subscriptionService *services.SubscriptionService
	secret              string
	logger              *zap.Logger
	now                 func() time.Time
}

func NewWebhookHandler(subscriptionService *services.SubscriptionService, secret string, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		subscriptionService: subscriptionService,
		secret:              secret,
		logger:              logger,
		now:                 time.Now,
	}
}

// HandleClerkWebhook removes the subscriber of a deleted Clerk user. Other
// event types are acknowledged and ignored.
func (h *WebhookHandler) HandleClerkWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Error reading body")
		return
	}

	if err := h.verifySignature(r.Header, body); err != nil {
		h.logger.Warn("Invalid webhook signature", zap.Error(err))
		respondWithError(w, http.StatusUnauthorized, "Invalid signature")
		return
	}

	var event clerkWebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		respondWithError(w, http.StatusBadRequest, "Error parsing webhook")
		return
	}

	h.logger.Info("Received webhook event", zap.String("type", event.Type))

	switch event.Type {
	case "user.deleted":
		var data clerkDeletedUser
		if err := json.Unmarshal(event.Data, &data); err != nil || data.ID == "" {
			respondWithError(w, http.StatusBadRequest, "Error parsing webhook")
			return
		}
		err := h.subscriptionService.UnsubscribeSubject(r.Context(), data.ID)
		if err != nil && !errors.Is(err, services.ErrSubscriberNotFound) {
			h.logger.Error("Error handling user.deleted", zap.String("subject", data.ID), zap.Error(err))
			respondWithError(w, http.StatusInternalServerError, "Error processing webhook")
			return
		}
	default:
		h.logger.Debug("Unhandled webhook event type", zap.String("type", event.Type))
	}

	respondWithJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// verifySignature checks a Svix signature: base64 HMAC-SHA256 over
// "id.timestamp.body" keyed with the decoded whsec_ secret.
func (h *WebhookHandler) verifySignature(header http.Header, body []byte) error {
	if h.secret == "" {
		return errors.New("webhook secret not configured")
	}

	id := header.Get("svix-id")
	ts := header.Get("svix-timestamp")
	sigs := header.Get("svix-signature")
	if id == "" || ts == "" || sigs == "" {
		return errors.New("missing signature headers")
	}

	sec, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return errors.New("bad timestamp")
	}
	sent := time.Unix(sec, 0)
	if d := h.now().Sub(sent); d > webhookTolerance || d < -webhookTolerance {
		return errors.New("timestamp outside tolerance")
	}

	key, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(h.secret, "whsec_"))
	if err != nil {
		return errors.New("malformed webhook secret")
	}

	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(id + "." + ts + "."))
	mac.Write(body)
	expected := []byte(base64.StdEncoding.EncodeToString(mac.Sum(nil)))

	for _, candidate := range strings.Fields(sigs) {
		version, sig, ok := strings.Cut(candidate, ",")
		if !ok || version != "v1" {
			continue
		}
		if hmac.Equal(expected, bytes.TrimSpace([]byte(sig))) {
			return nil
		}
	}
	return errors.New("no matching signature")
}
