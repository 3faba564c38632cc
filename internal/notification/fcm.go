package notification

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"skillTrackerAPI/internal/subscriber"
)

type FCMService struct {
	client *messaging.Client
	logger *zap.Logger
}

// NewFCMService prefers base64 credentials in FCM_SERVICE_ACCOUNT_JSON and
// falls back to the service account file at credentialsFile.
func NewFCMService(ctx context.Context, credentialsFile string, logger *zap.Logger) (*FCMService, error) {
	var opt option.ClientOption

	if encoded := os.Getenv("FCM_SERVICE_ACCOUNT_JSON"); encoded != "" {
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("failed to decode FCM_SERVICE_ACCOUNT_JSON: %w", err)
		}
		opt = option.WithCredentialsJSON(decoded)
		logger.Info("FCM initializing from environment credentials")
	} else {
		if _, err := os.Stat(credentialsFile); err != nil {
			return nil, fmt.Errorf("firebase credentials file %q unavailable: %w", credentialsFile, err)
		}
		opt = option.WithCredentialsFile(credentialsFile)
		logger.Info("FCM initializing from credentials file", zap.String("path", credentialsFile))
	}

	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting messaging client: %w", err)
	}

	return &FCMService{client: client, logger: logger}, nil
}

// SendPush sends one message per device. It fails only when every send fails.
func (s *FCMService) SendPush(ctx context.Context, devices []*subscriber.Device, title, body string, data map[string]string) error {
	if len(devices) == 0 {
		return nil
	}

	sent, failed := 0, 0
	for _, d := range devices {
		_, err := s.client.Send(ctx, buildPush(d, title, body, data))
		if err != nil {
			failed++
			s.logger.Warn("FCM send failed", zap.String("platform", d.Platform), zap.Error(err))
			continue
		}
		sent++
	}

	s.logger.Info("FCM batch sent", zap.Int("sent", sent), zap.Int("failed", failed))
	if sent == 0 {
		return fmt.Errorf("all %d push notifications failed", failed)
	}
	return nil
}

func buildPush(d *subscriber.Device, title, body string, data map[string]string) *messaging.Message {
	msg := &messaging.Message{
		Token:        d.Token,
		Notification: &messaging.Notification{Title: title, Body: body},
		Data:         data,
	}
	switch d.Platform {
	case "ios":
		msg.APNS = &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{Aps: &messaging.Aps{Sound: "default"}},
		}
	case "web":
		msg.Webpush = &messaging.WebpushConfig{
			Notification: &messaging.WebpushNotification{Title: title, Body: body},
		}
	default:
		msg.Android = &messaging.AndroidConfig{
			Priority:     "high",
			Notification: &messaging.AndroidNotification{Sound: "default"},
		}
	}
	return msg
}
