package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"skillTrackerAPI/internal/notification"
	"skillTrackerAPI/internal/store"
	"skillTrackerAPI/internal/subscriber"
	"skillTrackerAPI/internal/telemetry"
)

// NotificationService delivers rendered reports. Email is always attempted;
// push goes out only when a push provider is set and the subscriber has
// registered devices.
type NotificationService struct {
	db      store.Store
	mailer  notification.Mailer
	pusher  notification.Pusher
	logger  *zap.Logger
	metrics *telemetry.Metrics
}

func NewNotificationService(db store.Store, mailer notification.Mailer, logger *zap.Logger, metrics *telemetry.Metrics) *NotificationService {
	return &NotificationService{db: db, mailer: mailer, logger: logger, metrics: metrics}
}

// SetPushProvider enables the push channel. main wires in FCM when credentials exist.
func (s *NotificationService) SetPushProvider(p notification.Pusher) {
	s.pusher = p
}

// Deliver sends msg to sub. The email result decides the returned error; a
// failed push is logged and counted only.
func (s *NotificationService) Deliver(ctx context.Context, sub *subscriber.Subscriber, msg *notification.Message) error {
	if err := s.mailer.Send(ctx, msg.To, msg.Subject, msg.HTML); err != nil {
		s.metrics.ReportDelivery(string(notification.ChannelEmail), "failed")
		return fmt.Errorf("failed to email %s: %w", msg.To, err)
	}
	s.metrics.ReportDelivery(string(notification.ChannelEmail), "ok")

	if s.pusher == nil || sub == nil {
		return nil
	}
	devices, err := s.db.ListDevices(ctx, sub.ID)
	if err != nil {
		s.logger.Warn("Failed to load devices", zap.String("subscriber", sub.Email), zap.Error(err))
		return nil
	}
	if len(devices) == 0 {
		return nil
	}
	if err := s.pusher.SendPush(ctx, devices, msg.PushTitle, msg.PushBody, msg.Data); err != nil {
		s.metrics.ReportDelivery(string(notification.ChannelPush), "failed")
		s.logger.Warn("Push delivery failed", zap.String("subscriber", sub.Email), zap.Error(err))
		return nil
	}
	s.metrics.ReportDelivery(string(notification.ChannelPush), "ok")
	return nil
}

// RegisterDevice stores a push token for sub, moving it over if another
// subscriber had registered the same token.
func (s *NotificationService) RegisterDevice(ctx context.Context, sub *subscriber.Subscriber, req *subscriber.RegisterDeviceRequest) (*subscriber.Device, error) {
	token := strings.TrimSpace(req.Token)
	platform := strings.ToLower(strings.TrimSpace(req.Platform))
	if token == "" {
		return nil, ErrInvalidDevice
	}
	switch platform {
	case "ios", "android", "web":
	default:
		return nil, ErrInvalidDevice
	}

	d := &subscriber.Device{SubscriberID: sub.ID, Token: token, Platform: platform}
	if err := s.db.UpsertDevice(ctx, d); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrSubscriberNotFound
		}
		return nil, fmt.Errorf("failed to register device: %w", err)
	}
	s.logger.Info("Device registered", zap.String("subscriber", sub.Email), zap.String("platform", platform))
	return d, nil
}
