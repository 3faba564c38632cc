// Package notification delivers rendered reports to subscribers over email
// and, for subscribers with registered devices, FCM push.
package notification

import (
	"context"

	"skillTrackerAPI/internal/subscriber"
)

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelPush  Channel = "push"
)

// Mailer delivers one HTML email.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// Pusher delivers one push notification to each of a subscriber's devices.
type Pusher interface {
	SendPush(ctx context.Context, devices []*subscriber.Device, title, body string, data map[string]string) error
}

// Message is a rendered report ready for delivery.
type Message struct {
	To        string
	Subject   string
	HTML      string
	PushTitle string
	PushBody  string
	Data      map[string]string
}
