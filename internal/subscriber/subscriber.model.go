package subscriber

import "time"

type Subscriber struct {
	ID             int64     `json:"id"`
	Email          string    `json:"email"`
	Group          string    `json:"group,omitempty"`
	AuthSubject    string    `json:"-"`
	DateSubscribed time.Time `json:"date_subscribed"`
}

// HasGroup reports whether the subscriber belongs to a group.
func (s *Subscriber) HasGroup() bool {
	return s.Group != ""
}

type Device struct {
	SubscriberID int64  `json:"subscriber_id"`
	Token        string `json:"token"`
	Platform     string `json:"platform"`
}
