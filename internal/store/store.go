// Package store persists subscribers, their platform profiles, push devices
// and weekly snapshots.
package store

import (
	"context"
	"errors"
	"time"

	"skillTrackerAPI/internal/subscriber"
	"skillTrackerAPI/internal/types/profile"
)

var (
	ErrNotFound = errors.New("store: record not found")
	ErrConflict = errors.New("store: record already exists")
)

// Store is the persisted-state boundary. Read methods that return several
// profiles return them in insertion (id) order.
type Store interface {
	ListProfiles(ctx context.Context) ([]*profile.Profile, error)
	ListProfilesByFilter(ctx context.Context, filter profile.Filter) ([]*profile.Profile, error)
	ListProfilesBySubscriber(ctx context.Context, subscriberID int64) ([]*profile.Profile, error)
	GetProfile(ctx context.Context, id int64) (*profile.Profile, error)
	GetProfilesByIDs(ctx context.Context, ids []int64) (map[int64]*profile.Profile, error)
	FindProfile(ctx context.Context, platform profile.Platform, username string) (*profile.Profile, error)
	CreateProfile(ctx context.Context, p *profile.Profile) error
	UpdateProfileUsername(ctx context.Context, id int64, username string, stats profile.Stats, at time.Time) error
	UpdateProfileStats(ctx context.Context, id int64, stats profile.Stats, at time.Time) error

	CreateSubscriber(ctx context.Context, s *subscriber.Subscriber) error
	GetSubscriber(ctx context.Context, id int64) (*subscriber.Subscriber, error)
	GetSubscriberByEmail(ctx context.Context, email string) (*subscriber.Subscriber, error)
	GetSubscriberByAuthSubject(ctx context.Context, subject string) (*subscriber.Subscriber, error)
	ListSubscribers(ctx context.Context) ([]*subscriber.Subscriber, error)
	SetSubscriberGroup(ctx context.Context, id int64, group string) error
	GroupExists(ctx context.Context, group string) (bool, error)
	// DeleteSubscriber removes the subscriber with its profiles, snapshots and devices.
	DeleteSubscriber(ctx context.Context, id int64) error

	UpsertDevice(ctx context.Context, d *subscriber.Device) error
	ListDevices(ctx context.Context, subscriberID int64) ([]*subscriber.Device, error)

	// InsertSnapshot records stats under a batch id shared by one snapshot run.
	InsertSnapshot(ctx context.Context, profileID int64, stats profile.Stats, at time.Time, batchID string) (*profile.Snapshot, error)
	// LatestSnapshots returns up to n snapshots of a profile, newest first.
	LatestSnapshots(ctx context.Context, profileID int64, n int) ([]*profile.Snapshot, error)

	Ping(ctx context.Context) error
	Close()
}

// unknownSentinel is how an unknown metric is persisted.
const unknownSentinel = -1

func toColumn(m profile.Metric) int {
	return m.Or(unknownSentinel)
}

func fromColumn(v int) profile.Metric {
	if v < 0 {
		return profile.Unknown
	}
	return profile.Known(v)
}
