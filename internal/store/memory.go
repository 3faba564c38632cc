package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"skillTrackerAPI/internal/subscriber"
	"skillTrackerAPI/internal/types/profile"
)

var _ Store = (*Memory)(nil)

// Memory is a process-local Store for development and tests. Returned values
// are copies; callers may mutate them freely.
type Memory struct {
	mu          sync.RWMutex
	nextID      int64
	subscribers map[int64]*subscriber.Subscriber
	profiles    map[int64]*profile.Profile
	snapshots   map[int64][]*profile.Snapshot
	devices     map[string]*subscriber.Device
}

func NewMemory() *Memory {
	return &Memory{
		subscribers: make(map[int64]*subscriber.Subscriber),
		profiles:    make(map[int64]*profile.Profile),
		snapshots:   make(map[int64][]*profile.Snapshot),
		devices:     make(map[string]*subscriber.Device),
	}
}

func (m *Memory) Ping(ctx context.Context) error { return nil }
func (m *Memory) Close()                         {}

func (m *Memory) id() int64 {
	m.nextID++
	return m.nextID
}

// withOwner copies p and fills the owner fields. Caller holds the lock.
func (m *Memory) withOwner(p *profile.Profile) *profile.Profile {
	cp := *p
	if sub, ok := m.subscribers[p.SubscriberID]; ok {
		cp.SubscriberEmail = sub.Email
		cp.SubscriberGroup = sub.Group
	}
	return &cp
}

func (m *Memory) sortedProfiles(match func(*profile.Profile) bool) []*profile.Profile {
	var out []*profile.Profile
	for _, p := range m.profiles {
		full := m.withOwner(p)
		if match == nil || match(full) {
			out = append(out, full)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Memory) ListProfiles(ctx context.Context) ([]*profile.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedProfiles(nil), nil
}

func (m *Memory) ListProfilesByFilter(ctx context.Context, filter profile.Filter) ([]*profile.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedProfiles(func(p *profile.Profile) bool {
		if filter.Group != "" && p.SubscriberGroup != filter.Group {
			return false
		}
		if filter.Platform != "" && p.Platform != filter.Platform {
			return false
		}
		return true
	}), nil
}

func (m *Memory) ListProfilesBySubscriber(ctx context.Context, subscriberID int64) ([]*profile.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedProfiles(func(p *profile.Profile) bool { return p.SubscriberID == subscriberID }), nil
}

func (m *Memory) GetProfile(ctx context.Context, id int64) (*profile.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, ErrNotFound
	}
	return m.withOwner(p), nil
}

func (m *Memory) GetProfilesByIDs(ctx context.Context, ids []int64) (map[int64]*profile.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[int64]*profile.Profile, len(ids))
	for _, id := range ids {
		if p, ok := m.profiles[id]; ok {
			out[id] = m.withOwner(p)
		}
	}
	return out, nil
}

func (m *Memory) FindProfile(ctx context.Context, platform profile.Platform, username string) (*profile.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.profiles {
		if p.Platform == platform && p.Username == username {
			return m.withOwner(p), nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) CreateProfile(ctx context.Context, p *profile.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.subscribers[p.SubscriberID]; !ok {
		return ErrNotFound
	}
	for _, existing := range m.profiles {
		if existing.Platform != p.Platform {
			continue
		}
		if existing.SubscriberID == p.SubscriberID || existing.Username == p.Username {
			return ErrConflict
		}
	}

	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now()
	}
	p.ID = m.id()
	stored := *p
	stored.SubscriberEmail, stored.SubscriberGroup = "", ""
	m.profiles[p.ID] = &stored
	return nil
}

func (m *Memory) UpdateProfileUsername(ctx context.Context, id int64, username string, stats profile.Stats, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.profiles[id]
	if !ok {
		return ErrNotFound
	}
	for _, other := range m.profiles {
		if other.ID != id && other.Platform == p.Platform && other.Username == username {
			return ErrConflict
		}
	}
	p.Username = username
	p.Stats = stats
	p.UpdatedAt = at
	return nil
}

func (m *Memory) UpdateProfileStats(ctx context.Context, id int64, stats profile.Stats, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.profiles[id]
	if !ok {
		return ErrNotFound
	}
	p.Stats = stats
	p.UpdatedAt = at
	return nil
}

func (m *Memory) CreateSubscriber(ctx context.Context, sub *subscriber.Subscriber) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.subscribers {
		if strings.EqualFold(existing.Email, sub.Email) {
			return ErrConflict
		}
		if sub.AuthSubject != "" && existing.AuthSubject == sub.AuthSubject {
			return ErrConflict
		}
	}
	if sub.DateSubscribed.IsZero() {
		sub.DateSubscribed = time.Now()
	}
	sub.ID = m.id()
	stored := *sub
	m.subscribers[sub.ID] = &stored
	return nil
}

func (m *Memory) findSubscriber(match func(*subscriber.Subscriber) bool) (*subscriber.Subscriber, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, sub := range m.subscribers {
		if match(sub) {
			cp := *sub
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) GetSubscriber(ctx context.Context, id int64) (*subscriber.Subscriber, error) {
	return m.findSubscriber(func(s *subscriber.Subscriber) bool { return s.ID == id })
}

func (m *Memory) GetSubscriberByEmail(ctx context.Context, email string) (*subscriber.Subscriber, error) {
	return m.findSubscriber(func(s *subscriber.Subscriber) bool { return strings.EqualFold(s.Email, email) })
}

func (m *Memory) GetSubscriberByAuthSubject(ctx context.Context, subject string) (*subscriber.Subscriber, error) {
	if subject == "" {
		return nil, ErrNotFound
	}
	return m.findSubscriber(func(s *subscriber.Subscriber) bool { return s.AuthSubject == subject })
}

func (m *Memory) ListSubscribers(ctx context.Context) ([]*subscriber.Subscriber, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*subscriber.Subscriber, 0, len(m.subscribers))
	for _, sub := range m.subscribers {
		cp := *sub
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) SetSubscriberGroup(ctx context.Context, id int64, group string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subscribers[id]
	if !ok {
		return ErrNotFound
	}
	sub.Group = group
	return nil
}

func (m *Memory) GroupExists(ctx context.Context, group string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, sub := range m.subscribers {
		if sub.Group == group {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) DeleteSubscriber(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.subscribers[id]; !ok {
		return ErrNotFound
	}
	delete(m.subscribers, id)
	for pid, p := range m.profiles {
		if p.SubscriberID == id {
			delete(m.profiles, pid)
			delete(m.snapshots, pid)
		}
	}
	for token, d := range m.devices {
		if d.SubscriberID == id {
			delete(m.devices, token)
		}
	}
	return nil
}

func (m *Memory) UpsertDevice(ctx context.Context, d *subscriber.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subscribers[d.SubscriberID]; !ok {
		return ErrNotFound
	}
	cp := *d
	m.devices[d.Token] = &cp
	return nil
}

func (m *Memory) ListDevices(ctx context.Context, subscriberID int64) ([]*subscriber.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*subscriber.Device
	for _, d := range m.devices {
		if d.SubscriberID == subscriberID {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Token < out[j].Token })
	return out, nil
}

func (m *Memory) InsertSnapshot(ctx context.Context, profileID int64, stats profile.Stats, at time.Time, batchID string) (*profile.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[profileID]; !ok {
		return nil, ErrNotFound
	}
	snap := &profile.Snapshot{ID: m.id(), ProfileID: profileID, Timestamp: at, BatchID: batchID, Stats: stats}
	m.snapshots[profileID] = append(m.snapshots[profileID], snap)
	cp := *snap
	return &cp, nil
}

func (m *Memory) LatestSnapshots(ctx context.Context, profileID int64, n int) ([]*profile.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := make([]*profile.Snapshot, 0, len(m.snapshots[profileID]))
	for _, s := range m.snapshots[profileID] {
		cp := *s
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].Timestamp.Equal(all[j].Timestamp) {
			return all[i].Timestamp.After(all[j].Timestamp)
		}
		return all[i].ID > all[j].ID
	})
	if n > 0 && len(all) > n {
		all = all[:n]
	}
	return all, nil
}
