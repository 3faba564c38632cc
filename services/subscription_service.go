package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"go.uber.org/zap"

	"skillTrackerAPI/internal/fetcher"
	"skillTrackerAPI/internal/ranking"
	"skillTrackerAPI/internal/sources"
	"skillTrackerAPI/internal/store"
	"skillTrackerAPI/internal/subscriber"
	"skillTrackerAPI/internal/types/profile"
)

type SubscriptionService struct {
	db       store.Store
	registry *sources.Registry
	fetcher  *fetcher.Fetcher
	rankings *ranking.Cache
	logger   *zap.Logger
	now      func() time.Time
}

func NewSubscriptionService(db store.Store, registry *sources.Registry, f *fetcher.Fetcher, rankings *ranking.Cache, logger *zap.Logger) *SubscriptionService {
	return &SubscriptionService{
		db:       db,
		registry: registry,
		fetcher:  f,
		rankings: rankings,
		logger:   logger,
		now:      time.Now,
	}
}

// SubscriberForSubject resolves the authenticated caller.
func (s *SubscriptionService) SubscriberForSubject(ctx context.Context, subject string) (*subscriber.Subscriber, error) {
	sub, err := s.db.GetSubscriberByAuthSubject(ctx, subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrSubscriberNotFound
		}
		return nil, err
	}
	return sub, nil
}

// Subscribe registers a new subscriber, optionally with a first platform
// profile. Local duplicate checks run before the platform is contacted.
func (s *SubscriptionService) Subscribe(ctx context.Context, authSubject string, req *subscriber.SubscribeRequest) (*subscriber.Subscriber, *profile.Profile, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(req.Email))
	if err != nil {
		return nil, nil, ErrInvalidEmail
	}
	email := strings.ToLower(addr.Address)

	username := strings.TrimSpace(req.Username)
	hasPlatform := strings.TrimSpace(req.PlatformName) != ""
	if hasPlatform != (username != "") {
		return nil, nil, ErrPlatformRequired
	}

	var platform profile.Platform
	if hasPlatform {
		p, err := profile.ParsePlatform(req.PlatformName)
		if err != nil {
			return nil, nil, ErrUnknownPlatform
		}
		platform = p

		if err := s.ensureUnregistered(ctx, platform, username); err != nil {
			return nil, nil, err
		}
	}

	if _, err := s.db.GetSubscriberByEmail(ctx, email); err == nil {
		return nil, nil, ErrSubscriberExists
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, nil, err
	}
	if authSubject != "" {
		if _, err := s.db.GetSubscriberByAuthSubject(ctx, authSubject); err == nil {
			return nil, nil, ErrSubscriberExists
		} else if !errors.Is(err, store.ErrNotFound) {
			return nil, nil, err
		}
	}

	var stats profile.Stats
	if hasPlatform {
		fetched, err := s.validateRemote(ctx, platform, username)
		if err != nil {
			return nil, nil, err
		}
		stats = fetched
	}

	sub := &subscriber.Subscriber{Email: email, AuthSubject: authSubject, DateSubscribed: s.now()}
	if err := s.db.CreateSubscriber(ctx, sub); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, nil, ErrSubscriberExists
		}
		return nil, nil, fmt.Errorf("failed to create subscriber: %w", err)
	}
	s.logger.Info("Subscriber created", zap.String("subscriber", sub.Email), zap.Int64("subscriber_id", sub.ID))

	var created *profile.Profile
	if hasPlatform {
		created = &profile.Profile{
			SubscriberID: sub.ID,
			Platform:     platform,
			Username:     username,
			Stats:        stats,
			UpdatedAt:    s.now(),
		}
		if err := s.db.CreateProfile(ctx, created); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return sub, nil, ErrProfileExists
			}
			return sub, nil, fmt.Errorf("failed to create profile: %w", err)
		}
		s.logger.Info("Profile created",
			zap.String("subscriber", sub.Email),
			zap.String("platform", string(platform)),
			zap.String("username", username))
	}

	s.invalidate(ctx)
	return sub, created, nil
}

// AddProfile attaches a platform profile to an existing subscriber.
func (s *SubscriptionService) AddProfile(ctx context.Context, sub *subscriber.Subscriber, req *subscriber.AddProfileRequest) (*profile.Profile, error) {
	platform, err := profile.ParsePlatform(req.PlatformName)
	if err != nil {
		return nil, ErrUnknownPlatform
	}
	username := strings.TrimSpace(req.Username)
	if username == "" {
		return nil, ErrPlatformRequired
	}

	owned, err := s.db.ListProfilesBySubscriber(ctx, sub.ID)
	if err != nil {
		return nil, err
	}
	for _, p := range owned {
		if p.Platform == platform {
			return nil, ErrPlatformTaken
		}
	}
	if err := s.ensureUnregistered(ctx, platform, username); err != nil {
		return nil, err
	}

	stats, err := s.validateRemote(ctx, platform, username)
	if err != nil {
		return nil, err
	}

	p := &profile.Profile{
		SubscriberID: sub.ID,
		Platform:     platform,
		Username:     username,
		Stats:        stats,
		UpdatedAt:    s.now(),
	}
	if err := s.db.CreateProfile(ctx, p); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrProfileExists
		}
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}
	p.SubscriberEmail, p.SubscriberGroup = sub.Email, sub.Group

	s.logger.Info("Profile added",
		zap.String("subscriber", sub.Email),
		zap.String("platform", string(platform)),
		zap.String("username", username))
	s.invalidate(ctx)
	return p, nil
}

// GetOwnedProfile finds the caller's profile on a platform by its current username.
func (s *SubscriptionService) GetOwnedProfile(ctx context.Context, sub *subscriber.Subscriber, platformName, username string) (*profile.Profile, error) {
	platform, err := profile.ParsePlatform(platformName)
	if err != nil {
		return nil, ErrUnknownPlatform
	}
	p, err := s.db.FindProfile(ctx, platform, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	if p.SubscriberID != sub.ID {
		return nil, ErrProfileNotFound
	}
	return p, nil
}

// UpdateUsername points an owned profile at another account on the same
// platform, re-validating it and taking its current stats.
func (s *SubscriptionService) UpdateUsername(ctx context.Context, sub *subscriber.Subscriber, platformName, oldUsername string, req *subscriber.UpdateUsernameRequest) (*profile.Profile, error) {
	p, err := s.GetOwnedProfile(ctx, sub, platformName, oldUsername)
	if err != nil {
		return nil, err
	}
	newUsername := strings.TrimSpace(req.Username)
	if newUsername == "" {
		return nil, ErrPlatformRequired
	}

	if newUsername != p.Username {
		if err := s.ensureUnregistered(ctx, p.Platform, newUsername); err != nil {
			return nil, err
		}
	}

	stats, err := s.validateRemote(ctx, p.Platform, newUsername)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.db.UpdateProfileUsername(ctx, p.ID, newUsername, stats, now); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrProfileExists
		}
		return nil, fmt.Errorf("failed to update username: %w", err)
	}
	p.Username, p.Stats, p.UpdatedAt = newUsername, stats, now

	s.logger.Info("Profile username updated",
		zap.Int64("profile_id", p.ID),
		zap.String("platform", string(p.Platform)),
		zap.String("username", newUsername))
	s.invalidate(ctx)
	return p, nil
}

func (s *SubscriptionService) MyProfiles(ctx context.Context, sub *subscriber.Subscriber) ([]*profile.Profile, error) {
	profiles, err := s.db.ListProfilesBySubscriber(ctx, sub.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	if profiles == nil {
		profiles = []*profile.Profile{}
	}
	return profiles, nil
}

// Unsubscribe deletes the subscriber with everything it owns.
func (s *SubscriptionService) Unsubscribe(ctx context.Context, sub *subscriber.Subscriber) error {
	if err := s.db.DeleteSubscriber(ctx, sub.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrSubscriberNotFound
		}
		return fmt.Errorf("failed to delete subscriber: %w", err)
	}
	s.logger.Info("Subscriber removed", zap.String("subscriber", sub.Email))
	s.invalidate(ctx)
	return nil
}

// UnsubscribeSubject removes the subscriber bound to an identity-provider subject.
func (s *SubscriptionService) UnsubscribeSubject(ctx context.Context, subject string) error {
	sub, err := s.SubscriberForSubject(ctx, subject)
	if err != nil {
		return err
	}
	return s.Unsubscribe(ctx, sub)
}

// GroupAction dispatches create_group, join_group and leave_group.
func (s *SubscriptionService) GroupAction(ctx context.Context, sub *subscriber.Subscriber, req *subscriber.GroupActionRequest) (string, string, error) {
	switch req.Action {
	case "create_group":
		err := s.CreateGroup(ctx, sub, req.GroupName)
		return "joined", strings.TrimSpace(req.GroupName), err
	case "join_group":
		err := s.JoinGroup(ctx, sub, req.ExistingGroupName)
		return "joined", strings.TrimSpace(req.ExistingGroupName), err
	case "leave_group":
		old, err := s.LeaveGroup(ctx, sub)
		return "left", old, err
	default:
		return "", "", ErrUnknownGroupAction
	}
}

func (s *SubscriptionService) CreateGroup(ctx context.Context, sub *subscriber.Subscriber, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrGroupNameRequired
	}
	if sub.HasGroup() {
		return ErrAlreadyInGroup
	}
	exists, err := s.db.GroupExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return ErrGroupExists
	}
	return s.setGroup(ctx, sub, name)
}

func (s *SubscriptionService) JoinGroup(ctx context.Context, sub *subscriber.Subscriber, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrGroupNameRequired
	}
	exists, err := s.db.GroupExists(ctx, name)
	if err != nil {
		return err
	}
	if !exists {
		return ErrGroupNotFound
	}
	if sub.HasGroup() {
		return ErrAlreadyInGroup
	}
	return s.setGroup(ctx, sub, name)
}

func (s *SubscriptionService) LeaveGroup(ctx context.Context, sub *subscriber.Subscriber) (string, error) {
	if !sub.HasGroup() {
		return "", ErrNotInGroup
	}
	old := sub.Group
	if err := s.setGroup(ctx, sub, ""); err != nil {
		return "", err
	}
	return old, nil
}

// setGroup changes membership, which changes group-filtered rankings too.
func (s *SubscriptionService) setGroup(ctx context.Context, sub *subscriber.Subscriber, group string) error {
	if err := s.db.SetSubscriberGroup(ctx, sub.ID, group); err != nil {
		return fmt.Errorf("failed to update group: %w", err)
	}
	s.logger.Info("Subscriber group changed",
		zap.String("subscriber", sub.Email),
		zap.String("from", sub.Group),
		zap.String("to", group))
	sub.Group = group
	s.invalidate(ctx)
	return nil
}

func (s *SubscriptionService) ensureUnregistered(ctx context.Context, platform profile.Platform, username string) error {
	_, err := s.db.FindProfile(ctx, platform, username)
	if err == nil {
		return ErrProfileExists
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return nil
}

// validateRemote confirms the account exists on the platform and returns its stats.
func (s *SubscriptionService) validateRemote(ctx context.Context, platform profile.Platform, username string) (profile.Stats, error) {
	adapter, err := s.registry.Get(platform)
	if err != nil {
		return profile.Stats{}, ErrUnknownPlatform
	}

	out := s.fetcher.Fetch(ctx, adapter, username)
	switch out.Status {
	case fetcher.StatusNotFound:
		return profile.Stats{}, ErrInvalidUsername
	case fetcher.StatusUnavailable:
		s.logger.Warn("Remote validation failed",
			zap.String("platform", string(platform)),
			zap.String("username", username),
			zap.Error(out.Err))
		return profile.Stats{}, ErrPlatformUnavailable
	}
	return out.Stats, nil
}

func (s *SubscriptionService) invalidate(ctx context.Context) {
	if err := s.rankings.Invalidate(ctx); err != nil {
		s.logger.Error("Ranking invalidation failed", zap.Error(err))
	}
}
