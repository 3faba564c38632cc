package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"skillTrackerAPI/internal/ranking"
	"skillTrackerAPI/internal/store"
	"skillTrackerAPI/internal/subscriber"
	"skillTrackerAPI/internal/types/leaderboard"
	"skillTrackerAPI/internal/types/profile"
)

type LeaderboardService struct {
	db       store.Store
	rankings *ranking.Cache
	pageSize int
	logger   *zap.Logger
}

func NewLeaderboardService(db store.Store, rankings *ranking.Cache, pageSize int, logger *zap.Logger) *LeaderboardService {
	if pageSize <= 0 {
		pageSize = 10
	}
	return &LeaderboardService{db: db, rankings: rankings, pageSize: pageSize, logger: logger}
}

// Leaderboard returns one page of the ranking selected by q. A group filter is
// only honoured when it names the caller's own group.
func (s *LeaderboardService) Leaderboard(ctx context.Context, caller *subscriber.Subscriber, q leaderboard.Query) (*leaderboard.Leaderboard, error) {
	filter := profile.Filter{}
	filters := leaderboard.Filters{}

	if q.Group != "" && caller != nil && caller.HasGroup() && q.Group == caller.Group {
		filter.Group = q.Group
		filters.Group = q.Group
	}
	if q.Platform != "" {
		p, err := profile.ParsePlatform(q.Platform)
		if err != nil {
			return nil, ErrUnknownPlatform
		}
		filter.Platform = p
		filters.Platform = string(p)
	}
	field := profile.ParseSortField(string(q.SortBy))

	r, err := s.rankings.GetRanking(ctx, filter, field)
	if err != nil {
		return nil, fmt.Errorf("failed to get ranking: %w", err)
	}

	pages := (r.Total() + s.pageSize - 1) / s.pageSize
	if pages < 1 {
		pages = 1
	}
	page := q.Page
	if page < 1 {
		page = 1
	}
	if page > pages {
		page = pages
	}

	start := (page - 1) * s.pageSize
	end := min(start+s.pageSize, r.Total())
	pageIDs := r.OrderedIDs[start:end]

	byID, err := s.db.GetProfilesByIDs(ctx, pageIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load leaderboard page: %w", err)
	}

	results := make([]*leaderboard.LeaderboardEntry, 0, len(pageIDs))
	for i, id := range pageIDs {
		p, ok := byID[id]
		if !ok {
			// Removed since the ranking was cached.
			continue
		}
		results = append(results, &leaderboard.LeaderboardEntry{Rank: start + i + 1, Profile: p})
	}

	userRankings, err := s.userRankings(ctx, caller, r, filter)
	if err != nil {
		return nil, err
	}

	return &leaderboard.Leaderboard{
		Results:      results,
		Page:         page,
		Pages:        pages,
		SortBy:       field,
		Filters:      filters,
		UserRankings: userRankings,
	}, nil
}

func (s *LeaderboardService) userRankings(ctx context.Context, caller *subscriber.Subscriber, r *ranking.Ranking, filter profile.Filter) (map[profile.Platform]*leaderboard.UserRanking, error) {
	out := make(map[profile.Platform]*leaderboard.UserRanking)
	if caller == nil {
		return out, nil
	}

	mine, err := s.db.ListProfilesBySubscriber(ctx, caller.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load caller profiles: %w", err)
	}
	for _, p := range mine {
		if filter.Platform != "" && p.Platform != filter.Platform {
			continue
		}
		rank, ok := r.Rank(p.ID)
		if !ok {
			continue
		}
		out[p.Platform] = &leaderboard.UserRanking{
			Rank:               rank,
			TotalInLeaderboard: r.Total(),
			Profile:            p,
		}
	}
	return out, nil
}

// PublicStat is the stored view of one requested username.
type PublicStat struct {
	Status   string         `json:"status"`
	Username string         `json:"username,omitempty"`
	Stats    *profile.Stats `json:"stats,omitempty"`
}

const (
	PublicStatOK         = "ok"
	PublicStatNoUsername = "no_username"
	PublicStatNotFound   = "not_found"
)

// PublicStats looks up persisted stats for usernames keyed by lower-case
// platform name. It never contacts the platforms.
func (s *LeaderboardService) PublicStats(ctx context.Context, usernames map[string]string) (map[string]*PublicStat, error) {
	out := make(map[string]*PublicStat, len(profile.Platforms()))
	for _, p := range profile.Platforms() {
		key := strings.ToLower(string(p))
		username := strings.TrimSpace(usernames[key])
		if username == "" {
			out[key] = &PublicStat{Status: PublicStatNoUsername}
			continue
		}

		found, err := s.db.FindProfile(ctx, p, username)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				out[key] = &PublicStat{Status: PublicStatNotFound, Username: username}
				continue
			}
			return nil, fmt.Errorf("failed to look up %s profile: %w", p, err)
		}
		stats := found.Stats
		out[key] = &PublicStat{Status: PublicStatOK, Username: username, Stats: &stats}
	}
	return out, nil
}
