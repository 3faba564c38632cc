package leaderboard

import "skillTrackerAPI/internal/types/profile"

type LeaderboardEntry struct {
	Rank int `json:"rank"`
	*profile.Profile
}

type UserRanking struct {
	Rank               int              `json:"rank"`
	TotalInLeaderboard int              `json:"total_in_leaderboard"`
	Profile            *profile.Profile `json:"profile,omitempty"`
}

type Filters struct {
	Platform string `json:"platform,omitempty"`
	Group    string `json:"group,omitempty"`
}

type Query struct {
	SortBy   profile.SortField
	Platform string
	Group    string
	Page     int
}

type Leaderboard struct {
	Results      []*LeaderboardEntry               `json:"results"`
	Page         int                               `json:"page"`
	Pages        int                               `json:"pages"`
	SortBy       profile.SortField                 `json:"sort_by"`
	Filters      Filters                           `json:"filters"`
	UserRankings map[profile.Platform]*UserRanking `json:"user_rankings"`
}
