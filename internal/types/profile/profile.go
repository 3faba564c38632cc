package profile

import (
	"fmt"
	"strings"
	"time"
)

type Platform string

const (
	LeetCode   Platform = "LeetCode"
	Codeforces Platform = "Codeforces"
	CodeChef   Platform = "CodeChef"
)

// Platforms lists every supported platform in display order.
func Platforms() []Platform {
	return []Platform{LeetCode, CodeChef, Codeforces}
}

// ParsePlatform accepts a platform name in any letter case.
func ParsePlatform(s string) (Platform, error) {
	for _, p := range Platforms() {
		if strings.EqualFold(string(p), strings.TrimSpace(s)) {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown platform %q", s)
}

type Stats struct {
	Rating           Metric `json:"last_rating"`
	ProblemsSolved   Metric `json:"problems_solved"`
	ContestsAttended Metric `json:"contests_attended"`
}

// AllUnknown reports whether no metric carries a value.
func (s Stats) AllUnknown() bool {
	return !s.Rating.IsKnown() && !s.ProblemsSolved.IsKnown() && !s.ContestsAttended.IsKnown()
}

type Profile struct {
	ID           int64     `json:"id" db:"id"`
	SubscriberID int64     `json:"subscriber_id" db:"subscriber_id"`
	Platform     Platform  `json:"platform_name" db:"platform_name"`
	Username     string    `json:"username" db:"username"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
	Stats

	// Owner details, filled by read queries that join subscribers.
	SubscriberEmail string `json:"-"`
	SubscriberGroup string `json:"-"`
}

// Snapshot is an immutable copy of a profile's metrics at a point in time.
type Snapshot struct {
	ID        int64     `json:"id" db:"id"`
	ProfileID int64     `json:"profile_id" db:"profile_id"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
	BatchID   string    `json:"batch_id" db:"batch_id"`
	Stats
}

type SortField string

const (
	SortByRating         SortField = "rating"
	SortByProblemsSolved SortField = "problems_solved"
)

// ParseSortField falls back to rating for anything it does not recognise.
func ParseSortField(s string) SortField {
	if SortField(s) == SortByProblemsSolved {
		return SortByProblemsSolved
	}
	return SortByRating
}

// Value returns the metric a ranking sorts by.
func (f SortField) Value(s Stats) Metric {
	if f == SortByProblemsSolved {
		return s.ProblemsSolved
	}
	return s.Rating
}

// Filter selects the profiles that take part in a ranking. Empty fields match everything.
type Filter struct {
	Group    string
	Platform Platform
}
