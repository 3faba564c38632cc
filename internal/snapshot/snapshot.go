// Package snapshot computes week-over-week changes from the two most recent
// snapshots of each profile.
package snapshot

import (
	"context"
	"fmt"
	"time"

	"skillTrackerAPI/internal/subscriber"
	"skillTrackerAPI/internal/types/profile"
)

// Change is one profile's movement between its two newest snapshots. A delta
// is unknown when either side of it is unknown.
type Change struct {
	ProfileID     int64            `json:"profile_id"`
	Platform      profile.Platform `json:"platform"`
	Username      string           `json:"username"`
	ProblemsDelta profile.Metric   `json:"problems_delta"`
	ContestsDelta profile.Metric   `json:"contests_delta"`
	RatingDelta   profile.Metric   `json:"rating_delta"`
	Current       profile.Stats    `json:"current"`
	WeekStart     time.Time        `json:"week_start"`
	WeekEnd       time.Time        `json:"week_end"`
}

// Changes maps a subscriber's email to its changes. Subscribers without a
// single change are absent.
type Changes map[string][]Change

type Result struct {
	Changes       Changes `json:"changes"`
	TotalProblems int     `json:"total_problems"`
	TotalContests int     `json:"total_contests"`
}

type Reader interface {
	ListProfilesBySubscriber(ctx context.Context, subscriberID int64) ([]*profile.Profile, error)
	LatestSnapshots(ctx context.Context, profileID int64, n int) ([]*profile.Snapshot, error)
}

// Diff compares the newest snapshot against the previous one.
func Diff(p *profile.Profile, newest, previous *profile.Snapshot) Change {
	return Change{
		ProfileID:     p.ID,
		Platform:      p.Platform,
		Username:      p.Username,
		ProblemsDelta: newest.ProblemsSolved.Sub(previous.ProblemsSolved),
		ContestsDelta: newest.ContestsAttended.Sub(previous.ContestsAttended),
		RatingDelta:   newest.Rating.Sub(previous.Rating),
		Current:       newest.Stats,
		WeekStart:     previous.Timestamp,
		WeekEnd:       newest.Timestamp,
	}
}

// ComputeChanges walks every subscriber's profiles once, diffing the two
// newest snapshots and summing known deltas into the totals as it goes.
// Profiles with fewer than two snapshots are skipped.
func ComputeChanges(ctx context.Context, r Reader, subscribers []*subscriber.Subscriber) (*Result, error) {
	res := &Result{Changes: make(Changes)}

	for _, sub := range subscribers {
		profiles, err := r.ListProfilesBySubscriber(ctx, sub.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list profiles of %s: %w", sub.Email, err)
		}

		for _, p := range profiles {
			snaps, err := r.LatestSnapshots(ctx, p.ID, 2)
			if err != nil {
				return nil, fmt.Errorf("failed to load snapshots of profile %d: %w", p.ID, err)
			}
			if len(snaps) < 2 {
				continue
			}

			change := Diff(p, snaps[0], snaps[1])
			res.Changes[sub.Email] = append(res.Changes[sub.Email], change)
			res.TotalProblems += change.ProblemsDelta.Or(0)
			res.TotalContests += change.ContestsDelta.Or(0)
		}
	}
	return res, nil
}
