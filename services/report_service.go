package services

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"skillTrackerAPI/internal/fetcher"
	"skillTrackerAPI/internal/notification"
	"skillTrackerAPI/internal/snapshot"
	"skillTrackerAPI/internal/store"
	"skillTrackerAPI/internal/subscriber"
	"skillTrackerAPI/internal/telemetry"
	"skillTrackerAPI/internal/workers"
)

type ReportService struct {
	db            store.Store
	refresh       *RefreshService
	scheduler     *fetcher.Scheduler
	notifications *NotificationService
	emailPool     *workers.Pool
	logger        *zap.Logger
	metrics       *telemetry.Metrics
	now           func() time.Time
}

func NewReportService(db store.Store, refresh *RefreshService, scheduler *fetcher.Scheduler, notifications *NotificationService, emailPool *workers.Pool, logger *zap.Logger, metrics *telemetry.Metrics) *ReportService {
	return &ReportService{
		db:            db,
		refresh:       refresh,
		scheduler:     scheduler,
		notifications: notifications,
		emailPool:     emailPool,
		logger:        logger,
		metrics:       metrics,
		now:           time.Now,
	}
}

type WeeklySummary struct {
	Refresh       fetcher.Summary `json:"refresh"`
	Snapshots     int             `json:"snapshots"`
	SnapshotBatch string          `json:"snapshot_batch"`
	Reports       int             `json:"reports"`
	Delivered     int             `json:"delivered"`
	Failed        int             `json:"failed"`
	TotalProblems int             `json:"total_problems"`
	TotalContests int             `json:"total_contests"`
}

// RecordSnapshots stores one snapshot of every profile's current stats, all
// stamped with the same time and batch id. It returns the batch id.
func (s *ReportService) RecordSnapshots(ctx context.Context) (string, int, error) {
	profiles, err := s.db.ListProfiles(ctx)
	if err != nil {
		return "", 0, fmt.Errorf("failed to list profiles: %w", err)
	}

	batch := uuid.NewString()
	at := s.now()
	recorded := 0
	for _, p := range profiles {
		if _, err := s.db.InsertSnapshot(ctx, p.ID, p.Stats, at, batch); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return batch, recorded, fmt.Errorf("failed to snapshot profile %d: %w", p.ID, err)
		}
		recorded++
	}

	s.logger.Info("Snapshots recorded", zap.String("batch_id", batch), zap.Int("count", recorded))
	return batch, recorded, nil
}

// WeeklyUpdate refreshes every profile, snapshots the result, and emails each
// subscriber with changes their weekly report. Delivery failures are counted,
// not returned.
func (s *ReportService) WeeklyUpdate(ctx context.Context) (*WeeklySummary, error) {
	start := time.Now()
	summary := &WeeklySummary{}

	refreshed, err := s.refresh.RefreshAll(ctx)
	summary.Refresh = refreshed
	if err != nil {
		// Snapshots of the stats we do have are still worth taking.
		s.logger.Error("Weekly refresh had storage errors", zap.Error(err))
	}

	if summary.SnapshotBatch, summary.Snapshots, err = s.RecordSnapshots(ctx); err != nil {
		return summary, err
	}

	subscribers, err := s.db.ListSubscribers(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to list subscribers: %w", err)
	}
	changes, err := snapshot.ComputeChanges(ctx, s.db, subscribers)
	if err != nil {
		return summary, fmt.Errorf("failed to compute weekly changes: %w", err)
	}
	summary.TotalProblems = changes.TotalProblems
	summary.TotalContests = changes.TotalContests

	byEmail := make(map[string]*subscriber.Subscriber, len(subscribers))
	for _, sub := range subscribers {
		byEmail[sub.Email] = sub
	}

	var delivered, failed int64
	tasks := make([]workers.Task, 0, len(changes.Changes))
	for email, list := range changes.Changes {
		sub := byEmail[email]
		tasks = append(tasks, workers.Task{
			ID: email,
			Fn: func(ctx context.Context) error {
				msg, err := notification.RenderWeekly(notification.WeeklyReport{
					Email:         email,
					Changes:       list,
					TotalProblems: changes.TotalProblems,
					TotalContests: changes.TotalContests,
				})
				if err == nil {
					err = s.notifications.Deliver(ctx, sub, msg)
				}
				if err != nil {
					atomic.AddInt64(&failed, 1)
					return err
				}
				atomic.AddInt64(&delivered, 1)
				return nil
			},
		})
	}
	s.emailPool.Run(ctx, tasks)

	summary.Reports = len(tasks)
	summary.Delivered = int(delivered)
	summary.Failed = int(failed)

	s.refresh.invalidate(ctx)
	s.metrics.BatchDuration("weekly_update", time.Since(start).Seconds())
	s.logger.Info("Weekly update finished",
		zap.Int("snapshots", summary.Snapshots),
		zap.String("batch_id", summary.SnapshotBatch),
		zap.Int("reports", summary.Reports),
		zap.Int("delivered", summary.Delivered),
		zap.Int("failed", summary.Failed),
		zap.Duration("duration", time.Since(start)))
	return summary, nil
}

// SendDailyReport fetches the caller's profiles live, falling back to the
// stored stats, and delivers the result. Nothing is persisted.
func (s *ReportService) SendDailyReport(ctx context.Context, sub *subscriber.Subscriber) (*notification.DailyReport, error) {
	profiles, err := s.db.ListProfilesBySubscriber(ctx, sub.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}

	report := &notification.DailyReport{Email: sub.Email, Entries: make([]notification.DailyEntry, 0, len(profiles))}
	for _, p := range profiles {
		res := s.scheduler.FetchOne(ctx, p)
		report.Entries = append(report.Entries, notification.DailyEntry{
			Platform: p.Platform,
			Username: p.Username,
			Stats:    res.Stats,
			Failed:   res.Source == fetcher.SourceNotFound,
		})
	}

	msg, err := notification.RenderDaily(*report)
	if err != nil {
		return nil, err
	}
	if err := s.notifications.Deliver(ctx, sub, msg); err != nil {
		return nil, err
	}
	s.logger.Info("Daily report sent", zap.String("subscriber", sub.Email), zap.Int("profiles", len(profiles)))
	return report, nil
}
