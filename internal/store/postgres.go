package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"skillTrackerAPI/internal/subscriber"
	"skillTrackerAPI/internal/types/profile"
)

//go:embed schema.sql
var schema string

const uniqueViolation = "23505"

var _ Store = (*Postgres)(nil)

type Postgres struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewPostgres(ctx context.Context, databaseURL string, logger *zap.Logger) (*Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	db, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Postgres{db: db, logger: logger}, nil
}

// Migrate creates any missing tables.
func (s *Postgres) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	s.logger.Info("Database schema applied")
	return nil
}

func (s *Postgres) Ping(ctx context.Context) error { return s.db.Ping(ctx) }
func (s *Postgres) Close()                         { s.db.Close() }

const profileColumns = `
	p.id, p.subscriber_id, p.platform_name, p.username,
	p.last_rating, p.problems_solved, p.contests_attended, p.updated_at,
	s.email, s.group_name`

const profileFrom = `
	FROM platform_profiles p
	JOIN subscribers s ON s.id = p.subscriber_id`

func scanProfile(row pgx.Row) (*profile.Profile, error) {
	p := &profile.Profile{}
	var platform string
	var rating, problems, contests int
	err := row.Scan(
		&p.ID,
		&p.SubscriberID,
		&platform,
		&p.Username,
		&rating,
		&problems,
		&contests,
		&p.UpdatedAt,
		&p.SubscriberEmail,
		&p.SubscriberGroup,
	)
	if err != nil {
		return nil, err
	}
	p.Platform = profile.Platform(platform)
	p.Rating = fromColumn(rating)
	p.ProblemsSolved = fromColumn(problems)
	p.ContestsAttended = fromColumn(contests)
	return p, nil
}

func (s *Postgres) queryProfiles(ctx context.Context, query string, args ...any) ([]*profile.Profile, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*profile.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

func (s *Postgres) ListProfiles(ctx context.Context) ([]*profile.Profile, error) {
	return s.queryProfiles(ctx, `SELECT `+profileColumns+profileFrom+` ORDER BY p.id`)
}

func (s *Postgres) ListProfilesByFilter(ctx context.Context, filter profile.Filter) ([]*profile.Profile, error) {
	var where []string
	var args []any
	if filter.Group != "" {
		args = append(args, filter.Group)
		where = append(where, fmt.Sprintf("s.group_name = $%d", len(args)))
	}
	if filter.Platform != "" {
		args = append(args, string(filter.Platform))
		where = append(where, fmt.Sprintf("p.platform_name = $%d", len(args)))
	}

	query := `SELECT ` + profileColumns + profileFrom
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY p.id`
	return s.queryProfiles(ctx, query, args...)
}

func (s *Postgres) ListProfilesBySubscriber(ctx context.Context, subscriberID int64) ([]*profile.Profile, error) {
	return s.queryProfiles(ctx,
		`SELECT `+profileColumns+profileFrom+` WHERE p.subscriber_id = $1 ORDER BY p.id`, subscriberID)
}

func (s *Postgres) GetProfile(ctx context.Context, id int64) (*profile.Profile, error) {
	p, err := scanProfile(s.db.QueryRow(ctx, `SELECT `+profileColumns+profileFrom+` WHERE p.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return p, nil
}

func (s *Postgres) GetProfilesByIDs(ctx context.Context, ids []int64) (map[int64]*profile.Profile, error) {
	profiles, err := s.queryProfiles(ctx,
		`SELECT `+profileColumns+profileFrom+` WHERE p.id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]*profile.Profile, len(profiles))
	for _, p := range profiles {
		out[p.ID] = p
	}
	return out, nil
}

func (s *Postgres) FindProfile(ctx context.Context, platform profile.Platform, username string) (*profile.Profile, error) {
	p, err := scanProfile(s.db.QueryRow(ctx,
		`SELECT `+profileColumns+profileFrom+` WHERE p.platform_name = $1 AND p.username = $2`,
		string(platform), username))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find profile: %w", err)
	}
	return p, nil
}

func (s *Postgres) CreateProfile(ctx context.Context, p *profile.Profile) error {
	query := `
	INSERT INTO platform_profiles (subscriber_id, platform_name, username, last_rating, problems_solved, contests_attended, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	RETURNING id
	`
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now()
	}
	err := s.db.QueryRow(ctx, query,
		p.SubscriberID,
		string(p.Platform),
		p.Username,
		toColumn(p.Rating),
		toColumn(p.ProblemsSolved),
		toColumn(p.ContestsAttended),
		p.UpdatedAt,
	).Scan(&p.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("failed to create profile: %w", err)
	}
	return nil
}

func (s *Postgres) UpdateProfileUsername(ctx context.Context, id int64, username string, stats profile.Stats, at time.Time) error {
	tag, err := s.db.Exec(ctx, `
	UPDATE platform_profiles
	SET username = $2, last_rating = $3, problems_solved = $4, contests_attended = $5, updated_at = $6
	WHERE id = $1`,
		id, username, toColumn(stats.Rating), toColumn(stats.ProblemsSolved), toColumn(stats.ContestsAttended), at)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("failed to update username: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) UpdateProfileStats(ctx context.Context, id int64, stats profile.Stats, at time.Time) error {
	tag, err := s.db.Exec(ctx, `
	UPDATE platform_profiles
	SET last_rating = $2, problems_solved = $3, contests_attended = $4, updated_at = $5
	WHERE id = $1`,
		id, toColumn(stats.Rating), toColumn(stats.ProblemsSolved), toColumn(stats.ContestsAttended), at)
	if err != nil {
		return fmt.Errorf("failed to update profile stats: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const subscriberColumns = `id, email, group_name, COALESCE(auth_subject, ''), date_subscribed`

func scanSubscriber(row pgx.Row) (*subscriber.Subscriber, error) {
	sub := &subscriber.Subscriber{}
	if err := row.Scan(&sub.ID, &sub.Email, &sub.Group, &sub.AuthSubject, &sub.DateSubscribed); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get subscriber: %w", err)
	}
	return sub, nil
}

func (s *Postgres) CreateSubscriber(ctx context.Context, sub *subscriber.Subscriber) error {
	if sub.DateSubscribed.IsZero() {
		sub.DateSubscribed = time.Now()
	}
	var subject any
	if sub.AuthSubject != "" {
		subject = sub.AuthSubject
	}
	err := s.db.QueryRow(ctx, `
	INSERT INTO subscribers (email, group_name, auth_subject, date_subscribed)
	VALUES ($1, $2, $3, $4)
	RETURNING id`,
		sub.Email, sub.Group, subject, sub.DateSubscribed,
	).Scan(&sub.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("failed to create subscriber: %w", err)
	}
	return nil
}

func (s *Postgres) GetSubscriber(ctx context.Context, id int64) (*subscriber.Subscriber, error) {
	return scanSubscriber(s.db.QueryRow(ctx, `SELECT `+subscriberColumns+` FROM subscribers WHERE id = $1`, id))
}

func (s *Postgres) GetSubscriberByEmail(ctx context.Context, email string) (*subscriber.Subscriber, error) {
	return scanSubscriber(s.db.QueryRow(ctx,
		`SELECT `+subscriberColumns+` FROM subscribers WHERE LOWER(email) = LOWER($1)`, email))
}

func (s *Postgres) GetSubscriberByAuthSubject(ctx context.Context, subject string) (*subscriber.Subscriber, error) {
	return scanSubscriber(s.db.QueryRow(ctx,
		`SELECT `+subscriberColumns+` FROM subscribers WHERE auth_subject = $1`, subject))
}

func (s *Postgres) ListSubscribers(ctx context.Context) ([]*subscriber.Subscriber, error) {
	rows, err := s.db.Query(ctx, `SELECT `+subscriberColumns+` FROM subscribers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscribers: %w", err)
	}
	defer rows.Close()

	var subs []*subscriber.Subscriber
	for rows.Next() {
		sub := &subscriber.Subscriber{}
		if err := rows.Scan(&sub.ID, &sub.Email, &sub.Group, &sub.AuthSubject, &sub.DateSubscribed); err != nil {
			return nil, fmt.Errorf("failed to scan subscriber: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func (s *Postgres) SetSubscriberGroup(ctx context.Context, id int64, group string) error {
	tag, err := s.db.Exec(ctx, `UPDATE subscribers SET group_name = $2 WHERE id = $1`, id, group)
	if err != nil {
		return fmt.Errorf("failed to set group: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) GroupExists(ctx context.Context, group string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM subscribers WHERE group_name = $1)`, group).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check group: %w", err)
	}
	return exists, nil
}

func (s *Postgres) DeleteSubscriber(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM subscribers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete subscriber: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) UpsertDevice(ctx context.Context, d *subscriber.Device) error {
	_, err := s.db.Exec(ctx, `
	INSERT INTO devices (subscriber_id, token, platform)
	VALUES ($1, $2, $3)
	ON CONFLICT (token) DO UPDATE SET subscriber_id = EXCLUDED.subscriber_id, platform = EXCLUDED.platform`,
		d.SubscriberID, d.Token, d.Platform)
	if err != nil {
		return fmt.Errorf("failed to save device: %w", err)
	}
	return nil
}

func (s *Postgres) ListDevices(ctx context.Context, subscriberID int64) ([]*subscriber.Device, error) {
	rows, err := s.db.Query(ctx, `SELECT subscriber_id, token, platform FROM devices WHERE subscriber_id = $1`, subscriberID)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	defer rows.Close()

	var devices []*subscriber.Device
	for rows.Next() {
		d := &subscriber.Device{}
		if err := rows.Scan(&d.SubscriberID, &d.Token, &d.Platform); err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

func (s *Postgres) InsertSnapshot(ctx context.Context, profileID int64, stats profile.Stats, at time.Time, batchID string) (*profile.Snapshot, error) {
	snap := &profile.Snapshot{ProfileID: profileID, Timestamp: at, BatchID: batchID, Stats: stats}
	err := s.db.QueryRow(ctx, `
	INSERT INTO weekly_snapshots (profile_id, timestamp, batch_id, last_rating, problems_solved, contests_attended)
	VALUES ($1, $2, $3, $4, $5, $6)
	RETURNING id`,
		profileID, at, batchID, toColumn(stats.Rating), toColumn(stats.ProblemsSolved), toColumn(stats.ContestsAttended),
	).Scan(&snap.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return snap, nil
}

func (s *Postgres) LatestSnapshots(ctx context.Context, profileID int64, n int) ([]*profile.Snapshot, error) {
	rows, err := s.db.Query(ctx, `
	SELECT id, profile_id, timestamp, batch_id, last_rating, problems_solved, contests_attended
	FROM weekly_snapshots
	WHERE profile_id = $1
	ORDER BY timestamp DESC, id DESC
	LIMIT $2`, profileID, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []*profile.Snapshot
	for rows.Next() {
		snap := &profile.Snapshot{}
		var rating, problems, contests int
		if err := rows.Scan(&snap.ID, &snap.ProfileID, &snap.Timestamp, &snap.BatchID, &rating, &problems, &contests); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snap.Rating = fromColumn(rating)
		snap.ProblemsSolved = fromColumn(problems)
		snap.ContestsAttended = fromColumn(contests)
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
