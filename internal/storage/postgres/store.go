// Package postgres provides the Postgres-backed monitor.Store.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/pagewatch/internal/id/uuid"
	"github.com/JakeFAU/pagewatch/internal/monitor"
)

//go:embed schema.sql
var schema string

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	// Migrate applies schema.sql on startup.
	Migrate bool
}

type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Store implements monitor.Store on Postgres.
type Store struct {
	pool pool
	ids  monitor.IDGenerator
	now  func() time.Time
}

// NewStore connects to Postgres using the provided config.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewStoreWithPool(p)
	if err != nil {
		p.Close()
		return nil, err
	}
	if cfg.Migrate {
		if err := store.Migrate(ctx); err != nil {
			p.Close()
			return nil, err
		}
	}
	return store, nil
}

// NewStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewStoreWithPool(p pool) (*Store, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	return &Store{
		pool: p,
		ids:  uuid.NewUUIDGenerator(),
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

const targetColumns = `id, url, name, check_interval_minutes, is_active, last_checked_at, last_content_fingerprint, created_at, updated_at`

func scanTarget(row pgx.Row) (monitor.Target, error) {
	var t monitor.Target
	err := row.Scan(&t.ID, &t.URL, &t.Name, &t.CheckIntervalMinutes, &t.IsActive,
		&t.LastCheckedAt, &t.LastContentFingerprint, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func (s *Store) queryTargets(ctx context.Context, op, query string, args ...any) ([]monitor.Target, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, &monitor.StorageError{Op: op, Err: err}
	}
	defer rows.Close()
	var out []monitor.Target
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, &monitor.StorageError{Op: op, Err: err}
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, &monitor.StorageError{Op: op, Err: err}
	}
	return out, nil
}

// ListActiveTargets implements monitor.Store.
func (s *Store) ListActiveTargets(ctx context.Context) ([]monitor.Target, error) {
	return s.queryTargets(ctx, "list active targets",
		`SELECT `+targetColumns+` FROM targets WHERE is_active ORDER BY created_at, id`)
}

// ListTargets implements monitor.Store.
func (s *Store) ListTargets(ctx context.Context) ([]monitor.Target, error) {
	return s.queryTargets(ctx, "list targets",
		`SELECT `+targetColumns+` FROM targets ORDER BY created_at, id`)
}

// GetTarget implements monitor.Store.
func (s *Store) GetTarget(ctx context.Context, id string) (monitor.Target, error) {
	t, err := scanTarget(s.pool.QueryRow(ctx, `SELECT `+targetColumns+` FROM targets WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return monitor.Target{}, monitor.ErrNotFound
	}
	if err != nil {
		return monitor.Target{}, &monitor.StorageError{Op: "get target", Err: err}
	}
	return t, nil
}

// CreateTarget implements monitor.Store.
func (s *Store) CreateTarget(ctx context.Context, target monitor.Target) (monitor.Target, error) {
	if target.ID == "" {
		id, err := s.ids.NewID()
		if err != nil {
			return monitor.Target{}, &monitor.StorageError{Op: "create target", Err: err}
		}
		target.ID = id
	}
	now := s.now()
	if target.CreatedAt.IsZero() {
		target.CreatedAt = now
	}
	target.UpdatedAt = now
	_, err := s.pool.Exec(ctx, `
INSERT INTO targets (`+targetColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		target.ID, target.URL, target.Name, target.CheckIntervalMinutes, target.IsActive,
		target.LastCheckedAt, target.LastContentFingerprint, target.CreatedAt, target.UpdatedAt)
	if err != nil {
		return monitor.Target{}, &monitor.StorageError{Op: "create target", Err: err}
	}
	return target, nil
}

// UpdateTarget implements monitor.Store.
func (s *Store) UpdateTarget(ctx context.Context, target monitor.Target) (monitor.Target, error) {
	t, err := scanTarget(s.pool.QueryRow(ctx, `
UPDATE targets
SET url = $2, name = $3, check_interval_minutes = $4, is_active = $5, updated_at = $6
WHERE id = $1
RETURNING `+targetColumns,
		target.ID, target.URL, target.Name, target.CheckIntervalMinutes, target.IsActive, s.now()))
	if errors.Is(err, pgx.ErrNoRows) {
		return monitor.Target{}, monitor.ErrNotFound
	}
	if err != nil {
		return monitor.Target{}, &monitor.StorageError{Op: "update target", Err: err}
	}
	return t, nil
}

// DeleteTarget implements monitor.Store. Checks and notifications cascade.
func (s *Store) DeleteTarget(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM targets WHERE id = $1`, id)
	if err != nil {
		return &monitor.StorageError{Op: "delete target", Err: err}
	}
	if tag.RowsAffected() == 0 {
		return monitor.ErrNotFound
	}
	return nil
}

// UpdateTargetAfterCheck implements monitor.Store. A stale checkedAt leaves the row untouched.
func (s *Store) UpdateTargetAfterCheck(ctx context.Context, id string, fingerprint string, checkedAt time.Time) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE targets
SET last_content_fingerprint = $2, last_checked_at = $3, updated_at = $4
WHERE id = $1 AND (last_checked_at IS NULL OR last_checked_at <= $3)`,
		id, fingerprint, checkedAt, s.now())
	if err != nil {
		return &monitor.StorageError{Op: "update target after check", Err: err}
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM targets WHERE id = $1)`, id).Scan(&exists); err != nil {
		return &monitor.StorageError{Op: "update target after check", Err: err}
	}
	if !exists {
		return monitor.ErrNotFound
	}
	return nil
}

// CreateCheckRecord implements monitor.Store.
func (s *Store) CreateCheckRecord(ctx context.Context, record monitor.CheckRecord) (string, error) {
	if record.ID == "" {
		id, err := s.ids.NewID()
		if err != nil {
			return "", &monitor.StorageError{Op: "create check record", Err: err}
		}
		record.ID = id
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO check_records (
	id, target_id, fingerprint, content_preview, full_content, content_uri,
	strategy, change_detected, checked_at, error_message
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		record.ID, record.TargetID, record.Fingerprint, record.ContentPreview,
		nullString(record.FullContent), nullString(record.ContentURI), nullString(record.Strategy),
		record.ChangeDetected, record.CheckedAt, nullString(record.ErrorMessage))
	if err != nil {
		return "", &monitor.StorageError{Op: "create check record", Err: err}
	}
	return record.ID, nil
}

const checkColumns = `c.id, c.target_id, c.fingerprint, c.content_preview, c.full_content, c.content_uri, c.strategy, c.change_detected, c.checked_at, c.error_message`

// GetMostRecentCheckRecord implements monitor.Store.
func (s *Store) GetMostRecentCheckRecord(ctx context.Context, targetID string, excludingID string) (*monitor.CheckRecord, error) {
	row := s.pool.QueryRow(ctx, `
SELECT `+checkColumns+`
FROM check_records c
WHERE c.target_id = $1 AND c.id <> $2 AND COALESCE(c.error_message, '') = ''
ORDER BY c.checked_at DESC, c.id DESC
LIMIT 1`, targetID, excludingID)
	var (
		rec                                    monitor.CheckRecord
		fullContent, contentURI, strategy, msg *string
	)
	err := row.Scan(&rec.ID, &rec.TargetID, &rec.Fingerprint, &rec.ContentPreview,
		&fullContent, &contentURI, &strategy, &rec.ChangeDetected, &rec.CheckedAt, &msg)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &monitor.StorageError{Op: "get most recent check record", Err: err}
	}
	rec.FullContent = deref(fullContent)
	rec.ContentURI = deref(contentURI)
	rec.Strategy = deref(strategy)
	rec.ErrorMessage = deref(msg)
	return &rec, nil
}

// CreateNotificationRecord implements monitor.Store.
func (s *Store) CreateNotificationRecord(ctx context.Context, record monitor.NotificationRecord) (string, error) {
	if record.ID == "" {
		id, err := s.ids.NewID()
		if err != nil {
			return "", &monitor.StorageError{Op: "create notification record", Err: err}
		}
		record.ID = id
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = s.now()
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO notification_records (
	id, target_id, check_id, delivered, delivered_at, summary, error, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		record.ID, record.TargetID, record.CheckID, record.Delivered, record.DeliveredAt,
		record.Summary, nullString(record.Error), record.CreatedAt)
	if err != nil {
		return "", &monitor.StorageError{Op: "create notification record", Err: err}
	}
	return record.ID, nil
}

// ListRecentChecks implements monitor.Store. Full content is not loaded.
func (s *Store) ListRecentChecks(ctx context.Context, limit int) ([]monitor.CheckLog, error) {
	rows, err := s.pool.Query(ctx, `
SELECT c.id, c.target_id, c.fingerprint, c.content_preview, c.content_uri, c.strategy,
	c.change_detected, c.checked_at, c.error_message, t.name, t.url,
	n.id, n.delivered, n.delivered_at, n.summary, n.error, n.created_at
FROM check_records c
JOIN targets t ON t.id = c.target_id
LEFT JOIN notification_records n ON n.check_id = c.id
ORDER BY c.checked_at DESC, c.id DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, &monitor.StorageError{Op: "list recent checks", Err: err}
	}
	defer rows.Close()

	var out []monitor.CheckLog
	for rows.Next() {
		var (
			entry                            monitor.CheckLog
			contentURI, strategy, msg        *string
			notifID, notifSummary, notifErr  *string
			notifDelivered                   *bool
			notifDeliveredAt, notifCreatedAt *time.Time
		)
		c := &entry.Check
		if err := rows.Scan(&c.ID, &c.TargetID, &c.Fingerprint, &c.ContentPreview,
			&contentURI, &strategy, &c.ChangeDetected, &c.CheckedAt, &msg,
			&entry.TargetName, &entry.TargetURL,
			&notifID, &notifDelivered, &notifDeliveredAt, &notifSummary, &notifErr, &notifCreatedAt); err != nil {
			return nil, &monitor.StorageError{Op: "list recent checks", Err: err}
		}
		c.ContentURI = deref(contentURI)
		c.Strategy = deref(strategy)
		c.ErrorMessage = deref(msg)
		if notifID != nil {
			entry.Notification = &monitor.NotificationRecord{
				ID:          *notifID,
				TargetID:    c.TargetID,
				CheckID:     c.ID,
				Delivered:   notifDelivered != nil && *notifDelivered,
				DeliveredAt: notifDeliveredAt,
				Summary:     deref(notifSummary),
				Error:       deref(notifErr),
			}
			if notifCreatedAt != nil {
				entry.Notification.CreatedAt = *notifCreatedAt
			}
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, &monitor.StorageError{Op: "list recent checks", Err: err}
	}
	return out, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
