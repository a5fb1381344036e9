// Package sqlite implements monitor.Store on an embedded SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/JakeFAU/pagewatch/internal/id/uuid"
	"github.com/JakeFAU/pagewatch/internal/monitor"
)

// timeLayout is fixed width so TEXT comparison orders chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const schema = `
CREATE TABLE IF NOT EXISTS targets (
	id                       TEXT PRIMARY KEY,
	url                      TEXT NOT NULL,
	name                     TEXT NOT NULL,
	check_interval_minutes   INTEGER NOT NULL CHECK (check_interval_minutes >= 1),
	is_active                INTEGER NOT NULL DEFAULT 1,
	last_checked_at          TEXT,
	last_content_fingerprint TEXT,
	created_at               TEXT NOT NULL,
	updated_at               TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_targets_active ON targets (is_active, created_at);

CREATE TABLE IF NOT EXISTS check_records (
	id              TEXT PRIMARY KEY,
	target_id       TEXT NOT NULL,
	fingerprint     TEXT NOT NULL DEFAULT '',
	content_preview TEXT NOT NULL DEFAULT '',
	full_content    TEXT,
	content_uri     TEXT,
	strategy        TEXT,
	change_detected INTEGER NOT NULL DEFAULT 0,
	checked_at      TEXT NOT NULL,
	error_message   TEXT,
	FOREIGN KEY(target_id) REFERENCES targets(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_check_records_target_checked ON check_records (target_id, checked_at DESC);

CREATE TABLE IF NOT EXISTS notification_records (
	id           TEXT PRIMARY KEY,
	target_id    TEXT NOT NULL,
	check_id     TEXT NOT NULL,
	delivered    INTEGER NOT NULL,
	delivered_at TEXT,
	summary      TEXT NOT NULL,
	error        TEXT,
	created_at   TEXT NOT NULL,
	FOREIGN KEY(target_id) REFERENCES targets(id) ON DELETE CASCADE,
	FOREIGN KEY(check_id) REFERENCES check_records(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_notification_records_check ON notification_records (check_id);
`

// Store implements monitor.Store for SQLite.
type Store struct {
	db  *sql.DB
	ids monitor.IDGenerator
	now func() time.Time
}

// New opens the database file and runs migrations.
func New(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("database path is required")
	}
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("unable to open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	store := &Store{
		db:  db,
		ids: uuid.NewUUIDGenerator(),
		now: func() time.Time { return time.Now().UTC() },
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

// Ping checks the database handle.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

type scanner interface {
	Scan(dest ...any) error
}

const targetColumns = `id, url, name, check_interval_minutes, is_active, last_checked_at, last_content_fingerprint, created_at, updated_at`

func scanTarget(row scanner) (monitor.Target, error) {
	var (
		t                    monitor.Target
		lastChecked, lastFP  sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(&t.ID, &t.URL, &t.Name, &t.CheckIntervalMinutes, &t.IsActive,
		&lastChecked, &lastFP, &createdAt, &updatedAt); err != nil {
		return monitor.Target{}, err
	}
	t.LastCheckedAt = parseTimePtr(lastChecked)
	if lastFP.Valid {
		fp := lastFP.String
		t.LastContentFingerprint = &fp
	}
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	return t, nil
}

func (s *Store) queryTargets(ctx context.Context, op, query string) ([]monitor.Target, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, &monitor.StorageError{Op: op, Err: err}
	}
	defer rows.Close()
	var targets []monitor.Target
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, &monitor.StorageError{Op: op, Err: err}
		}
		targets = append(targets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, &monitor.StorageError{Op: op, Err: err}
	}
	return targets, nil
}

// ListActiveTargets returns active targets in creation order.
func (s *Store) ListActiveTargets(ctx context.Context) ([]monitor.Target, error) {
	return s.queryTargets(ctx, "list active targets",
		`SELECT `+targetColumns+` FROM targets WHERE is_active = 1 ORDER BY created_at, id`)
}

// ListTargets returns every target in creation order.
func (s *Store) ListTargets(ctx context.Context) ([]monitor.Target, error) {
	return s.queryTargets(ctx, "list targets",
		`SELECT `+targetColumns+` FROM targets ORDER BY created_at, id`)
}

// GetTarget retrieves a single target by its ID.
func (s *Store) GetTarget(ctx context.Context, id string) (monitor.Target, error) {
	t, err := scanTarget(s.db.QueryRowContext(ctx, `SELECT `+targetColumns+` FROM targets WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return monitor.Target{}, monitor.ErrNotFound
	}
	if err != nil {
		return monitor.Target{}, &monitor.StorageError{Op: "get target", Err: err}
	}
	return t, nil
}

// CreateTarget saves a new target.
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
	var fp any
	if target.LastContentFingerprint != nil {
		fp = *target.LastContentFingerprint
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO targets (`+targetColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		target.ID, target.URL, target.Name, target.CheckIntervalMinutes, target.IsActive,
		formatTimePtr(target.LastCheckedAt), fp, formatTime(target.CreatedAt), formatTime(target.UpdatedAt))
	if err != nil {
		return monitor.Target{}, &monitor.StorageError{Op: "create target", Err: err}
	}
	return s.GetTarget(ctx, target.ID)
}

// UpdateTarget overwrites the user-editable fields of a target.
func (s *Store) UpdateTarget(ctx context.Context, target monitor.Target) (monitor.Target, error) {
	res, err := s.db.ExecContext(ctx, `
UPDATE targets SET url = ?, name = ?, check_interval_minutes = ?, is_active = ?, updated_at = ?
WHERE id = ?`,
		target.URL, target.Name, target.CheckIntervalMinutes, target.IsActive, formatTime(s.now()), target.ID)
	if err != nil {
		return monitor.Target{}, &monitor.StorageError{Op: "update target", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return monitor.Target{}, monitor.ErrNotFound
	}
	return s.GetTarget(ctx, target.ID)
}

// DeleteTarget removes a target along with its checks and notifications.
func (s *Store) DeleteTarget(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM targets WHERE id = ?`, id)
	if err != nil {
		return &monitor.StorageError{Op: "delete target", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return monitor.ErrNotFound
	}
	return nil
}

// UpdateTargetAfterCheck records the latest fingerprint unless checkedAt is older than the stored one.
func (s *Store) UpdateTargetAfterCheck(ctx context.Context, id string, fingerprint string, checkedAt time.Time) error {
	at := formatTime(checkedAt)
	res, err := s.db.ExecContext(ctx, `
UPDATE targets SET last_content_fingerprint = ?, last_checked_at = ?, updated_at = ?
WHERE id = ? AND (last_checked_at IS NULL OR last_checked_at <= ?)`,
		fingerprint, at, formatTime(s.now()), id, at)
	if err != nil {
		return &monitor.StorageError{Op: "update target after check", Err: err}
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM targets WHERE id = ?)`, id).Scan(&exists); err != nil {
		return &monitor.StorageError{Op: "update target after check", Err: err}
	}
	if !exists {
		return monitor.ErrNotFound
	}
	return nil
}

// CreateCheckRecord saves a new check record.
func (s *Store) CreateCheckRecord(ctx context.Context, record monitor.CheckRecord) (string, error) {
	if record.ID == "" {
		id, err := s.ids.NewID()
		if err != nil {
			return "", &monitor.StorageError{Op: "create check record", Err: err}
		}
		record.ID = id
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO check_records (
	id, target_id, fingerprint, content_preview, full_content, content_uri,
	strategy, change_detected, checked_at, error_message
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.TargetID, record.Fingerprint, record.ContentPreview,
		nullable(record.FullContent), nullable(record.ContentURI), nullable(record.Strategy),
		record.ChangeDetected, formatTime(record.CheckedAt), nullable(record.ErrorMessage))
	if err != nil {
		return "", &monitor.StorageError{Op: "create check record", Err: err}
	}
	return record.ID, nil
}

// GetMostRecentCheckRecord returns the newest successful record for the target other than excludingID.
func (s *Store) GetMostRecentCheckRecord(ctx context.Context, targetID string, excludingID string) (*monitor.CheckRecord, error) {
	var (
		rec                      monitor.CheckRecord
		full, uri, strategy, msg sql.NullString
		checkedAt                string
	)
	err := s.db.QueryRowContext(ctx, `
SELECT id, target_id, fingerprint, content_preview, full_content, content_uri,
	strategy, change_detected, checked_at, error_message
FROM check_records
WHERE target_id = ? AND id <> ? AND COALESCE(error_message, '') = ''
ORDER BY checked_at DESC, id DESC
LIMIT 1`, targetID, excludingID).Scan(&rec.ID, &rec.TargetID, &rec.Fingerprint, &rec.ContentPreview,
		&full, &uri, &strategy, &rec.ChangeDetected, &checkedAt, &msg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &monitor.StorageError{Op: "get most recent check record", Err: err}
	}
	rec.FullContent = full.String
	rec.ContentURI = uri.String
	rec.Strategy = strategy.String
	rec.ErrorMessage = msg.String
	rec.CheckedAt = parseTime(checkedAt)
	return &rec, nil
}

// CreateNotificationRecord saves a notification outcome.
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
	_, err := s.db.ExecContext(ctx, `
INSERT INTO notification_records (id, target_id, check_id, delivered, delivered_at, summary, error, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.TargetID, record.CheckID, record.Delivered, formatTimePtr(record.DeliveredAt),
		record.Summary, nullable(record.Error), formatTime(record.CreatedAt))
	if err != nil {
		return "", &monitor.StorageError{Op: "create notification record", Err: err}
	}
	return record.ID, nil
}

// ListRecentChecks returns the newest check records joined with target and notification.
func (s *Store) ListRecentChecks(ctx context.Context, limit int) ([]monitor.CheckLog, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT c.id, c.target_id, c.fingerprint, c.content_preview, c.content_uri, c.strategy,
	c.change_detected, c.checked_at, c.error_message, t.name, t.url,
	n.id, n.delivered, n.delivered_at, n.summary, n.error, n.created_at
FROM check_records c
JOIN targets t ON t.id = c.target_id
LEFT JOIN notification_records n ON n.check_id = c.id
ORDER BY c.checked_at DESC, c.id DESC
LIMIT ?`, limit)
	if err != nil {
		return nil, &monitor.StorageError{Op: "list recent checks", Err: err}
	}
	defer rows.Close()

	var logs []monitor.CheckLog
	for rows.Next() {
		var (
			entry                                       monitor.CheckLog
			uri, strategy, msg                          sql.NullString
			checkedAt                                   string
			nID, nDeliveredAt, nSummary, nErr, nCreated sql.NullString
			nDelivered                                  sql.NullBool
		)
		c := &entry.Check
		if err := rows.Scan(&c.ID, &c.TargetID, &c.Fingerprint, &c.ContentPreview, &uri, &strategy,
			&c.ChangeDetected, &checkedAt, &msg, &entry.TargetName, &entry.TargetURL,
			&nID, &nDelivered, &nDeliveredAt, &nSummary, &nErr, &nCreated); err != nil {
			return nil, &monitor.StorageError{Op: "list recent checks", Err: err}
		}
		c.ContentURI = uri.String
		c.Strategy = strategy.String
		c.ErrorMessage = msg.String
		c.CheckedAt = parseTime(checkedAt)
		if nID.Valid {
			entry.Notification = &monitor.NotificationRecord{
				ID:          nID.String,
				TargetID:    c.TargetID,
				CheckID:     c.ID,
				Delivered:   nDelivered.Bool,
				DeliveredAt: parseTimePtr(nDeliveredAt),
				Summary:     nSummary.String,
				Error:       nErr.String,
				CreatedAt:   parseTime(nCreated.String),
			}
		}
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, &monitor.StorageError{Op: "list recent checks", Err: err}
	}
	return logs, nil
}
