// Package memory provides in-memory storage for development and tests.
package memory

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/pagewatch/internal/id/uuid"
	"github.com/JakeFAU/pagewatch/internal/monitor"
)

// Store implements monitor.Store with maps guarded by a mutex.
type Store struct {
	mu            sync.RWMutex
	targets       map[string]monitor.Target
	checks        []monitor.CheckRecord
	notifications []monitor.NotificationRecord
	ids           *uuid.Generator
	now           func() time.Time
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		targets: make(map[string]monitor.Target),
		ids:     uuid.NewUUIDGenerator(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() error { return nil }

// CreateTarget stores a target, assigning an ID and timestamps when missing.
func (s *Store) CreateTarget(_ context.Context, target monitor.Target) (monitor.Target, error) {
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

	s.mu.Lock()
	defer s.mu.Unlock()
	s.targets[target.ID] = cloneTarget(target)
	return cloneTarget(target), nil
}

// UpdateTarget replaces the editable fields of an existing target.
func (s *Store) UpdateTarget(_ context.Context, target monitor.Target) (monitor.Target, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.targets[target.ID]
	if !ok {
		return monitor.Target{}, monitor.ErrNotFound
	}
	existing.URL = target.URL
	existing.Name = target.Name
	existing.CheckIntervalMinutes = target.CheckIntervalMinutes
	existing.IsActive = target.IsActive
	existing.UpdatedAt = s.now()
	s.targets[target.ID] = existing
	return cloneTarget(existing), nil
}

// DeleteTarget removes a target with its checks and notifications.
func (s *Store) DeleteTarget(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.targets[id]; !ok {
		return monitor.ErrNotFound
	}
	delete(s.targets, id)
	s.checks = slices.DeleteFunc(s.checks, func(c monitor.CheckRecord) bool { return c.TargetID == id })
	s.notifications = slices.DeleteFunc(s.notifications, func(n monitor.NotificationRecord) bool { return n.TargetID == id })
	return nil
}

// ListTargets returns every target ordered by creation time.
func (s *Store) ListTargets(_ context.Context) ([]monitor.Target, error) {
	return s.list(func(monitor.Target) bool { return true }), nil
}

// ListActiveTargets returns active targets ordered by creation time.
func (s *Store) ListActiveTargets(_ context.Context) ([]monitor.Target, error) {
	return s.list(func(t monitor.Target) bool { return t.IsActive }), nil
}

func (s *Store) list(keep func(monitor.Target) bool) []monitor.Target {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]monitor.Target, 0, len(s.targets))
	for _, t := range s.targets {
		if keep(t) {
			out = append(out, cloneTarget(t))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// GetTarget returns a target or monitor.ErrNotFound.
func (s *Store) GetTarget(_ context.Context, id string) (monitor.Target, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.targets[id]
	if !ok {
		return monitor.Target{}, monitor.ErrNotFound
	}
	return cloneTarget(t), nil
}

// UpdateTargetAfterCheck records a new fingerprint. Updates older than the
// stored LastCheckedAt are ignored so the timestamp never moves backwards.
func (s *Store) UpdateTargetAfterCheck(_ context.Context, id string, fingerprint string, checkedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.targets[id]
	if !ok {
		return monitor.ErrNotFound
	}
	if t.LastCheckedAt != nil && checkedAt.Before(*t.LastCheckedAt) {
		return nil
	}
	checked := checkedAt.UTC()
	fp := fingerprint
	t.LastCheckedAt = &checked
	t.LastContentFingerprint = &fp
	t.UpdatedAt = s.now()
	s.targets[id] = t
	return nil
}

// CreateCheckRecord appends an immutable check record.
func (s *Store) CreateCheckRecord(_ context.Context, record monitor.CheckRecord) (string, error) {
	if record.ID == "" {
		id, err := s.ids.NewID()
		if err != nil {
			return "", &monitor.StorageError{Op: "create check record", Err: err}
		}
		record.ID = id
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.targets[record.TargetID]; !ok {
		return "", &monitor.StorageError{Op: "create check record", Err: monitor.ErrNotFound}
	}
	s.checks = append(s.checks, record)
	return record.ID, nil
}

// GetMostRecentCheckRecord returns the newest successful record for a target
// other than excludingID, or nil when there is none.
func (s *Store) GetMostRecentCheckRecord(_ context.Context, targetID string, excludingID string) (*monitor.CheckRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *monitor.CheckRecord
	for i := range s.checks {
		c := s.checks[i]
		if c.TargetID != targetID || c.ID == excludingID || c.Failed() {
			continue
		}
		if best == nil || c.CheckedAt.After(best.CheckedAt) ||
			(c.CheckedAt.Equal(best.CheckedAt) && c.ID > best.ID) {
			found := c
			best = &found
		}
	}
	return best, nil
}

// CreateNotificationRecord appends a notification record.
func (s *Store) CreateNotificationRecord(_ context.Context, record monitor.NotificationRecord) (string, error) {
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
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, record)
	return record.ID, nil
}

// ListRecentChecks returns the newest checks joined with target and notification data.
func (s *Store) ListRecentChecks(_ context.Context, limit int) ([]monitor.CheckLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	checks := slices.Clone(s.checks)
	sort.SliceStable(checks, func(i, j int) bool {
		if checks[i].CheckedAt.Equal(checks[j].CheckedAt) {
			return strings.Compare(checks[i].ID, checks[j].ID) > 0
		}
		return checks[i].CheckedAt.After(checks[j].CheckedAt)
	})
	if limit > 0 && len(checks) > limit {
		checks = checks[:limit]
	}
	out := make([]monitor.CheckLog, 0, len(checks))
	for _, c := range checks {
		entry := monitor.CheckLog{Check: c}
		if t, ok := s.targets[c.TargetID]; ok {
			entry.TargetName = t.Name
			entry.TargetURL = t.URL
		}
		for i := range s.notifications {
			if s.notifications[i].CheckID == c.ID {
				n := s.notifications[i]
				entry.Notification = &n
				break
			}
		}
		out = append(out, entry)
	}
	return out, nil
}

// Checks returns a copy of every stored check record in insertion order.
func (s *Store) Checks() []monitor.CheckRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.checks)
}

// Notifications returns a copy of every stored notification record.
func (s *Store) Notifications() []monitor.NotificationRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.notifications)
}

func cloneTarget(t monitor.Target) monitor.Target {
	if t.LastCheckedAt != nil {
		v := *t.LastCheckedAt
		t.LastCheckedAt = &v
	}
	if t.LastContentFingerprint != nil {
		v := *t.LastContentFingerprint
		t.LastContentFingerprint = &v
	}
	return t
}
