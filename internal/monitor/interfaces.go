package monitor

import (
	"context"
	"io"
	"time"
)

// Store persists targets, check records, and notification records.
type Store interface {
	ListActiveTargets(ctx context.Context) ([]Target, error)
	GetTarget(ctx context.Context, id string) (Target, error)
	UpdateTargetAfterCheck(ctx context.Context, id string, fingerprint string, checkedAt time.Time) error
	CreateCheckRecord(ctx context.Context, record CheckRecord) (string, error)
	GetMostRecentCheckRecord(ctx context.Context, targetID string, excludingID string) (*CheckRecord, error)
	CreateNotificationRecord(ctx context.Context, record NotificationRecord) (string, error)

	CreateTarget(ctx context.Context, target Target) (Target, error)
	UpdateTarget(ctx context.Context, target Target) (Target, error)
	DeleteTarget(ctx context.Context, id string) error
	ListTargets(ctx context.Context) ([]Target, error)
	ListRecentChecks(ctx context.Context, limit int) ([]CheckLog, error)
	Ping(ctx context.Context) error
	Close() error
}

// Fetcher retrieves normalized page text for a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Content, error)
}

// Strategy is one interchangeable way of fetching a page.
type Strategy interface {
	Name() string
	Fetch(ctx context.Context, url string) (string, error)
}

// Notifier delivers change notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// BlobStore writes content snapshots and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Hasher computes content fingerprints.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces record IDs.
type IDGenerator interface {
	NewID() (string, error)
}
