package monitor

import (
	"time"
)

// PreviewLimit is the number of runes kept in CheckRecord.ContentPreview.
const PreviewLimit = 500

// Target is a monitored URL with its own check cadence.
type Target struct {
	ID                     string     `json:"id"`
	URL                    string     `json:"url"`
	Name                   string     `json:"name"`
	CheckIntervalMinutes   int        `json:"check_interval_minutes"`
	IsActive               bool       `json:"is_active"`
	LastCheckedAt          *time.Time `json:"last_checked_at,omitempty"`
	LastContentFingerprint *string    `json:"last_content_fingerprint,omitempty"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

// Interval returns the configured check interval as a duration.
func (t Target) Interval() time.Duration {
	return time.Duration(t.CheckIntervalMinutes) * time.Minute
}

// CheckRecord is the immutable outcome of one check attempt.
type CheckRecord struct {
	ID             string    `json:"id"`
	TargetID       string    `json:"target_id"`
	Fingerprint    string    `json:"fingerprint"`
	ContentPreview string    `json:"content_preview"`
	FullContent    string    `json:"full_content,omitempty"`
	ContentURI     string    `json:"content_uri,omitempty"`
	Strategy       string    `json:"strategy,omitempty"`
	ChangeDetected bool      `json:"change_detected"`
	CheckedAt      time.Time `json:"checked_at"`
	ErrorMessage   string    `json:"error_message,omitempty"`
}

// Failed reports whether the record captures a failed attempt.
func (r CheckRecord) Failed() bool {
	return r.ErrorMessage != ""
}

// NotificationRecord tracks the delivery outcome of a change notification.
type NotificationRecord struct {
	ID          string     `json:"id"`
	TargetID    string     `json:"target_id"`
	CheckID     string     `json:"check_id"`
	Delivered   bool       `json:"delivered"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	Summary     string     `json:"summary"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// CheckLog is a check record joined with its target and notification, newest first.
type CheckLog struct {
	Check        CheckRecord         `json:"check"`
	TargetName   string              `json:"target_name"`
	TargetURL    string              `json:"target_url"`
	Notification *NotificationRecord `json:"notification,omitempty"`
}

// Content is normalized page text and the strategy that produced it.
type Content struct {
	Text     string
	Strategy string
}

// Notification is everything a notifier needs to describe one change.
type Notification struct {
	Target          Target
	Check           CheckRecord
	PreviousContent string
	CurrentContent  string
	Summary         string
	RenderedDiff    string
}

// Outcome classifies a single check.
type Outcome string

// Check outcomes.
const (
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeChanged   Outcome = "changed"
	OutcomeFailed    Outcome = "failed"
)

// CheckResult is the per-target result reported by a pass.
type CheckResult struct {
	TargetID    string
	Outcome     Outcome
	CheckID     string
	Fingerprint string
	Err         error
}

// Success reports whether the check produced content.
func (r CheckResult) Success() bool {
	return r.Outcome != OutcomeFailed
}

// ChangeDetected reports whether the check observed a change.
func (r CheckResult) ChangeDetected() bool {
	return r.Outcome == OutcomeChanged
}

// PassMode selects which active targets a pass checks.
type PassMode string

// Pass modes.
const (
	PassDue PassMode = "due"
	PassAll PassMode = "all"
)

// PassSummary aggregates the results of one pass.
type PassSummary struct {
	Mode             PassMode
	StartedAt        time.Time
	TotalActiveCount int
	Results          []CheckResult
}

// CheckedCount returns the number of targets attempted in the pass.
func (s PassSummary) CheckedCount() int {
	return len(s.Results)
}

// Preview truncates content to PreviewLimit runes, appending "..." when cut.
func Preview(content string) string {
	runes := []rune(content)
	if len(runes) <= PreviewLimit {
		return content
	}
	return string(runes[:PreviewLimit]) + "..."
}
