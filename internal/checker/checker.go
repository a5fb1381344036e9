// Package checker runs the check pipeline for monitored targets: fetch,
// fingerprint, compare, notify on change, and record the outcome.
package checker

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/pagewatch/internal/diff"
	"github.com/JakeFAU/pagewatch/internal/metrics"
	"github.com/JakeFAU/pagewatch/internal/monitor"
	"github.com/JakeFAU/pagewatch/internal/schedule"
)

const tracerName = "github.com/JakeFAU/pagewatch/internal/checker"

// Config controls Checker behavior.
type Config struct {
	// StoreFullContent keeps the full normalized text on each CheckRecord.
	StoreFullContent bool
	// SnapshotPrefix is prepended to blob snapshot paths.
	SnapshotPrefix string
}

// Checker orchestrates checks against the store, fetcher, and notifier.
type Checker struct {
	store    monitor.Store
	fetcher  monitor.Fetcher
	hasher   monitor.Hasher
	notifier monitor.Notifier
	blobs    monitor.BlobStore
	clock    monitor.Clock
	cfg      Config
	locks    *targetLocks
	tracer   trace.Tracer
	logger   *zap.Logger
}

// New constructs a Checker. blobs may be nil to disable snapshots.
func New(
	store monitor.Store,
	fetcher monitor.Fetcher,
	hasher monitor.Hasher,
	notifier monitor.Notifier,
	blobs monitor.BlobStore,
	clock monitor.Clock,
	cfg Config,
	logger *zap.Logger,
) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = missingNotifier{}
	}
	return &Checker{
		store:    store,
		fetcher:  fetcher,
		hasher:   hasher,
		notifier: notifier,
		blobs:    blobs,
		clock:    clock,
		cfg:      cfg,
		locks:    newTargetLocks(),
		tracer:   otel.Tracer(tracerName),
		logger:   logger.Named("checker"),
	}
}

// RunPass checks the active targets selected by mode, one at a time. Only a
// failure to list targets is returned as an error; per-target failures are
// reported in the summary. Once ctx is done no further targets are started.
func (c *Checker) RunPass(ctx context.Context, mode monitor.PassMode) (monitor.PassSummary, error) {
	ctx, span := c.tracer.Start(ctx, "checker.RunPass", trace.WithAttributes(attribute.String("pass.mode", string(mode))))
	defer span.End()

	summary := monitor.PassSummary{Mode: mode, StartedAt: c.clock.Now()}
	if mode != monitor.PassDue && mode != monitor.PassAll {
		err := fmt.Errorf("unknown pass mode %q", mode)
		span.SetStatus(codes.Error, err.Error())
		return summary, err
	}

	targets, err := c.store.ListActiveTargets(ctx)
	if err != nil {
		metrics.ObservePass(string(mode), err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "list active targets")
		return summary, fmt.Errorf("list active targets: %w", err)
	}
	summary.TotalActiveCount = len(targets)

	selected := targets
	if mode == monitor.PassDue {
		selected = schedule.Due(targets, summary.StartedAt)
	}

	for _, target := range selected {
		if ctx.Err() != nil {
			c.logger.Warn("pass interrupted", zap.String("mode", string(mode)), zap.Int("remaining", len(selected)-len(summary.Results)))
			break
		}
		summary.Results = append(summary.Results, c.Check(ctx, target.ID))
	}

	changed, failed := 0, 0
	for _, r := range summary.Results {
		switch r.Outcome {
		case monitor.OutcomeChanged:
			changed++
		case monitor.OutcomeFailed:
			failed++
		case monitor.OutcomeUnchanged:
		}
	}
	span.SetAttributes(
		attribute.Int("pass.active", summary.TotalActiveCount),
		attribute.Int("pass.checked", summary.CheckedCount()),
	)
	metrics.ObservePass(string(mode), nil)
	c.logger.Info("pass complete",
		zap.String("mode", string(mode)),
		zap.Int("active", summary.TotalActiveCount),
		zap.Int("checked", summary.CheckedCount()),
		zap.Int("changed", changed),
		zap.Int("failed", failed),
	)
	return summary, nil
}

// Check runs a single target through the pipeline. Failures are reported on
// the result, never returned.
func (c *Checker) Check(ctx context.Context, targetID string) monitor.CheckResult {
	start := time.Now()
	ctx, span := c.tracer.Start(ctx, "checker.Check", trace.WithAttributes(attribute.String("target.id", targetID)))
	defer span.End()

	res := c.lockedCheck(ctx, targetID)

	span.SetAttributes(attribute.String("check.outcome", string(res.Outcome)))
	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Err.Error())
		c.logger.Warn("check failed", zap.String("target_id", targetID), zap.Error(res.Err))
	}
	metrics.ObserveCheck(string(res.Outcome), time.Since(start))
	return res
}

func (c *Checker) lockedCheck(ctx context.Context, targetID string) monitor.CheckResult {
	unlock, ok := c.locks.tryLock(targetID)
	if !ok {
		return failed(targetID, "", monitor.ErrCheckInProgress)
	}
	defer unlock()
	return c.check(ctx, targetID)
}

func (c *Checker) check(ctx context.Context, targetID string) monitor.CheckResult {
	target, err := c.store.GetTarget(ctx, targetID)
	if errors.Is(err, monitor.ErrNotFound) {
		return failed(targetID, "", monitor.ErrNotFoundOrInactive)
	}
	if err != nil {
		return failed(targetID, "", storageError("get target", err))
	}
	now := c.clock.Now()
	if !target.IsActive {
		return c.recordFailure(ctx, target.ID, now, monitor.ErrNotFoundOrInactive)
	}

	content, err := c.fetcher.Fetch(ctx, target.URL)
	if err != nil {
		return c.recordFailure(ctx, target.ID, now, err)
	}
	fingerprint, err := c.hasher.Hash([]byte(content.Text))
	if err != nil {
		return c.recordFailure(ctx, target.ID, now, fmt.Errorf("hash content: %w", err))
	}
	changed := target.LastContentFingerprint != nil && *target.LastContentFingerprint != fingerprint

	record := monitor.CheckRecord{
		TargetID:       target.ID,
		Fingerprint:    fingerprint,
		ContentPreview: monitor.Preview(content.Text),
		Strategy:       content.Strategy,
		ChangeDetected: changed,
		CheckedAt:      now,
	}
	if c.cfg.StoreFullContent {
		record.FullContent = content.Text
	}
	record.ContentURI = c.snapshot(ctx, target.ID, fingerprint, content.Text)

	checkID, err := c.store.CreateCheckRecord(ctx, record)
	if err != nil {
		return failed(target.ID, "", storageError("create check record", err))
	}
	record.ID = checkID

	if changed {
		if err := c.notifyChange(ctx, target, record, content.Text); err != nil {
			res := failed(target.ID, checkID, err)
			res.Fingerprint = fingerprint
			return res
		}
	}

	if err := c.store.UpdateTargetAfterCheck(ctx, target.ID, fingerprint, now); err != nil {
		res := failed(target.ID, checkID, storageError("update target after check", err))
		res.Fingerprint = fingerprint
		return res
	}

	outcome := monitor.OutcomeUnchanged
	if changed {
		outcome = monitor.OutcomeChanged
	}
	c.logger.Info("check complete",
		zap.String("target_id", target.ID),
		zap.String("check_id", checkID),
		zap.String("outcome", string(outcome)),
		zap.String("strategy", content.Strategy),
	)
	return monitor.CheckResult{
		TargetID:    target.ID,
		Outcome:     outcome,
		CheckID:     checkID,
		Fingerprint: fingerprint,
	}
}

// notifyChange diffs against the prior record, notifies, and records the
// delivery outcome. Only a storage failure is returned; delivery failures are
// recorded on the NotificationRecord.
func (c *Checker) notifyChange(ctx context.Context, target monitor.Target, record monitor.CheckRecord, current string) error {
	previous := ""
	prior, err := c.store.GetMostRecentCheckRecord(ctx, target.ID, record.ID)
	if err != nil {
		c.logger.Warn("load prior check failed", zap.String("target_id", target.ID), zap.Error(err))
	} else if prior != nil {
		previous = prior.FullContent
		if previous == "" {
			previous = prior.ContentPreview
		}
	}

	delta := diff.Words(previous, current)
	notifyErr := c.notifier.Notify(ctx, monitor.Notification{
		Target:          target,
		Check:           record,
		PreviousContent: previous,
		CurrentContent:  current,
		Summary:         delta.Summary,
		RenderedDiff:    delta.Rendered,
	})

	notification := monitor.NotificationRecord{
		TargetID:  target.ID,
		CheckID:   record.ID,
		Delivered: notifyErr == nil,
		Summary:   delta.Summary,
	}
	if notifyErr == nil {
		at := c.clock.Now()
		notification.DeliveredAt = &at
	} else {
		notification.Summary = delta.Summary + " - notification failed"
		notification.Error = notifyErr.Error()
		c.logger.Error("notification failed",
			zap.String("target_id", target.ID),
			zap.String("check_id", record.ID),
			zap.Error(notifyErr),
		)
	}
	metrics.ObserveNotification(notification.Delivered)

	if _, err := c.store.CreateNotificationRecord(ctx, notification); err != nil {
		return storageError("create notification record", err)
	}
	return nil
}

// recordFailure persists a failed CheckRecord and leaves the target untouched.
func (c *Checker) recordFailure(ctx context.Context, targetID string, now time.Time, cause error) monitor.CheckResult {
	checkID, err := c.store.CreateCheckRecord(ctx, monitor.CheckRecord{
		TargetID:     targetID,
		CheckedAt:    now,
		ErrorMessage: cause.Error(),
	})
	if err != nil {
		return failed(targetID, "", errors.Join(cause, storageError("create check record", err)))
	}
	return failed(targetID, checkID, cause)
}

// snapshot writes the text to the blob store and returns its URI, or "" when
// snapshots are disabled or the write fails.
func (c *Checker) snapshot(ctx context.Context, targetID, fingerprint, text string) string {
	if c.blobs == nil {
		return ""
	}
	uri, err := c.blobs.PutObject(ctx, c.snapshotPath(targetID, fingerprint), "text/plain; charset=utf-8", strings.NewReader(text))
	if err != nil {
		c.logger.Warn("snapshot upload failed", zap.String("target_id", targetID), zap.Error(err))
		return ""
	}
	return uri
}

func (c *Checker) snapshotPath(targetID, fingerprint string) string {
	name := fingerprint + ".txt"
	prefix := strings.Trim(c.cfg.SnapshotPrefix, "/")
	if prefix == "" {
		return path.Join(targetID, name)
	}
	return path.Join(prefix, targetID, name)
}

func failed(targetID, checkID string, err error) monitor.CheckResult {
	return monitor.CheckResult{TargetID: targetID, Outcome: monitor.OutcomeFailed, CheckID: checkID, Err: err}
}

func storageError(op string, err error) error {
	var se *monitor.StorageError
	if errors.As(err, &se) {
		return err
	}
	return &monitor.StorageError{Op: op, Err: err}
}

type missingNotifier struct{}

func (missingNotifier) Notify(context.Context, monitor.Notification) error {
	return &monitor.DeliveryError{Reason: "no notifier configured"}
}
