// Package notify composes notifiers.
package notify

import (
	"context"
	"errors"

	"github.com/JakeFAU/pagewatch/internal/monitor"
)

// Multi fans a notification out to every wrapped notifier.
type Multi []monitor.Notifier

// NewMulti drops nil notifiers and returns the composite.
func NewMulti(notifiers ...monitor.Notifier) Multi {
	out := make(Multi, 0, len(notifiers))
	for _, n := range notifiers {
		if n != nil {
			out = append(out, n)
		}
	}
	return out
}

// Notify sends to every notifier even after a failure. Any failure yields a
// DeliveryError wrapping every individual error.
func (m Multi) Notify(ctx context.Context, n monitor.Notification) error {
	var errs []error
	for _, notifier := range m {
		if err := notifier.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return &monitor.DeliveryError{Reason: "one or more notifiers failed", Err: errors.Join(errs...)}
}
