// Package memory contains an in-memory notifier for tests and local runs.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/pagewatch/internal/monitor"
)

// Notifier stores delivered notifications for inspection.
type Notifier struct {
	mu            sync.RWMutex
	notifications []monitor.Notification
	err           error
}

// New returns a memory Notifier.
func New() *Notifier {
	return &Notifier{}
}

// SetError makes subsequent Notify calls fail with err wrapped in a DeliveryError.
// A nil err restores success.
func (n *Notifier) SetError(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.err = err
}

// Notify records the notification, or fails when an error was injected.
// Failed attempts are recorded too.
func (n *Notifier) Notify(_ context.Context, notification monitor.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notifications = append(n.notifications, notification)
	if n.err != nil {
		return &monitor.DeliveryError{Reason: "memory notifier", Err: n.err}
	}
	return nil
}

// Notifications returns the recorded notifications.
func (n *Notifier) Notifications() []monitor.Notification {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]monitor.Notification, len(n.notifications))
	copy(out, n.notifications)
	return out
}
