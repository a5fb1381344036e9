package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/JakeFAU/pagewatch/internal/monitor"
)

func TestNotifierStoresNotifications(t *testing.T) {
	t.Parallel()

	n := New()
	if err := n.Notify(context.Background(), monitor.Notification{Summary: "first"}); err != nil {
		t.Fatalf("unexpected notify error: %v", err)
	}
	if err := n.Notify(context.Background(), monitor.Notification{Summary: "second"}); err != nil {
		t.Fatalf("unexpected notify error: %v", err)
	}

	got := n.Notifications()
	if len(got) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(got))
	}
	if got[0].Summary != "first" || got[1].Summary != "second" {
		t.Fatalf("notifications not recorded in order: %+v", got)
	}

	got[0].Summary = "modified"
	if n.Notifications()[0].Summary == "modified" {
		t.Fatal("expected Notifications() to return a copy")
	}
}

func TestNotifierInjectedError(t *testing.T) {
	t.Parallel()

	n := New()
	boom := errors.New("boom")
	n.SetError(boom)

	err := n.Notify(context.Background(), monitor.Notification{})
	var delivery *monitor.DeliveryError
	if !errors.As(err, &delivery) {
		t.Fatalf("expected DeliveryError, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped boom, got %v", err)
	}
	if len(n.Notifications()) != 1 {
		t.Fatal("failed attempts should still be recorded")
	}

	n.SetError(nil)
	if err := n.Notify(context.Background(), monitor.Notification{}); err != nil {
		t.Fatalf("expected success after clearing error: %v", err)
	}
}
