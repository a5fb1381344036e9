// Package logging includes tests for the zap logger helpers.
package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// TestNewDevelopmentLogger confirms the development logger builds and logs.
func TestNewDevelopmentLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(true)
	if err != nil {
		t.Fatalf("New(true) error = %v", err)
	}
	if logger == nil {
		t.Fatal("expected logger to be non-nil")
	}
	defer Sync(logger) //nolint:errcheck // best-effort flush
	logger.Info("development logger ready")
}

// TestNewProductionLogger ensures the production logger configuration succeeds.
func TestNewProductionLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(false)
	if err != nil {
		t.Fatalf("New(false) error = %v", err)
	}
	if !logger.Core().Enabled(zap.InfoLevel) || logger.Core().Enabled(zap.DebugLevel) {
		t.Fatal("expected production logger at info level")
	}
	defer Sync(logger) //nolint:errcheck // best-effort flush
	logger.Info("production logger ready")
}

func TestNamedLoggersCarryComponent(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core).Named("checker")
	logger.Info("check complete", zap.String("target_id", "t-1"))

	entries := logs.All()
	if len(entries) != 1 || entries[0].LoggerName != "checker" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
	if entries[0].ContextMap()["target_id"] != "t-1" {
		t.Fatalf("missing field: %+v", entries[0].ContextMap())
	}
}
