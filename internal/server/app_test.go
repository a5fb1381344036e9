package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/JakeFAU/pagewatch/internal/config"
	"github.com/JakeFAU/pagewatch/internal/dispatcher"
	"github.com/JakeFAU/pagewatch/internal/monitor"
	"github.com/JakeFAU/pagewatch/internal/notify/email"
)

func baseConfig() config.Config {
	var cfg config.Config
	cfg.Server.Port = 0
	cfg.Server.ShutdownTimeoutSeconds = 1
	cfg.Fetcher.TimeoutSeconds = 1
	cfg.Fetcher.AlternativeTimeoutSeconds = 1
	cfg.Fetcher.Attempts = 1
	cfg.Storage.Backend = config.StorageMemory
	cfg.Blob.Backend = config.BlobNone
	cfg.Telemetry.ServiceName = "pagewatch-test"
	return cfg
}

func TestBuildMemoryApp(t *testing.T) {
	app, err := Build(context.Background(), baseConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })

	require.NotNil(t, app.Checker())
	require.Nil(t, app.dispatch)

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	summary, err := app.Checker().RunPass(context.Background(), monitor.PassDue)
	require.NoError(t, err)
	require.Zero(t, summary.CheckedCount())
}

func TestBuildSQLiteWithScheduler(t *testing.T) {
	cfg := baseConfig()
	cfg.Storage.Backend = config.StorageSQLite
	cfg.Database.Path = filepath.Join(t.TempDir(), "pagewatch.db")
	cfg.Blob.Backend = config.BlobLocal
	cfg.Blob.Dir = t.TempDir()
	cfg.Scheduler.Enabled = true
	cfg.Scheduler.IntervalSeconds = 60

	app, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })

	require.NotNil(t, app.dispatch)
	require.NoError(t, app.store.Ping(context.Background()))
}

func TestBuildWithoutNotifierKeepsReason(t *testing.T) {
	app, err := Build(context.Background(), baseConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })

	unconfigured, ok := app.notifier.(email.Unconfigured)
	require.True(t, ok)
	require.Equal(t, "SendGrid API key not configured", unconfigured.Reason)
}

func TestBuildRejectsUnknownBackends(t *testing.T) {
	cfg := baseConfig()
	cfg.Storage.Backend = "cassandra"
	_, err := Build(context.Background(), cfg)
	require.ErrorContains(t, err, "unknown storage backend")

	cfg = baseConfig()
	cfg.Blob.Backend = "ftp"
	_, err = Build(context.Background(), cfg)
	require.ErrorContains(t, err, "unknown blob backend")
}

func TestRunStopsWhenContextCanceled(t *testing.T) {
	cfg := baseConfig()
	cfg.Scheduler.Enabled = true
	cfg.Scheduler.IntervalSeconds = 60
	app, err := Build(context.Background(), cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, app.Run(ctx))
}

func TestRunLogsDispatcherStartOnce(t *testing.T) {
	cfg := baseConfig()
	cfg.Scheduler.Enabled = true
	cfg.Scheduler.IntervalSeconds = 60
	app, err := Build(context.Background(), cfg)
	require.NoError(t, err)

	core, logs := observer.New(zap.InfoLevel)
	app.logger = zap.New(core)
	app.dispatch = dispatcher.New(app.checker, time.Minute, app.logger)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, app.Run(ctx))

	require.Equal(t, 1, logs.FilterMessage("dispatcher started").Len())
}

func TestBuildWithPubSubStillReportsMissingEmail(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })
	t.Setenv("PUBSUB_EMULATOR_HOST", srv.Addr)

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	admin, err := pubsub.NewClient(ctx, "test-project", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = admin.Close() })
	_, err = admin.CreateTopic(ctx, "changes")
	require.NoError(t, err)

	cfg := baseConfig()
	cfg.PubSub.ProjectID = "test-project"
	cfg.PubSub.Topic = "changes"
	app, err := Build(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })

	err = app.notifier.Notify(ctx, monitor.Notification{
		Target: monitor.Target{ID: "t-1", Name: "Example", URL: "https://example.com"},
		Check:  monitor.CheckRecord{ID: "c-1", TargetID: "t-1", Fingerprint: "abc"},
	})
	var delivery *monitor.DeliveryError
	require.True(t, errors.As(err, &delivery))
	require.ErrorContains(t, err, "SendGrid API key not configured")
	require.Len(t, srv.Messages(), 1)
}
