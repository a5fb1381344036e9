// Package server wires configuration into a running pagewatch process.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/pagewatch/internal/api"
	"github.com/JakeFAU/pagewatch/internal/checker"
	"github.com/JakeFAU/pagewatch/internal/clock/system"
	"github.com/JakeFAU/pagewatch/internal/config"
	"github.com/JakeFAU/pagewatch/internal/dispatcher"
	"github.com/JakeFAU/pagewatch/internal/fetcher/chain"
	collyfetcher "github.com/JakeFAU/pagewatch/internal/fetcher/colly"
	"github.com/JakeFAU/pagewatch/internal/fetcher/detector"
	headlessfetcher "github.com/JakeFAU/pagewatch/internal/fetcher/headless"
	"github.com/JakeFAU/pagewatch/internal/hash/sha256"
	"github.com/JakeFAU/pagewatch/internal/logging"
	"github.com/JakeFAU/pagewatch/internal/metrics"
	"github.com/JakeFAU/pagewatch/internal/monitor"
	"github.com/JakeFAU/pagewatch/internal/notify"
	"github.com/JakeFAU/pagewatch/internal/notify/email"
	pubsubnotify "github.com/JakeFAU/pagewatch/internal/notify/pubsub"
	"github.com/JakeFAU/pagewatch/internal/policy/ratelimit"
	gcsstorage "github.com/JakeFAU/pagewatch/internal/storage/gcs"
	localstorage "github.com/JakeFAU/pagewatch/internal/storage/local"
	memorystorage "github.com/JakeFAU/pagewatch/internal/storage/memory"
	pgstore "github.com/JakeFAU/pagewatch/internal/storage/postgres"
	sqlitestore "github.com/JakeFAU/pagewatch/internal/storage/sqlite"
	"github.com/JakeFAU/pagewatch/internal/telemetry"
)

// Version is reported to the tracer resource.
var Version = "dev"

// App contains the application's dependencies.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	store     monitor.Store
	notifier  monitor.Notifier
	checker   *checker.Checker
	apiServer *api.Server
	dispatch  *dispatcher.Dispatcher

	gcs       *storage.Client
	publisher *pubsubnotify.Publisher
	browser   *headlessfetcher.Browser
	providers *telemetry.Providers
}

// Build creates the application's dependencies. On error everything built so
// far is released.
func Build(ctx context.Context, cfg config.Config) (app *App, err error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)

	app = &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = app.Close(context.Background())
			app = nil
		}
	}()

	logger.Info("building application dependencies",
		zap.Int("port", cfg.Server.Port),
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.String("blob_backend", cfg.Blob.Backend),
		zap.Bool("headless", cfg.Headless.Enabled),
		zap.Bool("scheduler", cfg.Scheduler.Enabled),
	)

	app.providers, err = telemetry.InitTracerProvider(ctx, telemetry.Config{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: Version,
		GCPProjectID:   cfg.Telemetry.GCPProjectID,
		SampleRatio:    cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return app, fmt.Errorf("telemetry init failed: %w", err)
	}
	metrics.Init()

	if app.store, err = setupStore(ctx, app); err != nil {
		return app, err
	}
	blobs, err := setupBlobs(ctx, app)
	if err != nil {
		return app, err
	}
	fetcher, err := setupFetcher(app)
	if err != nil {
		return app, err
	}
	if app.notifier, err = setupNotifier(ctx, app); err != nil {
		return app, err
	}

	clock := system.New()
	app.checker = checker.New(
		app.store,
		fetcher,
		sha256.New(),
		app.notifier,
		blobs,
		clock,
		checker.Config{
			StoreFullContent: cfg.Checker.StoreFullContent,
			SnapshotPrefix:   cfg.Blob.Prefix,
		},
		logger,
	)

	if cfg.Scheduler.Enabled {
		app.dispatch = dispatcher.New(app.checker, cfg.SchedulerInterval(), logger)
	}

	app.apiServer = api.NewServer(app.checker, app.store, app.notifier, clock, cfg, logger)
	return app, nil
}

// Checker exposes the check pipeline for one-shot CLI commands.
func (a *App) Checker() *checker.Checker {
	return a.checker
}

// Logger returns the root logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Handler returns the HTTP handler.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run serves HTTP and, when enabled, the due-pass ticker until ctx is
// canceled or the process receives SIGINT/SIGTERM.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dispatchDone := make(chan struct{})
	if a.dispatch != nil {
		go func() {
			defer close(dispatchDone)
			a.dispatch.Run(ctx)
		}()
	} else {
		close(dispatchDone)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			stop()
		}
		close(serveErr)
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout())
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	<-dispatchDone

	runErr := <-serveErr
	if err := a.Close(shutdownCtx); err != nil {
		return errors.Join(runErr, err)
	}
	if runErr != nil {
		return fmt.Errorf("http server: %w", runErr)
	}
	return nil
}

// Close releases every client the App owns. It is safe on a partially built App.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.browser != nil {
		a.browser.Close()
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.gcs != nil {
		if err := a.gcs.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close gcs client: %w", err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	if err := a.providers.Shutdown(ctx); err != nil {
		a.logger.Warn("telemetry shutdown failed", zap.Error(err))
	}
	if err := logging.Sync(a.logger); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func setupStore(ctx context.Context, app *App) (monitor.Store, error) {
	cfg := app.cfg.Database
	switch app.cfg.Storage.Backend {
	case config.StoragePostgres:
		app.logger.Info("using postgres record store")
		store, err := pgstore.NewStore(ctx, pgstore.Config{
			DSN:             cfg.DSN,
			MaxConns:        cfg.MaxConns,
			MinConns:        cfg.MinConns,
			MaxConnLifetime: time.Duration(cfg.MaxConnLifetimeMinutes) * time.Minute,
			Migrate:         cfg.Migrate,
		})
		if err != nil {
			return nil, fmt.Errorf("postgres store init failed: %w", err)
		}
		return store, nil
	case config.StorageSQLite:
		app.logger.Info("using sqlite record store", zap.String("path", cfg.Path))
		store, err := sqlitestore.New(ctx, cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("sqlite store init failed: %w", err)
		}
		return store, nil
	case config.StorageMemory, "":
		app.logger.Warn("using in-memory record store; data is lost on restart")
		return memorystorage.NewStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", app.cfg.Storage.Backend)
	}
}

func setupBlobs(ctx context.Context, app *App) (monitor.BlobStore, error) {
	cfg := app.cfg.Blob
	switch cfg.Backend {
	case config.BlobGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		app.gcs = client
		blobs, err := gcsstorage.New(client, gcsstorage.Config{Bucket: cfg.Bucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		app.logger.Info("using GCS snapshot store", zap.String("bucket", cfg.Bucket))
		return blobs, nil
	case config.BlobLocal:
		blobs, err := localstorage.New(localstorage.Config{BaseDir: cfg.Dir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		app.logger.Info("using local snapshot store", zap.String("dir", cfg.Dir))
		return blobs, nil
	case config.BlobMemory:
		app.logger.Info("using in-memory snapshot store")
		return memorystorage.NewBlobStore(), nil
	case config.BlobNone, "":
		app.logger.Info("content snapshots disabled")
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown blob backend %q", cfg.Backend)
	}
}

func setupFetcher(app *App) (monitor.Fetcher, error) {
	cfg := app.cfg
	httpCfg := collyfetcher.Config{
		Timeout:       cfg.FetchTimeout(),
		UserAgents:    cfg.Fetcher.UserAgents,
		MaxBodySize:   cfg.Fetcher.MaxBodyBytes,
		RespectRobots: cfg.Fetcher.RespectRobots,
	}
	altCfg := httpCfg
	altCfg.Timeout = cfg.AlternativeTimeout()

	strategies := []monitor.Strategy{
		collyfetcher.NewSimple(httpCfg),
		collyfetcher.NewAlternatives(altCfg, detector.NewHeuristic(cfg.Fetcher.MinContentRunes)),
	}

	if cfg.Headless.Enabled {
		browser, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.Headless.UserAgent,
			NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSeconds) * time.Second,
			IdleTimeout:       time.Duration(cfg.Headless.IdleTimeoutMs) * time.Millisecond,
			SettleDelay:       time.Duration(cfg.Headless.SettleDelayMs) * time.Millisecond,
			ExecPath:          cfg.Headless.ExecPath,
			NoSandbox:         cfg.Headless.NoSandbox,
		}, app.logger)
		if err != nil {
			app.logger.Warn("headless fetcher init failed; continuing without it", zap.Error(err))
		} else {
			app.browser = browser
			strategies = append(strategies, browser)
			app.logger.Info("headless fetcher enabled", zap.Int("max_parallel", cfg.Headless.MaxParallel))
		}
	}

	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.RateLimit.RPS,
		DefaultBurst: cfg.RateLimit.Burst,
	})
	fetcher, err := chain.New(chain.Config{
		Attempts: cfg.Fetcher.Attempts,
		Backoff:  cfg.FetchBackoff(),
	}, limiter, app.logger, strategies...)
	if err != nil {
		return nil, fmt.Errorf("fetch chain init failed: %w", err)
	}
	return fetcher, nil
}

// setupNotifier fans out to email and, when configured, Pub/Sub. Email is always
// part of the fan-out so missing email settings surface as a DeliveryError.
func setupNotifier(ctx context.Context, app *App) (monitor.Notifier, error) {
	cfg := app.cfg
	emailCfg := email.Config{
		APIKey:   cfg.Email.APIKey,
		To:       cfg.Email.To,
		From:     cfg.Email.From,
		FromName: cfg.Email.FromName,
	}
	mailer := email.New(emailCfg, app.logger)
	if unconfigured, ok := mailer.(email.Unconfigured); ok {
		app.logger.Warn("email notifier not configured", zap.String("reason", unconfigured.Reason))
	} else {
		app.logger.Info("email notifications enabled", zap.String("to", cfg.Email.To))
	}
	notifiers := []monitor.Notifier{mailer}

	if cfg.PubSub.ProjectID != "" && cfg.PubSub.Topic != "" {
		publisher, err := pubsubnotify.Dial(ctx, cfg.PubSub.ProjectID, cfg.PubSub.Topic)
		if err != nil {
			return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
		}
		app.publisher = publisher
		notifiers = append(notifiers, publisher)
		app.logger.Info("pubsub change events enabled",
			zap.String("project", cfg.PubSub.ProjectID),
			zap.String("topic", cfg.PubSub.Topic),
		)
	}

	if len(notifiers) == 1 {
		return mailer, nil
	}
	return notify.NewMulti(notifiers...), nil
}

// RunPass runs one check pass.
func (a *App) RunPass(ctx context.Context, mode monitor.PassMode) (monitor.PassSummary, error) {
	return a.checker.RunPass(ctx, mode)
}
