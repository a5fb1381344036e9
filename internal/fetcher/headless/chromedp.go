// Package headless implements the browser fetch strategy with chromedp and headless Chrome.
package headless

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/pagewatch/internal/extract"
	"github.com/JakeFAU/pagewatch/internal/metrics"
)

// DefaultUserAgent is sent when Config.UserAgent is empty.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Config controls the behavior of the browser strategy.
type Config struct {
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	// IdleTimeout bounds the wait for the networkIdle lifecycle event.
	IdleTimeout time.Duration
	// SettleDelay runs after network idle and again after a consent click.
	SettleDelay time.Duration
	// ExecPath overrides Chrome discovery.
	ExecPath string
	NoSandbox bool
}

// Browser implements monitor.Strategy using chromedp.
type Browser struct {
	cfg         Config
	logger      *zap.Logger
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewChromedp creates a browser strategy backed by a shared Chrome allocator.
// Chrome itself is started lazily on the first fetch.
func NewChromedp(cfg Config, logger *zap.Logger) (*Browser, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 30 * time.Second
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 10 * time.Second
	}
	if cfg.SettleDelay < 0 {
		cfg.SettleDelay = 0
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-background-timer-throttling", true),
		chromedp.Flag("disable-renderer-backgrounding", true),
	)
	if cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Browser{
		cfg:         cfg,
		logger:      logger.Named("browser"),
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Name implements monitor.Strategy.
func (b *Browser) Name() string { return "browser" }

// Close cancels the allocator context and stops Chrome.
func (b *Browser) Close() {
	b.allocCancel()
}

// Fetch navigates, waits for the page to settle, dismisses cookie consent,
// and returns the main content text of the rendered DOM.
func (b *Browser) Fetch(ctx context.Context, url string) (string, error) {
	if err := b.acquire(ctx); err != nil {
		return "", err
	}
	defer b.release()
	metrics.IncHeadlessActive()
	defer metrics.DecHeadlessActive()

	taskCtx, taskCancel := chromedp.NewContext(b.allocator)
	defer taskCancel()
	// Cancel the tab when the caller gives up.
	stop := context.AfterFunc(ctx, taskCancel)
	defer stop()

	taskCtx, cancel := context.WithTimeout(taskCtx, b.cfg.NavigationTimeout)
	defer cancel()

	meta := newResponseMeta()
	idle := make(chan struct{}, 1)
	chromedp.ListenTarget(taskCtx, func(ev any) {
		switch e := ev.(type) {
		case *network.EventResponseReceived:
			meta.capture(e)
		case *page.EventLifecycleEvent:
			if e.Name == "networkIdle" {
				select {
				case idle <- struct{}{}:
				default:
				}
			}
		}
	})

	var html string
	actions := []chromedp.Action{
		b.setupAction(),
		chromedp.Navigate(url),
		waitIdle(idle, b.cfg.IdleTimeout),
		chromedp.Sleep(b.cfg.SettleDelay),
		chromedp.ActionFunc(func(ctx context.Context) error {
			if dismissed := dismissCookieConsent(ctx); dismissed != "" {
				b.logger.Debug("dismissed cookie consent", zap.String("url", url), zap.String("selector", dismissed))
				return chromedp.Sleep(b.cfg.SettleDelay).Do(ctx)
			}
			return nil
		}),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("browser fetch canceled: %w", ctx.Err())
		}
		return "", fmt.Errorf("chromedp run: %w", err)
	}
	if err := meta.err(); err != nil {
		return "", err
	}

	text, err := extract.MainContent([]byte(html))
	if err != nil {
		return "", fmt.Errorf("extract main content: %w", err)
	}
	if text == "" {
		return "", errors.New("empty content")
	}
	return text, nil
}

func (b *Browser) setupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if err := page.SetLifecycleEventsEnabled(true).Do(ctx); err != nil {
			return fmt.Errorf("enable lifecycle events: %w", err)
		}
		if err := emulation.SetUserAgentOverride(b.cfg.UserAgent).Do(ctx); err != nil {
			return fmt.Errorf("set user-agent: %w", err)
		}
		return nil
	})
}

// waitIdle blocks until the idle signal fires or the bound elapses.
// A page that never goes idle is still captured.
func waitIdle(idle <-chan struct{}, bound time.Duration) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		timer := time.NewTimer(bound)
		defer timer.Stop()
		select {
		case <-idle:
		case <-timer.C:
		case <-ctx.Done():
			return fmt.Errorf("wait for network idle: %w", ctx.Err())
		}
		return nil
	})
}

func (b *Browser) acquire(ctx context.Context) error {
	if b.limiter == nil {
		return nil
	}
	select {
	case b.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (b *Browser) release() {
	if b.limiter == nil {
		return
	}
	select {
	case <-b.limiter:
	default:
	}
}

// responseMeta records the status of the main document response.
type responseMeta struct {
	mu     sync.RWMutex
	status int
	url    string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	// Only the first document response belongs to the navigation; later ones are iframes.
	if m.status != 0 {
		return
	}
	m.status = int(event.Response.Status)
	m.url = event.Response.URL
}

func (m *responseMeta) err() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.status >= http.StatusBadRequest {
		return fmt.Errorf("HTTP %d: %s", m.status, http.StatusText(m.status))
	}
	return nil
}
