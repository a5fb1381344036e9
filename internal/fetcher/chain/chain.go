// Package chain runs fetch strategies in order with whole-chain retries.
package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/pagewatch/internal/extract"
	"github.com/JakeFAU/pagewatch/internal/metrics"
	"github.com/JakeFAU/pagewatch/internal/monitor"
)

// Waiter gates outbound requests per host.
type Waiter interface {
	Wait(ctx context.Context, url string) error
}

// Config controls retry behavior.
type Config struct {
	// Attempts is how many times the full strategy list is tried. Defaults to 3.
	Attempts int
	// Backoff is multiplied by the attempt number between attempts. Defaults to 2s.
	Backoff time.Duration
}

// Chain implements monitor.Fetcher over an ordered strategy list.
type Chain struct {
	strategies []monitor.Strategy
	limiter    Waiter
	cfg        Config
	logger     *zap.Logger
}

// New builds a Chain. limiter may be nil.
func New(cfg Config, limiter Waiter, logger *zap.Logger, strategies ...monitor.Strategy) (*Chain, error) {
	if len(strategies) == 0 {
		return nil, errors.New("at least one fetch strategy is required")
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.Backoff < 0 {
		cfg.Backoff = 0
	} else if cfg.Backoff == 0 {
		cfg.Backoff = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chain{
		strategies: strategies,
		limiter:    limiter,
		cfg:        cfg,
		logger:     logger.Named("fetch_chain"),
	}, nil
}

// Strategies returns the strategy names in order.
func (c *Chain) Strategies() []string {
	names := make([]string, len(c.strategies))
	for i, s := range c.strategies {
		names[i] = s.Name()
	}
	return names
}

// Fetch returns the first successful strategy result. When every attempt
// fails the FetchError carries the first strategy's first error so the
// recorded reason stays stable across retries.
func (c *Chain) Fetch(ctx context.Context, url string) (monitor.Content, error) {
	var firstErr error
	attempts := 0
	for attempt := 1; attempt <= c.cfg.Attempts; attempt++ {
		attempts = attempt
		for _, strategy := range c.strategies {
			text, err := c.run(ctx, strategy, url)
			if err == nil {
				if attempt > 1 {
					c.logger.Info("fetch recovered on retry",
						zap.String("url", url), zap.Int("attempt", attempt), zap.String("strategy", strategy.Name()))
				}
				return monitor.Content{Text: text, Strategy: strategy.Name()}, nil
			}
			if firstErr == nil {
				firstErr = err
			}
			c.logger.Debug("fetch strategy failed",
				zap.String("url", url),
				zap.String("strategy", strategy.Name()),
				zap.Int("attempt", attempt),
				zap.Error(err))
			if ctx.Err() != nil {
				return monitor.Content{}, c.exhausted(firstErr, attempts)
			}
		}
		if attempt < c.cfg.Attempts {
			if err := sleep(ctx, c.cfg.Backoff*time.Duration(attempt)); err != nil {
				return monitor.Content{}, c.exhausted(firstErr, attempts)
			}
		}
	}
	return monitor.Content{}, c.exhausted(firstErr, attempts)
}

func (c *Chain) run(ctx context.Context, strategy monitor.Strategy, url string) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, url); err != nil {
			return "", err
		}
	}
	text, err := strategy.Fetch(ctx, url)
	if err == nil {
		text = extract.Normalize(text)
		if text == "" {
			err = errors.New("empty content")
		}
	}
	metrics.ObserveFetchAttempt(strategy.Name(), err)
	if err != nil {
		return "", fmt.Errorf("%s: %w", strategy.Name(), err)
	}
	return text, nil
}

func (c *Chain) exhausted(firstErr error, attempts int) *monitor.FetchError {
	reason := "no strategy produced content"
	if firstErr != nil {
		reason = firstErr.Error()
	}
	return &monitor.FetchError{Reason: reason, Attempts: attempts}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("backoff interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
