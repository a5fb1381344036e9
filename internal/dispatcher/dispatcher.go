// Package dispatcher runs due passes on a fixed interval inside the server process.
package dispatcher

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/pagewatch/internal/monitor"
)

// Runner executes a check pass.
type Runner interface {
	RunPass(ctx context.Context, mode monitor.PassMode) (monitor.PassSummary, error)
}

// Dispatcher ticks a Runner with due passes. A tick that arrives while a pass
// is still running is skipped.
type Dispatcher struct {
	runner   Runner
	interval time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	running bool
}

// New creates a Dispatcher.
func New(runner Runner, interval time.Duration, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		runner:   runner,
		interval: interval,
		logger:   logger.Named("dispatcher"),
	}
}

// Run triggers a pass immediately and then on every tick, blocking until the context finishes.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	defer wg.Wait()

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.logger.Info("dispatcher started", zap.Duration("interval", d.interval))
	for {
		if d.claim() {
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer d.release()
				d.tick(ctx)
			}()
		} else {
			d.logger.Debug("previous pass still running; skipping tick")
		}
		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher stopped")
			return
		case <-ticker.C:
		}
	}
}

func (d *Dispatcher) tick(ctx context.Context) {
	summary, err := d.runner.RunPass(ctx, monitor.PassDue)
	if err != nil {
		d.logger.Error("scheduled pass failed", zap.Error(err))
		return
	}
	d.logger.Debug("scheduled pass finished",
		zap.Int("checked", summary.CheckedCount()),
		zap.Int("active", summary.TotalActiveCount),
	)
}

func (d *Dispatcher) claim() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return false
	}
	d.running = true
	return true
}

func (d *Dispatcher) release() {
	d.mu.Lock()
	d.running = false
	d.mu.Unlock()
}
