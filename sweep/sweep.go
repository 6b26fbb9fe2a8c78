// Package sweep runs the periodic maintenance pass that removes jobs
// whose active-queue entries have outlived the expiration window. This
// covers jobs that crashed before reaching a terminal state and would
// otherwise sit in the queue index forever.
package sweep

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/clipforge/clipjobs"
	"github.com/clipforge/clipjobs/job"
)

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sweeper) { s.logger = l }
}

// WithInterval sets how often the sweeper runs.
func WithInterval(d time.Duration) Option {
	return func(s *Sweeper) { s.interval = d }
}

// Sweeper periodically calls CleanupExpired on the store.
type Sweeper struct {
	store    job.Store
	logger   *slog.Logger
	interval time.Duration

	removedCounter metric.Int64Counter

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a Sweeper over the store.
func New(store job.Store, opts ...Option) *Sweeper {
	cfg := clipjobs.DefaultConfig()
	s := &Sweeper{
		store:    store,
		logger:   slog.Default(),
		interval: cfg.SweepInterval,
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	meter := otel.Meter("clipjobs/sweep")
	s.removedCounter, _ = meter.Int64Counter("clipjobs.sweep.removed",
		metric.WithDescription("Expired active-queue entries removed"),
	)
	return s
}

// Start launches the sweep goroutine.
func (s *Sweeper) Start(_ context.Context) error {
	s.wg.Add(1)
	go s.loop()
	s.logger.Info("sweeper started", slog.Duration("interval", s.interval))
	return nil
}

// Stop signals the sweeper to stop and waits for the goroutine to finish.
func (s *Sweeper) Stop(_ context.Context) error {
	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("sweeper stopped")
	return nil
}

func (s *Sweeper) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run once immediately at start.
	s.Sweep(context.Background())

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.Sweep(context.Background())
		}
	}
}

// Sweep runs a single cleanup pass and returns the number of entries
// removed. Errors are logged, not returned to the loop.
func (s *Sweeper) Sweep(ctx context.Context) int {
	removed, err := s.store.CleanupExpired(ctx)
	if err != nil {
		s.logger.Warn("cleanup pass failed", slog.String("error", err.Error()))
		return 0
	}
	if removed > 0 {
		s.logger.Info("expired queue entries removed", slog.Int("count", removed))
	}
	s.removedCounter.Add(ctx, int64(removed))
	return removed
}
