// Package redis implements job.Store using Redis as the shared store. Job
// records are stored as JSON strings with a TTL, per-user indexes as Sets,
// and the active queue as a Sorted Set scored by creation time.
//
// Every operation runs inside a bounded-retry executor (3 attempts, delay
// doubling from a 1-second base by default) so transient Redis failures are
// absorbed locally and only surface as an aggregate error after exhaustion.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	s := redisstore.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redis

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clipforge/clipjobs"
	"github.com/clipforge/clipjobs/backoff"
	"github.com/clipforge/clipjobs/job"
)

// Compile-time interface check.
var _ job.Store = (*Store)(nil)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithTTL overrides the record TTL refreshed on every write.
func WithTTL(d time.Duration) Option {
	return func(s *Store) { s.ttl = d }
}

// WithExpirationWindow overrides the active-queue expiration window used by
// CleanupExpired.
func WithExpirationWindow(d time.Duration) Option {
	return func(s *Store) { s.window = d }
}

// WithRetry overrides the bounded-retry policy wrapping every operation.
func WithRetry(attempts int, strategy backoff.Strategy) Option {
	return func(s *Store) {
		s.retryAttempts = attempts
		s.retryStrategy = strategy
	}
}

// WithFetchConcurrency bounds the parallel record fetches in GetUserJobs.
func WithFetchConcurrency(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.fetchConcurrency = n
		}
	}
}

// Store implements job.Store backed by Redis.
type Store struct {
	client redis.Cmdable
	logger *slog.Logger

	ttl    time.Duration
	window time.Duration

	retryAttempts    int
	retryStrategy    backoff.Strategy
	fetchConcurrency int

	// now is swappable for tests.
	now func() time.Time
}

// New creates a new Redis-backed store. The caller owns the Redis client
// lifecycle.
func New(client redis.Cmdable, opts ...Option) *Store {
	cfg := clipjobs.DefaultConfig()
	s := &Store{
		client:           client,
		logger:           slog.Default(),
		ttl:              cfg.JobTTL,
		window:           cfg.ExpirationWindow,
		retryAttempts:    cfg.StoreRetryAttempts,
		retryStrategy:    backoff.NewExponential(cfg.StoreRetryBase, 0),
		fetchConcurrency: 10,
		now:              time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Client returns the underlying Redis client.
func (s *Store) Client() redis.Cmdable { return s.client }

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.retry(ctx, func(ctx context.Context) error {
		return s.client.Ping(ctx).Err()
	})
}

// retry runs fn under the store's bounded-retry policy.
func (s *Store) retry(ctx context.Context, fn func(ctx context.Context) error) error {
	return backoff.Retry(ctx, s.retryAttempts, s.retryStrategy, fn)
}
