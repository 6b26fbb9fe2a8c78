// Package poll implements the client-side polling controller: a cooperative,
// single-threaded loop that observes one job to a terminal state through
// repeated status queries, applying exponential backoff on errors.
//
// Exactly one status request is outstanding per controller at any time; the
// next request is scheduled only after the previous one completes. Stopping
// the controller stops the observer only — it never cancels the underlying
// worker processing.
//
//	ctrl := poll.New(store,
//	    poll.OnProgress(func(j *job.Job) { render(j) }),
//	    poll.OnSuccess(func(j *job.Job) { showClips(j.Result) }),
//	)
//	_ = ctrl.Start(jobID)
//	defer ctrl.Close()
package poll

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/clipforge/clipjobs"
	"github.com/clipforge/clipjobs/id"
	"github.com/clipforge/clipjobs/job"
)

// State is the controller's lifecycle state.
type State string

const (
	StateIdle      State = "idle"
	StatePolling   State = "polling"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateStopped   State = "stopped"
)

// Fetcher retrieves the current job record. job.Store satisfies it directly.
type Fetcher interface {
	GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error)
}

// Controller polls one job to a terminal state.
type Controller struct {
	fetcher Fetcher
	logger  *slog.Logger

	interval    time.Duration
	factor      float64
	maxBackoff  time.Duration
	maxAttempts int
	exponential bool
	stopOnError bool

	onProgress func(*job.Job)
	onSuccess  func(*job.Job)
	onFailure  func(*job.Job)
	onError    func(error)

	mu       sync.Mutex
	state    State
	jobID    id.JobID
	lastJob  *job.Job
	lastErr  error
	attempts int
	delay    time.Duration
	cancel   context.CancelFunc
	// done is closed when the current loop goroutine exits. Successive
	// loops chain on it so two are never running at once.
	done chan struct{}

	// closed is the liveness flag: once set (consumer torn down), no
	// further callback fires and no state mutates.
	closed atomic.Bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithInterval sets the base delay between polls.
func WithInterval(d time.Duration) Option {
	return func(c *Controller) { c.interval = d }
}

// WithExponentialBackoff toggles error backoff. When enabled, each
// consecutive error multiplies the delay by factor, capped at maxBackoff;
// a success resets the delay to the base interval.
func WithExponentialBackoff(factor float64, maxBackoff time.Duration) Option {
	return func(c *Controller) {
		c.exponential = true
		c.factor = factor
		c.maxBackoff = maxBackoff
	}
}

// WithMaxAttempts stops the loop with a non-retryable timeout error once
// the attempt ceiling is reached. Zero means no ceiling.
func WithMaxAttempts(n int) Option {
	return func(c *Controller) { c.maxAttempts = n }
}

// WithStopOnError stops the loop on the first poll error instead of
// backing off and continuing.
func WithStopOnError() Option {
	return func(c *Controller) { c.stopOnError = true }
}

// OnProgress sets the callback invoked after every successful status query.
func OnProgress(fn func(*job.Job)) Option {
	return func(c *Controller) { c.onProgress = fn }
}

// OnSuccess sets the callback invoked once when the job completes.
func OnSuccess(fn func(*job.Job)) Option {
	return func(c *Controller) { c.onSuccess = fn }
}

// OnFailure sets the callback invoked once when the job fails.
func OnFailure(fn func(*job.Job)) Option {
	return func(c *Controller) { c.onFailure = fn }
}

// OnError sets the callback invoked on every poll error.
func OnError(fn func(error)) Option {
	return func(c *Controller) { c.onError = fn }
}

// New creates a Controller over the fetcher.
func New(fetcher Fetcher, opts ...Option) *Controller {
	cfg := clipjobs.DefaultConfig()
	c := &Controller{
		fetcher:     fetcher,
		logger:      slog.Default(),
		interval:    cfg.PollInterval,
		factor:      cfg.PollBackoffFactor,
		maxBackoff:  cfg.PollMaxBackoff,
		maxAttempts: cfg.PollMaxAttempts,
		exponential: true,
		state:       StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the controller's current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Job returns the most recently fetched job record, if any.
func (c *Controller) Job() *job.Job {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastJob
}

// Err returns the most recent poll error, if any.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Start begins polling the given job. It is a no-op (with a sentinel
// error) if the controller is already polling or the job ID is empty.
func (c *Controller) Start(jobID id.JobID) error {
	if c.closed.Load() {
		return nil
	}
	if jobID.IsNil() {
		return clipjobs.ErrNoJobID
	}

	c.mu.Lock()
	if c.state == StatePolling {
		c.mu.Unlock()
		return clipjobs.ErrAlreadyPolling
	}
	c.state = StatePolling
	c.jobID = jobID
	c.attempts = 0
	c.delay = c.interval

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	prev := c.done
	done := make(chan struct{})
	c.done = done
	c.mu.Unlock()

	go func() {
		defer close(done)
		// A stopped loop can still have a request in flight when the
		// fetcher ignores cancellation. Wait for it to exit so at most
		// one request is ever outstanding per controller.
		if prev != nil {
			<-prev
		}
		c.loop(ctx)
	}()
	return nil
}

// Stop clears any pending poll and marks the controller not-polling.
// Idempotent. The underlying job keeps running.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.state == StatePolling {
		c.state = StateStopped
	}
	c.mu.Unlock()
}

// Retry clears error state, resets the attempt counter and backoff to the
// base interval, and restarts polling if not already polling.
func (c *Controller) Retry() error {
	c.mu.Lock()
	if c.state == StatePolling {
		c.mu.Unlock()
		return clipjobs.ErrAlreadyPolling
	}
	c.lastErr = nil
	c.attempts = 0
	c.delay = c.interval
	c.state = StateIdle
	jobID := c.jobID
	c.mu.Unlock()

	return c.Start(jobID)
}

// Refresh performs a one-shot status fetch independent of the polling
// loop, for manual refresh actions. It updates the cached job but does not
// touch the loop's backoff or attempt state.
func (c *Controller) Refresh(ctx context.Context) (*job.Job, error) {
	c.mu.Lock()
	jobID := c.jobID
	c.mu.Unlock()
	if jobID.IsNil() {
		return nil, clipjobs.ErrNoJobID
	}

	j, err := c.fetcher.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !c.closed.Load() {
		c.mu.Lock()
		c.lastJob = j
		c.mu.Unlock()
	}
	return j, nil
}

// Reset stops polling and clears all local state.
func (c *Controller) Reset() {
	c.Stop()
	c.mu.Lock()
	c.state = StateIdle
	c.jobID = id.Nil
	c.lastJob = nil
	c.lastErr = nil
	c.attempts = 0
	c.delay = 0
	c.mu.Unlock()
}

// Close clears the liveness flag and stops polling. After Close no
// callback fires. Use when the consumer is torn down.
func (c *Controller) Close() {
	c.closed.Store(true)
	c.Stop()
}

// loop is the cooperative polling loop: one outstanding request at a time,
// the next scheduled only after the previous completes.
func (c *Controller) loop(ctx context.Context) {
	for {
		done, delay := c.pollOnce(ctx)
		if done {
			return
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// pollOnce issues one status query and applies the outcome. It reports
// whether the loop should end and, if not, the delay before the next poll.
func (c *Controller) pollOnce(ctx context.Context) (done bool, delay time.Duration) {
	if ctx.Err() != nil {
		return true, 0
	}
	c.mu.Lock()
	if c.state != StatePolling {
		c.mu.Unlock()
		return true, 0
	}
	c.attempts++
	attempts := c.attempts
	jobID := c.jobID
	c.mu.Unlock()

	if c.maxAttempts > 0 && attempts > c.maxAttempts {
		limitErr := &job.Error{
			Type:      job.ErrTypeTimeout,
			Message:   "maximum polling attempts reached",
			Timestamp: time.Now().UTC(),
			Retryable: false,
		}
		c.finish(StateStopped, nil, limitErr)
		return true, 0
	}

	j, err := c.fetcher.GetJob(ctx, jobID)
	if ctx.Err() != nil {
		// Stopped while the request was in flight; discard the result so
		// it cannot bleed into a restarted session.
		return true, 0
	}
	if err != nil {
		return c.handleError(err)
	}

	c.mu.Lock()
	c.lastJob = j
	c.lastErr = nil
	c.delay = c.interval // success resets backoff
	next := c.delay
	c.mu.Unlock()

	c.emitProgress(j)

	if j.Terminal() {
		if j.Status == job.StatusCompleted {
			c.finish(StateCompleted, j, nil)
		} else {
			c.finish(StateFailed, j, nil)
		}
		return true, 0
	}
	return false, next
}

// handleError applies the error policy: surface via callback, then either
// stop (stopOnError or non-retryable) or back off and continue.
func (c *Controller) handleError(err error) (done bool, delay time.Duration) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()

	if !c.closed.Load() && c.onError != nil {
		c.onError(err)
	}

	var jErr *job.Error
	nonRetryable := errors.As(err, &jErr) && !jErr.Retryable
	if c.stopOnError || nonRetryable {
		c.mu.Lock()
		if c.state == StatePolling {
			c.state = StateStopped
		}
		c.mu.Unlock()
		return true, 0
	}

	c.mu.Lock()
	if c.exponential {
		next := time.Duration(float64(c.delay) * c.factor)
		if c.maxBackoff > 0 && next > c.maxBackoff {
			next = c.maxBackoff
		}
		c.delay = next
	}
	delay = c.delay
	c.mu.Unlock()

	c.logger.Debug("poll error, backing off",
		slog.String("error", err.Error()),
		slog.Duration("next_delay", delay),
	)
	return false, delay
}

// finish transitions to a terminal controller state and fires the
// appropriate callback, respecting the liveness flag.
func (c *Controller) finish(state State, j *job.Job, err *job.Error) {
	c.mu.Lock()
	c.state = state
	if j != nil {
		c.lastJob = j
	}
	if err != nil {
		c.lastErr = err
	}
	c.mu.Unlock()

	if c.closed.Load() {
		return
	}
	switch {
	case err != nil:
		if c.onError != nil {
			c.onError(err)
		}
	case state == StateCompleted:
		if c.onSuccess != nil {
			c.onSuccess(j)
		}
	case state == StateFailed:
		if c.onFailure != nil {
			c.onFailure(j)
		}
	}
}

// emitProgress fires the progress callback unless the consumer is gone.
func (c *Controller) emitProgress(j *job.Job) {
	if c.closed.Load() {
		return
	}
	if c.onProgress != nil {
		c.onProgress(j)
	}
}
