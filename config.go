package clipjobs

import "time"

// Config holds every externally tunable constant in the coordination layer.
// Retry counts, backoff delays, and expiration windows are configuration,
// not business logic; nothing outside this struct hard-codes them.
type Config struct {
	// JobTTL is how long job records, user indexes, and queue entries live
	// in the shared store. Refreshed on every write.
	JobTTL time.Duration

	// ExpirationWindow is the age beyond which active-queue entries are
	// considered abandoned and removed by the cleanup sweep.
	ExpirationWindow time.Duration

	// StoreRetryAttempts is the maximum number of attempts for a single
	// store operation before surfacing an aggregate error.
	StoreRetryAttempts int

	// StoreRetryBase is the delay before the first store retry; subsequent
	// delays double.
	StoreRetryBase time.Duration

	// WorkerBaseURL is the base URL of the external worker service.
	WorkerBaseURL string

	// TriggerTimeout is the per-attempt timeout for the worker trigger call.
	TriggerTimeout time.Duration

	// TriggerAttempts is the total number of worker trigger attempts before
	// the job is driven to failed.
	TriggerAttempts int

	// TriggerDelays is the fixed delay schedule applied between trigger
	// attempts. The last entry is reused when there are more gaps than
	// entries.
	TriggerDelays []time.Duration

	// PollInterval is the base delay between status polls.
	PollInterval time.Duration

	// PollBackoffFactor multiplies the poll delay after each consecutive
	// error. A success resets the delay to PollInterval.
	PollBackoffFactor float64

	// PollMaxBackoff caps the poll delay under repeated errors.
	PollMaxBackoff time.Duration

	// PollMaxAttempts stops polling with a timeout error once reached.
	// Zero means no ceiling.
	PollMaxAttempts int

	// SweepInterval is how often the cleanup sweeper runs.
	SweepInterval time.Duration
}

// DefaultConfig returns a Config with the reference defaults.
func DefaultConfig() Config {
	return Config{
		JobTTL:             7 * 24 * time.Hour,
		ExpirationWindow:   7 * 24 * time.Hour,
		StoreRetryAttempts: 3,
		StoreRetryBase:     1 * time.Second,
		TriggerTimeout:     30 * time.Second,
		TriggerAttempts:    3,
		TriggerDelays:      []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second},
		PollInterval:       2 * time.Second,
		PollBackoffFactor:  1.5,
		PollMaxBackoff:     30 * time.Second,
		PollMaxAttempts:    0,
		SweepInterval:      1 * time.Hour,
	}
}
