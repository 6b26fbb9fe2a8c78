package job

import (
	"context"

	"github.com/clipforge/clipjobs/id"
)

// ListOpts controls pagination for per-user job listings.
type ListOpts struct {
	// Limit is the maximum number of jobs to return. Zero means no limit.
	Limit int
	// Offset is the number of jobs to skip.
	Offset int
}

// QueueInfo is a snapshot of the active (non-terminal) job queue.
type QueueInfo struct {
	// QueueLength is the number of active jobs.
	QueueLength int64 `json:"queue_length"`
	// ActiveJobs lists the active job IDs in creation order.
	ActiveJobs []string `json:"active_jobs"`
}

// Store defines the persistence contract for jobs. The shared store is the
// single source of truth: callers never cache records across calls, and all
// mutations go through these operations.
//
// Writes are read-modify-write over the full record without version checks.
// The intended discipline is single-writer per phase: the trigger
// orchestrator writes only the queued→processing edge, and during
// processing the worker service is the only writer.
type Store interface {
	// CreateJob generates a fresh ID and writes an initial record in
	// StatusQueued with zero progress, indexes it under the user, and adds
	// it to the active queue scored by creation time.
	CreateJob(ctx context.Context, req Request) (*Job, error)

	// GetJob retrieves a job by ID. Returns clipjobs.ErrJobNotFound if the
	// record is absent; a corrupt record is logged and treated as absent so
	// read paths stay non-fatal.
	GetJob(ctx context.Context, jobID id.JobID) (*Job, error)

	// UpdateProgress clamps progress to [0,100], updates stage and message,
	// and upserts stageDetail (if non-nil) into the stage list by name.
	UpdateProgress(ctx context.Context, jobID id.JobID, progress int, stage StageName, message string, stageDetail *Stage) error

	// UpdateStatus transitions the job's status. Transitions to a terminal
	// status set EndTime, compute ActualProcessingTime, and remove the job
	// from the active queue. StatusProcessing with progress still 0 bumps
	// progress to 1; StatusCompleted forces progress to 100.
	UpdateStatus(ctx context.Context, jobID id.JobID, status Status, message string) error

	// SetResult records the output clips and forces the completed terminal
	// state: StatusCompleted, progress 100, stage completed, EndTime set,
	// removed from the active queue.
	SetResult(ctx context.Context, jobID id.JobID, result []Clip) error

	// SetError records a structured failure and forces the failed terminal
	// state: StatusFailed, stage failed, EndTime set, removed from the
	// active queue. Retryable is derived from errType.
	SetError(ctx context.Context, jobID id.JobID, message, details, traceback string, errType ErrorType) error

	// GetUserJobs returns the user's jobs sorted descending by StartTime.
	// Absent or corrupt index entries are skipped.
	GetUserJobs(ctx context.Context, userID string, opts ListOpts) ([]*Job, error)

	// DeleteJob removes the record and its index entries. Reports whether a
	// record existed.
	DeleteJob(ctx context.Context, jobID id.JobID) (bool, error)

	// QueueInfo returns the active-queue cardinality and member IDs.
	QueueInfo(ctx context.Context) (*QueueInfo, error)

	// CleanupExpired removes active-queue entries older than the expiration
	// window and returns the count removed. Jobs already terminal are not
	// in the active queue and are unaffected.
	CleanupExpired(ctx context.Context) (int, error)

	// Ping checks shared-store connectivity.
	Ping(ctx context.Context) error
}
