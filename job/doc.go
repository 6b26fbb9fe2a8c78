// Package job defines the Job record — one asynchronous video-to-clips
// request — together with its value types (stages, errors, results) and the
// Store contract every backend implements.
//
// A job is created in StatusQueued, moved to StatusProcessing by the trigger
// orchestrator, and driven to a terminal state (StatusCompleted or
// StatusFailed) by the external worker service writing back through the
// Store. At a terminal state exactly one of Result or Error is set, EndTime
// is set, and the job leaves the active queue.
package job
