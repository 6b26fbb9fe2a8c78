// Package clipjobs provides the asynchronous job lifecycle and coordination
// layer for a video-to-clips pipeline. It offers a durable job record store
// backed by a shared key-value store, a bounded-retry trigger orchestrator
// that hands work to an external worker service, and a client-side polling
// controller with exponential backoff and cancellation.
//
// clipjobs is designed as a library, not a service. Import it, configure a
// store backend, and compose the pieces:
//
//	store := redisstore.New(redisClient)
//	orch := trigger.New(store, cfg.WorkerBaseURL)
//
//	j, err := store.CreateJob(ctx, req)
//	if err := orch.Trigger(ctx, j.ID, j.Request); err != nil { ... }
//
//	ctrl := poll.New(store, poll.OnProgress(render))
//	ctrl.Start(j.ID)
//
// # Architecture
//
// The shared store is the single source of truth for job state. The worker
// service performs the actual media processing out of process and reports
// back by writing progress, results, or errors through the same store
// operations. Polling only observes; stopping a poller never stops the
// underlying job.
//
// All job IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based
// identifiers, so IDs sort roughly by creation time.
package clipjobs
