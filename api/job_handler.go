package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/clipforge/clipjobs/id"
	"github.com/clipforge/clipjobs/job"
)

const defaultListLimit = 50

// createJob accepts a clip generation request, durably records the job,
// kicks off the worker trigger in the background, and returns the queued
// record immediately. The caller polls the job for progress.
func (a *API) createJob(ctx *gin.Context) {
	var req job.Request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.UserID == "" {
		badRequest(ctx, "user_id is required")
		return
	}
	if (req.VideoURL == "") == (req.SourceURL == "") {
		badRequest(ctx, "exactly one of video_url or source_url must be set")
		return
	}

	j, err := a.store.CreateJob(ctx.Request.Context(), req)
	if err != nil {
		internal(ctx, fmt.Sprintf("create job: %v", err))
		return
	}

	// The trigger runs its own retry schedule; don't hold the request
	// open for it. Failures land on the job record via the store.
	go func() {
		if tErr := a.trigger.Trigger(context.WithoutCancel(ctx.Request.Context()), j.ID, req); tErr != nil {
			a.logger.Warn("worker trigger failed",
				slog.String("job_id", j.ID.String()),
				slog.String("error", tErr.Error()),
			)
		}
	}()

	ctx.JSON(http.StatusAccepted, j)
}

func (a *API) getJob(ctx *gin.Context) {
	jobID, err := id.ParseJobID(ctx.Param("jobId"))
	if err != nil {
		badRequest(ctx, fmt.Sprintf("invalid job ID: %v", err))
		return
	}

	j, err := a.store.GetJob(ctx.Request.Context(), jobID)
	if err != nil {
		storeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, j)
}

func (a *API) listJobs(ctx *gin.Context) {
	userID := ctx.Query("user_id")
	if userID == "" {
		badRequest(ctx, "user_id query parameter is required")
		return
	}

	opts := job.ListOpts{Limit: defaultListLimit}
	if raw := ctx.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(ctx, fmt.Sprintf("invalid limit %q", raw))
			return
		}
		opts.Limit = n
	}
	if raw := ctx.Query("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(ctx, fmt.Sprintf("invalid offset %q", raw))
			return
		}
		opts.Offset = n
	}

	jobs, err := a.store.GetUserJobs(ctx.Request.Context(), userID, opts)
	if err != nil {
		storeError(ctx, err)
		return
	}
	if jobs == nil {
		jobs = []*job.Job{}
	}
	ctx.JSON(http.StatusOK, gin.H{"jobs": jobs, "count": len(jobs)})
}

func (a *API) deleteJob(ctx *gin.Context) {
	jobID, err := id.ParseJobID(ctx.Param("jobId"))
	if err != nil {
		badRequest(ctx, fmt.Sprintf("invalid job ID: %v", err))
		return
	}

	existed, err := a.store.DeleteJob(ctx.Request.Context(), jobID)
	if err != nil {
		storeError(ctx, err)
		return
	}
	if !existed {
		notFound(ctx, "job not found")
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (a *API) queueInfo(ctx *gin.Context) {
	info, err := a.store.QueueInfo(ctx.Request.Context())
	if err != nil {
		storeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, info)
}

func (a *API) healthz(ctx *gin.Context) {
	if err := a.store.Ping(ctx.Request.Context()); err != nil {
		jsonError(ctx, http.StatusServiceUnavailable, "unavailable", err.Error())
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}
