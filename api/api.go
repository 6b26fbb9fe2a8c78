// Package api exposes the job coordination system over HTTP: submit a
// video, observe its job record, list a user's jobs, and inspect the
// active queue.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clipforge/clipjobs/id"
	"github.com/clipforge/clipjobs/job"
	"github.com/clipforge/clipjobs/middleware"
)

// Triggerer starts worker processing for a queued job.
// trigger.Orchestrator satisfies this interface.
type Triggerer interface {
	Trigger(ctx context.Context, jobID id.JobID, req job.Request) error
}

// API wires the HTTP handlers over the store and the trigger orchestrator.
type API struct {
	store   job.Store
	trigger Triggerer
	logger  *slog.Logger
}

// Option configures an API.
type Option func(*API)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *API) { a.logger = l }
}

// New creates an API over the store and triggerer.
func New(store job.Store, trigger Triggerer, opts ...Option) *API {
	a := &API{
		store:   store,
		trigger: trigger,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handler returns the fully assembled http.Handler with all routes.
func (a *API) Handler() http.Handler {
	r := gin.New()
	r.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.Logging(a.logger),
		middleware.Metrics(),
	)
	a.RegisterRoutes(r)
	return r
}

// RegisterRoutes registers all job routes into the given gin engine.
func (a *API) RegisterRoutes(r *gin.Engine) {
	v1 := r.Group("/v1")
	{
		v1.POST("/jobs", a.createJob)
		v1.GET("/jobs", a.listJobs)
		v1.GET("/jobs/:jobId", a.getJob)
		v1.DELETE("/jobs/:jobId", a.deleteJob)
		v1.GET("/queue", a.queueInfo)
	}
	r.GET("/healthz", a.healthz)
}
