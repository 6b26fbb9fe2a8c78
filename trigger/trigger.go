// Package trigger moves a job from queued to processing and delegates the
// actual media work to the external worker service over HTTP.
//
// A trigger call retries transport failures on a fixed delay schedule,
// records liveness by bumping the job's progress after each failed attempt,
// and classifies the terminal failure so the job is always driven to a
// terminal state — a trigger never leaves a job stuck mid-processing.
package trigger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"

	"github.com/clipforge/clipjobs"
	"github.com/clipforge/clipjobs/backoff"
	"github.com/clipforge/clipjobs/id"
	"github.com/clipforge/clipjobs/job"
)

// meterName is the instrumentation scope name for trigger metrics.
const meterName = "github.com/clipforge/clipjobs/trigger"

// triggerPath is the worker service endpoint receiving trigger payloads.
const triggerPath = "/process"

// Orchestrator triggers worker processing for queued jobs.
type Orchestrator struct {
	store   job.Store
	baseURL string
	client  *http.Client
	logger  *slog.Logger

	attempts int
	strategy backoff.Strategy
	limiter  *rate.Limiter

	// Attempt telemetry is emitted as metrics, separate from the durable
	// progress writes observers see.
	attemptCounter metric.Int64Counter
	failureCounter metric.Int64Counter
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithHTTPClient sets a custom HTTP client. The client's Timeout bounds
// each trigger attempt.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Orchestrator) { o.client = c }
}

// WithTimeout sets the per-attempt timeout on the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.client.Timeout = d }
}

// WithRetry overrides the attempt count and the delay schedule between
// attempts. A non-positive attempts keeps the default count; a nil strategy
// keeps the default schedule.
func WithRetry(attempts int, strategy backoff.Strategy) Option {
	return func(o *Orchestrator) {
		if attempts > 0 {
			o.attempts = attempts
		}
		if strategy != nil {
			o.strategy = strategy
		}
	}
}

// WithRateLimit bounds outbound worker calls to r requests per second with
// the given burst, protecting the worker service from trigger storms.
func WithRateLimit(r rate.Limit, burst int) Option {
	return func(o *Orchestrator) { o.limiter = rate.NewLimiter(r, burst) }
}

// New creates an Orchestrator calling the worker service at baseURL.
func New(store job.Store, baseURL string, opts ...Option) *Orchestrator {
	cfg := clipjobs.DefaultConfig()
	o := &Orchestrator{
		store:    store,
		baseURL:  baseURL,
		client:   &http.Client{Timeout: cfg.TriggerTimeout},
		logger:   slog.Default(),
		attempts: cfg.TriggerAttempts,
		strategy: backoff.NewSchedule(cfg.TriggerDelays...),
	}
	for _, opt := range opts {
		opt(o)
	}

	meter := otel.Meter(meterName)
	o.attemptCounter, _ = meter.Int64Counter( //nolint:errcheck // noop fallback guaranteed by OTel API contract
		"clipjobs.trigger.attempts",
		metric.WithDescription("Total worker trigger attempts"),
		metric.WithUnit("{attempt}"),
	)
	o.failureCounter, _ = meter.Int64Counter( //nolint:errcheck // noop fallback guaranteed by OTel API contract
		"clipjobs.trigger.failures",
		metric.WithDescription("Worker triggers that exhausted all attempts"),
		metric.WithUnit("{trigger}"),
	)
	return o
}

// Trigger transitions the job from queued to processing and hands it to
// the worker service. The job must exist and be in StatusQueued; otherwise
// the call fails without mutating anything.
//
// On exhausting all attempts the job is driven to StatusFailed with the
// classified error type and the aggregated failure detail, and
// clipjobs.ErrTriggerExhausted is returned.
func (o *Orchestrator) Trigger(ctx context.Context, jobID id.JobID, req job.Request) error {
	j, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("clipjobs/trigger: load job: %w", err)
	}
	if j.Status != job.StatusQueued {
		return fmt.Errorf("clipjobs/trigger: job %s is %s: %w", jobID, j.Status, clipjobs.ErrInvalidTransition)
	}

	// The queued→processing edge is the only job write the orchestrator
	// owns; from here on the worker service is the writer.
	if err := o.store.UpdateStatus(ctx, jobID, job.StatusProcessing, "processing started"); err != nil {
		return fmt.Errorf("clipjobs/trigger: mark processing: %w", err)
	}
	if err := o.store.UpdateProgress(ctx, jobID, 5, job.StageInitializing, "contacting worker service", nil); err != nil {
		return fmt.Errorf("clipjobs/trigger: mark initializing: %w", err)
	}

	body, contentType, err := buildPayload(jobID, req)
	if err != nil {
		return fmt.Errorf("clipjobs/trigger: build payload: %w", err)
	}

	var attempt int
	var lastClass job.ErrorType
	callErr := backoff.Retry(ctx, o.attempts, o.strategy, func(ctx context.Context) error {
		attempt++
		o.attemptCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("job_id", jobID.String())))

		aErr := o.callWorker(ctx, body, contentType)
		if aErr == nil {
			return nil
		}
		lastClass = classify(aErr)

		o.logger.Warn("worker trigger attempt failed",
			slog.String("job_id", jobID.String()),
			slog.Int("attempt", attempt),
			slog.String("class", string(lastClass)),
			slog.String("error", aErr.Error()),
		)

		// Liveness for observers: bump durable progress and message on
		// each failed attempt.
		msg := fmt.Sprintf("retrying worker trigger (attempt %d of %d)", attempt, o.attempts)
		if pErr := o.store.UpdateProgress(ctx, jobID, 5+2*attempt, job.StageInitializing, msg, nil); pErr != nil {
			o.logger.Warn("retry progress write failed",
				slog.String("job_id", jobID.String()),
				slog.String("error", pErr.Error()),
			)
		}
		return aErr
	})

	if callErr != nil {
		o.failureCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("class", string(lastClass))))

		msg := fmt.Sprintf("worker trigger failed after %d attempts", o.attempts)
		if sErr := o.store.SetError(ctx, jobID, msg, callErr.Error(), "", lastClass); sErr != nil {
			o.logger.Error("failed to record trigger failure",
				slog.String("job_id", jobID.String()),
				slog.String("error", sErr.Error()),
			)
		}
		return fmt.Errorf("clipjobs/trigger: %w: %w", clipjobs.ErrTriggerExhausted, callErr)
	}

	if err := o.store.UpdateProgress(ctx, jobID, 10, job.StageProcessing, "worker service accepted job", nil); err != nil {
		return fmt.Errorf("clipjobs/trigger: mark processing progress: %w", err)
	}

	o.logger.Info("worker trigger succeeded",
		slog.String("job_id", jobID.String()),
		slog.Int("attempts", attempt),
	)
	return nil
}

// callWorker performs one POST to the worker service.
func (o *Orchestrator) callWorker(ctx context.Context, body []byte, contentType string) error {
	if o.limiter != nil {
		if err := o.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+triggerPath, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := o.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512)) //nolint:errcheck // best-effort error detail
		return fmt.Errorf("worker returned %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
	}
	return nil
}

// classify maps a transport failure to the job error taxonomy:
// deadline/abort → timeout, connectivity → network, anything else →
// processing.
func classify(err error) job.ErrorType {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || os.IsTimeout(err) {
		return job.ErrTypeTimeout
	}
	var uErr *url.Error
	if errors.As(err, &uErr) {
		if uErr.Timeout() {
			return job.ErrTypeTimeout
		}
		return job.ErrTypeNetwork
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return job.ErrTypeTimeout
	}
	return job.ErrTypeProcessing
}

// buildPayload encodes the trigger request as a multipart form carrying the
// job id and a normalized projection of the processing parameters.
func buildPayload(jobID id.JobID, req job.Request) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := map[string]string{
		"job_id":          jobID.String(),
		"caption_style":   req.Template.CaptionStyle,
		"animation_style": req.Template.AnimationStyle,
		"sync_mode":       req.Template.SyncMode,
		"font":            req.Template.Font,
	}
	if req.VideoURL != "" {
		fields["video_url"] = req.VideoURL
	}
	if req.SourceURL != "" {
		fields["source_url"] = req.SourceURL
	}
	if req.ClipDuration > 0 {
		fields["clip_duration"] = strconv.Itoa(req.ClipDuration)
	}
	if req.Timeframe != nil {
		fields["timeframe_start"] = strconv.FormatFloat(req.Timeframe.Start, 'f', -1, 64)
		fields["timeframe_end"] = strconv.FormatFloat(req.Timeframe.End, 'f', -1, 64)
	}
	if req.MinClipLength > 0 {
		fields["min_clip_length"] = strconv.Itoa(req.MinClipLength)
	}
	if req.MaxClipLength > 0 {
		fields["max_clip_length"] = strconv.Itoa(req.MaxClipLength)
	}
	if req.TargetClipLength > 0 {
		fields["target_clip_length"] = strconv.Itoa(req.TargetClipLength)
	}

	for key, val := range fields {
		if val == "" {
			continue
		}
		if err := w.WriteField(key, val); err != nil {
			return nil, "", err
		}
	}
	for i, color := range req.Template.HighlightColors {
		if err := w.WriteField(fmt.Sprintf("highlight_color_%d", i), color); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
