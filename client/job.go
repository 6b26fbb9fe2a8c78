package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/clipforge/clipjobs/id"
	"github.com/clipforge/clipjobs/job"
)

// CreateJob submits a clip generation request. The returned record is in
// the queued state; the server triggers worker processing asynchronously.
func (c *Client) CreateJob(ctx context.Context, req job.Request) (*job.Job, error) {
	var j job.Job
	if err := c.do(ctx, http.MethodPost, "/v1/jobs", req, &j); err != nil {
		return nil, err
	}
	return &j, nil
}

// GetJob retrieves the current job record.
func (c *Client) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	var j job.Job
	if err := c.do(ctx, http.MethodGet, "/v1/jobs/"+url.PathEscape(jobID.String()), nil, &j); err != nil {
		return nil, err
	}
	return &j, nil
}

// ListJobs returns the user's jobs, most recent first.
func (c *Client) ListJobs(ctx context.Context, userID string, opts job.ListOpts) ([]*job.Job, error) {
	q := url.Values{}
	q.Set("user_id", userID)
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", strconv.Itoa(opts.Offset))
	}

	var resp struct {
		Jobs []*job.Job `json:"jobs"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/jobs?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

// DeleteJob removes a job record.
func (c *Client) DeleteJob(ctx context.Context, jobID id.JobID) error {
	return c.do(ctx, http.MethodDelete, "/v1/jobs/"+url.PathEscape(jobID.String()), nil, nil)
}

// QueueInfo returns a snapshot of the active job queue.
func (c *Client) QueueInfo(ctx context.Context) (*job.QueueInfo, error) {
	var info job.QueueInfo
	if err := c.do(ctx, http.MethodGet, "/v1/queue", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Health checks the server and its store.
func (c *Client) Health(ctx context.Context) error {
	if err := c.do(ctx, http.MethodGet, "/healthz", nil, nil); err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	return nil
}
