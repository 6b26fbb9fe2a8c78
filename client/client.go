// Package client provides a Go client for the clipjobs HTTP API.
//
// Usage:
//
//	c := client.New("https://jobs.example.com")
//
//	// Submit a video and watch the job to completion.
//	j, err := c.CreateJob(ctx, job.Request{
//	    UserID:   "u_123",
//	    VideoURL: "https://cdn.example.com/talk.mp4",
//	})
//	ctrl, err := c.Watch(j.ID,
//	    poll.OnProgress(func(j *job.Job) { render(j) }),
//	    poll.OnSuccess(func(j *job.Job) { showClips(j.Result) }),
//	)
//	defer ctrl.Close()
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/clipforge/clipjobs"
	"github.com/clipforge/clipjobs/id"
	"github.com/clipforge/clipjobs/poll"
)

// Client talks to a remote clipjobs server. It satisfies poll.Fetcher, so
// it can back a poll.Controller directly.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// New creates a Client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("clipjobs client: %s (%d %s)", e.Message, e.Status, e.Code)
}

// do issues one request and decodes the response into out (if non-nil).
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("clipjobs client: marshal request: %w", err)
		}
		rd = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("clipjobs client: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("clipjobs client: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.apiError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("clipjobs client: decode response: %w", err)
	}
	return nil
}

// apiError turns an error response into an *APIError, mapping a 404 on a
// job resource to the store's not-found sentinel.
func (c *Client) apiError(resp *http.Response) error {
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	// A body that won't decode still yields a usable status-only error.
	_ = json.NewDecoder(resp.Body).Decode(&body)

	if resp.StatusCode == http.StatusNotFound && body.Error.Code == "not_found" {
		return clipjobs.ErrJobNotFound
	}
	msg := body.Error.Message
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &APIError{Status: resp.StatusCode, Code: body.Error.Code, Message: msg}
}

// Watch starts a polling controller over this client for the given job.
// The controller is already started; Close it when done.
func (c *Client) Watch(jobID id.JobID, opts ...poll.Option) (*poll.Controller, error) {
	ctrl := poll.New(c, opts...)
	if err := ctrl.Start(jobID); err != nil {
		return nil, err
	}
	return ctrl, nil
}

var _ poll.Fetcher = (*Client)(nil)
