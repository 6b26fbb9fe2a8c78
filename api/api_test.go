package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/clipforge/clipjobs/id"
	"github.com/clipforge/clipjobs/job"
	"github.com/clipforge/clipjobs/store/memory"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// recordingTrigger records trigger calls and signals each one.
type recordingTrigger struct {
	mu     sync.Mutex
	jobIDs []id.JobID
	called chan struct{}
	err    error
}

func newRecordingTrigger() *recordingTrigger {
	return &recordingTrigger{called: make(chan struct{}, 8)}
}

func (r *recordingTrigger) Trigger(_ context.Context, jobID id.JobID, _ job.Request) error {
	r.mu.Lock()
	r.jobIDs = append(r.jobIDs, jobID)
	r.mu.Unlock()
	r.called <- struct{}{}
	return r.err
}

func newTestAPI(t *testing.T) (*memory.Store, *recordingTrigger, http.Handler) {
	t.Helper()
	s := memory.New()
	tr := newRecordingTrigger()
	return s, tr, New(s, tr).Handler()
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *strings.Reader
	if body == "" {
		rd = strings.NewReader("")
	} else {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestCreateJob(t *testing.T) {
	s, tr, h := newTestAPI(t)

	w := doJSON(t, h, http.MethodPost, "/v1/jobs",
		`{"user_id":"u1","video_url":"https://cdn.example.com/talk.mp4","template":{"caption_style":"karaoke"}}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", w.Code, w.Body.String())
	}

	var j job.Job
	if err := json.Unmarshal(w.Body.Bytes(), &j); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if j.Status != job.StatusQueued {
		t.Errorf("Status = %s, want queued", j.Status)
	}
	if j.ID.IsNil() {
		t.Error("response job has no ID")
	}

	// The record is durable before the response.
	if _, err := s.GetJob(context.Background(), j.ID); err != nil {
		t.Errorf("job not persisted: %v", err)
	}

	// The trigger fires asynchronously with the new job's ID.
	<-tr.called
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if len(tr.jobIDs) != 1 || tr.jobIDs[0].String() != j.ID.String() {
		t.Errorf("trigger calls = %v, want [%s]", tr.jobIDs, j.ID)
	}
}

func TestCreateJob_Validation(t *testing.T) {
	_, _, h := newTestAPI(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed JSON", `{"user_id":`},
		{"missing user", `{"video_url":"https://x/a"}`},
		{"no source", `{"user_id":"u1"}`},
		{"both sources", `{"user_id":"u1","video_url":"https://x/a","source_url":"https://youtu.be/b"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, h, http.MethodPost, "/v1/jobs", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestGetJob(t *testing.T) {
	s, _, h := newTestAPI(t)

	j, err := s.CreateJob(context.Background(), job.Request{UserID: "u1", VideoURL: "https://x/a"})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	w := doJSON(t, h, http.MethodGet, "/v1/jobs/"+j.ID.String(), "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var got job.Job
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID.String() != j.ID.String() {
		t.Errorf("ID = %s, want %s", got.ID, j.ID)
	}
}

func TestGetJob_NotFound(t *testing.T) {
	_, _, h := newTestAPI(t)

	w := doJSON(t, h, http.MethodGet, "/v1/jobs/"+id.NewJobID().String(), "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}

	var resp errorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error.Code != "not_found" {
		t.Errorf("error code = %q, want not_found", resp.Error.Code)
	}
}

func TestGetJob_MalformedID(t *testing.T) {
	_, _, h := newTestAPI(t)

	w := doJSON(t, h, http.MethodGet, "/v1/jobs/not-a-job-id", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestListJobs(t *testing.T) {
	s, _, h := newTestAPI(t)
	ctx := context.Background()

	for range 3 {
		if _, err := s.CreateJob(ctx, job.Request{UserID: "u1", VideoURL: "https://x/a"}); err != nil {
			t.Fatalf("CreateJob: %v", err)
		}
	}
	if _, err := s.CreateJob(ctx, job.Request{UserID: "u2", VideoURL: "https://x/b"}); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	w := doJSON(t, h, http.MethodGet, "/v1/jobs?user_id=u1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Jobs  []*job.Job `json:"jobs"`
		Count int        `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 3 {
		t.Errorf("count = %d, want 3", resp.Count)
	}

	w = doJSON(t, h, http.MethodGet, "/v1/jobs?user_id=u1&limit=2&offset=1", "")
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 2 {
		t.Errorf("paged count = %d, want 2", resp.Count)
	}
}

func TestListJobs_RequiresUser(t *testing.T) {
	_, _, h := newTestAPI(t)

	w := doJSON(t, h, http.MethodGet, "/v1/jobs", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestDeleteJob(t *testing.T) {
	s, _, h := newTestAPI(t)

	j, err := s.CreateJob(context.Background(), job.Request{UserID: "u1", VideoURL: "https://x/a"})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	w := doJSON(t, h, http.MethodDelete, "/v1/jobs/"+j.ID.String(), "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}

	w = doJSON(t, h, http.MethodDelete, "/v1/jobs/"+j.ID.String(), "")
	if w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", w.Code)
	}
}

func TestQueueInfo(t *testing.T) {
	s, _, h := newTestAPI(t)

	if _, err := s.CreateJob(context.Background(), job.Request{UserID: "u1", VideoURL: "https://x/a"}); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	w := doJSON(t, h, http.MethodGet, "/v1/queue", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var info job.QueueInfo
	if err := json.Unmarshal(w.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info.QueueLength != 1 || len(info.ActiveJobs) != 1 {
		t.Errorf("info = %+v, want one active job", info)
	}
}

func TestHealthz(t *testing.T) {
	_, _, h := newTestAPI(t)

	w := doJSON(t, h, http.MethodGet, "/healthz", "")
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}
