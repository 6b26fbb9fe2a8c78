package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/clipforge/clipjobs"
	"github.com/clipforge/clipjobs/id"
	"github.com/clipforge/clipjobs/job"
)

func testRequest(userID string) job.Request {
	return job.Request{
		UserID:       userID,
		VideoURL:     "https://cdn.example.com/input.mp4",
		ClipDuration: 45,
		Template: job.Template{
			CaptionStyle: "karaoke",
			Font:         "Inter",
		},
	}
}

func TestCreateJob_InitialState(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	j, err := s.CreateJob(ctx, testRequest("u1"))
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	got, err := s.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != job.StatusQueued {
		t.Errorf("Status = %s, want %s", got.Status, job.StatusQueued)
	}
	if got.Progress != 0 {
		t.Errorf("Progress = %d, want 0", got.Progress)
	}
	if got.Stage != job.StageQueued {
		t.Errorf("Stage = %s, want %s", got.Stage, job.StageQueued)
	}
	if got.EndTime != nil {
		t.Error("EndTime set on a fresh job")
	}
	if got.UserID != "u1" {
		t.Errorf("UserID = %q, want u1", got.UserID)
	}

	info, err := s.QueueInfo(ctx)
	if err != nil {
		t.Fatalf("QueueInfo: %v", err)
	}
	if info.QueueLength != 1 {
		t.Errorf("QueueLength = %d, want 1", info.QueueLength)
	}
}

func TestGetJob_NotFound(t *testing.T) {
	t.Parallel()
	s := New()

	_, err := s.GetJob(context.Background(), id.NewJobID())
	if !errors.Is(err, clipjobs.ErrJobNotFound) {
		t.Fatalf("err = %v, want ErrJobNotFound", err)
	}
}

func TestUpdateProgress_Clamps(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	j, _ := s.CreateJob(ctx, testRequest("u1"))

	tests := []struct {
		in   int
		want int
	}{
		{150, 100},
		{-10, 0},
		{42, 42},
	}
	for _, tt := range tests {
		if err := s.UpdateProgress(ctx, j.ID, tt.in, job.StageRendering, "almost there", nil); err != nil {
			t.Fatalf("UpdateProgress(%d): %v", tt.in, err)
		}
		got, _ := s.GetJob(ctx, j.ID)
		if got.Progress != tt.want {
			t.Errorf("progress after UpdateProgress(%d) = %d, want %d", tt.in, got.Progress, tt.want)
		}
	}
}

func TestUpdateProgress_NotFound(t *testing.T) {
	t.Parallel()
	s := New()

	err := s.UpdateProgress(context.Background(), id.NewJobID(), 10, job.StageProcessing, "", nil)
	if !errors.Is(err, clipjobs.ErrJobNotFound) {
		t.Fatalf("err = %v, want ErrJobNotFound", err)
	}
}

func TestUpdateProgress_UpsertsStageDetail(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	j, _ := s.CreateJob(ctx, testRequest("u1"))

	detail := &job.Stage{Name: job.StageDownloading, Description: "fetching source", Progress: 30}
	if err := s.UpdateProgress(ctx, j.ID, 30, job.StageDownloading, "downloading", detail); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	detail = &job.Stage{Name: job.StageDownloading, Description: "fetched", Progress: 100}
	if err := s.UpdateProgress(ctx, j.ID, 35, job.StageDownloading, "downloaded", detail); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}

	got, _ := s.GetJob(ctx, j.ID)
	// "queued" from creation plus one upserted (not duplicated) "downloading".
	if len(got.Stages) != 2 {
		t.Fatalf("got %d stages, want 2: %+v", len(got.Stages), got.Stages)
	}
	if got.Stages[1].Description != "fetched" || got.Stages[1].Progress != 100 {
		t.Errorf("downloading stage = %+v, want replaced entry", got.Stages[1])
	}
}

func TestUpdateStatus_ProcessingBumpsZeroProgress(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	j, _ := s.CreateJob(ctx, testRequest("u1"))
	if err := s.UpdateStatus(ctx, j.ID, job.StatusProcessing, "started"); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	got, _ := s.GetJob(ctx, j.ID)
	if got.Progress != 1 {
		t.Errorf("Progress = %d, want 1", got.Progress)
	}
	if got.EndTime != nil {
		t.Error("EndTime set on a non-terminal transition")
	}
}

func TestUpdateStatus_TerminalBookkeeping(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	j, _ := s.CreateJob(ctx, testRequest("u1"))
	if err := s.UpdateStatus(ctx, j.ID, job.StatusCompleted, "all done"); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	got, _ := s.GetJob(ctx, j.ID)
	if got.Progress != 100 {
		t.Errorf("Progress = %d, want 100", got.Progress)
	}
	if got.EndTime == nil {
		t.Fatal("EndTime not set at terminal transition")
	}
	if got.Metadata.ActualProcessingTime != got.EndTime.Sub(got.StartTime) {
		t.Errorf("ActualProcessingTime = %v, want %v",
			got.Metadata.ActualProcessingTime, got.EndTime.Sub(got.StartTime))
	}

	info, _ := s.QueueInfo(ctx)
	if info.QueueLength != 0 {
		t.Errorf("job still in active queue after terminal transition")
	}
}

func TestSetResult(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	j, _ := s.CreateJob(ctx, testRequest("u1"))
	clips := []job.Clip{{ID: id.NewClipID(), URL: "https://cdn.example.com/clip1.mp4", Duration: 44.5}}
	if err := s.SetResult(ctx, j.ID, clips); err != nil {
		t.Fatalf("SetResult: %v", err)
	}

	got, _ := s.GetJob(ctx, j.ID)
	if got.Status != job.StatusCompleted {
		t.Errorf("Status = %s, want completed", got.Status)
	}
	if got.Progress != 100 {
		t.Errorf("Progress = %d, want 100", got.Progress)
	}
	if got.Stage != job.StageCompleted {
		t.Errorf("Stage = %s, want completed", got.Stage)
	}
	if len(got.Result) != 1 {
		t.Fatalf("Result has %d clips, want 1", len(got.Result))
	}
	if got.Error != nil {
		t.Error("Error set on a completed job")
	}
	if got.EndTime == nil {
		t.Fatal("EndTime not set")
	}
	if got.Metadata.ActualProcessingTime <= 0 && got.EndTime.After(got.StartTime) {
		t.Error("ActualProcessingTime not computed")
	}

	info, _ := s.QueueInfo(ctx)
	if info.QueueLength != 0 {
		t.Error("completed job still in active queue")
	}
}

func TestSetResult_Idempotent(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	j, _ := s.CreateJob(ctx, testRequest("u1"))
	clips := []job.Clip{{ID: id.NewClipID(), URL: "https://cdn.example.com/clip1.mp4"}}
	if err := s.SetResult(ctx, j.ID, clips); err != nil {
		t.Fatalf("SetResult: %v", err)
	}
	first, _ := s.GetJob(ctx, j.ID)

	if err := s.SetResult(ctx, j.ID, clips); err != nil {
		t.Fatalf("second SetResult: %v", err)
	}
	second, _ := s.GetJob(ctx, j.ID)

	if !second.EndTime.Equal(*first.EndTime) {
		t.Errorf("second SetResult moved EndTime: %v → %v", first.EndTime, second.EndTime)
	}
	if second.Status != job.StatusCompleted || second.Progress != 100 {
		t.Errorf("terminal fields changed: %+v", second)
	}
}

func TestSetError(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	j, _ := s.CreateJob(ctx, testRequest("u1"))
	if err := s.SetError(ctx, j.ID, "worker unreachable", "dial tcp: refused", "", job.ErrTypeNetwork); err != nil {
		t.Fatalf("SetError: %v", err)
	}

	got, _ := s.GetJob(ctx, j.ID)
	if got.Status != job.StatusFailed {
		t.Errorf("Status = %s, want failed", got.Status)
	}
	if got.Error == nil {
		t.Fatal("Error not set")
	}
	if got.Error.Type != job.ErrTypeNetwork {
		t.Errorf("Error.Type = %s, want NETWORK_ERROR", got.Error.Type)
	}
	if !got.Error.Retryable {
		t.Error("network error should be retryable")
	}
	if got.Message != "worker unreachable" {
		t.Errorf("Message = %q", got.Message)
	}
	if got.Result != nil {
		t.Error("Result set on a failed job")
	}
	if got.EndTime == nil {
		t.Error("EndTime not set")
	}

	info, _ := s.QueueInfo(ctx)
	if info.QueueLength != 0 {
		t.Error("failed job still in active queue")
	}
}

func TestGetUserJobs_SortedDescending(t *testing.T) {
	t.Parallel()

	// Control the clock so creation times are distinct and known.
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s := New(WithClock(func() time.Time { return now }))
	ctx := context.Background()

	var ids []id.JobID
	for range 3 {
		j, err := s.CreateJob(ctx, testRequest("u1"))
		if err != nil {
			t.Fatalf("CreateJob: %v", err)
		}
		ids = append(ids, j.ID)
		now = now.Add(time.Minute)
	}
	// Another user's job must not appear.
	if _, err := s.CreateJob(ctx, testRequest("u2")); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	jobs, err := s.GetUserJobs(ctx, "u1", job.ListOpts{})
	if err != nil {
		t.Fatalf("GetUserJobs: %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("got %d jobs, want 3", len(jobs))
	}
	for i := 1; i < len(jobs); i++ {
		if jobs[i].StartTime.After(jobs[i-1].StartTime) {
			t.Errorf("jobs not sorted descending by StartTime: %v after %v",
				jobs[i].StartTime, jobs[i-1].StartTime)
		}
	}
	// Most recent first.
	if jobs[0].ID.String() != ids[2].String() {
		t.Errorf("jobs[0] = %s, want %s", jobs[0].ID, ids[2])
	}
}

func TestGetUserJobs_LimitOffset(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s := New(WithClock(func() time.Time { return now }))
	ctx := context.Background()

	for range 5 {
		if _, err := s.CreateJob(ctx, testRequest("u1")); err != nil {
			t.Fatalf("CreateJob: %v", err)
		}
		now = now.Add(time.Minute)
	}

	jobs, err := s.GetUserJobs(ctx, "u1", job.ListOpts{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("GetUserJobs: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("got %d jobs, want 2", len(jobs))
	}

	// Offset past the end yields nothing.
	jobs, err = s.GetUserJobs(ctx, "u1", job.ListOpts{Offset: 99})
	if err != nil {
		t.Fatalf("GetUserJobs: %v", err)
	}
	if len(jobs) != 0 {
		t.Errorf("got %d jobs past the end, want 0", len(jobs))
	}
}

func TestDeleteJob(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	j, _ := s.CreateJob(ctx, testRequest("u1"))

	existed, err := s.DeleteJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("DeleteJob: %v", err)
	}
	if !existed {
		t.Error("DeleteJob reported no record for an existing job")
	}

	if _, err := s.GetJob(ctx, j.ID); !errors.Is(err, clipjobs.ErrJobNotFound) {
		t.Errorf("GetJob after delete = %v, want ErrJobNotFound", err)
	}
	info, _ := s.QueueInfo(ctx)
	if info.QueueLength != 0 {
		t.Error("deleted job still in active queue")
	}
	jobs, _ := s.GetUserJobs(ctx, "u1", job.ListOpts{})
	if len(jobs) != 0 {
		t.Error("deleted job still in user index")
	}

	// Deleting again reports absence, not an error.
	existed, err = s.DeleteJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("second DeleteJob: %v", err)
	}
	if existed {
		t.Error("second DeleteJob reported a record")
	}
}

func TestCleanupExpired(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	now := base
	s := New(
		WithClock(func() time.Time { return now }),
		WithExpirationWindow(7*24*time.Hour),
	)
	ctx := context.Background()

	// Two jobs created 8 days ago: expired.
	now = base.Add(-8 * 24 * time.Hour)
	j1, _ := s.CreateJob(ctx, testRequest("u1"))
	j2, _ := s.CreateJob(ctx, testRequest("u1"))
	now = base

	// One fresh job and one already-terminal job.
	fresh, _ := s.CreateJob(ctx, testRequest("u1"))
	done, _ := s.CreateJob(ctx, testRequest("u1"))
	if err := s.SetResult(ctx, done.ID, []job.Clip{{URL: "https://x/clip.mp4"}}); err != nil {
		t.Fatalf("SetResult: %v", err)
	}

	removed, err := s.CleanupExpired(ctx)
	if err != nil {
		t.Fatalf("CleanupExpired: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}

	// Expired jobs are gone; fresh and terminal jobs remain queryable.
	if _, err := s.GetJob(ctx, j1.ID); !errors.Is(err, clipjobs.ErrJobNotFound) {
		t.Errorf("expired job %s still present", j1.ID)
	}
	if _, err := s.GetJob(ctx, j2.ID); !errors.Is(err, clipjobs.ErrJobNotFound) {
		t.Errorf("expired job %s still present", j2.ID)
	}
	if _, err := s.GetJob(ctx, fresh.ID); err != nil {
		t.Errorf("fresh job removed by cleanup: %v", err)
	}
	if _, err := s.GetJob(ctx, done.ID); err != nil {
		t.Errorf("terminal job removed by cleanup: %v", err)
	}

	// Second sweep removes nothing.
	removed, err = s.CleanupExpired(ctx)
	if err != nil {
		t.Fatalf("second CleanupExpired: %v", err)
	}
	if removed != 0 {
		t.Errorf("second sweep removed %d, want 0", removed)
	}
}

func TestQueueInfo_CreationOrder(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s := New(WithClock(func() time.Time { return now }))
	ctx := context.Background()

	var want []string
	for range 3 {
		j, _ := s.CreateJob(ctx, testRequest("u1"))
		want = append(want, j.ID.String())
		now = now.Add(time.Second)
	}

	info, err := s.QueueInfo(ctx)
	if err != nil {
		t.Fatalf("QueueInfo: %v", err)
	}
	if info.QueueLength != 3 {
		t.Fatalf("QueueLength = %d, want 3", info.QueueLength)
	}
	for i, w := range want {
		if info.ActiveJobs[i] != w {
			t.Errorf("ActiveJobs[%d] = %s, want %s", i, info.ActiveJobs[i], w)
		}
	}
}

func TestGetJob_CopyIsolatedFromLaterWrites(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	req := testRequest("u1")
	req.Template.HighlightColors = []string{"#ff0000", "#00ff00"}
	j, _ := s.CreateJob(ctx, req)

	detail := &job.Stage{Name: job.StageDownloading, Description: "fetching source", Progress: 20}
	if err := s.UpdateProgress(ctx, j.ID, 20, job.StageDownloading, "downloading", detail); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}

	snapshot, err := s.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}

	// Replace the downloading stage entry and complete the job; neither write
	// may bleed into the snapshot handed out above.
	detail = &job.Stage{Name: job.StageDownloading, Description: "fetched", Progress: 100}
	if err := s.UpdateProgress(ctx, j.ID, 40, job.StageDownloading, "downloaded", detail); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	if err := s.SetResult(ctx, j.ID, []job.Clip{{ID: id.NewClipID(), URL: "https://cdn.example.com/c1.mp4"}}); err != nil {
		t.Fatalf("SetResult: %v", err)
	}

	if got := snapshot.Stages[1].Description; got != "fetching source" {
		t.Errorf("snapshot stage description = %q, want %q", got, "fetching source")
	}
	if snapshot.Result != nil {
		t.Errorf("snapshot Result = %+v, want nil", snapshot.Result)
	}
	if snapshot.Status != job.StatusProcessing {
		t.Errorf("snapshot Status = %s, want %s", snapshot.Status, job.StatusProcessing)
	}

	snapshot.Request.Template.HighlightColors[0] = "#000000"
	stored, _ := s.GetJob(ctx, j.ID)
	if got := stored.Request.Template.HighlightColors[0]; got != "#ff0000" {
		t.Errorf("stored highlight color = %q, mutated through a handed-out copy", got)
	}
}
