package job

import (
	"time"

	"github.com/clipforge/clipjobs/id"
)

// Status represents the lifecycle state of a job.
type Status string

const (
	// StatusQueued means the job is recorded but processing has not started.
	StatusQueued Status = "queued"
	// StatusProcessing means the worker service is executing the job.
	StatusProcessing Status = "processing"
	// StatusCompleted means the job finished and Result is populated.
	StatusCompleted Status = "completed"
	// StatusFailed means the job failed and Error is populated.
	StatusFailed Status = "failed"
)

// Terminal reports whether no further transitions are valid from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// StageName is a named checkpoint within the processing pipeline.
// Stage names are a closed set: they act as upsert keys in Job.Stages,
// so free-form strings would make same-named collisions silent.
type StageName string

const (
	StageQueued       StageName = "queued"
	StageInitializing StageName = "initializing"
	StageProcessing   StageName = "processing"
	StageDownloading  StageName = "downloading"
	StageTranscribing StageName = "transcribing"
	StageRendering    StageName = "rendering"
	StageCompleted    StageName = "completed"
	StageFailed       StageName = "failed"
)

// Stage is one pipeline checkpoint with its own progress percentage.
type Stage struct {
	Name        StageName `json:"name"`
	Description string    `json:"description,omitempty"`
	Progress    int       `json:"progress"`
}

// Timeframe bounds the portion of the source video to process, in seconds.
type Timeframe struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Template is the normalized projection of the caption/animation template
// carried on the trigger call. Template editing and validation live in the
// presentation layer; the coordination layer only forwards these fields.
type Template struct {
	CaptionStyle    string   `json:"caption_style,omitempty"`
	AnimationStyle  string   `json:"animation_style,omitempty"`
	SyncMode        string   `json:"sync_mode,omitempty"`
	Font            string   `json:"font,omitempty"`
	HighlightColors []string `json:"highlight_colors,omitempty"`
}

// Request is the immutable snapshot of the original submission. It is
// written once at creation and never mutated by store operations.
type Request struct {
	UserID string `json:"user_id"`

	// Exactly one of VideoURL (direct file) or SourceURL (streaming site)
	// should be set.
	VideoURL  string `json:"video_url,omitempty"`
	SourceURL string `json:"source_url,omitempty"`

	OriginalFilename string `json:"original_filename,omitempty"`

	Template     Template   `json:"template"`
	ClipDuration int        `json:"clip_duration,omitempty"`
	Timeframe    *Timeframe `json:"timeframe,omitempty"`

	// Optional clip length bounds, in seconds.
	MinClipLength    int `json:"min_clip_length,omitempty"`
	MaxClipLength    int `json:"max_clip_length,omitempty"`
	TargetClipLength int `json:"target_clip_length,omitempty"`
}

// Clip is one output descriptor produced by the worker service.
type Clip struct {
	ID           id.ID   `json:"id"`
	URL          string  `json:"url"`
	ThumbnailURL string  `json:"thumbnail_url,omitempty"`
	Title        string  `json:"title,omitempty"`
	Duration     float64 `json:"duration,omitempty"`
	StartTime    float64 `json:"start_time,omitempty"`
	EndTime      float64 `json:"end_time,omitempty"`
	Score        float64 `json:"score,omitempty"`
}

// Metadata carries timing bookkeeping for a job.
type Metadata struct {
	EstimatedProcessingTime time.Duration `json:"estimated_processing_time,omitempty"`
	// ActualProcessingTime is computed at the terminal transition as
	// EndTime - StartTime.
	ActualProcessingTime time.Duration `json:"actual_processing_time,omitempty"`
	OriginalFilename     string        `json:"original_filename,omitempty"`
}

// Job represents one asynchronous video-to-clips request.
type Job struct {
	ID       id.JobID `json:"id"`
	UserID   string   `json:"user_id"`
	Status   Status   `json:"status"`
	Progress int      `json:"progress"`

	Stage   StageName `json:"stage"`
	Message string    `json:"message,omitempty"`

	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`

	Request Request `json:"request"`

	// Result is set iff Status == StatusCompleted.
	Result []Clip `json:"result,omitempty"`
	// Error is set iff Status == StatusFailed.
	Error *Error `json:"error,omitempty"`

	Stages   []Stage  `json:"stages,omitempty"`
	Metadata Metadata `json:"metadata"`
}

// ClampProgress clamps p to the valid [0, 100] range.
func ClampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// SetProgress stores the clamped progress value.
func (j *Job) SetProgress(p int) {
	j.Progress = ClampProgress(p)
}

// UpsertStage replaces the stage entry matching s.Name, or appends s if no
// entry with that name exists. Order of first appearance is preserved.
func (j *Job) UpsertStage(s Stage) {
	s.Progress = ClampProgress(s.Progress)
	for i := range j.Stages {
		if j.Stages[i].Name == s.Name {
			j.Stages[i] = s
			return
		}
	}
	j.Stages = append(j.Stages, s)
}

// Finalize stamps the terminal bookkeeping: EndTime and the computed
// ActualProcessingTime. It is idempotent — a job already finalized keeps
// its original EndTime.
func (j *Job) Finalize(now time.Time) {
	if j.EndTime != nil {
		return
	}
	end := now.UTC()
	j.EndTime = &end
	if !j.StartTime.IsZero() {
		j.Metadata.ActualProcessingTime = end.Sub(j.StartTime)
	}
}

// Terminal reports whether the job is in a terminal state.
func (j *Job) Terminal() bool { return j.Status.Terminal() }

// Clone returns a deep copy of the job. Stores hand out clones so callers
// never alias the slices the store keeps mutating in place.
func (j *Job) Clone() *Job {
	cp := *j
	if j.EndTime != nil {
		t := *j.EndTime
		cp.EndTime = &t
	}
	if j.Request.Timeframe != nil {
		tf := *j.Request.Timeframe
		cp.Request.Timeframe = &tf
	}
	if j.Request.Template.HighlightColors != nil {
		cp.Request.Template.HighlightColors = append([]string(nil), j.Request.Template.HighlightColors...)
	}
	if j.Result != nil {
		cp.Result = append([]Clip(nil), j.Result...)
	}
	if j.Error != nil {
		e := *j.Error
		cp.Error = &e
	}
	if j.Stages != nil {
		cp.Stages = append([]Stage(nil), j.Stages...)
	}
	return &cp
}
