// Package memory implements job.Store fully in memory. Safe for concurrent
// access. Intended for unit testing and development; transition semantics
// match the Redis backend exactly so behavior tests can run against either.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/clipforge/clipjobs"
	"github.com/clipforge/clipjobs/id"
	"github.com/clipforge/clipjobs/job"
)

// Compile-time interface check.
var _ job.Store = (*Store)(nil)

// Store is an in-memory implementation of job.Store.
type Store struct {
	mu sync.RWMutex

	jobs   map[string]*job.Job
	users  map[string]map[string]struct{}
	active map[string]int64 // job ID → creation unix ms (active-queue score)

	window time.Duration

	// now is swappable for tests.
	now func() time.Time
}

// Option configures the Store.
type Option func(*Store)

// WithExpirationWindow overrides the active-queue expiration window.
func WithExpirationWindow(d time.Duration) Option {
	return func(s *Store) { s.window = d }
}

// WithClock overrides the time source. Tests use this to age queue entries.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New returns a new empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		jobs:   make(map[string]*job.Job),
		users:  make(map[string]map[string]struct{}),
		active: make(map[string]int64),
		window: clipjobs.DefaultConfig().ExpirationWindow,
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// CreateJob writes an initial queued record and indexes it.
func (m *Store) CreateJob(_ context.Context, req job.Request) (*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	j := &job.Job{
		ID:        id.NewJobID(),
		UserID:    req.UserID,
		Status:    job.StatusQueued,
		Progress:  0,
		Stage:     job.StageQueued,
		StartTime: now,
		Request:   req,
		Metadata:  job.Metadata{OriginalFilename: req.OriginalFilename},
	}
	j.UpsertStage(job.Stage{Name: job.StageQueued, Description: "waiting for processing", Progress: 0})

	key := j.ID.String()
	m.jobs[key] = j
	if m.users[req.UserID] == nil {
		m.users[req.UserID] = make(map[string]struct{})
	}
	m.users[req.UserID][key] = struct{}{}
	m.active[key] = now.UnixMilli()

	return j.Clone(), nil
}

// GetJob retrieves a job by ID.
func (m *Store) GetJob(_ context.Context, jobID id.JobID) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, clipjobs.ErrJobNotFound
	}
	return j.Clone(), nil
}

// UpdateProgress clamps and stores progress, stage, and message.
func (m *Store) UpdateProgress(_ context.Context, jobID id.JobID, progress int, stage job.StageName, message string, stageDetail *job.Stage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return clipjobs.ErrJobNotFound
	}

	j.SetProgress(progress)
	if stage != "" {
		j.Stage = stage
	}
	j.Message = message
	if stageDetail != nil {
		j.UpsertStage(*stageDetail)
	}
	return nil
}

// UpdateStatus transitions status with the terminal bookkeeping.
func (m *Store) UpdateStatus(_ context.Context, jobID id.JobID, status job.Status, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return clipjobs.ErrJobNotFound
	}

	j.Status = status
	if message != "" {
		j.Message = message
	}
	switch status {
	case job.StatusProcessing:
		if j.Progress == 0 {
			j.Progress = 1
		}
	case job.StatusCompleted:
		j.Progress = 100
		fallthrough
	case job.StatusFailed:
		j.Finalize(m.now())
		delete(m.active, jobID.String())
	case job.StatusQueued:
	}
	return nil
}

// SetResult forces the completed terminal state with the output clips.
func (m *Store) SetResult(_ context.Context, jobID id.JobID, result []job.Clip) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return clipjobs.ErrJobNotFound
	}

	j.Status = job.StatusCompleted
	j.Progress = 100
	j.Stage = job.StageCompleted
	j.Result = result
	j.UpsertStage(job.Stage{Name: job.StageCompleted, Description: "processing complete", Progress: 100})
	j.Finalize(m.now())
	delete(m.active, jobID.String())
	return nil
}

// SetError forces the failed terminal state with a structured error.
func (m *Store) SetError(_ context.Context, jobID id.JobID, message, details, traceback string, errType job.ErrorType) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return clipjobs.ErrJobNotFound
	}

	j.Status = job.StatusFailed
	j.Stage = job.StageFailed
	j.Message = message
	j.Error = job.NewError(errType, message, details, traceback)
	j.UpsertStage(job.Stage{Name: job.StageFailed, Description: message, Progress: j.Progress})
	j.Finalize(m.now())
	delete(m.active, jobID.String())
	return nil
}

// GetUserJobs returns the user's jobs sorted descending by StartTime.
func (m *Store) GetUserJobs(_ context.Context, userID string, opts job.ListOpts) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := m.users[userID]
	jobs := make([]*job.Job, 0, len(keys))
	for key := range keys {
		j, ok := m.jobs[key]
		if !ok {
			continue // index entry with no record
		}
		jobs = append(jobs, j.Clone())
	}

	sort.Slice(jobs, func(i, k int) bool {
		return jobs[i].StartTime.After(jobs[k].StartTime)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(jobs) {
			return nil, nil
		}
		jobs = jobs[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(jobs) {
		jobs = jobs[:opts.Limit]
	}
	return jobs, nil
}

// DeleteJob removes the record and its index entries.
func (m *Store) DeleteJob(_ context.Context, jobID id.JobID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := jobID.String()
	j, ok := m.jobs[key]
	if !ok {
		return false, nil
	}
	delete(m.jobs, key)
	delete(m.active, key)
	if users := m.users[j.UserID]; users != nil {
		delete(users, key)
	}
	return true, nil
}

// QueueInfo returns the active-queue cardinality and member IDs.
func (m *Store) QueueInfo(_ context.Context) (*job.QueueInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.active))
	for key := range m.active {
		ids = append(ids, key)
	}
	// Creation order, matching the sorted-set range read.
	sort.Slice(ids, func(i, k int) bool {
		if m.active[ids[i]] != m.active[ids[k]] {
			return m.active[ids[i]] < m.active[ids[k]]
		}
		return ids[i] < ids[k]
	})

	return &job.QueueInfo{
		QueueLength: int64(len(ids)),
		ActiveJobs:  ids,
	}, nil
}

// CleanupExpired removes active-queue entries older than the window.
func (m *Store) CleanupExpired(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-m.window).UnixMilli()
	removed := 0
	for key, score := range m.active {
		if score < cutoff {
			delete(m.active, key)
			if j, ok := m.jobs[key]; ok {
				delete(m.jobs, key)
				if users := m.users[j.UserID]; users != nil {
					delete(users, key)
				}
			}
			removed++
		}
	}
	return removed, nil
}
