package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/clipforge/clipjobs"
	"github.com/clipforge/clipjobs/backoff"
	"github.com/clipforge/clipjobs/id"
	"github.com/clipforge/clipjobs/job"
)

// CreateJob writes an initial queued record, indexes it under the user, and
// adds it to the active queue scored by creation time. TTLs are set on all
// three keys. IDs are generated internally, so duplicates cannot occur.
func (s *Store) CreateJob(ctx context.Context, req job.Request) (*job.Job, error) {
	now := s.now().UTC()
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

	data, err := json.Marshal(j)
	if err != nil {
		return nil, fmt.Errorf("clipjobs/redis: marshal job: %w", err)
	}

	jID := j.ID.String()
	err = s.retry(ctx, func(ctx context.Context) error {
		pipe := s.client.TxPipeline()
		pipe.Set(ctx, jobKey(jID), data, s.ttl)
		pipe.SAdd(ctx, userJobsKey(req.UserID), jID)
		pipe.Expire(ctx, userJobsKey(req.UserID), s.ttl)
		pipe.ZAdd(ctx, activeJobsKey, goredis.Z{Score: float64(now.UnixMilli()), Member: jID})
		pipe.Expire(ctx, activeJobsKey, s.ttl)
		_, pErr := pipe.Exec(ctx)
		return pErr
	})
	if err != nil {
		return nil, fmt.Errorf("clipjobs/redis: create job: %w", err)
	}

	s.logger.Info("job created",
		slogJobID(jID),
		slogUser(req.UserID),
	)
	return j, nil
}

// GetJob retrieves a job by ID. A record that fails to deserialize is
// logged and reported as not found so read paths stay non-fatal.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	var j *job.Job
	err := s.retry(ctx, func(ctx context.Context) error {
		loaded, lErr := s.loadJob(ctx, jobID.String())
		if lErr != nil {
			return lErr
		}
		j = loaded
		return nil
	})
	if err != nil {
		if errors.Is(err, clipjobs.ErrJobNotFound) {
			return nil, clipjobs.ErrJobNotFound
		}
		return nil, fmt.Errorf("clipjobs/redis: get job: %w", err)
	}
	return j, nil
}

// UpdateProgress clamps and stores progress, stage, and message, upserting
// the optional stage detail by name.
func (s *Store) UpdateProgress(ctx context.Context, jobID id.JobID, progress int, stage job.StageName, message string, stageDetail *job.Stage) error {
	return s.mutate(ctx, jobID, func(j *job.Job) {
		j.SetProgress(progress)
		if stage != "" {
			j.Stage = stage
		}
		j.Message = message
		if stageDetail != nil {
			j.UpsertStage(*stageDetail)
		}
	})
}

// UpdateStatus transitions the job's status. Terminal transitions set
// EndTime, compute ActualProcessingTime, and remove the job from the
// active queue.
func (s *Store) UpdateStatus(ctx context.Context, jobID id.JobID, status job.Status, message string) error {
	return s.mutate(ctx, jobID, func(j *job.Job) {
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
			j.Finalize(s.now())
		case job.StatusFailed:
			j.Finalize(s.now())
		case job.StatusQueued:
		}
	})
}

// SetResult records the output clips and forces the completed terminal state.
func (s *Store) SetResult(ctx context.Context, jobID id.JobID, result []job.Clip) error {
	return s.mutate(ctx, jobID, func(j *job.Job) {
		j.Status = job.StatusCompleted
		j.Progress = 100
		j.Stage = job.StageCompleted
		j.Result = result
		j.UpsertStage(job.Stage{Name: job.StageCompleted, Description: "processing complete", Progress: 100})
		j.Finalize(s.now())
	})
}

// SetError records a structured failure and forces the failed terminal state.
func (s *Store) SetError(ctx context.Context, jobID id.JobID, message, details, traceback string, errType job.ErrorType) error {
	return s.mutate(ctx, jobID, func(j *job.Job) {
		j.Status = job.StatusFailed
		j.Stage = job.StageFailed
		j.Message = message
		j.Error = job.NewError(errType, message, details, traceback)
		j.UpsertStage(job.Stage{Name: job.StageFailed, Description: message, Progress: j.Progress})
		j.Finalize(s.now())
	})
}

// GetUserJobs reads the per-user index and fetches the member records in
// bounded parallel batches, skipping absent or corrupt entries, sorted
// descending by StartTime.
func (s *Store) GetUserJobs(ctx context.Context, userID string, opts job.ListOpts) ([]*job.Job, error) {
	var jobs []*job.Job
	err := s.retry(ctx, func(ctx context.Context) error {
		ids, mErr := s.client.SMembers(ctx, userJobsKey(userID)).Result()
		if mErr != nil {
			return mErr
		}

		var (
			mu      sync.Mutex
			fetched = make([]*job.Job, 0, len(ids))
		)
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.fetchConcurrency)
		for _, jID := range ids {
			g.Go(func() error {
				j, lErr := s.loadJob(gctx, jID)
				if lErr != nil {
					// Absent or corrupt index entries are skipped, not fatal.
					if errors.Is(lErr, clipjobs.ErrJobNotFound) {
						return nil
					}
					return lErr
				}
				mu.Lock()
				fetched = append(fetched, j)
				mu.Unlock()
				return nil
			})
		}
		if gErr := g.Wait(); gErr != nil {
			return gErr
		}
		jobs = fetched
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("clipjobs/redis: list user jobs: %w", err)
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

// DeleteJob removes the record and its index entries, reporting whether a
// record existed.
func (s *Store) DeleteJob(ctx context.Context, jobID id.JobID) (bool, error) {
	jID := jobID.String()

	existed := false
	err := s.retry(ctx, func(ctx context.Context) error {
		data, gErr := s.client.Get(ctx, jobKey(jID)).Result()
		if gErr != nil {
			if errors.Is(gErr, goredis.Nil) {
				// Still clear any dangling queue entry.
				if zErr := s.client.ZRem(ctx, activeJobsKey, jID).Err(); zErr != nil {
					s.logger.Warn("dangling queue entry not removed", slogJobID(jID), slogErr(zErr))
				}
				return nil
			}
			return gErr
		}
		existed = true

		// Best effort: a corrupt record still gets deleted, we just cannot
		// clear the user index without its user ID.
		userID := ""
		var j job.Job
		if uErr := json.Unmarshal([]byte(data), &j); uErr == nil {
			userID = j.UserID
		} else {
			s.logger.Warn("deleting corrupt job record", slogJobID(jID), slogErr(uErr))
		}

		pipe := s.client.TxPipeline()
		pipe.Del(ctx, jobKey(jID))
		pipe.ZRem(ctx, activeJobsKey, jID)
		if userID != "" {
			pipe.SRem(ctx, userJobsKey(userID), jID)
		}
		_, pErr := pipe.Exec(ctx)
		return pErr
	})
	if err != nil {
		return false, fmt.Errorf("clipjobs/redis: delete job: %w", err)
	}
	return existed, nil
}

// QueueInfo returns the active-queue cardinality and member IDs in
// creation order.
func (s *Store) QueueInfo(ctx context.Context) (*job.QueueInfo, error) {
	info := &job.QueueInfo{}
	err := s.retry(ctx, func(ctx context.Context) error {
		length, cErr := s.client.ZCard(ctx, activeJobsKey).Result()
		if cErr != nil {
			return cErr
		}
		members, rErr := s.client.ZRange(ctx, activeJobsKey, 0, -1).Result()
		if rErr != nil {
			return rErr
		}
		info.QueueLength = length
		info.ActiveJobs = members
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("clipjobs/redis: queue info: %w", err)
	}
	return info, nil
}

// CleanupExpired removes active-queue entries scored below the expiration
// cutoff along with their records, returning the count removed.
func (s *Store) CleanupExpired(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.window).UnixMilli()

	removed := 0
	err := s.retry(ctx, func(ctx context.Context) error {
		removed = 0
		expired, zErr := s.client.ZRangeByScore(ctx, activeJobsKey, &goredis.ZRangeBy{
			Min: "-inf",
			Max: strconv.FormatInt(cutoff, 10),
		}).Result()
		if zErr != nil {
			return zErr
		}

		for _, jID := range expired {
			userID := ""
			if data, gErr := s.client.Get(ctx, jobKey(jID)).Result(); gErr == nil {
				var j job.Job
				if uErr := json.Unmarshal([]byte(data), &j); uErr == nil {
					userID = j.UserID
				}
			}

			pipe := s.client.TxPipeline()
			pipe.Del(ctx, jobKey(jID))
			pipe.ZRem(ctx, activeJobsKey, jID)
			if userID != "" {
				pipe.SRem(ctx, userJobsKey(userID), jID)
			}
			if _, pErr := pipe.Exec(ctx); pErr != nil {
				return pErr
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("clipjobs/redis: cleanup expired: %w", err)
	}

	if removed > 0 {
		s.logger.Info("expired jobs removed", slog.Int("count", removed))
	}
	return removed, nil
}

// ── helpers ──

// loadJob reads and deserializes one record. Absence and corruption both
// come back as a permanent ErrJobNotFound so the retry wrapper does not
// spin on them.
func (s *Store) loadJob(ctx context.Context, jID string) (*job.Job, error) {
	data, err := s.client.Get(ctx, jobKey(jID)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, backoff.Permanent(clipjobs.ErrJobNotFound)
		}
		return nil, err
	}

	var j job.Job
	if err := json.Unmarshal([]byte(data), &j); err != nil {
		s.logger.Warn("corrupt job record treated as not found", slogJobID(jID), slogErr(err))
		return nil, backoff.Permanent(clipjobs.ErrJobNotFound)
	}
	return &j, nil
}

// mutate performs a read-modify-write cycle on one record under the retry
// policy: load the full record, apply fn, write it back with the TTL
// refreshed. There is no optimistic versioning; writers follow the
// single-writer-per-phase discipline described on job.Store.
func (s *Store) mutate(ctx context.Context, jobID id.JobID, fn func(j *job.Job)) error {
	jID := jobID.String()
	err := s.retry(ctx, func(ctx context.Context) error {
		j, lErr := s.loadJob(ctx, jID)
		if lErr != nil {
			return lErr
		}

		fn(j)

		data, mErr := json.Marshal(j)
		if mErr != nil {
			return backoff.Permanent(fmt.Errorf("marshal job: %w", mErr))
		}

		pipe := s.client.TxPipeline()
		pipe.Set(ctx, jobKey(jID), data, s.ttl)
		if j.Terminal() {
			pipe.ZRem(ctx, activeJobsKey, jID)
		}
		_, pErr := pipe.Exec(ctx)
		return pErr
	})
	if err != nil {
		if errors.Is(err, clipjobs.ErrJobNotFound) {
			return clipjobs.ErrJobNotFound
		}
		return fmt.Errorf("clipjobs/redis: update job %s: %w", jID, err)
	}
	return nil
}
