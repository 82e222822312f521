package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jengzang/records-tracks-go/internal/analysis"
	"github.com/jengzang/records-tracks-go/internal/logging"
	"github.com/jengzang/records-tracks-go/internal/models"
	"github.com/jengzang/records-tracks-go/internal/store"
)

// Enqueuer accepts jobs for background execution.
type Enqueuer interface {
	Enqueue(job models.Job) error
}

// CreateJobRequest describes a recomputation to schedule.
type CreateJobRequest struct {
	Skill   string `json:"skill" binding:"required"`
	Mode    string `json:"mode"`
	StartAt *int64 `json:"start_at"`
	EndAt   *int64 `json:"end_at"`
	Day     string `json:"day"`
}

// JobService handles recomputation job business logic
type JobService struct {
	jobs  store.JobStore
	queue Enqueuer
}

// NewJobService creates a new job service
func NewJobService(jobs store.JobStore, queue Enqueuer) *JobService {
	return &JobService{jobs: jobs, queue: queue}
}

// Create validates the request, stores a pending job and hands it to the
// worker. A job the worker refuses is marked failed and ErrQueueFull returned.
func (s *JobService) Create(ctx context.Context, userID int64, req CreateJobRequest) (*models.Job, error) {
	if err := validateJob(&req); err != nil {
		return nil, err
	}

	job := &models.Job{
		UserID:  userID,
		Skill:   req.Skill,
		Mode:    req.Mode,
		StartAt: req.StartAt,
		EndAt:   req.EndAt,
		Day:     req.Day,
		Status:  models.JobStatusPending,
	}
	if err := s.jobs.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	if err := s.queue.Enqueue(*job); err != nil {
		logging.Warn().Err(err).Int64("job_id", job.ID).Int64("user_id", userID).Msg("job rejected by worker")
		if markErr := s.jobs.MarkFailed(ctx, job.ID, err.Error()); markErr != nil {
			return nil, errors.Join(err, markErr)
		}
		return nil, err
	}

	logging.Info().Int64("job_id", job.ID).Int64("user_id", userID).Str("skill", job.Skill).Str("mode", job.Mode).Msg("job queued")
	return job, nil
}

// Get returns one of the user's jobs.
func (s *JobService) Get(ctx context.Context, userID, id int64) (*models.Job, error) {
	job, err := s.jobs.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		return nil, store.ErrNotFound
	}
	return job, nil
}

// List returns the user's jobs, newest first.
func (s *JobService) List(ctx context.Context, userID int64, status string, limit, offset int) ([]models.Job, error) {
	switch status {
	case "", models.JobStatusPending, models.JobStatusRunning, models.JobStatusCompleted, models.JobStatusFailed:
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidJob, status)
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.jobs.ListJobs(ctx, userID, status, limit, offset)
}

func validateJob(req *CreateJobRequest) error {
	if !analysis.IsRegistered(req.Skill) {
		return fmt.Errorf("%w: unknown skill %q", ErrInvalidJob, req.Skill)
	}

	if req.Skill == models.SkillTrackGeneration {
		if req.Mode == "" {
			req.Mode = models.RunBulk
		}
		switch req.Mode {
		case models.RunBulk:
		case models.RunDaily, models.RunIncremental:
			if req.StartAt != nil || req.EndAt != nil {
				return fmt.Errorf("%w: %s runs take a day, not a range", ErrInvalidJob, req.Mode)
			}
		default:
			return fmt.Errorf("%w: unknown mode %q", ErrInvalidJob, req.Mode)
		}
	} else if req.Mode != "" {
		return fmt.Errorf("%w: skill %s has no modes", ErrInvalidJob, req.Skill)
	}

	if req.Day != "" {
		if _, err := time.Parse(models.DayLayout, req.Day); err != nil {
			return fmt.Errorf("%w: day must be YYYY-MM-DD", ErrInvalidJob)
		}
		if req.Mode != models.RunDaily && req.Mode != models.RunIncremental {
			return fmt.Errorf("%w: day is only used by daily and incremental runs", ErrInvalidJob)
		}
	}
	if req.StartAt != nil && req.EndAt != nil && *req.StartAt > *req.EndAt {
		return fmt.Errorf("%w: start_at after end_at", ErrInvalidJob)
	}
	return nil
}
