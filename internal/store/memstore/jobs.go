package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/jengzang/records-tracks-go/internal/models"
	"github.com/jengzang/records-tracks-go/internal/store"
)

// CreateJob implements store.JobStore.
func (s *Store) CreateJob(_ context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failed(); err != nil {
		return err
	}
	s.nextJob++
	job.ID = s.nextJob
	if job.Status == "" {
		job.Status = models.JobStatusPending
	}
	job.CreatedAt = time.Now()
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

// GetJob implements store.JobStore.
func (s *Store) GetJob(_ context.Context, id int64) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

// ListJobs implements store.JobStore. Newest first.
func (s *Store) ListJobs(_ context.Context, userID int64, status string, limit, offset int) ([]models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Job
	for _, j := range s.jobs {
		if j.UserID == userID && (status == "" || j.Status == status) {
			out = append(out, *j)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID > out[k].ID })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) updateJob(id int64, fn func(*models.Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failed(); err != nil {
		return err
	}
	j, ok := s.jobs[id]
	if !ok {
		return store.ErrNotFound
	}
	fn(j)
	return nil
}

// MarkRunning implements store.JobStore.
func (s *Store) MarkRunning(_ context.Context, id int64) error {
	return s.updateJob(id, func(j *models.Job) {
		now := time.Now()
		j.Status = models.JobStatusRunning
		j.StartedAt = &now
	})
}

// MarkCompleted implements store.JobStore.
func (s *Store) MarkCompleted(_ context.Context, id int64, processed, failed int, summary string) error {
	return s.updateJob(id, func(j *models.Job) {
		now := time.Now()
		j.Status = models.JobStatusCompleted
		j.Processed, j.Failed = processed, failed
		j.ResultSummary = summary
		j.CompletedAt = &now
	})
}

// MarkFailed implements store.JobStore.
func (s *Store) MarkFailed(_ context.Context, id int64, message string) error {
	return s.updateJob(id, func(j *models.Job) {
		now := time.Now()
		j.Status = models.JobStatusFailed
		j.ErrorMessage = message
		j.CompletedAt = &now
	})
}

// PendingJobs implements store.JobStore.
func (s *Store) PendingJobs(_ context.Context) ([]models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Job
	for _, j := range s.jobs {
		if j.Status == models.JobStatusPending {
			out = append(out, *j)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out, nil
}
