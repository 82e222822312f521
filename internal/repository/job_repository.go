package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jengzang/records-tracks-go/internal/models"
	"github.com/jengzang/records-tracks-go/internal/store"
)

const jobColumns = `id, user_id, skill, mode, start_at, end_at, day, status, processed, failed,
	result_summary, error_message, created_at, started_at, completed_at`

// JobRepository handles database operations for recomputation jobs
type JobRepository struct {
	db *sql.DB
}

var _ store.JobStore = (*JobRepository)(nil)

// NewJobRepository creates a new job repository
func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db}
}

func scanJob(s scanner) (models.Job, error) {
	var (
		j                      models.Job
		startAt, endAt         sql.NullInt64
		startedAt, completedAt sql.NullTime
	)
	err := s.Scan(&j.ID, &j.UserID, &j.Skill, &j.Mode, &startAt, &endAt, &j.Day, &j.Status,
		&j.Processed, &j.Failed, &j.ResultSummary, &j.ErrorMessage, &j.CreatedAt, &startedAt, &completedAt)
	if err != nil {
		return j, err
	}
	j.StartAt = intPtr(startAt)
	j.EndAt = intPtr(endAt)
	if startedAt.Valid {
		j.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		j.CompletedAt = &completedAt.Time
	}
	return j, nil
}

// CreateJob creates a new pending job
func (r *JobRepository) CreateJob(ctx context.Context, job *models.Job) error {
	if job.Status == "" {
		job.Status = models.JobStatusPending
	}
	job.CreatedAt = time.Now().UTC()

	result, err := r.db.ExecContext(ctx, `INSERT INTO jobs (user_id, skill, mode, start_at, end_at, day, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		job.UserID, job.Skill, job.Mode, job.StartAt, job.EndAt, job.Day, job.Status, job.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	job.ID = id
	return nil
}

// GetJob retrieves a job by ID
func (r *JobRepository) GetJob(ctx context.Context, id int64) (*models.Job, error) {
	j, err := scanJob(r.db.QueryRowContext(ctx, "SELECT "+jobColumns+" FROM jobs WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &j, nil
}

func (r *JobRepository) listJobs(ctx context.Context, query string, args ...interface{}) ([]models.Job, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// ListJobs retrieves a user's jobs, newest first, optionally filtered by status
func (r *JobRepository) ListJobs(ctx context.Context, userID int64, status string, limit, offset int) ([]models.Job, error) {
	query := "SELECT " + jobColumns + " FROM jobs WHERE user_id = ?"
	args := []interface{}{userID}
	if status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}
	if limit <= 0 {
		limit = -1
	}
	query += " ORDER BY id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)
	return r.listJobs(ctx, query, args...)
}

// PendingJobs returns jobs that never started, oldest first
func (r *JobRepository) PendingJobs(ctx context.Context) ([]models.Job, error) {
	return r.listJobs(ctx, "SELECT "+jobColumns+" FROM jobs WHERE status = ? ORDER BY id ASC", models.JobStatusPending)
}

func (r *JobRepository) update(ctx context.Context, id int64, query string, args ...interface{}) error {
	res, err := r.db.ExecContext(ctx, query, append(args, id)...)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// MarkRunning marks a job as running
func (r *JobRepository) MarkRunning(ctx context.Context, id int64) error {
	return r.update(ctx, id, "UPDATE jobs SET status = ?, started_at = ? WHERE id = ?",
		models.JobStatusRunning, time.Now().UTC())
}

// MarkCompleted records a successful run
func (r *JobRepository) MarkCompleted(ctx context.Context, id int64, processed, failed int, summary string) error {
	return r.update(ctx, id, `UPDATE jobs SET status = ?, processed = ?, failed = ?, result_summary = ?, completed_at = ?
		WHERE id = ?`, models.JobStatusCompleted, processed, failed, summary, time.Now().UTC())
}

// MarkFailed records a failed run
func (r *JobRepository) MarkFailed(ctx context.Context, id int64, message string) error {
	return r.update(ctx, id, "UPDATE jobs SET status = ?, error_message = ?, completed_at = ? WHERE id = ?",
		models.JobStatusFailed, message, time.Now().UTC())
}
