package service

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/jengzang/records-tracks-go/internal/analysis"
	"github.com/jengzang/records-tracks-go/internal/config"
	"github.com/jengzang/records-tracks-go/internal/logging"
	"github.com/jengzang/records-tracks-go/internal/metrics"
	"github.com/jengzang/records-tracks-go/internal/models"
	"github.com/jengzang/records-tracks-go/internal/store"
)

// Worker executes queued jobs. Jobs of different users run in parallel up to
// the configured concurrency; jobs of one user never overlap.
type Worker struct {
	jobs    store.JobStore
	deps    analysis.Deps
	queue   chan models.Job
	workers int
	timeout time.Duration
	users   *userBacklog
	requeue sync.Once
}

var _ Enqueuer = (*Worker)(nil)

// NewWorker creates a worker. Zero config values fall back to 1 goroutine, a
// queue of 64 and no job timeout.
func NewWorker(jobs store.JobStore, deps analysis.Deps, cfg config.WorkerConfig) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	return &Worker{
		jobs:    jobs,
		deps:    deps,
		queue:   make(chan models.Job, cfg.QueueSize),
		workers: cfg.Concurrency,
		timeout: cfg.JobTimeout,
		users:   newUserBacklog(),
	}
}

// Enqueue implements Enqueuer. It never blocks.
func (w *Worker) Enqueue(job models.Job) error {
	select {
	case w.queue <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Serve implements suture.Service. Pending jobs left over from a previous
// process are queued again on the first start.
func (w *Worker) Serve(ctx context.Context) error {
	w.requeue.Do(func() { w.requeuePending(ctx) })

	var wg sync.WaitGroup
	for i := 0; i < w.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job := <-w.queue:
					if w.users.claim(job) {
						w.drain(ctx, job)
					}
				}
			}
		}()
	}
	wg.Wait()
	return ctx.Err()
}

// drain runs job and then every job parked behind it for the same user.
func (w *Worker) drain(ctx context.Context, job models.Job) {
	for {
		w.Execute(ctx, job)
		if ctx.Err() != nil {
			if n := w.users.release(job.UserID); n > 0 {
				logging.Info().Int64("user_id", job.UserID).Int("left_pending", n).Msg("shutdown with jobs parked")
			}
			return
		}
		next, ok := w.users.next(job.UserID)
		if !ok {
			return
		}
		job = next
	}
}

// String implements fmt.Stringer for supervisor logs.
func (w *Worker) String() string {
	return "job-worker"
}

func (w *Worker) requeuePending(ctx context.Context) {
	pending, err := w.jobs.PendingJobs(ctx)
	if err != nil {
		logging.Error().Err(err).Msg("failed to load pending jobs")
		return
	}
	for i, job := range pending {
		if err := w.Enqueue(job); err != nil {
			logging.Warn().Int("left_pending", len(pending)-i).Msg("queue full while requeueing pending jobs")
			return
		}
	}
	if len(pending) > 0 {
		logging.Info().Int("jobs", len(pending)).Msg("pending jobs requeued")
	}
}

// Execute runs one job to completion and records the outcome on its row.
// A job that is no longer pending is skipped. Serve never runs two jobs of
// one user at once; direct callers must do the same.
func (w *Worker) Execute(ctx context.Context, job models.Job) {
	log := logging.With().
		Str("component", "worker").
		Str("run_id", uuid.NewString()).
		Int64("job_id", job.ID).
		Int64("user_id", job.UserID).
		Str("skill", job.Skill).
		Logger()
	ctx = logging.WithContext(ctx, log)

	current, err := w.jobs.GetJob(ctx, job.ID)
	if err != nil {
		log.Error().Err(err).Msg("failed to reload job")
		return
	}
	if current.Status != models.JobStatusPending {
		log.Debug().Str("status", current.Status).Msg("job already handled, skipping")
		return
	}
	if err := w.jobs.MarkRunning(ctx, job.ID); err != nil {
		log.Error().Err(err).Msg("failed to mark job running")
		return
	}

	start := time.Now()
	metrics.JobsInFlight.Inc()
	res, err := w.run(ctx, current)
	metrics.JobsInFlight.Dec()
	took := time.Since(start)

	// Outcomes are recorded even when shutdown cancelled the run.
	recordCtx := context.WithoutCancel(ctx)
	if err != nil {
		log.Error().Err(err).Dur("took", took).Msg("job failed")
		metrics.ObserveJob(job.Skill, models.JobStatusFailed, took)
		if markErr := w.jobs.MarkFailed(recordCtx, job.ID, err.Error()); markErr != nil {
			log.Error().Err(markErr).Msg("failed to mark job failed")
		}
		return
	}

	summary, err := json.Marshal(res.Summary)
	if err != nil {
		summary = []byte("{}")
	}
	if err := w.jobs.MarkCompleted(recordCtx, job.ID, res.Processed, res.Failed, string(summary)); err != nil {
		log.Error().Err(err).Msg("failed to mark job completed")
		return
	}
	metrics.ObserveJob(job.Skill, models.JobStatusCompleted, took)
	log.Info().Dur("took", took).Int("processed", res.Processed).Int("failed", res.Failed).Msg("job completed")
}

func (w *Worker) run(ctx context.Context, job *models.Job) (res *analysis.Result, err error) {
	analyzer := analysis.GetAnalyzer(job.Skill, w.deps)
	if analyzer == nil {
		return nil, fmt.Errorf("unknown skill: %s", job.Skill)
	}

	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			logging.Ctx(ctx).Error().Str("stack", string(debug.Stack())).Msg("analyzer panicked")
			res, err = nil, fmt.Errorf("analyzer panic: %v", r)
		}
	}()

	res, err = analyzer.Analyze(ctx, job)
	if err == nil && res == nil {
		res = &analysis.Result{}
	}
	return res, err
}
