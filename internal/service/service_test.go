package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengzang/records-tracks-go/internal/analysis"
	_ "github.com/jengzang/records-tracks-go/internal/analysis/behavior"
	_ "github.com/jengzang/records-tracks-go/internal/analysis/tracks"
	_ "github.com/jengzang/records-tracks-go/internal/analysis/visits"
	"github.com/jengzang/records-tracks-go/internal/config"
	"github.com/jengzang/records-tracks-go/internal/models"
	"github.com/jengzang/records-tracks-go/internal/store"
	"github.com/jengzang/records-tracks-go/internal/store/memstore"
)

const stubSkill = "test_stub"

// stub is swapped per test; tests using it do not run in parallel.
var stub func(ctx context.Context, job *models.Job) (*analysis.Result, error)

type stubAnalyzer struct{}

func (stubAnalyzer) Name() string { return stubSkill }
func (stubAnalyzer) Analyze(ctx context.Context, job *models.Job) (*analysis.Result, error) {
	return stub(ctx, job)
}

func init() {
	analysis.RegisterAnalyzer(stubSkill, func(analysis.Deps) analysis.Analyzer { return stubAnalyzer{} })
}

type fullQueue struct{}

func (fullQueue) Enqueue(models.Job) error { return ErrQueueFull }

type recordingQueue struct{ jobs []models.Job }

func (q *recordingQueue) Enqueue(j models.Job) error {
	q.jobs = append(q.jobs, j)
	return nil
}

func i64(v int64) *int64 { return &v }

func TestJobServiceCreateValidation(t *testing.T) {
	tests := []struct {
		name    string
		req     CreateJobRequest
		wantErr bool
		mode    string
	}{
		{name: "bulk by default", req: CreateJobRequest{Skill: models.SkillTrackGeneration}, mode: models.RunBulk},
		{name: "bulk with range", req: CreateJobRequest{Skill: models.SkillTrackGeneration, StartAt: i64(10), EndAt: i64(20)}, mode: models.RunBulk},
		{name: "daily with day", req: CreateJobRequest{Skill: models.SkillTrackGeneration, Mode: models.RunDaily, Day: "2024-03-10"}, mode: models.RunDaily},
		{name: "incremental today", req: CreateJobRequest{Skill: models.SkillTrackGeneration, Mode: models.RunIncremental}, mode: models.RunIncremental},
		{name: "visit detection", req: CreateJobRequest{Skill: models.SkillVisitDetection}},
		{name: "backfill", req: CreateJobRequest{Skill: models.SkillTransportModeBackfill, StartAt: i64(1)}},
		{name: "unknown skill", req: CreateJobRequest{Skill: "heatmap"}, wantErr: true},
		{name: "unknown mode", req: CreateJobRequest{Skill: models.SkillTrackGeneration, Mode: "weekly"}, wantErr: true},
		{name: "mode on modeless skill", req: CreateJobRequest{Skill: models.SkillVisitDetection, Mode: models.RunDaily}, wantErr: true},
		{name: "daily with range", req: CreateJobRequest{Skill: models.SkillTrackGeneration, Mode: models.RunDaily, StartAt: i64(1)}, wantErr: true},
		{name: "bad day", req: CreateJobRequest{Skill: models.SkillTrackGeneration, Mode: models.RunDaily, Day: "2024-3-10"}, wantErr: true},
		{name: "day on bulk", req: CreateJobRequest{Skill: models.SkillTrackGeneration, Day: "2024-03-10"}, wantErr: true},
		{name: "reversed range", req: CreateJobRequest{Skill: models.SkillVisitDetection, StartAt: i64(20), EndAt: i64(10)}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := memstore.New()
			q := &recordingQueue{}
			job, err := NewJobService(st, q).Create(context.Background(), 1, tt.req)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidJob)
				assert.Empty(t, q.jobs)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.mode, job.Mode)
			assert.Equal(t, models.JobStatusPending, job.Status)
			require.Len(t, q.jobs, 1)
			assert.Equal(t, job.ID, q.jobs[0].ID)
		})
	}
}

func TestJobServiceQueueFull(t *testing.T) {
	st := memstore.New()
	_, err := NewJobService(st, fullQueue{}).Create(context.Background(), 1, CreateJobRequest{Skill: models.SkillVisitDetection})
	require.ErrorIs(t, err, ErrQueueFull)

	jobs, err := st.ListJobs(context.Background(), 1, models.JobStatusFailed, 0, 0)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, ErrQueueFull.Error(), jobs[0].ErrorMessage)
}

func TestJobServiceGetIsUserScoped(t *testing.T) {
	st := memstore.New()
	svc := NewJobService(st, &recordingQueue{})
	job, err := svc.Create(context.Background(), 1, CreateJobRequest{Skill: models.SkillVisitDetection})
	require.NoError(t, err)

	got, err := svc.Get(context.Background(), 1, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)

	_, err = svc.Get(context.Background(), 2, job.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = svc.List(context.Background(), 1, "exploded", 0, 0)
	assert.ErrorIs(t, err, ErrInvalidJob)
}

func newWorker(st *memstore.Store, concurrency int) *Worker {
	deps := analysis.Deps{Points: st, Tracks: st, Visits: st, Geofences: st, Settings: st}
	return NewWorker(st, deps, config.WorkerConfig{Concurrency: concurrency, QueueSize: 8, JobTimeout: time.Second})
}

func createJob(t *testing.T, st *memstore.Store, userID int64, skill string) models.Job {
	t.Helper()
	job := models.Job{UserID: userID, Skill: skill, Status: models.JobStatusPending}
	require.NoError(t, st.CreateJob(context.Background(), &job))
	return job
}

func jobStatus(t *testing.T, st *memstore.Store, id int64) *models.Job {
	t.Helper()
	job, err := st.GetJob(context.Background(), id)
	require.NoError(t, err)
	return job
}

func TestWorkerExecuteOutcomes(t *testing.T) {
	tests := []struct {
		name    string
		run     func(ctx context.Context, job *models.Job) (*analysis.Result, error)
		status  string
		message string
	}{
		{
			name: "completed",
			run: func(context.Context, *models.Job) (*analysis.Result, error) {
				return &analysis.Result{Processed: 3, Failed: 1, Summary: map[string]interface{}{"tracks": 2}}, nil
			},
			status: models.JobStatusCompleted,
		},
		{
			name: "error",
			run: func(context.Context, *models.Job) (*analysis.Result, error) {
				return nil, errors.New("store unavailable")
			},
			status:  models.JobStatusFailed,
			message: "store unavailable",
		},
		{
			name: "panic",
			run: func(context.Context, *models.Job) (*analysis.Result, error) {
				panic("boom")
			},
			status:  models.JobStatusFailed,
			message: "analyzer panic: boom",
		},
		{
			name: "timeout",
			run: func(ctx context.Context, _ *models.Job) (*analysis.Result, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			},
			status:  models.JobStatusFailed,
			message: context.DeadlineExceeded.Error(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := memstore.New()
			stub = tt.run
			job := createJob(t, st, 1, stubSkill)

			newWorker(st, 1).Execute(context.Background(), job)

			got := jobStatus(t, st, job.ID)
			assert.Equal(t, tt.status, got.Status)
			assert.Equal(t, tt.message, got.ErrorMessage)
			if tt.status == models.JobStatusCompleted {
				assert.Equal(t, 3, got.Processed)
				assert.Equal(t, 1, got.Failed)
				assert.JSONEq(t, `{"tracks":2}`, got.ResultSummary)
			}
		})
	}
}

func TestWorkerSkipsHandledJobs(t *testing.T) {
	st := memstore.New()
	var calls int32
	stub = func(context.Context, *models.Job) (*analysis.Result, error) {
		atomic.AddInt32(&calls, 1)
		return nil, nil
	}
	job := createJob(t, st, 1, stubSkill)
	w := newWorker(st, 1)

	w.Execute(context.Background(), job)
	w.Execute(context.Background(), job)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, models.JobStatusCompleted, jobStatus(t, st, job.ID).Status)
}

func TestWorkerUnknownSkill(t *testing.T) {
	st := memstore.New()
	job := createJob(t, st, 1, "not_registered")
	newWorker(st, 1).Execute(context.Background(), job)
	got := jobStatus(t, st, job.ID)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, "unknown skill")
}

func TestWorkerServeSerializesPerUser(t *testing.T) {
	st := memstore.New()
	var (
		mu      sync.Mutex
		active  = map[int64]int{}
		maxSeen = map[int64]int{}
	)
	stub = func(_ context.Context, job *models.Job) (*analysis.Result, error) {
		mu.Lock()
		active[job.UserID]++
		if active[job.UserID] > maxSeen[job.UserID] {
			maxSeen[job.UserID] = active[job.UserID]
		}
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		mu.Lock()
		active[job.UserID]--
		mu.Unlock()
		return nil, nil
	}

	// Pending before Serve: picked up by the requeue on start.
	var ids []int64
	for i := 0; i < 3; i++ {
		ids = append(ids, createJob(t, st, 1, stubSkill).ID)
	}
	ids = append(ids, createJob(t, st, 2, stubSkill).ID)

	w := newWorker(st, 4)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Serve(ctx) }()

	require.Eventually(t, func() bool {
		for _, id := range ids {
			if jobStatus(t, st, id).Status != models.JobStatusCompleted {
				return false
			}
		}
		return true
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, maxSeen[1])
	assert.Equal(t, 1, maxSeen[2])
}

func TestWorkerBusyUserDoesNotHoldSlots(t *testing.T) {
	st := memstore.New()
	started := make(chan struct{})
	release := make(chan struct{})
	blocking := createJob(t, st, 1, stubSkill)
	stub = func(_ context.Context, job *models.Job) (*analysis.Result, error) {
		if job.ID == blocking.ID {
			close(started)
			<-release
		}
		return nil, nil
	}

	w := newWorker(st, 2)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Serve(ctx) }()
	<-started

	// Both parked jobs of user 1 are taken while its first job runs; the
	// second goroutine must stay free for user 2.
	parked := []models.Job{createJob(t, st, 1, stubSkill), createJob(t, st, 1, stubSkill)}
	for _, job := range parked {
		require.NoError(t, w.Enqueue(job))
	}
	other := createJob(t, st, 2, stubSkill)
	require.NoError(t, w.Enqueue(other))

	require.Eventually(t, func() bool {
		return jobStatus(t, st, other.ID).Status == models.JobStatusCompleted
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, models.JobStatusRunning, jobStatus(t, st, blocking.ID).Status)
	for _, job := range parked {
		assert.Equal(t, models.JobStatusPending, jobStatus(t, st, job.ID).Status)
	}

	close(release)
	require.Eventually(t, func() bool {
		for _, job := range parked {
			if jobStatus(t, st, job.ID).Status != models.JobStatusCompleted {
				return false
			}
		}
		return true
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestUserBacklog(t *testing.T) {
	b := newUserBacklog()
	first := models.Job{ID: 1, UserID: 7}

	require.True(t, b.claim(first))
	assert.False(t, b.claim(models.Job{ID: 2, UserID: 7}))
	assert.False(t, b.claim(models.Job{ID: 3, UserID: 7}))
	assert.True(t, b.claim(models.Job{ID: 4, UserID: 8}), "other users are not held up")

	next, ok := b.next(7)
	require.True(t, ok)
	assert.Equal(t, int64(2), next.ID)
	next, ok = b.next(7)
	require.True(t, ok)
	assert.Equal(t, int64(3), next.ID)
	_, ok = b.next(7)
	assert.False(t, ok)
	assert.True(t, b.claim(models.Job{ID: 5, UserID: 7}), "an idle user can be claimed again")

	b.claim(models.Job{ID: 6, UserID: 7})
	assert.Equal(t, 1, b.release(7))
	assert.True(t, b.claim(first))
}

func TestWorkerEnqueueFull(t *testing.T) {
	st := memstore.New()
	w := NewWorker(st, analysis.Deps{}, config.WorkerConfig{Concurrency: 1, QueueSize: 1})
	require.NoError(t, w.Enqueue(models.Job{ID: 1}))
	assert.ErrorIs(t, w.Enqueue(models.Job{ID: 2}), ErrQueueFull)
}

func TestSettingsServiceUpdate(t *testing.T) {
	st := memstore.New()
	svc := NewSettingsService(st)
	ctx := context.Background()

	got, err := svc.Get(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultUserSettings(), got)

	updated, err := svc.Update(ctx, 5, models.UserSettings{MetersBetweenRoutes: 1000, DistanceUnit: "mi"})
	require.NoError(t, err)
	assert.Equal(t, 1000.0, updated.MetersBetweenRoutes)
	assert.Equal(t, float64(models.DefaultMinutesBetweenRoutes), updated.MinutesBetweenRoutes)

	got, err = svc.Get(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, "mi", got.DistanceUnit)

	bad := []models.UserSettings{
		{MetersBetweenRoutes: -1},
		{DistanceUnit: "furlong"},
		{TransportationThresholds: models.TransportationThresholds{WalkingMaxSpeed: 50}},
	}
	for _, in := range bad {
		_, err := svc.Update(ctx, 5, in)
		assert.ErrorIs(t, err, ErrInvalidSettings)
	}
}

func TestGeofenceServiceCreate(t *testing.T) {
	st := memstore.New()
	svc := NewGeofenceService(st)
	ctx := context.Background()

	g, err := svc.Create(ctx, 9, models.Geofence{Name: " Home ", Latitude: 23.1, Longitude: 113.2, Radius: 80})
	require.NoError(t, err)
	assert.Equal(t, "Home", g.Name)
	assert.Equal(t, models.GeofenceArea, g.Kind)
	assert.NotZero(t, g.ID)

	list, err := svc.List(ctx, 9)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	for _, in := range []models.Geofence{
		{Name: "x", Radius: 0},
		{Name: "", Radius: 10},
		{Name: "x", Radius: 10, Latitude: 91},
		{Name: "x", Radius: 10, Kind: "city"},
	} {
		_, err := svc.Create(ctx, 9, in)
		assert.ErrorIs(t, err, ErrInvalidGeofence)
	}
}

func TestTrackServiceRejectsReversedRange(t *testing.T) {
	_, err := NewTrackService(memstore.New()).List(context.Background(), 1, i64(10), i64(5))
	assert.ErrorIs(t, err, ErrInvalidRange)
	_, err = NewVisitService(memstore.New()).List(context.Background(), 1, i64(10), i64(5))
	assert.ErrorIs(t, err, ErrInvalidRange)
}
