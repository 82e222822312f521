package tracks

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/jengzang/records-tracks-go/internal/analysis"
	"github.com/jengzang/records-tracks-go/internal/analysis/behavior"
	"github.com/jengzang/records-tracks-go/internal/logging"
	"github.com/jengzang/records-tracks-go/internal/metrics"
	"github.com/jengzang/records-tracks-go/internal/models"
	"github.com/jengzang/records-tracks-go/internal/store"
)

// Pipeline runs load, clean, split, trailing-run handling, classification and
// persistence for one user. Runs for the same user must not overlap.
type Pipeline struct {
	Mode      string
	UserID    int64
	Loader    PointLoader
	Cleaner   TrackCleaner
	Handler   IncompleteSegmentHandler
	Generator *Generator
	Detector  *behavior.Detector
	Tracks    store.TrackStore
}

// RunStats summarizes one pipeline run.
type RunStats struct {
	PointsLoaded   int `json:"points_loaded"`
	TracksDeleted  int `json:"tracks_deleted"`
	TracksTrimmed  int `json:"tracks_trimmed"`
	TracksCreated  int `json:"tracks_created"`
	DeferredPoints int `json:"deferred_points"`
	DroppedRuns    int `json:"dropped_runs"`
	Unclassified   int `json:"unclassified"`
}

func newPipeline(mode string, userID int64, settings models.UserSettings, tracks store.TrackStore) *Pipeline {
	return &Pipeline{
		Mode:      mode,
		UserID:    userID,
		Generator: NewGenerator(settings),
		Detector:  behavior.NewDetector(settings),
		Tracks:    tracks,
	}
}

// NewBulkPipeline regenerates every track in an optional range: bulk loading,
// replace cleanup with edge tracks trimmed, trailing run always finalized.
func NewBulkPipeline(deps analysis.Deps, settings models.UserSettings, userID int64, startAt, endAt *int64) *Pipeline {
	p := newPipeline(models.RunBulk, userID, settings, deps.Tracks)
	p.Loader = NewBulkLoader(deps.Points, userID, startAt, endAt)
	p.Cleaner = NewReplaceCleaner(deps.Tracks, userID, startAt, endAt, p.Generator, p.Detector)
	p.Handler = IgnoreHandler{}
	return p
}

// NewDailyPipeline regenerates one UTC day with overlap-aware cleanup. The
// trailing run is buffered only when the day is still in progress.
func NewDailyPipeline(deps analysis.Deps, settings models.UserSettings, userID int64, day string) (*Pipeline, error) {
	start, end, err := analysis.DayBounds(day)
	if err != nil {
		return nil, err
	}
	p := newPipeline(models.RunDaily, userID, settings, deps.Tracks)
	p.Loader = NewBulkLoader(deps.Points, userID, &start, &end)
	p.Cleaner = NewDailyCleaner(deps.Tracks, userID, start, end, p.Generator, p.Detector)
	p.Handler = IgnoreHandler{}
	if now := deps.Clock(); analysis.Today(now()) == day {
		p.Handler = NewBufferHandler(deps.Buffer, userID, day, deps.GracePeriod, now)
	}
	return p, nil
}

// NewIncrementalPipeline extends a day with points that arrived since its
// last track, deferring a fresh trailing run to the side buffer.
func NewIncrementalPipeline(deps analysis.Deps, settings models.UserSettings, userID int64, day string) (*Pipeline, error) {
	if _, _, err := analysis.DayBounds(day); err != nil {
		return nil, err
	}
	p := newPipeline(models.RunIncremental, userID, settings, deps.Tracks)
	p.Loader = NewIncrementalLoader(deps.Points, deps.Tracks, deps.Buffer, userID, day)
	p.Cleaner = NoopCleaner{}
	p.Handler = NewBufferHandler(deps.Buffer, userID, day, deps.GracePeriod, deps.Clock())
	return p, nil
}

// Run executes the pipeline.
func (p *Pipeline) Run(ctx context.Context) (RunStats, error) {
	log := logging.Ctx(ctx).With().
		Str("component", "track_pipeline").
		Str("mode", p.Mode).
		Int64("user_id", p.UserID).
		Logger()

	var stats RunStats
	points, err := p.Loader.Load(ctx)
	if err != nil {
		return stats, err
	}
	stats.PointsLoaded = len(points)

	cleaned, err := p.Cleaner.Clean(ctx)
	if err != nil {
		return stats, err
	}
	stats.TracksDeleted, stats.TracksTrimmed = cleaned.Deleted, cleaned.Trimmed

	runs := p.Generator.Split(points)
	for i, run := range runs {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		if i < len(runs)-1 {
			if len(run) < 2 {
				log.Warn().Int64("timestamp", run[0].Timestamp).Msg("dropping interior run with fewer than two points")
				metrics.InteriorRunsDropped.Inc()
				stats.DroppedRuns++
				continue
			}
			if err := p.persist(ctx, log, run, &stats); err != nil {
				return stats, err
			}
			continue
		}

		if err := p.handleTrailing(ctx, log, run, &stats); err != nil {
			return stats, err
		}
	}

	log.Info().
		Int("points", stats.PointsLoaded).
		Int("created", stats.TracksCreated).
		Int("deleted", stats.TracksDeleted).
		Int("trimmed", stats.TracksTrimmed).
		Int("deferred_points", stats.DeferredPoints).
		Msg("track pipeline completed")
	return stats, nil
}

func (p *Pipeline) handleTrailing(ctx context.Context, log zerolog.Logger, run []models.Point, stats *RunStats) error {
	if !p.Handler.ShouldFinalize(run) {
		if err := p.Handler.Defer(ctx, run); err != nil {
			return err
		}
		log.Debug().Int("points", len(run)).Int64("last_timestamp", run[len(run)-1].Timestamp).Msg("trailing run deferred")
		metrics.TrailingRunsDeferred.Inc()
		stats.DeferredPoints = len(run)
		return nil
	}

	if len(run) >= 2 {
		if err := p.persist(ctx, log, run, stats); err != nil {
			return err
		}
	}
	return p.Handler.Finalized(ctx)
}

func (p *Pipeline) persist(ctx context.Context, log zerolog.Logger, run []models.Point, stats *RunStats) error {
	track := p.Generator.Build(p.UserID, run)

	class, err := p.Detector.Detect(run)
	if err != nil {
		log.Error().Err(err).Int64("start_at", track.StartAt).Msg("classification failed, track stays unknown")
		metrics.ClassificationFailures.Inc()
		class = behavior.Classification{DominantMode: models.ModeUnknown}
		stats.Unclassified++
	}
	track.DominantMode = class.DominantMode

	if err := p.Tracks.CreateTrack(ctx, &track, models.PointIDs(run), class.Segments); err != nil {
		return fmt.Errorf("failed to persist track %d-%d: %w", track.StartAt, track.EndAt, err)
	}
	metrics.TracksCreated.WithLabelValues(p.Mode).Inc()
	stats.TracksCreated++
	return nil
}
