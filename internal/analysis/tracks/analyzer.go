package tracks

import (
	"context"
	"fmt"

	"github.com/jengzang/records-tracks-go/internal/analysis"
	"github.com/jengzang/records-tracks-go/internal/models"
)

// TrackGenerationAnalyzer rebuilds a user's tracks.
// Skill: track_generation (modes: bulk, daily, incremental)
type TrackGenerationAnalyzer struct {
	deps analysis.Deps
}

// NewTrackGenerationAnalyzer creates a new track generation analyzer
func NewTrackGenerationAnalyzer(deps analysis.Deps) analysis.Analyzer {
	return &TrackGenerationAnalyzer{deps: deps}
}

// Name returns the skill name
func (a *TrackGenerationAnalyzer) Name() string {
	return models.SkillTrackGeneration
}

// Analyze picks the pipeline for the job's mode and runs it.
func (a *TrackGenerationAnalyzer) Analyze(ctx context.Context, job *models.Job) (*analysis.Result, error) {
	settings, err := a.deps.Settings.UserSettings(ctx, job.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user settings: %w", err)
	}

	day := job.Day
	if day == "" {
		day = analysis.Today(a.deps.Clock()())
	}

	var p *Pipeline
	switch job.Mode {
	case models.RunBulk, "":
		p = NewBulkPipeline(a.deps, settings, job.UserID, job.StartAt, job.EndAt)
	case models.RunDaily:
		p, err = NewDailyPipeline(a.deps, settings, job.UserID, day)
	case models.RunIncremental:
		p, err = NewIncrementalPipeline(a.deps, settings, job.UserID, day)
	default:
		return nil, fmt.Errorf("unsupported track generation mode %q", job.Mode)
	}
	if err != nil {
		return nil, err
	}

	stats, err := p.Run(ctx)
	if err != nil {
		return nil, err
	}

	return &analysis.Result{
		Processed: stats.PointsLoaded,
		Failed:    stats.Unclassified,
		Summary: map[string]interface{}{
			"mode":            p.Mode,
			"points_loaded":   stats.PointsLoaded,
			"tracks_created":  stats.TracksCreated,
			"tracks_deleted":  stats.TracksDeleted,
			"tracks_trimmed":  stats.TracksTrimmed,
			"deferred_points": stats.DeferredPoints,
			"dropped_runs":    stats.DroppedRuns,
		},
	}, nil
}

// Register the analyzer
func init() {
	analysis.RegisterAnalyzer(models.SkillTrackGeneration, NewTrackGenerationAnalyzer)
}
