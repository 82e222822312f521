package behavior

import (
	"context"
	"fmt"

	"github.com/jengzang/records-tracks-go/internal/analysis"
	"github.com/jengzang/records-tracks-go/internal/logging"
	"github.com/jengzang/records-tracks-go/internal/metrics"
	"github.com/jengzang/records-tracks-go/internal/models"
)

// TransportModeBackfillAnalyzer reclassifies every track of a user.
// Skill: transport_mode_backfill
type TransportModeBackfillAnalyzer struct {
	deps analysis.Deps
}

// NewTransportModeBackfillAnalyzer creates a new backfill analyzer
func NewTransportModeBackfillAnalyzer(deps analysis.Deps) analysis.Analyzer {
	return &TransportModeBackfillAnalyzer{deps: deps}
}

// Name returns the skill name
func (a *TransportModeBackfillAnalyzer) Name() string {
	return models.SkillTransportModeBackfill
}

// Analyze reclassifies the user's tracks inside the job's optional range. A
// track whose classification fails is logged, left unknown and counted as
// failed; the run continues with the next track.
func (a *TransportModeBackfillAnalyzer) Analyze(ctx context.Context, job *models.Job) (*analysis.Result, error) {
	log := logging.Ctx(ctx).With().Str("component", "transport_mode_backfill").Int64("user_id", job.UserID).Logger()

	settings, err := a.deps.Settings.UserSettings(ctx, job.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user settings: %w", err)
	}
	detector := NewDetector(settings)

	tracks, err := a.deps.Tracks.TracksWithin(ctx, job.UserID, job.StartAt, job.EndAt)
	if err != nil {
		return nil, fmt.Errorf("failed to list tracks: %w", err)
	}
	log.Info().Int("tracks", len(tracks)).Msg("starting transport mode backfill")

	result := &analysis.Result{}
	modes := make(map[string]int)
	for _, track := range tracks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		points, err := a.deps.Tracks.TrackPoints(ctx, track.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load points of track %d: %w", track.ID, err)
		}

		class, err := detector.Detect(points)
		if err != nil {
			log.Error().Err(err).Int64("track_id", track.ID).Msg("classification failed, leaving track unknown")
			metrics.ClassificationFailures.Inc()
			class = Classification{DominantMode: models.ModeUnknown}
			result.Failed++
		} else {
			result.Processed++
		}

		if err := a.deps.Tracks.ReplaceSegments(ctx, track.ID, class.DominantMode, class.Segments); err != nil {
			return nil, fmt.Errorf("failed to store segments of track %d: %w", track.ID, err)
		}
		modes[class.DominantMode]++
	}

	result.Summary = map[string]interface{}{
		"tracks":         len(tracks),
		"classified":     result.Processed,
		"failed":         result.Failed,
		"dominant_modes": modes,
	}
	log.Info().Int("classified", result.Processed).Int("failed", result.Failed).Msg("transport mode backfill completed")
	return result, nil
}

// Register the analyzer
func init() {
	analysis.RegisterAnalyzer(models.SkillTransportModeBackfill, NewTransportModeBackfillAnalyzer)
}
