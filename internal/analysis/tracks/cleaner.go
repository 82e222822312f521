package tracks

import (
	"context"
	"fmt"
	"math"

	"github.com/jengzang/records-tracks-go/internal/analysis/behavior"
	"github.com/jengzang/records-tracks-go/internal/logging"
	"github.com/jengzang/records-tracks-go/internal/metrics"
	"github.com/jengzang/records-tracks-go/internal/models"
	"github.com/jengzang/records-tracks-go/internal/store"
)

// CleanStats counts what a cleaner changed.
type CleanStats struct {
	Deleted int
	Trimmed int
}

// TrackCleaner removes or adjusts tracks that conflict with a regeneration.
type TrackCleaner interface {
	Clean(ctx context.Context) (CleanStats, error)
}

// ReplaceCleaner deletes every track contained in an optional range. When the
// range is bounded, tracks that only partly overlap it are trimmed so the
// points inside the range are free for regeneration.
type ReplaceCleaner struct {
	tracks  store.TrackStore
	userID  int64
	startAt *int64
	endAt   *int64
	trimmer trimmer
}

// NewReplaceCleaner creates a cleaner for tracks inside [startAt, endAt].
// Trimmed edge tracks are rebuilt with gen and det.
func NewReplaceCleaner(tracks store.TrackStore, userID int64, startAt, endAt *int64, gen *Generator, det *behavior.Detector) *ReplaceCleaner {
	return &ReplaceCleaner{
		tracks:  tracks,
		userID:  userID,
		startAt: startAt,
		endAt:   endAt,
		trimmer: trimmer{tracks: tracks, userID: userID, generator: gen, detector: det},
	}
}

// Clean implements TrackCleaner. Running it twice over the same range is a no-op
// the second time.
func (c *ReplaceCleaner) Clean(ctx context.Context) (CleanStats, error) {
	found, err := c.tracks.TracksWithin(ctx, c.userID, c.startAt, c.endAt)
	if err != nil {
		return CleanStats{}, fmt.Errorf("failed to find tracks to replace: %w", err)
	}

	var stats CleanStats
	if len(found) > 0 {
		ids := make([]int64, len(found))
		for i, t := range found {
			ids[i] = t.ID
		}
		if err := c.tracks.DeleteTracks(ctx, c.userID, ids); err != nil {
			return CleanStats{}, fmt.Errorf("failed to delete tracks: %w", err)
		}
		stats.Deleted = len(ids)
		logging.Debug().Int64("user_id", c.userID).Int("tracks", len(ids)).Msg("replaced tracks removed")
	}

	if c.startAt != nil || c.endAt != nil {
		start, end := int64(math.MinInt64+1), int64(math.MaxInt64-1)
		if c.startAt != nil {
			start = *c.startAt
		}
		if c.endAt != nil {
			end = *c.endAt
		}
		edges, err := c.trimmer.window(ctx, start, end)
		stats.Deleted += edges.Deleted
		stats.Trimmed += edges.Trimmed
		if err != nil {
			return stats, err
		}
	}

	metrics.TracksDeleted.WithLabelValues("replace").Add(float64(stats.Deleted))
	metrics.TracksTrimmed.Add(float64(stats.Trimmed))
	return stats, nil
}

// DailyCleaner trims tracks overlapping a window instead of deleting them, so
// tracks crossing the window boundary keep their points outside it.
type DailyCleaner struct {
	start, end int64
	trimmer    trimmer
}

// NewDailyCleaner creates a cleaner for the inclusive window [start, end].
// Surviving parts of trimmed tracks are rebuilt with gen and det.
func NewDailyCleaner(tracks store.TrackStore, userID int64, start, end int64, gen *Generator, det *behavior.Detector) *DailyCleaner {
	return &DailyCleaner{
		start:   start,
		end:     end,
		trimmer: trimmer{tracks: tracks, userID: userID, generator: gen, detector: det},
	}
}

// Clean implements TrackCleaner.
func (c *DailyCleaner) Clean(ctx context.Context) (CleanStats, error) {
	stats, err := c.trimmer.window(ctx, c.start, c.end)
	metrics.TracksDeleted.WithLabelValues("daily").Add(float64(stats.Deleted))
	metrics.TracksTrimmed.Add(float64(stats.Trimmed))
	return stats, err
}

// trimmer detaches a window's points from the tracks holding them. A track
// left with fewer than two points is deleted; otherwise its aggregates, path
// and segments are recomputed from the points that remain.
type trimmer struct {
	tracks    store.TrackStore
	userID    int64
	generator *Generator
	detector  *behavior.Detector
}

// window trims every track with a point in the inclusive range [start, end].
func (tr trimmer) window(ctx context.Context, start, end int64) (CleanStats, error) {
	// TracksOverlapping is exclusive at both ends.
	overlapping, err := tr.tracks.TracksOverlapping(ctx, tr.userID, start-1, end+1)
	if err != nil {
		return CleanStats{}, fmt.Errorf("failed to find overlapping tracks: %w", err)
	}

	var stats CleanStats
	for _, t := range overlapping {
		points, err := tr.tracks.TrackPoints(ctx, t.ID)
		if err != nil {
			return stats, fmt.Errorf("failed to load points of track %d: %w", t.ID, err)
		}

		trim, changed := tr.plan(t.ID, points, start, end)
		if !changed {
			continue
		}
		if err := tr.tracks.ApplyTrim(ctx, trim); err != nil {
			return stats, fmt.Errorf("failed to trim track %d: %w", t.ID, err)
		}
		if trim.Delete {
			stats.Deleted++
		} else {
			stats.Trimmed++
		}
	}
	return stats, nil
}

// plan decides the trim of one track. Points are ordered by timestamp.
func (tr trimmer) plan(trackID int64, points []models.Point, start, end int64) (store.TrackTrim, bool) {
	trim := store.TrackTrim{TrackID: trackID}
	var remaining []models.Point
	for _, p := range points {
		if p.Timestamp >= start && p.Timestamp <= end {
			trim.DetachPointIDs = append(trim.DetachPointIDs, p.ID)
		} else {
			remaining = append(remaining, p)
		}
	}

	switch {
	case len(remaining) < 2:
		// A track needs two points; a lone survivor is detached with the track.
		trim.Delete = true
		return trim, true
	case len(trim.DetachPointIDs) == 0:
		return trim, false
	}

	trim.Rebuilt = tr.generator.Build(tr.userID, remaining)
	class, err := tr.detector.Detect(remaining)
	if err != nil {
		logging.Error().Err(err).Int64("track_id", trackID).Msg("classification of trimmed track failed, track stays unknown")
		metrics.ClassificationFailures.Inc()
		class = behavior.Classification{DominantMode: models.ModeUnknown}
	}
	trim.Rebuilt.DominantMode = class.DominantMode
	trim.Segments = class.Segments
	return trim, true
}

// NoopCleaner leaves tracks alone. Incremental runs only see unassigned points
// after the last track, so nothing can conflict.
type NoopCleaner struct{}

// Clean implements TrackCleaner.
func (NoopCleaner) Clean(context.Context) (CleanStats, error) { return CleanStats{}, nil }
