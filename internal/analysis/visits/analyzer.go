package visits

import (
	"context"
	"fmt"
	"time"

	"github.com/jengzang/records-tracks-go/internal/analysis"
	"github.com/jengzang/records-tracks-go/internal/logging"
	"github.com/jengzang/records-tracks-go/internal/models"
	"github.com/jengzang/records-tracks-go/internal/spatial"
	"github.com/jengzang/records-tracks-go/internal/store"
)

// VisitDetectionAnalyzer detects visits at every geofence of a user
// Skill: visit_detection
type VisitDetectionAnalyzer struct {
	deps analysis.Deps
}

// NewVisitDetectionAnalyzer creates a new visit detection analyzer
func NewVisitDetectionAnalyzer(deps analysis.Deps) analysis.Analyzer {
	return &VisitDetectionAnalyzer{deps: deps}
}

// Name returns the skill name
func (a *VisitDetectionAnalyzer) Name() string {
	return models.SkillVisitDetection
}

// Analyze walks the job range one UTC calendar month at a time, feeding each
// geofence's candidates to its own accumulator. A visit is persisted as soon
// as a later month shows it is closed, so only one month of points is held.
func (a *VisitDetectionAnalyzer) Analyze(ctx context.Context, job *models.Job) (*analysis.Result, error) {
	log := logging.Ctx(ctx).With().Str("component", "visit_detection").Int64("user_id", job.UserID).Logger()

	settings, err := a.deps.Settings.UserSettings(ctx, job.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user settings: %w", err)
	}
	fences, err := a.deps.Geofences.ListGeofences(ctx, job.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list geofences: %w", err)
	}
	if len(fences) == 0 {
		log.Debug().Msg("no geofences, nothing to detect")
		return &analysis.Result{Summary: map[string]interface{}{"geofences": 0, "visits": 0}}, nil
	}

	first, last, ok, err := a.deps.Points.PointSpan(ctx, store.PointQuery{UserID: job.UserID, From: job.StartAt, To: job.EndAt})
	if err != nil {
		return nil, fmt.Errorf("failed to find point span: %w", err)
	}

	grouper := NewGrouper(settings)
	persister := NewPersister(a.deps.Visits)
	accs := make([]*Accumulator, len(fences))
	for i := range fences {
		accs[i] = grouper.Accumulate()
	}

	scanned, months, visits, attached := 0, 0, 0, 0
	persist := func(fence models.Geofence, groups []Group) error {
		if len(groups) == 0 {
			return nil
		}
		saved, err := persister.Persist(ctx, job.UserID, fence, groups)
		if err != nil {
			return fmt.Errorf("geofence %d: %w", fence.ID, err)
		}
		for _, v := range saved {
			attached += v.PointCount
		}
		visits += len(saved)
		return nil
	}

	for month := monthStart(first); ok && month <= last; month = nextMonth(month) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		from, to := month, nextMonth(month)-1
		if job.StartAt != nil && *job.StartAt > from {
			from = *job.StartAt
		}
		if job.EndAt != nil && *job.EndAt < to {
			to = *job.EndAt
		}

		points, err := a.deps.Points.FindPoints(ctx, store.PointQuery{UserID: job.UserID, From: &from, To: &to})
		if err != nil {
			return nil, fmt.Errorf("failed to load points: %w", err)
		}
		months++
		scanned += len(points)

		for i, fence := range fences {
			if err := persist(fence, accs[i].Add(Candidates(fence, points))); err != nil {
				return nil, err
			}
		}
		log.Debug().Str("month", monthOf(month)).Int("points", len(points)).Msg("month scanned")
	}
	for i, fence := range fences {
		if err := persist(fence, accs[i].Flush()); err != nil {
			return nil, err
		}
	}

	log.Info().Int("geofences", len(fences)).Int("months", months).Int("visits", visits).Msg("visit detection completed")
	return &analysis.Result{
		Processed: visits,
		Summary: map[string]interface{}{
			"geofences":       len(fences),
			"months":          months,
			"points_scanned":  scanned,
			"visits":          visits,
			"points_attached": attached,
		},
	}, nil
}

func monthStart(ts int64) int64 {
	t := time.Unix(ts, 0).UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).Unix()
}

func nextMonth(start int64) int64 {
	return time.Unix(start, 0).UTC().AddDate(0, 1, 0).Unix()
}

// Candidates returns the points inside the geofence radius, keeping order.
func Candidates(fence models.Geofence, points []models.Point) []models.Point {
	var out []models.Point
	for _, p := range points {
		if spatial.WithinRadius(fence.Latitude, fence.Longitude, fence.Radius, p.Latitude, p.Longitude) {
			out = append(out, p)
		}
	}
	return out
}

// Register the analyzer
func init() {
	analysis.RegisterAnalyzer(models.SkillVisitDetection, NewVisitDetectionAnalyzer)
}
