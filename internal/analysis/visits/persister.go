package visits

import (
	"context"
	"fmt"

	"github.com/jengzang/records-tracks-go/internal/metrics"
	"github.com/jengzang/records-tracks-go/internal/models"
	"github.com/jengzang/records-tracks-go/internal/store"
)

// Persister upserts grouped visits of one geofence.
type Persister struct {
	visits store.VisitStore
}

// NewPersister creates a persister.
func NewPersister(visits store.VisitStore) *Persister {
	return &Persister{visits: visits}
}

// Persist finds or initializes a visit per group, keyed by the geofence, the
// user and the first point's timestamp, and makes the group's points its exact
// point set. Each visit is saved atomically; an error stops the loop and
// leaves earlier visits saved.
func (p *Persister) Persist(ctx context.Context, userID int64, fence models.Geofence, groups []Group) ([]models.Visit, error) {
	saved := make([]models.Visit, 0, len(groups))
	for _, g := range groups {
		first, last := g.Points[0], g.Points[len(g.Points)-1]
		key := models.VisitKey{
			GeofenceID:   fence.ID,
			GeofenceKind: fence.Kind,
			UserID:       userID,
			StartedAt:    first.Timestamp,
		}

		visit, err := p.visits.FindVisit(ctx, key)
		if err != nil {
			return saved, fmt.Errorf("failed to find visit: %w", err)
		}
		if visit == nil {
			visit = &models.Visit{
				UserID:       userID,
				GeofenceID:   fence.ID,
				GeofenceKind: fence.Kind,
				StartedAt:    first.Timestamp,
			}
		}
		visit.EndedAt = last.Timestamp
		visit.Duration = (last.Timestamp - first.Timestamp) / 60
		visit.Name = fmt.Sprintf("%s (%s)", fence.Name, g.Label)
		visit.Status = models.VisitSuggested

		if err := p.visits.SaveVisit(ctx, visit, models.PointIDs(g.Points)); err != nil {
			return saved, fmt.Errorf("failed to save visit %q: %w", visit.Name, err)
		}
		visit.PointCount = len(g.Points)
		metrics.VisitsUpserted.WithLabelValues(fence.Kind).Inc()
		saved = append(saved, *visit)
	}
	return saved, nil
}
