package service

import (
	"context"
	"fmt"

	"github.com/jengzang/records-tracks-go/internal/models"
	"github.com/jengzang/records-tracks-go/internal/store"
)

// VisitService handles read access to detected visits
type VisitService struct {
	visits store.VisitStore
}

// NewVisitService creates a new visit service
func NewVisitService(visits store.VisitStore) *VisitService {
	return &VisitService{visits: visits}
}

// List returns the user's visits intersecting [from, to].
func (s *VisitService) List(ctx context.Context, userID int64, from, to *int64) ([]models.Visit, error) {
	if from != nil && to != nil && *from > *to {
		return nil, fmt.Errorf("%w: from after to", ErrInvalidRange)
	}
	visits, err := s.visits.ListVisits(ctx, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list visits: %w", err)
	}
	return visits, nil
}
