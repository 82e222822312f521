package service

import (
	"context"
	"fmt"

	"github.com/jengzang/records-tracks-go/internal/models"
	"github.com/jengzang/records-tracks-go/internal/store"
)

// TrackService handles read access to generated tracks
type TrackService struct {
	tracks store.TrackStore
}

// NewTrackService creates a new track service
func NewTrackService(tracks store.TrackStore) *TrackService {
	return &TrackService{tracks: tracks}
}

// List returns the user's tracks contained in [from, to]; nil bounds are open.
func (s *TrackService) List(ctx context.Context, userID int64, from, to *int64) ([]models.Track, error) {
	if from != nil && to != nil && *from > *to {
		return nil, fmt.Errorf("%w: from after to", ErrInvalidRange)
	}
	tracks, err := s.tracks.TracksWithin(ctx, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list tracks: %w", err)
	}
	return tracks, nil
}

// Get returns one track with its segments.
func (s *TrackService) Get(ctx context.Context, userID, id int64) (*models.Track, error) {
	return s.tracks.GetTrack(ctx, userID, id)
}
