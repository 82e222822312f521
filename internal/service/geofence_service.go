package service

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/jengzang/records-tracks-go/internal/models"
	"github.com/jengzang/records-tracks-go/internal/store"
)

// GeofenceService manages the areas and places visits are detected at
type GeofenceService struct {
	geofences store.GeofenceStore
}

// NewGeofenceService creates a new geofence service
func NewGeofenceService(geofences store.GeofenceStore) *GeofenceService {
	return &GeofenceService{geofences: geofences}
}

// List returns the user's geofences.
func (s *GeofenceService) List(ctx context.Context, userID int64) ([]models.Geofence, error) {
	return s.geofences.ListGeofences(ctx, userID)
}

// Create validates and stores a geofence for the user.
func (s *GeofenceService) Create(ctx context.Context, userID int64, g models.Geofence) (*models.Geofence, error) {
	g.UserID = userID
	g.Name = strings.TrimSpace(g.Name)
	if g.Kind == "" {
		g.Kind = models.GeofenceArea
	}

	switch {
	case g.Kind != models.GeofenceArea && g.Kind != models.GeofencePlace:
		return nil, fmt.Errorf("%w: kind must be area or place", ErrInvalidGeofence)
	case g.Name == "":
		return nil, fmt.Errorf("%w: name is required", ErrInvalidGeofence)
	case math.Abs(g.Latitude) > 90 || math.Abs(g.Longitude) > 180:
		return nil, fmt.Errorf("%w: coordinates out of range", ErrInvalidGeofence)
	case g.Radius <= 0:
		return nil, fmt.Errorf("%w: radius must be positive", ErrInvalidGeofence)
	}

	if err := s.geofences.CreateGeofence(ctx, &g); err != nil {
		return nil, err
	}
	return &g, nil
}
