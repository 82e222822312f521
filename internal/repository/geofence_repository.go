package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jengzang/records-tracks-go/internal/models"
	"github.com/jengzang/records-tracks-go/internal/store"
)

// GeofenceRepository reads areas and places
type GeofenceRepository struct {
	db *sql.DB
}

var _ store.GeofenceStore = (*GeofenceRepository)(nil)

// NewGeofenceRepository creates a new geofence repository
func NewGeofenceRepository(db *sql.DB) *GeofenceRepository {
	return &GeofenceRepository{db: db}
}

// ListGeofences returns every area and place of the user.
func (r *GeofenceRepository) ListGeofences(ctx context.Context, userID int64) ([]models.Geofence, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, user_id, kind, name, latitude, longitude, radius
		FROM geofences WHERE user_id = ? ORDER BY kind, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list geofences: %w", err)
	}
	defer rows.Close()

	var geofences []models.Geofence
	for rows.Next() {
		var g models.Geofence
		if err := rows.Scan(&g.ID, &g.UserID, &g.Kind, &g.Name, &g.Latitude, &g.Longitude, &g.Radius); err != nil {
			return nil, fmt.Errorf("failed to scan geofence: %w", err)
		}
		geofences = append(geofences, g)
	}
	return geofences, rows.Err()
}

// CreateGeofence inserts a geofence. Areas and places are owned elsewhere;
// this exists for seeding.
func (r *GeofenceRepository) CreateGeofence(ctx context.Context, g *models.Geofence) error {
	res, err := r.db.ExecContext(ctx, `INSERT INTO geofences (user_id, kind, name, latitude, longitude, radius)
		VALUES (?, ?, ?, ?, ?, ?)`, g.UserID, g.Kind, g.Name, g.Latitude, g.Longitude, g.Radius)
	if err != nil {
		return fmt.Errorf("failed to create geofence: %w", err)
	}
	if g.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	return nil
}
