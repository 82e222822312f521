package models

import "time"

// Track is a contiguous movement record made of at least two points.
// StartAt and EndAt always equal the min and max timestamp of its points.
type Track struct {
	ID     int64 `json:"id" db:"id"`
	UserID int64 `json:"user_id" db:"user_id"`

	StartAt int64 `json:"start_at" db:"start_at"` // Unix timestamp
	EndAt   int64 `json:"end_at" db:"end_at"`     // Unix timestamp

	Distance      float64 `json:"distance" db:"distance"`             // meters
	Duration      int64   `json:"duration" db:"duration"`             // seconds
	AvgSpeed      float64 `json:"avg_speed" db:"avg_speed"`           // km/h
	ElevationGain float64 `json:"elevation_gain" db:"elevation_gain"` // meters
	ElevationLoss float64 `json:"elevation_loss" db:"elevation_loss"` // meters
	ElevationMax  float64 `json:"elevation_max" db:"elevation_max"`   // meters
	ElevationMin  float64 `json:"elevation_min" db:"elevation_min"`   // meters

	DominantMode string `json:"dominant_mode" db:"dominant_mode"`
	Path         string `json:"path" db:"path"` // LINESTRING WKT, lon lat order

	PointCount int            `json:"point_count" db:"-"`
	Segments   []TrackSegment `json:"segments,omitempty" db:"-"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Overlaps reports whether the track intersects the open window (start, end).
func (t Track) Overlaps(start, end int64) bool {
	return t.StartAt < end && t.EndAt > start
}
