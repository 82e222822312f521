package models

import "time"

// Visit is a time-clustered stay bound to exactly one geofence (area or place).
// Repeated runs identify a visit by (geofence, user, started_at).
type Visit struct {
	ID           int64  `json:"id" db:"id"`
	UserID       int64  `json:"user_id" db:"user_id"`
	GeofenceID   int64  `json:"geofence_id" db:"geofence_id"`
	GeofenceKind string `json:"geofence_kind" db:"geofence_kind"`

	StartedAt int64  `json:"started_at" db:"started_at"` // Unix timestamp
	EndedAt   int64  `json:"ended_at" db:"ended_at"`     // Unix timestamp
	Duration  int64  `json:"duration" db:"duration"`     // minutes
	Name      string `json:"name" db:"name"`
	Status    string `json:"status" db:"status"`

	PointCount int `json:"point_count,omitempty" db:"-"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// VisitKey is the identity of a visit across recomputation runs.
type VisitKey struct {
	GeofenceID   int64
	GeofenceKind string
	UserID       int64
	StartedAt    int64
}

// Key returns the visit's identity key.
func (v Visit) Key() VisitKey {
	return VisitKey{GeofenceID: v.GeofenceID, GeofenceKind: v.GeofenceKind, UserID: v.UserID, StartedAt: v.StartedAt}
}

// Visit statuses
const (
	VisitSuggested = "suggested"
	VisitConfirmed = "confirmed"
	VisitDeclined  = "declined"
)
