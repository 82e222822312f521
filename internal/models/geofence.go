package models

// Geofence is an area or place used as a visit clustering anchor.
// Geofences are supplied by other parts of the system and read-only here.
type Geofence struct {
	ID        int64   `json:"id" db:"id"`
	UserID    int64   `json:"user_id" db:"user_id"`
	Kind      string  `json:"kind" db:"kind"` // area, place
	Name      string  `json:"name" db:"name"`
	Latitude  float64 `json:"latitude" db:"latitude"`
	Longitude float64 `json:"longitude" db:"longitude"`
	Radius    float64 `json:"radius" db:"radius"` // meters
}

// Geofence kinds
const (
	GeofenceArea  = "area"
	GeofencePlace = "place"
)
