package models

// Point is a single GPS observation owned by a user.
//
// Latitude, Longitude and Timestamp are required for a point to take part in
// track or visit assembly; rows missing any of them are filtered out by the
// point store and never reach the engine.
type Point struct {
	ID        int64   `json:"id" db:"id"`
	UserID    int64   `json:"user_id" db:"user_id"`
	Latitude  float64 `json:"latitude" db:"latitude"`
	Longitude float64 `json:"longitude" db:"longitude"`
	Timestamp int64   `json:"timestamp" db:"timestamp"` // Unix timestamp in seconds

	Accuracy *float64 `json:"accuracy,omitempty" db:"accuracy"` // meters
	Velocity *float64 `json:"velocity,omitempty" db:"velocity"` // m/s as reported by the device
	Altitude *float64 `json:"altitude,omitempty" db:"altitude"` // meters

	// Activity is an optional transportation hint carried over from the
	// import payload (e.g. "walking", "in_vehicle").
	Activity string `json:"activity,omitempty" db:"activity"`

	TrackID *int64 `json:"track_id,omitempty" db:"track_id"`
	VisitID *int64 `json:"visit_id,omitempty" db:"visit_id"`
}

// PointIDs returns the ids of points in order.
func PointIDs(points []Point) []int64 {
	ids := make([]int64, len(points))
	for i, p := range points {
		ids[i] = p.ID
	}
	return ids
}
