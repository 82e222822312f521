package models

// TrackSegment is a classified sub-range of a track with a single
// transportation mode.
//
// StartIndex and EndIndex address the track's inter-point intervals: interval i
// joins point i and point i+1. Segments of one track are contiguous and cover
// [0, point_count-2].
type TrackSegment struct {
	ID      int64 `json:"id" db:"id"`
	TrackID int64 `json:"track_id" db:"track_id"`

	TransportationMode string `json:"transportation_mode" db:"transportation_mode"`
	StartIndex         int    `json:"start_index" db:"start_index"`
	EndIndex           int    `json:"end_index" db:"end_index"`

	Distance        float64 `json:"distance" db:"distance"`                 // meters
	Duration        int64   `json:"duration" db:"duration"`                 // seconds
	AvgSpeed        float64 `json:"avg_speed" db:"avg_speed"`               // km/h
	MaxSpeed        float64 `json:"max_speed" db:"max_speed"`               // km/h
	AvgAcceleration float64 `json:"avg_acceleration" db:"avg_acceleration"` // m/s²

	Confidence float64 `json:"confidence" db:"confidence"` // 0~1
	Source     string  `json:"source" db:"source"`
}

// Transportation modes
const (
	ModeUnknown    = "unknown"
	ModeStationary = "stationary"
	ModeWalking    = "walking"
	ModeRunning    = "running"
	ModeCycling    = "cycling"
	ModeDriving    = "driving"
	ModeBus        = "bus"
	ModeTrain      = "train"
	ModeFlying     = "flying"
	ModeBoat       = "boat"
	ModeMotorcycle = "motorcycle"
)

// Segment sources
const (
	SourceThreshold    = "threshold"
	SourceActivityHint = "activity_hint"
)
