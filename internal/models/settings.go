package models

// UserSettings holds per-user thresholds for track and visit assembly.
// Zero values mean "not set" and are replaced by defaults in WithDefaults.
type UserSettings struct {
	MetersBetweenRoutes   float64 `json:"meters_between_routes"`
	MinutesBetweenRoutes  float64 `json:"minutes_between_routes"`
	TimeThresholdMinutes  float64 `json:"time_threshold_minutes"`
	MergeThresholdMinutes float64 `json:"merge_threshold_minutes"`
	DistanceUnit          string  `json:"distance_unit"`

	TransportationThresholds       TransportationThresholds       `json:"transportation_thresholds"`
	TransportationExpertThresholds TransportationExpertThresholds `json:"transportation_expert_thresholds"`
}

// TransportationThresholds are the basic per-mode speed bands (km/h).
type TransportationThresholds struct {
	WalkingMaxSpeed float64 `json:"walking_max_speed"`
	CyclingMaxSpeed float64 `json:"cycling_max_speed"`
	DrivingMaxSpeed float64 `json:"driving_max_speed"`
	FlyingMinSpeed  float64 `json:"flying_min_speed"`
}

// TransportationExpertThresholds override the basic bands for edge cases.
type TransportationExpertThresholds struct {
	StationaryMaxSpeed    float64 `json:"stationary_max_speed"`     // km/h
	RunningVsCyclingAccel float64 `json:"running_vs_cycling_accel"` // m/s²
	CyclingVsDrivingAccel float64 `json:"cycling_vs_driving_accel"` // m/s²
	TrainMinSpeed         float64 `json:"train_min_speed"`          // km/h
	MinSegmentDuration    float64 `json:"min_segment_duration"`     // seconds
	TimeGapThreshold      float64 `json:"time_gap_threshold"`       // seconds
	MinFlightDistanceKm   float64 `json:"min_flight_distance_km"`   // km
}

// Default thresholds
const (
	DefaultMetersBetweenRoutes   = 500
	DefaultMinutesBetweenRoutes  = 30
	DefaultTimeThresholdMinutes  = 30
	DefaultMergeThresholdMinutes = 15
	DefaultDistanceUnit          = "km"
)

// DefaultTransportationThresholds returns the basic speed bands.
func DefaultTransportationThresholds() TransportationThresholds {
	return TransportationThresholds{
		WalkingMaxSpeed: 7,
		CyclingMaxSpeed: 45,
		DrivingMaxSpeed: 220,
		FlyingMinSpeed:  150,
	}
}

// DefaultTransportationExpertThresholds returns the expert overrides.
func DefaultTransportationExpertThresholds() TransportationExpertThresholds {
	return TransportationExpertThresholds{
		StationaryMaxSpeed:    1,
		RunningVsCyclingAccel: 0.25,
		CyclingVsDrivingAccel: 0.4,
		TrainMinSpeed:         80,
		MinSegmentDuration:    60,
		TimeGapThreshold:      180,
		MinFlightDistanceKm:   100,
	}
}

// DefaultUserSettings returns settings for a user who never configured anything.
func DefaultUserSettings() UserSettings {
	return UserSettings{}.WithDefaults()
}

// WithDefaults fills every unset (zero or negative) threshold with its default.
func (s UserSettings) WithDefaults() UserSettings {
	if s.MetersBetweenRoutes <= 0 {
		s.MetersBetweenRoutes = DefaultMetersBetweenRoutes
	}
	if s.MinutesBetweenRoutes <= 0 {
		s.MinutesBetweenRoutes = DefaultMinutesBetweenRoutes
	}
	if s.TimeThresholdMinutes <= 0 {
		s.TimeThresholdMinutes = DefaultTimeThresholdMinutes
	}
	if s.MergeThresholdMinutes <= 0 {
		s.MergeThresholdMinutes = DefaultMergeThresholdMinutes
	}
	if s.DistanceUnit != "km" && s.DistanceUnit != "mi" {
		s.DistanceUnit = DefaultDistanceUnit
	}

	basic := DefaultTransportationThresholds()
	t := &s.TransportationThresholds
	fill(&t.WalkingMaxSpeed, basic.WalkingMaxSpeed)
	fill(&t.CyclingMaxSpeed, basic.CyclingMaxSpeed)
	fill(&t.DrivingMaxSpeed, basic.DrivingMaxSpeed)
	fill(&t.FlyingMinSpeed, basic.FlyingMinSpeed)

	expert := DefaultTransportationExpertThresholds()
	e := &s.TransportationExpertThresholds
	fill(&e.StationaryMaxSpeed, expert.StationaryMaxSpeed)
	fill(&e.RunningVsCyclingAccel, expert.RunningVsCyclingAccel)
	fill(&e.CyclingVsDrivingAccel, expert.CyclingVsDrivingAccel)
	fill(&e.TrainMinSpeed, expert.TrainMinSpeed)
	fill(&e.MinSegmentDuration, expert.MinSegmentDuration)
	fill(&e.TimeGapThreshold, expert.TimeGapThreshold)
	fill(&e.MinFlightDistanceKm, expert.MinFlightDistanceKm)

	return s
}

func fill(v *float64, def float64) {
	if *v <= 0 {
		*v = def
	}
}
