package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jengzang/records-tracks-go/internal/models"
	"github.com/jengzang/records-tracks-go/internal/store"
)

// SettingsService reads and updates per-user thresholds
type SettingsService struct {
	settings store.SettingsStore
}

// NewSettingsService creates a new settings service
func NewSettingsService(settings store.SettingsStore) *SettingsService {
	return &SettingsService{settings: settings}
}

// Get returns the user's effective settings, defaults filled in.
func (s *SettingsService) Get(ctx context.Context, userID int64) (models.UserSettings, error) {
	st, err := s.settings.UserSettings(ctx, userID)
	if err != nil {
		return models.UserSettings{}, fmt.Errorf("failed to load settings: %w", err)
	}
	return st.WithDefaults(), nil
}

// Update validates and stores settings. Zero values mean "use the default".
func (s *SettingsService) Update(ctx context.Context, userID int64, in models.UserSettings) (models.UserSettings, error) {
	if err := validateSettings(in); err != nil {
		return models.UserSettings{}, err
	}
	if err := s.settings.SaveUserSettings(ctx, userID, in); err != nil {
		return models.UserSettings{}, fmt.Errorf("failed to save settings: %w", err)
	}
	return in.WithDefaults(), nil
}

func validateSettings(in models.UserSettings) error {
	var errs []error
	check := func(name string, v float64) {
		if v < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", name))
		}
	}
	check("meters_between_routes", in.MetersBetweenRoutes)
	check("minutes_between_routes", in.MinutesBetweenRoutes)
	check("time_threshold_minutes", in.TimeThresholdMinutes)
	check("merge_threshold_minutes", in.MergeThresholdMinutes)

	b := in.TransportationThresholds
	check("walking_max_speed", b.WalkingMaxSpeed)
	check("cycling_max_speed", b.CyclingMaxSpeed)
	check("driving_max_speed", b.DrivingMaxSpeed)
	check("flying_min_speed", b.FlyingMinSpeed)

	e := in.TransportationExpertThresholds
	check("stationary_max_speed", e.StationaryMaxSpeed)
	check("running_vs_cycling_accel", e.RunningVsCyclingAccel)
	check("cycling_vs_driving_accel", e.CyclingVsDrivingAccel)
	check("train_min_speed", e.TrainMinSpeed)
	check("min_segment_duration", e.MinSegmentDuration)
	check("time_gap_threshold", e.TimeGapThreshold)
	check("min_flight_distance_km", e.MinFlightDistanceKm)

	if in.DistanceUnit != "" && in.DistanceUnit != "km" && in.DistanceUnit != "mi" {
		errs = append(errs, fmt.Errorf("distance_unit must be km or mi, got %q", in.DistanceUnit))
	}

	eff := in.WithDefaults().TransportationThresholds
	if eff.WalkingMaxSpeed >= eff.CyclingMaxSpeed || eff.CyclingMaxSpeed >= eff.DrivingMaxSpeed {
		errs = append(errs, errors.New("speed bands must satisfy walking < cycling < driving"))
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidSettings, errors.Join(errs...))
}
