package spatial

import (
	"github.com/golang/geo/s2"
)

// Constants
const (
	EarthRadiusMeters = 6371000.0 // Earth's mean radius in meters
	EarthRadiusKm     = 6371.0    // Earth's mean radius in kilometers
)

// HaversineDistance calculates the great-circle distance between two points in meters
func HaversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	p1 := s2.LatLngFromDegrees(lat1, lon1)
	p2 := s2.LatLngFromDegrees(lat2, lon2)
	return p1.Distance(p2).Radians() * EarthRadiusMeters
}

// WithinRadius reports whether (lat, lon) lies within radius meters of the center.
func WithinRadius(centerLat, centerLon, radius, lat, lon float64) bool {
	return HaversineDistance(centerLat, centerLon, lat, lon) <= radius
}

// SpeedKmh converts a distance in meters covered in seconds to km/h.
// Returns 0 for non-positive durations.
func SpeedKmh(meters float64, seconds int64) float64 {
	if seconds <= 0 {
		return 0
	}
	return meters / float64(seconds) * 3.6
}
