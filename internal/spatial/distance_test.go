package spatial

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHaversineDistance(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		want                   float64
		tolerance              float64
	}{
		{"same point", 52.52, 13.405, 52.52, 13.405, 0, 1e-9},
		{"one degree of latitude", 0, 0, 1, 0, 111195, 5},
		{"berlin to paris", 52.5200, 13.4050, 48.8566, 2.3522, 877_000, 3000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HaversineDistance(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			assert.InDelta(t, tt.want, got, tt.tolerance)
		})
	}
}

func TestHaversineDistanceSymmetric(t *testing.T) {
	a := HaversineDistance(40.7128, -74.0060, 34.0522, -118.2437)
	b := HaversineDistance(34.0522, -118.2437, 40.7128, -74.0060)
	assert.True(t, math.Abs(a-b) < 1e-6)
}

func TestWithinRadius(t *testing.T) {
	// ~111m north of the center
	assert.True(t, WithinRadius(0, 0, 150, 0.001, 0))
	assert.False(t, WithinRadius(0, 0, 100, 0.001, 0))
}

func TestSpeedKmh(t *testing.T) {
	assert.InDelta(t, 36.0, SpeedKmh(1000, 100), 1e-9)
	assert.Equal(t, 0.0, SpeedKmh(1000, 0))
}

func TestPathWKT(t *testing.T) {
	got := PathWKT([]LatLon{{Lat: 1, Lon: 2}, {Lat: 3, Lon: 4}})
	assert.True(t, strings.HasPrefix(got, "LINESTRING("), got)
	assert.Contains(t, got, "2 1")
	assert.Contains(t, got, "4 3")
}
