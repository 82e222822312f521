package tracks

import (
	"math"

	"github.com/jengzang/records-tracks-go/internal/models"
	"github.com/jengzang/records-tracks-go/internal/spatial"
)

// Generator splits ordered points into candidate tracks on spatial or
// temporal gaps and computes track aggregates.
type Generator struct {
	maxDistance float64 // meters
	maxGap      int64   // seconds
}

// NewGenerator creates a generator from the user's route thresholds.
func NewGenerator(settings models.UserSettings) *Generator {
	s := settings.WithDefaults()
	return &Generator{
		maxDistance: s.MetersBetweenRoutes,
		maxGap:      int64(s.MinutesBetweenRoutes * 60),
	}
}

// Split cuts points into maximal runs. A new run starts whenever the
// great-circle distance to the previous point exceeds the distance limit or
// the elapsed time exceeds the gap limit.
func (g *Generator) Split(points []models.Point) [][]models.Point {
	if len(points) == 0 {
		return nil
	}

	var runs [][]models.Point
	start := 0
	for i := 1; i < len(points); i++ {
		prev, cur := points[i-1], points[i]
		dist := spatial.HaversineDistance(prev.Latitude, prev.Longitude, cur.Latitude, cur.Longitude)
		if dist > g.maxDistance || cur.Timestamp-prev.Timestamp > g.maxGap {
			runs = append(runs, points[start:i])
			start = i
		}
	}
	return append(runs, points[start:])
}

// Build computes a track from one run of at least two points. Segments and
// dominant mode are left to the caller.
func (g *Generator) Build(userID int64, run []models.Point) models.Track {
	first, last := run[0], run[len(run)-1]
	t := models.Track{
		UserID:       userID,
		StartAt:      first.Timestamp,
		EndAt:        last.Timestamp,
		Duration:     last.Timestamp - first.Timestamp,
		DominantMode: models.ModeUnknown,
		PointCount:   len(run),
	}

	path := make([]spatial.LatLon, len(run))
	var prevAlt *float64
	t.ElevationMin = math.Inf(1)
	t.ElevationMax = math.Inf(-1)
	for i, p := range run {
		path[i] = spatial.LatLon{Lat: p.Latitude, Lon: p.Longitude}
		if i > 0 {
			q := run[i-1]
			t.Distance += spatial.HaversineDistance(q.Latitude, q.Longitude, p.Latitude, p.Longitude)
		}

		if p.Altitude == nil {
			continue
		}
		alt := *p.Altitude
		t.ElevationMin = math.Min(t.ElevationMin, alt)
		t.ElevationMax = math.Max(t.ElevationMax, alt)
		if prevAlt != nil {
			if d := alt - *prevAlt; d > 0 {
				t.ElevationGain += d
			} else {
				t.ElevationLoss -= d
			}
		}
		prevAlt = p.Altitude
	}
	if prevAlt == nil {
		t.ElevationMin, t.ElevationMax = 0, 0
	}

	t.AvgSpeed = spatial.SpeedKmh(t.Distance, t.Duration)
	t.Path = spatial.PathWKT(path)
	return t
}
