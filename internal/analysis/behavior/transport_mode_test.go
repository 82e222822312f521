package behavior

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengzang/records-tracks-go/internal/analysis"
	"github.com/jengzang/records-tracks-go/internal/models"
	"github.com/jengzang/records-tracks-go/internal/store/memstore"
)

const metersPerDegree = 6371000 * math.Pi / 180

// leg describes count intervals of dt seconds at speed km/h, heading north.
type leg struct {
	count    int
	dt       int64
	speedKmh float64
	activity string
}

func route(legs ...leg) []models.Point {
	lat, ts := 10.0, int64(1700000000)
	points := []models.Point{{ID: 1, Latitude: lat, Longitude: 20, Timestamp: ts}}
	for _, l := range legs {
		for i := 0; i < l.count; i++ {
			meters := l.speedKmh / 3.6 * float64(l.dt)
			lat += meters / metersPerDegree
			ts += l.dt
			points[len(points)-1].Activity = l.activity
			points = append(points, models.Point{ID: int64(len(points) + 1), Latitude: lat, Longitude: 20, Timestamp: ts})
		}
	}
	return points
}

func assertContiguous(t *testing.T, segments []models.TrackSegment, pointCount int) {
	t.Helper()
	require.NotEmpty(t, segments)
	assert.Equal(t, 0, segments[0].StartIndex)
	for i := 1; i < len(segments); i++ {
		assert.Equal(t, segments[i-1].EndIndex+1, segments[i].StartIndex, "segment %d must start where %d ended", i, i-1)
	}
	assert.Equal(t, pointCount-2, segments[len(segments)-1].EndIndex)
}

func TestDetectWalking(t *testing.T) {
	points := route(leg{count: 9, dt: 60, speedKmh: 5})
	class, err := NewDetector(models.DefaultUserSettings()).Detect(points)
	require.NoError(t, err)

	require.Len(t, class.Segments, 1)
	seg := class.Segments[0]
	assert.Equal(t, models.ModeWalking, seg.TransportationMode)
	assert.Equal(t, models.SourceThreshold, seg.Source)
	assert.Equal(t, int64(540), seg.Duration)
	assert.InDelta(t, 5, seg.AvgSpeed, 0.05)
	assert.InDelta(t, 750, seg.Distance, 1)
	assert.Greater(t, seg.Confidence, 0.5)
	assert.Equal(t, models.ModeWalking, class.DominantMode)
	assertContiguous(t, class.Segments, len(points))
}

func TestDetectTooFewPoints(t *testing.T) {
	d := NewDetector(models.UserSettings{})
	for _, pts := range [][]models.Point{nil, route()} {
		class, err := d.Detect(pts)
		require.NoError(t, err)
		assert.Equal(t, models.ModeUnknown, class.DominantMode)
		assert.Empty(t, class.Segments)
	}
}

func TestDetectModeChangeTieBreak(t *testing.T) {
	points := route(leg{count: 10, dt: 60, speedKmh: 5}, leg{count: 10, dt: 60, speedKmh: 60})
	class, err := NewDetector(models.DefaultUserSettings()).Detect(points)
	require.NoError(t, err)

	require.Len(t, class.Segments, 2)
	assert.Equal(t, models.ModeWalking, class.Segments[0].TransportationMode)
	assert.Equal(t, models.ModeDriving, class.Segments[1].TransportationMode)
	assert.Equal(t, class.Segments[0].Duration, class.Segments[1].Duration)
	assert.Equal(t, models.ModeWalking, class.DominantMode, "equal durations resolve to the lowest start index")
	assertContiguous(t, class.Segments, len(points))
}

func TestDetectAbsorbsShortSegments(t *testing.T) {
	points := route(
		leg{count: 10, dt: 60, speedKmh: 5},
		leg{count: 1, dt: 30, speedKmh: 30},
		leg{count: 10, dt: 60, speedKmh: 5},
	)
	class, err := NewDetector(models.DefaultUserSettings()).Detect(points)
	require.NoError(t, err)

	require.Len(t, class.Segments, 1)
	assert.Equal(t, models.ModeWalking, class.Segments[0].TransportationMode)
	assertContiguous(t, class.Segments, len(points))
}

func TestDetectActivityHintOverrides(t *testing.T) {
	points := route(leg{count: 5, dt: 60, speedKmh: 5, activity: "IN_TRAIN"})
	class, err := NewDetector(models.DefaultUserSettings()).Detect(points)
	require.NoError(t, err)

	require.Len(t, class.Segments, 1)
	assert.Equal(t, models.ModeTrain, class.Segments[0].TransportationMode)
	assert.Equal(t, models.SourceActivityHint, class.Segments[0].Source)
	assert.InDelta(t, hintConfidence, class.Segments[0].Confidence, 1e-9)
}

func TestDetectFlights(t *testing.T) {
	d := NewDetector(models.DefaultUserSettings())

	short := route(leg{count: 3, dt: 60, speedKmh: 300})
	class, err := d.Detect(short)
	require.NoError(t, err)
	require.Len(t, class.Segments, 1)
	assert.Equal(t, models.ModeTrain, class.Segments[0].TransportationMode, "15 km is too short to be a flight")

	long := route(leg{count: 30, dt: 60, speedKmh: 800})
	class, err = d.Detect(long)
	require.NoError(t, err)
	require.Len(t, class.Segments, 1)
	assert.Equal(t, models.ModeFlying, class.Segments[0].TransportationMode)
	assert.Greater(t, class.Segments[0].Distance, 100000.0)
}

func TestDetectContiguityMixedRoute(t *testing.T) {
	points := route(
		leg{count: 3, dt: 60, speedKmh: 0.5},
		leg{count: 4, dt: 45, speedKmh: 4},
		leg{count: 2, dt: 10, speedKmh: 20},
		leg{count: 6, dt: 60, speedKmh: 90},
		leg{count: 1, dt: 600, speedKmh: 3},
		leg{count: 5, dt: 60, speedKmh: 25},
		leg{count: 3, dt: 0, speedKmh: 0},
		leg{count: 4, dt: 60, speedKmh: 2, activity: "walking"},
	)
	class, err := NewDetector(models.DefaultUserSettings()).Detect(points)
	require.NoError(t, err)
	assertContiguous(t, class.Segments, len(points))

	var total int64
	for _, s := range class.Segments {
		total += s.Duration
		assert.GreaterOrEqual(t, s.Confidence, 0.0)
		assert.LessOrEqual(t, s.Confidence, 1.0)
	}
	assert.Equal(t, points[len(points)-1].Timestamp-points[0].Timestamp, total)
}

func TestDetectRejectsBadInput(t *testing.T) {
	d := NewDetector(models.DefaultUserSettings())

	points := route(leg{count: 3, dt: 60, speedKmh: 5})
	points[2].Timestamp = points[0].Timestamp - 1
	_, err := d.Detect(points)
	assert.ErrorIs(t, err, ErrUnorderedPoints)

	points = route(leg{count: 3, dt: 60, speedKmh: 5})
	points[1].Latitude = math.NaN()
	class, err := d.Detect(points)
	assert.ErrorIs(t, err, ErrInvalidCoordinates)
	assert.Equal(t, models.ModeUnknown, class.DominantMode)
}

func TestDominantMode(t *testing.T) {
	segments := []models.TrackSegment{
		{TransportationMode: models.ModeWalking, StartIndex: 0, EndIndex: 9, Duration: 600},
		{TransportationMode: models.ModeCycling, StartIndex: 10, EndIndex: 19, Duration: 1200},
	}
	assert.Equal(t, models.ModeCycling, DominantMode(segments))
	assert.Equal(t, models.ModeUnknown, DominantMode(nil))
}

func TestHintMode(t *testing.T) {
	mode, ok := HintMode(" ON_BICYCLE ")
	assert.True(t, ok)
	assert.Equal(t, models.ModeCycling, mode)

	_, ok = HintMode("tilting")
	assert.False(t, ok)
	_, ok = HintMode("")
	assert.False(t, ok)
}

func TestBandConfidence(t *testing.T) {
	assert.InDelta(t, 1.0, bandConfidence(5, 0, 10), 1e-9)
	assert.InDelta(t, 0.5, bandConfidence(10, 0, 10), 1e-9)
	assert.InDelta(t, 0.5, bandConfidence(220, 220, math.Inf(1)), 1e-9)
	assert.InDelta(t, 1.0, bandConfidence(900, 220, math.Inf(1)), 1e-9)
}

func TestBackfillContinuesPastFailures(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()

	good := route(leg{count: 6, dt: 60, speedKmh: 5})
	for i := range good {
		good[i].ID, good[i].UserID = 0, 1
	}
	good = st.AddPoints(good...)
	st.AddTrack(models.Track{UserID: 1, StartAt: good[0].Timestamp, EndAt: good[len(good)-1].Timestamp}, models.PointIDs(good))

	bad := route(leg{count: 3, dt: 60, speedKmh: 5})
	for i := range bad {
		bad[i].ID, bad[i].UserID = 0, 1
		bad[i].Timestamp += 100000
	}
	bad[1].Longitude = math.Inf(1)
	bad = st.AddPoints(bad...)
	badTrack := st.AddTrack(models.Track{UserID: 1, StartAt: bad[0].Timestamp, EndAt: bad[len(bad)-1].Timestamp, DominantMode: models.ModeDriving}, models.PointIDs(bad))

	a := analysis.GetAnalyzer(models.SkillTransportModeBackfill, analysis.Deps{Tracks: st, Settings: st})
	require.NotNil(t, a)
	res, err := a.Analyze(ctx, &models.Job{UserID: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 1, res.Failed)

	tracks := st.Tracks(1)
	require.Len(t, tracks, 2)
	assert.Equal(t, models.ModeWalking, tracks[0].DominantMode)
	assert.Equal(t, models.ModeUnknown, tracks[1].DominantMode)

	segs, err := st.ListSegments(ctx, badTrack.ID)
	require.NoError(t, err)
	assert.Empty(t, segs)
}
