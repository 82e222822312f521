package visits

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengzang/records-tracks-go/internal/analysis"
	"github.com/jengzang/records-tracks-go/internal/models"
	"github.com/jengzang/records-tracks-go/internal/store"
	"github.com/jengzang/records-tracks-go/internal/store/memstore"
)

const (
	userID   = int64(3)
	midnight = int64(1710028800) // 2024-03-10T00:00:00Z
	april    = int64(1711929600) // 2024-04-01T00:00:00Z
	may      = int64(1714521600) // 2024-05-01T00:00:00Z
	minute   = int64(60)
)

var home = models.Geofence{ID: 1, UserID: userID, Kind: models.GeofenceArea, Name: "Home", Latitude: 23.13, Longitude: 113.26, Radius: 100}

func at(offsets ...int64) []models.Point {
	out := make([]models.Point, len(offsets))
	for i, off := range offsets {
		out[i] = models.Point{UserID: userID, Latitude: home.Latitude, Longitude: home.Longitude, Timestamp: off}
	}
	return out
}

func minutes(base int64, mins ...int64) []int64 {
	out := make([]int64, len(mins))
	for i, m := range mins {
		out[i] = base + m*minute
	}
	return out
}

func TestGroupSingleVisit(t *testing.T) {
	groups := NewGrouper(models.UserSettings{}).Group(at(minutes(midnight+8*3600, 0, 5, 10)...), true)
	require.Len(t, groups, 1)
	assert.Len(t, groups[0].Points, 3)
	assert.Equal(t, "2024-03-10 08:00 - 08:10", groups[0].Label)
}

func TestGroupThresholds(t *testing.T) {
	tests := []struct {
		name     string
		settings models.UserSettings
		offsets  []int64
		want     []int
	}{
		{
			name:    "gap beyond both thresholds splits",
			offsets: []int64{0, 10, 90, 100},
			want:    []int{2, 2},
		},
		{
			name:     "merge threshold larger than time threshold joins",
			settings: models.UserSettings{TimeThresholdMinutes: 10, MergeThresholdMinutes: 60},
			offsets:  []int64{0, 5, 30, 35},
			want:     []int{4},
		},
		{
			name:     "merge threshold smaller than time threshold keeps split",
			settings: models.UserSettings{TimeThresholdMinutes: 10, MergeThresholdMinutes: 5},
			offsets:  []int64{0, 5, 30, 35},
			want:     []int{2, 2},
		},
		{
			name:    "instantaneous cluster is not a visit",
			offsets: []int64{0, 120, 125},
			want:    []int{2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			groups := NewGrouper(tt.settings).Group(at(minutes(midnight, tt.offsets...)...), true)
			sizes := make([]int, len(groups))
			for i, g := range groups {
				sizes[i] = len(g.Points)
			}
			assert.Equal(t, tt.want, sizes)
		})
	}
}

func TestGroupAcrossMonthBoundary(t *testing.T) {
	groups := NewGrouper(models.UserSettings{}).Group(at(minutes(april, -10, -5, 0, 5)...), true)
	require.Len(t, groups, 1)
	assert.Len(t, groups[0].Points, 4)
	assert.Equal(t, "2024-03-31 23:50 - 2024-04-01 00:05", groups[0].Label)
}

func TestGroupSortsUnlessTold(t *testing.T) {
	points := at(minutes(midnight, 10, 0, 5)...)
	groups := NewGrouper(models.UserSettings{}).Group(points, false)
	require.Len(t, groups, 1)
	assert.Equal(t, midnight, groups[0].Points[0].Timestamp)
	assert.Equal(t, midnight+10*minute, groups[0].Points[2].Timestamp)
	assert.Equal(t, midnight+10*minute, points[0].Timestamp, "input is not reordered")

	assert.Nil(t, NewGrouper(models.UserSettings{}).Group(nil, false))
}

func TestPersistCreatesVisit(t *testing.T) {
	st := memstore.New()
	pts := st.AddPoints(at(minutes(midnight, 0, 5, 10)...)...)
	groups := NewGrouper(models.UserSettings{}).Group(pts, true)

	saved, err := NewPersister(st).Persist(context.Background(), userID, home, groups)
	require.NoError(t, err)
	require.Len(t, saved, 1)

	v := saved[0]
	assert.Equal(t, midnight, v.StartedAt)
	assert.Equal(t, midnight+10*minute, v.EndedAt)
	assert.Equal(t, int64(10), v.Duration)
	assert.Equal(t, models.VisitSuggested, v.Status)
	assert.Equal(t, "Home (2024-03-10 00:00 - 00:10)", v.Name)

	ids, err := st.VisitPointIDs(context.Background(), v.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, models.PointIDs(pts), ids)
}

func TestPersistDetachesStalePoints(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()
	pts := st.AddPoints(at(minutes(midnight, 0, 5, 10)...)...)
	p := NewPersister(st)

	_, err := p.Persist(ctx, userID, home, []Group{{Label: "a", Points: pts}})
	require.NoError(t, err)
	saved, err := p.Persist(ctx, userID, home, []Group{{Label: "b", Points: pts[:2]}})
	require.NoError(t, err)

	require.Len(t, st.Visits(userID), 1)
	ids, err := st.VisitPointIDs(ctx, saved[0].ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, models.PointIDs(pts[:2]), ids)
	assert.Equal(t, int64(5), saved[0].Duration)
}

func TestPersistRollsBackOnWriteFailure(t *testing.T) {
	st := memstore.New()
	pts := st.AddPoints(at(minutes(midnight, 0, 5)...)...)
	st.FailNextWrite = assert.AnError

	_, err := NewPersister(st).Persist(context.Background(), userID, home, []Group{{Label: "x", Points: pts}})
	require.ErrorIs(t, err, assert.AnError)
	assert.Empty(t, st.Visits(userID))
	p, _ := st.Point(pts[0].ID)
	assert.Nil(t, p.VisitID)
}

func TestVisitDetectionIsIdempotent(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()
	st.AddGeofence(home)
	st.AddGeofence(models.Geofence{UserID: userID, Kind: models.GeofencePlace, Name: "Cafe", Latitude: 23.2, Longitude: 113.3, Radius: 50})

	inside := st.AddPoints(at(minutes(midnight, 0, 5, 10, 120, 130)...)...)
	away := at(minutes(midnight, 60)...)
	away[0].Latitude += 0.01
	st.AddPoints(away...)

	analyzer := analysis.GetAnalyzer(models.SkillVisitDetection, analysis.Deps{Points: st, Visits: st, Geofences: st, Settings: st})
	require.NotNil(t, analyzer)

	var first []int64
	for pass := 0; pass < 2; pass++ {
		res, err := analyzer.Analyze(ctx, &models.Job{UserID: userID, Skill: models.SkillVisitDetection})
		require.NoError(t, err)
		assert.Equal(t, 2, res.Processed)
		assert.Equal(t, 5, res.Summary["points_attached"])

		visits := st.Visits(userID)
		require.Len(t, visits, 2)
		var attached []int64
		for _, v := range visits {
			ids, err := st.VisitPointIDs(ctx, v.ID)
			require.NoError(t, err)
			attached = append(attached, ids...)
		}
		if pass == 0 {
			first = attached
		}
		assert.ElementsMatch(t, first, attached)
	}
	assert.ElementsMatch(t, models.PointIDs(inside), first)
}

func TestVisitDetectionWithoutGeofences(t *testing.T) {
	st := memstore.New()
	analyzer := NewVisitDetectionAnalyzer(analysis.Deps{Points: st, Visits: st, Geofences: st, Settings: st})
	res, err := analyzer.Analyze(context.Background(), &models.Job{UserID: userID})
	require.NoError(t, err)
	assert.Zero(t, res.Processed)
}

// countingPoints records every point query made against the store.
type countingPoints struct {
	*memstore.Store
	queries []store.PointQuery
}

func (c *countingPoints) FindPoints(ctx context.Context, q store.PointQuery) ([]models.Point, error) {
	c.queries = append(c.queries, q)
	return c.Store.FindPoints(ctx, q)
}

func TestVisitDetectionQueriesOneMonthAtATime(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()
	st.AddGeofence(home)

	st.AddPoints(at(minutes(midnight, 0, 5, 10)...)...)
	boundary := st.AddPoints(at(minutes(april, -10, -5, 0, 5)...)...)
	st.AddPoints(at(minutes(may, 0, 5)...)...)

	points := &countingPoints{Store: st}
	analyzer := NewVisitDetectionAnalyzer(analysis.Deps{Points: points, Visits: st, Geofences: st, Settings: st})
	start, end := midnight, may+3600
	res, err := analyzer.Analyze(ctx, &models.Job{UserID: userID, StartAt: &start, EndAt: &end})
	require.NoError(t, err)

	require.Len(t, points.queries, 3, "one query per calendar month")
	wantFrom := []int64{midnight, april, may}
	wantTo := []int64{april - 1, may - 1, end}
	for i, q := range points.queries {
		require.NotNil(t, q.From)
		require.NotNil(t, q.To)
		assert.Equal(t, wantFrom[i], *q.From, "query %d", i)
		assert.Equal(t, wantTo[i], *q.To, "query %d", i)
	}
	assert.Equal(t, 3, res.Summary["months"])
	assert.Equal(t, 9, res.Summary["points_scanned"])

	assert.Equal(t, 3, res.Processed)
	visits := st.Visits(userID)
	require.Len(t, visits, 3)
	var merged *models.Visit
	for i := range visits {
		if visits[i].StartedAt == boundary[0].Timestamp {
			merged = &visits[i]
		}
	}
	require.NotNil(t, merged, "the visit split by the month boundary is joined")
	assert.Equal(t, boundary[3].Timestamp, merged.EndedAt)
	ids, err := st.VisitPointIDs(ctx, merged.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, models.PointIDs(boundary), ids)
}

func TestAccumulatorKeepsLastClusterOpen(t *testing.T) {
	g := NewGrouper(models.UserSettings{})

	acc := g.Accumulate()
	closed := acc.Add(at(minutes(midnight, 0, 5, 90, 95)...))
	require.Len(t, closed, 1, "a cluster followed by a far gap closes")
	assert.Equal(t, midnight, closed[0].Points[0].Timestamp)

	closed = acc.Add(at(minutes(april, 0, 5)...))
	require.Len(t, closed, 1)
	assert.Equal(t, midnight+90*minute, closed[0].Points[0].Timestamp)

	acc = g.Accumulate()
	assert.Empty(t, acc.Add(at(minutes(april, -10, -5)...)))
	assert.Empty(t, acc.Add(at(minutes(april, 0, 5)...)), "a cluster within the merge gap stays open")
	flushed := acc.Flush()
	require.Len(t, flushed, 1)
	assert.Len(t, flushed[0].Points, 4)
	assert.Empty(t, acc.Flush())
}
