// Package visits clusters points near an area or place into visits.
package visits

import (
	"fmt"
	"sort"
	"time"

	"github.com/jengzang/records-tracks-go/internal/models"
)

// Group is one candidate visit: a time-range label and its ordered points.
type Group struct {
	Label  string
	Points []models.Point
}

// Grouper clusters candidate points of a single geofence by time.
type Grouper struct {
	timeThreshold  int64 // seconds
	mergeThreshold int64 // seconds
}

// NewGrouper creates a grouper from the user's visit thresholds.
func NewGrouper(settings models.UserSettings) *Grouper {
	s := settings.WithDefaults()
	return &Grouper{
		timeThreshold:  int64(s.TimeThresholdMinutes * 60),
		mergeThreshold: int64(s.MergeThresholdMinutes * 60),
	}
}

// Group clusters points into visits. Points are sorted by timestamp unless
// sorted is true. Clusters are built per UTC month; a cluster grows while the
// gap to the next point stays within the time threshold. Consecutive clusters
// whose boundary gap is within the merge threshold are then joined, including
// across month boundaries. Clusters spanning no time are not visits.
func (g *Grouper) Group(points []models.Point, sorted bool) []Group {
	if len(points) == 0 {
		return nil
	}
	if !sorted {
		points = append([]models.Point(nil), points...)
		sort.SliceStable(points, func(i, j int) bool { return points[i].Timestamp < points[j].Timestamp })
	}

	acc := g.Accumulate()
	var groups []Group
	for _, month := range byMonth(points) {
		groups = append(groups, acc.Add(month)...)
	}
	return append(groups, acc.Flush()...)
}

// Accumulator groups one month of points at a time. The last cluster stays
// open until a later month proves it cannot merge with what follows.
type Accumulator struct {
	g    *Grouper
	open []models.Point
}

// Accumulate starts a streaming grouping.
func (g *Grouper) Accumulate() *Accumulator {
	return &Accumulator{g: g}
}

// Add feeds the next month's sorted points and returns the groups that closed.
// Months must be fed in order.
func (a *Accumulator) Add(month []models.Point) []Group {
	if len(month) == 0 {
		return nil
	}
	var closed []Group
	for _, c := range a.g.cluster(month) {
		if a.open != nil && c[0].Timestamp-a.open[len(a.open)-1].Timestamp <= a.g.mergeThreshold {
			a.open = append(a.open, c...)
			continue
		}
		closed = appendGroup(closed, a.open)
		a.open = append([]models.Point(nil), c...)
	}
	return closed
}

// Flush closes the open cluster.
func (a *Accumulator) Flush() []Group {
	out := appendGroup(nil, a.open)
	a.open = nil
	return out
}

func appendGroup(groups []Group, c []models.Point) []Group {
	if len(c) == 0 {
		return groups
	}
	first, last := c[0].Timestamp, c[len(c)-1].Timestamp
	if first == last {
		return groups
	}
	return append(groups, Group{Label: Label(first, last), Points: c})
}

func byMonth(points []models.Point) [][]models.Point {
	var parts [][]models.Point
	start := 0
	for i := 1; i < len(points); i++ {
		if monthOf(points[i].Timestamp) != monthOf(points[i-1].Timestamp) {
			parts = append(parts, points[start:i])
			start = i
		}
	}
	return append(parts, points[start:])
}

func monthOf(ts int64) string {
	return time.Unix(ts, 0).UTC().Format("2006-01")
}

func (g *Grouper) cluster(points []models.Point) [][]models.Point {
	var out [][]models.Point
	start := 0
	for i := 1; i < len(points); i++ {
		if points[i].Timestamp-points[i-1].Timestamp > g.timeThreshold {
			out = append(out, points[start:i])
			start = i
		}
	}
	return append(out, points[start:])
}

// Label formats a visit's time range, e.g. "2024-03-10 08:00 - 10:30" or
// "2024-03-10 23:00 - 2024-03-11 01:00" when it crosses midnight (UTC).
func Label(startedAt, endedAt int64) string {
	s, e := time.Unix(startedAt, 0).UTC(), time.Unix(endedAt, 0).UTC()
	if s.Format(models.DayLayout) == e.Format(models.DayLayout) {
		return fmt.Sprintf("%s - %s", s.Format("2006-01-02 15:04"), e.Format("15:04"))
	}
	return fmt.Sprintf("%s - %s", s.Format("2006-01-02 15:04"), e.Format("2006-01-02 15:04"))
}
