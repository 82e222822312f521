// Package tracks turns a user's ordered points into persisted tracks.
//
// A run is assembled from three interchangeable roles: a PointLoader picks the
// working set, a TrackCleaner clears tracks that would conflict with the ones
// about to be generated, and an IncompleteSegmentHandler decides what happens
// to the trailing, possibly still growing, run of points.
package tracks

import (
	"context"
	"fmt"
	"sort"

	"github.com/jengzang/records-tracks-go/internal/analysis"
	"github.com/jengzang/records-tracks-go/internal/buffer"
	"github.com/jengzang/records-tracks-go/internal/models"
	"github.com/jengzang/records-tracks-go/internal/store"
)

// PointLoader produces the ordered point working set of a run.
type PointLoader interface {
	Load(ctx context.Context) ([]models.Point, error)
}

// BulkLoader loads every usable point of a user in an optional range.
type BulkLoader struct {
	points  store.PointStore
	userID  int64
	startAt *int64
	endAt   *int64
}

// NewBulkLoader creates a loader for [startAt, endAt]; nil bounds are open.
func NewBulkLoader(points store.PointStore, userID int64, startAt, endAt *int64) *BulkLoader {
	return &BulkLoader{points: points, userID: userID, startAt: startAt, endAt: endAt}
}

// Load implements PointLoader.
func (l *BulkLoader) Load(ctx context.Context) ([]models.Point, error) {
	pts, err := l.points.FindPoints(ctx, store.PointQuery{UserID: l.userID, From: l.startAt, To: l.endAt})
	if err != nil {
		return nil, fmt.Errorf("failed to load points: %w", err)
	}
	return pts, nil
}

// IncrementalLoader merges the side-buffered run of a day with points that
// arrived since the day's last track.
type IncrementalLoader struct {
	points store.PointStore
	tracks store.TrackStore
	buf    buffer.Buffer
	userID int64
	day    string
}

// NewIncrementalLoader creates a loader for one user and UTC day.
func NewIncrementalLoader(points store.PointStore, tracks store.TrackStore, buf buffer.Buffer, userID int64, day string) *IncrementalLoader {
	return &IncrementalLoader{points: points, tracks: tracks, buf: buf, userID: userID, day: day}
}

// Load implements PointLoader. The buffer is read but never modified.
func (l *IncrementalLoader) Load(ctx context.Context) ([]models.Point, error) {
	dayStart, dayEnd, err := analysis.DayBounds(l.day)
	if err != nil {
		return nil, err
	}

	buffered, err := l.buf.Retrieve(ctx, l.userID, l.day)
	if err != nil {
		return nil, fmt.Errorf("failed to read side buffer: %w", err)
	}

	last, err := l.tracks.LatestTrack(ctx, l.userID, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to find last track: %w", err)
	}

	q := store.PointQuery{UserID: l.userID, UnassignedOnly: true}
	if last != nil {
		q.After = &last.EndAt
	} else {
		q.From, q.To = &dayStart, &dayEnd
	}
	fresh, err := l.points.FindPoints(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to load new points: %w", err)
	}

	return mergePoints(fresh, buffered), nil
}

type fixKey struct {
	ts       int64
	lat, lon float64
}

// mergePoints concatenates the sets, sorts by timestamp and keeps the first
// occurrence of every (timestamp, latitude, longitude).
func mergePoints(sets ...[]models.Point) []models.Point {
	var all []models.Point
	for _, s := range sets {
		all = append(all, s...)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Timestamp < all[j].Timestamp })

	seen := make(map[fixKey]struct{}, len(all))
	out := all[:0]
	for _, p := range all {
		k := fixKey{p.Timestamp, p.Latitude, p.Longitude}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, p)
	}
	return out
}
