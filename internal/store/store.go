// Package store declares the persistence contracts the assembly engine relies on.
// The sqlite implementation lives in internal/repository, an in-memory one in
// internal/store/memstore.
package store

import (
	"context"
	"errors"

	"github.com/jengzang/records-tracks-go/internal/models"
)

// ErrNotFound is returned by single-row reads when no row matches.
var ErrNotFound = errors.New("not found")

// PointQuery selects a user's points. Only points with coordinates and a
// timestamp are ever returned, ordered by timestamp ascending.
type PointQuery struct {
	UserID int64

	// From and To are inclusive timestamp bounds; nil means unbounded.
	From *int64
	To   *int64
	// After is an exclusive lower bound applied in addition to From.
	After *int64

	// UnassignedOnly restricts the result to points without a track.
	UnassignedOnly bool
}

// PointStore reads points and reassigns their ownership.
type PointStore interface {
	FindPoints(ctx context.Context, q PointQuery) ([]models.Point, error)
	// PointSpan returns the first and last timestamp among the points q
	// selects; ok is false when there are none.
	PointSpan(ctx context.Context, q PointQuery) (first, last int64, ok bool, err error)
}

// TrackTrim describes the outcome of trimming one track against a window.
// When Delete is false, Rebuilt holds the aggregates, path and dominant mode
// recomputed from the surviving points, and Segments replaces the segment set.
type TrackTrim struct {
	TrackID        int64
	DetachPointIDs []int64
	Delete         bool
	Rebuilt        models.Track
	Segments       []models.TrackSegment
}

// TrackStore persists tracks and their segments. Every mutating method is
// atomic: point assignment changes and track rows commit together or not at all.
type TrackStore interface {
	// TracksWithin returns tracks with start_at >= from and end_at <= to.
	// Either bound may be nil.
	TracksWithin(ctx context.Context, userID int64, from, to *int64) ([]models.Track, error)
	// TracksOverlapping returns tracks with start_at < end and end_at > start.
	TracksOverlapping(ctx context.Context, userID int64, start, end int64) ([]models.Track, error)
	// LatestTrack returns the track with the greatest end_at that overlaps
	// [start, end], or nil when there is none.
	LatestTrack(ctx context.Context, userID int64, start, end int64) (*models.Track, error)
	GetTrack(ctx context.Context, userID, trackID int64) (*models.Track, error)
	// TrackPoints returns the track's points ordered by timestamp.
	TrackPoints(ctx context.Context, trackID int64) ([]models.Point, error)

	// CreateTrack inserts the track, assigns the points to it and stores the
	// segments. The generated id is written back to track.ID.
	CreateTrack(ctx context.Context, track *models.Track, pointIDs []int64, segments []models.TrackSegment) error
	// DeleteTracks detaches all points of the given tracks and deletes them.
	DeleteTracks(ctx context.Context, userID int64, trackIDs []int64) error
	// ApplyTrim detaches points and either deletes the track or rewrites its
	// aggregates and segments from trim.Rebuilt.
	ApplyTrim(ctx context.Context, trim TrackTrim) error
	// ReplaceSegments swaps the segment set and dominant mode of a track.
	ReplaceSegments(ctx context.Context, trackID int64, dominantMode string, segments []models.TrackSegment) error
	ListSegments(ctx context.Context, trackID int64) ([]models.TrackSegment, error)
}

// VisitStore persists visits.
type VisitStore interface {
	// FindVisit returns the visit with the given identity key, or nil.
	FindVisit(ctx context.Context, key models.VisitKey) (*models.Visit, error)
	// SaveVisit inserts or updates the visit and makes pointIDs the exact set
	// of points attached to it, in one transaction. New ids are written back.
	SaveVisit(ctx context.Context, visit *models.Visit, pointIDs []int64) error
	ListVisits(ctx context.Context, userID int64, from, to *int64) ([]models.Visit, error)
	VisitPointIDs(ctx context.Context, visitID int64) ([]int64, error)
}

// GeofenceProvider supplies areas and places.
type GeofenceProvider interface {
	ListGeofences(ctx context.Context, userID int64) ([]models.Geofence, error)
}

// GeofenceStore is a GeofenceProvider that can also create geofences.
type GeofenceStore interface {
	GeofenceProvider
	CreateGeofence(ctx context.Context, g *models.Geofence) error
}

// SettingsProvider supplies per-user thresholds. Implementations return
// models.DefaultUserSettings for users without stored settings.
type SettingsProvider interface {
	UserSettings(ctx context.Context, userID int64) (models.UserSettings, error)
}

// SettingsStore is a SettingsProvider that can also persist settings.
type SettingsStore interface {
	SettingsProvider
	SaveUserSettings(ctx context.Context, userID int64, settings models.UserSettings) error
}

// JobStore persists recomputation jobs.
type JobStore interface {
	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id int64) (*models.Job, error)
	ListJobs(ctx context.Context, userID int64, status string, limit, offset int) ([]models.Job, error)
	MarkRunning(ctx context.Context, id int64) error
	MarkCompleted(ctx context.Context, id int64, processed, failed int, summary string) error
	MarkFailed(ctx context.Context, id int64, message string) error
	// PendingJobs returns pending jobs in creation order; used to requeue after a restart.
	PendingJobs(ctx context.Context) ([]models.Job, error)
}
