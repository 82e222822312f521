package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jengzang/records-tracks-go/internal/database"
	"github.com/jengzang/records-tracks-go/internal/models"
	"github.com/jengzang/records-tracks-go/internal/store"
)

const trackColumns = `t.id, t.user_id, t.start_at, t.end_at, t.distance, t.duration, t.avg_speed,
	t.elevation_gain, t.elevation_loss, t.elevation_max, t.elevation_min,
	t.dominant_mode, t.path, t.created_at, t.updated_at,
	(SELECT COUNT(*) FROM points p WHERE p.track_id = t.id)`

const segmentColumns = `id, track_id, transportation_mode, start_index, end_index, distance, duration,
	avg_speed, max_speed, avg_acceleration, confidence, source`

// TrackRepository handles database operations for tracks and their segments
type TrackRepository struct {
	db *sql.DB
}

var _ store.TrackStore = (*TrackRepository)(nil)

// NewTrackRepository creates a new track repository
func NewTrackRepository(db *sql.DB) *TrackRepository {
	return &TrackRepository{db: db}
}

func scanTrack(s scanner) (models.Track, error) {
	var t models.Track
	err := s.Scan(&t.ID, &t.UserID, &t.StartAt, &t.EndAt, &t.Distance, &t.Duration, &t.AvgSpeed,
		&t.ElevationGain, &t.ElevationLoss, &t.ElevationMax, &t.ElevationMin,
		&t.DominantMode, &t.Path, &t.CreatedAt, &t.UpdatedAt, &t.PointCount)
	return t, err
}

func (r *TrackRepository) queryTracks(ctx context.Context, where string, args ...interface{}) ([]models.Track, error) {
	query := "SELECT " + trackColumns + " FROM tracks t WHERE " + where + " ORDER BY t.start_at ASC, t.id ASC"
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracks: %w", err)
	}
	defer rows.Close()

	var tracks []models.Track
	for rows.Next() {
		t, err := scanTrack(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan track: %w", err)
		}
		tracks = append(tracks, t)
	}
	return tracks, rows.Err()
}

// TracksWithin returns tracks fully inside the optional bounds.
func (r *TrackRepository) TracksWithin(ctx context.Context, userID int64, from, to *int64) ([]models.Track, error) {
	conditions := []string{"t.user_id = ?"}
	args := []interface{}{userID}
	if from != nil {
		conditions = append(conditions, "t.start_at >= ?")
		args = append(args, *from)
	}
	if to != nil {
		conditions = append(conditions, "t.end_at <= ?")
		args = append(args, *to)
	}
	return r.queryTracks(ctx, strings.Join(conditions, " AND "), args...)
}

// TracksOverlapping returns tracks intersecting (start, end).
func (r *TrackRepository) TracksOverlapping(ctx context.Context, userID int64, start, end int64) ([]models.Track, error) {
	return r.queryTracks(ctx, "t.user_id = ? AND t.start_at < ? AND t.end_at > ?", userID, end, start)
}

// LatestTrack returns the track touching [start, end] with the greatest end_at.
func (r *TrackRepository) LatestTrack(ctx context.Context, userID int64, start, end int64) (*models.Track, error) {
	query := "SELECT " + trackColumns + ` FROM tracks t
		WHERE t.user_id = ? AND t.start_at <= ? AND t.end_at >= ?
		ORDER BY t.end_at DESC, t.id DESC LIMIT 1`
	t, err := scanTrack(r.db.QueryRowContext(ctx, query, userID, end, start))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest track: %w", err)
	}
	return &t, nil
}

// GetTrack returns one of the user's tracks with its segments.
func (r *TrackRepository) GetTrack(ctx context.Context, userID, trackID int64) (*models.Track, error) {
	query := "SELECT " + trackColumns + " FROM tracks t WHERE t.id = ? AND t.user_id = ?"
	t, err := scanTrack(r.db.QueryRowContext(ctx, query, trackID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get track: %w", err)
	}
	if t.Segments, err = r.ListSegments(ctx, t.ID); err != nil {
		return nil, err
	}
	return &t, nil
}

// TrackPoints returns the track's points ordered by timestamp.
func (r *TrackRepository) TrackPoints(ctx context.Context, trackID int64) ([]models.Point, error) {
	query := "SELECT " + pointColumns + " FROM points WHERE track_id = ? ORDER BY timestamp ASC, id ASC"
	return queryPoints(ctx, r.db, query, trackID)
}

// CreateTrack inserts a track, claims its points and stores its segments atomically.
func (r *TrackRepository) CreateTrack(ctx context.Context, track *models.Track, pointIDs []int64, segments []models.TrackSegment) error {
	return database.Transaction(ctx, r.db, func(tx *sql.Tx) error {
		now := time.Now().UTC()
		res, err := tx.ExecContext(ctx, `INSERT INTO tracks (
				user_id, start_at, end_at, distance, duration, avg_speed,
				elevation_gain, elevation_loss, elevation_max, elevation_min,
				dominant_mode, path, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			track.UserID, track.StartAt, track.EndAt, track.Distance, track.Duration, track.AvgSpeed,
			track.ElevationGain, track.ElevationLoss, track.ElevationMax, track.ElevationMin,
			track.DominantMode, track.Path, now, now,
		)
		if err != nil {
			return fmt.Errorf("failed to create track: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}

		if err := execChunked(ctx, tx, "UPDATE points SET track_id = ? WHERE id IN (%s)", pointIDs, id); err != nil {
			return fmt.Errorf("failed to assign points to track: %w", err)
		}
		if err := insertSegments(ctx, tx, id, segments); err != nil {
			return err
		}

		track.ID = id
		track.CreatedAt, track.UpdatedAt = now, now
		return nil
	})
}

func insertSegments(ctx context.Context, tx *sql.Tx, trackID int64, segments []models.TrackSegment) error {
	for _, s := range segments {
		_, err := tx.ExecContext(ctx, `INSERT INTO track_segments (
				track_id, transportation_mode, start_index, end_index, distance, duration,
				avg_speed, max_speed, avg_acceleration, confidence, source
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			trackID, s.TransportationMode, s.StartIndex, s.EndIndex, s.Distance, s.Duration,
			s.AvgSpeed, s.MaxSpeed, s.AvgAcceleration, s.Confidence, s.Source,
		)
		if err != nil {
			return fmt.Errorf("failed to insert track segment: %w", err)
		}
	}
	return nil
}

// DeleteTracks detaches the tracks' points and deletes them in one transaction.
func (r *TrackRepository) DeleteTracks(ctx context.Context, userID int64, trackIDs []int64) error {
	if len(trackIDs) == 0 {
		return nil
	}
	return database.Transaction(ctx, r.db, func(tx *sql.Tx) error {
		if err := execChunked(ctx, tx, "UPDATE points SET track_id = NULL WHERE user_id = ? AND track_id IN (%s)", trackIDs, userID); err != nil {
			return fmt.Errorf("failed to detach track points: %w", err)
		}
		if err := execChunked(ctx, tx, "DELETE FROM track_segments WHERE track_id IN (%s)", trackIDs); err != nil {
			return fmt.Errorf("failed to delete track segments: %w", err)
		}
		if err := execChunked(ctx, tx, "DELETE FROM tracks WHERE user_id = ? AND id IN (%s)", trackIDs, userID); err != nil {
			return fmt.Errorf("failed to delete tracks: %w", err)
		}
		return nil
	})
}

// ApplyTrim detaches points from a track and deletes or rewrites it atomically.
func (r *TrackRepository) ApplyTrim(ctx context.Context, trim store.TrackTrim) error {
	return database.Transaction(ctx, r.db, func(tx *sql.Tx) error {
		if err := execChunked(ctx, tx, "UPDATE points SET track_id = NULL WHERE track_id = ? AND id IN (%s)", trim.DetachPointIDs, trim.TrackID); err != nil {
			return fmt.Errorf("failed to detach points: %w", err)
		}

		if trim.Delete {
			if _, err := tx.ExecContext(ctx, "UPDATE points SET track_id = NULL WHERE track_id = ?", trim.TrackID); err != nil {
				return fmt.Errorf("failed to detach remaining points: %w", err)
			}
			if _, err := tx.ExecContext(ctx, "DELETE FROM track_segments WHERE track_id = ?", trim.TrackID); err != nil {
				return fmt.Errorf("failed to delete track segments: %w", err)
			}
			if _, err := tx.ExecContext(ctx, "DELETE FROM tracks WHERE id = ?", trim.TrackID); err != nil {
				return fmt.Errorf("failed to delete track: %w", err)
			}
			return nil
		}

		t := trim.Rebuilt
		res, err := tx.ExecContext(ctx, `UPDATE tracks SET
				start_at = ?, end_at = ?, distance = ?, duration = ?, avg_speed = ?,
				elevation_gain = ?, elevation_loss = ?, elevation_max = ?, elevation_min = ?,
				dominant_mode = ?, path = ?, updated_at = ?
			WHERE id = ?`,
			t.StartAt, t.EndAt, t.Distance, t.Duration, t.AvgSpeed,
			t.ElevationGain, t.ElevationLoss, t.ElevationMax, t.ElevationMin,
			t.DominantMode, t.Path, time.Now().UTC(), trim.TrackID)
		if err != nil {
			return fmt.Errorf("failed to update trimmed track: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return store.ErrNotFound
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM track_segments WHERE track_id = ?", trim.TrackID); err != nil {
			return fmt.Errorf("failed to delete track segments: %w", err)
		}
		return insertSegments(ctx, tx, trim.TrackID, trim.Segments)
	})
}

// ReplaceSegments swaps a track's segment set and dominant mode.
func (r *TrackRepository) ReplaceSegments(ctx context.Context, trackID int64, dominantMode string, segments []models.TrackSegment) error {
	return database.Transaction(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "UPDATE tracks SET dominant_mode = ?, updated_at = ? WHERE id = ?",
			dominantMode, time.Now().UTC(), trackID)
		if err != nil {
			return fmt.Errorf("failed to update dominant mode: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return store.ErrNotFound
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM track_segments WHERE track_id = ?", trackID); err != nil {
			return fmt.Errorf("failed to delete track segments: %w", err)
		}
		return insertSegments(ctx, tx, trackID, segments)
	})
}

// ListSegments returns a track's segments ordered by start index.
func (r *TrackRepository) ListSegments(ctx context.Context, trackID int64) ([]models.TrackSegment, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+segmentColumns+" FROM track_segments WHERE track_id = ? ORDER BY start_index ASC", trackID)
	if err != nil {
		return nil, fmt.Errorf("failed to query track segments: %w", err)
	}
	defer rows.Close()

	var segments []models.TrackSegment
	for rows.Next() {
		var s models.TrackSegment
		if err := rows.Scan(&s.ID, &s.TrackID, &s.TransportationMode, &s.StartIndex, &s.EndIndex,
			&s.Distance, &s.Duration, &s.AvgSpeed, &s.MaxSpeed, &s.AvgAcceleration,
			&s.Confidence, &s.Source); err != nil {
			return nil, fmt.Errorf("failed to scan track segment: %w", err)
		}
		segments = append(segments, s)
	}
	return segments, rows.Err()
}
