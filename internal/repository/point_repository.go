package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jengzang/records-tracks-go/internal/database"
	"github.com/jengzang/records-tracks-go/internal/models"
	"github.com/jengzang/records-tracks-go/internal/store"
)

const pointColumns = `id, user_id, latitude, longitude, timestamp, accuracy, velocity, altitude, activity, track_id, visit_id`

// PointRepository handles database operations for GPS points
type PointRepository struct {
	db *sql.DB
}

var _ store.PointStore = (*PointRepository)(nil)

// NewPointRepository creates a new point repository
func NewPointRepository(db *sql.DB) *PointRepository {
	return &PointRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPoint(s scanner) (models.Point, error) {
	var (
		p                models.Point
		acc, vel, alt    sql.NullFloat64
		trackID, visitID sql.NullInt64
	)
	err := s.Scan(&p.ID, &p.UserID, &p.Latitude, &p.Longitude, &p.Timestamp,
		&acc, &vel, &alt, &p.Activity, &trackID, &visitID)
	if err != nil {
		return p, err
	}
	p.Accuracy = floatPtr(acc)
	p.Velocity = floatPtr(vel)
	p.Altitude = floatPtr(alt)
	p.TrackID = intPtr(trackID)
	p.VisitID = intPtr(visitID)
	return p, nil
}

func queryPoints(ctx context.Context, q querier, query string, args ...any) ([]models.Point, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query points: %w", err)
	}
	defer rows.Close()

	var points []models.Point
	for rows.Next() {
		p, err := scanPoint(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan point: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// pointFilter builds the WHERE clause shared by point reads.
func pointFilter(q store.PointQuery) (string, []interface{}) {
	conditions := []string{
		"user_id = ?",
		"latitude IS NOT NULL",
		"longitude IS NOT NULL",
		"timestamp IS NOT NULL",
	}
	args := []interface{}{q.UserID}

	if q.From != nil {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, *q.From)
	}
	if q.To != nil {
		conditions = append(conditions, "timestamp <= ?")
		args = append(args, *q.To)
	}
	if q.After != nil {
		conditions = append(conditions, "timestamp > ?")
		args = append(args, *q.After)
	}
	if q.UnassignedOnly {
		conditions = append(conditions, "track_id IS NULL")
	}
	return strings.Join(conditions, " AND "), args
}

// FindPoints returns the user's usable points matching q, ordered by timestamp.
func (r *PointRepository) FindPoints(ctx context.Context, q store.PointQuery) ([]models.Point, error) {
	where, args := pointFilter(q)
	query := "SELECT " + pointColumns + " FROM points WHERE " + where + " ORDER BY timestamp ASC, id ASC"
	return queryPoints(ctx, r.db, query, args...)
}

// PointSpan returns the timestamp range of the points matching q.
func (r *PointRepository) PointSpan(ctx context.Context, q store.PointQuery) (int64, int64, bool, error) {
	where, args := pointFilter(q)
	var first, last sql.NullInt64
	err := r.db.QueryRowContext(ctx, "SELECT MIN(timestamp), MAX(timestamp) FROM points WHERE "+where, args...).
		Scan(&first, &last)
	if err != nil {
		return 0, 0, false, fmt.Errorf("failed to query point span: %w", err)
	}
	if !first.Valid {
		return 0, 0, false, nil
	}
	return first.Int64, last.Int64, true, nil
}

// InsertPoints stores points in one transaction and writes generated ids back.
// Ingestion owns point creation; this is used by imports and tests.
func (r *PointRepository) InsertPoints(ctx context.Context, points []models.Point) error {
	return database.Transaction(ctx, r.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO points
			(user_id, latitude, longitude, timestamp, accuracy, velocity, altitude, activity, track_id, visit_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare point insert: %w", err)
		}
		defer stmt.Close()

		for i := range points {
			p := &points[i]
			res, err := stmt.ExecContext(ctx, p.UserID, p.Latitude, p.Longitude, p.Timestamp,
				p.Accuracy, p.Velocity, p.Altitude, p.Activity, p.TrackID, p.VisitID)
			if err != nil {
				return fmt.Errorf("failed to insert point: %w", err)
			}
			if p.ID, err = res.LastInsertId(); err != nil {
				return fmt.Errorf("failed to get last insert id: %w", err)
			}
		}
		return nil
	})
}
