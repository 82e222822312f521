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

const visitColumns = `v.id, v.user_id, v.geofence_id, v.geofence_kind, v.started_at, v.ended_at,
	v.duration, v.name, v.status, v.created_at, v.updated_at`

// VisitRepository handles database operations for visits
type VisitRepository struct {
	db *sql.DB
}

var _ store.VisitStore = (*VisitRepository)(nil)

// NewVisitRepository creates a new visit repository
func NewVisitRepository(db *sql.DB) *VisitRepository {
	return &VisitRepository{db: db}
}

func scanVisit(s scanner, extra ...any) (models.Visit, error) {
	var v models.Visit
	dest := []any{&v.ID, &v.UserID, &v.GeofenceID, &v.GeofenceKind, &v.StartedAt, &v.EndedAt,
		&v.Duration, &v.Name, &v.Status, &v.CreatedAt, &v.UpdatedAt}
	err := s.Scan(append(dest, extra...)...)
	return v, err
}

// FindVisit looks a visit up by its identity key. Returns nil, nil when absent.
func (r *VisitRepository) FindVisit(ctx context.Context, key models.VisitKey) (*models.Visit, error) {
	query := "SELECT " + visitColumns + ` FROM visits v
		WHERE v.geofence_kind = ? AND v.geofence_id = ? AND v.user_id = ? AND v.started_at = ?`
	v, err := scanVisit(r.db.QueryRowContext(ctx, query, key.GeofenceKind, key.GeofenceID, key.UserID, key.StartedAt))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find visit: %w", err)
	}
	return &v, nil
}

// SaveVisit upserts the visit and makes pointIDs its exact point set, in one transaction.
func (r *VisitRepository) SaveVisit(ctx context.Context, visit *models.Visit, pointIDs []int64) error {
	return database.Transaction(ctx, r.db, func(tx *sql.Tx) error {
		now := time.Now().UTC()
		if visit.ID == 0 {
			res, err := tx.ExecContext(ctx, `INSERT INTO visits (
					user_id, geofence_id, geofence_kind, started_at, ended_at, duration, name, status, created_at, updated_at
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				visit.UserID, visit.GeofenceID, visit.GeofenceKind, visit.StartedAt, visit.EndedAt,
				visit.Duration, visit.Name, visit.Status, now, now)
			if err != nil {
				return fmt.Errorf("failed to create visit: %w", err)
			}
			if visit.ID, err = res.LastInsertId(); err != nil {
				return fmt.Errorf("failed to get last insert id: %w", err)
			}
			visit.CreatedAt = now
		} else {
			_, err := tx.ExecContext(ctx, `UPDATE visits
				SET ended_at = ?, duration = ?, name = ?, status = ?, updated_at = ?
				WHERE id = ?`,
				visit.EndedAt, visit.Duration, visit.Name, visit.Status, now, visit.ID)
			if err != nil {
				return fmt.Errorf("failed to update visit: %w", err)
			}
		}
		visit.UpdatedAt = now

		current, err := visitPointIDs(ctx, tx, visit.ID)
		if err != nil {
			return err
		}
		stale, added := diffIDs(current, pointIDs)
		if err := execChunked(ctx, tx, "UPDATE points SET visit_id = NULL WHERE visit_id = ? AND id IN (%s)", stale, visit.ID); err != nil {
			return fmt.Errorf("failed to detach visit points: %w", err)
		}
		if err := execChunked(ctx, tx, "UPDATE points SET visit_id = ? WHERE id IN (%s)", added, visit.ID); err != nil {
			return fmt.Errorf("failed to assign visit points: %w", err)
		}
		return nil
	})
}

// diffIDs splits the change from current to want into ids to drop and ids to add.
func diffIDs(current, want []int64) (stale, added []int64) {
	keep := make(map[int64]bool, len(want))
	for _, id := range want {
		keep[id] = true
	}
	had := make(map[int64]bool, len(current))
	for _, id := range current {
		had[id] = true
		if !keep[id] {
			stale = append(stale, id)
		}
	}
	for _, id := range want {
		if !had[id] {
			added = append(added, id)
			had[id] = true
		}
	}
	return stale, added
}

// ListVisits returns the user's visits intersecting the optional bounds.
func (r *VisitRepository) ListVisits(ctx context.Context, userID int64, from, to *int64) ([]models.Visit, error) {
	conditions := []string{"v.user_id = ?"}
	args := []interface{}{userID}
	if from != nil {
		conditions = append(conditions, "v.ended_at >= ?")
		args = append(args, *from)
	}
	if to != nil {
		conditions = append(conditions, "v.started_at <= ?")
		args = append(args, *to)
	}

	query := "SELECT " + visitColumns + `, (SELECT COUNT(*) FROM points p WHERE p.visit_id = v.id)
		FROM visits v WHERE ` + strings.Join(conditions, " AND ") + " ORDER BY v.started_at ASC, v.id ASC"
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list visits: %w", err)
	}
	defer rows.Close()

	var visits []models.Visit
	for rows.Next() {
		var count int
		v, err := scanVisit(rows, &count)
		if err != nil {
			return nil, fmt.Errorf("failed to scan visit: %w", err)
		}
		v.PointCount = count
		visits = append(visits, v)
	}
	return visits, rows.Err()
}

// VisitPointIDs returns the ids of points attached to a visit.
func (r *VisitRepository) VisitPointIDs(ctx context.Context, visitID int64) ([]int64, error) {
	return visitPointIDs(ctx, r.db, visitID)
}

func visitPointIDs(ctx context.Context, q querier, visitID int64) ([]int64, error) {
	rows, err := q.QueryContext(ctx, "SELECT id FROM points WHERE visit_id = ? ORDER BY id", visitID)
	if err != nil {
		return nil, fmt.Errorf("failed to query visit points: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan point id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
