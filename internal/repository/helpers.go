package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func intPtr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	i := v.Int64
	return &i
}

// placeholders returns "?, ?, ?" for n values.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func int64Args(ids []int64) []interface{} {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// chunkSize keeps IN lists well below sqlite's variable limit.
const chunkSize = 500

// execChunked runs query once per chunk of ids. query must contain a single
// %s where the placeholder list goes; prefix args are bound before the ids.
func execChunked(ctx context.Context, q querier, query string, ids []int64, prefix ...interface{}) error {
	for start := 0; start < len(ids); start += chunkSize {
		end := start + chunkSize
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]
		args := append(append([]interface{}{}, prefix...), int64Args(chunk)...)
		if _, err := q.ExecContext(ctx, fmt.Sprintf(query, placeholders(len(chunk))), args...); err != nil {
			return err
		}
	}
	return nil
}
