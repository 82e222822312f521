package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAndMigrate(t *testing.T) {
	conn, err := Open(Config{Path: filepath.Join(t.TempDir(), "nested", "tracks.db")})
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, Migrate(conn))
	require.NoError(t, Migrate(conn), "second run is a no-op")

	version, dirty, err := MigrateVersion(conn)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)

	for _, table := range []string{"points", "tracks", "track_segments", "visits", "geofences", "user_settings", "jobs"} {
		var name string
		err := conn.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		assert.NoError(t, err, table)
	}
}

func TestTransactionRollsBack(t *testing.T) {
	conn, err := Open(Config{Path: filepath.Join(t.TempDir(), "tx.db")})
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, Migrate(conn))

	ctx := context.Background()
	boom := errors.New("boom")
	err = Transaction(ctx, conn, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`INSERT INTO tracks (user_id, start_at, end_at) VALUES (1, 0, 10)`); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var n int
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM tracks`).Scan(&n))
	assert.Zero(t, n)
}
