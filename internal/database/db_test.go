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

func openRuns(t *testing.T) *DB {
	t.Helper()
	db, err := New(Config{Path: filepath.Join(t.TempDir(), "runs.db"), Name: "runs"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrate_CreatesRunTables(t *testing.T) {
	db := openRuns(t)
	require.NoError(t, db.Migrate())
	// Idempotent.
	require.NoError(t, db.Migrate())

	for _, table := range []string{"runs", "evolution_log", "feedback_log"} {
		var name string
		err := db.Conn().QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		require.NoError(t, err, table)
		assert.Equal(t, table, name)
	}
	assert.Equal(t, ProfileStandard, db.Profile())
	assert.NoError(t, db.HealthCheck(context.Background()))
}

func TestNew_ProfilePragmas(t *testing.T) {
	tests := []struct {
		profile     DatabaseProfile
		synchronous int
	}{
		{ProfileLedger, 2},
		{ProfileStandard, 1},
		{ProfileCache, 0},
	}
	for _, tt := range tests {
		t.Run(string(tt.profile), func(t *testing.T) {
			db, err := New(Config{Path: filepath.Join(t.TempDir(), "p.db"), Profile: tt.profile, Name: "runs"})
			require.NoError(t, err)
			defer db.Close()

			assert.Equal(t, tt.profile, db.Profile())
			var synchronous int
			require.NoError(t, db.Conn().QueryRow("PRAGMA synchronous").Scan(&synchronous))
			assert.Equal(t, tt.synchronous, synchronous)
			require.NoError(t, db.Migrate())
		})
	}
}

func TestMigrate_UnknownNameIsNoop(t *testing.T) {
	db, err := New(Config{Path: filepath.Join(t.TempDir(), "x.db"), Name: "scratch"})
	require.NoError(t, err)
	defer db.Close()
	assert.NoError(t, db.Migrate())
}

func TestWithTransaction(t *testing.T) {
	db := openRuns(t)
	require.NoError(t, db.Migrate())

	insert := func(tx *sql.Tx, id string) error {
		_, err := tx.Exec(`INSERT INTO runs (id, backend, status, problem_json, created_at) VALUES (?, 'exact', 'pending', '{}', 0)`, id)
		return err
	}

	require.NoError(t, WithTransaction(db.Conn(), func(tx *sql.Tx) error { return insert(tx, "a") }))

	boom := errors.New("boom")
	err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		require.NoError(t, insert(tx, "b"))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	err = WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		require.NoError(t, insert(tx, "c"))
		panic("oops")
	})
	assert.ErrorContains(t, err, "panic in transaction")

	var n int
	require.NoError(t, db.Conn().QueryRow("SELECT COUNT(*) FROM runs").Scan(&n))
	assert.Equal(t, 1, n)

	assert.Error(t, WithTransaction(nil, func(*sql.Tx) error { return nil }))
}

func TestWALCheckpointAndStats(t *testing.T) {
	db := openRuns(t)
	require.NoError(t, db.Migrate())
	require.NoError(t, db.WALCheckpoint(""))

	stats, err := db.GetStats()
	require.NoError(t, err)
	assert.Positive(t, stats.PageSize)
	assert.Positive(t, stats.PageCount)
}
