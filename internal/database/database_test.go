package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebind(t *testing.T) {
	tests := []struct {
		name    string
		dialect Dialect
		query   string
		want    string
	}{
		{"sqlite untouched", SQLite, "SELECT * FROM users WHERE id = ? AND email = ?", "SELECT * FROM users WHERE id = ? AND email = ?"},
		{"postgres numbered", Postgres, "SELECT * FROM users WHERE id = ? AND email = ?", "SELECT * FROM users WHERE id = $1 AND email = $2"},
		{"no placeholders", Postgres, "SELECT 1", "SELECT 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, rebind(tt.dialect, tt.query))
		})
	}
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "", Placeholders(0))
	assert.Equal(t, "?", Placeholders(1))
	assert.Equal(t, "?, ?, ?", Placeholders(3))
}

func TestSQLiteMigrateAndTx(t *testing.T) {
	ctx := context.Background()
	db, err := NewSQLiteConnection(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, Migrate(ctx, db))
	require.NoError(t, Migrate(ctx, db), "migrations must be repeatable")

	insert := func(q Querier, id string) error {
		_, err := q.ExecContext(ctx,
			"INSERT INTO users (id, email, display_name, created_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)",
			id, id+"@example.com", id)
		return err
	}

	errBoom := errors.New("boom")
	err = db.WithTx(ctx, func(q Querier) error {
		require.NoError(t, insert(q, "rolled-back"))
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)

	require.NoError(t, db.WithTx(ctx, func(q Querier) error {
		return insert(q, "kept")
	}))

	var count int
	require.NoError(t, db.WithReadTx(ctx, func(q Querier) error {
		return q.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count)
	}))
	assert.Equal(t, 1, count)
}

type label string

func TestDriverArgs(t *testing.T) {
	name := "trip"
	var missing *string

	got, err := driverArgs([]any{label("ACTIVE"), &name, missing, int64(3)})
	require.NoError(t, err)
	assert.Equal(t, []any{"ACTIVE", "trip", nil, int64(3)}, got)
}
