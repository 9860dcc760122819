package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bendy545/charging-stations/internal/config"
)

func TestDialectPlaceholder(t *testing.T) {
	assert.Equal(t, "$3", Postgres.Placeholder(3))
	assert.Equal(t, "?", SQLite.Placeholder(3))
	assert.Equal(t, SQLite, DialectFor("sqlite3"))
	assert.Equal(t, Postgres, DialectFor("postgres"))
}

func TestDialectDayExpr(t *testing.T) {
	assert.Equal(t, "to_char(end_date, 'YYYY-MM-DD')", Postgres.DayExpr("end_date"))
	assert.Equal(t, "strftime('%Y-%m-%d', end_date)", SQLite.DayExpr("end_date"))
}

func TestOpenSQLiteAndEnsureSchema(t *testing.T) {
	cfg := &config.DatabaseConfig{Driver: "sqlite3", Path: filepath.Join(t.TempDir(), "test.db")}

	db, dialect, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { Close(db) })
	assert.Equal(t, SQLite, dialect)

	ctx := context.Background()
	require.NoError(t, EnsureSchema(ctx, db, dialect))
	// idempotent
	require.NoError(t, EnsureSchema(ctx, db, dialect))

	for _, table := range []string{"stations", "power_consumption", "charging_sessions", "loss_analysis"} {
		var name string
		err := db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		require.NoError(t, err, table)
	}
}
