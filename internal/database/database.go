package database

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/Bendy545/charging-stations/internal/config"
)

// Dialect SQL flavour of an open connection
type Dialect int

const (
	Postgres Dialect = iota
	SQLite
)

// DialectFor maps a driver name to its dialect.
func DialectFor(driver string) Dialect {
	if driver == "sqlite3" {
		return SQLite
	}
	return Postgres
}

func (d Dialect) String() string {
	if d == SQLite {
		return "sqlite3"
	}
	return "postgres"
}

// Placeholder returns the n-th (1-based) bind parameter.
func (d Dialect) Placeholder(n int) string {
	if d == SQLite {
		return "?"
	}
	return "$" + strconv.Itoa(n)
}

// DayExpr renders col as its calendar day, "YYYY-MM-DD". Timestamps are
// stored in UTC, so this is the UTC day.
func (d Dialect) DayExpr(col string) string {
	if d == SQLite {
		return "strftime('%Y-%m-%d', " + col + ")"
	}
	return "to_char(" + col + ", 'YYYY-MM-DD')"
}

//go:embed schema_postgres.sql
var postgresSchema string

//go:embed schema_sqlite.sql
var sqliteSchema string

// Open opens and pings a connection pool for cfg.Driver.
func Open(cfg *config.DatabaseConfig) (*sql.DB, Dialect, error) {
	dialect := DialectFor(cfg.Driver)

	db, err := sql.Open(dialect.String(), cfg.DSN())
	if err != nil {
		return nil, dialect, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}
	if cfg.MaxIdle > 0 {
		db.SetMaxIdleConns(cfg.MaxIdle)
	}
	if dialect == SQLite {
		// single writer
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, dialect, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, dialect, nil
}

// EnsureSchema creates the tables when they do not exist yet.
func EnsureSchema(ctx context.Context, db *sql.DB, dialect Dialect) error {
	schema := postgresSchema
	if dialect == SQLite {
		schema = sqliteSchema
	}
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// Close closes db if it is not nil.
func Close(db *sql.DB) error {
	if db != nil {
		return db.Close()
	}
	return nil
}
