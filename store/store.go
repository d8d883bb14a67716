// Package store opens the bun database backing the guest registry and
// applies its schema.
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// GetMigrationsFS returns the migration files for this package
func GetMigrationsFS() embed.FS {
	return migrationsFS
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Open connects to dsn with the named driver and returns a bun handle.
func Open(driver, dsn string) (*bun.DB, error) {
	switch strings.ToLower(driver) {
	case "", DriverSQLite, "sqlite3":
		if dsn == "" {
			dsn = ":memory:"
		}
		sqldb, err := sql.Open(sqliteshim.ShimName, SQLiteDSN(sqliteshim.DriverName(), dsn))
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return NewSQLite(sqldb, dsn)
	case DriverPostgres, "pgx", "postgresql":
		sqldb, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return bun.NewDB(sqldb, pgdialect.New()), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// DefaultBusyTimeout is how long, in milliseconds, a connection waits on a
// locked sqlite database.
const DefaultBusyTimeout = 5000

// SQLiteDSN appends foreign_keys, busy_timeout and immediate transaction
// locking to dsn using the parameter syntax of driverName ("sqlite3" for
// mattn, "sqlite" for modernc). Both drivers apply them to every connection
// the pool opens.
func SQLiteDSN(driverName, dsn string) string {
	params := url.Values{}
	switch driverName {
	case "sqlite3":
		params.Set("_foreign_keys", "on")
		params.Set("_busy_timeout", strconv.Itoa(DefaultBusyTimeout))
	default:
		params.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", DefaultBusyTimeout))
		params.Add("_pragma", "foreign_keys(1)")
	}
	params.Set("_txlock", "immediate")

	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + params.Encode()
}

// NewSQLite wraps an already opened sqlite handle. Handles opened on a file
// should use a DSN built by SQLiteDSN. In-memory databases are
// pinned to a single connection so every query sees the same data.
func NewSQLite(sqldb *sql.DB, dsn string) (*bun.DB, error) {
	if dsn == "" || strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		sqldb.SetMaxOpenConns(1)
	}

	db := bun.NewDB(sqldb, sqlitedialect.New())
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	return db, nil
}

// Migrate applies every pending migration.
func Migrate(ctx context.Context, db *bun.DB) error {
	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect(gooseDialect(db)); err != nil {
		return fmt.Errorf("goose set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db.DB, "migrations"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}

	return nil
}

func gooseDialect(db *bun.DB) string {
	if db.Dialect().Name() == dialect.PG {
		return "postgres"
	}
	return "sqlite3"
}
