// Package database opens the ledger store and provides the query and
// transaction helpers shared by the repositories.
package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect identifies the SQL backend
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// Querier is the subset of *sql.DB and *sql.Tx used by repositories.
// Queries are written with ? placeholders.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB wraps a connection pool and rewrites placeholders for its dialect
type DB struct {
	sql     *sql.DB
	dialect Dialect
}

var _ Querier = (*DB)(nil)

// NewPostgresConnection creates a new PostgreSQL connection pool
func NewPostgresConnection(databaseURL string) (*DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	return &DB{sql: db, dialect: Postgres}, nil
}

// NewSQLiteConnection opens (and creates when missing) a SQLite database file
func NewSQLiteConnection(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := "file:" + path +
		"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_time_format=sqlite"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows a single writer; one connection keeps writes serialized
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{sql: db, dialect: SQLite}, nil
}

// Open connects using the given driver name
func Open(driver, databaseURL, sqlitePath string) (*DB, error) {
	switch Dialect(driver) {
	case Postgres:
		return NewPostgresConnection(databaseURL)
	case SQLite:
		return NewSQLiteConnection(sqlitePath)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Dialect returns the backend in use
func (d *DB) Dialect() Dialect {
	return d.dialect
}

// Close closes the pool
func (d *DB) Close() error {
	return d.sql.Close()
}

// PingContext checks the connection
func (d *DB) PingContext(ctx context.Context) error {
	return d.sql.PingContext(ctx)
}

func (d *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	args, err := driverArgs(args)
	if err != nil {
		return nil, err
	}
	return d.sql.ExecContext(ctx, rebind(d.dialect, query), args...)
}

func (d *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	args, err := driverArgs(args)
	if err != nil {
		return nil, err
	}
	return d.sql.QueryContext(ctx, rebind(d.dialect, query), args...)
}

func (d *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	// a conversion error resurfaces from Scan through the driver
	converted, err := driverArgs(args)
	if err == nil {
		args = converted
	}
	return d.sql.QueryRowContext(ctx, rebind(d.dialect, query), args...)
}

// WithTx runs fn inside a transaction, committing when fn returns nil.
// fn must use the Querier it is given, never the DB itself.
func (d *DB) WithTx(ctx context.Context, fn func(q Querier) error) error {
	return d.withTx(ctx, nil, fn)
}

// WithReadTx runs fn inside a transaction that sees a single consistent
// view of the data.
func (d *DB) WithReadTx(ctx context.Context, fn func(q Querier) error) error {
	var opts *sql.TxOptions
	if d.dialect == Postgres {
		opts = &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	}
	return d.withTx(ctx, opts, fn)
}

func (d *DB) withTx(ctx context.Context, opts *sql.TxOptions, fn func(q Querier) error) error {
	tx, err := d.sql.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&txQuerier{tx: tx, dialect: d.dialect}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type txQuerier struct {
	tx      *sql.Tx
	dialect Dialect
}

func (t *txQuerier) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	args, err := driverArgs(args)
	if err != nil {
		return nil, err
	}
	return t.tx.ExecContext(ctx, rebind(t.dialect, query), args...)
}

func (t *txQuerier) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	args, err := driverArgs(args)
	if err != nil {
		return nil, err
	}
	return t.tx.QueryContext(ctx, rebind(t.dialect, query), args...)
}

func (t *txQuerier) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	converted, err := driverArgs(args)
	if err == nil {
		args = converted
	}
	return t.tx.QueryRowContext(ctx, rebind(t.dialect, query), args...)
}

// driverArgs reduces arguments to plain driver values: Valuers such as
// decimal.Decimal are resolved, pointers dereferenced and named string
// types turned into strings. The SQLite driver binds only the basic types.
func driverArgs(args []any) ([]any, error) {
	out := make([]any, len(args))
	for i, arg := range args {
		v, err := driver.DefaultParameterConverter.ConvertValue(arg)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i+1, err)
		}
		out[i] = v
	}
	return out, nil
}

// rebind turns ? placeholders into $1, $2, ... for PostgreSQL
func rebind(dialect Dialect, query string) string {
	if dialect != Postgres || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Placeholders returns "?, ?, ..." with n entries for IN clauses
func Placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
