// Package sqlitedb wraps the embedded SQLite engine behind a single-writer
// database handle.
//
// Build modes:
//   - Default: pure Go modernc.org/sqlite
//   - CGO mode (CGO_ENABLED=1 -tags cgo_sqlite): mattn/go-sqlite3
//
// Every mutation runs through Database.ExecuteWrite, which serializes writers
// per database file and wraps the callback in one IMMEDIATE transaction so a
// request's probe, DDL and row writes commit or roll back together.
package sqlitedb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	lru "github.com/hashicorp/golang-lru"
)

// Info describes the SQLite driver compiled in.
type Info struct {
	DriverName string `json:"driver_name"`
	DriverType string `json:"driver_type"`
	Package    string `json:"package"`
}

// GetInfo returns information about the current SQLite configuration.
func GetInfo() Info {
	return Info{DriverName: driverName, DriverType: driverType, Package: driverPackage}
}

// Options tunes a Database.
type Options struct {
	// BusyTimeoutMS is how long SQLite waits on a locked file. Defaults to 5000.
	BusyTimeoutMS int
	// StatementCacheSize bounds the generated SQL text cache. Defaults to 256.
	StatementCacheSize int
}

// Database is one SQLite file.
type Database struct {
	name string
	path string
	db   *sql.DB
	// sem is the single-writer queue; capacity one.
	sem   chan struct{}
	stmts *lru.Cache
}

// Open opens the SQLite file at path. The file is created if missing.
func Open(ctx context.Context, name, path string, opts Options) (*Database, error) {
	if opts.BusyTimeoutMS <= 0 {
		opts.BusyTimeoutMS = 5000
	}
	if opts.StatementCacheSize <= 0 {
		opts.StatementCacheSize = 256
	}
	db, err := sql.Open(driverName, dsn(path, opts.BusyTimeoutMS))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	cache, err := lru.New(opts.StatementCacheSize)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	slog.DebugContext(ctx, "Opened database", "name", name, "path", path, "driver", driverType)
	return &Database{
		name:  name,
		path:  path,
		db:    db,
		sem:   make(chan struct{}, 1),
		stmts: cache,
	}, nil
}

// Name returns the name the database is served under.
func (d *Database) Name() string { return d.name }

// Path returns the file path.
func (d *Database) Path() string { return d.path }

// Close closes the underlying pool.
func (d *Database) Close() error {
	return d.db.Close()
}

// QueryContext runs a read-only query on the connection pool, outside the
// writer queue.
func (d *Database) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return d.db.QueryContext(ctx, query, args...)
}

// ExecuteWrite runs fn inside a write transaction.
//
// Callers queue behind any write already in progress on the same database;
// ctx bounds the wait. The transaction commits when fn returns nil and rolls
// back otherwise.
func (d *Database) ExecuteWrite(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error {
	select {
	case d.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-d.sem }()

	sqlTx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = sqlTx.Rollback() }()

	tx := &Tx{tx: sqlTx, db: d, prepared: make(map[string]*sql.Stmt)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
