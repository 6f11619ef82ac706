// Package reconcile writes a batch of rows into a table whose existence and
// schema are only known at write time.
//
// For each request the reconciler probes the table, creates it from the
// inferred schema when it is missing, adds columns when widening was
// requested, then inserts or upserts every row. All of it runs in one write
// transaction so a request either fully applies or leaves nothing behind.
package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/maruel/insertd/internal/capability"
	"github.com/maruel/insertd/internal/rows"
	"github.com/maruel/insertd/internal/schema"
	"github.com/maruel/insertd/internal/sqlitedb"
)

// Mode selects how rows are written.
type Mode int

const (
	// ModeInsert inserts rows, replacing whole rows on key conflicts.
	ModeInsert Mode = iota
	// ModeUpsert inserts new keys and merges the given columns into existing
	// rows.
	ModeUpsert
)

func (m Mode) String() string {
	if m == ModeUpsert {
		return "upsert"
	}
	return "insert"
}

// WriteRequest is one write against one table.
type WriteRequest struct {
	Database string
	Table    string
	Mode     Mode
	// PrimaryKey names the key column; "" addresses rows by rowid.
	PrimaryKey string
	// Alter requests adding columns the table lacks.
	Alter bool
	Rows  rows.Batch
}

// Result is the outcome of a successful write.
type Result struct {
	TableCount   int64
	Created      bool
	AddedColumns []string
}

// Check validates req against caps before the body is read.
func Check(req *WriteRequest, caps capability.Capabilities) error {
	if req.Mode == ModeUpsert && req.PrimaryKey == "" {
		return ErrUpsertRequiresKey
	}
	if !caps.WriteExisting {
		return ErrPermissionDenied
	}
	if req.Alter && !caps.WidenSchema {
		return ErrAlterDenied
	}
	return nil
}

// Databases returns the database a request targets.
type Databases interface {
	Get(ctx context.Context, name string) (*sqlitedb.Database, error)
}

// Reconciler applies write requests.
type Reconciler struct {
	dbs Databases
}

// New returns a Reconciler writing into dbs.
func New(dbs Databases) *Reconciler {
	return &Reconciler{dbs: dbs}
}

// Write applies req. Errors are one of ErrUpsertRequiresKey,
// ErrPermissionDenied, ErrAlterDenied, *MissingTableError, a rows.ErrMalformed
// match, sqlitedb.ErrUnknownDatabase or *StorageError.
func (r *Reconciler) Write(ctx context.Context, req *WriteRequest, caps capability.Capabilities) (Result, error) {
	if err := Check(req, caps); err != nil {
		return Result{}, err
	}
	if req.Mode == ModeUpsert {
		for i, rec := range req.Rows {
			if _, ok := rec.GetFold(req.PrimaryKey); !ok {
				return Result{}, rows.Malformedf("row %d has no value for primary key %q", i, req.PrimaryKey)
			}
		}
	}
	db, err := r.dbs.Get(ctx, req.Database)
	if err != nil {
		if errors.Is(err, sqlitedb.ErrUnknownDatabase) {
			return Result{}, err
		}
		return Result{}, &StorageError{Op: "open database", Err: err}
	}
	var res Result
	err = db.ExecuteWrite(ctx, func(ctx context.Context, tx *sqlitedb.Tx) error {
		res = Result{}
		return apply(ctx, tx, req, caps, &res)
	})
	if err != nil {
		var mt *MissingTableError
		var se *StorageError
		if !errors.As(err, &mt) && !errors.As(err, &se) && !errors.Is(err, rows.ErrMalformed) {
			err = &StorageError{Op: "transaction", Err: err}
		}
		return Result{}, err
	}
	slog.InfoContext(ctx, "Wrote rows", "db", req.Database, "table", req.Table, "mode", req.Mode,
		"rows", len(req.Rows), "created", res.Created, "added", res.AddedColumns, "count", res.TableCount)
	return res, nil
}

func apply(ctx context.Context, tx *sqlitedb.Tx, req *WriteRequest, caps capability.Capabilities, res *Result) error {
	table, err := tx.Probe(ctx, req.Table)
	if err != nil {
		return &StorageError{Op: "probe", Err: err}
	}
	if table == nil {
		if !caps.CreateTable {
			return &MissingTableError{Table: req.Table}
		}
		if len(req.Rows) == 0 {
			return nil
		}
		cols := schema.Infer(req.Rows, req.PrimaryKey)
		if len(cols) == 0 {
			return rows.Malformedf("No columns to create table %s from", req.Table)
		}
		if err := tx.CreateTable(ctx, req.Table, cols); err != nil {
			return &StorageError{Op: "create table", Err: err}
		}
		table = &schema.Table{Name: req.Table, Columns: cols, PrimaryKey: req.PrimaryKey}
		res.Created = true
	} else if req.Alter {
		for _, c := range schema.Missing(table, req.Rows) {
			if err := tx.AddColumn(ctx, req.Table, c); err != nil {
				return &StorageError{Op: "add column", Err: err}
			}
			table.Columns = append(table.Columns, c)
			res.AddedColumns = append(res.AddedColumns, c.Name)
		}
	}

	// Keys without a uniqueness constraint are matched by lookup.
	lookup := false
	if req.Mode == ModeUpsert && !res.Created && !strings.EqualFold(table.PrimaryKey, req.PrimaryKey) {
		unique, err := tx.IsUniqueKey(ctx, req.Table, req.PrimaryKey)
		if err != nil {
			return &StorageError{Op: "probe", Err: err}
		}
		lookup = !unique
	}

	affinities := make(map[string]schema.Affinity, len(table.Columns))
	for i := range table.Columns {
		affinities[strings.ToLower(table.Columns[i].Name)] = table.Columns[i].Affinity()
	}
	for _, rec := range req.Rows {
		columns := make([]string, len(rec))
		args := make([]any, len(rec))
		for i, f := range rec {
			v := f.Value
			if a, ok := affinities[strings.ToLower(f.Column)]; ok {
				v = schema.Coerce(v, a)
			}
			columns[i] = f.Column
			args[i] = v.SQLArg()
		}
		var err error
		switch {
		case lookup:
			err = tx.UpsertByLookup(ctx, req.Table, req.PrimaryKey, columns, args)
		case req.Mode == ModeUpsert:
			err = tx.Upsert(ctx, req.Table, req.PrimaryKey, columns, args)
		default:
			err = tx.InsertOrReplace(ctx, req.Table, columns, args)
		}
		if err != nil {
			return &StorageError{Op: req.Mode.String(), Err: err}
		}
	}

	n, err := tx.Count(ctx, req.Table)
	if err != nil {
		return &StorageError{Op: "count", Err: err}
	}
	res.TableCount = n
	return nil
}
