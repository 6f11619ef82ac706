// Table level operations available inside a write transaction.

package sqlitedb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/maruel/insertd/internal/schema"
)

// Tx is a write transaction handed to ExecuteWrite callbacks.
type Tx struct {
	tx       *sql.Tx
	db       *Database
	prepared map[string]*sql.Stmt
}

// Probe returns the table's current schema, or nil when it does not exist.
func (t *Tx) Probe(ctx context.Context, table string) (*schema.Table, error) {
	rs, err := t.tx.QueryContext(ctx, `SELECT name, type, "notnull", pk FROM pragma_table_info(?)`, table)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", table, err)
	}
	defer func() { _ = rs.Close() }()

	out := &schema.Table{Name: table}
	pkCount := 0
	var pkName string
	for rs.Next() {
		var (
			name, decl string
			notNull    bool
			pk         int
		)
		if err := rs.Scan(&name, &decl, &notNull, &pk); err != nil {
			return nil, fmt.Errorf("probe %s: %w", table, err)
		}
		out.Columns = append(out.Columns, schema.Column{
			Name:    name,
			Type:    schema.ColumnType(decl),
			NotNull: notNull,
			PK:      pk > 0,
		})
		if pk > 0 {
			pkCount++
			pkName = name
		}
	}
	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("probe %s: %w", table, err)
	}
	if len(out.Columns) == 0 {
		return nil, nil
	}
	if pkCount == 1 {
		out.PrimaryKey = pkName
	}
	return out, nil
}

// CreateTable creates table with cols.
func (t *Tx) CreateTable(ctx context.Context, table string, cols []schema.Column) error {
	q, err := buildCreateTableSQL(table, cols)
	if err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}
	return nil
}

// AddColumn adds a nullable column to table.
func (t *Tx) AddColumn(ctx context.Context, table string, c schema.Column) error {
	if _, err := t.tx.ExecContext(ctx, buildAddColumnSQL(table, c)); err != nil {
		return fmt.Errorf("add column %s.%s: %w", table, c.Name, err)
	}
	return nil
}

// InsertOrReplace inserts one row, replacing any row that conflicts on a
// unique key. Without a key the row is appended with a fresh rowid.
func (t *Tx) InsertOrReplace(ctx context.Context, table string, columns []string, args []any) error {
	q := t.db.cachedSQL(statementKey("replace", table, "", columns), func() string {
		return buildInsertSQL("REPLACE", table, columns)
	})
	return t.exec(ctx, q, args)
}

// Upsert inserts the row when its key is new and otherwise updates only the
// given non-key columns. args[i] binds columns[i]; columns must contain pk.
// pk must carry a PRIMARY KEY or UNIQUE constraint; see UpsertByLookup.
func (t *Tx) Upsert(ctx context.Context, table, pk string, columns []string, args []any) error {
	keyIdx, err := keyIndex(table, pk, columns)
	if err != nil {
		return err
	}
	q := t.db.cachedSQL(statementKey("ignore", table, "", columns), func() string {
		return buildInsertSQL("IGNORE", table, columns)
	})
	if err := t.exec(ctx, q, args); err != nil {
		return err
	}
	return t.updateByKey(ctx, table, pk, keyIdx, columns, args)
}

// UpsertByLookup is Upsert for a pk column without a uniqueness constraint:
// rows matching the key are updated, and the row is inserted when none
// matches.
func (t *Tx) UpsertByLookup(ctx context.Context, table, pk string, columns []string, args []any) error {
	keyIdx, err := keyIndex(table, pk, columns)
	if err != nil {
		return err
	}
	q := t.db.cachedSQL(statementKey("exists", table, pk, nil), func() string {
		return buildExistsSQL(table, pk)
	})
	var exists bool
	if err := t.tx.QueryRowContext(ctx, q, args[keyIdx]).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return t.updateByKey(ctx, table, pk, keyIdx, columns, args)
	}
	q = t.db.cachedSQL(statementKey("abort", table, "", columns), func() string {
		return buildInsertSQL("ABORT", table, columns)
	})
	return t.exec(ctx, q, args)
}

// IsUniqueKey reports whether column alone is the table's primary key or is
// covered by a full single-column unique index.
func (t *Tx) IsUniqueKey(ctx context.Context, table, column string) (bool, error) {
	rs, err := t.tx.QueryContext(ctx, `SELECT name FROM pragma_index_list(?) WHERE "unique" = 1 AND "partial" = 0`, table)
	if err != nil {
		return false, fmt.Errorf("index list %s: %w", table, err)
	}
	var indexes []string
	for rs.Next() {
		var name string
		if err := rs.Scan(&name); err != nil {
			_ = rs.Close()
			return false, fmt.Errorf("index list %s: %w", table, err)
		}
		indexes = append(indexes, name)
	}
	if err := rs.Close(); err != nil {
		return false, fmt.Errorf("index list %s: %w", table, err)
	}
	if err := rs.Err(); err != nil {
		return false, fmt.Errorf("index list %s: %w", table, err)
	}
	for _, idx := range indexes {
		var n int
		var name sql.NullString
		err := t.tx.QueryRowContext(ctx, `SELECT count(*), max(name) FROM pragma_index_info(?)`, idx).Scan(&n, &name)
		if err != nil {
			return false, fmt.Errorf("index info %s: %w", idx, err)
		}
		if n == 1 && name.Valid && strings.EqualFold(name.String, column) {
			return true, nil
		}
	}
	return false, nil
}

// updateByKey sets the non-key columns on rows whose key equals
// args[keyIdx].
func (t *Tx) updateByKey(ctx context.Context, table, pk string, keyIdx int, columns []string, args []any) error {
	if len(columns) == 1 {
		return nil
	}
	setCols := make([]string, 0, len(columns)-1)
	setArgs := make([]any, 0, len(columns))
	for i, c := range columns {
		if i == keyIdx {
			continue
		}
		setCols = append(setCols, c)
		setArgs = append(setArgs, args[i])
	}
	setArgs = append(setArgs, args[keyIdx])
	q := t.db.cachedSQL(statementKey("update", table, pk, setCols), func() string {
		return buildUpdateSQL(table, pk, setCols)
	})
	return t.exec(ctx, q, setArgs)
}

// keyIndex finds pk in columns, ignoring case like SQLite.
func keyIndex(table, pk string, columns []string) (int, error) {
	for i, c := range columns {
		if strings.EqualFold(c, pk) {
			return i, nil
		}
	}
	return -1, fmt.Errorf("upsert into %s: row has no value for key %s", table, pk)
}

// Count returns the number of rows in table.
func (t *Tx) Count(ctx context.Context, table string) (int64, error) {
	var n int64
	if err := t.tx.QueryRowContext(ctx, buildCountSQL(table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// exec prepares q once per transaction and runs it.
func (t *Tx) exec(ctx context.Context, q string, args []any) error {
	stmt, ok := t.prepared[q]
	if !ok {
		var err error
		if stmt, err = t.tx.PrepareContext(ctx, q); err != nil {
			return err
		}
		t.prepared[q] = stmt
	}
	_, err := stmt.ExecContext(ctx, args...)
	return err
}
