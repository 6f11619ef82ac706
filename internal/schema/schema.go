// Package schema infers SQLite column types from batches of rows.
//
// Inference is advisory. It decides the declared types of a brand new table
// and of columns added by widening; an existing table keeps its own types.
package schema

import (
	"strings"

	"github.com/maruel/insertd/internal/rows"
)

// ColumnType is a declared SQLite column type.
type ColumnType string

const (
	// TypeText holds strings and null-only columns.
	TypeText ColumnType = "TEXT"
	// TypeInteger holds integers and booleans.
	TypeInteger ColumnType = "INTEGER"
	// TypeFloat holds any column where a fractional number was seen.
	TypeFloat ColumnType = "FLOAT"
)

// Column describes one table column.
type Column struct {
	Name    string     `json:"name"`
	Type    ColumnType `json:"type"`
	NotNull bool       `json:"not_null,omitempty"`
	PK      bool       `json:"pk,omitempty"`
}

// Table is the schema of an existing or proposed table.
type Table struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
	// PrimaryKey is "" when rows are addressed by rowid.
	PrimaryKey string `json:"primary_key,omitempty"`
}

// Has reports whether the table has column, compared the way SQLite compares
// identifiers (ASCII case-insensitive).
func (t *Table) Has(column string) bool {
	for _, c := range t.Columns {
		if strings.EqualFold(c.Name, column) {
			return true
		}
	}
	return false
}

// ColumnNames returns the column names in declaration order.
func (t *Table) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// Infer proposes columns for a new table holding b.
//
// Column order follows first occurrence across the batch. pk matches a column
// ignoring case; when it never appears in b, it is appended as INTEGER.
func Infer(b rows.Batch, pk string) []Column {
	var cols []Column
	for _, name := range b.Columns() {
		cols = append(cols, Column{Name: name, Type: inferColumn(b, name)})
	}
	if pk == "" {
		return cols
	}
	for i := range cols {
		if strings.EqualFold(cols[i].Name, pk) {
			cols[i].PK = true
			return cols
		}
	}
	return append(cols, Column{Name: pk, Type: TypeInteger, PK: true})
}

// Missing returns the columns of b that t lacks, typed by the Infer rules.
func Missing(t *Table, b rows.Batch) []Column {
	var out []Column
	for _, name := range b.Columns() {
		if t.Has(name) {
			continue
		}
		out = append(out, Column{Name: name, Type: inferColumn(b, name)})
	}
	return out
}

// inferColumn folds every value seen for name: any string wins, then any
// float, then integers and booleans. Null-only columns become TEXT.
func inferColumn(b rows.Batch, name string) ColumnType {
	var sawFloat, sawInt bool
	for _, r := range b {
		v, ok := r.Get(name)
		if !ok {
			continue
		}
		switch v.Kind() {
		case rows.KindString:
			return TypeText
		case rows.KindFloat:
			sawFloat = true
		case rows.KindInt, rows.KindBool:
			sawInt = true
		case rows.KindNull:
		}
	}
	switch {
	case sawFloat:
		return TypeFloat
	case sawInt:
		return TypeInteger
	default:
		return TypeText
	}
}
