package sqlitedb

import (
	"fmt"
	"strings"

	"github.com/maruel/insertd/internal/schema"
)

// sqlIdent quotes an identifier.
func sqlIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func joinIdents(columns []string) string {
	parts := make([]string, len(columns))
	for i, c := range columns {
		parts[i] = sqlIdent(c)
	}
	return strings.Join(parts, ", ")
}

func placeholders(n int) string {
	if n == 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

// buildCreateTableSQL declares every column nullable. An INTEGER key becomes
// the rowid alias.
func buildCreateTableSQL(table string, cols []schema.Column) (string, error) {
	if strings.TrimSpace(table) == "" {
		return "", fmt.Errorf("table name is empty")
	}
	if len(cols) == 0 {
		return "", fmt.Errorf("table %s has no columns", table)
	}
	parts := make([]string, 0, len(cols))
	for _, c := range cols {
		col := sqlIdent(c.Name) + " " + string(c.Type)
		if c.PK {
			col += " PRIMARY KEY"
		}
		if c.NotNull {
			col += " NOT NULL"
		}
		parts = append(parts, col)
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", sqlIdent(table), strings.Join(parts, ", ")), nil
}

func buildAddColumnSQL(table string, c schema.Column) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", sqlIdent(table), sqlIdent(c.Name), c.Type)
}

// buildInsertSQL returns INSERT OR <conflict> for columns; an empty column
// list inserts a row of defaults.
func buildInsertSQL(conflict, table string, columns []string) string {
	if len(columns) == 0 {
		return fmt.Sprintf("INSERT OR %s INTO %s DEFAULT VALUES", conflict, sqlIdent(table))
	}
	return fmt.Sprintf("INSERT OR %s INTO %s (%s) VALUES (%s)",
		conflict, sqlIdent(table), joinIdents(columns), placeholders(len(columns)))
}

// buildUpdateSQL sets columns on the row whose key equals the last argument.
func buildUpdateSQL(table, pk string, columns []string) string {
	sets := make([]string, len(columns))
	for i, c := range columns {
		sets[i] = sqlIdent(c) + " = ?"
	}
	return fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?", sqlIdent(table), strings.Join(sets, ", "), sqlIdent(pk))
}

// buildExistsSQL reports whether any row has the key given as the argument.
func buildExistsSQL(table, pk string) string {
	return fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE %s = ?)", sqlIdent(table), sqlIdent(pk))
}

func buildCountSQL(table string) string {
	return "SELECT count(*) FROM " + sqlIdent(table)
}

// statementKey identifies generated SQL text in the cache.
func statementKey(verb, table, pk string, columns []string) string {
	return verb + "\x00" + table + "\x00" + pk + "\x00" + strings.Join(columns, "\x00")
}

// cachedSQL returns the text for key, generating and caching it on a miss.
func (d *Database) cachedSQL(key string, build func() string) string {
	if v, ok := d.stmts.Get(key); ok {
		return v.(string)
	}
	s := build()
	d.stmts.Add(key, s)
	return s
}
