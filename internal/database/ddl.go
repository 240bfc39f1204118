package database

import (
	"fmt"
	"strings"

	"github.com/koustreak/ExprDB/internal/errs"
)

// maxBindParams bounds the placeholders in one INSERT. SQLite's historical
// default (999) is the strictest of the supported engines.
const maxBindParams = 999

// ColumnDef describes one column of a table to create.
type ColumnDef struct {
	Name string
	Type string // TypeInteger, TypeReal or TypeText
	Key  bool   // join key: gets an index and an indexable type
}

// CreateTable renders CREATE TABLE plus one CREATE INDEX per key column.
func CreateTable(d Dialect, table string, cols []ColumnDef) ([]string, error) {
	if len(cols) == 0 {
		return nil, errs.Newf(errs.ErrKindInvalidInput, "table %q has no columns", table)
	}

	defs := make([]string, len(cols))
	var stmts []string
	for i, c := range cols {
		typ := d.SQLType(c.Type)
		if c.Key {
			typ = d.keySQLType(c.Type)
		}
		defs[i] = d.QuoteIdent(c.Name) + " " + typ
	}
	stmts = append(stmts, fmt.Sprintf("CREATE TABLE %s (%s)", d.QuoteIdent(table), strings.Join(defs, ", ")))

	for _, c := range cols {
		if !c.Key {
			continue
		}
		idx := fmt.Sprintf("%s_%s_idx", table, c.Name)
		stmts = append(stmts, fmt.Sprintf("CREATE INDEX %s ON %s (%s)",
			d.QuoteIdent(idx), d.QuoteIdent(table), d.QuoteIdent(c.Name)))
	}
	return stmts, nil
}

// InsertBuilder accumulates rows for a multi-row INSERT. Rows are split into
// statements that stay under the bind-parameter ceiling.
//
// Usage:
//
//	stmts, err := Insert("t_design", DialectPostgres).
//	    Columns("_row", "c0", "c1").
//	    Values(0, "S1", "ctrl").
//	    Values(1, "S2", "drug").
//	    Build()
type InsertBuilder struct {
	table   string
	dialect Dialect
	columns []string
	rows    [][]any
}

// Statement is one rendered statement with its arguments.
type Statement struct {
	SQL  string
	Args []any
}

// Insert starts a new InsertBuilder.
func Insert(table string, d Dialect) *InsertBuilder {
	return &InsertBuilder{table: table, dialect: d}
}

// Columns sets the target column list.
func (b *InsertBuilder) Columns(cols ...string) *InsertBuilder {
	b.columns = cols
	return b
}

// Values appends one row. Its length must match Columns.
func (b *InsertBuilder) Values(vals ...any) *InsertBuilder {
	b.rows = append(b.rows, vals)
	return b
}

// Len reports the number of buffered rows.
func (b *InsertBuilder) Len() int { return len(b.rows) }

// Build renders the buffered rows as one or more INSERT statements.
func (b *InsertBuilder) Build() ([]Statement, error) {
	if len(b.columns) == 0 {
		return nil, errs.Newf(errs.ErrKindInvalidInput, "insert into %q: no columns", b.table)
	}
	if len(b.rows) == 0 {
		return nil, nil
	}

	perStmt := maxBindParams / len(b.columns)
	if perStmt < 1 {
		perStmt = 1
	}

	quoted := make([]string, len(b.columns))
	for i, c := range b.columns {
		quoted[i] = b.dialect.QuoteIdent(c)
	}
	head := fmt.Sprintf("INSERT INTO %s (%s) VALUES ", b.dialect.QuoteIdent(b.table), strings.Join(quoted, ", "))

	var out []Statement
	for start := 0; start < len(b.rows); start += perStmt {
		end := start + perStmt
		if end > len(b.rows) {
			end = len(b.rows)
		}

		var sb strings.Builder
		sb.WriteString(head)
		args := make([]any, 0, (end-start)*len(b.columns))
		argIdx := 1
		for r, row := range b.rows[start:end] {
			if len(row) != len(b.columns) {
				return nil, errs.Newf(errs.ErrKindInvalidInput,
					"insert into %q: row %d has %d values, want %d", b.table, start+r, len(row), len(b.columns))
			}
			if r > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("(")
			for i, v := range row {
				if i > 0 {
					sb.WriteString(", ")
				}
				sb.WriteString(b.dialect.Placeholder(argIdx))
				args = append(args, v)
				argIdx++
			}
			sb.WriteString(")")
		}
		out = append(out, Statement{SQL: sb.String(), Args: args})
	}
	return out, nil
}
