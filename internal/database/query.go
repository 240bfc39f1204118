package database

import (
	"fmt"
	"strings"

	"github.com/koustreak/ExprDB/internal/errs"
)

// validOps is the allowlist of comparison operators for WHERE clauses.
// Any operator not in this list is rejected to prevent SQL injection
// through the operator position (which cannot be parameterized).
var validOps = map[string]bool{
	"=":     true,
	"!=":    true,
	"<>":    true,
	"<":     true,
	">":     true,
	"<=":    true,
	">=":    true,
	"LIKE":  true,
	"ILIKE": true,
}

// IsValidOp reports whether op is accepted by Where.
func IsValidOp(op string) bool {
	return validOps[strings.ToUpper(op)]
}

// Ref names a column of a table (or of a join alias).
type Ref struct {
	Table  string
	Column string
}

// JoinKind selects INNER or LEFT OUTER joins.
type JoinKind int

const (
	InnerJoin JoinKind = iota
	LeftJoin
)

// SortDirection controls the ORDER BY direction.
type SortDirection bool

const (
	Asc  SortDirection = false
	Desc SortDirection = true
)

// SelectBuilder constructs a parameterized SELECT query using a fluent API.
// Values are never interpolated into the SQL string; they are always passed as args.
//
// Usage:
//
//	sql, args, err := Select("t_data", DialectSQLite).
//	    ColumnRefs(Ref{"t_data", "c0"}, Ref{"t_go", "c2"}).
//	    Join(LeftJoin, "t_go", Ref{"t_data", "c0"}, Ref{"t_go", "c0"}).
//	    WhereRef(Ref{"t_go", "c2"}, "LIKE", "%kinase%").
//	    OrderByRef(Ref{"t_data", "c0"}, Asc).
//	    Limit(20).
//	    Offset(0).
//	    Build()
type SelectBuilder struct {
	table   string
	dialect Dialect
	columns []Ref
	joins   []joinClause
	where   []whereClause
	orderBy []orderClause
	limit   *int
	offset  *int
	count   bool
}

type joinClause struct {
	kind  JoinKind
	table string
	left  Ref
	right Ref
}

type whereKind int

const (
	whereCompare whereKind = iota
	whereNull
	whereNotNull
	whereIn
)

type whereClause struct {
	kind   whereKind
	column Ref
	op     string
	value  any
	values []any
}

type orderClause struct {
	column Ref
	dir    SortDirection
}

// Select starts a new SelectBuilder for the given table and dialect.
func Select(table string, d Dialect) *SelectBuilder {
	return &SelectBuilder{table: table, dialect: d}
}

// Columns restricts the SELECT to columns of the root table.
// If neither Columns nor ColumnRefs is called, SELECT * is used.
func (b *SelectBuilder) Columns(cols ...string) *SelectBuilder {
	for _, c := range cols {
		b.columns = append(b.columns, Ref{Table: b.table, Column: c})
	}
	return b
}

// ColumnRefs appends table-qualified columns to the projection.
func (b *SelectBuilder) ColumnRefs(refs ...Ref) *SelectBuilder {
	b.columns = append(b.columns, refs...)
	return b
}

// Join adds a join of table on left = right.
func (b *SelectBuilder) Join(kind JoinKind, table string, left, right Ref) *SelectBuilder {
	b.joins = append(b.joins, joinClause{kind: kind, table: table, left: left, right: right})
	return b
}

// Where adds a WHERE condition on a root-table column. op must be one of
// the allowed comparison operators (=, !=, <, >, <=, >=, LIKE, ILIKE).
// Multiple calls are combined with AND.
func (b *SelectBuilder) Where(column, op string, value any) *SelectBuilder {
	return b.WhereRef(Ref{Table: b.table, Column: column}, op, value)
}

// WhereRef is Where for a table-qualified column.
func (b *SelectBuilder) WhereRef(column Ref, op string, value any) *SelectBuilder {
	b.where = append(b.where, whereClause{kind: whereCompare, column: column, op: op, value: value})
	return b
}

// WhereNull adds "column IS NULL" (or IS NOT NULL when not is set).
func (b *SelectBuilder) WhereNull(column Ref, not bool) *SelectBuilder {
	k := whereNull
	if not {
		k = whereNotNull
	}
	b.where = append(b.where, whereClause{kind: k, column: column})
	return b
}

// WhereIn adds "column IN (…)". An empty value list matches nothing.
func (b *SelectBuilder) WhereIn(column Ref, values []any) *SelectBuilder {
	b.where = append(b.where, whereClause{kind: whereIn, column: column, values: values})
	return b
}

// OrderBy appends an ORDER BY clause for a root-table column.
func (b *SelectBuilder) OrderBy(column string, dir SortDirection) *SelectBuilder {
	return b.OrderByRef(Ref{Table: b.table, Column: column}, dir)
}

// OrderByRef appends an ORDER BY clause for a table-qualified column.
func (b *SelectBuilder) OrderByRef(column Ref, dir SortDirection) *SelectBuilder {
	b.orderBy = append(b.orderBy, orderClause{column, dir})
	return b
}

// Limit sets the maximum number of rows to return.
func (b *SelectBuilder) Limit(n int) *SelectBuilder {
	b.limit = &n
	return b
}

// Offset sets the number of rows to skip (for pagination).
func (b *SelectBuilder) Offset(n int) *SelectBuilder {
	b.offset = &n
	return b
}

// Count turns the statement into SELECT COUNT(*); projection, ordering
// and the row window are ignored.
func (b *SelectBuilder) Count() *SelectBuilder {
	b.count = true
	return b
}

// Build produces the final SQL string and argument slice.
// Returns an error if any WHERE operator is not in the allowlist.
func (b *SelectBuilder) Build() (string, []any, error) {
	q := b.dialect.QuoteIdent

	// --- column list ---
	cols := "*"
	switch {
	case b.count:
		cols = "COUNT(*)"
	case len(b.columns) > 0:
		quoted := make([]string, len(b.columns))
		for i, c := range b.columns {
			quoted[i] = b.ref(c)
		}
		cols = strings.Join(quoted, ", ")
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(cols)
	sb.WriteString(" FROM ")
	sb.WriteString(q(b.table))

	// --- JOIN ---
	for _, j := range b.joins {
		if j.kind == LeftJoin {
			sb.WriteString(" LEFT JOIN ")
		} else {
			sb.WriteString(" INNER JOIN ")
		}
		sb.WriteString(q(j.table))
		sb.WriteString(" ON ")
		sb.WriteString(b.ref(j.left))
		sb.WriteString(" = ")
		sb.WriteString(b.ref(j.right))
	}

	var args []any
	argIdx := 1

	// --- WHERE ---
	if len(b.where) > 0 {
		parts := make([]string, 0, len(b.where))
		for _, w := range b.where {
			col := b.ref(w.column)
			switch w.kind {
			case whereNull:
				parts = append(parts, col+" IS NULL")
			case whereNotNull:
				parts = append(parts, col+" IS NOT NULL")
			case whereIn:
				if len(w.values) == 0 {
					parts = append(parts, "1 = 0")
					continue
				}
				phs := make([]string, len(w.values))
				for i, v := range w.values {
					phs[i] = b.dialect.Placeholder(argIdx)
					args = append(args, v)
					argIdx++
				}
				parts = append(parts, fmt.Sprintf("%s IN (%s)", col, strings.Join(phs, ", ")))
			default:
				op := strings.ToUpper(w.op)
				if !validOps[op] {
					return "", nil, errs.Newf(errs.ErrKindInvalidInput, "unsupported WHERE operator: %q", w.op)
				}
				ph := b.dialect.Placeholder(argIdx)
				if op == "ILIKE" {
					parts = append(parts, b.dialect.caseInsensitiveLike(col, ph))
				} else {
					parts = append(parts, fmt.Sprintf("%s %s %s", col, op, ph))
				}
				args = append(args, w.value)
				argIdx++
			}
		}
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(parts, " AND "))
	}

	if b.count {
		return sb.String(), args, nil
	}

	// --- ORDER BY ---
	if len(b.orderBy) > 0 {
		parts := make([]string, len(b.orderBy))
		for i, o := range b.orderBy {
			dir := "ASC"
			if o.dir == Desc {
				dir = "DESC"
			}
			parts[i] = fmt.Sprintf("%s %s", b.ref(o.column), dir)
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(parts, ", "))
	}

	// --- LIMIT ---
	// MySQL and SQLite reject OFFSET without LIMIT; use their "all rows" bounds.
	if b.limit == nil && b.offset != nil {
		switch b.dialect {
		case DialectMySQL:
			sb.WriteString(" LIMIT 18446744073709551615")
		case DialectSQLite:
			sb.WriteString(" LIMIT -1")
		}
	}
	if b.limit != nil {
		sb.WriteString(fmt.Sprintf(" LIMIT %s", b.dialect.Placeholder(argIdx)))
		args = append(args, *b.limit)
		argIdx++
	}

	// --- OFFSET ---
	if b.offset != nil {
		sb.WriteString(fmt.Sprintf(" OFFSET %s", b.dialect.Placeholder(argIdx)))
		args = append(args, *b.offset)
	}

	return sb.String(), args, nil
}

func (b *SelectBuilder) ref(r Ref) string {
	if r.Table == "" {
		return b.dialect.QuoteIdent(r.Column)
	}
	return b.dialect.QuoteIdent(r.Table) + "." + b.dialect.QuoteIdent(r.Column)
}
