package database

import (
	"fmt"
	"strings"
)

// Dialect controls placeholder style, identifier quoting and type names
// emitted by the statement builders.
type Dialect int

const (
	// DialectPostgres uses $1, $2, … placeholders.
	DialectPostgres Dialect = iota

	// DialectMySQL uses ? placeholders and backtick quoting.
	DialectMySQL

	// DialectSQLite uses ? placeholders.
	DialectSQLite

	// DialectDuckDB uses ? placeholders.
	DialectDuckDB
)

// Logical column types understood by every dialect.
const (
	TypeInteger = "integer"
	TypeReal    = "real"
	TypeText    = "text"
)

func (d Dialect) String() string {
	switch d {
	case DialectPostgres:
		return "postgres"
	case DialectMySQL:
		return "mysql"
	case DialectSQLite:
		return "sqlite"
	case DialectDuckDB:
		return "duckdb"
	default:
		return fmt.Sprintf("dialect(%d)", int(d))
	}
}

// Placeholder returns the parameter placeholder for the 1-based index idx.
// Postgres: $1, $2, …   others: ? (index is ignored)
func (d Dialect) Placeholder(idx int) string {
	if d == DialectPostgres {
		return fmt.Sprintf("$%d", idx)
	}
	return "?"
}

// QuoteIdent quotes a SQL identifier. MySQL uses backticks unless ANSI_QUOTES
// is set, so it gets its own style; everything else is ANSI double quotes.
func (d Dialect) QuoteIdent(name string) string {
	if d == DialectMySQL {
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// SQLType maps a logical column type to the dialect's storage type.
// Unknown logical types fall back to text.
func (d Dialect) SQLType(logical string) string {
	switch logical {
	case TypeInteger:
		return "BIGINT"
	case TypeReal:
		if d == DialectMySQL || d == DialectDuckDB {
			return "DOUBLE"
		}
		if d == DialectPostgres {
			return "DOUBLE PRECISION"
		}
		return "REAL"
	default:
		return "TEXT"
	}
}

// keySQLType is SQLType for an indexed join-key column. MySQL cannot index
// TEXT without a prefix length, so text keys get a bounded VARCHAR.
func (d Dialect) keySQLType(logical string) string {
	if d == DialectMySQL && logical != TypeInteger && logical != TypeReal {
		return "VARCHAR(255)"
	}
	return d.SQLType(logical)
}

// caseInsensitiveLike renders a case-insensitive LIKE for the dialect.
func (d Dialect) caseInsensitiveLike(col, ph string) string {
	switch d {
	case DialectPostgres, DialectDuckDB:
		return fmt.Sprintf("%s ILIKE %s", col, ph)
	default:
		return fmt.Sprintf("LOWER(%s) LIKE LOWER(%s)", col, ph)
	}
}

// tableExistsSQL returns a one-parameter COUNT query over the dialect's
// table dictionary.
func (d Dialect) tableExistsSQL() string {
	switch d {
	case DialectSQLite:
		return `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`
	case DialectMySQL:
		return `
		SELECT COUNT(*)
		FROM information_schema.tables
		WHERE table_schema = DATABASE()
		  AND table_name   = ?`
	case DialectPostgres:
		return `
		SELECT COUNT(*)
		FROM information_schema.tables
		WHERE table_schema = current_schema()
		  AND table_type   = 'BASE TABLE'
		  AND table_name   = $1`
	default:
		return `
		SELECT COUNT(*)
		FROM information_schema.tables
		WHERE table_schema = current_schema()
		  AND table_name   = ?`
	}
}
