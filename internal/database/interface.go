package database

import "context"

// DB is the central contract for all storage operations.
// All layers above this package talk only to this interface;
// they never import the postgres, mysql, sqlite or duckdb packages directly.
type DB interface {
	Querier
	Execer

	// Ping verifies the database is reachable.
	Ping(ctx context.Context) error

	// Close releases all resources held by the connection pool.
	Close()

	// Dialect reports the SQL dialect the backend speaks.
	Dialect() Dialect

	// Begin starts a transaction. Ingest writes happen inside one.
	Begin(ctx context.Context) (Tx, error)
}

// Querier runs read statements. Both DB and Tx satisfy it.
type Querier interface {
	// Query executes a SQL statement that returns multiple rows.
	Query(ctx context.Context, sql string, args ...any) (Rows, error)

	// QueryRow executes a SQL statement that returns at most one row.
	QueryRow(ctx context.Context, sql string, args ...any) Row
}

// Execer runs statements that return no rows.
type Execer interface {
	// Exec executes a statement and returns the number of rows affected.
	Exec(ctx context.Context, sql string, args ...any) (int64, error)
}

// Tx is an open transaction. Exactly one of Commit or Rollback must be called;
// Rollback after Commit is a no-op.
type Tx interface {
	Querier
	Execer
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Rows is an abstraction over a database result set.
// Callers must always call Close() when done, even on error.
type Rows interface {
	// Next advances to the next row.
	// Returns false when no more rows exist or on error.
	Next() bool

	// Scan copies the current row's columns into the provided destinations.
	Scan(dest ...any) error

	// Columns returns the column names of the result set.
	Columns() ([]string, error)

	// Close releases resources held by the result set.
	Close()

	// Err returns any error encountered during iteration.
	Err() error
}

// Row is an abstraction over a single database row.
type Row interface {
	Scan(dest ...any) error
}

// ExecAll runs stmts in order, stopping at the first failure.
func ExecAll(ctx context.Context, e Execer, stmts []Statement) error {
	for _, s := range stmts {
		if _, err := e.Exec(ctx, s.SQL, s.Args...); err != nil {
			return err
		}
	}
	return nil
}
