// Package sqlstd adapts a database/sql pool to database.DB. The mysql,
// sqlite and duckdb drivers share it and differ only in how they open the
// pool and classify native errors.
package sqlstd

import (
	"context"
	"database/sql"
	"errors"

	"github.com/koustreak/ExprDB/internal/database"
	"github.com/koustreak/ExprDB/internal/errs"
)

// ErrorMapper translates a driver-native error into *errs.Error.
type ErrorMapper func(err error, msg string) *errs.Error

// DB is a database.DB over *sql.DB.
// It is safe for concurrent use by multiple goroutines.
type DB struct {
	db      *sql.DB
	dialect database.Dialect
	mapErr  ErrorMapper
}

// Wrap adapts an open pool. mapErr may be nil, in which case MapCommon is used.
func Wrap(db *sql.DB, d database.Dialect, mapErr ErrorMapper) *DB {
	if mapErr == nil {
		mapErr = MapCommon
	}
	return &DB{db: db, dialect: d, mapErr: mapErr}
}

// ApplyPool copies pool tuning from cfg onto db.
func ApplyPool(db *sql.DB, cfg *database.Config) {
	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(int(cfg.MaxConns))
	}
	if cfg.MinConns > 0 {
		db.SetMaxIdleConns(int(cfg.MinConns))
	}
	db.SetConnMaxLifetime(cfg.MaxConnLifetime)
	db.SetConnMaxIdleTime(cfg.MaxConnIdleTime)
}

// Ping verifies the database is reachable.
func (d *DB) Ping(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return d.mapErr(err, "ping failed")
	}
	return nil
}

func (d *DB) Close() {
	_ = d.db.Close()
}

func (d *DB) Dialect() database.Dialect { return d.dialect }

// SQLDB returns the underlying *sql.DB (for advanced use)
func (d *DB) SQLDB() *sql.DB { return d.db }

func (d *DB) Query(ctx context.Context, query string, args ...any) (database.Rows, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, d.mapErr(err, "query failed")
	}
	return &sqlRows{rows: rows, mapErr: d.mapErr}, nil
}

func (d *DB) QueryRow(ctx context.Context, query string, args ...any) database.Row {
	return &sqlRow{row: d.db.QueryRowContext(ctx, query, args...), mapErr: d.mapErr}
}

func (d *DB) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, d.mapErr(err, "exec failed")
	}
	return rowsAffected(res), nil
}

func (d *DB) Begin(ctx context.Context) (database.Tx, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, d.mapErr(err, "begin failed")
	}
	return &sqlTx{tx: tx, mapErr: d.mapErr}, nil
}

// --- *sql.Rows / *sql.Row / *sql.Tx wrappers ---

type sqlRows struct {
	rows   *sql.Rows
	mapErr ErrorMapper
}

func (r *sqlRows) Next() bool                 { return r.rows.Next() }
func (r *sqlRows) Columns() ([]string, error) { return r.rows.Columns() }
func (r *sqlRows) Close()                     { _ = r.rows.Close() }

func (r *sqlRows) Scan(dest ...any) error {
	if err := r.rows.Scan(dest...); err != nil {
		return r.mapErr(err, "scan failed")
	}
	return nil
}

func (r *sqlRows) Err() error {
	if err := r.rows.Err(); err != nil {
		return r.mapErr(err, "row iteration failed")
	}
	return nil
}

type sqlRow struct {
	row    *sql.Row
	mapErr ErrorMapper
}

func (r *sqlRow) Scan(dest ...any) error {
	if err := r.row.Scan(dest...); err != nil {
		return r.mapErr(err, "scan failed")
	}
	return nil
}

type sqlTx struct {
	tx     *sql.Tx
	mapErr ErrorMapper
}

func (t *sqlTx) Query(ctx context.Context, query string, args ...any) (database.Rows, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, t.mapErr(err, "query failed")
	}
	return &sqlRows{rows: rows, mapErr: t.mapErr}, nil
}

func (t *sqlTx) QueryRow(ctx context.Context, query string, args ...any) database.Row {
	return &sqlRow{row: t.tx.QueryRowContext(ctx, query, args...), mapErr: t.mapErr}
}

func (t *sqlTx) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, t.mapErr(err, "exec failed")
	}
	return rowsAffected(res), nil
}

func (t *sqlTx) Commit(_ context.Context) error {
	if err := t.tx.Commit(); err != nil {
		return t.mapErr(err, "commit failed")
	}
	return nil
}

func (t *sqlTx) Rollback(_ context.Context) error {
	err := t.tx.Rollback()
	if err == nil || errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return t.mapErr(err, "rollback failed")
}

func rowsAffected(res sql.Result) int64 {
	n, err := res.RowsAffected()
	if err != nil {
		return -1
	}
	return n
}

// MapCommon handles the errors every database/sql driver shares: context
// expiry and sql.ErrNoRows. Anything else is reported as a query failure.
func MapCommon(err error, msg string) *errs.Error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	}
	if errors.Is(err, sql.ErrConnDone) {
		return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
	}
	return errs.Wrap(errs.ErrKindQueryFailed, msg, err)
}
