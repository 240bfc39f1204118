// Package mysql provides a MySQL implementation of database.DB.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/koustreak/ExprDB/internal/database"
	"github.com/koustreak/ExprDB/internal/database/sqlstd"
	"github.com/koustreak/ExprDB/internal/errs"
)

// New opens a MySQL connection pool using the provided Config and returns it
// as a database.DB. It calls Ping to validate the connection before returning.
//
// MySQL commits DDL implicitly, so an aborted ingest may leave orphaned data
// tables behind; they stay invisible because the catalog rows are written
// last, inside the same transaction as the final inserts.
func New(ctx context.Context, cfg *database.Config) (*sqlstd.DB, error) {
	mcfg, err := mysql.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "invalid DSN", err)
	}
	// Typed scanning relies on native int64/float64 values.
	mcfg.InterpolateParams = false
	mcfg.ParseTime = false
	if cfg.ConnectTimeout > 0 {
		mcfg.Timeout = cfg.ConnectTimeout
	}

	connector, err := mysql.NewConnector(mcfg)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "invalid DSN", err)
	}
	db := sql.OpenDB(connector)
	sqlstd.ApplyPool(db, cfg)

	d := sqlstd.Wrap(db, database.DialectMySQL, mapError)

	pingCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	if err := d.Ping(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return d, nil
}

// --- error mapping ---

// mapError translates go-sql-driver/mysql errors into *errs.Error.
func mapError(err error, msg string) *errs.Error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	if errors.Is(err, sql.ErrNoRows) {
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return errs.Wrap(
			classifyMySQLCode(mysqlErr.Number),
			fmt.Sprintf("%s: %s", msg, mysqlErr.Message),
			err,
		)
	}

	// Anything else (driver.ErrBadConn, mysql.ErrInvalidConn, network) is connectivity.
	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}

// classifyMySQLCode maps MySQL error numbers to ErrKind.
func classifyMySQLCode(code uint16) errs.ErrKind {
	switch code {
	case 1044, 1045, 1142, 1143:
		return errs.ErrKindPermissionDenied
	case 1040, 1046, 1049, 1203:
		return errs.ErrKindConnectionFailed
	case 3024, 1317:
		return errs.ErrKindTimeout
	default:
		return errs.ErrKindQueryFailed
	}
}
