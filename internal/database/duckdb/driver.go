// Package duckdb provides a DuckDB implementation of database.DB, suited to
// large data tables queried column-wise.
package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/koustreak/ExprDB/internal/database"
	"github.com/koustreak/ExprDB/internal/database/sqlstd"
	"github.com/koustreak/ExprDB/internal/errs"
	duckdb "github.com/marcboeker/go-duckdb"
)

// New opens a DuckDB database. Use "" or ":memory:" for an in-memory database.
func New(ctx context.Context, cfg *database.Config) (*sqlstd.DB, error) {
	connector, err := duckdb.NewConnector(cfg.DSN, nil)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "failed to open duckdb connection", err)
	}

	db := sql.OpenDB(connector)
	sqlstd.ApplyPool(db, cfg)

	d := sqlstd.Wrap(db, database.DialectDuckDB, mapError)
	if err := d.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return d, nil
}

// mapError translates go-duckdb errors into *errs.Error.
func mapError(err error, msg string) *errs.Error {
	if err == nil {
		return nil
	}

	var de *duckdb.Error
	if errors.As(err, &de) {
		switch de.Type {
		case duckdb.ErrorTypeInterrupt:
			return errs.Wrap(errs.ErrKindTimeout, msg, err)
		case duckdb.ErrorTypePermission:
			return errs.Wrap(errs.ErrKindPermissionDenied, msg, err)
		case duckdb.ErrorTypeConnection, duckdb.ErrorTypeIO:
			return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
		default:
			return errs.Wrap(errs.ErrKindQueryFailed, fmt.Sprintf("%s: %s", msg, de.Msg), err)
		}
	}

	return sqlstd.MapCommon(err, msg)
}
