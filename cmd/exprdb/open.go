package main

import (
	"context"

	"github.com/koustreak/ExprDB/internal/catalog"
	"github.com/koustreak/ExprDB/internal/database"
	"github.com/koustreak/ExprDB/internal/database/duckdb"
	"github.com/koustreak/ExprDB/internal/database/mysql"
	"github.com/koustreak/ExprDB/internal/database/postgres"
	"github.com/koustreak/ExprDB/internal/database/sqlite"
	"github.com/koustreak/ExprDB/internal/database/sqlstd"
	"github.com/koustreak/ExprDB/internal/errs"
	"github.com/koustreak/ExprDB/internal/filestore"
	"github.com/koustreak/ExprDB/internal/filestore/minio"
	"github.com/koustreak/ExprDB/internal/ingest"
	"github.com/koustreak/ExprDB/internal/query"
)

// openDB connects to the configured backend.
func (a *app) openDB(ctx context.Context) (database.DB, error) {
	cfg := &a.cfg.Database
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	var (
		db  database.DB
		err error
	)
	switch cfg.Driver {
	case database.DriverPostgres:
		var d *postgres.Driver
		if d, err = postgres.New(ctx, cfg); err == nil {
			db = d
		}
	case database.DriverMySQL:
		db, err = unwrap(mysql.New(ctx, cfg))
	case database.DriverDuckDB:
		db, err = unwrap(duckdb.New(ctx, cfg))
	case database.DriverSQLite:
		db, err = unwrap(sqlite.New(ctx, cfg))
	default:
		err = errs.Newf(errs.ErrKindInvalidInput, "unsupported driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	a.log.With().Str("driver", string(cfg.Driver)).Logger().Debug("database connected")
	return db, nil
}

// unwrap keeps a nil driver from turning into a non-nil interface.
func unwrap(d *sqlstd.DB, err error) (database.DB, error) {
	if err != nil {
		return nil, err
	}
	return d, nil
}

// opener builds the source opener, connecting to the object store when one
// is configured.
func (a *app) opener(ctx context.Context) (*ingest.Opener, func(), error) {
	fc := &a.cfg.Filestore
	if !fc.Enabled() {
		return ingest.NewOpener(nil, ""), func() {}, nil
	}

	var store filestore.Store
	switch fc.Provider {
	case filestore.ProviderMinIO:
		d, err := minio.New(ctx, fc)
		if err != nil {
			return nil, nil, err
		}
		store = d
	default:
		return nil, nil, errs.Newf(errs.ErrKindInvalidInput, "unsupported filestore provider %q", fc.Provider)
	}
	return ingest.NewOpener(store, fc.DefaultBucket), func() { _ = store.Close() }, nil
}

// executor loads the published catalog and returns an executor over it.
// The caller closes the returned database.
func (a *app) executor(ctx context.Context) (*query.Executor, database.DB, error) {
	db, err := a.openDB(ctx)
	if err != nil {
		return nil, nil, err
	}
	cat, err := catalog.Load(ctx, db, db.Dialect())
	if err != nil {
		db.Close()
		if errs.IsNotFound(err) {
			return nil, nil, errs.Wrap(errs.ErrKindNotFound, "no dataset published yet; run exprdb ingest first", err)
		}
		return nil, nil, err
	}
	return query.NewExecutor(db, cat, a.cfg.Query, a.log), db, nil
}
