// Package sqlite provides an embedded SQLite implementation of database.DB
// (pure Go, modernc.org/sqlite). It is the default backend and the one the
// test suites run against.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/koustreak/ExprDB/internal/database"
	"github.com/koustreak/ExprDB/internal/database/sqlstd"
	"github.com/koustreak/ExprDB/internal/errs"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// MemoryDSN opens a private in-memory database.
const MemoryDSN = ":memory:"

// New opens a SQLite database using the provided Config.
//
// In-memory databases exist per connection, so the pool is pinned to a
// single connection for them.
func New(ctx context.Context, cfg *database.Config) (*sqlstd.DB, error) {
	dsn := cfg.DSN
	if dsn == "" {
		dsn = MemoryDSN
	}

	db, err := sql.Open("sqlite", withPragmas(dsn))
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "failed to open sqlite database", err)
	}

	sqlstd.ApplyPool(db, cfg)
	if isMemory(dsn) {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
		db.SetConnMaxIdleTime(0)
	}

	d := sqlstd.Wrap(db, database.DialectSQLite, mapError)
	if err := d.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return d, nil
}

func isMemory(dsn string) bool {
	return dsn == MemoryDSN || strings.Contains(dsn, "mode=memory") || strings.HasPrefix(dsn, "file::memory:")
}

// withPragmas adds a busy timeout so concurrent readers wait for the ingest
// writer instead of failing immediately.
func withPragmas(dsn string) string {
	if strings.Contains(dsn, "_pragma=busy_timeout") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%s_pragma=busy_timeout(5000)", dsn, sep)
}

// mapError translates modernc.org/sqlite errors into *errs.Error.
func mapError(err error, msg string) *errs.Error {
	if err == nil {
		return nil
	}

	var se *sqlite.Error
	if errors.As(err, &se) {
		kind := kindOfCode(se.Code())
		if kind == errs.ErrKindQueryFailed {
			msg = fmt.Sprintf("%s: %s", msg, se.Error())
		}
		return errs.Wrap(kind, msg, err)
	}

	return sqlstd.MapCommon(err, msg)
}

// kindOfCode classifies a primary or extended SQLite result code.
func kindOfCode(code int) errs.ErrKind {
	switch code & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_INTERRUPT:
		return errs.ErrKindTimeout
	case sqlite3.SQLITE_PERM, sqlite3.SQLITE_AUTH, sqlite3.SQLITE_READONLY:
		return errs.ErrKindPermissionDenied
	case sqlite3.SQLITE_CANTOPEN, sqlite3.SQLITE_NOTADB:
		return errs.ErrKindConnectionFailed
	}
	return errs.ErrKindQueryFailed
}
