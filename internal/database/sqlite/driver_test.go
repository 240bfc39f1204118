package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/koustreak/ExprDB/internal/database"
	"github.com/koustreak/ExprDB/internal/errs"
)

func TestKindOfCode(t *testing.T) {
	tests := []struct {
		name string
		code int
		want errs.ErrKind
	}{
		{"busy", sqlite3.SQLITE_BUSY, errs.ErrKindTimeout},
		{"busy snapshot", sqlite3.SQLITE_BUSY_SNAPSHOT, errs.ErrKindTimeout},
		{"locked", sqlite3.SQLITE_LOCKED, errs.ErrKindTimeout},
		{"locked shared cache", sqlite3.SQLITE_LOCKED_SHAREDCACHE, errs.ErrKindTimeout},
		{"interrupt", sqlite3.SQLITE_INTERRUPT, errs.ErrKindTimeout},
		{"readonly", sqlite3.SQLITE_READONLY, errs.ErrKindPermissionDenied},
		{"readonly moved", sqlite3.SQLITE_READONLY_DBMOVED, errs.ErrKindPermissionDenied},
		{"auth", sqlite3.SQLITE_AUTH, errs.ErrKindPermissionDenied},
		{"cantopen", sqlite3.SQLITE_CANTOPEN, errs.ErrKindConnectionFailed},
		{"notadb", sqlite3.SQLITE_NOTADB, errs.ErrKindConnectionFailed},
		{"constraint", sqlite3.SQLITE_CONSTRAINT, errs.ErrKindQueryFailed},
		{"generic", sqlite3.SQLITE_ERROR, errs.ErrKindQueryFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, kindOfCode(tt.code))
		})
	}
}

func TestMapError_NonSQLite(t *testing.T) {
	assert.Nil(t, mapError(nil, "op"))
	assert.True(t, errs.IsTimeout(mapError(context.DeadlineExceeded, "op")))
	assert.True(t, errs.IsNotFound(mapError(sql.ErrNoRows, "op")))

	cause := errors.New("boom")
	got := mapError(cause, "op")
	assert.True(t, errs.IsQueryFailed(got))
	assert.Equal(t, cause, errors.Unwrap(got))
}

func TestMapError_FromEngine(t *testing.T) {
	ctx := context.Background()
	db, err := New(ctx, database.DefaultConfig(database.DriverSQLite, MemoryDSN))
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(ctx, `CREATE TABLE t (a INTEGER)`)
	require.NoError(t, err)

	_, err = db.Exec(ctx, `SELEKT 1`)
	require.Error(t, err)
	assert.True(t, errs.IsQueryFailed(err))

	_, err = db.Exec(ctx, `PRAGMA query_only = ON`)
	require.NoError(t, err)
	_, err = db.Exec(ctx, `INSERT INTO t (a) VALUES (1)`)
	require.Error(t, err)
	assert.True(t, errs.IsPermissionDenied(err), err.Error())
}
