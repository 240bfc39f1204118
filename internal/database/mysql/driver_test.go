package mysql

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"

	"github.com/koustreak/ExprDB/internal/errs"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errs.ErrKind
	}{
		{"deadline", context.DeadlineExceeded, errs.ErrKindTimeout},
		{"no rows", sql.ErrNoRows, errs.ErrKindNotFound},
		{"access denied", &mysql.MySQLError{Number: 1045}, errs.ErrKindPermissionDenied},
		{"table access denied", &mysql.MySQLError{Number: 1142}, errs.ErrKindPermissionDenied},
		{"too many connections", &mysql.MySQLError{Number: 1040}, errs.ErrKindConnectionFailed},
		{"unknown database", &mysql.MySQLError{Number: 1049}, errs.ErrKindConnectionFailed},
		{"max execution time", &mysql.MySQLError{Number: 3024}, errs.ErrKindTimeout},
		{"interrupted", &mysql.MySQLError{Number: 1317}, errs.ErrKindTimeout},
		{"duplicate key", &mysql.MySQLError{Number: 1062}, errs.ErrKindQueryFailed},
		{"bad connection", mysql.ErrInvalidConn, errs.ErrKindConnectionFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapError(tt.err, "op")
			assert.Equal(t, tt.want, got.Kind)
			assert.Equal(t, tt.err, errors.Unwrap(got))
		})
	}

	assert.Nil(t, mapError(nil, "op"))
}

func TestMapError_KeepsServerMessage(t *testing.T) {
	got := mapError(&mysql.MySQLError{Number: 1146, Message: "Table 'exprdb.t_data' doesn't exist"}, "query failed")
	assert.Equal(t, "query failed: Table 'exprdb.t_data' doesn't exist", got.Message)
}
