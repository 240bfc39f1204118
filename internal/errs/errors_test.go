package errs

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Message(t *testing.T) {
	err := New(ErrKindUnknownColumn, "no such column").OnColumn("data", "S9")
	assert.Equal(t, "[unknown_column] no such column (data.S9)", err.Error())

	err = Wrap(ErrKindTimeout, "query cancelled", context.DeadlineExceeded)
	assert.Equal(t, "[timeout] query cancelled: context deadline exceeded", err.Error())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestKindOf_ThroughWrapping(t *testing.T) {
	inner := Newf(ErrKindMalformedRecord, "line %d: %d fields, want %d", 4, 2, 3)
	outer := fmt.Errorf("parse design.tsv: %w", inner)

	assert.Equal(t, ErrKindMalformedRecord, KindOf(outer))
	assert.True(t, IsMalformedRecord(outer))
	assert.False(t, IsEncoding(outer))
	assert.Equal(t, ErrKindUnknown, KindOf(errors.New("plain")))
	assert.Equal(t, ErrKindUnknown, KindOf(nil))
}

func TestEnsure(t *testing.T) {
	assert.NoError(t, Ensure(ErrKindQueryFailed, "scan", nil))

	kept := New(ErrKindNotFound, "missing")
	assert.Same(t, kept, Ensure(ErrKindQueryFailed, "scan", kept))

	wrapped := Ensure(ErrKindQueryFailed, "scan", errors.New("bad row"))
	assert.True(t, IsQueryFailed(wrapped))
}

func TestIsStorage(t *testing.T) {
	for _, k := range []ErrKind{ErrKindConnectionFailed, ErrKindTimeout, ErrKindQueryFailed, ErrKindPermissionDenied} {
		assert.True(t, IsStorage(New(k, "x")), k.String())
	}
	for _, k := range []ErrKind{ErrKindInvalidInput, ErrKindNotFound, ErrKindResourceLimit} {
		assert.False(t, IsStorage(New(k, "x")), k.String())
	}
}
