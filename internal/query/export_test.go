package query

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/ExprDB/internal/errs"
)

type closeRecorder struct {
	io.Writer
	closed int
}

func (c *closeRecorder) Close() error {
	c.closed++
	return nil
}

func nopCloser(w io.Writer) *closeRecorder { return &closeRecorder{Writer: w} }

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestExport_CSV(t *testing.T) {
	exec := standard(t).executor(DefaultOptions())

	var buf bytes.Buffer
	sink := nopCloser(&buf)
	err := exec.Export(context.Background(), sink, Query{Terms: terms("data.probe", "symbols.symbol", "data.S1")})
	require.NoError(t, err)

	assert.Equal(t, 1, sink.closed)
	assert.Equal(t,
		"data.probe,symbols.symbol,data.S1\n"+
			"P1,TP53,10\n"+
			"P2,,5\n"+
			"P3,BRCA1,1.5\n",
		buf.String())
}

func TestExport_FilteredRows(t *testing.T) {
	exec := standard(t).executor(DefaultOptions())

	var buf bytes.Buffer
	sink := nopCloser(&buf)
	require.NoError(t, exec.Export(context.Background(), sink, Query{
		Terms:   terms("data.probe"),
		Filters: []Filter{filter("data.probe", "=", "P1")},
	}))
	assert.Equal(t, "data.probe\nP1\n", buf.String())
}

func TestExport_ClosesSinkOnQueryError(t *testing.T) {
	exec := standard(t).executor(DefaultOptions())

	sink := nopCloser(io.Discard)
	err := exec.Export(context.Background(), sink, Query{Terms: terms("data.nope")})
	require.Error(t, err)
	assert.True(t, errs.IsUnknownColumn(err))
	assert.Equal(t, 1, sink.closed)
}

func TestExport_ClosesSinkOnWriteError(t *testing.T) {
	exec := standard(t).executor(DefaultOptions())

	sink := nopCloser(failingWriter{})
	err := exec.Export(context.Background(), sink, Query{Terms: terms("data.probe")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken pipe")
	assert.Equal(t, 1, sink.closed)
}

func TestExport_ClosesSinkOnCancel(t *testing.T) {
	exec := standard(t).executor(DefaultOptions())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sink := nopCloser(io.Discard)
	err := exec.Export(ctx, sink, Query{Terms: terms("data.probe")})
	require.Error(t, err)
	assert.Equal(t, 1, sink.closed)
}
