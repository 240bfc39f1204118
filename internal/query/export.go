package query

import (
	"context"
	"encoding/csv"
	"io"

	"github.com/koustreak/ExprDB/internal/catalog"
	"github.com/koustreak/ExprDB/internal/errs"
)

// Export streams every row of q to sink as CSV: one header row of
// qualified column names, then one line per row. Nulls are empty fields.
//
// sink is flushed and closed on every path, including a failure half way
// through; the first error wins.
func (e *Executor) Export(ctx context.Context, sink io.WriteCloser, q Query) (err error) {
	w := csv.NewWriter(sink)
	defer func() {
		w.Flush()
		if ferr := w.Error(); err == nil && ferr != nil {
			err = errs.Wrap(errs.ErrKindQueryFailed, "export write failed", ferr)
		}
		if cerr := sink.Close(); err == nil && cerr != nil {
			err = errs.Wrap(errs.ErrKindQueryFailed, "export close failed", cerr)
		}
	}()

	var record []string
	return e.stream(ctx, q, 0, nil, func(cols []ResultColumn) error {
		header := make([]string, len(cols))
		for i, c := range cols {
			header[i] = c.QualifiedColumn.String()
		}
		record = make([]string, len(cols))
		return writeRecord(w, header)
	}, func(row catalog.Row) error {
		for i, v := range row {
			s, _ := v.Format()
			record[i] = s
		}
		return writeRecord(w, record)
	})
}

func writeRecord(w *csv.Writer, rec []string) error {
	if err := w.Write(rec); err != nil {
		return errs.Wrap(errs.ErrKindQueryFailed, "export write failed", err)
	}
	return nil
}
