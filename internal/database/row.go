package database

import "github.com/koustreak/ExprDB/internal/errs"

// ScanRows reads all rows from the result set and returns them as a slice
// of maps, where each key is the column name and each value is the Go-native
// representation of the DB value.
//
// The returned slice is always non-nil (empty slice on zero rows).
// ScanRows always closes the Rows. Callers do not need to call Close().
func ScanRows(rows Rows) ([]map[string]any, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindQueryFailed, "failed to read column names", err)
	}

	result := make([]map[string]any, 0)
	err = ScanEach(rows, len(columns), func(vals []any) error {
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = vals[i]
		}
		result = append(result, row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ScanEach scans every remaining row into n *any targets and hands the
// values to fn. The slice passed to fn is reused between calls.
// ScanEach does not close rows.
func ScanEach(rows Rows, n int, fn func(vals []any) error) error {
	dest := make([]any, n)
	destPtrs := make([]any, n)
	for i := range dest {
		destPtrs[i] = &dest[i]
	}

	for rows.Next() {
		for i := range dest {
			dest[i] = nil
		}
		if err := rows.Scan(destPtrs...); err != nil {
			return errs.Ensure(errs.ErrKindQueryFailed, "failed to scan row", err)
		}
		if err := fn(dest); err != nil {
			return err
		}
	}

	if err := rows.Err(); err != nil {
		return errs.Ensure(errs.ErrKindQueryFailed, "error during row iteration", err)
	}
	return nil
}
