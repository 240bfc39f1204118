package database

import "context"

// TableExists reports whether a table with the given name exists in the
// connection's current schema.
func TableExists(ctx context.Context, q Querier, d Dialect, table string) (bool, error) {
	var n int64
	if err := q.QueryRow(ctx, d.tableExistsSQL(), table).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}
