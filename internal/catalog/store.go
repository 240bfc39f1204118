package catalog

import (
	"context"
	"time"

	"github.com/koustreak/ExprDB/internal/database"
	"github.com/koustreak/ExprDB/internal/errs"
)

// Metadata tables persisted next to the dataset tables.
const (
	tablesTable  = "exprdb_tables"
	columnsTable = "exprdb_columns"
)

func metaDefs() map[string][]database.ColumnDef {
	return map[string][]database.ColumnDef{
		tablesTable: {
			{Name: "name", Type: database.TypeText, Key: true},
			{Name: "kind", Type: database.TypeText},
			{Name: "category", Type: database.TypeText},
			{Name: "physical", Type: database.TypeText},
			{Name: "ord", Type: database.TypeInteger},
			{Name: "dataset_id", Type: database.TypeText},
			{Name: "created_at", Type: database.TypeText},
		},
		columnsTable: {
			{Name: "table_name", Type: database.TypeText, Key: true},
			{Name: "position", Type: database.TypeInteger},
			{Name: "name", Type: database.TypeText},
			{Name: "type", Type: database.TypeText},
		},
	}
}

// EnsureMetadata creates the metadata tables when they are missing.
func EnsureMetadata(ctx context.Context, tx database.Tx, d database.Dialect) error {
	for _, name := range []string{tablesTable, columnsTable} {
		exists, err := database.TableExists(ctx, tx, d, name)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		stmts, err := database.CreateTable(d, name, metaDefs()[name])
		if err != nil {
			return err
		}
		for _, s := range stmts {
			if _, err := tx.Exec(ctx, s); err != nil {
				return err
			}
		}
	}
	return nil
}

// Save records tables in the metadata tables. It runs inside the ingest
// transaction so the catalog becomes visible exactly when the data does.
func Save(ctx context.Context, tx database.Tx, d database.Dialect, datasetID string, createdAt time.Time, tables []TableMetadata) error {
	if len(tables) == 0 {
		return nil
	}
	ts := createdAt.UTC().Format(time.RFC3339Nano)

	tb := database.Insert(tablesTable, d).
		Columns("name", "kind", "category", "physical", "ord", "dataset_id", "created_at")
	cb := database.Insert(columnsTable, d).
		Columns("table_name", "position", "name", "type")

	for _, t := range tables {
		tb.Values(t.Name, t.Kind.String(), t.Category, t.Physical, int64(t.Order), datasetID, ts)
		for _, c := range t.Columns {
			cb.Values(t.Name, int64(c.Position), c.Name, c.Type.String())
		}
	}

	for _, b := range []*database.InsertBuilder{tb, cb} {
		stmts, err := b.Build()
		if err != nil {
			return err
		}
		if err := database.ExecAll(ctx, tx, stmts); err != nil {
			return err
		}
	}
	return nil
}

// Stored reads the registered tables without building a Catalog. A store
// with no metadata yet yields an empty slice.
func Stored(ctx context.Context, q database.Querier, d database.Dialect) ([]TableMetadata, string, time.Time, error) {
	exists, err := database.TableExists(ctx, q, d, tablesTable)
	if err != nil || !exists {
		return nil, "", time.Time{}, err
	}

	byName := map[string]*TableMetadata{}
	var (
		order     []string
		datasetID string
		createdAt time.Time
		firstOrd  = -1
	)

	tsql, targs, err := database.Select(tablesTable, d).
		Columns("name", "kind", "category", "physical", "ord", "dataset_id", "created_at").
		OrderBy("ord", database.Asc).
		Build()
	if err != nil {
		return nil, "", time.Time{}, err
	}
	rows, err := q.Query(ctx, tsql, targs...)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	err = database.ScanEach(rows, 7, func(v []any) error {
		kind, err := ParseTableKind(asString(v[1]))
		if err != nil {
			return errs.Wrap(errs.ErrKindQueryFailed, "corrupt catalog", err)
		}
		ord := int(asInt(v[4]))
		t := &TableMetadata{
			Name:     asString(v[0]),
			Kind:     kind,
			Category: asString(v[2]),
			Physical: asString(v[3]),
			Order:    ord,
		}
		byName[t.Name] = t
		order = append(order, t.Name)
		// The oldest ingest names the dataset.
		if firstOrd < 0 || ord < firstOrd {
			firstOrd = ord
			datasetID = asString(v[5])
			createdAt, _ = time.Parse(time.RFC3339Nano, asString(v[6]))
		}
		return nil
	})
	rows.Close()
	if err != nil {
		return nil, "", time.Time{}, err
	}

	csql, cargs, err := database.Select(columnsTable, d).
		Columns("table_name", "position", "name", "type").
		OrderBy("table_name", database.Asc).
		OrderBy("position", database.Asc).
		Build()
	if err != nil {
		return nil, "", time.Time{}, err
	}
	rows, err = q.Query(ctx, csql, cargs...)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	err = database.ScanEach(rows, 4, func(v []any) error {
		t, ok := byName[asString(v[0])]
		if !ok {
			return nil
		}
		typ, err := ParseColumnType(asString(v[3]))
		if err != nil {
			return errs.Wrap(errs.ErrKindQueryFailed, "corrupt catalog", err)
		}
		t.Columns = append(t.Columns, Column{Name: asString(v[2]), Type: typ, Position: int(asInt(v[1]))})
		return nil
	})
	rows.Close()
	if err != nil {
		return nil, "", time.Time{}, err
	}

	out := make([]TableMetadata, 0, len(order))
	for _, name := range order {
		out = append(out, *byName[name])
	}
	return out, datasetID, createdAt, nil
}

// Load rebuilds the published catalog. It fails with ErrKindNotFound when
// nothing has been ingested yet.
func Load(ctx context.Context, q database.Querier, d database.Dialect) (*Catalog, error) {
	tables, datasetID, createdAt, err := Stored(ctx, q, d)
	if err != nil {
		return nil, err
	}
	if len(tables) == 0 {
		return nil, errs.New(errs.ErrKindNotFound, "no dataset has been ingested")
	}
	return New(datasetID, createdAt, tables)
}

func asString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case nil:
		return ""
	}
	s, _ := FromDriver(TypeText, v)
	return s.Text
}

func asInt(v any) int64 {
	n, err := FromDriver(TypeInteger, v)
	if err != nil {
		return 0
	}
	return n.Int
}
