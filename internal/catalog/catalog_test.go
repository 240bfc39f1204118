package catalog

import (
	"context"
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/koustreak/ExprDB/internal/database"
	"github.com/koustreak/ExprDB/internal/database/sqlite"
	"github.com/koustreak/ExprDB/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cols(names ...string) []Column {
	out := make([]Column, len(names))
	for i, n := range names {
		out[i] = Column{Name: n, Type: TypeText, Position: i}
	}
	return out
}

func sampleTables() []TableMetadata {
	return []TableMetadata{
		{Name: "design", Kind: KindDesign, Order: 0, Columns: cols("sample", "treatment")},
		{Name: "data", Kind: KindData, Order: 1, Columns: []Column{
			{Name: "probe", Type: TypeText, Position: 0},
			{Name: "S1", Type: TypeInteger, Position: 1},
			{Name: "S2", Type: TypeInteger, Position: 2},
		}},
		{Name: "go_terms", Kind: KindAnnotation, Category: "go", Order: 3, Columns: cols("probe", "term")},
		{Name: "symbols", Kind: KindAnnotation, Category: "gene", Order: 2, Columns: cols("probe", "symbol")},
		{Name: "go_slim", Kind: KindAnnotation, Category: "go", Order: 4, Columns: cols("probe", "slim")},
	}
}

func TestNew(t *testing.T) {
	c, err := New("ds-1", time.Unix(0, 0), sampleTables())
	require.NoError(t, err)

	assert.Equal(t, "design", c.Design().Name)
	assert.Equal(t, "data", c.Data().Name)
	assert.Equal(t, []string{"gene", "go"}, c.Categories())

	var goNames []string
	for _, tbl := range c.Annotations("go") {
		goNames = append(goNames, tbl.Name)
	}
	assert.Equal(t, []string{"go_terms", "go_slim"}, goNames)

	var order []string
	for _, tbl := range c.Tables() {
		order = append(order, tbl.Name)
	}
	assert.Equal(t, []string{"design", "data", "symbols", "go_terms", "go_slim"}, order)

	tbl, ok := c.Table("symbols")
	require.True(t, ok)
	assert.Equal(t, "exprdb_t2", tbl.Physical)
	assert.Equal(t, "probe", tbl.Key().Name)
	assert.Len(t, c.Data().ValueColumns(), 2)
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func([]TableMetadata) []TableMetadata
		check  func(error) bool
	}{
		{
			name: "duplicate name",
			mutate: func(ts []TableMetadata) []TableMetadata {
				ts[2].Name = "symbols"
				return ts
			},
			check: errs.IsDuplicateTable,
		},
		{
			name: "second design table",
			mutate: func(ts []TableMetadata) []TableMetadata {
				ts[2].Kind = KindDesign
				return ts
			},
			check: errs.IsDuplicateTable,
		},
		{
			name: "no data table",
			mutate: func(ts []TableMetadata) []TableMetadata {
				return append(ts[:1], ts[2:]...)
			},
			check: errs.IsSchemaConsistency,
		},
		{
			name: "annotation without category",
			mutate: func(ts []TableMetadata) []TableMetadata {
				ts[3].Category = ""
				return ts
			},
			check: errs.IsSchemaConsistency,
		},
		{
			name: "empty table",
			mutate: func(ts []TableMetadata) []TableMetadata {
				ts[0].Columns = nil
				return ts
			},
			check: errs.IsSchemaConsistency,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New("ds", time.Now(), tt.mutate(sampleTables()))
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected kind: %v", err)
		})
	}
}

func TestNew_CopiesInput(t *testing.T) {
	tables := sampleTables()
	c, err := New("ds", time.Now(), tables)
	require.NoError(t, err)

	tables[0].Columns[0].Name = "mutated"
	assert.Equal(t, "sample", c.Design().Key().Name)

	snap := c.Describe()
	snap.Tables[0].Columns[0].Name = "mutated"
	assert.Equal(t, "sample", c.Design().Key().Name)
}

func TestResolve(t *testing.T) {
	c, err := New("ds", time.Now(), sampleTables())
	require.NoError(t, err)

	tbl, col, err := c.Resolve(QualifiedColumn{Table: "data", Column: "S2"})
	require.NoError(t, err)
	assert.Equal(t, "data", tbl.Name)
	assert.Equal(t, "c2", col.Physical())

	_, _, err = c.Resolve(QualifiedColumn{Table: "data", Column: "S9"})
	require.Error(t, err)
	assert.True(t, errs.IsUnknownColumn(err))

	var e *errs.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "data", e.Table)
	assert.Equal(t, "S9", e.Column)

	_, _, err = c.Resolve(QualifiedColumn{Table: "nope", Column: "x"})
	assert.True(t, errs.IsUnknownColumn(err))
}

func TestParseQualified(t *testing.T) {
	q, err := ParseQualified("symbols.gene.name")
	require.NoError(t, err)
	assert.Equal(t, QualifiedColumn{Table: "symbols", Column: "gene.name"}, q)
	assert.Equal(t, "symbols.gene.name", q.String())

	for _, bad := range []string{"", "data", ".S1", "data."} {
		_, err := ParseQualified(bad)
		assert.True(t, errs.IsInvalidInput(err), bad)
	}
}

func TestDescribe_JSON(t *testing.T) {
	c, err := New("ds", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), sampleTables())
	require.NoError(t, err)

	b, err := json.Marshal(c.Describe())
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, "design", got["design"])
	assert.Equal(t, map[string]any{"gene": []any{"symbols"}, "go": []any{"go_terms", "go_slim"}}, got["categories"])

	tables := got["tables"].([]any)
	first := tables[0].(map[string]any)
	assert.Equal(t, "design", first["kind"])
	assert.NotContains(t, first, "Physical")
	assert.Equal(t, "text", first["columns"].([]any)[0].(map[string]any)["type"])
}

func TestParseValue(t *testing.T) {
	v, err := ParseValue(TypeInteger, " 42 ")
	require.NoError(t, err)
	assert.Equal(t, int64(42), v.Int)

	v, err = ParseValue(TypeReal, "1e-3")
	require.NoError(t, err)
	assert.InDelta(t, 0.001, v.Real, 1e-12)

	_, err = ParseValue(TypeInteger, "4.2")
	assert.True(t, errs.IsTypeMismatch(err))

	_, err = ParseValue(TypeReal, "NaN")
	assert.True(t, errs.IsTypeMismatch(err))

	v, err = ParseValue(TypeText, "anything")
	require.NoError(t, err)
	assert.Equal(t, "anything", v.Text)
}

func TestIsInteger_IsReal(t *testing.T) {
	assert.True(t, IsInteger("-17"))
	assert.False(t, IsInteger("1.0"))
	assert.False(t, IsInteger("99999999999999999999"))

	assert.True(t, IsReal("1.5"))
	assert.True(t, IsReal("-2E10"))
	assert.True(t, IsReal("3"))
	assert.False(t, IsReal("inf"))
	assert.False(t, IsReal("0x1p-2"))
	assert.False(t, IsReal("1_000"))
	assert.False(t, IsReal(""))
}

func TestValueFormat(t *testing.T) {
	s, ok := RealValue(0.1).Format()
	require.True(t, ok)
	assert.Equal(t, "0.1", s)

	s, ok = IntValue(-3).Format()
	require.True(t, ok)
	assert.Equal(t, "-3", s)

	_, ok = NullValue(TypeText).Format()
	assert.False(t, ok)
	assert.Equal(t, "NULL", NullValue(TypeReal).String())

	b, err := json.Marshal([]Value{IntValue(1), NullValue(TypeReal), RealValue(math.Inf(1)), TextValue("x")})
	require.NoError(t, err)
	assert.JSONEq(t, `[1, null, "+Inf", "x"]`, string(b))
}

func TestFromDriver(t *testing.T) {
	tests := []struct {
		typ  ColumnType
		raw  any
		want Value
	}{
		{TypeInteger, int64(7), IntValue(7)},
		{TypeInteger, int32(7), IntValue(7)},
		{TypeInteger, []byte("7"), IntValue(7)},
		{TypeInteger, float64(7), IntValue(7)},
		{TypeReal, float32(1.5), RealValue(1.5)},
		{TypeReal, int64(2), RealValue(2)},
		{TypeReal, "2.25", RealValue(2.25)},
		{TypeText, []byte("abc"), TextValue("abc")},
		{TypeText, int64(5), TextValue("5")},
		{TypeReal, nil, NullValue(TypeReal)},
	}
	for _, tt := range tests {
		got, err := FromDriver(tt.typ, tt.raw)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := FromDriver(TypeInteger, 1.5)
	assert.True(t, errs.IsQueryFailed(err))
}

func openSQLite(t *testing.T) database.DB {
	t.Helper()
	db, err := sqlite.New(context.Background(), database.DefaultConfig(database.DriverSQLite, sqlite.MemoryDSN))
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return db
}

func TestSaveLoad(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)

	_, err := Load(ctx, db, db.Dialect())
	require.Error(t, err)
	assert.True(t, errs.IsNotFound(err))

	created := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	tx, err := db.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, EnsureMetadata(ctx, tx, db.Dialect()))
	require.NoError(t, Save(ctx, tx, db.Dialect(), "ds-42", created, sampleTables()))
	require.NoError(t, tx.Commit(ctx))

	c, err := Load(ctx, db, db.Dialect())
	require.NoError(t, err)
	assert.Equal(t, "ds-42", c.DatasetID())
	assert.True(t, created.Equal(c.CreatedAt()))

	want, err := New("ds-42", created, sampleTables())
	require.NoError(t, err)
	assert.Equal(t, want.Describe(), c.Describe())

	data := c.Data()
	assert.Equal(t, TypeInteger, data.Columns[1].Type)
	assert.Equal(t, "exprdb_t1", data.Physical)
}

func TestSave_RolledBackLeavesNothing(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)

	tx, err := db.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, EnsureMetadata(ctx, tx, db.Dialect()))
	require.NoError(t, Save(ctx, tx, db.Dialect(), "ds", time.Now(), sampleTables()))
	require.NoError(t, tx.Rollback(ctx))

	_, err = Load(ctx, db, db.Dialect())
	assert.True(t, errs.IsNotFound(err))
}
