package replicate

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/ExprDB/internal/catalog"
	"github.com/koustreak/ExprDB/internal/database"
	"github.com/koustreak/ExprDB/internal/database/sqlite"
	"github.com/koustreak/ExprDB/internal/errs"
	"github.com/koustreak/ExprDB/internal/flatfile"
	"github.com/koustreak/ExprDB/internal/query"
	"github.com/koustreak/ExprDB/internal/schema"
)

func executor(t *testing.T) *query.Executor {
	t.Helper()
	ctx := context.Background()

	db, err := sqlite.New(ctx, database.DefaultConfig(database.DriverSQLite, sqlite.MemoryDSN))
	require.NoError(t, err)
	t.Cleanup(db.Close)

	parse := func(src string) *flatfile.Table {
		tbl, err := flatfile.Parse(strings.NewReader(src), flatfile.Options{Header: true, KeyFirst: true, NullTokens: []string{""}})
		require.NoError(t, err)
		return tbl
	}

	b, err := schema.Begin(ctx, db, nil)
	require.NoError(t, err)
	_, err = b.BuildDesignTable(ctx, "design", parse("sample,genotype,dose\nA,wt,1\nB,mut,2\nC,wt,10\n"))
	require.NoError(t, err)
	_, err = b.BuildDataTable(ctx, "data", parse("probe,A,B,C\nP1,5,7,5\nP2,8,,2\nP3,1,1,1\nP3b,1,1,1\n"))
	require.NoError(t, err)
	_, err = b.BuildAnnotationTable(ctx, "gene", "symbols", parse("probe,symbol\nP1,TP53\nP3,X\nP3b,X\n"))
	require.NoError(t, err)
	cat, err := b.Commit(ctx)
	require.NoError(t, err)

	return query.NewExecutor(db, cat, query.DefaultOptions(), nil)
}

func eq(col, value string) query.Filter {
	table, column, _ := strings.Cut(col, ".")
	return query.Filter{QualifiedColumn: catalog.QualifiedColumn{Table: table, Column: column}, Op: query.OpEq, Value: value}
}

func TestSeries(t *testing.T) {
	exec := executor(t)
	ctx := context.Background()

	gs, err := Series(ctx, exec, Request{
		Filters: []query.Filter{eq("symbols.symbol", "TP53")},
		GroupBy: "genotype",
		Options: Options{Merge: true, Descending: true},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"wt", "mut"}, keysOf(gs))
	assert.Equal(t, []string{"A", "C"}, gs[0].Samples)
	assert.Equal(t, Values{5, 5}, gs[0].Values)

	gs, err = Series(ctx, exec, Request{Filters: []query.Filter{eq("data.probe", "P1")}, GroupBy: "dose"})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "10"}, keysOf(gs))

	gs, err = Series(ctx, exec, Request{Filters: []query.Filter{eq("data.probe", "P1")}})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, keysOf(gs))

	gs, err = Series(ctx, exec, Request{Filters: []query.Filter{eq("data.probe", "P1")}, GroupBy: "sample"})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, keysOf(gs))
}

func TestSeries_DesignFilterNarrowsSamples(t *testing.T) {
	gs, err := Series(context.Background(), executor(t), Request{
		Filters: []query.Filter{eq("data.probe", "P2"), eq("design.genotype", "wt")},
		GroupBy: "genotype",
		Options: Options{Merge: true},
	})
	require.NoError(t, err)
	require.Len(t, gs, 1)
	assert.Equal(t, []string{"A", "C"}, gs[0].Samples)
}

func TestSeries_Errors(t *testing.T) {
	exec := executor(t)
	ctx := context.Background()

	_, err := Series(ctx, exec, Request{Filters: []query.Filter{eq("data.probe", "nope")}})
	assert.True(t, errs.IsNotFound(err))

	_, err = Series(ctx, exec, Request{Filters: []query.Filter{eq("symbols.symbol", "X")}})
	assert.True(t, errs.IsInvalidInput(err))

	_, err = Series(ctx, exec, Request{Filters: []query.Filter{eq("data.probe", "P1")}, GroupBy: "batch"})
	assert.True(t, errs.IsUnknownColumn(err))
}
