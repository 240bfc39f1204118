package query

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/ExprDB/internal/catalog"
	"github.com/koustreak/ExprDB/internal/errs"
)

func TestQuery_TableCount(t *testing.T) {
	q := Query{
		Terms:   terms("data.S1", "data.S2", "symbols.symbol"),
		Filters: []Filter{filter("go_terms.term", "LIKE", "%x%"), filter("data.S1", ">", "1")},
	}
	assert.Equal(t, []string{"data", "symbols", "go_terms"}, q.Tables())
	assert.Equal(t, 3, q.TableCount())
}

func TestLimits_Check(t *testing.T) {
	l := Limits{MaxFilters: 1, MaxTerms: 2, MaxTables: 2}

	assert.NoError(t, l.Check(Query{Terms: terms("data.S1", "data.S2"), Filters: []Filter{filter("design.x", "=", "1")}}))

	err := l.Check(Query{Filters: []Filter{filter("data.S1", "=", "1"), filter("data.S1", "=", "2")}})
	assert.True(t, errs.IsResourceLimit(err))

	err = l.Check(Query{Terms: terms("data.S1", "data.S2", "data.S3")})
	assert.True(t, errs.IsResourceLimit(err))

	err = l.Check(Query{Terms: terms("a.x", "b.x"), Filters: []Filter{filter("c.x", "=", "1")}})
	assert.True(t, errs.IsResourceLimit(err))

	assert.NoError(t, Limits{}.Check(Query{Terms: terms("a.x", "b.x", "c.x", "d.x")}))
}

func TestParseJoinPolicy(t *testing.T) {
	for in, want := range map[string]JoinPolicy{"": JoinOuter, "outer": JoinOuter, "LEFT": JoinOuter, " inner ": JoinInner} {
		got, err := ParseJoinPolicy(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseJoinPolicy("full")
	assert.True(t, errs.IsInvalidInput(err))

	var p JoinPolicy
	require.NoError(t, p.UnmarshalText([]byte("inner")))
	assert.Equal(t, JoinInner, p)
	assert.Equal(t, "inner", p.String())
}

func TestParseFilter(t *testing.T) {
	tests := []struct {
		in   string
		want Filter
	}{
		{"data.S1 > 4.5", filter("data.S1", ">", "4.5")},
		{"go_terms.term like %protein  kinase%", filter("go_terms.term", "LIKE", "%protein  kinase%")},
		{"symbols.symbol IS NULL", filter("symbols.symbol", "IS NULL", "")},
		{"symbols.symbol is not null", filter("symbols.symbol", "IS NOT NULL", "")},
		{"design.treatment = drug", filter("design.treatment", "=", "drug")},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFilter(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, bad := range []string{"", "data.S1", "data.S1 >", "S1 > 3"} {
		_, err := ParseFilter(bad)
		assert.True(t, errs.IsInvalidInput(err), bad)
	}
}

func TestFilter_JSON(t *testing.T) {
	var q Query
	require.NoError(t, json.Unmarshal([]byte(`{
		"terms": [{"table": "data", "column": "S1"}],
		"filters": [{"table": "symbols", "column": "symbol", "op": "=", "value": "TP53"}]
	}`), &q))

	assert.Equal(t, terms("data.S1"), q.Terms)
	assert.Equal(t, []Filter{filter("symbols.symbol", "=", "TP53")}, q.Filters)
	assert.Equal(t, "symbols.symbol = TP53", q.Filters[0].String())
}

func TestTableData_Text(t *testing.T) {
	td := &TableData{
		Columns: []ResultColumn{
			{QualifiedColumn: qc("data.probe"), Type: catalog.TypeText},
			{QualifiedColumn: qc("data.S1"), Type: catalog.TypeReal},
			{QualifiedColumn: qc("symbols.symbol"), Type: catalog.TypeText},
		},
		Rows: []catalog.Row{
			{catalog.TextValue("P1"), catalog.RealValue(0.1), catalog.NullValue(catalog.TypeText)},
			{catalog.TextValue("P2"), catalog.RealValue(1e21), catalog.TextValue("")},
		},
	}

	text := td.Text()
	assert.Equal(t, []string{"data.probe", "data.S1", "symbols.symbol"}, text.Columns)
	assert.Equal(t, []string{"text", "real", "text"}, text.Types)
	assert.Equal(t, "0.1", *text.Rows[0][1])
	assert.Nil(t, text.Rows[0][2])
	assert.Equal(t, "1e+21", *text.Rows[1][1])
	require.NotNil(t, text.Rows[1][2])
	assert.Equal(t, "", *text.Rows[1][2])

	assert.Equal(t, 1, td.ColumnIndex(qc("data.S1")))
	assert.Equal(t, -1, td.ColumnIndex(qc("data.S9")))

	b, err := json.Marshal(td)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"columns": [
			{"table": "data", "column": "probe", "type": "text"},
			{"table": "data", "column": "S1", "type": "real"},
			{"table": "symbols", "column": "symbol", "type": "text"}
		],
		"rows": [["P1", 0.1, null], ["P2", 1e21, ""]]
	}`, string(b))
}
