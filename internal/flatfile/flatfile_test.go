package flatfile

import (
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/koustreak/ExprDB/internal/catalog"
	"github.com/koustreak/ExprDB/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, src string, opts Options) *Table {
	t.Helper()
	tbl, err := Parse(strings.NewReader(src), opts)
	require.NoError(t, err)
	return tbl
}

func types(tbl *Table) []catalog.ColumnType {
	out := make([]catalog.ColumnType, len(tbl.Columns))
	for i, c := range tbl.Columns {
		out[i] = c.Type
	}
	return out
}

func TestParse_Header(t *testing.T) {
	tbl := parse(t, "probe,S1,S2\nP1,10,20\nP2,11,21.5\n", Options{Header: true})

	require.Equal(t, 3, tbl.Width())
	assert.Equal(t, "probe", tbl.Columns[0].Name)
	assert.Equal(t, "S2", tbl.Columns[2].Name)
	assert.Equal(t, 2, tbl.Columns[2].Position)
	assert.Equal(t, []catalog.ColumnType{catalog.TypeText, catalog.TypeInteger, catalog.TypeReal}, types(tbl))

	require.Len(t, tbl.Rows, 2)
	assert.Equal(t, catalog.Row{catalog.TextValue("P1"), catalog.IntValue(10), catalog.RealValue(20)}, tbl.Rows[0])
	assert.Equal(t, catalog.RealValue(21.5), tbl.Rows[1][2])
}

func TestParse_NoHeader(t *testing.T) {
	tbl := parse(t, "a\t1\nb\t2\n", Options{Delimiter: '\t'})

	assert.Equal(t, "column1", tbl.Columns[0].Name)
	assert.Equal(t, "column2", tbl.Columns[1].Name)
	assert.Len(t, tbl.Rows, 2)
	assert.Equal(t, []catalog.Value{catalog.IntValue(1), catalog.IntValue(2)}, tbl.Column(1))
}

func TestParse_BlankHeaderNamesArePositional(t *testing.T) {
	tbl := parse(t, ",x,\n1,2,3\n", Options{Header: true})
	assert.Equal(t, "column1", tbl.Columns[0].Name)
	assert.Equal(t, "x", tbl.Columns[1].Name)
	assert.Equal(t, "column3", tbl.Columns[2].Name)
}

func TestParse_InferenceUsesEveryValue(t *testing.T) {
	tests := []struct {
		name string
		col  string
		want catalog.ColumnType
	}{
		{"all integers", "1\n2\n-3", catalog.TypeInteger},
		{"one decimal", "1\n2.5\n3", catalog.TypeReal},
		{"exponent", "1e3\n2", catalog.TypeReal},
		{"late text", "1\n2\nthree", catalog.TypeText},
		{"empty value", "1\n\n3", catalog.TypeText},
		{"nan spelling", "1.0\nNaN", catalog.TypeText},
		{"padded integers", " 1\n2 ", catalog.TypeInteger},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// A second column keeps blank fields from becoming blank lines.
			lines := strings.Split(tt.col, "\n")
			var sb strings.Builder
			sb.WriteString("v,k\n")
			for _, l := range lines {
				sb.WriteString(l + ",k\n")
			}
			tbl := parse(t, sb.String(), Options{Header: true})
			assert.Equal(t, tt.want, tbl.Columns[0].Type)
			for _, row := range tbl.Rows {
				assert.Len(t, row, 2)
			}
		})
	}
}

func TestParse_NullTokens(t *testing.T) {
	tbl := parse(t, "id,score\nA,1.5\nB,NA\nC,\nD,2\n", Options{Header: true, NullTokens: []string{"NA", ""}})

	assert.Equal(t, catalog.TypeReal, tbl.Columns[1].Type)
	assert.True(t, tbl.Rows[1][1].Null)
	assert.True(t, tbl.Rows[2][1].Null)
	assert.Equal(t, catalog.TypeReal, tbl.Rows[1][1].Type)
	assert.Equal(t, 2.0, tbl.Rows[3][1].Real)
}

func TestParse_AllNullColumnIsText(t *testing.T) {
	tbl := parse(t, "id,x\nA,NA\nB,NA\n", Options{Header: true, NullTokens: []string{"NA"}})
	assert.Equal(t, catalog.TypeText, tbl.Columns[1].Type)
}

func TestParse_QuotedFields(t *testing.T) {
	tbl := parse(t, "id,desc\nP1,\"kinase, putative\"\nP2,\"say \"\"hi\"\"\"\n", Options{Header: true})
	assert.Equal(t, "kinase, putative", tbl.Rows[0][1].Text)
	assert.Equal(t, `say "hi"`, tbl.Rows[1][1].Text)
}

func TestParse_ByteOrderMark(t *testing.T) {
	tbl := parse(t, "\ufeffsample,treatment\nS1,ctrl\n", Options{Header: true})
	assert.Equal(t, "sample", tbl.Columns[0].Name)
}

func TestParse_HeaderOnly(t *testing.T) {
	tbl := parse(t, "probe,S1\n", Options{Header: true})
	assert.Equal(t, 2, tbl.Width())
	assert.Empty(t, tbl.Rows)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		opts  Options
		check func(error) bool
	}{
		{"short row", "a,b,c\n1,2\n", Options{Header: true}, errs.IsMalformedRecord},
		{"long row", "a,b\n1,2\n3,4,5\n", Options{}, errs.IsMalformedRecord},
		{"bare quote", "a,b\n1,x\"y\n", Options{Header: true}, errs.IsMalformedRecord},
		{"duplicate header", "id,x,x\n1,2,3\n", Options{Header: true}, errs.IsMalformedRecord},
		{"empty file", "", Options{Header: true}, errs.IsMalformedRecord},
		{"invalid utf-8", "id,name\n1,caf\xe9\n", Options{Header: true}, errs.IsEncoding},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.src), tt.opts)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected kind: %v", err)
		})
	}
}

func TestParse_LazyQuotes(t *testing.T) {
	tbl := parse(t, "a,b\n1,x\"y\n", Options{Header: true, LazyQuotes: true})
	assert.Equal(t, `x"y`, tbl.Rows[0][1].Text)
}

func TestParse_ReaderFailureIsEncoding(t *testing.T) {
	r := io.MultiReader(strings.NewReader("a,b\n1,2\n"), iotest.ErrReader(errors.New("gzip: invalid header")))
	_, err := Parse(r, Options{Header: true})
	require.Error(t, err)
	assert.True(t, errs.IsEncoding(err))
}

func TestParse_RowWidthInvariant(t *testing.T) {
	src := "f,a,b,c\nx,1,2,3\ny,4,,6\nz,7,8,9\n"
	tbl := parse(t, src, Options{Header: true, NullTokens: []string{""}})
	for _, row := range tbl.Rows {
		assert.Len(t, row, len(tbl.Columns))
	}
	assert.Equal(t, catalog.TypeInteger, tbl.Columns[2].Type)
	assert.True(t, tbl.Rows[1][2].Null)
}

func TestParse_KeyFirst(t *testing.T) {
	tbl := parse(t, "sample,dose\n1.0,5\n2,6\n", Options{Header: true, KeyFirst: true})
	assert.Equal(t, catalog.TypeText, tbl.Columns[0].Type)
	assert.Equal(t, "1.0", tbl.Rows[0][0].Text)
	assert.Equal(t, catalog.TypeInteger, tbl.Columns[1].Type)
}
