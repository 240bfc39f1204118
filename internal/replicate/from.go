package replicate

import (
	"math"

	"github.com/koustreak/ExprDB/internal/catalog"
	"github.com/koustreak/ExprDB/internal/errs"
	"github.com/koustreak/ExprDB/internal/query"
)

// FromFeatureRow takes the data-table sample columns of row i of td as
// samples. Null measurements become NaN.
func FromFeatureRow(cat *catalog.Catalog, td *query.TableData, i int) ([]Sample, error) {
	if i < 0 || i >= td.Len() {
		return nil, errs.Newf(errs.ErrKindInvalidInput, "row %d out of range [0,%d)", i, td.Len())
	}
	data := cat.Data()
	row := td.Row(i)

	var out []Sample
	for c, col := range td.Columns {
		if col.Table != data.Name || col.Column == data.Key().Name {
			continue
		}
		v := row[c]
		f, ok := v.Float()
		switch {
		case v.Null:
			f = math.NaN()
		case !ok:
			return nil, errs.New(errs.ErrKindTypeMismatch, "sample column is not numeric").
				OnColumn(col.Table, col.Column)
		}
		out = append(out, Sample{Name: col.Column, Value: f})
	}
	if len(out) == 0 {
		return nil, errs.New(errs.ErrKindInvalidInput, "result has no sample columns")
	}
	return out, nil
}

// KeysFromDesign maps each sample of a sample-keyed result to the value of
// its column named column. td must project the design table's identifier
// column and column.
func KeysFromDesign(cat *catalog.Catalog, td *query.TableData, column string) (map[string]Key, error) {
	design := cat.Design()
	idCol := td.ColumnIndex(catalog.QualifiedColumn{Table: design.Name, Column: design.Key().Name})
	if idCol < 0 {
		return nil, errs.New(errs.ErrKindUnknownColumn, "result does not include the sample identifier").
			OnColumn(design.Name, design.Key().Name)
	}
	keyCol := td.ColumnIndex(catalog.QualifiedColumn{Table: design.Name, Column: column})
	if keyCol < 0 {
		return nil, errs.New(errs.ErrKindUnknownColumn, "result does not include the ordering column").
			OnColumn(design.Name, column)
	}

	keys := make(map[string]Key, td.Len())
	for _, row := range td.Rows {
		id, ok := row[idCol].Format()
		if !ok {
			continue
		}
		keys[id] = KeyOf(row[keyCol])
	}
	return keys, nil
}
