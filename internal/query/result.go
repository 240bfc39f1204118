package query

import "github.com/koustreak/ExprDB/internal/catalog"

// ResultColumn describes one projected column.
type ResultColumn struct {
	catalog.QualifiedColumn
	Type catalog.ColumnType `json:"type"`
}

// TableData is a materialized result: typed columns and rows aligned to
// them.
type TableData struct {
	Columns []ResultColumn `json:"columns"`
	Rows    []catalog.Row  `json:"rows"`
}

// Len returns the number of rows.
func (t *TableData) Len() int { return len(t.Rows) }

// Row returns the row at offset i.
func (t *TableData) Row(i int) catalog.Row { return t.Rows[i] }

// ColumnIndex returns the position of q in the result, or -1.
func (t *TableData) ColumnIndex(q catalog.QualifiedColumn) int {
	for i, c := range t.Columns {
		if c.QualifiedColumn == q {
			return i
		}
	}
	return -1
}

// TextData is the all-text projection of a TableData. A nil cell is a
// null, so the projection stays lossless.
type TextData struct {
	Columns []string    `json:"columns"`
	Types   []string    `json:"types"`
	Rows    [][]*string `json:"rows"`
}

// Text projects t to text. Reals use the shortest spelling that parses
// back to the same value.
func (t *TableData) Text() *TextData {
	out := &TextData{
		Columns: make([]string, len(t.Columns)),
		Types:   make([]string, len(t.Columns)),
		Rows:    make([][]*string, len(t.Rows)),
	}
	for i, c := range t.Columns {
		out.Columns[i] = c.QualifiedColumn.String()
		out.Types[i] = c.Type.String()
	}
	for r, row := range t.Rows {
		out.Rows[r] = textRow(row)
	}
	return out
}

func textRow(row catalog.Row) []*string {
	cells := make([]*string, len(row))
	for i, v := range row {
		if s, ok := v.Format(); ok {
			cells[i] = &s
		}
	}
	return cells
}
