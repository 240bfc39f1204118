// Package flatfile parses delimited text files into typed tables.
//
// Every column's type is inferred from all of its values, not just the
// first row: integer when every value is an integer literal, real when
// every value is numeric and at least one is not an integer, text
// otherwise.
package flatfile

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/koustreak/ExprDB/internal/catalog"
	"github.com/koustreak/ExprDB/internal/errs"
)

// Options controls how records are split and named.
type Options struct {
	// Delimiter separates fields. Zero means comma.
	Delimiter rune

	// Header marks the first record as column names. Without a header,
	// columns are named column1, column2, ….
	Header bool

	// LazyQuotes tolerates stray quotes inside unquoted fields.
	LazyQuotes bool

	// NullTokens lists field values stored as NULL. They take no part in
	// type inference. Nil means every value must parse as the column type.
	NullTokens []string

	// KeyFirst marks the first column as an identifier. It is always text
	// and keeps the exact spelling of every value.
	KeyFirst bool
}

// Table is a parsed file: ordered columns and rows aligned to them.
type Table struct {
	Columns []catalog.Column
	Rows    []catalog.Row
}

const bom = "\ufeff"

// Parse reads every record from r and infers column types.
// It fails with ErrKindMalformedRecord when a record's field count
// disagrees with the first record's and with ErrKindEncoding when a field
// is not valid UTF-8.
func Parse(r io.Reader, opts Options) (*Table, error) {
	cr := csv.NewReader(r)
	if opts.Delimiter != 0 {
		cr.Comma = opts.Delimiter
	}
	cr.LazyQuotes = opts.LazyQuotes
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = false

	nulls := make(map[string]struct{}, len(opts.NullTokens))
	for _, t := range opts.NullTokens {
		nulls[t] = struct{}{}
	}

	var (
		names   []string
		records [][]string
		width   = -1
		first   = true
	)

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return nil, errs.Wrap(errs.ErrKindMalformedRecord, fmt.Sprintf("line %d", pe.Line), err)
			}
			// Errors from the underlying reader come from decompression or
			// charset decoding.
			return nil, errs.Ensure(errs.ErrKindEncoding, "read failed", err)
		}

		line, _ := cr.FieldPos(0)
		if first && len(rec) > 0 {
			rec[0] = strings.TrimPrefix(rec[0], bom)
			first = false
		}
		for i, f := range rec {
			if !utf8.ValidString(f) {
				return nil, errs.Newf(errs.ErrKindEncoding, "line %d field %d: invalid UTF-8", line, i+1)
			}
		}

		if width < 0 {
			width = len(rec)
		} else if len(rec) != width {
			return nil, errs.Newf(errs.ErrKindMalformedRecord,
				"line %d: %d fields, want %d", line, len(rec), width)
		}

		if opts.Header && names == nil {
			names = rec
			continue
		}
		records = append(records, rec)
	}

	if width <= 0 {
		return nil, errs.New(errs.ErrKindMalformedRecord, "file has no records")
	}

	columns, err := nameColumns(names, width)
	if err != nil {
		return nil, err
	}

	for i := range columns {
		if i == 0 && opts.KeyFirst {
			continue
		}
		columns[i].Type = inferType(records, i, nulls)
	}

	rows := make([]catalog.Row, len(records))
	for r, rec := range records {
		row := make(catalog.Row, width)
		for i, f := range rec {
			typ := columns[i].Type
			if _, isNull := nulls[f]; isNull {
				row[i] = catalog.NullValue(typ)
				continue
			}
			v, err := catalog.ParseValue(typ, f)
			if err != nil {
				// Unreachable: the type was inferred from this value.
				return nil, err
			}
			row[i] = v
		}
		rows[r] = row
	}

	return &Table{Columns: columns, Rows: rows}, nil
}

func nameColumns(header []string, width int) ([]catalog.Column, error) {
	cols := make([]catalog.Column, width)
	seen := make(map[string]int, width)
	for i := range cols {
		name := ""
		if i < len(header) {
			name = strings.TrimSpace(header[i])
		}
		if name == "" {
			name = fmt.Sprintf("column%d", i+1)
		}
		if prev, dup := seen[name]; dup {
			return nil, errs.Newf(errs.ErrKindMalformedRecord,
				"duplicate column name %q (fields %d and %d)", name, prev+1, i+1)
		}
		seen[name] = i
		cols[i] = catalog.Column{Name: name, Position: i}
	}
	return cols, nil
}

func inferType(records [][]string, col int, nulls map[string]struct{}) catalog.ColumnType {
	allInt, allReal, seen := true, true, false
	for _, rec := range records {
		f := rec[col]
		if _, isNull := nulls[f]; isNull {
			continue
		}
		seen = true
		f = strings.TrimSpace(f)
		if allInt && !catalog.IsInteger(f) {
			allInt = false
		}
		if allReal && !catalog.IsReal(f) {
			allReal = false
		}
		if !allInt && !allReal {
			return catalog.TypeText
		}
	}
	switch {
	case !seen:
		return catalog.TypeText
	case allInt:
		return catalog.TypeInteger
	case allReal:
		return catalog.TypeReal
	}
	return catalog.TypeText
}

// Width reports the number of columns.
func (t *Table) Width() int { return len(t.Columns) }

// Column returns the values of column i.
func (t *Table) Column(i int) []catalog.Value {
	out := make([]catalog.Value, len(t.Rows))
	for r, row := range t.Rows {
		out[r] = row[i]
	}
	return out
}
