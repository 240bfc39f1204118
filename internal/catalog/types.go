// Package catalog describes the schema inferred from a dataset's files: one
// design table, one data table and any number of annotation tables grouped
// by category. A Catalog is built once at ingest and never mutated.
package catalog

import (
	"fmt"
	"strings"

	"github.com/koustreak/ExprDB/internal/database"
	"github.com/koustreak/ExprDB/internal/errs"
)

// ColumnType is the type inferred for a column from all of its values.
type ColumnType int

const (
	TypeText ColumnType = iota
	TypeInteger
	TypeReal
)

func (t ColumnType) String() string {
	switch t {
	case TypeInteger:
		return database.TypeInteger
	case TypeReal:
		return database.TypeReal
	default:
		return database.TypeText
	}
}

// Numeric reports whether values of t are numbers.
func (t ColumnType) Numeric() bool { return t == TypeInteger || t == TypeReal }

// ParseColumnType is the inverse of String.
func ParseColumnType(s string) (ColumnType, error) {
	switch strings.ToLower(s) {
	case database.TypeInteger:
		return TypeInteger, nil
	case database.TypeReal:
		return TypeReal, nil
	case database.TypeText:
		return TypeText, nil
	}
	return TypeText, fmt.Errorf("unknown column type %q", s)
}

func (t ColumnType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *ColumnType) UnmarshalText(b []byte) error {
	v, err := ParseColumnType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// TableKind distinguishes the three roles a table plays in a dataset.
type TableKind int

const (
	KindDesign TableKind = iota
	KindData
	KindAnnotation
)

func (k TableKind) String() string {
	switch k {
	case KindDesign:
		return "design"
	case KindData:
		return "data"
	default:
		return "annotation"
	}
}

func ParseTableKind(s string) (TableKind, error) {
	switch strings.ToLower(s) {
	case "design":
		return KindDesign, nil
	case "data":
		return KindData, nil
	case "annotation":
		return KindAnnotation, nil
	}
	return KindAnnotation, fmt.Errorf("unknown table kind %q", s)
}

func (k TableKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *TableKind) UnmarshalText(b []byte) error {
	v, err := ParseTableKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// Column is one inferred column. Position is 0-based within its table.
type Column struct {
	Name     string     `json:"name" yaml:"name"`
	Type     ColumnType `json:"type" yaml:"type"`
	Position int        `json:"position" yaml:"position"`
}

// Physical is the storage column name. Source headers are arbitrary text,
// so storage uses positional names and the catalog keeps the mapping.
func (c Column) Physical() string {
	return fmt.Sprintf("c%d", c.Position)
}

// RowColumn is the hidden ingest-ordinal column present in every stored table.
const RowColumn = "_row"

// TableMetadata describes one stored table.
type TableMetadata struct {
	Name     string    `json:"name" yaml:"name"`
	Kind     TableKind `json:"kind" yaml:"kind"`
	Category string    `json:"category,omitempty" yaml:"category,omitempty"`
	Physical string    `json:"-" yaml:"-"`
	Order    int       `json:"order" yaml:"order"` // registration order across the catalog
	Columns  []Column  `json:"columns" yaml:"columns"`
}

// Key is the join-key column: the first column of every table (feature id
// for data and annotation tables, sample id for the design table).
func (t *TableMetadata) Key() Column {
	return t.Columns[0]
}

// Column looks a column up by name.
func (t *TableMetadata) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// ValueColumns returns every column but the key. For the data table these
// are the per-sample measurement columns.
func (t *TableMetadata) ValueColumns() []Column {
	return t.Columns[1:]
}

// PhysicalName derives the storage table name from the registration order.
func PhysicalName(order int) string {
	return fmt.Sprintf("exprdb_t%d", order)
}

// QualifiedColumn references a column unambiguously across tables.
type QualifiedColumn struct {
	Table  string `json:"table" yaml:"table"`
	Column string `json:"column" yaml:"column"`
}

func (q QualifiedColumn) String() string {
	return q.Table + "." + q.Column
}

// ParseQualified splits "table.column" at the first dot. Column names may
// themselves contain dots; table names may not.
func ParseQualified(s string) (QualifiedColumn, error) {
	table, column, ok := strings.Cut(s, ".")
	if !ok || table == "" || column == "" {
		return QualifiedColumn{}, errs.Newf(errs.ErrKindInvalidInput, "expected table.column, got %q", s)
	}
	return QualifiedColumn{Table: table, Column: column}, nil
}
