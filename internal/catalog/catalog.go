package catalog

import (
	"sort"
	"time"

	"github.com/koustreak/ExprDB/internal/errs"
)

// Catalog is the immutable registry of every table in a dataset.
// It is safe for concurrent use because nothing mutates it after New.
type Catalog struct {
	datasetID  string
	createdAt  time.Time
	tables     map[string]*TableMetadata
	ordered    []*TableMetadata
	byCategory map[string][]*TableMetadata
	design     *TableMetadata
	data       *TableMetadata
}

// New validates tables and builds the catalog. Exactly one design table and
// one data table are required; names must be unique; annotation tables must
// carry a category.
func New(datasetID string, createdAt time.Time, tables []TableMetadata) (*Catalog, error) {
	c := &Catalog{
		datasetID:  datasetID,
		createdAt:  createdAt,
		tables:     make(map[string]*TableMetadata, len(tables)),
		byCategory: make(map[string][]*TableMetadata),
	}

	for i := range tables {
		t := tables[i]
		t.Columns = append([]Column(nil), t.Columns...)
		if len(t.Columns) == 0 {
			return nil, errs.Newf(errs.ErrKindSchemaConsistency, "table %q has no columns", t.Name)
		}
		if _, dup := c.tables[t.Name]; dup {
			return nil, errs.Newf(errs.ErrKindDuplicateTable, "table %q registered twice", t.Name)
		}
		if t.Physical == "" {
			t.Physical = PhysicalName(t.Order)
		}

		switch t.Kind {
		case KindDesign:
			if c.design != nil {
				return nil, errs.Newf(errs.ErrKindDuplicateTable, "second design table %q (already have %q)", t.Name, c.design.Name)
			}
			c.design = &t
		case KindData:
			if c.data != nil {
				return nil, errs.Newf(errs.ErrKindDuplicateTable, "second data table %q (already have %q)", t.Name, c.data.Name)
			}
			c.data = &t
		case KindAnnotation:
			if t.Category == "" {
				return nil, errs.Newf(errs.ErrKindSchemaConsistency, "annotation table %q has no category", t.Name)
			}
			c.byCategory[t.Category] = append(c.byCategory[t.Category], &t)
		}
		c.tables[t.Name] = &t
		c.ordered = append(c.ordered, &t)
	}

	if c.design == nil {
		return nil, errs.New(errs.ErrKindSchemaConsistency, "dataset has no design table")
	}
	if c.data == nil {
		return nil, errs.New(errs.ErrKindSchemaConsistency, "dataset has no data table")
	}

	byOrder := func(ts []*TableMetadata) {
		sort.SliceStable(ts, func(i, j int) bool { return ts[i].Order < ts[j].Order })
	}
	byOrder(c.ordered)
	for _, ts := range c.byCategory {
		byOrder(ts)
	}
	return c, nil
}

// DatasetID identifies the ingest that produced this catalog.
func (c *Catalog) DatasetID() string { return c.datasetID }

// CreatedAt is the publish time.
func (c *Catalog) CreatedAt() time.Time { return c.createdAt }

// Design returns the design table.
func (c *Catalog) Design() *TableMetadata { return c.design }

// Data returns the data table.
func (c *Catalog) Data() *TableMetadata { return c.data }

// Table looks a table up by name.
func (c *Catalog) Table(name string) (*TableMetadata, bool) {
	t, ok := c.tables[name]
	return t, ok
}

// Tables returns every table in registration order.
func (c *Catalog) Tables() []*TableMetadata {
	return append([]*TableMetadata(nil), c.ordered...)
}

// Categories returns the annotation categories, sorted.
func (c *Catalog) Categories() []string {
	out := make([]string, 0, len(c.byCategory))
	for k := range c.byCategory {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Annotations returns the annotation tables of one category in registration order.
func (c *Catalog) Annotations(category string) []*TableMetadata {
	return append([]*TableMetadata(nil), c.byCategory[category]...)
}

// Resolve finds the table and column a qualified reference names.
func (c *Catalog) Resolve(q QualifiedColumn) (*TableMetadata, Column, error) {
	t, ok := c.tables[q.Table]
	if !ok {
		return nil, Column{}, errs.New(errs.ErrKindUnknownColumn, "unknown table").OnColumn(q.Table, q.Column)
	}
	col, ok := t.Column(q.Column)
	if !ok {
		return nil, Column{}, errs.New(errs.ErrKindUnknownColumn, "unknown column").OnColumn(q.Table, q.Column)
	}
	return t, col, nil
}

// Snapshot is the serialisable form returned by schema discovery.
type Snapshot struct {
	DatasetID  string              `json:"dataset_id" yaml:"dataset_id"`
	CreatedAt  time.Time           `json:"created_at" yaml:"created_at"`
	Design     string              `json:"design" yaml:"design"`
	Data       string              `json:"data" yaml:"data"`
	Categories map[string][]string `json:"categories" yaml:"categories"`
	Tables     []TableMetadata     `json:"tables" yaml:"tables"`
}

// Describe returns a deep copy of the catalog for callers outside the engine.
func (c *Catalog) Describe() Snapshot {
	s := Snapshot{
		DatasetID:  c.datasetID,
		CreatedAt:  c.createdAt,
		Design:     c.design.Name,
		Data:       c.data.Name,
		Categories: make(map[string][]string, len(c.byCategory)),
	}
	for cat, ts := range c.byCategory {
		for _, t := range ts {
			s.Categories[cat] = append(s.Categories[cat], t.Name)
		}
	}
	for _, t := range c.ordered {
		cp := *t
		cp.Columns = append([]Column(nil), t.Columns...)
		s.Tables = append(s.Tables, cp)
	}
	return s
}
