package query

import (
	"github.com/koustreak/ExprDB/internal/catalog"
	"github.com/koustreak/ExprDB/internal/database"
	"github.com/koustreak/ExprDB/internal/errs"
)

// boundFilter is a filter resolved against the catalog with its literal
// converted to the column type.
type boundFilter struct {
	table *catalog.TableMetadata
	col   catalog.Column
	op    string
	value any
}

func (f boundFilter) ref() database.Ref {
	return database.Ref{Table: f.table.Physical, Column: f.col.Physical()}
}

func (f boundFilter) apply(sb *database.SelectBuilder) {
	switch f.op {
	case OpIsNull:
		sb.WhereNull(f.ref(), false)
	case OpIsNotNull:
		sb.WhereNull(f.ref(), true)
	default:
		sb.WhereRef(f.ref(), f.op, f.value)
	}
}

type term struct {
	table *catalog.TableMetadata
	col   catalog.Column
}

func (t term) result() ResultColumn {
	return ResultColumn{
		QualifiedColumn: catalog.QualifiedColumn{Table: t.table.Name, Column: t.col.Name},
		Type:            t.col.Type,
	}
}

// plan is a resolved query. Building one never touches storage.
//
// A plan is sample-keyed when the design table is the only table the query
// touches: it reads design rows. Otherwise it is feature-keyed: it reads
// the data table, joined to the annotation tables it names, and uses any
// design-table filters only to choose which samples to project.
type plan struct {
	sampleKeyed bool
	root        *catalog.TableMetadata
	terms       []term
	joins       []*catalog.TableMetadata
	filters     []boundFilter
	design      []boundFilter

	// valueTerms reports whether any data value column was requested.
	valueTerms bool
}

func (e *Executor) plan(q Query) (*plan, error) {
	if err := e.limits.Check(q); err != nil {
		return nil, err
	}
	if len(q.Terms) == 0 && len(q.Filters) == 0 {
		return nil, errs.New(errs.ErrKindInvalidInput, "query has no terms and no filters")
	}

	cat := e.cat
	p := &plan{sampleKeyed: true}
	for _, name := range q.Tables() {
		t, ok := cat.Table(name)
		if ok && t.Kind != catalog.KindDesign {
			p.sampleKeyed = false
		}
	}
	if p.sampleKeyed {
		p.root = cat.Design()
	} else {
		p.root = cat.Data()
	}

	joined := make(map[string]bool)
	for _, qc := range q.Terms {
		t, col, err := cat.Resolve(qc)
		if err != nil {
			return nil, err
		}
		if !p.sampleKeyed && t.Kind == catalog.KindDesign {
			return nil, errs.New(errs.ErrKindInvalidInput,
				"design columns cannot be projected alongside feature data; filter on them instead").
				OnColumn(qc.Table, qc.Column)
		}
		if t.Kind == catalog.KindData && col.Position > 0 {
			p.valueTerms = true
		}
		p.terms = append(p.terms, term{table: t, col: col})
		if t.Kind == catalog.KindAnnotation {
			joined[t.Name] = true
		}
	}

	for _, f := range q.Filters {
		bf, err := bind(cat, f)
		if err != nil {
			return nil, err
		}
		switch {
		case !p.sampleKeyed && bf.table.Kind == catalog.KindDesign:
			p.design = append(p.design, bf)
		default:
			p.filters = append(p.filters, bf)
		}
		if bf.table.Kind == catalog.KindAnnotation {
			joined[bf.table.Name] = true
		}
	}

	// Join in registration order so ordering ties break the same way on
	// every call.
	for _, t := range cat.Tables() {
		if joined[t.Name] {
			p.joins = append(p.joins, t)
		}
	}
	return p, nil
}

// bind resolves f and converts its literal.
func bind(cat *catalog.Catalog, f Filter) (boundFilter, error) {
	t, col, err := cat.Resolve(f.QualifiedColumn)
	if err != nil {
		return boundFilter{}, err
	}
	bf := boundFilter{table: t, col: col, op: normalizeOp(f.Op)}

	switch {
	case bf.op == OpIsNull || bf.op == OpIsNotNull:
		return bf, nil
	case bf.op == OpLike || bf.op == OpILike:
		if col.Type != catalog.TypeText {
			return boundFilter{}, errs.Newf(errs.ErrKindTypeMismatch,
				"%s needs a text column, %s is %s", bf.op, f.QualifiedColumn, col.Type).
				OnColumn(t.Name, col.Name)
		}
		bf.value = f.Value
		return bf, nil
	case comparisonOps[bf.op]:
		v, err := catalog.ParseValue(col.Type, f.Value)
		if err != nil {
			return boundFilter{}, errs.Wrap(errs.ErrKindTypeMismatch,
				"literal does not match column type "+col.Type.String(), err).
				OnColumn(t.Name, col.Name)
		}
		bf.value = v.Any()
		return bf, nil
	}
	return boundFilter{}, errs.Newf(errs.ErrKindInvalidInput, "unsupported operator %q", f.Op).
		OnColumn(t.Name, col.Name)
}

// project returns the terms to read once the selected samples are known.
// samples is nil when no design filter applies.
func (p *plan) project(data *catalog.TableMetadata, samples map[string]bool) []term {
	if samples == nil {
		return p.terms
	}
	var out []term
	for _, t := range p.terms {
		if t.table.Kind == catalog.KindData && t.col.Position > 0 && !samples[t.col.Name] {
			continue
		}
		out = append(out, t)
	}
	if !p.valueTerms {
		for _, c := range data.ValueColumns() {
			if samples[c.Name] {
				out = append(out, term{table: data, col: c})
			}
		}
	}
	return out
}

// selectFor renders the statement shared by row reads and counts.
func (p *plan) selectFor(d database.Dialect, policy JoinPolicy) *database.SelectBuilder {
	sb := database.Select(p.root.Physical, d)
	kind := database.LeftJoin
	if policy == JoinInner {
		kind = database.InnerJoin
	}
	key := database.Ref{Table: p.root.Physical, Column: p.root.Key().Physical()}
	for _, t := range p.joins {
		sb.Join(kind, t.Physical, key, database.Ref{Table: t.Physical, Column: t.Key().Physical()})
	}
	for _, f := range p.filters {
		f.apply(sb)
	}
	return sb
}

// order appends the deterministic row order: root key, root ingest
// ordinal, then each joined table's ingest ordinal in registration order.
func (p *plan) order(sb *database.SelectBuilder) {
	sb.OrderByRef(database.Ref{Table: p.root.Physical, Column: p.root.Key().Physical()}, database.Asc)
	sb.OrderByRef(database.Ref{Table: p.root.Physical, Column: catalog.RowColumn}, database.Asc)
	for _, t := range p.joins {
		sb.OrderByRef(database.Ref{Table: t.Physical, Column: catalog.RowColumn}, database.Asc)
	}
}

// tableNames lists the logical tables the plan reads, for logging.
func (p *plan) tableNames() []string {
	out := []string{p.root.Name}
	for _, t := range p.joins {
		out = append(out, t.Name)
	}
	return out
}
