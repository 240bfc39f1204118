package replicate

import (
	"context"

	"github.com/koustreak/ExprDB/internal/catalog"
	"github.com/koustreak/ExprDB/internal/errs"
	"github.com/koustreak/ExprDB/internal/query"
)

// Request selects one feature and says how to group its samples.
type Request struct {
	// Filters must match exactly one feature. Design table filters narrow
	// the samples taken from it.
	Filters []query.Filter `json:"filters" yaml:"filters"`

	// GroupBy names a design table column whose values key the samples.
	// Empty keys every sample by its own name.
	GroupBy string `json:"group_by,omitempty" yaml:"group_by,omitempty"`

	Options `yaml:",inline"`
}

// Series runs req against exec and groups the feature's sample values.
func Series(ctx context.Context, exec *query.Executor, req Request) ([]Group, error) {
	cat := exec.Catalog()
	data := cat.Data()

	q := query.Query{Filters: req.Filters}
	for _, c := range data.ValueColumns() {
		q.Terms = append(q.Terms, catalog.QualifiedColumn{Table: data.Name, Column: c.Name})
	}

	// Two rows are enough to tell a unique match from an ambiguous one.
	td, err := exec.Execute(ctx, q, 0, 2)
	if err != nil {
		return nil, err
	}
	switch td.Len() {
	case 0:
		return nil, errs.New(errs.ErrKindNotFound, "no feature matches the filters")
	case 1:
	default:
		return nil, errs.New(errs.ErrKindInvalidInput, "filters match more than one feature")
	}

	samples, err := FromFeatureRow(cat, td, 0)
	if err != nil {
		return nil, err
	}

	var keys map[string]Key
	if req.GroupBy != "" {
		design := cat.Design()
		dq := query.Query{Terms: []catalog.QualifiedColumn{{Table: design.Name, Column: design.Key().Name}}}
		if req.GroupBy != design.Key().Name {
			dq.Terms = append(dq.Terms, catalog.QualifiedColumn{Table: design.Name, Column: req.GroupBy})
		}
		dt, err := exec.ExecuteAll(ctx, dq)
		if err != nil {
			return nil, err
		}
		if keys, err = KeysFromDesign(cat, dt, req.GroupBy); err != nil {
			return nil, err
		}
	}
	return Groups(samples, keys, req.Options), nil
}
