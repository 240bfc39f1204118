// Package query answers bounded, declarative queries over a published
// dataset without the caller knowing its schema in advance.
//
// A Query names the columns to project and the filters to apply, both as
// table-qualified column references. The executor resolves them against
// the catalog, plans the joins from each table's role, and reads the
// result in a deterministic order so pagination is stable.
package query

import (
	"fmt"
	"strings"

	"github.com/koustreak/ExprDB/internal/catalog"
	"github.com/koustreak/ExprDB/internal/errs"
)

// Query is a declarative request. It is never persisted.
type Query struct {
	Terms   []catalog.QualifiedColumn `json:"terms" yaml:"terms"`
	Filters []Filter                  `json:"filters,omitempty" yaml:"filters,omitempty"`
}

// Filter compares a column with a literal. The literal is text and is
// converted to the column's type before it reaches storage.
type Filter struct {
	catalog.QualifiedColumn `yaml:",inline"`
	Op                      string `json:"op" yaml:"op"`
	Value                   string `json:"value,omitempty" yaml:"value,omitempty"`
}

// Supported operators.
const (
	OpEq        = "="
	OpNe        = "!="
	OpNeAlt     = "<>"
	OpLt        = "<"
	OpLe        = "<="
	OpGt        = ">"
	OpGe        = ">="
	OpLike      = "LIKE"
	OpILike     = "ILIKE"
	OpIsNull    = "IS NULL"
	OpIsNotNull = "IS NOT NULL"
)

var comparisonOps = map[string]bool{
	OpEq: true, OpNe: true, OpNeAlt: true,
	OpLt: true, OpLe: true, OpGt: true, OpGe: true,
}

// normalizeOp upper-cases op and collapses inner whitespace.
func normalizeOp(op string) string {
	return strings.Join(strings.Fields(strings.ToUpper(op)), " ")
}

// Tables returns the distinct tables the query touches, in first-seen
// order (terms before filters).
func (q Query) Tables() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(t string) {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	for _, t := range q.Terms {
		add(t.Table)
	}
	for _, f := range q.Filters {
		add(f.Table)
	}
	return out
}

// TableCount is the number of distinct tables the query touches.
func (q Query) TableCount() int { return len(q.Tables()) }

// Limits are the resource ceilings checked before a query runs.
type Limits struct {
	MaxFilters int `koanf:"max_filters"`
	MaxTerms   int `koanf:"max_terms"`
	MaxTables  int `koanf:"max_tables"`
}

// DefaultLimits returns the ceilings used when none are configured.
func DefaultLimits() Limits {
	return Limits{MaxFilters: 16, MaxTerms: 64, MaxTables: 8}
}

// Check rejects q if it exceeds any ceiling. A zero ceiling disables
// that check.
func (l Limits) Check(q Query) error {
	if l.MaxFilters > 0 && len(q.Filters) > l.MaxFilters {
		return errs.Newf(errs.ErrKindResourceLimit, "%d filters exceed the limit of %d", len(q.Filters), l.MaxFilters)
	}
	if l.MaxTerms > 0 && len(q.Terms) > l.MaxTerms {
		return errs.Newf(errs.ErrKindResourceLimit, "%d terms exceed the limit of %d", len(q.Terms), l.MaxTerms)
	}
	if n := q.TableCount(); l.MaxTables > 0 && n > l.MaxTables {
		return errs.Newf(errs.ErrKindResourceLimit, "%d tables exceed the limit of %d", n, l.MaxTables)
	}
	return nil
}

// JoinPolicy decides how annotation tables join the data table.
type JoinPolicy int

const (
	// JoinOuter keeps every feature; missing annotations read as null.
	JoinOuter JoinPolicy = iota
	// JoinInner drops features without a row in every joined annotation table.
	JoinInner
)

func (p JoinPolicy) String() string {
	if p == JoinInner {
		return "inner"
	}
	return "outer"
}

// ParseJoinPolicy accepts "outer" (or "left") and "inner".
func ParseJoinPolicy(s string) (JoinPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "outer", "left":
		return JoinOuter, nil
	case "inner":
		return JoinInner, nil
	}
	return JoinOuter, errs.Newf(errs.ErrKindInvalidInput, "unknown join policy %q (want outer or inner)", s)
}

func (p JoinPolicy) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *JoinPolicy) UnmarshalText(b []byte) error {
	v, err := ParseJoinPolicy(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// ParseFilter reads the command-line form "table.column OP value", e.g.
// "go.term LIKE %kinase%" or "symbols.symbol IS NOT NULL".
func ParseFilter(s string) (Filter, error) {
	fields := strings.Fields(s)
	if len(fields) < 2 {
		return Filter{}, errs.Newf(errs.ErrKindInvalidInput, "expected \"table.column OP value\", got %q", s)
	}
	col, err := catalog.ParseQualified(fields[0])
	if err != nil {
		return Filter{}, err
	}

	rest := fields[1:]
	switch op := normalizeOp(strings.Join(rest, " ")); op {
	case OpIsNull, OpIsNotNull:
		return Filter{QualifiedColumn: col, Op: op}, nil
	}

	op := normalizeOp(rest[0])
	if len(rest) < 2 {
		return Filter{}, errs.Newf(errs.ErrKindInvalidInput, "filter %q has no value", s)
	}
	// Keep the literal's inner spacing intact.
	_, after, _ := strings.Cut(strings.TrimSpace(s), fields[0])
	_, value, _ := strings.Cut(strings.TrimSpace(after), rest[0])
	return Filter{QualifiedColumn: col, Op: op, Value: strings.TrimSpace(value)}, nil
}

func (f Filter) String() string {
	switch normalizeOp(f.Op) {
	case OpIsNull, OpIsNotNull:
		return fmt.Sprintf("%s %s", f.QualifiedColumn, normalizeOp(f.Op))
	}
	return fmt.Sprintf("%s %s %s", f.QualifiedColumn, f.Op, f.Value)
}
