package query

import (
	"context"
	"errors"
	"time"

	"github.com/koustreak/ExprDB/internal/catalog"
	"github.com/koustreak/ExprDB/internal/database"
	"github.com/koustreak/ExprDB/internal/errs"
	"github.com/koustreak/ExprDB/internal/logger"
)

// Options configures an Executor.
type Options struct {
	Limits Limits `koanf:"limits"`

	// AnnotationJoin selects outer (default) or inner joins for annotation tables.
	AnnotationJoin JoinPolicy `koanf:"annotation_join"`

	// Timeout bounds every storage call. Zero disables it.
	Timeout time.Duration `koanf:"timeout"`
}

// DefaultOptions returns the default ceilings and an outer annotation join.
func DefaultOptions() Options {
	return Options{Limits: DefaultLimits(), AnnotationJoin: JoinOuter, Timeout: 30 * time.Second}
}

// Executor runs queries against one published catalog.
// It holds no per-query state and is safe for concurrent use.
type Executor struct {
	db      database.Querier
	dialect database.Dialect
	cat     *catalog.Catalog
	limits  Limits
	join    JoinPolicy
	timeout time.Duration
	log     *logger.Logger
}

// NewExecutor returns an executor reading from db.
func NewExecutor(db database.DB, cat *catalog.Catalog, opts Options, log *logger.Logger) *Executor {
	if log == nil {
		log = logger.Nop()
	}
	return &Executor{
		db:      db,
		dialect: db.Dialect(),
		cat:     cat,
		limits:  opts.Limits,
		join:    opts.AnnotationJoin,
		timeout: opts.Timeout,
		log:     log.Component("query"),
	}
}

// Catalog returns the catalog queries are resolved against.
func (e *Executor) Catalog() *catalog.Catalog { return e.cat }

// Execute returns count rows starting at offset. count zero yields an
// empty result; negative values are rejected.
func (e *Executor) Execute(ctx context.Context, q Query, offset, count int) (*TableData, error) {
	if offset < 0 || count < 0 {
		return nil, e.failed(q, errs.Newf(errs.ErrKindInvalidInput, "negative window offset=%d count=%d", offset, count))
	}
	return e.collect(ctx, q, offset, &count)
}

// ExecuteAll returns every row of q.
func (e *Executor) ExecuteAll(ctx context.Context, q Query) (*TableData, error) {
	return e.collect(ctx, q, 0, nil)
}

func (e *Executor) collect(ctx context.Context, q Query, offset int, count *int) (*TableData, error) {
	out := &TableData{Rows: []catalog.Row{}}
	err := e.stream(ctx, q, offset, count, func(cols []ResultColumn) error {
		out.Columns = cols
		return nil
	}, func(row catalog.Row) error {
		out.Rows = append(out.Rows, row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Count returns the number of rows q yields without a window.
func (e *Executor) Count(ctx context.Context, q Query) (int64, error) {
	p, err := e.plan(q)
	if err != nil {
		return 0, e.failed(q, err)
	}

	ctx, cancel := e.bound(ctx)
	defer cancel()

	terms, none, err := e.resolveSamples(ctx, p)
	if err != nil {
		return 0, e.failed(q, err)
	}
	if none || len(terms) == 0 {
		return 0, nil
	}

	sql, args, err := p.selectFor(e.dialect, e.join).Count().Build()
	if err != nil {
		return 0, e.failed(q, err)
	}
	var n int64
	if err := e.db.QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, e.failed(q, errs.Ensure(errs.ErrKindQueryFailed, "count failed", err))
	}
	return n, nil
}

// stream plans q and hands each row to fn. header is called once with the
// projected columns before any row. A nil count means no limit.
func (e *Executor) stream(ctx context.Context, q Query, offset int, count *int,
	header func([]ResultColumn) error, fn func(catalog.Row) error) error {
	start := time.Now()

	p, err := e.plan(q)
	if err != nil {
		return e.failed(q, err)
	}

	ctx, cancel := e.bound(ctx)
	defer cancel()

	terms, none, err := e.resolveSamples(ctx, p)
	if err != nil {
		return e.failed(q, err)
	}

	cols := make([]ResultColumn, len(terms))
	refs := make([]database.Ref, len(terms))
	for i, t := range terms {
		cols[i] = t.result()
		refs[i] = database.Ref{Table: t.table.Physical, Column: t.col.Physical()}
	}
	if err := header(cols); err != nil {
		return err
	}
	if none || len(terms) == 0 || (count != nil && *count == 0) {
		return nil
	}

	sb := p.selectFor(e.dialect, e.join).ColumnRefs(refs...)
	p.order(sb)
	if count != nil {
		sb.Limit(*count)
	}
	if offset > 0 {
		sb.Offset(offset)
	}
	sql, args, err := sb.Build()
	if err != nil {
		return e.failed(q, err)
	}

	rows, err := e.db.Query(ctx, sql, args...)
	if err != nil {
		return e.failed(q, err)
	}
	defer rows.Close()

	n := 0
	err = database.ScanEach(rows, len(terms), func(vals []any) error {
		row := make(catalog.Row, len(vals))
		for i, raw := range vals {
			v, err := catalog.FromDriver(terms[i].col.Type, raw)
			if err != nil {
				return err
			}
			row[i] = v
		}
		n++
		return fn(row)
	})
	if err != nil {
		return e.failed(q, err)
	}

	e.log.With().
		Strs("tables", p.tableNames()).
		Int("terms", len(terms)).
		Int("filters", len(q.Filters)).
		Int("rows", n).
		Str("elapsed", time.Since(start).String()).
		Logger().Debug("query executed")
	return nil
}

// resolveSamples runs the design-table lookup of a feature-keyed plan and
// returns the terms to project. none reports that the design filters
// matched no sample; the inner join on samples then leaves no feature row,
// whatever else is projected. The lookup's rows are closed before
// returning, so the main read never overlaps it on the same connection.
func (e *Executor) resolveSamples(ctx context.Context, p *plan) (terms []term, none bool, err error) {
	if len(p.design) == 0 {
		return p.terms, false, nil
	}

	design := e.cat.Design()
	sb := database.Select(design.Physical, e.dialect).Columns(design.Key().Physical())
	for _, f := range p.design {
		f.apply(sb)
	}
	sb.OrderBy(catalog.RowColumn, database.Asc)
	sql, args, err := sb.Build()
	if err != nil {
		return nil, false, err
	}

	rows, err := e.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, false, err
	}
	samples := make(map[string]bool)
	err = database.ScanEach(rows, 1, func(vals []any) error {
		v, err := catalog.FromDriver(catalog.TypeText, vals[0])
		if err != nil {
			return err
		}
		if s, ok := v.Format(); ok {
			samples[s] = true
		}
		return nil
	})
	rows.Close()
	if err != nil {
		return nil, false, err
	}
	return p.project(e.cat.Data(), samples), len(samples) == 0, nil
}

func (e *Executor) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeout > 0 {
		return context.WithTimeout(ctx, e.timeout)
	}
	return context.WithCancel(ctx)
}

// failed logs err with the query shape and returns it unchanged.
func (e *Executor) failed(q Query, err error) error {
	fields := map[string]interface{}{
		"tables":  q.Tables(),
		"terms":   len(q.Terms),
		"filters": len(q.Filters),
		"kind":    errs.KindOf(err).String(),
	}
	var ee *errs.Error
	if errors.As(err, &ee) && ee.Column != "" {
		fields["column"] = ee.Table + "." + ee.Column
	}
	e.log.ErrorWith("query failed", err, fields)
	return err
}
