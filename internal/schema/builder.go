// Package schema turns parsed flat files into stored tables and publishes
// the catalog describing them.
//
// A Builder owns one storage transaction for the whole ingest. Tables
// become visible to readers only when Commit succeeds; any failure rolls
// everything back so no partial catalog is ever published.
package schema

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/koustreak/ExprDB/internal/catalog"
	"github.com/koustreak/ExprDB/internal/database"
	"github.com/koustreak/ExprDB/internal/errs"
	"github.com/koustreak/ExprDB/internal/flatfile"
	"github.com/koustreak/ExprDB/internal/logger"
)

// ingestMu serializes ingests within the process. It is held from Begin
// until Commit or Rollback.
var ingestMu sync.Mutex

// insertBatch is the number of rows buffered before an INSERT is flushed.
const insertBatch = 1000

// Builder stages tables for one ingest.
type Builder struct {
	tx      database.Tx
	dialect database.Dialect
	log     *logger.Logger

	datasetID string
	createdAt time.Time

	existing []catalog.TableMetadata
	staged   []catalog.TableMetadata
	names    map[string]struct{}
	next     int

	design    *catalog.TableMetadata
	data      *catalog.TableMetadata
	sampleIDs map[string]struct{}

	closed bool
}

// Begin opens the ingest transaction. Tables already published in db are
// kept: a later ingest may only add annotation tables to them.
//
// The caller must finish with Commit or Rollback; until then every other
// Begin in the process blocks.
func Begin(ctx context.Context, db database.DB, log *logger.Logger) (*Builder, error) {
	if log == nil {
		log = logger.Nop()
	}
	ingestMu.Lock()

	tx, err := db.Begin(ctx)
	if err != nil {
		ingestMu.Unlock()
		return nil, err
	}

	b := &Builder{
		tx:      tx,
		dialect: db.Dialect(),
		log:     log.Component("schema"),
		names:   make(map[string]struct{}),
	}

	if err := b.load(ctx); err != nil {
		_ = b.Rollback(ctx)
		return nil, err
	}
	return b, nil
}

func (b *Builder) load(ctx context.Context) error {
	if err := catalog.EnsureMetadata(ctx, b.tx, b.dialect); err != nil {
		return err
	}
	existing, datasetID, createdAt, err := catalog.Stored(ctx, b.tx, b.dialect)
	if err != nil {
		return err
	}

	b.existing = existing
	b.datasetID = datasetID
	b.createdAt = createdAt
	for i := range existing {
		t := &existing[i]
		b.names[t.Name] = struct{}{}
		if t.Order >= b.next {
			b.next = t.Order + 1
		}
		switch t.Kind {
		case catalog.KindDesign:
			b.design = t
		case catalog.KindData:
			b.data = t
		}
	}
	if len(existing) > 0 {
		b.log.With().Str("dataset_id", datasetID).Int("tables", len(existing)).Logger().
			Info("extending published dataset")
	}
	return nil
}

// BuildDesignTable stores the design table. Its first column holds the
// sample identifiers.
func (b *Builder) BuildDesignTable(ctx context.Context, name string, t *flatfile.Table) (*catalog.TableMetadata, error) {
	if err := b.usable(); err != nil {
		return nil, err
	}
	if b.design != nil {
		return nil, b.fail(ctx, errs.Newf(errs.ErrKindDuplicateTable,
			"design table already registered as %q", b.design.Name))
	}

	ids, err := sampleIDs(t)
	if err != nil {
		return nil, b.fail(ctx, err)
	}
	md, err := b.build(ctx, catalog.KindDesign, "", name, t)
	if err != nil {
		return nil, err
	}
	b.design = md
	b.sampleIDs = ids

	if b.data != nil {
		if err := b.checkSamples(); err != nil {
			return nil, b.fail(ctx, err)
		}
	}
	return md, nil
}

// BuildDataTable stores the data table. Its first column is the feature
// identifier; every other column is one sample's measurements. When the
// design table is already built the column names are checked against its
// sample identifiers right away, otherwise the check runs at Commit.
func (b *Builder) BuildDataTable(ctx context.Context, name string, t *flatfile.Table) (*catalog.TableMetadata, error) {
	if err := b.usable(); err != nil {
		return nil, err
	}
	if b.data != nil {
		return nil, b.fail(ctx, errs.Newf(errs.ErrKindDuplicateTable,
			"data table already registered as %q", b.data.Name))
	}
	if len(t.Columns) < 2 {
		return nil, b.fail(ctx, errs.Newf(errs.ErrKindSchemaConsistency,
			"data table %q has no sample columns", name))
	}

	md, err := b.build(ctx, catalog.KindData, "", name, t)
	if err != nil {
		return nil, err
	}
	b.data = md

	if b.sampleIDs != nil {
		if err := b.checkSamples(); err != nil {
			return nil, b.fail(ctx, err)
		}
	}
	return md, nil
}

// BuildAnnotationTable stores one annotation table under category. Its
// first column is the feature identifier.
func (b *Builder) BuildAnnotationTable(ctx context.Context, category, name string, t *flatfile.Table) (*catalog.TableMetadata, error) {
	if err := b.usable(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(category) == "" {
		return nil, b.fail(ctx, errs.Newf(errs.ErrKindInvalidInput, "annotation table %q has no category", name))
	}
	return b.build(ctx, catalog.KindAnnotation, category, name, t)
}

func (b *Builder) build(ctx context.Context, kind catalog.TableKind, category, name string, t *flatfile.Table) (*catalog.TableMetadata, error) {
	if name == "" {
		return nil, b.fail(ctx, errs.New(errs.ErrKindInvalidInput, "table name is empty"))
	}
	if _, dup := b.names[name]; dup {
		return nil, b.fail(ctx, errs.Newf(errs.ErrKindDuplicateTable, "table %q already exists", name))
	}
	if len(t.Columns) == 0 {
		return nil, b.fail(ctx, errs.Newf(errs.ErrKindSchemaConsistency, "table %q has no columns", name))
	}

	md := catalog.TableMetadata{
		Name:     name,
		Kind:     kind,
		Category: category,
		Physical: catalog.PhysicalName(b.next),
		Order:    b.next,
		Columns:  append([]catalog.Column(nil), t.Columns...),
	}
	// Identifiers are matched across tables and against data column names,
	// so key columns are always text whatever their values look like.
	md.Columns[0].Type = catalog.TypeText

	start := time.Now()
	if err := b.persist(ctx, &md, t.Rows); err != nil {
		return nil, b.fail(ctx, errs.Ensure(errs.ErrKindQueryFailed, "failed to store table "+name, err))
	}

	b.next++
	b.names[name] = struct{}{}
	b.staged = append(b.staged, md)

	b.log.With().
		Str("table", name).
		Str("kind", kind.String()).
		Str("physical", md.Physical).
		Int("columns", len(md.Columns)).
		Int("rows", len(t.Rows)).
		Str("elapsed", time.Since(start).String()).
		Logger().Info("table staged")

	return &b.staged[len(b.staged)-1], nil
}

func (b *Builder) persist(ctx context.Context, md *catalog.TableMetadata, rows []catalog.Row) error {
	if err := b.dropOrphan(ctx, md.Physical); err != nil {
		return err
	}

	defs := make([]database.ColumnDef, 0, len(md.Columns)+1)
	names := make([]string, 0, len(md.Columns)+1)
	defs = append(defs, database.ColumnDef{Name: catalog.RowColumn, Type: database.TypeInteger})
	names = append(names, catalog.RowColumn)
	for i, c := range md.Columns {
		defs = append(defs, database.ColumnDef{Name: c.Physical(), Type: c.Type.String(), Key: i == 0})
		names = append(names, c.Physical())
	}

	ddl, err := database.CreateTable(b.dialect, md.Physical, defs)
	if err != nil {
		return err
	}
	for _, s := range ddl {
		if _, err := b.tx.Exec(ctx, s); err != nil {
			return err
		}
	}

	ins := database.Insert(md.Physical, b.dialect).Columns(names...)
	flush := func() error {
		stmts, err := ins.Build()
		if err != nil {
			return err
		}
		ins = database.Insert(md.Physical, b.dialect).Columns(names...)
		return database.ExecAll(ctx, b.tx, stmts)
	}

	for r, row := range rows {
		if len(row) != len(md.Columns) {
			return errs.Newf(errs.ErrKindMalformedRecord, "row %d has %d values, want %d", r, len(row), len(md.Columns))
		}
		vals := make([]any, 0, len(row)+1)
		vals = append(vals, int64(r))
		for i, v := range row {
			if i == 0 && !v.Null {
				s, _ := v.Format()
				vals = append(vals, s)
				continue
			}
			vals = append(vals, v.Any())
		}
		ins.Values(vals...)
		if ins.Len() >= insertBatch {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return flush()
}

// dropOrphan removes a physical table left behind by a failed ingest on a
// backend whose DDL is not transactional. Published tables never reach
// here because their order numbers are already taken.
func (b *Builder) dropOrphan(ctx context.Context, physical string) error {
	exists, err := database.TableExists(ctx, b.tx, b.dialect, physical)
	if err != nil || !exists {
		return err
	}
	b.log.With().Str("physical", physical).Logger().Warn("dropping orphaned table from an earlier failed ingest")
	_, err = b.tx.Exec(ctx, "DROP TABLE "+b.dialect.QuoteIdent(physical))
	return err
}

// Commit validates the cross-table invariants, records the catalog and
// commits. The returned catalog covers every table of the dataset,
// including ones published by earlier ingests.
func (b *Builder) Commit(ctx context.Context) (*catalog.Catalog, error) {
	if err := b.usable(); err != nil {
		return nil, err
	}

	if b.design == nil {
		return nil, b.fail(ctx, errs.New(errs.ErrKindSchemaConsistency, "dataset has no design table"))
	}
	if b.data == nil {
		return nil, b.fail(ctx, errs.New(errs.ErrKindSchemaConsistency, "dataset has no data table"))
	}
	if b.sampleIDs != nil {
		if err := b.checkSamples(); err != nil {
			return nil, b.fail(ctx, err)
		}
	}

	if b.datasetID == "" {
		b.datasetID = uuid.NewString()
		b.createdAt = time.Now().UTC()
	}

	all := append(append([]catalog.TableMetadata(nil), b.existing...), b.staged...)
	cat, err := catalog.New(b.datasetID, b.createdAt, all)
	if err != nil {
		return nil, b.fail(ctx, err)
	}

	if err := catalog.Save(ctx, b.tx, b.dialect, b.datasetID, b.createdAt, b.staged); err != nil {
		return nil, b.fail(ctx, err)
	}
	if err := b.tx.Commit(ctx); err != nil {
		return nil, b.fail(ctx, err)
	}
	b.release()

	b.log.With().
		Str("dataset_id", b.datasetID).
		Int("tables", len(all)).
		Int("new_tables", len(b.staged)).
		Logger().Info("dataset published")
	return cat, nil
}

// Rollback discards everything staged. It is safe to call after Commit
// or after a failed call, in which case it does nothing.
func (b *Builder) Rollback(ctx context.Context) error {
	if b.closed {
		return nil
	}
	err := b.tx.Rollback(ctx)
	b.release()
	return err
}

func (b *Builder) release() {
	if !b.closed {
		b.closed = true
		ingestMu.Unlock()
	}
}

func (b *Builder) usable() error {
	if b.closed {
		return errs.New(errs.ErrKindInvalidInput, "ingest already finished")
	}
	return nil
}

// fail aborts the ingest and returns err.
func (b *Builder) fail(ctx context.Context, err error) error {
	if rbErr := b.Rollback(ctx); rbErr != nil {
		b.log.ErrorWith("rollback failed", rbErr, nil)
	}
	b.log.ErrorWith("ingest aborted", err, nil)
	return err
}

// sampleIDs collects the design table's identifiers, which must be present
// and unique.
func sampleIDs(t *flatfile.Table) (map[string]struct{}, error) {
	if len(t.Columns) == 0 {
		return nil, errs.New(errs.ErrKindSchemaConsistency, "design table has no columns")
	}
	ids := make(map[string]struct{}, len(t.Rows))
	for r, row := range t.Rows {
		id, ok := row[0].Format()
		if !ok || id == "" {
			return nil, errs.Newf(errs.ErrKindSchemaConsistency, "design row %d has no sample identifier", r+1)
		}
		if _, dup := ids[id]; dup {
			return nil, errs.Newf(errs.ErrKindSchemaConsistency, "sample %q appears twice in the design table", id)
		}
		ids[id] = struct{}{}
	}
	return ids, nil
}

// checkSamples verifies that the data table's value columns are exactly the
// design table's sample identifiers.
func (b *Builder) checkSamples() error {
	var unknown []string
	cols := make(map[string]struct{}, len(b.data.Columns))
	for _, c := range b.data.ValueColumns() {
		cols[c.Name] = struct{}{}
		if _, ok := b.sampleIDs[c.Name]; !ok {
			unknown = append(unknown, c.Name)
		}
	}
	if len(unknown) > 0 {
		return errs.Newf(errs.ErrKindSchemaConsistency,
			"data columns %s match no sample in design table %q", strings.Join(unknown, ", "), b.design.Name).
			OnColumn(b.data.Name, unknown[0])
	}

	var missing []string
	for id := range b.sampleIDs {
		if _, ok := cols[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return errs.Newf(errs.ErrKindSchemaConsistency,
			"samples %s have no column in data table %q", strings.Join(missing, ", "), b.data.Name)
	}
	return nil
}
