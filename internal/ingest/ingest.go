package ingest

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/koustreak/ExprDB/internal/catalog"
	"github.com/koustreak/ExprDB/internal/database"
	"github.com/koustreak/ExprDB/internal/errs"
	"github.com/koustreak/ExprDB/internal/flatfile"
	"github.com/koustreak/ExprDB/internal/logger"
	"github.com/koustreak/ExprDB/internal/schema"
)

// Options tunes an ingest run.
type Options struct {
	// Parallelism caps how many files are parsed at once. Zero or less
	// parses one file at a time.
	Parallelism int `koanf:"parallelism"`

	// Timeout bounds the whole run, parse and publish. Zero disables it.
	Timeout time.Duration `koanf:"timeout"`
}

// DefaultOptions parses up to four files at once with a 30 minute ceiling.
func DefaultOptions() Options {
	return Options{Parallelism: 4, Timeout: 30 * time.Minute}
}

// Ingestor turns manifests into published datasets.
type Ingestor struct {
	db     database.DB
	opener *Opener
	opts   Options
	log    *logger.Logger
}

// New returns an Ingestor writing to db and reading through opener.
func New(db database.DB, opener *Opener, opts Options, log *logger.Logger) *Ingestor {
	if opener == nil {
		opener = NewOpener(nil, "")
	}
	if log == nil {
		log = logger.Nop()
	}
	if opts.Parallelism < 1 {
		opts.Parallelism = 1
	}
	return &Ingestor{db: db, opener: opener, opts: opts, log: log.Component("ingest")}
}

// Run ingests every file of m and publishes the result. Files are checked
// and parsed concurrently before anything is written; the tables are then
// built one after another inside a single ingest, so a failure anywhere
// publishes nothing.
func (in *Ingestor) Run(ctx context.Context, m Manifest) (*catalog.Catalog, error) {
	jobs, err := m.plan()
	if err != nil {
		return nil, err
	}
	if in.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, in.opts.Timeout)
		defer cancel()
	}
	start := time.Now()

	for _, j := range jobs {
		if _, err := in.opener.Stat(ctx, j.src.Path); err != nil {
			return nil, onTable(err, j.name)
		}
	}

	tables, err := in.parseAll(ctx, jobs)
	if err != nil {
		return nil, err
	}

	b, err := schema.Begin(ctx, in.db, in.log)
	if err != nil {
		return nil, err
	}
	defer func() { _ = b.Rollback(context.WithoutCancel(ctx)) }()

	for i, j := range jobs {
		switch j.kind {
		case catalog.KindDesign:
			_, err = b.BuildDesignTable(ctx, j.name, tables[i])
		case catalog.KindData:
			_, err = b.BuildDataTable(ctx, j.name, tables[i])
		default:
			_, err = b.BuildAnnotationTable(ctx, j.category, j.name, tables[i])
		}
		if err != nil {
			return nil, err
		}
	}

	cat, err := b.Commit(ctx)
	if err != nil {
		return nil, err
	}
	in.log.With().
		Str("dataset_id", cat.DatasetID()).
		Int("files", len(jobs)).
		Str("elapsed", time.Since(start).String()).
		Logger().Info("ingest complete")
	return cat, nil
}

// parseAll parses every job's file, keeping results in job order.
func (in *Ingestor) parseAll(ctx context.Context, jobs []job) ([]*flatfile.Table, error) {
	tables := make([]*flatfile.Table, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(in.opts.Parallelism)
	for i, j := range jobs {
		g.Go(func() error {
			t, err := in.parse(gctx, j)
			if err != nil {
				return err
			}
			tables[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return tables, nil
}

func (in *Ingestor) parse(ctx context.Context, j job) (*flatfile.Table, error) {
	r, err := in.opener.Open(ctx, j.src)
	if err != nil {
		return nil, onTable(err, j.name)
	}
	defer r.Close()

	t, err := flatfile.Parse(r, j.opts)
	if err != nil {
		in.log.With().Str("table", j.name).Str("path", j.src.Path).Err(err).Logger().Warn("file rejected")
		return nil, onTable(err, j.name)
	}

	in.log.With().
		Str("table", j.name).
		Str("kind", j.kind.String()).
		Str("path", j.src.Path).
		Int("rows", len(t.Rows)).
		Int("columns", t.Width()).
		Logger().Info("file parsed")
	return t, nil
}

// onTable names the table an error belongs to unless it already says.
func onTable(err error, table string) error {
	var e *errs.Error
	if errors.As(err, &e) && e.Table == "" {
		e.Table = table
	}
	return err
}
