package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/koustreak/ExprDB/internal/catalog"
	"github.com/koustreak/ExprDB/internal/errs"
	"github.com/koustreak/ExprDB/internal/ingest"
	"github.com/koustreak/ExprDB/internal/query"
	"github.com/koustreak/ExprDB/internal/replicate"
	"github.com/koustreak/ExprDB/internal/server"
)

func newIngestCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest [manifest.yaml]",
		Short: "Load and publish a dataset",
		Long: `Load the files named by a manifest and publish them as one dataset.

Without an argument the dataset section of the configuration is used. A
manifest that lists only annotations adds them to the published dataset.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)

			m := a.cfg.Dataset
			if len(args) == 1 {
				var err error
				if m, err = ingest.LoadManifest(args[0]); err != nil {
					return err
				}
			}

			db, err := a.openDB(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			opener, closeStore, err := a.opener(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			cat, err := ingest.New(db, opener, a.cfg.Ingest, a.log).Run(ctx, m)
			if err != nil {
				return err
			}
			return renderSchema(cmd.OutOrStdout(), cat.Describe(), "table")
		},
	}
	cmd.Flags().Int("parallelism", 0, "files parsed at once")
	return cmd
}

func newSchemaCmd(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Describe the published dataset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			exec, db, err := a.executor(commandContext(cmd))
			if err != nil {
				return err
			}
			defer db.Close()
			return renderSchema(cmd.OutOrStdout(), exec.Catalog().Describe(), format)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "table", "output format (table|json|yaml)")
	return cmd
}

// queryFlags are shared by query and export.
type queryFlags struct {
	where []string
}

func (f *queryFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVarP(&f.where, "where", "w", nil, `filter such as "data.S1 > 4.5" (repeatable)`)
	cmd.Flags().String("annotation-join", "", "annotation join policy (outer|inner)")
	cmd.Flags().Int("max-terms", 0, "maximum projected columns")
	cmd.Flags().Int("max-filters", 0, "maximum filters")
	cmd.Flags().Int("max-tables", 0, "maximum distinct tables")
	cmd.Flags().Duration("query-timeout", 0, "per-query deadline")
}

// build turns positional terms and --where filters into a query.
func (f *queryFlags) build(args []string) (query.Query, error) {
	var q query.Query
	for _, arg := range args {
		qc, err := catalog.ParseQualified(arg)
		if err != nil {
			return q, err
		}
		q.Terms = append(q.Terms, qc)
	}
	filters, err := parseFilters(f.where)
	if err != nil {
		return q, err
	}
	q.Filters = filters
	return q, nil
}

func parseFilters(exprs []string) ([]query.Filter, error) {
	var out []query.Filter
	for _, w := range exprs {
		flt, err := query.ParseFilter(w)
		if err != nil {
			return nil, err
		}
		out = append(out, flt)
	}
	return out, nil
}

func newQueryCmd(a *app) *cobra.Command {
	var (
		qf     queryFlags
		format string
		offset int
		count  int
		total  bool
	)
	cmd := &cobra.Command{
		Use:   "query [table.column ...]",
		Short: "Run a query and print the rows",
		Example: `  exprdb query data.probe symbols.symbol data.S1 --where "data.S1 > 4.5"
  exprdb query design.sample design.treatment --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			q, err := qf.build(args)
			if err != nil {
				return err
			}

			exec, db, err := a.executor(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			var td *query.TableData
			switch {
			case cmd.Flags().Changed("count"):
				td, err = exec.Execute(ctx, q, offset, count)
			case offset != 0:
				err = errs.New(errs.ErrKindInvalidInput, "--offset requires --count")
			default:
				td, err = exec.ExecuteAll(ctx, q)
			}
			if err != nil {
				return err
			}
			if err := renderTableData(cmd.OutOrStdout(), td, format); err != nil {
				return err
			}

			if total {
				n, err := exec.Count(ctx, q)
				if err != nil {
					return err
				}
				cmd.PrintErrf("%d rows in total\n", n)
			}
			return nil
		},
	}
	qf.register(cmd)
	cmd.Flags().StringVarP(&format, "format", "f", "table", "output format (table|json|text)")
	cmd.Flags().IntVar(&offset, "offset", 0, "rows to skip")
	cmd.Flags().IntVar(&count, "count", 0, "rows to return")
	cmd.Flags().BoolVar(&total, "total", false, "also report the unwindowed row count on stderr")
	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	var (
		qf  queryFlags
		out string
	)
	cmd := &cobra.Command{
		Use:   "export [table.column ...]",
		Short: "Write every row of a query as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			q, err := qf.build(args)
			if err != nil {
				return err
			}

			exec, db, err := a.executor(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			var sink io.WriteCloser = nopWriteCloser{cmd.OutOrStdout()}
			if out != "" && out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return errs.Wrap(errs.ErrKindInvalidInput, "cannot create "+out, err)
				}
				sink = f
			}
			return exec.Export(ctx, sink, q)
		},
	}
	qf.register(cmd)
	cmd.Flags().StringVarP(&out, "output", "o", "-", "output file (- for stdout)")
	return cmd
}

func newReplicatesCmd(a *app) *cobra.Command {
	var (
		where  []string
		req    replicate.Request
		format string
	)
	cmd := &cobra.Command{
		Use:     "replicates",
		Short:   "Group one feature's sample values by a design column",
		Example: `  exprdb replicates --where "symbols.symbol = TP53" --group-by treatment --merge`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := commandContext(cmd)
			filters, err := parseFilters(where)
			if err != nil {
				return err
			}
			req.Filters = filters

			exec, db, err := a.executor(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			groups, err := replicate.Series(ctx, exec, req)
			if err != nil {
				return err
			}
			return renderGroups(cmd.OutOrStdout(), groups, format)
		},
	}
	f := cmd.Flags()
	f.StringArrayVarP(&where, "where", "w", nil, "filter selecting exactly one feature (repeatable)")
	f.StringVar(&req.GroupBy, "group-by", "", "design column keying the samples")
	f.BoolVar(&req.Merge, "merge", false, "merge samples with equal keys")
	f.BoolVar(&req.Log2, "log2", false, "log2-transform values")
	f.BoolVar(&req.Descending, "descending", false, "sort keys in descending order")
	f.StringVarP(&format, "format", "f", "table", "output format (table|json)")
	return cmd
}

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the published dataset over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := commandContext(cmd)
			exec, db, err := a.executor(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			return server.New(exec, db, a.cfg.Server, a.log).Serve(ctx)
		},
	}
	cmd.Flags().String("addr", "", "listen address")
	cmd.Flags().String("annotation-join", "", "annotation join policy (outer|inner)")
	cmd.Flags().Duration("query-timeout", 0, "per-query deadline")
	return cmd
}

// nopWriteCloser leaves stdout open after an export.
type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
