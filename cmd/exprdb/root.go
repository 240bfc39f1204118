package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/koustreak/ExprDB/internal/config"
	"github.com/koustreak/ExprDB/internal/logger"
)

// app carries what every subcommand needs once the configuration is loaded.
type app struct {
	cfgFile string
	cfg     *config.Config
	log     *logger.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "exprdb",
		Short: "ExprDB - expression dataset store and query engine",
		Long: `ExprDB loads a design table, a data table and any number of annotation
tables from delimited files, publishes them atomically into a SQL backend
and answers feature- or sample-keyed queries over the result.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}
			cfg, err := config.Load(a.cfgFile, cmd.Flags())
			if err != nil {
				return err
			}
			cfg.Log.Output = cmd.ErrOrStderr()
			a.cfg = cfg
			a.log = logger.New(&cfg.Log)
			logger.SetGlobal(a.log)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default: ./exprdb.yaml)")
	pf.String("log-level", "", "log level (debug|info|warn|error)")
	pf.String("log-format", "", "log format (json|console)")
	pf.String("driver", "", "database driver (sqlite|duckdb|postgres|mysql)")
	pf.String("dsn", "", "database data source name")
	pf.String("bucket", "", "default object store bucket for s3:// paths")

	_ = root.RegisterFlagCompletionFunc("driver", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return []string{"sqlite", "duckdb", "postgres", "mysql"}, cobra.ShellCompDirectiveNoFileComp
	})

	root.AddCommand(
		newIngestCmd(a),
		newSchemaCmd(a),
		newQueryCmd(a),
		newExportCmd(a),
		newReplicatesCmd(a),
		newServeCmd(a),
	)
	return root
}

// commandContext returns the command's context, never nil.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
