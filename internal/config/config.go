// Package config loads ExprDB settings. Sources are layered, later ones
// winning: built-in defaults, the YAML file, EXPRDB_* environment
// variables, then explicitly set command-line flags.
//
// Environment variables map onto keys by dropping the prefix, lowercasing
// and reading "__" as a section separator:
//
//	EXPRDB_DATABASE__DSN=file:exprdb.db   -> database.dsn
//	EXPRDB_QUERY__LIMITS__MAX_TERMS=128   -> query.limits.max_terms
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/koustreak/ExprDB/internal/database"
	"github.com/koustreak/ExprDB/internal/errs"
	"github.com/koustreak/ExprDB/internal/filestore"
	"github.com/koustreak/ExprDB/internal/ingest"
	"github.com/koustreak/ExprDB/internal/logger"
	"github.com/koustreak/ExprDB/internal/query"
	"github.com/koustreak/ExprDB/internal/server"
)

// EnvPrefix prefixes every environment variable read.
const EnvPrefix = "EXPRDB_"

// DefaultFiles are tried in order when no file is named explicitly.
var DefaultFiles = []string{"exprdb.yaml", "exprdb.yml"}

// Config is the complete configuration.
type Config struct {
	Log       logger.Config    `koanf:"log"`
	Database  database.Config  `koanf:"database"`
	Filestore filestore.Config `koanf:"filestore"`
	Query     query.Options    `koanf:"query"`
	Ingest    ingest.Options   `koanf:"ingest"`
	Server    server.Config    `koanf:"server"`

	// Dataset is the manifest used by "exprdb ingest" when no manifest file
	// is given on the command line.
	Dataset ingest.Manifest `koanf:"dataset"`
}

// FlagKeys maps command-line flag names onto configuration keys. Flags not
// listed here are not configuration.
var FlagKeys = map[string]string{
	"log-level":       "log.level",
	"log-format":      "log.format",
	"driver":          "database.driver",
	"dsn":             "database.dsn",
	"query-timeout":   "query.timeout",
	"annotation-join": "query.annotation_join",
	"max-terms":       "query.limits.max_terms",
	"max-filters":     "query.limits.max_filters",
	"max-tables":      "query.limits.max_tables",
	"parallelism":     "ingest.parallelism",
	"addr":            "server.addr",
	"bucket":          "filestore.default_bucket",
}

func defaults() map[string]interface{} {
	l := logger.DefaultConfig()
	db := database.DefaultConfig(database.DriverSQLite, "exprdb.db")
	q := query.DefaultOptions()
	in := ingest.DefaultOptions()
	srv := server.DefaultConfig()

	return map[string]interface{}{
		"log.level":       l.Level,
		"log.format":      l.Format,
		"log.time_format": l.TimeFormat,

		"database.driver":             string(db.Driver),
		"database.dsn":                db.DSN,
		"database.max_conns":          db.MaxConns,
		"database.min_conns":          db.MinConns,
		"database.max_conn_lifetime":  db.MaxConnLifetime,
		"database.max_conn_idle_time": db.MaxConnIdleTime,
		"database.connect_timeout":    db.ConnectTimeout,
		"database.query_timeout":      db.QueryTimeout,
		"database.ingest_timeout":     db.IngestTimeout,

		"query.limits.max_filters": q.Limits.MaxFilters,
		"query.limits.max_terms":   q.Limits.MaxTerms,
		"query.limits.max_tables":  q.Limits.MaxTables,
		"query.annotation_join":    q.AnnotationJoin.String(),

		"ingest.parallelism": in.Parallelism,

		"server.addr":             srv.Addr,
		"server.read_timeout":     srv.ReadTimeout,
		"server.write_timeout":    srv.WriteTimeout,
		"server.shutdown_timeout": srv.ShutdownTimeout,
		"server.max_body_bytes":   srv.MaxBodyBytes,
	}
}

// Load reads the configuration. path names the YAML file; when empty the
// DefaultFiles are tried and a missing file is not an error. flags may be
// nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" {
		path = findFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, errs.Wrap(errs.ErrKindInvalidInput, "error reading config file "+path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			key, ok := FlagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "unable to decode config", err)
	}

	// The per-call ceilings fall back to the database section.
	if !k.Exists("query.timeout") {
		cfg.Query.Timeout = cfg.Database.QueryTimeout
	}
	if !k.Exists("ingest.timeout") {
		cfg.Ingest.Timeout = cfg.Database.IngestTimeout
	}
	cfg.Log.Output = os.Stderr

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate normalises enumerations and rejects unusable values.
func (c *Config) Validate() error {
	driver, err := database.ParseDriver(string(c.Database.Driver))
	if err != nil {
		return errs.Wrap(errs.ErrKindInvalidInput, "invalid database.driver", err)
	}
	c.Database.Driver = driver

	switch c.Log.Format {
	case "json", "console":
	default:
		return errs.Newf(errs.ErrKindInvalidInput, "invalid log.format %q (want json or console)", c.Log.Format)
	}

	switch c.Filestore.Provider {
	case filestore.ProviderNone, filestore.ProviderMinIO:
	default:
		return errs.Newf(errs.ErrKindInvalidInput, "unknown filestore.provider %q", c.Filestore.Provider)
	}
	if c.Filestore.Enabled() && c.Filestore.Endpoint == "" {
		return errs.New(errs.ErrKindInvalidInput, "filestore.endpoint is required")
	}

	l := c.Query.Limits
	if l.MaxFilters < 0 || l.MaxTerms < 0 || l.MaxTables < 0 {
		return errs.New(errs.ErrKindInvalidInput, "query limits must not be negative")
	}
	return nil
}

func findFile() string {
	for _, name := range DefaultFiles {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// envKey turns EXPRDB_QUERY__LIMITS__MAX_TERMS into query.limits.max_terms.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}
