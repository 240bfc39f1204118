package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/ExprDB/internal/database"
	"github.com/koustreak/ExprDB/internal/errs"
	"github.com/koustreak/ExprDB/internal/query"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "exprdb.yaml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, database.DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "exprdb.db", cfg.Database.DSN)
	assert.Equal(t, query.DefaultLimits(), cfg.Query.Limits)
	assert.Equal(t, query.JoinOuter, cfg.Query.AnnotationJoin)
	assert.Equal(t, 30*time.Second, cfg.Query.Timeout)
	assert.Equal(t, 30*time.Minute, cfg.Ingest.Timeout)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.False(t, cfg.Filestore.Enabled())
	assert.True(t, cfg.Dataset.Empty())
}

func TestLoad_File(t *testing.T) {
	p := writeFile(t, `
log:
  level: debug
  format: console
database:
  driver: postgresql
  dsn: postgres://localhost/exprdb
  query_timeout: 5s
query:
  annotation_join: inner
  limits:
    max_terms: 10
filestore:
  provider: minio
  endpoint: localhost:9000
  default_bucket: datasets
dataset:
  design:
    path: s3://datasets/design.tsv
  data:
    path: s3://datasets/data.tsv.gz
    charset: latin1
  annotations:
    - category: gene
      path: symbols.csv
      null_tokens: [NA]
`)

	cfg, err := Load(p, nil)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, database.DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, 5*time.Second, cfg.Query.Timeout)
	assert.Equal(t, query.JoinInner, cfg.Query.AnnotationJoin)
	assert.Equal(t, 10, cfg.Query.Limits.MaxTerms)
	assert.Equal(t, 16, cfg.Query.Limits.MaxFilters)
	assert.True(t, cfg.Filestore.Enabled())
	assert.Equal(t, "datasets", cfg.Filestore.DefaultBucket)

	assert.Equal(t, "s3://datasets/design.tsv", cfg.Dataset.Design.Path)
	assert.Equal(t, "latin1", cfg.Dataset.Data.Charset)
	require.Len(t, cfg.Dataset.Annotations, 1)
	assert.Equal(t, "gene", cfg.Dataset.Annotations[0].Category)
	assert.Equal(t, []string{"NA"}, cfg.Dataset.Annotations[0].NullTokens)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	p := writeFile(t, "database:\n  dsn: from-file.db\n")
	t.Setenv("EXPRDB_DATABASE__DSN", "from-env.db")
	t.Setenv("EXPRDB_QUERY__LIMITS__MAX_TABLES", "3")
	t.Setenv("EXPRDB_SERVER__WRITE_TIMEOUT", "90s")

	cfg, err := Load(p, nil)
	require.NoError(t, err)
	assert.Equal(t, "from-env.db", cfg.Database.DSN)
	assert.Equal(t, 3, cfg.Query.Limits.MaxTables)
	assert.Equal(t, 90*time.Second, cfg.Server.WriteTimeout)
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("EXPRDB_DATABASE__DSN", "from-env.db")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("dsn", "", "")
	fs.String("driver", "", "")
	fs.Int("max-terms", 0, "")
	fs.String("unrelated", "", "")
	require.NoError(t, fs.Parse([]string{"--dsn", "from-flag.db", "--max-terms", "7", "--unrelated", "x"}))

	cfg, err := Load("", fs)
	require.NoError(t, err)
	assert.Equal(t, "from-flag.db", cfg.Database.DSN)
	assert.Equal(t, 7, cfg.Query.Limits.MaxTerms)
	// Unset flags leave lower layers alone.
	assert.Equal(t, database.DriverSQLite, cfg.Database.Driver)
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"driver":      "database:\n  driver: oracle\n",
		"join":        "query:\n  annotation_join: full\n",
		"log format":  "log:\n  format: xml\n",
		"provider":    "filestore:\n  provider: gcs\n",
		"no endpoint": "filestore:\n  provider: minio\n",
		"negative":    "query:\n  limits:\n    max_terms: -1\n",
		"not yaml":    "database: [",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, content), nil)
			require.Error(t, err)
			assert.True(t, errs.IsInvalidInput(err), err.Error())
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "database.dsn", envKey("EXPRDB_DATABASE__DSN"))
	assert.Equal(t, "query.limits.max_terms", envKey("EXPRDB_QUERY__LIMITS__MAX_TERMS"))
	assert.Equal(t, "log.time_format", envKey("EXPRDB_LOG__TIME_FORMAT"))
}
