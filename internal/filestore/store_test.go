package filestore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/ExprDB/internal/errs"
)

func TestParseLocation(t *testing.T) {
	tests := []struct {
		path string
		want Location
	}{
		{"s3://datasets/study1/design.tsv", Location{Bucket: "datasets", Key: "study1/design.tsv"}},
		{"S3://datasets/data.csv.gz", Location{Bucket: "datasets", Key: "data.csv.gz"}},
		{"s3:///design.tsv", Location{Bucket: "default", Key: "design.tsv"}},
		{"s3://datasets//nested/key", Location{Bucket: "datasets", Key: "nested/key"}},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := ParseLocation(tt.path, "default")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Equal(t, "s3://datasets/a/b.tsv", Location{Bucket: "datasets", Key: "a/b.tsv"}.String())
}

func TestParseLocation_Invalid(t *testing.T) {
	for _, path := range []string{"/tmp/design.tsv", "s3://datasets", "s3://datasets/", "s3:///key"} {
		_, err := ParseLocation(path, "")
		assert.True(t, errs.IsInvalidInput(err), path)
	}
}

func TestIsRemote(t *testing.T) {
	assert.True(t, IsRemote("s3://b/k"))
	assert.False(t, IsRemote("data/s3://b/k"))
	assert.False(t, IsRemote("design.tsv"))
}

func TestConfig_Enabled(t *testing.T) {
	var nilCfg *Config
	assert.False(t, nilCfg.Enabled())
	assert.False(t, (&Config{}).Enabled())
	assert.True(t, DefaultConfig("localhost:9000", "k", "s").Enabled())
}
