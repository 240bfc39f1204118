package filestore

// Provider identifies the file storage backend.
type Provider string

const (
	// ProviderNone disables object store sources; only local paths are read.
	ProviderNone  Provider = ""
	ProviderMinIO Provider = "minio"
)

// Config holds all settings needed to connect to a file storage backend.
type Config struct {
	Provider Provider `koanf:"provider"`

	// Endpoint is the host:port of the storage server.
	// Example: "localhost:9000" for local MinIO.
	Endpoint string `koanf:"endpoint"`

	AccessKey string `koanf:"access_key"`
	SecretKey string `koanf:"secret_key"`

	// UseSSL controls whether TLS is used for the connection.
	UseSSL bool `koanf:"use_ssl"`

	// Region is used by region-aware backends (e.g. AWS S3).
	// Leave empty for MinIO.
	Region string `koanf:"region"`

	// DefaultBucket is used for s3:// paths that omit the bucket.
	DefaultBucket string `koanf:"default_bucket"`
}

// Enabled reports whether a provider is configured.
func (c *Config) Enabled() bool {
	return c != nil && c.Provider != ProviderNone
}

// DefaultConfig returns a sensible local-dev config for MinIO.
func DefaultConfig(endpoint, accessKey, secretKey string) *Config {
	return &Config{
		Provider:  ProviderMinIO,
		Endpoint:  endpoint,
		AccessKey: accessKey,
		SecretKey: secretKey,
		UseSSL:    false,
	}
}
