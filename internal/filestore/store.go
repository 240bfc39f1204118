// Package filestore defines the interface for object storage backends that
// dataset files can be read from.
//
// Callers depend only on this package, never on a specific provider package.
// Objects are addressed as s3://bucket/key.
//
// Usage:
//
//	store, err := minio.New(ctx, cfg)
//	if err != nil { ... }
//	defer store.Close()
//
//	obj, err := store.GetObject(ctx, "datasets", "study1/design.tsv")
package filestore

import (
	"context"
	"strings"

	"github.com/koustreak/ExprDB/internal/errs"
)

// Scheme prefixes object store locations.
const Scheme = "s3://"

// Store is implemented by every object storage provider.
// Read operations only; ingest never writes back to the store.
type Store interface {
	// Ping verifies the storage backend is reachable.
	Ping(ctx context.Context) error

	// Close releases any held resources.
	Close() error

	// GetObject opens a streaming handle to the object at key inside bucket.
	// The caller MUST call Object.Close() after reading.
	GetObject(ctx context.Context, bucket, key string) (Object, error)

	// StatObject returns metadata for the object at key inside bucket
	// without downloading its content.
	StatObject(ctx context.Context, bucket, key string) (*ObjectInfo, error)
}

// Location is a parsed s3://bucket/key address.
type Location struct {
	Bucket string
	Key    string
}

func (l Location) String() string { return Scheme + l.Bucket + "/" + l.Key }

// IsRemote reports whether path addresses the object store.
func IsRemote(path string) bool {
	return strings.HasPrefix(strings.ToLower(path), Scheme)
}

// ParseLocation splits an s3:// path. "s3:///key" and "s3://key" without a
// bucket segment fall back to defaultBucket.
func ParseLocation(path, defaultBucket string) (Location, error) {
	if !IsRemote(path) {
		return Location{}, errs.Newf(errs.ErrKindInvalidInput, "%q is not an %s location", path, Scheme)
	}
	rest := path[len(Scheme):]

	bucket, key, found := strings.Cut(rest, "/")
	if !found {
		bucket, key = "", rest
	}
	if bucket == "" {
		bucket = defaultBucket
	}
	key = strings.TrimLeft(key, "/")

	switch {
	case bucket == "":
		return Location{}, errs.Newf(errs.ErrKindInvalidInput, "%q has no bucket and no default bucket is configured", path)
	case key == "":
		return Location{}, errs.Newf(errs.ErrKindInvalidInput, "%q has no object key", path)
	}
	return Location{Bucket: bucket, Key: key}, nil
}
