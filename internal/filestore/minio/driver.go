// Package minio provides a MinIO / S3 implementation of filestore.Store.
//
// Usage:
//
//	cfg := filestore.DefaultConfig("localhost:9000", "minioadmin", "minioadmin")
//	store, err := minio.New(ctx, cfg)
//	if err != nil { ... }
//	defer store.Close()
package minio

import (
	"context"
	"io"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/koustreak/ExprDB/internal/errs"
	"github.com/koustreak/ExprDB/internal/filestore"
)

// Driver is a MinIO implementation of filestore.Store.
// It is safe for concurrent use by multiple goroutines.
type Driver struct {
	client        *miniogo.Client
	defaultBucket string
}

// New connects to MinIO using the provided Config and returns a Driver.
// It calls Ping to validate the connection before returning.
func New(ctx context.Context, cfg *filestore.Config) (*Driver, error) {
	if cfg.Endpoint == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "minio endpoint is required")
	}
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "failed to create minio client", err)
	}

	d := &Driver{client: client, defaultBucket: cfg.DefaultBucket}

	if err := d.Ping(ctx); err != nil {
		return nil, err
	}

	return d, nil
}

// Ping checks the default bucket when one is configured, otherwise it lists
// buckets, which needs the broader ListAllMyBuckets permission.
func (d *Driver) Ping(ctx context.Context) error {
	if d.defaultBucket != "" {
		ok, err := d.client.BucketExists(ctx, d.defaultBucket)
		if err != nil {
			return bucketError(err, "ping", d.defaultBucket)
		}
		if !ok {
			return errs.Newf(errs.ErrKindNotFound, "bucket %q does not exist", d.defaultBucket)
		}
		return nil
	}
	if _, err := d.client.ListBuckets(ctx); err != nil {
		return bucketError(err, "ping", "")
	}
	return nil
}

// Close is a no-op for MinIO; the SDK client holds no persistent connections.
func (d *Driver) Close() error {
	return nil
}

// GetObject opens a streaming handle to the object at key inside bucket.
// The caller MUST call Object.Close() after reading.
func (d *Driver) GetObject(ctx context.Context, bucket, key string) (filestore.Object, error) {
	loc := filestore.Location{Bucket: bucket, Key: key}
	obj, err := d.client.GetObject(ctx, bucket, key, miniogo.GetObjectOptions{})
	if err != nil {
		return nil, objectError(err, "get", loc)
	}

	// GetObject is lazy; Stat surfaces a missing key before the first read.
	stat, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, objectError(err, "get", loc)
	}

	return &object{
		ReadCloser: obj,
		info:       infoOf(stat),
	}, nil
}

// StatObject returns metadata for the object at key inside bucket
// without downloading its content.
func (d *Driver) StatObject(ctx context.Context, bucket, key string) (*filestore.ObjectInfo, error) {
	stat, err := d.client.StatObject(ctx, bucket, key, miniogo.StatObjectOptions{})
	if err != nil {
		return nil, objectError(err, "stat", filestore.Location{Bucket: bucket, Key: key})
	}
	return infoOf(stat), nil
}

func infoOf(stat miniogo.ObjectInfo) *filestore.ObjectInfo {
	return &filestore.ObjectInfo{
		Key:          stat.Key,
		Size:         stat.Size,
		ContentType:  stat.ContentType,
		ETag:         stat.ETag,
		LastModified: stat.LastModified,
	}
}

// object wraps a MinIO GetObject response and exposes filestore.Object.
type object struct {
	io.ReadCloser
	info *filestore.ObjectInfo
}

func (o *object) Info() *filestore.ObjectInfo {
	return o.info
}
