// Package minio provides a MinIO implementation of archive.Store.
//
// Usage:
//
//	store, err := minio.New(ctx, archive.Config{
//	    Endpoint:  "localhost:9000",
//	    Bucket:    "datainsight",
//	    AccessKey: "minioadmin",
//	    SecretKey: "minioadmin",
//	})
//	if err != nil { ... }
//	defer store.Close()
package minio

import (
	"bytes"
	"context"
	"io"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/openportal/datainsight/internal/archive"
	"github.com/openportal/datainsight/internal/errs"
)

// Driver is a MinIO implementation of archive.Store scoped to one bucket.
// It is safe for concurrent use by multiple goroutines.
type Driver struct {
	client *miniogo.Client
	bucket string
}

// New connects to MinIO using the provided Config and returns a Driver.
// The bucket is created when it does not exist yet.
func New(ctx context.Context, cfg archive.Config) (*Driver, error) {
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindStorage, "creating minio client", err)
	}

	d := &Driver{client: client, bucket: cfg.Bucket}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, mapError(err, "checking archive bucket")
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, miniogo.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, mapError(err, "creating archive bucket")
		}
	}

	return d, nil
}

// --- archive.Store implementation ---

// Ping verifies the MinIO server is reachable by checking the bucket.
func (d *Driver) Ping(ctx context.Context) error {
	if _, err := d.client.BucketExists(ctx, d.bucket); err != nil {
		return mapError(err, "ping failed")
	}
	return nil
}

// Close is a no-op — the SDK client holds no persistent connections.
func (d *Driver) Close() error {
	return nil
}

// Put stores data under key, replacing any previous object.
func (d *Driver) Put(ctx context.Context, key, contentType string, data []byte) error {
	_, err := d.client.PutObject(ctx, d.bucket, key, bytes.NewReader(data), int64(len(data)),
		miniogo.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return mapError(err, "storing archive object")
	}
	return nil
}

// Get opens a streaming handle to the object at key.
// The caller MUST call Object.Close() after reading.
func (d *Driver) Get(ctx context.Context, key string) (archive.Object, error) {
	obj, err := d.client.GetObject(ctx, d.bucket, key, miniogo.GetObjectOptions{})
	if err != nil {
		return nil, mapError(err, "fetching archive object")
	}

	stat, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, mapError(err, "fetching archive object")
	}

	return &object{
		ReadCloser: obj,
		info: &archive.ObjectInfo{
			Key:          key,
			Size:         stat.Size,
			ContentType:  stat.ContentType,
			ETag:         stat.ETag,
			LastModified: stat.LastModified,
		},
	}, nil
}

// Stat returns metadata for the object at key without downloading it.
func (d *Driver) Stat(ctx context.Context, key string) (*archive.ObjectInfo, error) {
	stat, err := d.client.StatObject(ctx, d.bucket, key, miniogo.StatObjectOptions{})
	if err != nil {
		return nil, mapError(err, "checking archive object")
	}

	return &archive.ObjectInfo{
		Key:          stat.Key,
		Size:         stat.Size,
		ContentType:  stat.ContentType,
		ETag:         stat.ETag,
		LastModified: stat.LastModified,
	}, nil
}

// --- internal types ---

// object wraps a MinIO GetObject response and exposes archive.Object.
type object struct {
	io.ReadCloser
	info *archive.ObjectInfo
}

func (o *object) Info() *archive.ObjectInfo {
	return o.info
}
