// Package archive defines the interface for the artifact store that keeps
// a JSON snapshot of each ingestion run's summary.
//
// All providers (MinIO, in-memory) implement the Store interface. Callers
// depend only on this package — never on a specific provider package.
// Archiving is best-effort: a failed write is logged by the job runner and
// never fails the run.
package archive

import (
	"context"
	"io"
	"time"
)

// Store is the interface all archive providers implement. Keys are
// slash-separated paths within a single configured bucket, e.g.
// "jobs/<job-id>/summary.json".
type Store interface {
	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Put stores data under key, replacing any previous object.
	Put(ctx context.Context, key, contentType string, data []byte) error

	// Get opens a streaming handle to the object at key.
	// The caller MUST call Object.Close() after reading.
	Get(ctx context.Context, key string) (Object, error)

	// Stat returns metadata for the object at key without downloading it.
	Stat(ctx context.Context, key string) (*ObjectInfo, error)

	// Close releases any held resources.
	Close() error
}

// ObjectInfo describes a single archived object.
type ObjectInfo struct {
	// Key is the full object path within the bucket.
	Key string

	// Size is the byte size of the object. -1 if unknown.
	Size int64

	// ContentType is the MIME type (e.g. "application/json").
	ContentType string

	// ETag is the object's entity tag / hash, as returned by the backend.
	ETag string

	// LastModified is when the object was last written.
	LastModified time.Time
}

// Object is a streaming handle to an object's content.
// The caller MUST call Close() after reading to avoid resource leaks.
type Object interface {
	io.ReadCloser

	// Info returns the metadata for this object.
	Info() *ObjectInfo
}

// Config holds all settings needed to connect to an archive backend.
type Config struct {
	// Endpoint is the host:port of the storage server.
	// Example: "localhost:9000" for local MinIO. Empty disables archiving.
	Endpoint string

	// Bucket is the bucket all archive keys live in.
	Bucket string

	// AccessKey is the access key ID (MinIO / S3 style).
	AccessKey string

	// SecretKey is the secret access key.
	SecretKey string

	// UseSSL controls whether TLS is used for the connection.
	UseSSL bool

	// Region is used by region-aware backends. Leave empty for MinIO.
	Region string
}

// Enabled reports whether an archive backend is configured at all.
func (c Config) Enabled() bool {
	return c.Endpoint != ""
}
