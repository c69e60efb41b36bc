// Package storage persists upload bytes in one of two backends, the local
// filesystem or an S3-compatible object store, behind one narrow interface.
//
// Keys are slash-separated and namespaced as YYYY/MM/<owner>/<name>.
// Adapters never overwrite: saving onto an existing key picks a new key
// with a short random suffix and reports it in the returned descriptor.
package storage

import (
	"context"
	"io"
	"time"

	"github.com/dmitrijs2005/classfiles/internal/server/models"
)

// Backend tags.
const (
	BackendLocal = "local"
	BackendS3    = "s3"
)

// maxKeyAttempts bounds the collision-suffix loop in Save.
const maxKeyAttempts = 5

// ObjectInfo is what a backend knows about a stored object.
type ObjectInfo struct {
	Key         string
	Backend     string
	Size        int64
	ContentType string
	ModifiedAt  time.Time
}

// Capabilities advertises optional adapter features.
type Capabilities struct {
	SignedURLs bool
}

// Adapter is implemented by LocalAdapter and CloudAdapter.
type Adapter interface {
	// Backend returns the backend tag (BackendLocal or BackendS3).
	Backend() string

	// Save writes data under key, or under a suffixed variant of key if
	// key is taken, and describes what was written.
	Save(ctx context.Context, key string, data []byte, contentType string) (*models.StoredFileDescriptor, error)

	// Read opens the object for streaming. The caller closes the reader.
	Read(ctx context.Context, key string) (io.ReadCloser, *ObjectInfo, error)

	// Delete removes the object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// SignedURL returns a URL for direct retrieval valid for ttl.
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)

	// Info returns object metadata, or nil without error when absent.
	Info(ctx context.Context, key string) (*ObjectInfo, error)

	Capabilities() Capabilities
}
