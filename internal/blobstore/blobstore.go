// Package blobstore provides byte storage for mirrored media. Blobs are
// keyed by the local record id the ingestion engine allocates, so a
// tombstoned record's bytes can be evicted without touching any other
// record of the same origin resource.
package blobstore

import (
	"context"
	"net/url"

	"github.com/sweepies/imgur-sans-bullshit/internal/conf"
	"github.com/sweepies/imgur-sans-bullshit/internal/errors"
)

// ErrBlobNotFound is returned by Get when no blob exists under the key.
var ErrBlobNotFound = errors.NewStd("blob not found")

// Object is a stored blob together with its content metadata.
type Object struct {
	Data        []byte
	ContentType string
	Metadata    map[string]string
}

// Interface is the byte storage contract: keyed get/put/delete plus an
// existence probe. Implementations must treat keys as opaque strings that
// may contain ':' and '/'.
type Interface interface {
	Get(ctx context.Context, key string) (*Object, error)
	Put(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Close() error
}

// New creates the blob store backend selected by configuration.
func New(settings *conf.Settings) (Interface, error) {
	switch settings.BlobStore.Backend {
	case "local":
		return NewLocalStore(settings.BlobStore.Local.Path)
	case "sftp":
		return NewSFTPStore(&settings.BlobStore.SFTP)
	default:
		return nil, errors.Newf("unknown blob store backend %q", settings.BlobStore.Backend).
			Component("blobstore").
			Category(errors.CategoryConfiguration).
			Build()
	}
}

// objectFileName maps an opaque blob key to a single safe file name.
// PathEscape keeps the mapping reversible and collision-free.
func objectFileName(key string) string {
	return url.PathEscape(key)
}

// metaFileName is the sidecar carrying content type and custom metadata.
func metaFileName(key string) string {
	return objectFileName(key) + ".meta.json"
}
