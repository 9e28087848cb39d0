// Package blob abstracts the image blob store. The pipeline reads uploads by
// path, so paths are the contract: forward-slash separated, relative to the
// store root.
package blob

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no blob exists at the requested path.
var ErrNotFound = errors.New("blob not found")

// Store persists image blobs.
type Store interface {
	// Upload writes data at path and returns the stored path.
	Upload(ctx context.Context, data []byte, path, contentType string) (string, error)
	// Download returns the blob at path, or ErrNotFound.
	Download(ctx context.Context, path string) ([]byte, error)
	// DeleteIfExists removes the blob at path, reporting whether it existed.
	DeleteIfExists(ctx context.Context, path string) (bool, error)
}
