package storage

import (
	"context"
	"io"
)

// ObjectStorage stores generated artifacts and removes abandoned uploads.
type ObjectStorage interface {
	// Store uploads the content under name and returns its public URL.
	Store(ctx context.Context, name string, content io.Reader) (string, error)
	// Delete removes the object behind a URL previously returned by Store
	// or accepted from a client upload.
	Delete(ctx context.Context, url string) error
}
