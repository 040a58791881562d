package object

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned (wrapped) by Open when the key does not resolve.
var ErrNotFound = errors.New("object not found")

// ObjectStore defines the contract for saving and retrieving binary objects.
type ObjectStore interface {
	Save(ctx context.Context, userID string, fileName string, r io.Reader) (storageKey string, sizeBytes int64, mimeType string, err error)
	SaveWithKey(ctx context.Context, storageKey string, contentType string, r io.Reader) (int64, error)
	Open(ctx context.Context, storageKey string) (io.ReadCloser, error)
	// URL returns a link a client can fetch the object from.
	URL(ctx context.Context, storageKey string) (string, error)
}
