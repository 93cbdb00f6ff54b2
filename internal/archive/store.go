package archive

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a named document does not exist
var ErrNotFound = errors.New("archive document not found")

// Store is byte-oriented storage for finished consultation files. Names are
// forward-slash separated and relative to the store root. Implementations
// must be safe for concurrent use.
type Store interface {
	Put(ctx context.Context, name string, data []byte) error
	Get(ctx context.Context, name string) ([]byte, error)
	Exists(ctx context.Context, name string) (bool, error)
	// Delete is idempotent
	Delete(ctx context.Context, name string) error
}
