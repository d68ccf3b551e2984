// internal/storage/storage.go
package storage

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable reports that the backing store could not complete an operation.
	ErrUnavailable = errors.New("storage unavailable")
	// ErrKeyNotFound reports that no value exists under the requested key.
	ErrKeyNotFound = errors.New("key not found")
)

// Engine is the boundary contract required from the storage layer: all three
// operations are all-or-nothing, a partial write is never observable.
type Engine interface {
	// AtomicRead returns the value stored under key, or ErrKeyNotFound.
	AtomicRead(ctx context.Context, key string) ([]byte, error)
	// AtomicWrite stores value under key, replacing any previous value.
	AtomicWrite(ctx context.Context, key string, value []byte) error
	// DurableSnapshotWrite persists a snapshot blob under name and does not
	// return until the blob is durable.
	DurableSnapshotWrite(ctx context.Context, name string, blob []byte) error
}
