// internal/storage/storage_test.go
package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryReadWriteRoundTrip(t *testing.T) {
	engine := NewMemory()
	ctx := context.Background()

	require.NoError(t, engine.AtomicWrite(ctx, "audit/000000000001", []byte("first")))

	got, err := engine.AtomicRead(ctx, "audit/000000000001")
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), got)

	require.NoError(t, engine.AtomicWrite(ctx, "audit/000000000001", []byte("second")))
	got, err = engine.AtomicRead(ctx, "audit/000000000001")
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), got)
}

func TestMemoryMissingKey(t *testing.T) {
	engine := NewMemory()

	_, err := engine.AtomicRead(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestMemoryReturnsCopies(t *testing.T) {
	engine := NewMemory()
	ctx := context.Background()

	original := []byte("value")
	require.NoError(t, engine.AtomicWrite(ctx, "k", original))
	original[0] = 'X'

	got, err := engine.AtomicRead(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), got)

	got[0] = 'Y'
	again, err := engine.AtomicRead(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), again)
}

func TestMemorySnapshotWriteReadableThroughKV(t *testing.T) {
	engine := NewMemory()
	ctx := context.Background()

	require.NoError(t, engine.DurableSnapshotWrite(ctx, "snapshot_20260110_090000", []byte("{}")))

	got, err := engine.AtomicRead(ctx, "snapshots/snapshot_20260110_090000")
	require.NoError(t, err)
	assert.Equal(t, []byte("{}"), got)
}

func TestFilesystemReadWriteRoundTrip(t *testing.T) {
	engine, err := NewFilesystem(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, engine.AtomicWrite(ctx, "audit/000000000001", []byte("entry")))

	got, err := engine.AtomicRead(ctx, "audit/000000000001")
	require.NoError(t, err)
	assert.Equal(t, []byte("entry"), got)

	// Overwrite replaces in place.
	require.NoError(t, engine.AtomicWrite(ctx, "audit/000000000001", []byte("updated")))
	got, err = engine.AtomicRead(ctx, "audit/000000000001")
	require.NoError(t, err)
	assert.Equal(t, []byte("updated"), got)
}

func TestFilesystemMissingKey(t *testing.T) {
	engine, err := NewFilesystem(t.TempDir())
	require.NoError(t, err)

	_, err = engine.AtomicRead(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestFilesystemRejectsTraversalKeys(t *testing.T) {
	engine, err := NewFilesystem(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	for _, key := range []string{"", "  ", "../escape", "a/../../escape", "/etc/passwd"} {
		assert.Error(t, engine.AtomicWrite(ctx, key, []byte("x")), "key %q", key)
		_, err := engine.AtomicRead(ctx, key)
		assert.Error(t, err, "key %q", key)
	}
}

func TestFilesystemSnapshotRoundTrip(t *testing.T) {
	engine, err := NewFilesystem(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, engine.DurableSnapshotWrite(ctx, "snapshot_20260110_090000", []byte(`{"schema_version":1}`)))

	got, err := engine.AtomicRead(ctx, "snapshots/snapshot_20260110_090000")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"schema_version":1}`), got)
}

func TestFilesystemSnapshotHonorsCanceledContext(t *testing.T) {
	engine, err := NewFilesystem(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = engine.DurableSnapshotWrite(ctx, "snapshot_x", []byte("{}"))
	assert.ErrorIs(t, err, context.Canceled)
}
