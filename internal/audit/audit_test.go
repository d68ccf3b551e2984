// internal/audit/audit_test.go
package audit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"equipledger/internal/storage"
)

// flakyEngine wraps the in-memory engine and fails writes on demand.
type flakyEngine struct {
	*storage.Memory
	failWrites bool
}

func (f *flakyEngine) AtomicWrite(ctx context.Context, key string, value []byte) error {
	if f.failWrites {
		return storage.ErrUnavailable
	}
	return f.Memory.AtomicWrite(ctx, key, value)
}

func steppingClock(start time.Time, step time.Duration) func() time.Time {
	current := start
	return func() time.Time {
		now := current
		current = current.Add(step)
		return now
	}
}

func TestAppendAssignsMonotonicSequence(t *testing.T) {
	trail := NewTrail(storage.NewMemory(), steppingClock(time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC), time.Second))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := trail.Append(ctx, Entry{Actor: uuid.New(), Operation: "loan.issue", EntityID: uuid.New()})
		require.NoError(t, err)
	}

	entries := trail.Entries()
	require.Len(t, entries, 3)
	for i, e := range entries {
		assert.Equal(t, int64(i+1), e.Seq)
	}
}

func TestAppendSequenceBreaksTimestampTies(t *testing.T) {
	// A frozen clock produces identical timestamps; sequence must still order.
	frozen := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	trail := NewTrail(storage.NewMemory(), func() time.Time { return frozen })
	ctx := context.Background()

	require.NoError(t, trail.Append(ctx, Entry{Operation: "first"}))
	require.NoError(t, trail.Append(ctx, Entry{Operation: "second"}))

	entries := trail.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "first", entries[0].Operation)
	assert.Equal(t, "second", entries[1].Operation)
	assert.Less(t, entries[0].Seq, entries[1].Seq)
}

func TestAppendSurfacesStorageFailure(t *testing.T) {
	engine := &flakyEngine{Memory: storage.NewMemory()}
	trail := NewTrail(engine, steppingClock(time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC), time.Second))
	ctx := context.Background()

	require.NoError(t, trail.Append(ctx, Entry{Operation: "ok"}))

	engine.failWrites = true
	err := trail.Append(ctx, Entry{Operation: "lost"})
	assert.ErrorIs(t, err, storage.ErrUnavailable)

	// The trail must not contain the failed entry, and the sequence must not
	// have advanced.
	entries := trail.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(1), entries[0].Seq)

	engine.failWrites = false
	require.NoError(t, trail.Append(ctx, Entry{Operation: "resumed"}))
	entries = trail.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, int64(2), entries[1].Seq)
}

func TestQueryFilters(t *testing.T) {
	start := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	trail := NewTrail(storage.NewMemory(), steppingClock(start, time.Minute))
	ctx := context.Background()

	actorA, actorB := uuid.New(), uuid.New()
	entityX, entityY := uuid.New(), uuid.New()

	require.NoError(t, trail.Append(ctx, Entry{Actor: actorA, EntityID: entityX, Operation: "equipment.register"})) // 09:00
	require.NoError(t, trail.Append(ctx, Entry{Actor: actorB, EntityID: entityY, Operation: "loan.issue"}))         // 09:01
	require.NoError(t, trail.Append(ctx, Entry{Actor: actorA, EntityID: entityY, Operation: "loan.return"}))        // 09:02

	byEntity := trail.Query(ctx, Filter{EntityID: &entityY})
	require.Len(t, byEntity, 2)
	assert.Equal(t, "loan.issue", byEntity[0].Operation)
	assert.Equal(t, "loan.return", byEntity[1].Operation)

	byActor := trail.Query(ctx, Filter{Actor: &actorA})
	require.Len(t, byActor, 2)

	byRange := trail.Query(ctx, Filter{From: start.Add(30 * time.Second), To: start.Add(90 * time.Second)})
	require.Len(t, byRange, 1)
	assert.Equal(t, "loan.issue", byRange[0].Operation)
}

func TestQueryIsRestartable(t *testing.T) {
	trail := NewTrail(storage.NewMemory(), steppingClock(time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC), time.Second))
	ctx := context.Background()

	require.NoError(t, trail.Append(ctx, Entry{Operation: "one"}))
	require.NoError(t, trail.Append(ctx, Entry{Operation: "two"}))

	first := trail.Query(ctx, Filter{})
	second := trail.Query(ctx, Filter{})
	assert.Equal(t, first, second)
}

func TestRestoreReplacesTrailAndSequence(t *testing.T) {
	trail := NewTrail(storage.NewMemory(), steppingClock(time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC), time.Second))
	ctx := context.Background()

	require.NoError(t, trail.Append(ctx, Entry{Operation: "kept"}))
	require.NoError(t, trail.Append(ctx, Entry{Operation: "kept too"}))
	captured := trail.Entries()

	require.NoError(t, trail.Append(ctx, Entry{Operation: "after capture"}))

	trail.Restore(captured)
	assert.Equal(t, captured, trail.Entries())

	// Appends continue from the restored sequence.
	require.NoError(t, trail.Append(ctx, Entry{Operation: "next"}))
	entries := trail.Entries()
	assert.Equal(t, int64(3), entries[len(entries)-1].Seq)
}
