// internal/registry/store_test.go
package registry

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() func() time.Time {
	t := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	return func() time.Time { return t }
}

func TestRegisterAssignsAvailableStatus(t *testing.T) {
	store := NewStore(fixedClock())

	eq, err := store.Register(Metadata{Name: "Forklift", Category: "heavy"}, "FORK-001")
	require.NoError(t, err)
	assert.Equal(t, StatusAvailable, eq.Status)
	assert.Equal(t, "FORK-001", eq.Code)
	assert.NotEqual(t, uuid.Nil, eq.ID)
}

func TestRegisterRejectsDuplicateCode(t *testing.T) {
	store := NewStore(fixedClock())

	_, err := store.Register(Metadata{Name: "Drill"}, "DRILL-01")
	require.NoError(t, err)

	_, err = store.Register(Metadata{Name: "Other drill"}, "DRILL-01")
	assert.ErrorIs(t, err, ErrDuplicateCode)
}

func TestRegisterRejectsMalformedCode(t *testing.T) {
	store := NewStore(fixedClock())

	for _, code := range []string{"", "abc", "AB1", "lower-case-1", "HAS SPACE-1"} {
		_, err := store.Register(Metadata{Name: "x"}, code)
		assert.ErrorIs(t, err, ErrInvalidCode, "code %q", code)
	}
}

func TestTransitionLegalEdges(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusAvailable, StatusLoaned, true},
		{StatusLoaned, StatusAvailable, true},
		{StatusAvailable, StatusMaintenance, true},
		{StatusMaintenance, StatusAvailable, true},
		{StatusLoaned, StatusMaintenance, true},
		{StatusAvailable, StatusRetired, true},
		{StatusLoaned, StatusRetired, true},
		{StatusMaintenance, StatusRetired, true},
		{StatusRetired, StatusAvailable, false},
		{StatusRetired, StatusLoaned, false},
		{StatusRetired, StatusMaintenance, false},
		{StatusRetired, StatusRetired, false},
		{StatusMaintenance, StatusLoaned, false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.ok, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestTransitionUnknownEquipment(t *testing.T) {
	store := NewStore(fixedClock())

	_, err := store.Transition(uuid.New(), StatusMaintenance)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTransitionRejectsIllegalEdge(t *testing.T) {
	store := NewStore(fixedClock())
	eq, err := store.Register(Metadata{Name: "Scanner"}, "SCAN-001")
	require.NoError(t, err)

	_, err = store.Transition(eq.ID, StatusRetired)
	require.NoError(t, err)

	_, err = store.Transition(eq.ID, StatusAvailable)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestTransitionReturnsPriorStatus(t *testing.T) {
	store := NewStore(fixedClock())
	eq, err := store.Register(Metadata{Name: "Scanner"}, "SCAN-002")
	require.NoError(t, err)

	before, err := store.Transition(eq.ID, StatusMaintenance)
	require.NoError(t, err)
	assert.Equal(t, StatusAvailable, before)

	got, err := store.Lookup(eq.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusMaintenance, got.Status)
}

func TestByCode(t *testing.T) {
	store := NewStore(fixedClock())
	eq, err := store.Register(Metadata{Name: "Printer"}, "PRNT-001")
	require.NoError(t, err)

	got, err := store.ByCode("PRNT-001")
	require.NoError(t, err)
	assert.Equal(t, eq.ID, got.ID)

	_, err = store.ByCode("PRNT-999")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLookupReturnsCopy(t *testing.T) {
	store := NewStore(fixedClock())
	eq, err := store.Register(Metadata{Name: "Printer"}, "PRNT-002")
	require.NoError(t, err)

	got, err := store.Lookup(eq.ID)
	require.NoError(t, err)
	got.Status = StatusRetired

	again, err := store.Lookup(eq.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusAvailable, again.Status)
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	store := NewStore(fixedClock())
	_, err := store.Register(Metadata{Name: "A"}, "UNIT-001")
	require.NoError(t, err)
	b, err := store.Register(Metadata{Name: "B"}, "UNIT-002")
	require.NoError(t, err)
	_, err = store.Transition(b.ID, StatusMaintenance)
	require.NoError(t, err)

	captured := store.Snapshot()

	_, err = store.Register(Metadata{Name: "C"}, "UNIT-003")
	require.NoError(t, err)

	store.Restore(captured)
	assert.Equal(t, captured, store.Snapshot())

	_, err = store.ByCode("UNIT-003")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRemoveRollsBackRegistration(t *testing.T) {
	store := NewStore(fixedClock())
	eq, err := store.Register(Metadata{Name: "Temp"}, "TEMP-001")
	require.NoError(t, err)

	store.Remove(eq.ID)

	_, err = store.Lookup(eq.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	// The code is free again after rollback.
	_, err = store.Register(Metadata{Name: "Temp"}, "TEMP-001")
	assert.NoError(t, err)
}
