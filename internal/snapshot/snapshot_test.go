// internal/snapshot/snapshot_test.go
package snapshot

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"equipledger/internal/audit"
	"equipledger/internal/identity"
	"equipledger/internal/ledger"
	"equipledger/internal/registry"
	"equipledger/internal/storage"
)

// brokenSnapshotEngine fails durable snapshot writes while leaving the
// key-value path intact.
type brokenSnapshotEngine struct {
	*storage.Memory
	failSnapshots bool
}

func (e *brokenSnapshotEngine) DurableSnapshotWrite(ctx context.Context, name string, value []byte) error {
	if e.failSnapshots {
		return storage.ErrUnavailable
	}
	return e.Memory.DurableSnapshotWrite(ctx, name, value)
}

type fixture struct {
	clock       time.Time
	engine      *brokenSnapshotEngine
	ids         identity.Service
	svc         ledger.Service
	coordinator *Coordinator
	admin       *identity.User
	supervisor  *identity.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{clock: time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)}
	now := func() time.Time { return f.clock }

	f.engine = &brokenSnapshotEngine{Memory: storage.NewMemory()}
	trail := audit.NewTrail(f.engine, now)
	f.ids = identity.NewService(trail, identity.Options{}, nil, now)
	ctx := context.Background()

	var err error
	f.admin, err = f.ids.CreateUser(ctx, uuid.Nil, "admin", "Admin", "admin-pass", identity.RoleAdministrator)
	require.NoError(t, err)
	f.supervisor, err = f.ids.CreateUser(ctx, f.admin.ID, "sana", "Sana", "sup-pass", identity.RoleSupervisor)
	require.NoError(t, err)

	store := registry.NewStore(now)
	f.svc = ledger.NewService(store, f.ids, trail, ledger.Config{
		LoanPeriod:      7 * 24 * time.Hour,
		DefaultMaxLoans: 10,
	}, nil, now)

	f.coordinator = NewCoordinator(f.svc, f.ids, f.engine, time.Second, nil, now)
	return f
}

// seed registers equipment and opens one loan so snapshots have content.
func (f *fixture) seed(t *testing.T) (*registry.Equipment, *ledger.Loan) {
	t.Helper()
	ctx := context.Background()

	eq, err := f.svc.RegisterEquipment(ctx, f.admin.ID, registry.Metadata{Name: "Forklift"}, "FORK-001")
	require.NoError(t, err)
	loan, err := f.svc.Issue(ctx, f.supervisor.ID, eq.ID, f.supervisor.ID, "site A", "")
	require.NoError(t, err)
	return eq, loan
}

func TestSnapshotNamesAndCounts(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	handle, err := f.coordinator.Snapshot(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "snapshot_20260110_090000", handle.Name)
	assert.Equal(t, f.clock, handle.CapturedAt)
	assert.Equal(t, 1, handle.Equipment)
	assert.Equal(t, 1, handle.Loans)
	assert.Greater(t, handle.Audit, 0)
}

func TestRestoreRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	eq, loan := f.seed(t)

	handle, err := f.coordinator.Snapshot(ctx)
	require.NoError(t, err)

	capturedEquipment := f.svc.ListEquipment(ctx)
	capturedLoans := f.svc.ListLoans(ctx)

	// Mutate past the snapshot point.
	require.NoError(t, f.svc.Return(ctx, f.supervisor.ID, loan.ID, false))
	_, err = f.svc.RegisterEquipment(ctx, f.admin.ID, registry.Metadata{Name: "Drill"}, "DRILL-01")
	require.NoError(t, err)

	require.NoError(t, f.coordinator.Restore(ctx, f.admin.ID, handle.Name))

	assert.Equal(t, capturedEquipment, f.svc.ListEquipment(ctx))
	assert.Equal(t, capturedLoans, f.svc.ListLoans(ctx))

	// The restored loan is open again and still pins its equipment.
	restored, err := f.svc.GetLoan(ctx, loan.ID)
	require.NoError(t, err)
	assert.Nil(t, restored.ReturnedAt)
	_, err = f.svc.Issue(ctx, f.supervisor.ID, eq.ID, f.supervisor.ID, "", "")
	assert.ErrorIs(t, err, ledger.ErrEquipmentUnavailable)
}

func TestSnapshotWriteFailureLeavesLedgerUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t)

	before := f.svc.ListLoans(ctx)

	f.engine.failSnapshots = true
	_, err := f.coordinator.Snapshot(ctx)
	require.ErrorIs(t, err, ErrSnapshotFailed)

	assert.Equal(t, before, f.svc.ListLoans(ctx))

	f.engine.failSnapshots = false
	_, err = f.coordinator.Snapshot(ctx)
	assert.NoError(t, err)
}

func TestRestoreRequiresAdministrator(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t)

	handle, err := f.coordinator.Snapshot(ctx)
	require.NoError(t, err)

	err = f.coordinator.Restore(ctx, f.supervisor.ID, handle.Name)
	assert.ErrorIs(t, err, ErrUnauthorized)

	err = f.coordinator.Restore(ctx, uuid.New(), handle.Name)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestRestoreUnknownSnapshot(t *testing.T) {
	f := newFixture(t)

	err := f.coordinator.Restore(context.Background(), f.admin.ID, "snapshot_19990101_000000")
	assert.ErrorIs(t, err, ErrSnapshotFailed)
}

func TestRestoreRejectsSchemaMismatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	blob, err := json.Marshal(map[string]any{"schema_version": 99})
	require.NoError(t, err)
	require.NoError(t, f.engine.AtomicWrite(ctx, "snapshots/snapshot_bad", blob))

	err = f.coordinator.Restore(ctx, f.admin.ID, "snapshot_bad")
	assert.ErrorIs(t, err, ErrIncompatibleSnapshot)
}
