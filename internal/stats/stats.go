// internal/stats/stats.go
package stats

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"equipledger/internal/audit"
	"equipledger/internal/identity"
	"equipledger/internal/ledger"
	"equipledger/internal/registry"
)

// Facade is the read-only aggregation layer consumed by dashboards and report
// export. Everything is recomputed from the source of truth on every call;
// nothing is persisted.
type Facade struct {
	ledger   ledger.Service
	identity identity.Service
	trail    *audit.Trail
	now      func() time.Time
}

// NewFacade wires the statistics facade.
func NewFacade(svc ledger.Service, ids identity.Service, trail *audit.Trail, now func() time.Time) *Facade {
	if now == nil {
		now = time.Now
	}
	return &Facade{ledger: svc, identity: ids, trail: trail, now: now}
}

// EquipmentByStatus counts equipment per lifecycle status.
func (f *Facade) EquipmentByStatus(ctx context.Context) map[registry.Status]int {
	counts := make(map[registry.Status]int)
	for _, eq := range f.ledger.ListEquipment(ctx) {
		counts[eq.Status]++
	}
	return counts
}

// LoanCounts returns the number of open and overdue loans. Overdue loans are
// counted inside the open total.
func (f *Facade) LoanCounts(ctx context.Context) (open, overdue int) {
	now := f.now()
	for _, loan := range f.ledger.ListLoans(ctx) {
		switch ledger.EffectiveStatus(loan, now) {
		case ledger.StatusOpen:
			open++
		case ledger.StatusOverdue:
			open++
			overdue++
		}
	}
	return open, overdue
}

// SupervisorLoad summarizes one supervisor's borrowing position.
type SupervisorLoad struct {
	SupervisorID uuid.UUID `json:"supervisor_id"`
	Name         string    `json:"name"`
	Open         int       `json:"open"`
	Overdue      int       `json:"overdue"`
	Limit        int       `json:"limit,omitempty"`
}

// PerSupervisor returns loan counts per supervisor, ordered by open count
// descending then name.
func (f *Facade) PerSupervisor(ctx context.Context) []SupervisorLoad {
	now := f.now()
	byID := make(map[uuid.UUID]*SupervisorLoad)

	for _, loan := range f.ledger.ListLoans(ctx) {
		status := ledger.EffectiveStatus(loan, now)
		if status == ledger.StatusReturned {
			continue
		}
		load, ok := byID[loan.SupervisorID]
		if !ok {
			load = &SupervisorLoad{SupervisorID: loan.SupervisorID}
			if user, err := f.identity.GetUser(ctx, loan.SupervisorID); err == nil {
				load.Name = user.Name
				load.Limit = user.MaxConcurrentLoans
			}
			byID[loan.SupervisorID] = load
		}
		load.Open++
		if status == ledger.StatusOverdue {
			load.Overdue++
		}
	}

	out := make([]SupervisorLoad, 0, len(byID))
	for _, load := range byID {
		out = append(out, *load)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Open != out[j].Open {
			return out[i].Open > out[j].Open
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// RecentActivity returns audit entries inside the trailing window, ascending.
func (f *Facade) RecentActivity(ctx context.Context, window time.Duration) []audit.Entry {
	return f.trail.Query(ctx, audit.Filter{From: f.now().Add(-window)})
}
