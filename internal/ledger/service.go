// internal/ledger/service.go
package ledger

import (
	"context"

	"github.com/google/uuid"

	"equipledger/internal/registry"
)

// Service defines the interface for the combined Equipment+Loan consistency
// domain.
type Service interface {
	RegisterEquipment(ctx context.Context, actor uuid.UUID, meta registry.Metadata, code string) (*registry.Equipment, error)
	TransitionEquipment(ctx context.Context, actor, equipmentID uuid.UUID, target registry.Status) error
	GetEquipment(ctx context.Context, id uuid.UUID) (*registry.Equipment, error)
	GetEquipmentByCode(ctx context.Context, code string) (*registry.Equipment, error)
	ListEquipment(ctx context.Context) []registry.Equipment

	Issue(ctx context.Context, actor, equipmentID, supervisorID uuid.UUID, location, note string) (*Loan, error)
	Return(ctx context.Context, actor, loanID uuid.UUID, toMaintenance bool) error
	GetLoan(ctx context.Context, id uuid.UUID) (*Loan, error)
	OpenLoansFor(ctx context.Context, supervisorID uuid.UUID) []Loan
	OverdueLoans(ctx context.Context) []Loan
	ListLoans(ctx context.Context) []Loan

	Capture() State
	RestoreState(state State)
}
