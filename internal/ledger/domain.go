// internal/ledger/domain.go
package ledger

import (
	"time"

	"github.com/google/uuid"

	"equipledger/internal/audit"
	"equipledger/internal/registry"
)

// LoanStatus is a loan's read-time classification. OVERDUE is derived from
// due-at against the current clock, never stored.
type LoanStatus string

const (
	StatusOpen     LoanStatus = "OPEN"
	StatusOverdue  LoanStatus = "OVERDUE"
	StatusReturned LoanStatus = "RETURNED"
)

// Loan records one equipment loan to a supervisor.
type Loan struct {
	ID           uuid.UUID  `json:"id"`
	EquipmentID  uuid.UUID  `json:"equipment_id"`
	SupervisorID uuid.UUID  `json:"supervisor_id"`
	Location     string     `json:"location,omitempty"`
	IssuedAt     time.Time  `json:"issued_at"`
	DueAt        time.Time  `json:"due_at"`
	ReturnedAt   *time.Time `json:"returned_at,omitempty"`
	Note         string     `json:"note,omitempty"`
}

// EffectiveStatus classifies a loan at read time: RETURNED if closed, OVERDUE
// if still open past its due date, OPEN otherwise.
func EffectiveStatus(l Loan, now time.Time) LoanStatus {
	if l.ReturnedAt != nil {
		return StatusReturned
	}
	if now.After(l.DueAt) {
		return StatusOverdue
	}
	return StatusOpen
}

// State is a consistent point-in-time copy of the whole ledger, captured and
// restored under the writer lock.
type State struct {
	CapturedAt time.Time            `json:"captured_at"`
	Equipment  []registry.Equipment `json:"equipment"`
	Loans      []Loan               `json:"loans"`
	Audit      []audit.Entry        `json:"audit"`
}
