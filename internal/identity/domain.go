// internal/identity/domain.go
package identity

import (
	"time"

	"github.com/google/uuid"
)

// Role is the closed set of user roles. Exactly one role per user.
type Role string

const (
	RoleAdministrator Role = "ADMINISTRATOR"
	RoleSupervisor    Role = "SUPERVISOR"
	RoleTechnician    Role = "TECHNICIAN"
)

// Capability names one authorizable operation kind.
type Capability string

const (
	CapViewInventory   Capability = "inventory.view"
	CapManageEquipment Capability = "equipment.manage"
	CapLogMaintenance  Capability = "maintenance.log"
	CapIssueLoan       Capability = "loan.issue"
	CapReturnLoan      Capability = "loan.return"
	CapViewReports     Capability = "reports.view"
	CapManageUsers     Capability = "users.manage"
	CapRestoreSnapshot Capability = "snapshot.restore"
)

// roleCapabilities is the explicit capability table checked before every
// mutator. Administrators hold every capability.
var roleCapabilities = map[Role][]Capability{
	RoleAdministrator: {
		CapViewInventory, CapManageEquipment, CapLogMaintenance,
		CapIssueLoan, CapReturnLoan, CapViewReports,
		CapManageUsers, CapRestoreSnapshot,
	},
	RoleSupervisor: {
		CapViewInventory, CapIssueLoan, CapReturnLoan, CapViewReports,
	},
	RoleTechnician: {
		CapViewInventory, CapLogMaintenance, CapViewReports,
	},
}

// HasCapability reports whether the role grants the capability.
func (r Role) HasCapability(c Capability) bool {
	for _, granted := range roleCapabilities[r] {
		if granted == c {
			return true
		}
	}
	return false
}

// Valid reports whether r is one of the three known roles.
func (r Role) Valid() bool {
	_, ok := roleCapabilities[r]
	return ok
}

// User is an account that may act on the ledger.
type User struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Name     string    `json:"name"`
	Role     Role      `json:"role"`
	Active   bool      `json:"active"`
	// MaxConcurrentLoans applies to supervisors; zero means the configured
	// default.
	MaxConcurrentLoans int       `json:"max_concurrent_loans,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Credential holds a user's one-way password-verification material.
type Credential struct {
	UserID         uuid.UUID `json:"-"`
	PasswordHash   string    `json:"-"`
	Salt           string    `json:"-"`
	FailedAttempts int       `json:"-"`
	LockedUntil    time.Time `json:"-"`
}
