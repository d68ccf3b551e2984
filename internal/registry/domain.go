// internal/registry/domain.go
package registry

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a piece of equipment.
type Status string

const (
	StatusAvailable   Status = "AVAILABLE"
	StatusLoaned      Status = "LOANED"
	StatusMaintenance Status = "MAINTENANCE"
	StatusRetired     Status = "RETIRED"
)

// Equipment represents one physical item tracked by the inventory.
type Equipment struct {
	ID        uuid.UUID `json:"id"`
	Code      string    `json:"code"` // QR-mapped code, unique, immutable once assigned
	Name      string    `json:"name"`
	Category  string    `json:"category,omitempty"`
	Location  string    `json:"location,omitempty"`
	Status    Status    `json:"status"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Metadata is the caller-supplied descriptive part of a registration.
type Metadata struct {
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
	Location string `json:"location,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

// legalTransitions is the single source of transition-legality truth. RETIRED
// has no outgoing edges.
var legalTransitions = map[Status][]Status{
	StatusAvailable:   {StatusLoaned, StatusMaintenance, StatusRetired},
	StatusLoaned:      {StatusAvailable, StatusMaintenance, StatusRetired},
	StatusMaintenance: {StatusAvailable, StatusRetired},
	StatusRetired:     {},
}

// CanTransition reports whether target is reachable from current in one step.
func CanTransition(current, target Status) bool {
	for _, s := range legalTransitions[current] {
		if s == target {
			return true
		}
	}
	return false
}
