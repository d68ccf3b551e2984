// internal/identity/service.go
package identity

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the interface for the identity and role store.
type Service interface {
	Authenticate(ctx context.Context, username, secret string) (*User, error)
	Authorize(userID uuid.UUID, capability Capability) bool
	CreateUser(ctx context.Context, actor uuid.UUID, username, name, secret string, role Role) (*User, error)
	ChangeRole(ctx context.Context, actor, userID uuid.UUID, role Role) error
	Deactivate(ctx context.Context, actor, userID uuid.UUID) error
	SetLoanLimit(ctx context.Context, actor, userID uuid.UUID, limit int) error
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
	ListUsers(ctx context.Context) []User
}
