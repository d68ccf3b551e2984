// internal/identity/implementation.go
package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"equipledger/internal/audit"
)

var (
	ErrAuthFailed        = errors.New("authentication failed")
	ErrNotFound          = errors.New("user not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrDuplicateUsername = errors.New("username already taken")
	ErrInvalidRole       = errors.New("unknown role")
	ErrRateLimited       = errors.New("rate limit exceeded")
)

// Options tune the lockout and rate-limit behavior.
type Options struct {
	// MaxLoginAttempts before the account locks. Zero disables lockout.
	MaxLoginAttempts int
	// LockoutPeriod is how long a locked account stays locked.
	LockoutPeriod time.Duration
}

// service implements the Service interface. Identity state is its own
// consistency domain with its own lock; it never participates in the ledger
// writer lock.
type service struct {
	mu          sync.RWMutex
	users       map[uuid.UUID]*User
	byUsername  map[string]uuid.UUID
	credentials map[uuid.UUID]*Credential
	trail       *audit.Trail
	opts        Options
	rateLimiter *rate.Limiter
	now         func() time.Time
	logger      *zap.Logger
}

// NewService creates a new identity service instance.
func NewService(trail *audit.Trail, opts Options, logger *zap.Logger, now func() time.Time) Service {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &service{
		users:       make(map[uuid.UUID]*User),
		byUsername:  make(map[string]uuid.UUID),
		credentials: make(map[uuid.UUID]*Credential),
		trail:       trail,
		opts:        opts,
		rateLimiter: rate.NewLimiter(rate.Every(1*time.Minute), 5), // 5 attempts per minute
		now:         now,
		logger:      logger,
	}
}

// Authenticate verifies the secret against the stored one-way material. The
// raw secret is never logged or persisted.
func (s *service) Authenticate(ctx context.Context, username, secret string) (*User, error) {
	if !s.rateLimiter.Allow() {
		return nil, ErrRateLimited
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byUsername[username]
	if !ok {
		return nil, ErrAuthFailed
	}
	user := s.users[id]
	cred := s.credentials[id]

	if !user.Active {
		return nil, ErrAuthFailed
	}
	if !cred.LockedUntil.IsZero() && s.now().Before(cred.LockedUntil) {
		return nil, fmt.Errorf("%w: account locked", ErrAuthFailed)
	}

	ok, err := verifyPassword(secret, cred.Salt, cred.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	if !ok {
		cred.FailedAttempts++
		if s.opts.MaxLoginAttempts > 0 && cred.FailedAttempts >= s.opts.MaxLoginAttempts {
			cred.LockedUntil = s.now().Add(s.opts.LockoutPeriod)
			cred.FailedAttempts = 0
			s.logger.Warn("account locked after repeated failures",
				zap.String("username", username))
		}
		return nil, ErrAuthFailed
	}

	cred.FailedAttempts = 0
	cred.LockedUntil = time.Time{}
	out := *user
	return &out, nil
}

// Authorize is a pure capability check against the role table.
func (s *service) Authorize(userID uuid.UUID, capability Capability) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[userID]
	if !ok || !user.Active {
		return false
	}
	return user.Role.HasCapability(capability)
}

// CreateUser registers a new account. Requires the users.manage capability,
// except when the store is empty: the first account bootstraps as written.
func (s *service) CreateUser(ctx context.Context, actor uuid.UUID, username, name, secret string, role Role) (*User, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.users) > 0 && !s.authorizeLocked(actor, CapManageUsers) {
		return nil, ErrUnauthorized
	}
	if _, exists := s.byUsername[username]; exists {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateUsername, username)
	}

	passwordHash, salt, err := hashPassword(secret)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now()
	user := &User{
		ID:        uuid.New(),
		Username:  username,
		Name:      name,
		Role:      role,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.trail.Append(ctx, audit.Entry{
		Actor:     actor,
		Operation: "user.create",
		EntityID:  user.ID,
		After:     string(role),
		Detail:    username,
	}); err != nil {
		return nil, err
	}

	s.users[user.ID] = user
	s.byUsername[username] = user.ID
	s.credentials[user.ID] = &Credential{
		UserID:       user.ID,
		PasswordHash: passwordHash,
		Salt:         salt,
	}

	out := *user
	return &out, nil
}

// ChangeRole reassigns a user's single role.
func (s *service) ChangeRole(ctx context.Context, actor, userID uuid.UUID, role Role) error {
	if !role.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.authorizeLocked(actor, CapManageUsers) {
		return ErrUnauthorized
	}
	user, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, userID)
	}

	if err := s.trail.Append(ctx, audit.Entry{
		Actor:     actor,
		Operation: "user.change_role",
		EntityID:  userID,
		Before:    string(user.Role),
		After:     string(role),
	}); err != nil {
		return err
	}

	user.Role = role
	user.UpdatedAt = s.now()
	return nil
}

// Deactivate disables an account. Deactivated users fail every authorization.
func (s *service) Deactivate(ctx context.Context, actor, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.authorizeLocked(actor, CapManageUsers) {
		return ErrUnauthorized
	}
	user, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, userID)
	}

	if err := s.trail.Append(ctx, audit.Entry{
		Actor:     actor,
		Operation: "user.deactivate",
		EntityID:  userID,
		Before:    "active",
		After:     "inactive",
	}); err != nil {
		return err
	}

	user.Active = false
	user.UpdatedAt = s.now()
	return nil
}

// SetLoanLimit configures a supervisor's maximum concurrent loans. Lowering
// the limit never invalidates open loans; it only constrains future issuance.
func (s *service) SetLoanLimit(ctx context.Context, actor, userID uuid.UUID, limit int) error {
	if limit < 0 {
		return fmt.Errorf("loan limit must not be negative")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.authorizeLocked(actor, CapManageUsers) {
		return ErrUnauthorized
	}
	user, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, userID)
	}

	if err := s.trail.Append(ctx, audit.Entry{
		Actor:     actor,
		Operation: "user.set_loan_limit",
		EntityID:  userID,
		Before:    fmt.Sprintf("limit=%d", user.MaxConcurrentLoans),
		After:     fmt.Sprintf("limit=%d", limit),
	}); err != nil {
		return err
	}

	user.MaxConcurrentLoans = limit
	user.UpdatedAt = s.now()
	return nil
}

// GetUser retrieves a user by identifier.
func (s *service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	out := *user
	return &out, nil
}

// ListUsers returns all accounts.
func (s *service) ListUsers(ctx context.Context) []User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, *u)
	}
	return out
}

func (s *service) authorizeLocked(userID uuid.UUID, capability Capability) bool {
	user, ok := s.users[userID]
	if !ok || !user.Active {
		return false
	}
	return user.Role.HasCapability(capability)
}
