// internal/registry/store.go
package registry

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound          = errors.New("equipment not found")
	ErrDuplicateCode     = errors.New("equipment code already registered")
	ErrInvalidCode       = errors.New("invalid equipment code")
	ErrInvalidTransition = errors.New("invalid equipment status transition")
)

// codePattern matches the accepted equipment code format: upper-case letters,
// digits and dashes, five characters minimum.
var codePattern = regexp.MustCompile(`^[A-Z0-9-]{5,}$`)

// Store holds the canonical equipment records. It carries no lock of its own:
// the ledger service serializes all access through the writer lock of the
// Equipment+Loan consistency domain.
type Store struct {
	byID   map[uuid.UUID]*Equipment
	byCode map[string]uuid.UUID
	now    func() time.Time
}

// NewStore returns an empty registry store.
func NewStore(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		byID:   make(map[uuid.UUID]*Equipment),
		byCode: make(map[string]uuid.UUID),
		now:    now,
	}
}

// Register creates a new equipment record in AVAILABLE status. The code is
// immutable once assigned.
func (s *Store) Register(meta Metadata, code string) (*Equipment, error) {
	if !codePattern.MatchString(code) {
		return nil, fmt.Errorf("%w: %q (use upper-case letters, digits and dashes, 5+ characters)", ErrInvalidCode, code)
	}
	if _, exists := s.byCode[code]; exists {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateCode, code)
	}

	now := s.now()
	eq := &Equipment{
		ID:        uuid.New(),
		Code:      code,
		Name:      meta.Name,
		Category:  meta.Category,
		Location:  meta.Location,
		Status:    StatusAvailable,
		Notes:     meta.Notes,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.byID[eq.ID] = eq
	s.byCode[code] = eq.ID
	return copyOf(eq), nil
}

// Transition moves the equipment to target along a legal edge.
func (s *Store) Transition(id uuid.UUID, target Status) (before Status, err error) {
	eq, ok := s.byID[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !CanTransition(eq.Status, target) {
		return "", fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, eq.Status, target)
	}
	before = eq.Status
	eq.Status = target
	eq.UpdatedAt = s.now()
	return before, nil
}

// SetLocation records where the equipment currently sits.
func (s *Store) SetLocation(id uuid.UUID, location string) error {
	eq, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	eq.Location = location
	eq.UpdatedAt = s.now()
	return nil
}

// Remove deletes a record outright. Retirement is the only end-of-life path
// for committed equipment; this exists solely to roll back a registration
// whose audit write failed before commit.
func (s *Store) Remove(id uuid.UUID) {
	eq, ok := s.byID[id]
	if !ok {
		return
	}
	delete(s.byCode, eq.Code)
	delete(s.byID, id)
}

// Lookup returns the equipment record by identifier.
func (s *Store) Lookup(id uuid.UUID) (*Equipment, error) {
	eq, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return copyOf(eq), nil
}

// ByCode returns the equipment record mapped to a QR code.
func (s *Store) ByCode(code string) (*Equipment, error) {
	id, ok := s.byCode[code]
	if !ok {
		return nil, fmt.Errorf("%w: code %q", ErrNotFound, code)
	}
	return copyOf(s.byID[id]), nil
}

// List returns all equipment ordered by code.
func (s *Store) List() []Equipment {
	out := make([]Equipment, 0, len(s.byID))
	for _, eq := range s.byID {
		out = append(out, *eq)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Snapshot returns a deep copy of every record for backup capture.
func (s *Store) Snapshot() []Equipment {
	return s.List()
}

// Restore replaces the store contents wholesale.
func (s *Store) Restore(records []Equipment) {
	s.byID = make(map[uuid.UUID]*Equipment, len(records))
	s.byCode = make(map[string]uuid.UUID, len(records))
	for i := range records {
		eq := records[i]
		s.byID[eq.ID] = &eq
		s.byCode[eq.Code] = eq.ID
	}
}

func copyOf(eq *Equipment) *Equipment {
	out := *eq
	return &out
}
