// internal/ledger/implementation.go
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"equipledger/internal/audit"
	"equipledger/internal/identity"
	"equipledger/internal/registry"
)

var (
	ErrNotFound             = errors.New("loan not found")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrEquipmentUnavailable = errors.New("equipment not available")
	ErrLimitExceeded        = errors.New("supervisor loan limit exceeded")
	ErrAlreadyReturned      = errors.New("loan already returned")
)

// Config carries the tunable loan policy. The numbers are left to deployment
// configuration.
type Config struct {
	// LoanPeriod sets due-at = issued-at + LoanPeriod.
	LoanPeriod time.Duration
	// DefaultMaxLoans applies to supervisors without a per-user limit.
	DefaultMaxLoans int
}

// service implements Service. A single writer lock guards the Equipment+Loan
// pair: every validate-then-mutate sequence holds it for its full duration and
// releases it on all exit paths, so check-then-act in Issue is race free.
// Reads take the read lock and therefore never observe a torn update.
type service struct {
	mu sync.RWMutex

	equipment *registry.Store
	loans     map[uuid.UUID]*Loan
	// openByEquipment maps equipment to its single open loan.
	openByEquipment map[uuid.UUID]uuid.UUID
	// openBySupervisor maps a supervisor to the set of their open loans.
	openBySupervisor map[uuid.UUID]map[uuid.UUID]struct{}

	identity identity.Service
	trail    *audit.Trail
	cfg      Config
	now      func() time.Time
	logger   *zap.Logger
	tracer   trace.Tracer
}

// NewService creates the ledger service instance.
func NewService(equipment *registry.Store, ids identity.Service, trail *audit.Trail, cfg Config, logger *zap.Logger, now func() time.Time) Service {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &service{
		equipment:        equipment,
		loans:            make(map[uuid.UUID]*Loan),
		openByEquipment:  make(map[uuid.UUID]uuid.UUID),
		openBySupervisor: make(map[uuid.UUID]map[uuid.UUID]struct{}),
		identity:         ids,
		trail:            trail,
		cfg:              cfg,
		now:              now,
		logger:           logger,
		tracer:           otel.Tracer("equipledger/ledger"),
	}
}

// RegisterEquipment creates a new equipment record in AVAILABLE status.
func (s *service) RegisterEquipment(ctx context.Context, actor uuid.UUID, meta registry.Metadata, code string) (*registry.Equipment, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.register_equipment",
		trace.WithAttributes(attribute.String("equipment.code", code)))
	defer span.End()

	if !s.identity.Authorize(actor, identity.CapManageEquipment) {
		return nil, ErrUnauthorized
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	eq, err := s.equipment.Register(meta, code)
	if err != nil {
		return nil, err
	}

	if err := s.trail.Append(ctx, audit.Entry{
		Actor:     actor,
		Operation: "equipment.register",
		EntityID:  eq.ID,
		After:     string(registry.StatusAvailable),
		Detail:    code,
	}); err != nil {
		// The registration must not survive a lost audit write.
		s.equipment.Remove(eq.ID)
		return nil, err
	}

	s.logger.Info("equipment registered",
		zap.String("id", eq.ID.String()), zap.String("code", code))
	return eq, nil
}

// TransitionEquipment is the maintenance/retirement path. Loan-driven
// transitions happen inside Issue and Return; equipment referenced by an open
// loan must be returned before it can move, which keeps LOANED equivalent to
// "exactly one open loan".
func (s *service) TransitionEquipment(ctx context.Context, actor, equipmentID uuid.UUID, target registry.Status) error {
	ctx, span := s.tracer.Start(ctx, "ledger.transition_equipment",
		trace.WithAttributes(
			attribute.String("equipment.id", equipmentID.String()),
			attribute.String("equipment.target", string(target)),
		))
	defer span.End()

	if !s.identity.Authorize(actor, capabilityForTransition(target)) {
		return ErrUnauthorized
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	eq, err := s.equipment.Lookup(equipmentID)
	if err != nil {
		return err
	}
	if target == registry.StatusLoaned || eq.Status == registry.StatusLoaned {
		return fmt.Errorf("%w: loans drive %s transitions", registry.ErrInvalidTransition, registry.StatusLoaned)
	}
	if !registry.CanTransition(eq.Status, target) {
		return fmt.Errorf("%w: %s -> %s", registry.ErrInvalidTransition, eq.Status, target)
	}

	if err := s.trail.Append(ctx, audit.Entry{
		Actor:     actor,
		Operation: "equipment.transition",
		EntityID:  equipmentID,
		Before:    string(eq.Status),
		After:     string(target),
	}); err != nil {
		return err
	}

	if _, err := s.equipment.Transition(equipmentID, target); err != nil {
		return err
	}
	return nil
}

func (s *service) GetEquipment(ctx context.Context, id uuid.UUID) (*registry.Equipment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.equipment.Lookup(id)
}

func (s *service) GetEquipmentByCode(ctx context.Context, code string) (*registry.Equipment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.equipment.ByCode(code)
}

func (s *service) ListEquipment(ctx context.Context) []registry.Equipment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.equipment.List()
}

// Issue creates an OPEN loan and moves the equipment AVAILABLE -> LOANED as
// one atomic unit under the writer lock.
func (s *service) Issue(ctx context.Context, actor, equipmentID, supervisorID uuid.UUID, location, note string) (*Loan, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.issue",
		trace.WithAttributes(
			attribute.String("equipment.id", equipmentID.String()),
			attribute.String("supervisor.id", supervisorID.String()),
		))
	defer span.End()

	if !s.identity.Authorize(actor, identity.CapIssueLoan) {
		return nil, ErrUnauthorized
	}

	supervisor, err := s.identity.GetUser(ctx, supervisorID)
	if err != nil {
		return nil, err
	}
	if !supervisor.Active || !supervisor.Role.HasCapability(identity.CapIssueLoan) {
		return nil, fmt.Errorf("%w: %s cannot hold loans", ErrUnauthorized, supervisorID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	eq, err := s.equipment.Lookup(equipmentID)
	if err != nil {
		return nil, err
	}
	if eq.Status != registry.StatusAvailable {
		span.SetAttributes(attribute.String("equipment.status", string(eq.Status)))
		return nil, fmt.Errorf("%w: %s is %s", ErrEquipmentUnavailable, eq.Code, eq.Status)
	}

	limit := supervisor.MaxConcurrentLoans
	if limit == 0 {
		limit = s.cfg.DefaultMaxLoans
	}
	if open := len(s.openBySupervisor[supervisorID]); open >= limit {
		span.SetAttributes(attribute.Int("supervisor.open_loans", open))
		return nil, fmt.Errorf("%w: %d of %d", ErrLimitExceeded, open, limit)
	}

	now := s.now()
	loan := &Loan{
		ID:           uuid.New(),
		EquipmentID:  equipmentID,
		SupervisorID: supervisorID,
		Location:     location,
		IssuedAt:     now,
		DueAt:        now.Add(s.cfg.LoanPeriod),
		Note:         note,
	}

	if err := s.trail.Append(ctx, audit.Entry{
		Actor:     actor,
		Operation: "loan.issue",
		EntityID:  loan.ID,
		Before:    string(registry.StatusAvailable),
		After:     string(registry.StatusLoaned),
		Detail:    fmt.Sprintf("equipment=%s supervisor=%s", eq.Code, supervisorID),
	}); err != nil {
		return nil, err
	}

	if _, err := s.equipment.Transition(equipmentID, registry.StatusLoaned); err != nil {
		// Unreachable after the availability check above; surface it anyway.
		return nil, err
	}
	if location != "" {
		s.equipment.SetLocation(equipmentID, location)
	}

	s.loans[loan.ID] = loan
	s.openByEquipment[equipmentID] = loan.ID
	if s.openBySupervisor[supervisorID] == nil {
		s.openBySupervisor[supervisorID] = make(map[uuid.UUID]struct{})
	}
	s.openBySupervisor[supervisorID][loan.ID] = struct{}{}

	s.logger.Info("loan issued",
		zap.String("loan", loan.ID.String()),
		zap.String("equipment", eq.Code),
		zap.String("supervisor", supervisorID.String()),
		zap.Time("due_at", loan.DueAt))

	out := *loan
	return &out, nil
}

// Return closes a loan and moves the equipment back to AVAILABLE, or to
// MAINTENANCE when the caller flags it for inspection.
func (s *service) Return(ctx context.Context, actor, loanID uuid.UUID, toMaintenance bool) error {
	ctx, span := s.tracer.Start(ctx, "ledger.return",
		trace.WithAttributes(attribute.String("loan.id", loanID.String())))
	defer span.End()

	if !s.identity.Authorize(actor, identity.CapReturnLoan) {
		return ErrUnauthorized
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	loan, ok := s.loans[loanID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, loanID)
	}
	if loan.ReturnedAt != nil {
		return ErrAlreadyReturned
	}

	target := registry.StatusAvailable
	if toMaintenance {
		target = registry.StatusMaintenance
	}

	if err := s.trail.Append(ctx, audit.Entry{
		Actor:     actor,
		Operation: "loan.return",
		EntityID:  loanID,
		Before:    string(registry.StatusLoaned),
		After:     string(target),
		Detail:    fmt.Sprintf("equipment=%s", loan.EquipmentID),
	}); err != nil {
		return err
	}

	now := s.now()
	loan.ReturnedAt = &now
	delete(s.openByEquipment, loan.EquipmentID)
	delete(s.openBySupervisor[loan.SupervisorID], loanID)

	if _, err := s.equipment.Transition(loan.EquipmentID, target); err != nil {
		return err
	}
	s.equipment.SetLocation(loan.EquipmentID, "")

	s.logger.Info("loan returned",
		zap.String("loan", loanID.String()),
		zap.String("target", string(target)))
	return nil
}

func (s *service) GetLoan(ctx context.Context, id uuid.UUID) (*Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	loan, ok := s.loans[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	out := *loan
	return &out, nil
}

// OpenLoansFor returns the supervisor's loans with effective status OPEN or
// OVERDUE, issued-at ascending.
func (s *service) OpenLoansFor(ctx context.Context, supervisorID uuid.UUID) []Loan {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Loan, 0, len(s.openBySupervisor[supervisorID]))
	for id := range s.openBySupervisor[supervisorID] {
		out = append(out, *s.loans[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssuedAt.Before(out[j].IssuedAt) })
	return out
}

// OverdueLoans returns open loans past their due date, oldest due first, which
// is the alert-priority ordering.
func (s *service) OverdueLoans(ctx context.Context) []Loan {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	var out []Loan
	for _, id := range s.openByEquipment {
		loan := s.loans[id]
		if EffectiveStatus(*loan, now) == StatusOverdue {
			out = append(out, *loan)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueAt.Before(out[j].DueAt) })
	return out
}

func (s *service) ListLoans(ctx context.Context) []Loan {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Loan, 0, len(s.loans))
	for _, loan := range s.loans {
		out = append(out, *loan)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssuedAt.Before(out[j].IssuedAt) })
	return out
}

// Capture deep-copies the full ledger under the writer lock. The lock is held
// only for the in-memory copy, O(record count), never for disk I/O.
func (s *service) Capture() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	loans := make([]Loan, 0, len(s.loans))
	for _, loan := range s.loans {
		out := *loan
		if loan.ReturnedAt != nil {
			at := *loan.ReturnedAt
			out.ReturnedAt = &at
		}
		loans = append(loans, out)
	}
	sort.Slice(loans, func(i, j int) bool { return loans[i].IssuedAt.Before(loans[j].IssuedAt) })

	return State{
		CapturedAt: s.now(),
		Equipment:  s.equipment.Snapshot(),
		Loans:      loans,
		Audit:      s.trail.Entries(),
	}
}

// RestoreState replaces live state wholesale.
func (s *service) RestoreState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.equipment.Restore(state.Equipment)

	s.loans = make(map[uuid.UUID]*Loan, len(state.Loans))
	s.openByEquipment = make(map[uuid.UUID]uuid.UUID)
	s.openBySupervisor = make(map[uuid.UUID]map[uuid.UUID]struct{})
	for i := range state.Loans {
		loan := state.Loans[i]
		s.loans[loan.ID] = &loan
		if loan.ReturnedAt == nil {
			s.openByEquipment[loan.EquipmentID] = loan.ID
			if s.openBySupervisor[loan.SupervisorID] == nil {
				s.openBySupervisor[loan.SupervisorID] = make(map[uuid.UUID]struct{})
			}
			s.openBySupervisor[loan.SupervisorID][loan.ID] = struct{}{}
		}
	}

	s.trail.Restore(state.Audit)
}

// capabilityForTransition picks the capability the transition requires:
// retirement is an equipment-management action, everything else is a
// maintenance action.
func capabilityForTransition(target registry.Status) identity.Capability {
	if target == registry.StatusRetired {
		return identity.CapManageEquipment
	}
	return identity.CapLogMaintenance
}
