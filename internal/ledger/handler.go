// internal/ledger/handler.go
package ledger

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"equipledger/internal/identity"
	"equipledger/internal/registry"
	"equipledger/internal/storage"
)

type Handler struct {
	service Service
	now     func() time.Time
}

func NewHandler(service Service, now func() time.Time) *Handler {
	if now == nil {
		now = time.Now
	}
	return &Handler{service: service, now: now}
}

// loanView decorates a loan with its effective status for API consumers.
type loanView struct {
	Loan
	Status LoanStatus `json:"status"`
}

func (h *Handler) view(l Loan) loanView {
	return loanView{Loan: l, Status: EffectiveStatus(l, h.now())}
}

func (h *Handler) HandleRegisterEquipment(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(w, r)
	if !ok {
		return
	}

	var req struct {
		Code     string `json:"code"`
		Name     string `json:"name"`
		Category string `json:"category"`
		Location string `json:"location"`
		Notes    string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	eq, err := h.service.RegisterEquipment(r.Context(), actor, registry.Metadata{
		Name:     req.Name,
		Category: req.Category,
		Location: req.Location,
		Notes:    req.Notes,
	}, req.Code)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(eq)
}

func (h *Handler) HandleListEquipment(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(h.service.ListEquipment(r.Context()))
}

func (h *Handler) HandleGetEquipment(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid equipment ID", http.StatusBadRequest)
		return
	}

	eq, err := h.service.GetEquipment(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	json.NewEncoder(w).Encode(eq)
}

func (h *Handler) HandleGetEquipmentByCode(w http.ResponseWriter, r *http.Request) {
	eq, err := h.service.GetEquipmentByCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	json.NewEncoder(w).Encode(eq)
}

func (h *Handler) HandleTransitionEquipment(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid equipment ID", http.StatusBadRequest)
		return
	}

	var req struct {
		Target registry.Status `json:"target"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.service.TransitionEquipment(r.Context(), actor, id, req.Target); err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) HandleIssue(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(w, r)
	if !ok {
		return
	}

	var req struct {
		EquipmentID  uuid.UUID `json:"equipment_id"`
		SupervisorID uuid.UUID `json:"supervisor_id"`
		Location     string    `json:"location"`
		Note         string    `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	loan, err := h.service.Issue(r.Context(), actor, req.EquipmentID, req.SupervisorID, req.Location, req.Note)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(h.view(*loan))
}

func (h *Handler) HandleReturn(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid loan ID", http.StatusBadRequest)
		return
	}

	var req struct {
		ToMaintenance bool `json:"to_maintenance"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	if err := h.service.Return(r.Context(), actor, id, req.ToMaintenance); err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) HandleGetLoan(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid loan ID", http.StatusBadRequest)
		return
	}

	loan, err := h.service.GetLoan(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	json.NewEncoder(w).Encode(h.view(*loan))
}

func (h *Handler) HandleListLoans(w http.ResponseWriter, r *http.Request) {
	h.encodeLoans(w, h.service.ListLoans(r.Context()))
}

func (h *Handler) HandleOverdueLoans(w http.ResponseWriter, r *http.Request) {
	h.encodeLoans(w, h.service.OverdueLoans(r.Context()))
}

func (h *Handler) HandleOpenLoansFor(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid supervisor ID", http.StatusBadRequest)
		return
	}
	h.encodeLoans(w, h.service.OpenLoansFor(r.Context(), id))
}

func (h *Handler) encodeLoans(w http.ResponseWriter, loans []Loan) {
	views := make([]loanView, 0, len(loans))
	for _, l := range loans {
		views = append(views, h.view(l))
	}
	json.NewEncoder(w).Encode(views)
}

// actorID reads the authenticated actor from the X-Actor-ID header placed by
// the session layer.
func actorID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.Header.Get("X-Actor-ID"))
	if err != nil {
		http.Error(w, "missing or invalid X-Actor-ID header", http.StatusUnauthorized)
		return uuid.Nil, false
	}
	return id, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound), errors.Is(err, registry.ErrNotFound), errors.Is(err, identity.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, registry.ErrDuplicateCode):
		return http.StatusConflict
	case errors.Is(err, ErrEquipmentUnavailable), errors.Is(err, ErrAlreadyReturned):
		return http.StatusConflict
	case errors.Is(err, ErrLimitExceeded):
		return http.StatusUnprocessableEntity
	case errors.Is(err, registry.ErrInvalidTransition), errors.Is(err, registry.ErrInvalidCode):
		return http.StatusUnprocessableEntity
	case errors.Is(err, storage.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
