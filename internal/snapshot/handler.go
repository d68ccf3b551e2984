// internal/snapshot/handler.go
package snapshot

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type Handler struct {
	coordinator *Coordinator
}

func NewHandler(coordinator *Coordinator) *Handler {
	return &Handler{coordinator: coordinator}
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	handle, err := h.coordinator.Snapshot(r.Context())
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(handle)
}

func (h *Handler) HandleRestore(w http.ResponseWriter, r *http.Request) {
	actor, err := uuid.Parse(r.Header.Get("X-Actor-ID"))
	if err != nil {
		http.Error(w, "missing or invalid X-Actor-ID header", http.StatusUnauthorized)
		return
	}

	name := chi.URLParam(r, "name")
	if err := h.coordinator.Restore(r.Context(), actor, name); err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	w.WriteHeader(http.StatusOK)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, ErrIncompatibleSnapshot):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrSnapshotFailed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
