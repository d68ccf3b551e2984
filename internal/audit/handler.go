// internal/audit/handler.go
package audit

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
)

type Handler struct {
	trail *Trail
}

func NewHandler(trail *Trail) *Handler {
	return &Handler{trail: trail}
}

// HandleQuery filters the trail by entity_id, actor, from and to query
// parameters (RFC 3339 timestamps).
func (h *Handler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	var filter Filter

	if v := r.URL.Query().Get("entity_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			http.Error(w, "invalid entity_id", http.StatusBadRequest)
			return
		}
		filter.EntityID = &id
	}
	if v := r.URL.Query().Get("actor"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			http.Error(w, "invalid actor", http.StatusBadRequest)
			return
		}
		filter.Actor = &id
	}
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "invalid from timestamp", http.StatusBadRequest)
			return
		}
		filter.From = t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "invalid to timestamp", http.StatusBadRequest)
			return
		}
		filter.To = t
	}

	entries := h.trail.Query(r.Context(), filter)
	if entries == nil {
		entries = []Entry{}
	}
	json.NewEncoder(w).Encode(entries)
}
