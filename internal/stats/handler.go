// internal/stats/handler.go
package stats

import (
	"encoding/json"
	"net/http"
	"time"
)

type Handler struct {
	facade *Facade
}

func NewHandler(facade *Facade) *Handler {
	return &Handler{facade: facade}
}

func (h *Handler) HandleEquipment(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(h.facade.EquipmentByStatus(r.Context()))
}

func (h *Handler) HandleLoans(w http.ResponseWriter, r *http.Request) {
	open, overdue := h.facade.LoanCounts(r.Context())
	json.NewEncoder(w).Encode(map[string]int{
		"open":    open,
		"overdue": overdue,
	})
}

func (h *Handler) HandleSupervisors(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(h.facade.PerSupervisor(r.Context()))
}

// HandleActivity returns audit entries inside the trailing window (default 24h).
func (h *Handler) HandleActivity(w http.ResponseWriter, r *http.Request) {
	window := 24 * time.Hour
	if v := r.URL.Query().Get("window"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			http.Error(w, "invalid window", http.StatusBadRequest)
			return
		}
		window = d
	}
	json.NewEncoder(w).Encode(h.facade.RecentActivity(r.Context(), window))
}
