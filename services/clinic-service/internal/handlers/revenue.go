package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/revenue"
)

type RevenueHandler struct {
	aggregator *revenue.Aggregator
	logger     *slog.Logger
}

func NewRevenueHandler(aggregator *revenue.Aggregator, logger *slog.Logger) *RevenueHandler {
	return &RevenueHandler{aggregator: aggregator, logger: logger}
}

// ClinicRevenue reports the caller's clinic: daily buckets over the
// trailing month, weekly buckets over the trailing quarter, the current
// calendar month total and the per-service breakdown.
func (h *RevenueHandler) ClinicRevenue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor := actorFromRequest(r)

	clinicID := ""
	switch actor.Role {
	case model.RoleClinicAdmin:
		clinicID = actor.ClinicID
	case model.RoleSuperAdmin:
		clinicID = strings.TrimSpace(r.URL.Query().Get("clinic_id"))
	default:
		http.Error(w, "clinic admin role required", http.StatusForbidden)
		return
	}
	if clinicID == "" {
		http.Error(w, "clinic_id is required", http.StatusBadRequest)
		return
	}

	report, err := h.aggregator.ClinicRevenue(r.Context(), clinicID)
	if err != nil {
		h.logger.Error("clinic revenue aggregation failed", "err", err, "clinic_id", clinicID)
		http.Error(w, "failed to aggregate revenue", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *RevenueHandler) TotalRevenue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if actorFromRequest(r).Role != model.RoleSuperAdmin {
		http.Error(w, "super admin role required", http.StatusForbidden)
		return
	}
	totals, err := h.aggregator.TotalRevenue(r.Context())
	if err != nil {
		h.logger.Error("total revenue aggregation failed", "err", err)
		http.Error(w, "failed to aggregate revenue", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, totals)
}
