package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/storage"
)

// AdminHandler owns the platform-level clinic registry. The gateway gates
// these routes to super admins; the role check here is the backstop for
// direct service access.
type AdminHandler struct {
	clinics *storage.ClinicRepository
	logger  *slog.Logger
}

func NewAdminHandler(clinics *storage.ClinicRepository, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{clinics: clinics, logger: logger}
}

type clinicItem struct {
	ClinicID  string `json:"clinic_id"`
	Name      string `json:"name"`
	Address   string `json:"address,omitempty"`
	Phone     string `json:"phone,omitempty"`
	CreatedAt string `json:"created_at"`
}

func toClinicItem(c model.Clinic) clinicItem {
	return clinicItem{
		ClinicID:  c.ID,
		Name:      c.Name,
		Address:   c.Address,
		Phone:     c.Phone,
		CreatedAt: c.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (h *AdminHandler) requireSuperAdmin(w http.ResponseWriter, r *http.Request) bool {
	if actorFromRequest(r).Role != model.RoleSuperAdmin {
		http.Error(w, "super admin role required", http.StatusForbidden)
		return false
	}
	return true
}

func (h *AdminHandler) Clinics(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createClinic(w, r)
	case http.MethodGet:
		h.listClinics(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *AdminHandler) createClinic(w http.ResponseWriter, r *http.Request) {
	if !h.requireSuperAdmin(w, r) {
		return
	}
	var req struct {
		Name    string `json:"name"`
		Address string `json:"address"`
		Phone   string `json:"phone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	clinic, err := h.clinics.Create(r.Context(), req.Name, strings.TrimSpace(req.Address), strings.TrimSpace(req.Phone))
	if err != nil {
		h.logger.Error("clinic create failed", "err", err)
		http.Error(w, "failed to create clinic", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, toClinicItem(clinic))
}

func (h *AdminHandler) listClinics(w http.ResponseWriter, r *http.Request) {
	if !h.requireSuperAdmin(w, r) {
		return
	}
	clinics, err := h.clinics.List(r.Context())
	if err != nil {
		h.logger.Error("clinic list failed", "err", err)
		http.Error(w, "failed to list clinics", http.StatusInternalServerError)
		return
	}
	items := make([]clinicItem, 0, len(clinics))
	for _, c := range clinics {
		items = append(items, toClinicItem(c))
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *AdminHandler) DeleteClinic(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !h.requireSuperAdmin(w, r) {
		return
	}
	var req struct {
		ClinicID string `json:"clinic_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.ClinicID = strings.TrimSpace(req.ClinicID)
	if req.ClinicID == "" {
		http.Error(w, "clinic_id is required", http.StatusBadRequest)
		return
	}
	if err := h.clinics.Delete(r.Context(), req.ClinicID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
