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

// CatalogHandler manages the per-clinic catalog of services and doctors.
// Creation is scoped to the caller's own clinic; super admins may pass an
// explicit clinic_id. Listings are public so booking pages can render
// without auth.
type CatalogHandler struct {
	catalog *storage.CatalogRepository
	clinics *storage.ClinicRepository
	logger  *slog.Logger
}

func NewCatalogHandler(catalog *storage.CatalogRepository, clinics *storage.ClinicRepository, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{catalog: catalog, clinics: clinics, logger: logger}
}

type serviceItem struct {
	ServiceID       string `json:"service_id"`
	ClinicID        string `json:"clinic_id"`
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
	PriceCents      int64  `json:"price_cents"`
	CreatedAt       string `json:"created_at"`
}

func toServiceItem(svc model.Service) serviceItem {
	return serviceItem{
		ServiceID:       svc.ID,
		ClinicID:        svc.ClinicID,
		Name:            svc.Name,
		DurationMinutes: svc.DurationMinutes,
		PriceCents:      svc.PriceCents,
		CreatedAt:       svc.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type doctorItem struct {
	DoctorID  string `json:"doctor_id"`
	ClinicID  string `json:"clinic_id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Specialty string `json:"specialty,omitempty"`
	CreatedAt string `json:"created_at"`
}

func toDoctorItem(doc model.Doctor) doctorItem {
	return doctorItem{
		DoctorID:  doc.ID,
		ClinicID:  doc.ClinicID,
		Name:      doc.Name,
		Email:     doc.Email,
		Phone:     doc.Phone,
		Specialty: doc.Specialty,
		CreatedAt: doc.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// resolveClinicID picks the clinic the write applies to: clinic admins are
// pinned to their own clinic, super admins must name one.
func resolveClinicID(w http.ResponseWriter, r *http.Request, requested string) (string, bool) {
	actor := actorFromRequest(r)
	switch actor.Role {
	case model.RoleClinicAdmin:
		if actor.ClinicID == "" {
			http.Error(w, "caller has no clinic scope", http.StatusForbidden)
			return "", false
		}
		if requested != "" && requested != actor.ClinicID {
			http.Error(w, "clinic outside caller scope", http.StatusForbidden)
			return "", false
		}
		return actor.ClinicID, true
	case model.RoleSuperAdmin:
		if requested == "" {
			http.Error(w, "clinic_id is required", http.StatusBadRequest)
			return "", false
		}
		return requested, true
	default:
		http.Error(w, "clinic admin role required", http.StatusForbidden)
		return "", false
	}
}

func (h *CatalogHandler) CreateService(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		ClinicID        string `json:"clinic_id"`
		Name            string `json:"name"`
		DurationMinutes int    `json:"duration_minutes"`
		PriceCents      int64  `json:"price_cents"`
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
	if req.DurationMinutes <= 0 {
		http.Error(w, "duration_minutes must be positive", http.StatusBadRequest)
		return
	}
	if req.PriceCents < 1 {
		http.Error(w, "price_cents must be positive", http.StatusBadRequest)
		return
	}
	clinicID, ok := resolveClinicID(w, r, strings.TrimSpace(req.ClinicID))
	if !ok {
		return
	}

	svc, err := h.catalog.CreateService(r.Context(), &model.Service{
		ClinicID:        clinicID,
		Name:            req.Name,
		DurationMinutes: req.DurationMinutes,
		PriceCents:      req.PriceCents,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toServiceItem(svc))
}

func (h *CatalogHandler) CreateDoctor(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		ClinicID  string `json:"clinic_id"`
		Name      string `json:"name"`
		Email     string `json:"email"`
		Phone     string `json:"phone"`
		Specialty string `json:"specialty"`
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
	clinicID, ok := resolveClinicID(w, r, strings.TrimSpace(req.ClinicID))
	if !ok {
		return
	}

	doc, err := h.catalog.CreateDoctor(r.Context(), &model.Doctor{
		ClinicID:  clinicID,
		Name:      req.Name,
		Email:     strings.TrimSpace(req.Email),
		Phone:     strings.TrimSpace(req.Phone),
		Specialty: strings.TrimSpace(req.Specialty),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDoctorItem(doc))
}

func (h *CatalogHandler) PublicClinics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	clinics, err := h.clinics.List(r.Context())
	if err != nil {
		h.logger.Error("public clinic list failed", "err", err)
		http.Error(w, "failed to list clinics", http.StatusInternalServerError)
		return
	}
	items := make([]clinicItem, 0, len(clinics))
	for _, c := range clinics {
		items = append(items, toClinicItem(c))
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *CatalogHandler) PublicServices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	clinicID := strings.TrimSpace(r.URL.Query().Get("clinic_id"))
	if clinicID == "" {
		http.Error(w, "clinic_id is required", http.StatusBadRequest)
		return
	}
	services, err := h.catalog.ListServicesByClinic(r.Context(), clinicID)
	if err != nil {
		h.logger.Error("public service list failed", "err", err)
		http.Error(w, "failed to list services", http.StatusInternalServerError)
		return
	}
	items := make([]serviceItem, 0, len(services))
	for _, svc := range services {
		items = append(items, toServiceItem(svc))
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *CatalogHandler) PublicDoctors(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	clinicID := strings.TrimSpace(r.URL.Query().Get("clinic_id"))
	if clinicID == "" {
		http.Error(w, "clinic_id is required", http.StatusBadRequest)
		return
	}
	doctors, err := h.catalog.ListDoctorsByClinic(r.Context(), clinicID)
	if err != nil {
		h.logger.Error("public doctor list failed", "err", err)
		http.Error(w, "failed to list doctors", http.StatusInternalServerError)
		return
	}
	items := make([]doctorItem, 0, len(doctors))
	for _, doc := range doctors {
		items = append(items, toDoctorItem(doc))
	}
	writeJSON(w, http.StatusOK, items)
}
