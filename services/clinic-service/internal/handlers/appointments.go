package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/booking"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/model"
)

type AppointmentHandler struct {
	manager *booking.Manager
	logger  *slog.Logger
}

func NewAppointmentHandler(manager *booking.Manager, logger *slog.Logger) *AppointmentHandler {
	return &AppointmentHandler{manager: manager, logger: logger}
}

type createAppointmentRequest struct {
	ClinicID    string `json:"clinic_id"`
	ServiceID   string `json:"service_id"`
	DoctorID    string `json:"doctor_id"`
	ClientName  string `json:"client_name"`
	ClientEmail string `json:"client_email"`
	ClientPhone string `json:"client_phone"`
	StartTime   string `json:"start_time"`
	Notes       string `json:"notes"`
}

func (h *AppointmentHandler) Appointments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.create(w, r)
	case http.MethodGet:
		h.list(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *AppointmentHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	var startTime time.Time
	if s := strings.TrimSpace(req.StartTime); s != "" {
		var err error
		startTime, err = time.Parse(time.RFC3339, s)
		if err != nil {
			http.Error(w, "invalid start_time", http.StatusBadRequest)
			return
		}
	}

	appt, err := h.manager.Create(r.Context(), actorFromRequest(r), booking.CreateInput{
		ClinicID:    req.ClinicID,
		ServiceID:   req.ServiceID,
		DoctorID:    req.DoctorID,
		ClientName:  req.ClientName,
		ClientEmail: strings.TrimSpace(req.ClientEmail),
		ClientPhone: strings.TrimSpace(req.ClientPhone),
		StartTime:   startTime,
		Notes:       strings.TrimSpace(req.Notes),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAppointmentItem(appt))
}

// list dispatches on the query parameters: clinic_id (optionally with a
// date), doctor_id, or client_id. Authorization lives in the manager.
func (h *AppointmentHandler) list(w http.ResponseWriter, r *http.Request) {
	actor := actorFromRequest(r)
	query := r.URL.Query()
	clinicID := strings.TrimSpace(query.Get("clinic_id"))
	doctorID := strings.TrimSpace(query.Get("doctor_id"))
	clientID := strings.TrimSpace(query.Get("client_id"))
	date := strings.TrimSpace(query.Get("date"))

	var appts []model.Appointment
	var err error
	switch {
	case clinicID != "" && date != "":
		appts, err = h.manager.ListForClinicAndDate(r.Context(), actor, clinicID, date)
	case clinicID != "":
		appts, err = h.manager.ListForClinic(r.Context(), actor, clinicID)
	case doctorID != "":
		appts, err = h.manager.ListForDoctor(r.Context(), actor, doctorID)
	case clientID != "":
		appts, err = h.manager.ListForClient(r.Context(), actor, clientID)
	default:
		http.Error(w, "clinic_id, doctor_id or client_id is required", http.StatusBadRequest)
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentItems(appts))
}

func (h *AppointmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}
	appt, err := h.manager.Get(r.Context(), actorFromRequest(r), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentItem(appt))
}

type transitionRequest struct {
	AppointmentID string `json:"appointment_id"`
}

func (h *AppointmentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.applyTransition(w, r, h.manager.Cancel)
}

func (h *AppointmentHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.applyTransition(w, r, h.manager.Complete)
}

func (h *AppointmentHandler) applyTransition(w http.ResponseWriter, r *http.Request, apply func(context.Context, booking.Actor, string) (model.Appointment, error)) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		http.Error(w, "appointment_id is required", http.StatusBadRequest)
		return
	}
	appt, err := apply(r.Context(), actorFromRequest(r), req.AppointmentID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentItem(appt))
}

type updateAppointmentRequest struct {
	AppointmentID string  `json:"appointment_id"`
	ClientName    *string `json:"client_name"`
	ClientEmail   *string `json:"client_email"`
	ClientPhone   *string `json:"client_phone"`
	DoctorID      *string `json:"doctor_id"`
	ServiceID     *string `json:"service_id"`
	StartTime     *string `json:"start_time"`
	Notes         *string `json:"notes"`
}

func (h *AppointmentHandler) Update(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req updateAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		http.Error(w, "appointment_id is required", http.StatusBadRequest)
		return
	}

	patch := booking.UpdateInput{
		ClientName:  req.ClientName,
		ClientEmail: req.ClientEmail,
		ClientPhone: req.ClientPhone,
		DoctorID:    req.DoctorID,
		ServiceID:   req.ServiceID,
		Notes:       req.Notes,
	}
	if req.StartTime != nil {
		startTime, err := time.Parse(time.RFC3339, strings.TrimSpace(*req.StartTime))
		if err != nil {
			http.Error(w, "invalid start_time", http.StatusBadRequest)
			return
		}
		patch.StartTime = &startTime
	}

	appt, err := h.manager.Update(r.Context(), actorFromRequest(r), req.AppointmentID, patch)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentItem(appt))
}

// Slots is the public availability endpoint: free "HH:MM" start times for
// a service on a date. No auth headers are required.
func (h *AppointmentHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	serviceID := strings.TrimSpace(r.URL.Query().Get("service_id"))
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if serviceID == "" || date == "" {
		http.Error(w, "service_id and date are required", http.StatusBadRequest)
		return
	}
	slots, err := h.manager.GenerateSlots(r.Context(), serviceID, date)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if slots == nil {
		slots = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": date, "slots": slots})
}
