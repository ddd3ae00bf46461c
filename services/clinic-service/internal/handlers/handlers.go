package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/booking"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/model"
)

// actorFromRequest rebuilds the caller identity from the headers the
// gateway sets after verifying the JWT.
func actorFromRequest(r *http.Request) booking.Actor {
	return booking.Actor{
		UserID:   strings.TrimSpace(r.Header.Get("X-User-Id")),
		ClinicID: strings.TrimSpace(r.Header.Get("X-Clinic-Id")),
		Role:     strings.TrimSpace(r.Header.Get("X-Role")),
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeDomainError maps booking error kinds to HTTP statuses. Anything
// not carrying a known kind is reported as a generic 500 so internal
// details never leak to callers.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, booking.ErrForbidden):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, booking.ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, booking.ErrConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, booking.ErrInvalidState):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

type appointmentItem struct {
	AppointmentID string `json:"appointment_id"`
	ClinicID      string `json:"clinic_id"`
	ServiceID     string `json:"service_id"`
	DoctorID      string `json:"doctor_id,omitempty"`
	ClientID      string `json:"client_id,omitempty"`
	ClientName    string `json:"client_name"`
	ClientEmail   string `json:"client_email,omitempty"`
	ClientPhone   string `json:"client_phone,omitempty"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	Status        string `json:"status"`
	Notes         string `json:"notes,omitempty"`
	CancelledAt   string `json:"cancelled_at,omitempty"`
	CompletedAt   string `json:"completed_at,omitempty"`
	CreatedAt     string `json:"created_at"`
}

func toAppointmentItem(appt model.Appointment) appointmentItem {
	item := appointmentItem{
		AppointmentID: appt.ID,
		ClinicID:      appt.ClinicID,
		ServiceID:     appt.ServiceID,
		DoctorID:      appt.DoctorID,
		ClientID:      appt.ClientID,
		ClientName:    appt.ClientName,
		ClientEmail:   appt.ClientEmail,
		ClientPhone:   appt.ClientPhone,
		StartTime:     appt.StartTime.UTC().Format(time.RFC3339),
		EndTime:       appt.EndTime.UTC().Format(time.RFC3339),
		Status:        appt.Status,
		Notes:         appt.Notes,
		CreatedAt:     appt.CreatedAt.UTC().Format(time.RFC3339),
	}
	if appt.CancelledAt != nil {
		item.CancelledAt = appt.CancelledAt.UTC().Format(time.RFC3339)
	}
	if appt.CompletedAt != nil {
		item.CompletedAt = appt.CompletedAt.UTC().Format(time.RFC3339)
	}
	return item
}

func toAppointmentItems(appts []model.Appointment) []appointmentItem {
	items := make([]appointmentItem, 0, len(appts))
	for _, appt := range appts {
		items = append(items, toAppointmentItem(appt))
	}
	return items
}
