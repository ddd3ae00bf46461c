package booking

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/availability"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/model"
)

// Actor is the authorization context for a lifecycle operation. It is
// resolved at the edge (gateway-verified headers) and passed explicitly
// into every call; there is no ambient session state.
type Actor struct {
	UserID   string
	ClinicID string
	Role     string
}

type ServiceCatalog interface {
	GetService(ctx context.Context, id string) (model.Service, error)
}

type DoctorDirectory interface {
	GetDoctor(ctx context.Context, id string) (model.Doctor, error)
	ListDoctorsByClinic(ctx context.Context, clinicID string) ([]model.Doctor, error)
}

// AppointmentStore persists appointments. Insert and Transition are
// transactional with their outbox event; Transition applies a guarded
// status update and reports ErrInvalidState when the row exists but is no
// longer scheduled.
type AppointmentStore interface {
	Insert(ctx context.Context, appt *model.Appointment) (model.Appointment, error)
	GetByID(ctx context.Context, id string) (model.Appointment, error)
	Transition(ctx context.Context, id string, from string, to string) (model.Appointment, error)
	UpdatePartial(ctx context.Context, appt model.Appointment) error
	ListByClinicAndDateRange(ctx context.Context, clinicID string, from time.Time, to time.Time) ([]model.Appointment, error)
	ListByDoctor(ctx context.Context, doctorID string) ([]model.Appointment, error)
	ListByClient(ctx context.Context, clientID string) ([]model.Appointment, error)
	ListByClinic(ctx context.Context, clinicID string) ([]model.Appointment, error)
	BookedStartsForServiceDay(ctx context.Context, clinicID string, serviceID string, dayStart time.Time, dayEnd time.Time) ([]time.Time, error)
}

type ConflictChecker interface {
	HasConflict(ctx context.Context, doctorID string, start time.Time, end time.Time) (bool, error)
}

type Manager struct {
	catalog   ServiceCatalog
	doctors   DoctorDirectory
	store     AppointmentStore
	conflicts ConflictChecker
	logger    *slog.Logger
}

func NewManager(catalog ServiceCatalog, doctors DoctorDirectory, store AppointmentStore, conflicts ConflictChecker, logger *slog.Logger) *Manager {
	return &Manager{
		catalog:   catalog,
		doctors:   doctors,
		store:     store,
		conflicts: conflicts,
		logger:    logger,
	}
}

type CreateInput struct {
	ClinicID    string
	ServiceID   string
	DoctorID    string
	ClientID    string
	ClientName  string
	ClientEmail string
	ClientPhone string
	StartTime   time.Time
	Notes       string
}

// Create books an appointment in scheduled status. End time is derived
// from the service duration; client callers without a doctor get the first
// doctor in the clinic's listing order; the conflict detector runs whenever
// a doctor is assigned.
func (m *Manager) Create(ctx context.Context, actor Actor, in CreateInput) (model.Appointment, error) {
	in.ClinicID = strings.TrimSpace(in.ClinicID)
	in.ServiceID = strings.TrimSpace(in.ServiceID)
	in.DoctorID = strings.TrimSpace(in.DoctorID)
	in.ClientName = strings.TrimSpace(in.ClientName)

	if in.ClinicID == "" || in.ServiceID == "" || in.ClientName == "" {
		return model.Appointment{}, newError(ErrInvalidInput, "clinic_id, service_id and client_name are required")
	}
	if in.StartTime.IsZero() {
		return model.Appointment{}, newError(ErrInvalidInput, "start_time is required")
	}

	switch actor.Role {
	case model.RoleClient:
		in.ClientID = actor.UserID
	case model.RoleClinicAdmin, model.RoleDoctor:
		if actor.ClinicID != in.ClinicID {
			return model.Appointment{}, newError(ErrForbidden, "appointment outside caller clinic")
		}
	case model.RoleSuperAdmin:
	default:
		return model.Appointment{}, newError(ErrForbidden, "role cannot book appointments")
	}

	svc, err := m.catalog.GetService(ctx, in.ServiceID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.Appointment{}, newError(ErrNotFound, "service not found")
		}
		return model.Appointment{}, err
	}
	if svc.ClinicID != in.ClinicID {
		return model.Appointment{}, newError(ErrInvalidInput, "service does not belong to clinic")
	}

	endTime := in.StartTime.Add(time.Duration(svc.DurationMinutes) * time.Minute)

	doctorID := in.DoctorID
	if doctorID == "" && actor.Role == model.RoleClient {
		doctors, err := m.doctors.ListDoctorsByClinic(ctx, in.ClinicID)
		if err != nil {
			return model.Appointment{}, err
		}
		if len(doctors) == 0 {
			return model.Appointment{}, newError(ErrNotFound, "no doctors available for clinic")
		}
		// First doctor in listing order; deliberately not load-balanced.
		doctorID = doctors[0].ID
	}

	if doctorID != "" {
		doc, err := m.doctors.GetDoctor(ctx, doctorID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return model.Appointment{}, newError(ErrNotFound, "doctor not found")
			}
			return model.Appointment{}, err
		}
		if doc.ClinicID != in.ClinicID {
			return model.Appointment{}, newError(ErrInvalidInput, "doctor does not belong to clinic")
		}

		conflict, err := m.conflicts.HasConflict(ctx, doctorID, in.StartTime, endTime)
		if err != nil {
			return model.Appointment{}, err
		}
		if conflict {
			return model.Appointment{}, newError(ErrConflict, "time slot already booked")
		}
	}

	appt := &model.Appointment{
		ClinicID:    in.ClinicID,
		ServiceID:   in.ServiceID,
		DoctorID:    doctorID,
		ClientID:    in.ClientID,
		ClientName:  in.ClientName,
		ClientEmail: strings.TrimSpace(in.ClientEmail),
		ClientPhone: strings.TrimSpace(in.ClientPhone),
		StartTime:   in.StartTime,
		EndTime:     endTime,
		Status:      model.StatusScheduled,
		Notes:       in.Notes,
	}

	created, err := m.store.Insert(ctx, appt)
	if err != nil {
		// The exclusion constraint closes the check-then-insert race.
		if errors.Is(err, ErrConflict) {
			return model.Appointment{}, newError(ErrConflict, "time slot already booked")
		}
		return model.Appointment{}, err
	}
	return created, nil
}

// Cancel transitions a scheduled appointment to cancelled. Terminal states
// are final: cancelling a completed or already-cancelled appointment fails.
func (m *Manager) Cancel(ctx context.Context, actor Actor, id string) (model.Appointment, error) {
	return m.transition(ctx, actor, id, model.StatusCancelled)
}

// Complete transitions a scheduled appointment to completed.
func (m *Manager) Complete(ctx context.Context, actor Actor, id string) (model.Appointment, error) {
	return m.transition(ctx, actor, id, model.StatusCompleted)
}

func (m *Manager) transition(ctx context.Context, actor Actor, id string, to string) (model.Appointment, error) {
	appt, err := m.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.Appointment{}, newError(ErrNotFound, "appointment not found")
		}
		return model.Appointment{}, err
	}

	if !canTransition(actor, appt) {
		return model.Appointment{}, newError(ErrForbidden, "not allowed to modify this appointment")
	}

	updated, err := m.store.Transition(ctx, id, model.StatusScheduled, to)
	if err != nil {
		if errors.Is(err, ErrInvalidState) || errors.Is(err, ErrNotFound) {
			return model.Appointment{}, newError(ErrInvalidState, "appointment cannot be "+to+" from status "+appt.Status)
		}
		return model.Appointment{}, err
	}
	return updated, nil
}

// Only the clinic admin of the appointment's clinic or its assigned doctor
// may cancel or complete.
func canTransition(actor Actor, appt model.Appointment) bool {
	switch actor.Role {
	case model.RoleClinicAdmin:
		return actor.ClinicID == appt.ClinicID
	case model.RoleDoctor:
		return actor.UserID == appt.DoctorID
	default:
		return false
	}
}

type UpdateInput struct {
	ClientName  *string
	ClientEmail *string
	ClientPhone *string
	DoctorID    *string
	ServiceID   *string
	StartTime   *time.Time
	Notes       *string
}

// Update applies a partial patch to an appointment within the actor's
// clinic. End time is recomputed from the effective service duration when
// the time or service changes. Conflict detection is deliberately not
// re-run here; the database exclusion constraint remains the backstop.
func (m *Manager) Update(ctx context.Context, actor Actor, id string, patch UpdateInput) (model.Appointment, error) {
	appt, err := m.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.Appointment{}, newError(ErrNotFound, "appointment not found")
		}
		return model.Appointment{}, err
	}

	if actor.ClinicID != appt.ClinicID || (actor.Role != model.RoleClinicAdmin && actor.Role != model.RoleDoctor) {
		return model.Appointment{}, newError(ErrForbidden, "appointment outside caller clinic")
	}

	if patch.ClientName != nil {
		name := strings.TrimSpace(*patch.ClientName)
		if name == "" {
			return model.Appointment{}, newError(ErrInvalidInput, "client_name cannot be empty")
		}
		appt.ClientName = name
	}
	if patch.ClientEmail != nil {
		appt.ClientEmail = strings.TrimSpace(*patch.ClientEmail)
	}
	if patch.ClientPhone != nil {
		appt.ClientPhone = strings.TrimSpace(*patch.ClientPhone)
	}
	if patch.Notes != nil {
		appt.Notes = *patch.Notes
	}

	if patch.ServiceID != nil {
		appt.ServiceID = strings.TrimSpace(*patch.ServiceID)
		if appt.ServiceID == "" {
			return model.Appointment{}, newError(ErrInvalidInput, "service_id cannot be empty")
		}
	}
	if patch.StartTime != nil {
		if patch.StartTime.IsZero() {
			return model.Appointment{}, newError(ErrInvalidInput, "start_time cannot be empty")
		}
		appt.StartTime = *patch.StartTime
	}

	if patch.ServiceID != nil || patch.StartTime != nil {
		svc, err := m.catalog.GetService(ctx, appt.ServiceID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return model.Appointment{}, newError(ErrNotFound, "service not found")
			}
			return model.Appointment{}, err
		}
		if svc.ClinicID != appt.ClinicID {
			return model.Appointment{}, newError(ErrInvalidInput, "service does not belong to clinic")
		}
		appt.EndTime = appt.StartTime.Add(time.Duration(svc.DurationMinutes) * time.Minute)
	}

	if patch.DoctorID != nil {
		doctorID := strings.TrimSpace(*patch.DoctorID)
		if doctorID != "" {
			doc, err := m.doctors.GetDoctor(ctx, doctorID)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					return model.Appointment{}, newError(ErrNotFound, "doctor not found")
				}
				return model.Appointment{}, err
			}
			if doc.ClinicID != appt.ClinicID {
				return model.Appointment{}, newError(ErrInvalidInput, "doctor does not belong to clinic")
			}
		}
		appt.DoctorID = doctorID
	}

	if err := m.store.UpdatePartial(ctx, appt); err != nil {
		if errors.Is(err, ErrConflict) {
			return model.Appointment{}, newError(ErrConflict, "time slot already booked")
		}
		return model.Appointment{}, err
	}
	return appt, nil
}

// Get returns a single appointment subject to the caller's visibility:
// super admins see everything, clinic staff see their clinic, clients see
// their own bookings.
func (m *Manager) Get(ctx context.Context, actor Actor, id string) (model.Appointment, error) {
	appt, err := m.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.Appointment{}, newError(ErrNotFound, "appointment not found")
		}
		return model.Appointment{}, err
	}

	switch actor.Role {
	case model.RoleSuperAdmin:
	case model.RoleClinicAdmin, model.RoleDoctor:
		if actor.ClinicID != appt.ClinicID {
			return model.Appointment{}, newError(ErrForbidden, "appointment outside caller clinic")
		}
	case model.RoleClient:
		if actor.UserID != appt.ClientID {
			return model.Appointment{}, newError(ErrForbidden, "appointment belongs to another client")
		}
	default:
		return model.Appointment{}, newError(ErrForbidden, "role cannot view appointments")
	}
	return appt, nil
}

// GenerateSlots returns the free "HH:MM" start times for a service on a
// date. Candidates come from the fixed business-hours stride; starts of the
// clinic's non-cancelled appointments for that service and day are removed.
// Past dates are not rejected here; that is left to the caller.
func (m *Manager) GenerateSlots(ctx context.Context, serviceID string, date string) ([]string, error) {
	day, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(date), time.UTC)
	if err != nil {
		return nil, newError(ErrInvalidInput, "invalid date")
	}

	svc, err := m.catalog.GetService(ctx, strings.TrimSpace(serviceID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, newError(ErrNotFound, "service not found")
		}
		return nil, err
	}

	starts, err := m.store.BookedStartsForServiceDay(ctx, svc.ClinicID, svc.ID, day, day.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	booked := make([]string, 0, len(starts))
	for _, s := range starts {
		booked = append(booked, s.UTC().Format("15:04"))
	}

	return availability.Filter(availability.Candidates(svc.DurationMinutes), booked), nil
}

// ListForClinicAndDate returns the clinic's appointments whose start falls
// on the given calendar day, ordered by start time ascending.
func (m *Manager) ListForClinicAndDate(ctx context.Context, actor Actor, clinicID string, date string) ([]model.Appointment, error) {
	if err := requireClinicScope(actor, clinicID); err != nil {
		return nil, err
	}
	day, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(date), time.UTC)
	if err != nil {
		return nil, newError(ErrInvalidInput, "invalid date")
	}
	return m.store.ListByClinicAndDateRange(ctx, clinicID, day, day.AddDate(0, 0, 1))
}

func (m *Manager) ListForClinic(ctx context.Context, actor Actor, clinicID string) ([]model.Appointment, error) {
	if err := requireClinicScope(actor, clinicID); err != nil {
		return nil, err
	}
	return m.store.ListByClinic(ctx, clinicID)
}

func (m *Manager) ListForDoctor(ctx context.Context, actor Actor, doctorID string) ([]model.Appointment, error) {
	switch actor.Role {
	case model.RoleSuperAdmin:
	case model.RoleDoctor:
		if actor.UserID != doctorID {
			return nil, newError(ErrForbidden, "doctors may only list their own appointments")
		}
	case model.RoleClinicAdmin:
		doc, err := m.doctors.GetDoctor(ctx, doctorID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, newError(ErrNotFound, "doctor not found")
			}
			return nil, err
		}
		if doc.ClinicID != actor.ClinicID {
			return nil, newError(ErrForbidden, "doctor outside caller clinic")
		}
	default:
		return nil, newError(ErrForbidden, "role cannot list doctor appointments")
	}
	return m.store.ListByDoctor(ctx, doctorID)
}

func (m *Manager) ListForClient(ctx context.Context, actor Actor, clientID string) ([]model.Appointment, error) {
	switch actor.Role {
	case model.RoleSuperAdmin:
	case model.RoleClient:
		if actor.UserID != clientID {
			return nil, newError(ErrForbidden, "clients may only list their own appointments")
		}
	default:
		return nil, newError(ErrForbidden, "role cannot list client appointments")
	}
	return m.store.ListByClient(ctx, clientID)
}

func requireClinicScope(actor Actor, clinicID string) error {
	switch actor.Role {
	case model.RoleSuperAdmin:
		return nil
	case model.RoleClinicAdmin, model.RoleDoctor:
		if actor.ClinicID == clinicID {
			return nil
		}
	}
	return newError(ErrForbidden, "clinic outside caller scope")
}
