package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/clinicbook/libs/db"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/booking"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/outbox"
)

const appointmentColumns = `id::text, clinic_id::text, service_id::text,
		COALESCE(doctor_id::text, ''), COALESCE(client_id::text, ''),
		client_name, COALESCE(client_email, ''), COALESCE(client_phone, ''),
		start_time, end_time, status, COALESCE(notes, ''),
		cancelled_at, completed_at, created_at`

// AppointmentRepository persists appointments and their lifecycle events.
// Insert and Transition write the matching outbox row in the same
// transaction; the exclusion constraint on (doctor_id, time range) turns
// concurrent double-bookings into conflicts.
type AppointmentRepository struct {
	q      db.Querier
	outbox *outbox.Repository
}

func NewAppointmentRepository(q db.Querier, outboxRepo *outbox.Repository) *AppointmentRepository {
	return &AppointmentRepository{q: q, outbox: outboxRepo}
}

func (r *AppointmentRepository) Insert(ctx context.Context, appt *model.Appointment) (model.Appointment, error) {
	tx, err := r.q.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	id := uuid.NewString()
	var createdAt time.Time
	err = tx.QueryRow(ctx, `
		INSERT INTO appointments
			(id, clinic_id, service_id, doctor_id, client_id, client_name, client_email, client_phone, start_time, end_time, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at
	`, id, appt.ClinicID, appt.ServiceID, nullIfEmpty(appt.DoctorID), nullIfEmpty(appt.ClientID),
		appt.ClientName, nullIfEmpty(appt.ClientEmail), nullIfEmpty(appt.ClientPhone),
		appt.StartTime, appt.EndTime, appt.Status, nullIfEmpty(appt.Notes)).Scan(&createdAt)
	if err != nil {
		if IsConflict(err) {
			return model.Appointment{}, booking.ErrConflict
		}
		return model.Appointment{}, err
	}

	stored := *appt
	stored.ID = id
	stored.CreatedAt = createdAt

	payload, err := appointmentEventPayload(stored, nil)
	if err != nil {
		return model.Appointment{}, err
	}
	if err := r.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   stored.ID,
		EventType:     outbox.EventAppointmentBooked,
		Payload:       payload,
	}); err != nil {
		return model.Appointment{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}
	return stored, nil
}

func (r *AppointmentRepository) GetByID(ctx context.Context, id string) (model.Appointment, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	appt, err := scanAppointment(row)
	if err != nil {
		if IsNotFound(err) {
			return model.Appointment{}, booking.ErrNotFound
		}
		return model.Appointment{}, err
	}
	return appt, nil
}

// Transition applies a guarded status update: the WHERE clause on the
// current status makes the state machine race-safe without row locks.
func (r *AppointmentRepository) Transition(ctx context.Context, id string, from string, to string) (model.Appointment, error) {
	tx, err := r.q.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = $3,
			cancelled_at = CASE WHEN $3 = 'cancelled' THEN now() ELSE cancelled_at END,
			completed_at = CASE WHEN $3 = 'completed' THEN now() ELSE completed_at END
		WHERE id = $1 AND status = $2
		RETURNING `+appointmentColumns+`
	`, id, from, to)
	appt, err := scanAppointment(row)
	if err != nil {
		if !IsNotFound(err) {
			return model.Appointment{}, err
		}
		var status string
		if err := tx.QueryRow(ctx, `SELECT status FROM appointments WHERE id = $1`, id).Scan(&status); err != nil {
			if IsNotFound(err) {
				return model.Appointment{}, booking.ErrNotFound
			}
			return model.Appointment{}, err
		}
		return model.Appointment{}, booking.ErrInvalidState
	}

	eventType := outbox.EventAppointmentCompleted
	if to == model.StatusCancelled {
		eventType = outbox.EventAppointmentCancelled
	}
	payload, err := appointmentEventPayload(appt, map[string]any{"previous_status": from})
	if err != nil {
		return model.Appointment{}, err
	}
	if err := r.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     eventType,
		Payload:       payload,
	}); err != nil {
		return model.Appointment{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

func (r *AppointmentRepository) UpdatePartial(ctx context.Context, appt model.Appointment) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE appointments
		SET client_name = $2,
			client_email = $3,
			client_phone = $4,
			doctor_id = $5,
			service_id = $6,
			start_time = $7,
			end_time = $8,
			notes = $9
		WHERE id = $1
	`, appt.ID, appt.ClientName, nullIfEmpty(appt.ClientEmail), nullIfEmpty(appt.ClientPhone),
		nullIfEmpty(appt.DoctorID), appt.ServiceID, appt.StartTime, appt.EndTime, nullIfEmpty(appt.Notes))
	if err != nil {
		if IsConflict(err) {
			return booking.ErrConflict
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return booking.ErrNotFound
	}
	return nil
}

func (r *AppointmentRepository) ListByClinicAndDateRange(ctx context.Context, clinicID string, from time.Time, to time.Time) ([]model.Appointment, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE clinic_id = $1
			AND start_time >= $2
			AND start_time < $3
		ORDER BY start_time ASC
	`, clinicID, from, to)
	if err != nil {
		return nil, err
	}
	return scanAppointments(rows)
}

func (r *AppointmentRepository) ListByDoctor(ctx context.Context, doctorID string) ([]model.Appointment, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		ORDER BY start_time ASC
	`, doctorID)
	if err != nil {
		return nil, err
	}
	return scanAppointments(rows)
}

func (r *AppointmentRepository) ListByClient(ctx context.Context, clientID string) ([]model.Appointment, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE client_id = $1
		ORDER BY start_time ASC
	`, clientID)
	if err != nil {
		return nil, err
	}
	return scanAppointments(rows)
}

func (r *AppointmentRepository) ListByClinic(ctx context.Context, clinicID string) ([]model.Appointment, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE clinic_id = $1
		ORDER BY start_time ASC
	`, clinicID)
	if err != nil {
		return nil, err
	}
	return scanAppointments(rows)
}

func (r *AppointmentRepository) BookedStartsForServiceDay(ctx context.Context, clinicID string, serviceID string, dayStart time.Time, dayEnd time.Time) ([]time.Time, error) {
	rows, err := r.q.Query(ctx, `
		SELECT start_time
		FROM appointments
		WHERE clinic_id = $1
			AND service_id = $2
			AND status <> 'cancelled'
			AND start_time >= $3
			AND start_time < $4
		ORDER BY start_time ASC
	`, clinicID, serviceID, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var starts []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		starts = append(starts, t)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return starts, nil
}

// CountOverlapping spells out the three overlap cases (existing contains
// the new start, existing contains the new end, new contains existing);
// together they are equivalent to start < $3 AND end > $2 on half-open
// intervals.
func (r *AppointmentRepository) CountOverlapping(ctx context.Context, doctorID string, start time.Time, end time.Time) (int, error) {
	var n int
	err := r.q.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM appointments
		WHERE doctor_id = $1
			AND status <> 'cancelled'
			AND (
				(start_time <= $2 AND end_time > $2)
				OR (start_time < $3 AND end_time >= $3)
				OR (start_time >= $2 AND end_time <= $3)
			)
	`, doctorID, start, end).Scan(&n)
	if err != nil {
		return 0, err
	}
	return n, nil
}

func appointmentEventPayload(appt model.Appointment, extra map[string]any) ([]byte, error) {
	payload := map[string]any{
		"appointment_id": appt.ID,
		"clinic_id":      appt.ClinicID,
		"service_id":     appt.ServiceID,
		"doctor_id":      appt.DoctorID,
		"client_name":    appt.ClientName,
		"client_email":   appt.ClientEmail,
		"client_phone":   appt.ClientPhone,
		"start_time":     appt.StartTime.UTC().Format(time.RFC3339),
		"end_time":       appt.EndTime.UTC().Format(time.RFC3339),
		"status":         appt.Status,
	}
	for k, v := range extra {
		payload[k] = v
	}
	return json.Marshal(payload)
}

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var appt model.Appointment
	var cancelledAt, completedAt *time.Time
	err := row.Scan(
		&appt.ID,
		&appt.ClinicID,
		&appt.ServiceID,
		&appt.DoctorID,
		&appt.ClientID,
		&appt.ClientName,
		&appt.ClientEmail,
		&appt.ClientPhone,
		&appt.StartTime,
		&appt.EndTime,
		&appt.Status,
		&appt.Notes,
		&cancelledAt,
		&completedAt,
		&appt.CreatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	appt.CancelledAt = cancelledAt
	appt.CompletedAt = completedAt
	return appt, nil
}

func scanAppointments(rows pgx.Rows) ([]model.Appointment, error) {
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}
