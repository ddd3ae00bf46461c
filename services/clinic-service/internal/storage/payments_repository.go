package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/clinicbook/libs/db"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/booking"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/outbox"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/revenue"
)

// ErrDuplicateProviderEvent marks a webhook delivery that was already
// processed. Callers should acknowledge it without side effects.
var ErrDuplicateProviderEvent = errors.New("duplicate provider event")

type ProviderEvent struct {
	Provider        string
	ProviderEventID string
	EventType       string
	Payload         []byte
}

// PaymentRepository records payments against appointments. Webhook
// handlers claim the provider event and write the payment in one
// transaction so a retry after a partial failure replays cleanly.
type PaymentRepository struct {
	q      db.Querier
	outbox *outbox.Repository
}

func NewPaymentRepository(q db.Querier, outboxRepo *outbox.Repository) *PaymentRepository {
	return &PaymentRepository{q: q, outbox: outboxRepo}
}

func (r *PaymentRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.q.Begin(ctx)
}

// InsertProviderEvent claims a provider event id. It returns
// ErrDuplicateProviderEvent when the id was already claimed, which is how
// webhook retries become no-ops.
func (r *PaymentRepository) InsertProviderEvent(ctx context.Context, tx pgx.Tx, evt ProviderEvent) error {
	tag, err := tx.Exec(ctx, `
		INSERT INTO provider_events (provider, provider_event_id, event_type, payload)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (provider, provider_event_id) DO NOTHING
	`, evt.Provider, evt.ProviderEventID, evt.EventType, evt.Payload)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicateProviderEvent
	}
	return nil
}

// AppointmentExists lets webhook handlers check the referenced appointment
// before inserting, so a bad reference does not abort the transaction that
// already claimed the provider event.
func (r *PaymentRepository) AppointmentExists(ctx context.Context, tx pgx.Tx, id string) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM appointments WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// RecordPayment inserts the payment row and its outbox event on the given
// transaction. The caller commits.
func (r *PaymentRepository) RecordPayment(ctx context.Context, tx pgx.Tx, p *model.Payment) (model.Payment, error) {
	id := uuid.NewString()
	paidAt := p.PaidAt
	if paidAt.IsZero() {
		paidAt = time.Now().UTC()
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO payments (id, appointment_id, amount_cents, currency, status, provider, provider_ref, paid_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, id, p.AppointmentID, p.AmountCents, p.Currency, p.Status, p.Provider, nullIfEmpty(p.ProviderRef), paidAt)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return model.Payment{}, &booking.Error{Kind: booking.ErrNotFound, Msg: "appointment not found"}
		}
		return model.Payment{}, err
	}

	stored := *p
	stored.ID = id
	stored.PaidAt = paidAt

	payload, err := json.Marshal(map[string]any{
		"payment_id":     stored.ID,
		"appointment_id": stored.AppointmentID,
		"amount_cents":   stored.AmountCents,
		"currency":       stored.Currency,
		"status":         stored.Status,
		"provider":       stored.Provider,
		"paid_at":        stored.PaidAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return model.Payment{}, err
	}
	if err := r.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "payment",
		AggregateID:   stored.ID,
		EventType:     outbox.EventPaymentRecorded,
		Payload:       payload,
	}); err != nil {
		return model.Payment{}, err
	}
	return stored, nil
}

const paymentRecordColumns = `p.appointment_id::text, a.status, a.clinic_id::text,
			a.service_id::text, s.name, p.amount_cents, p.currency, p.status, p.paid_at`

// ListPaymentsForClinic returns the flat payment rows the revenue
// aggregator folds; filtering by appointment and payment status happens
// in the aggregator, not here.
func (r *PaymentRepository) ListPaymentsForClinic(ctx context.Context, clinicID string) ([]revenue.PaymentRecord, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+paymentRecordColumns+`
		FROM payments p
		JOIN appointments a ON a.id = p.appointment_id
		JOIN services s ON s.id = a.service_id
		WHERE a.clinic_id = $1
		ORDER BY p.paid_at ASC
	`, clinicID)
	if err != nil {
		return nil, err
	}
	return scanPaymentRecords(rows)
}

func (r *PaymentRepository) ListPayments(ctx context.Context) ([]revenue.PaymentRecord, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+paymentRecordColumns+`
		FROM payments p
		JOIN appointments a ON a.id = p.appointment_id
		JOIN services s ON s.id = a.service_id
		ORDER BY p.paid_at ASC
	`)
	if err != nil {
		return nil, err
	}
	return scanPaymentRecords(rows)
}

func scanPaymentRecords(rows pgx.Rows) ([]revenue.PaymentRecord, error) {
	defer rows.Close()

	var records []revenue.PaymentRecord
	for rows.Next() {
		var rec revenue.PaymentRecord
		if err := rows.Scan(
			&rec.AppointmentID,
			&rec.AppointmentStatus,
			&rec.ClinicID,
			&rec.ServiceID,
			&rec.ServiceName,
			&rec.AmountCents,
			&rec.Currency,
			&rec.Status,
			&rec.PaidAt,
		); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}
