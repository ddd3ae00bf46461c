package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/clinicbook/libs/db"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/booking"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/model"
)

type ClinicRepository struct {
	q db.Querier
}

func NewClinicRepository(q db.Querier) *ClinicRepository {
	return &ClinicRepository{q: q}
}

func (r *ClinicRepository) Create(ctx context.Context, name, address, phone string) (model.Clinic, error) {
	id := uuid.NewString()
	var createdAt time.Time
	err := r.q.QueryRow(ctx, `
		INSERT INTO clinics (id, name, address, phone)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, id, name, nullIfEmpty(address), nullIfEmpty(phone)).Scan(&createdAt)
	if err != nil {
		return model.Clinic{}, err
	}
	return model.Clinic{ID: id, Name: name, Address: address, Phone: phone, CreatedAt: createdAt}, nil
}

func (r *ClinicRepository) GetByID(ctx context.Context, id string) (model.Clinic, error) {
	var c model.Clinic
	err := r.q.QueryRow(ctx, `
		SELECT id::text, name, COALESCE(address, ''), COALESCE(phone, ''), created_at
		FROM clinics
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Address, &c.Phone, &c.CreatedAt)
	if err != nil {
		if IsNotFound(err) {
			return model.Clinic{}, booking.ErrNotFound
		}
		return model.Clinic{}, err
	}
	return c, nil
}

func (r *ClinicRepository) List(ctx context.Context) ([]model.Clinic, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id::text, name, COALESCE(address, ''), COALESCE(phone, ''), created_at
		FROM clinics
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clinics []model.Clinic
	for rows.Next() {
		var c model.Clinic
		if err := rows.Scan(&c.ID, &c.Name, &c.Address, &c.Phone, &c.CreatedAt); err != nil {
			return nil, err
		}
		clinics = append(clinics, c)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return clinics, nil
}

// Delete removes a clinic only when nothing references it. This is a
// referential-integrity guard, not a cascade: the count check gives a
// specific rejection and the RESTRICT'd foreign keys remain the backstop.
func (r *ClinicRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.q.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var services, doctors, appointments int
	err = tx.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM services WHERE clinic_id = $1),
			(SELECT COUNT(*) FROM doctors WHERE clinic_id = $1),
			(SELECT COUNT(*) FROM appointments WHERE clinic_id = $1)
	`, id).Scan(&services, &doctors, &appointments)
	if err != nil {
		return err
	}
	if services > 0 || doctors > 0 || appointments > 0 {
		return &booking.Error{Kind: booking.ErrConflict, Msg: "clinic has dependent services, doctors or appointments"}
	}

	tag, err := tx.Exec(ctx, `DELETE FROM clinics WHERE id = $1`, id)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return &booking.Error{Kind: booking.ErrConflict, Msg: "clinic has dependent services, doctors or appointments"}
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return booking.ErrNotFound
	}
	return tx.Commit(ctx)
}
