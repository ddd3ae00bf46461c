package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/clinicbook/libs/db"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/booking"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/model"
)

// CatalogRepository persists the per-clinic catalog: billable services and
// doctors. Service duration and price are snapshotted onto appointments at
// booking time, so edits here never rewrite existing bookings.
type CatalogRepository struct {
	q db.Querier
}

func NewCatalogRepository(q db.Querier) *CatalogRepository {
	return &CatalogRepository{q: q}
}

func (r *CatalogRepository) CreateService(ctx context.Context, svc *model.Service) (model.Service, error) {
	id := uuid.NewString()
	var createdAt time.Time
	err := r.q.QueryRow(ctx, `
		INSERT INTO services (id, clinic_id, name, duration_minutes, price_cents)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, id, svc.ClinicID, svc.Name, svc.DurationMinutes, svc.PriceCents).Scan(&createdAt)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return model.Service{}, &booking.Error{Kind: booking.ErrNotFound, Msg: "clinic not found"}
		}
		return model.Service{}, err
	}
	stored := *svc
	stored.ID = id
	stored.CreatedAt = createdAt
	return stored, nil
}

func (r *CatalogRepository) GetService(ctx context.Context, id string) (model.Service, error) {
	var svc model.Service
	err := r.q.QueryRow(ctx, `
		SELECT id::text, clinic_id::text, name, duration_minutes, price_cents, created_at
		FROM services
		WHERE id = $1
	`, id).Scan(&svc.ID, &svc.ClinicID, &svc.Name, &svc.DurationMinutes, &svc.PriceCents, &svc.CreatedAt)
	if err != nil {
		if IsNotFound(err) {
			return model.Service{}, booking.ErrNotFound
		}
		return model.Service{}, err
	}
	return svc, nil
}

func (r *CatalogRepository) ListServicesByClinic(ctx context.Context, clinicID string) ([]model.Service, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id::text, clinic_id::text, name, duration_minutes, price_cents, created_at
		FROM services
		WHERE clinic_id = $1
		ORDER BY created_at ASC, id ASC
	`, clinicID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var services []model.Service
	for rows.Next() {
		var svc model.Service
		if err := rows.Scan(&svc.ID, &svc.ClinicID, &svc.Name, &svc.DurationMinutes, &svc.PriceCents, &svc.CreatedAt); err != nil {
			return nil, err
		}
		services = append(services, svc)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return services, nil
}

func (r *CatalogRepository) CreateDoctor(ctx context.Context, doc *model.Doctor) (model.Doctor, error) {
	id := uuid.NewString()
	var createdAt time.Time
	err := r.q.QueryRow(ctx, `
		INSERT INTO doctors (id, clinic_id, name, email, phone, specialty)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, id, doc.ClinicID, doc.Name, nullIfEmpty(doc.Email), nullIfEmpty(doc.Phone), nullIfEmpty(doc.Specialty)).Scan(&createdAt)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return model.Doctor{}, &booking.Error{Kind: booking.ErrNotFound, Msg: "clinic not found"}
		}
		return model.Doctor{}, err
	}
	stored := *doc
	stored.ID = id
	stored.CreatedAt = createdAt
	return stored, nil
}

func (r *CatalogRepository) GetDoctor(ctx context.Context, id string) (model.Doctor, error) {
	var doc model.Doctor
	err := r.q.QueryRow(ctx, `
		SELECT id::text, clinic_id::text, name, COALESCE(email, ''), COALESCE(phone, ''), COALESCE(specialty, ''), created_at
		FROM doctors
		WHERE id = $1
	`, id).Scan(&doc.ID, &doc.ClinicID, &doc.Name, &doc.Email, &doc.Phone, &doc.Specialty, &doc.CreatedAt)
	if err != nil {
		if IsNotFound(err) {
			return model.Doctor{}, booking.ErrNotFound
		}
		return model.Doctor{}, err
	}
	return doc, nil
}

// ListDoctorsByClinic is the listing order used for client auto-assignment:
// oldest doctor first, id as tie-break.
func (r *CatalogRepository) ListDoctorsByClinic(ctx context.Context, clinicID string) ([]model.Doctor, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id::text, clinic_id::text, name, COALESCE(email, ''), COALESCE(phone, ''), COALESCE(specialty, ''), created_at
		FROM doctors
		WHERE clinic_id = $1
		ORDER BY created_at ASC, id ASC
	`, clinicID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var doctors []model.Doctor
	for rows.Next() {
		var doc model.Doctor
		if err := rows.Scan(&doc.ID, &doc.ClinicID, &doc.Name, &doc.Email, &doc.Phone, &doc.Specialty, &doc.CreatedAt); err != nil {
			return nil, err
		}
		doctors = append(doctors, doc)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return doctors, nil
}
