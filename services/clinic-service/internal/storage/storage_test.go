package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"

	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/booking"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/outbox"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func TestCountOverlappingQuery(t *testing.T) {
	mock := newMock(t)
	repo := NewAppointmentRepository(mock, outbox.NewRepository())

	start := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)
	end := start.Add(30 * time.Minute)

	mock.ExpectQuery("SELECT COUNT").
		WithArgs("doc-1", start, end).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(2))

	n, err := repo.CountOverlapping(context.Background(), "doc-1", start, end)
	if err != nil {
		t.Fatalf("count overlapping failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 overlapping rows, got %d", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInsertMapsExclusionViolationToConflict(t *testing.T) {
	mock := newMock(t)
	repo := NewAppointmentRepository(mock, outbox.NewRepository())

	start := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs(pgxmock.AnyArg(), "clinic-1", "svc-1", "doc-1", nil,
			"Jane Roe", nil, nil, start, start.Add(30*time.Minute), model.StatusScheduled, nil).
		WillReturnError(&pgconn.PgError{Code: "23P01"})
	mock.ExpectRollback()

	_, err := repo.Insert(context.Background(), &model.Appointment{
		ClinicID:   "clinic-1",
		ServiceID:  "svc-1",
		DoctorID:   "doc-1",
		ClientName: "Jane Roe",
		StartTime:  start,
		EndTime:    start.Add(30 * time.Minute),
		Status:     model.StatusScheduled,
	})
	if !errors.Is(err, booking.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTransitionGuard(t *testing.T) {
	mock := newMock(t)
	repo := NewAppointmentRepository(mock, outbox.NewRepository())

	t.Run("already terminal", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE appointments").
			WithArgs("appt-1", model.StatusScheduled, model.StatusCancelled).
			WillReturnError(pgx.ErrNoRows)
		mock.ExpectQuery("SELECT status FROM appointments").
			WithArgs("appt-1").
			WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow(model.StatusCompleted))
		mock.ExpectRollback()

		_, err := repo.Transition(context.Background(), "appt-1", model.StatusScheduled, model.StatusCancelled)
		if !errors.Is(err, booking.ErrInvalidState) {
			t.Fatalf("expected invalid state, got %v", err)
		}
	})

	t.Run("missing row", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE appointments").
			WithArgs("appt-missing", model.StatusScheduled, model.StatusCancelled).
			WillReturnError(pgx.ErrNoRows)
		mock.ExpectQuery("SELECT status FROM appointments").
			WithArgs("appt-missing").
			WillReturnError(pgx.ErrNoRows)
		mock.ExpectRollback()

		_, err := repo.Transition(context.Background(), "appt-missing", model.StatusScheduled, model.StatusCancelled)
		if !errors.Is(err, booking.ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	})

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestClinicDeleteRejectsDependents(t *testing.T) {
	mock := newMock(t)
	repo := NewClinicRepository(mock)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT").
		WithArgs("clinic-1").
		WillReturnRows(pgxmock.NewRows([]string{"services", "doctors", "appointments"}).AddRow(1, 0, 3))
	mock.ExpectRollback()

	err := repo.Delete(context.Background(), "clinic-1")
	if !errors.Is(err, booking.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestClinicDeleteEmptyClinic(t *testing.T) {
	mock := newMock(t)
	repo := NewClinicRepository(mock)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT").
		WithArgs("clinic-2").
		WillReturnRows(pgxmock.NewRows([]string{"services", "doctors", "appointments"}).AddRow(0, 0, 0))
	mock.ExpectExec("DELETE FROM clinics").
		WithArgs("clinic-2").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	if err := repo.Delete(context.Background(), "clinic-2"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInsertProviderEventDeduplicates(t *testing.T) {
	mock := newMock(t)
	repo := NewPaymentRepository(mock, outbox.NewRepository())
	body := []byte(`{"id":"evt_1"}`)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO provider_events").
		WithArgs("stripe", "evt_1", "payment_intent.succeeded", body).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	tx, err := repo.Begin(context.Background())
	if err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	evt := ProviderEvent{Provider: "stripe", ProviderEventID: "evt_1", EventType: "payment_intent.succeeded", Payload: body}
	if err := repo.InsertProviderEvent(context.Background(), tx, evt); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	if err := tx.Commit(context.Background()); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO provider_events").
		WithArgs("stripe", "evt_1", "payment_intent.succeeded", body).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectRollback()

	tx, err = repo.Begin(context.Background())
	if err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	err = repo.InsertProviderEvent(context.Background(), tx, evt)
	if !errors.Is(err, ErrDuplicateProviderEvent) {
		t.Fatalf("expected duplicate provider event, got %v", err)
	}
	_ = tx.Rollback(context.Background())

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdatePartialMissingRow(t *testing.T) {
	mock := newMock(t)
	repo := NewAppointmentRepository(mock, outbox.NewRepository())

	start := time.Date(2024, 6, 10, 13, 0, 0, 0, time.UTC)
	mock.ExpectExec("UPDATE appointments").
		WithArgs("appt-missing", "Jane Roe", nil, nil, nil, "svc-1", start, start.Add(30*time.Minute), nil).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.UpdatePartial(context.Background(), model.Appointment{
		ID:         "appt-missing",
		ClientName: "Jane Roe",
		ServiceID:  "svc-1",
		StartTime:  start,
		EndTime:    start.Add(30 * time.Minute),
	})
	if !errors.Is(err, booking.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
