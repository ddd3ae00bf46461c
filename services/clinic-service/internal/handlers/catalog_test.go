package handlers

import (
	"log/slog"
	"net/http"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"

	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/storage"
)

var clinicAdminHeaders = map[string]string{
	"X-User-Id":   "admin-1",
	"X-Clinic-Id": "clinic-1",
	"X-Role":      "clinic_admin",
}

func newCatalogHandler(t *testing.T) (*CatalogHandler, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	t.Cleanup(mock.Close)
	logger := slog.New(slog.NewTextHandler(testWriter{}, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewCatalogHandler(storage.NewCatalogRepository(mock), nil, logger), mock
}

func TestCreateServicePriceBoundary(t *testing.T) {
	handler, mock := newCatalogHandler(t)

	// A zero or negative price never reaches the repository.
	for _, body := range []string{
		`{"name":"Checkup","duration_minutes":30,"price_cents":0}`,
		`{"name":"Checkup","duration_minutes":30,"price_cents":-50}`,
	} {
		rw := postJSON(t, handler.CreateService, "/api/v1/clinic/services", body, clinicAdminHeaders)
		if rw.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for %s, got %d: %s", body, rw.Code, rw.Body.String())
		}
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("repository touched for rejected price: %v", err)
	}

	// One cent is the smallest accepted price.
	mock.ExpectQuery("INSERT INTO services").
		WithArgs(pgxmock.AnyArg(), "clinic-1", "Checkup", 30, int64(1)).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC)))

	rw := postJSON(t, handler.CreateService, "/api/v1/clinic/services",
		`{"name":"Checkup","duration_minutes":30,"price_cents":1}`, clinicAdminHeaders)
	if rw.Code != http.StatusCreated {
		t.Fatalf("expected 201 for one-cent price, got %d: %s", rw.Code, rw.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
