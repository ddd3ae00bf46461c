package revenue

import (
	"context"
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/model"
)

type stubSource struct {
	records []PaymentRecord
}

func (s stubSource) ListPaymentsForClinic(_ context.Context, clinicID string) ([]PaymentRecord, error) {
	var out []PaymentRecord
	for _, r := range s.records {
		if r.ClinicID == clinicID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s stubSource) ListPayments(context.Context) ([]PaymentRecord, error) {
	return s.records, nil
}

func fixedNow() time.Time {
	return time.Date(2024, 6, 10, 15, 0, 0, 0, time.UTC)
}

func TestClinicRevenue_CompletedPaidOnly(t *testing.T) {
	// One completed appointment paid $50 and one cancelled appointment
	// without a payment row: daily and monthly revenue are exactly $50.
	src := stubSource{records: []PaymentRecord{
		{
			AppointmentID:     "appt-1",
			AppointmentStatus: model.StatusCompleted,
			ClinicID:          "clinic-1",
			ServiceID:         "svc-consult",
			ServiceName:       "General Consultation",
			AmountCents:       5000,
			Currency:          "usd",
			Status:            "succeeded",
			PaidAt:            time.Date(2024, 6, 10, 9, 40, 0, 0, time.UTC),
		},
	}}
	agg := NewAggregatorAt(src, fixedNow)

	report, err := agg.ClinicRevenue(context.Background(), "clinic-1")
	if err != nil {
		t.Fatalf("clinic revenue failed: %v", err)
	}
	if len(report.Daily) != 1 || report.Daily[0].Date != "2024-06-10" || report.Daily[0].AmountCents != 5000 {
		t.Fatalf("expected single $50 daily bucket for 2024-06-10, got %+v", report.Daily)
	}
	if report.MonthCents != 5000 {
		t.Fatalf("expected monthly revenue 5000, got %d", report.MonthCents)
	}
	if len(report.ServiceRevenue) != 1 || report.ServiceRevenue[0].Count != 1 || report.ServiceRevenue[0].AmountCents != 5000 {
		t.Fatalf("unexpected service revenue: %+v", report.ServiceRevenue)
	}
	if report.Currency != "usd" {
		t.Fatalf("expected usd currency, got %s", report.Currency)
	}
}

func TestClinicRevenue_ExcludesNonCountableRows(t *testing.T) {
	paidAt := time.Date(2024, 6, 9, 12, 0, 0, 0, time.UTC)
	src := stubSource{records: []PaymentRecord{
		{AppointmentID: "a1", AppointmentStatus: model.StatusCompleted, ClinicID: "clinic-1", ServiceID: "s1", AmountCents: 5000, Status: "succeeded", PaidAt: paidAt},
		{AppointmentID: "a2", AppointmentStatus: model.StatusScheduled, ClinicID: "clinic-1", ServiceID: "s1", AmountCents: 9900, Status: "succeeded", PaidAt: paidAt},
		{AppointmentID: "a3", AppointmentStatus: model.StatusCancelled, ClinicID: "clinic-1", ServiceID: "s1", AmountCents: 1200, Status: "succeeded", PaidAt: paidAt},
		{AppointmentID: "a4", AppointmentStatus: model.StatusCompleted, ClinicID: "clinic-1", ServiceID: "s1", AmountCents: 7700, Status: "pending", PaidAt: paidAt},
	}}
	agg := NewAggregatorAt(src, fixedNow)

	report, err := agg.ClinicRevenue(context.Background(), "clinic-1")
	if err != nil {
		t.Fatalf("clinic revenue failed: %v", err)
	}
	var total int64
	for _, d := range report.Daily {
		total += d.AmountCents
	}
	if total != 5000 {
		t.Fatalf("expected only the completed+succeeded payment to count, got %d", total)
	}
}

func TestClinicRevenue_WeeklyBucketsUseISOWeeks(t *testing.T) {
	src := stubSource{records: []PaymentRecord{
		// 2024-06-10 is Monday of ISO week 24; 2024-06-09 is Sunday of week 23.
		{AppointmentID: "a1", AppointmentStatus: model.StatusCompleted, ClinicID: "clinic-1", ServiceID: "s1", AmountCents: 1000, Status: "succeeded", PaidAt: time.Date(2024, 6, 10, 10, 0, 0, 0, time.UTC)},
		{AppointmentID: "a2", AppointmentStatus: model.StatusCompleted, ClinicID: "clinic-1", ServiceID: "s1", AmountCents: 2000, Status: "succeeded", PaidAt: time.Date(2024, 6, 9, 10, 0, 0, 0, time.UTC)},
	}}
	agg := NewAggregatorAt(src, fixedNow)

	report, err := agg.ClinicRevenue(context.Background(), "clinic-1")
	if err != nil {
		t.Fatalf("clinic revenue failed: %v", err)
	}
	if len(report.Weekly) != 2 {
		t.Fatalf("expected 2 weekly buckets, got %+v", report.Weekly)
	}
	if report.Weekly[0].Week != 23 || report.Weekly[0].AmountCents != 2000 {
		t.Fatalf("unexpected week-23 bucket: %+v", report.Weekly[0])
	}
	if report.Weekly[1].Week != 24 || report.Weekly[1].AmountCents != 1000 {
		t.Fatalf("unexpected week-24 bucket: %+v", report.Weekly[1])
	}
}

func TestTotalRevenue_AcrossClinics(t *testing.T) {
	paidAt := time.Date(2024, 6, 9, 12, 0, 0, 0, time.UTC)
	src := stubSource{records: []PaymentRecord{
		{AppointmentID: "a1", AppointmentStatus: model.StatusCompleted, ClinicID: "clinic-1", ServiceID: "s1", AmountCents: 5000, Currency: "usd", Status: "succeeded", PaidAt: paidAt},
		{AppointmentID: "a2", AppointmentStatus: model.StatusCompleted, ClinicID: "clinic-2", ServiceID: "s2", AmountCents: 2500, Currency: "usd", Status: "succeeded", PaidAt: paidAt},
		{AppointmentID: "a3", AppointmentStatus: model.StatusScheduled, ClinicID: "clinic-2", ServiceID: "s2", AmountCents: 9000, Currency: "usd", Status: "succeeded", PaidAt: paidAt},
	}}
	agg := NewAggregatorAt(src, fixedNow)

	totals, err := agg.TotalRevenue(context.Background())
	if err != nil {
		t.Fatalf("total revenue failed: %v", err)
	}
	if totals.AmountCents != 7500 {
		t.Fatalf("expected 7500 cents, got %d", totals.AmountCents)
	}
	if totals.Currency != "usd" {
		t.Fatalf("expected usd, got %s", totals.Currency)
	}
}
