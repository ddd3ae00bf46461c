package revenue

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/model"
)

const (
	dailyWindowDays  = 30
	weeklyWindowWks  = 12
	defaultCurrency  = "usd"
	succeededPayment = "succeeded"
)

// PaymentRecord is a payment row joined to its appointment, as returned by
// the payment store.
type PaymentRecord struct {
	AppointmentID     string
	AppointmentStatus string
	ClinicID          string
	ServiceID         string
	ServiceName       string
	AmountCents       int64
	Currency          string
	Status            string
	PaidAt            time.Time
}

type PaymentSource interface {
	ListPaymentsForClinic(ctx context.Context, clinicID string) ([]PaymentRecord, error)
	ListPayments(ctx context.Context) ([]PaymentRecord, error)
}

type DailyBucket struct {
	Date        string `json:"date"` // YYYY-MM-DD
	AmountCents int64  `json:"amount_cents"`
}

type WeeklyBucket struct {
	Year        int   `json:"year"`
	Week        int   `json:"week"` // ISO week number
	AmountCents int64 `json:"amount_cents"`
}

type ServiceRevenue struct {
	ServiceID   string `json:"service_id"`
	ServiceName string `json:"service_name"`
	Count       int    `json:"count"`
	AmountCents int64  `json:"amount_cents"`
}

type ClinicReport struct {
	ClinicID       string           `json:"clinic_id"`
	Daily          []DailyBucket    `json:"daily_revenue"`
	Weekly         []WeeklyBucket   `json:"weekly_revenue"`
	MonthCents     int64            `json:"monthly_revenue_cents"`
	ServiceRevenue []ServiceRevenue `json:"service_revenue"`
	Currency       string           `json:"currency"`
	GeneratedAtUTC string           `json:"generated_at"`
}

type Totals struct {
	AmountCents int64  `json:"total_revenue_cents"`
	Currency    string `json:"currency"`
}

// Aggregator sums completed-appointment payments into daily, ISO-week,
// current-month and per-service buckets. Only completed appointments with
// succeeded payments contribute; the status filters are explicit rather
// than an implicit consequence of the join.
type Aggregator struct {
	source PaymentSource
	now    func() time.Time
}

func NewAggregator(source PaymentSource) *Aggregator {
	return &Aggregator{source: source, now: func() time.Time { return time.Now().UTC() }}
}

// NewAggregatorAt pins the aggregator's clock; used by tests.
func NewAggregatorAt(source PaymentSource, now func() time.Time) *Aggregator {
	return &Aggregator{source: source, now: now}
}

func (a *Aggregator) ClinicRevenue(ctx context.Context, clinicID string) (ClinicReport, error) {
	records, err := a.source.ListPaymentsForClinic(ctx, clinicID)
	if err != nil {
		return ClinicReport{}, err
	}

	now := a.now().UTC()
	report := ClinicReport{
		ClinicID:       clinicID,
		Currency:       defaultCurrency,
		GeneratedAtUTC: now.Format(time.RFC3339),
	}

	dayStart := midnight(now).AddDate(0, 0, -(dailyWindowDays - 1))
	daily := map[string]int64{}
	weekly := map[[2]int]int64{}
	perService := map[string]*ServiceRevenue{}
	var serviceOrder []string

	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	monthEnd := monthStart.AddDate(0, 1, 0)

	weekYearFloor, weekFloor := now.AddDate(0, 0, -7*(weeklyWindowWks-1)).ISOWeek()

	for _, rec := range records {
		if !countable(rec) {
			continue
		}
		if rec.Currency != "" {
			report.Currency = rec.Currency
		}
		paidAt := rec.PaidAt.UTC()

		if !paidAt.Before(dayStart) && paidAt.Before(midnight(now).AddDate(0, 0, 1)) {
			daily[paidAt.Format("2006-01-02")] += rec.AmountCents
		}

		year, week := paidAt.ISOWeek()
		if !isoWeekBefore(year, week, weekYearFloor, weekFloor) && !paidAt.After(now) {
			weekly[[2]int{year, week}] += rec.AmountCents
		}

		if !paidAt.Before(monthStart) && paidAt.Before(monthEnd) {
			report.MonthCents += rec.AmountCents
		}

		sr, ok := perService[rec.ServiceID]
		if !ok {
			sr = &ServiceRevenue{ServiceID: rec.ServiceID, ServiceName: rec.ServiceName}
			perService[rec.ServiceID] = sr
			serviceOrder = append(serviceOrder, rec.ServiceID)
		}
		sr.Count++
		sr.AmountCents += rec.AmountCents
	}

	for d := dayStart; !d.After(midnight(now)); d = d.AddDate(0, 0, 1) {
		key := d.Format("2006-01-02")
		if cents, ok := daily[key]; ok {
			report.Daily = append(report.Daily, DailyBucket{Date: key, AmountCents: cents})
		}
	}
	for w := now.AddDate(0, 0, -7*(weeklyWindowWks-1)); !w.After(now); w = w.AddDate(0, 0, 7) {
		year, week := w.ISOWeek()
		if cents, ok := weekly[[2]int{year, week}]; ok {
			report.Weekly = append(report.Weekly, WeeklyBucket{Year: year, Week: week, AmountCents: cents})
		}
	}
	for _, id := range serviceOrder {
		report.ServiceRevenue = append(report.ServiceRevenue, *perService[id])
	}
	return report, nil
}

// TotalRevenue sums countable payments across every clinic.
func (a *Aggregator) TotalRevenue(ctx context.Context) (Totals, error) {
	records, err := a.source.ListPayments(ctx)
	if err != nil {
		return Totals{}, err
	}
	totals := Totals{Currency: defaultCurrency}
	for _, rec := range records {
		if !countable(rec) {
			continue
		}
		if rec.Currency != "" {
			totals.Currency = rec.Currency
		}
		totals.AmountCents += rec.AmountCents
	}
	return totals, nil
}

func countable(rec PaymentRecord) bool {
	return rec.AppointmentStatus == model.StatusCompleted && rec.Status == succeededPayment
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func isoWeekBefore(y1, w1, y2, w2 int) bool {
	if y1 != y2 {
		return y1 < y2
	}
	return w1 < w2
}
