package model

import "time"

// Appointment status values. Scheduled is the only non-terminal state:
// an appointment transitions exactly once to completed or cancelled.
const (
	StatusScheduled = "scheduled"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// Roles carried in the authorization context forwarded by the gateway.
const (
	RoleSuperAdmin  = "super_admin"
	RoleClinicAdmin = "clinic_admin"
	RoleDoctor      = "doctor"
	RoleClient      = "client"
)

type Clinic struct {
	ID        string
	Name      string
	Address   string
	Phone     string
	CreatedAt time.Time
}

type Service struct {
	ID              string
	ClinicID        string
	Name            string
	DurationMinutes int
	PriceCents      int64
	CreatedAt       time.Time
}

type Doctor struct {
	ID        string
	ClinicID  string
	Name      string
	Email     string
	Phone     string
	Specialty string
	CreatedAt time.Time
}

// Appointment carries a client contact snapshot captured at booking time;
// later edits to the client record never rewrite it.
type Appointment struct {
	ID          string
	ClinicID    string
	ServiceID   string
	DoctorID    string
	ClientID    string
	ClientName  string
	ClientEmail string
	ClientPhone string
	StartTime   time.Time
	EndTime     time.Time
	Status      string
	Notes       string
	CancelledAt *time.Time
	CompletedAt *time.Time
	CreatedAt   time.Time
}

type Payment struct {
	ID            string
	AppointmentID string
	AmountCents   int64
	Currency      string
	Status        string
	Provider      string
	ProviderRef   string
	PaidAt        time.Time
}
