package model

import "time"

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusNoShow    AppointmentStatus = "no_show"
	StatusCompleted AppointmentStatus = "completed"
)

// AllStatuses lists every recognized appointment status.
var AllStatuses = []AppointmentStatus{
	StatusPending, StatusConfirmed, StatusCancelled, StatusNoShow, StatusCompleted,
}

// OccupiesCapacity reports whether an appointment in this status counts
// against the professional's concurrent capacity. Cancelled, no-show and
// completed appointments release the slot.
func (s AppointmentStatus) OccupiesCapacity() bool {
	return s == StatusPending || s == StatusConfirmed
}

// OccupyingStatuses returns the statuses that hold capacity. The ledger
// queries build their status filters from this, so the SQL and the state
// machine cannot drift apart.
func OccupyingStatuses() []AppointmentStatus {
	var out []AppointmentStatus
	for _, s := range AllStatuses {
		if s.OccupiesCapacity() {
			out = append(out, s)
		}
	}
	return out
}

// AvailabilityRule is one weekly recurring open window. At most one rule
// exists per (business, weekday); start/end are minutes of day.
type AvailabilityRule struct {
	BusinessID  string
	Weekday     int // 0=Sunday .. 6=Saturday
	StartMinute int
	EndMinute   int
	IsActive    bool
}

type Professional struct {
	ID         string
	BusinessID string
	Name       string
	Capacity   int // max concurrent clients per start-time slot
	IsActive   bool
}

type Service struct {
	ID           string
	BusinessID   string
	Name         string
	Category     string
	DurationMins int
	Price        string
	IsActive     bool
}

// Appointment rows are never deleted; they are the audit trail and the
// input to the capacity ledger.
type Appointment struct {
	ID             string
	BusinessID     string
	ClientID       string
	ServiceID      string
	ProfessionalID string
	Date           time.Time // calendar date, midnight UTC
	StartMinute    int
	Status         AppointmentStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Client struct {
	ID        string
	Name      string
	Phone     string // stored normalized
	CreatedAt time.Time
}

type BlockedClient struct {
	BusinessID  string
	ClientID    string
	NoShowCount int
	Reason      string
	BlockedAt   time.Time
}
