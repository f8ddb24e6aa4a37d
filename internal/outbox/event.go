package outbox

// Event types published by this service. Topic name == event type.
const (
	EventAppointmentPending       = "booking.appointment.pending.v1"
	EventAppointmentStatusChanged = "booking.appointment.status_changed.v1"
	EventEntitlementsUpdated      = "billing.entitlements.updated.v1"
)

type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}
