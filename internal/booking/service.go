// Package booking owns the appointment write path: the atomic
// reserve-or-reject transaction and the dashboard status transitions.
package booking

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"agendly/internal/appointment"
	"agendly/internal/entitlements"
	"agendly/internal/model"
	"agendly/internal/outbox"
	"agendly/internal/phone"
	"agendly/internal/schedule"
	"agendly/internal/storage"
)

type Request struct {
	BusinessID     string
	ProfessionalID string
	ServiceID      string
	Date           time.Time
	StartMinute    int
	ClientName     string
	ClientPhone    string
}

type Service struct {
	repo        *storage.Repository
	outbox      *outbox.Repository
	logger      *slog.Logger
	stepMinutes int
}

func NewService(repo *storage.Repository, outboxRepo *outbox.Repository, logger *slog.Logger, stepMinutes int) *Service {
	if stepMinutes <= 0 {
		stepMinutes = schedule.DefaultStepMinutes
	}
	return &Service{
		repo:        repo,
		outbox:      outboxRepo,
		logger:      logger,
		stepMinutes: stepMinutes,
	}
}

// Book reserves a slot or rejects the request. The availability check the
// client saw is stale by definition; capacity is re-verified here inside one
// transaction, with the professional row locked, so at most `capacity`
// occupying appointments can ever exist per (professional, date, slot).
func (s *Service) Book(ctx context.Context, req Request) (model.Appointment, error) {
	if err := s.validate(&req); err != nil {
		return model.Appointment{}, err
	}

	normalized, err := phone.Normalize(req.ClientPhone)
	if err != nil {
		return model.Appointment{}, validation("client_phone", err.Error())
	}
	req.ClientPhone = normalized

	if err := s.checkWithinAvailability(ctx, req); err != nil {
		return model.Appointment{}, err
	}

	// A posted service_id must name one of the business's own active
	// services; ids are public so nothing stops a caller inventing one.
	svc, err := s.repo.Service(ctx, req.BusinessID, req.ServiceID)
	if err != nil {
		if storage.IsNotFound(err) {
			return model.Appointment{}, validation("service_id", "unknown service")
		}
		return model.Appointment{}, storageErr("load service", err)
	}
	if !svc.IsActive {
		return model.Appointment{}, validation("service_id", "service is not active")
	}

	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return model.Appointment{}, storageErr("begin", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Resolve or create the client. A client row created here survives a
	// later abort; the next attempt with the same phone reuses it.
	client, found, err := s.repo.FindClientByPhone(ctx, tx, req.ClientPhone)
	if err != nil {
		return model.Appointment{}, storageErr("find client", err)
	}
	if !found {
		client, err = s.repo.InsertClient(ctx, tx, req.ClientName, req.ClientPhone)
		if err != nil {
			return model.Appointment{}, storageErr("insert client", err)
		}
	}

	blocked, err := s.repo.IsClientBlocked(ctx, tx, req.BusinessID, client.ID)
	if err != nil {
		return model.Appointment{}, storageErr("blocklist check", err)
	}
	if blocked {
		return model.Appointment{}, ErrClientBlocked
	}

	// Lock the professional row. Every concurrent Book for this professional
	// serializes here, which makes the count below authoritative.
	prof, err := s.repo.ProfessionalForUpdate(ctx, tx, req.BusinessID, req.ProfessionalID)
	if err != nil {
		if storage.IsNotFound(err) {
			return model.Appointment{}, validation("professional_id", "unknown professional")
		}
		return model.Appointment{}, storageErr("lock professional", err)
	}
	if !prof.IsActive {
		return model.Appointment{}, validation("professional_id", "professional is not active")
	}
	capacity := prof.Capacity
	if capacity < 1 {
		capacity = 1
	}

	if err := s.enforceMonthlyLimit(ctx, tx, req); err != nil {
		return model.Appointment{}, err
	}

	count, err := s.repo.CountAtSlot(ctx, tx, req.ProfessionalID, req.Date, req.StartMinute)
	if err != nil {
		return model.Appointment{}, storageErr("count slot", err)
	}
	if count >= capacity {
		return model.Appointment{}, ErrCapacityExceeded
	}

	appt := model.Appointment{
		BusinessID:     req.BusinessID,
		ClientID:       client.ID,
		ServiceID:      req.ServiceID,
		ProfessionalID: req.ProfessionalID,
		Date:           req.Date,
		StartMinute:    req.StartMinute,
		Status:         model.StatusPending,
	}
	id, err := s.repo.InsertAppointment(ctx, tx, &appt)
	if err != nil {
		if storage.IsConflict(err) {
			return model.Appointment{}, ErrCapacityExceeded
		}
		return model.Appointment{}, storageErr("insert appointment", err)
	}
	appt.ID = id

	payload, err := json.Marshal(map[string]any{
		"appointment_id":  id,
		"business_id":     appt.BusinessID,
		"professional_id": appt.ProfessionalID,
		"service_id":      appt.ServiceID,
		"client_id":       appt.ClientID,
		"date":            appt.Date.Format("2006-01-02"),
		"time":            schedule.FormatMinute(appt.StartMinute),
		"status":          string(appt.Status),
	})
	if err != nil {
		return model.Appointment{}, storageErr("marshal event", err)
	}
	if err := s.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   id,
		EventType:     outbox.EventAppointmentPending,
		Payload:       payload,
	}); err != nil {
		return model.Appointment{}, storageErr("outbox insert", err)
	}

	if err := tx.Commit(ctx); err != nil {
		if storage.IsConflict(err) {
			return model.Appointment{}, ErrCapacityExceeded
		}
		return model.Appointment{}, storageErr("commit", err)
	}

	s.logger.Info("appointment booked",
		"appointment_id", appt.ID,
		"business_id", appt.BusinessID,
		"professional_id", appt.ProfessionalID,
		"date", appt.Date.Format("2006-01-02"),
		"time", schedule.FormatMinute(appt.StartMinute),
	)
	return appt, nil
}

// Transition moves an appointment through the dashboard lifecycle, holding
// the row lock while validating the move.
func (s *Service) Transition(ctx context.Context, businessID, appointmentID string, to model.AppointmentStatus) (model.Appointment, error) {
	if businessID == "" || appointmentID == "" {
		return model.Appointment{}, validation("appointment_id", "business_id and appointment_id required")
	}
	if !appointment.ValidStatus(to) {
		return model.Appointment{}, validation("status", "unknown status "+string(to))
	}

	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return model.Appointment{}, storageErr("begin", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := s.repo.AppointmentForUpdate(ctx, tx, businessID, appointmentID)
	if err != nil {
		if storage.IsNotFound(err) {
			return model.Appointment{}, ErrAppointmentNotFound
		}
		return model.Appointment{}, storageErr("load appointment", err)
	}

	if appt.Status == to {
		// Repeated dashboard clicks are a no-op, not an error.
		return appt, nil
	}
	if err := appointment.Transition(appt.Status, to); err != nil {
		return model.Appointment{}, err
	}

	if err := s.repo.UpdateAppointmentStatus(ctx, tx, businessID, appointmentID, to); err != nil {
		return model.Appointment{}, storageErr("update status", err)
	}

	payload, err := json.Marshal(map[string]any{
		"appointment_id": appt.ID,
		"business_id":    appt.BusinessID,
		"from":           string(appt.Status),
		"to":             string(to),
		"date":           appt.Date.Format("2006-01-02"),
		"time":           schedule.FormatMinute(appt.StartMinute),
	})
	if err != nil {
		return model.Appointment{}, storageErr("marshal event", err)
	}
	if err := s.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     outbox.EventAppointmentStatusChanged,
		Payload:       payload,
	}); err != nil {
		return model.Appointment{}, storageErr("outbox insert", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, storageErr("commit", err)
	}

	s.logger.Info("appointment status changed",
		"appointment_id", appt.ID,
		"business_id", appt.BusinessID,
		"from", string(appt.Status),
		"to", string(to),
	)
	appt.Status = to
	return appt, nil
}

func (s *Service) validate(req *Request) error {
	req.BusinessID = strings.TrimSpace(req.BusinessID)
	req.ProfessionalID = strings.TrimSpace(req.ProfessionalID)
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	req.ClientName = strings.TrimSpace(req.ClientName)

	switch {
	case req.BusinessID == "":
		return validation("business_id", "required")
	case req.ProfessionalID == "":
		return validation("professional_id", "required")
	case req.ServiceID == "":
		return validation("service_id", "required")
	case req.ClientName == "":
		return validation("client_name", "required")
	case req.Date.IsZero():
		return validation("date", "required")
	case req.StartMinute < 0 || req.StartMinute >= schedule.MinutesPerDay:
		return validation("time", "out of range")
	}
	return nil
}

// checkWithinAvailability rejects times that are not on the business's slot
// grid for that weekday. Reads outside the transaction: the rules are owner
// data and change rarely.
func (s *Service) checkWithinAvailability(ctx context.Context, req Request) error {
	rules, err := s.repo.ActiveRules(ctx, req.BusinessID)
	if err != nil {
		return storageErr("load rules", err)
	}
	weekday := int(req.Date.Weekday())
	for _, rule := range rules {
		if rule.Weekday != weekday || !rule.IsActive {
			continue
		}
		if req.StartMinute >= rule.StartMinute &&
			req.StartMinute < rule.EndMinute &&
			(req.StartMinute-rule.StartMinute)%s.stepMinutes == 0 {
			return nil
		}
	}
	return validation("time", "outside business availability")
}

// enforceMonthlyLimit applies the tier's monthly appointment cap inside the
// booking transaction. Businesses without an entitlement row get the free
// tier defaults.
func (s *Service) enforceMonthlyLimit(ctx context.Context, tx pgx.Tx, req Request) error {
	ent, ok, err := s.repo.GetEntitlements(ctx, tx, req.BusinessID)
	if err != nil {
		return storageErr("load entitlements", err)
	}
	max := entitlements.LimitsForTier(entitlements.TierFree).MaxMonthlyAppointments
	if ok {
		max = ent.MaxMonthlyAppointments
	}
	if max <= 0 {
		return nil
	}

	monthStart := time.Date(req.Date.Year(), req.Date.Month(), 1, 0, 0, 0, 0, time.UTC)
	monthEnd := monthStart.AddDate(0, 1, 0)
	count, err := s.repo.CountOccupyingInRange(ctx, tx, req.BusinessID, monthStart, monthEnd)
	if err != nil {
		return storageErr("count monthly appointments", err)
	}
	if count >= max {
		return ErrMonthlyLimitReached
	}
	return nil
}
