package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"agendly/internal/booking"
	"agendly/internal/observability"
	"agendly/internal/schedule"
)

// PublicHandler serves the unauthenticated booking page API: open dates,
// free slots, and the booking POST itself.
type PublicHandler struct {
	resolver *schedule.Resolver
	svc      *booking.Service
	metrics  *observability.BookingMetrics
	logger   *slog.Logger
	now      func() time.Time
}

func NewPublicHandler(resolver *schedule.Resolver, svc *booking.Service, metrics *observability.BookingMetrics, logger *slog.Logger) *PublicHandler {
	return &PublicHandler{
		resolver: resolver,
		svc:      svc,
		metrics:  metrics,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type bookRequest struct {
	BusinessID     string `json:"business_id"`
	ProfessionalID string `json:"professional_id"`
	ServiceID      string `json:"service_id"`
	Date           string `json:"date"`
	Time           string `json:"time"`
	ClientName     string `json:"client_name"`
	ClientPhone    string `json:"client_phone"`
}

type bookResponse struct {
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
	Date          string `json:"date"`
	Time          string `json:"time"`
}

type slotItem struct {
	Time        string `json:"time"`
	StartMinute int    `json:"start_minute"`
}

// The public surface never says why a booking was refused beyond this.
// Blocklist membership in particular must not be inferable from the response.
const genericBookRefusal = "unable to book this time, please contact the business"

func (h *PublicHandler) Dates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	businessID := strings.TrimSpace(r.URL.Query().Get("business_id"))
	if businessID == "" {
		http.Error(w, "business_id required", http.StatusBadRequest)
		return
	}

	dates, err := h.resolver.OpenDates(r.Context(), businessID, schedule.DefaultHorizonDays, h.now())
	if err != nil {
		h.logger.Error("open dates lookup failed", "err", err, "business_id", businessID)
		http.Error(w, "failed to load dates", http.StatusInternalServerError)
		return
	}

	out := make([]string, 0, len(dates))
	for _, d := range dates {
		out = append(out, d.Format("2006-01-02"))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *PublicHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	businessID := strings.TrimSpace(r.URL.Query().Get("business_id"))
	professionalID := strings.TrimSpace(r.URL.Query().Get("professional_id"))
	dateStr := strings.TrimSpace(r.URL.Query().Get("date"))
	if businessID == "" || professionalID == "" || dateStr == "" {
		http.Error(w, "business_id, professional_id, and date are required", http.StatusBadRequest)
		return
	}
	date, err := time.ParseInLocation("2006-01-02", dateStr, time.UTC)
	if err != nil {
		http.Error(w, "invalid date", http.StatusBadRequest)
		return
	}

	h.metrics.ObserveSlotQuery()

	minutes, err := h.resolver.Resolve(r.Context(), businessID, professionalID, date, h.now())
	if err != nil {
		h.logger.Error("slot resolution failed", "err", err, "business_id", businessID, "professional_id", professionalID)
		http.Error(w, "failed to load slots", http.StatusInternalServerError)
		return
	}

	items := make([]slotItem, 0, len(minutes))
	for _, m := range minutes {
		items = append(items, slotItem{Time: schedule.FormatMinute(m), StartMinute: m})
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *PublicHandler) Book(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	date, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(req.Date), time.UTC)
	if err != nil {
		http.Error(w, "invalid date", http.StatusBadRequest)
		return
	}
	startMinute, err := schedule.ParseClock(strings.TrimSpace(req.Time))
	if err != nil {
		http.Error(w, "invalid time", http.StatusBadRequest)
		return
	}

	started := h.now()
	appt, err := h.svc.Book(r.Context(), booking.Request{
		BusinessID:     req.BusinessID,
		ProfessionalID: req.ProfessionalID,
		ServiceID:      req.ServiceID,
		Date:           date,
		StartMinute:    startMinute,
		ClientName:     req.ClientName,
		ClientPhone:    req.ClientPhone,
	})
	elapsed := h.now().Sub(started).Seconds()
	if err != nil {
		h.metrics.ObserveBooking(bookOutcome(err), elapsed)

		var verr *booking.ValidationError
		switch {
		case errors.As(err, &verr):
			http.Error(w, verr.Error(), http.StatusBadRequest)
		case errors.Is(err, booking.ErrCapacityExceeded),
			errors.Is(err, booking.ErrClientBlocked),
			errors.Is(err, booking.ErrMonthlyLimitReached):
			http.Error(w, genericBookRefusal, http.StatusConflict)
		default:
			h.logger.Error("booking failed", "err", err, "business_id", req.BusinessID)
			http.Error(w, "booking temporarily unavailable, try again", http.StatusServiceUnavailable)
		}
		return
	}

	h.metrics.ObserveBooking("booked", elapsed)
	writeJSON(w, http.StatusCreated, bookResponse{
		AppointmentID: appt.ID,
		Status:        string(appt.Status),
		Date:          appt.Date.Format("2006-01-02"),
		Time:          schedule.FormatMinute(appt.StartMinute),
	})
}

func bookOutcome(err error) string {
	var verr *booking.ValidationError
	switch {
	case errors.As(err, &verr):
		return "invalid"
	case errors.Is(err, booking.ErrCapacityExceeded):
		return "slot_full"
	case errors.Is(err, booking.ErrClientBlocked):
		return "blocked"
	case errors.Is(err, booking.ErrMonthlyLimitReached):
		return "limit_reached"
	default:
		return "error"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
