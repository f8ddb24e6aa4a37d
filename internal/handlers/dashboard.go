package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"agendly/internal/appointment"
	"agendly/internal/booking"
	"agendly/internal/entitlements"
	"agendly/internal/model"
	"agendly/internal/observability"
	"agendly/internal/schedule"
	"agendly/internal/storage"
)

// DashboardHandler serves the business-owner API. Every route is scoped by
// the X-Business-Id header; the gateway in front of this service is expected
// to have authenticated the owner already.
type DashboardHandler struct {
	repo    *storage.Repository
	svc     *booking.Service
	metrics *observability.BookingMetrics
	logger  *slog.Logger
}

func NewDashboardHandler(repo *storage.Repository, svc *booking.Service, metrics *observability.BookingMetrics, logger *slog.Logger) *DashboardHandler {
	return &DashboardHandler{repo: repo, svc: svc, metrics: metrics, logger: logger}
}

func businessIDFromHeader(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Business-Id"))
}

// Availability handles GET (list all weekday rules) and PUT (upsert one).
func (h *DashboardHandler) Availability(w http.ResponseWriter, r *http.Request) {
	businessID := businessIDFromHeader(r)
	if businessID == "" {
		http.Error(w, "missing X-Business-Id", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		rules, err := h.repo.ListRules(r.Context(), businessID)
		if err != nil {
			http.Error(w, "failed to list availability", http.StatusInternalServerError)
			return
		}
		type ruleItem struct {
			Weekday     int    `json:"weekday"`
			StartMinute int    `json:"start_minute"`
			EndMinute   int    `json:"end_minute"`
			Start       string `json:"start"`
			End         string `json:"end"`
			IsActive    bool   `json:"is_active"`
		}
		items := make([]ruleItem, 0, len(rules))
		for _, rule := range rules {
			items = append(items, ruleItem{
				Weekday:     rule.Weekday,
				StartMinute: rule.StartMinute,
				EndMinute:   rule.EndMinute,
				Start:       schedule.FormatMinute(rule.StartMinute),
				End:         schedule.FormatMinute(rule.EndMinute),
				IsActive:    rule.IsActive,
			})
		}
		writeJSON(w, http.StatusOK, items)

	case http.MethodPut:
		var req struct {
			Weekday     int  `json:"weekday"`
			StartMinute int  `json:"start_minute"`
			EndMinute   int  `json:"end_minute"`
			IsActive    bool `json:"is_active"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		if req.Weekday < 0 || req.Weekday > 6 {
			http.Error(w, "weekday must be between 0 and 6", http.StatusBadRequest)
			return
		}
		if req.StartMinute < 0 || req.EndMinute > schedule.MinutesPerDay || req.StartMinute >= req.EndMinute {
			http.Error(w, "invalid start_minute/end_minute", http.StatusBadRequest)
			return
		}
		err := h.repo.UpsertRule(r.Context(), model.AvailabilityRule{
			BusinessID:  businessID,
			Weekday:     req.Weekday,
			StartMinute: req.StartMinute,
			EndMinute:   req.EndMinute,
			IsActive:    req.IsActive,
		})
		if err != nil {
			http.Error(w, "failed to save availability", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// ToggleAvailability flips a weekday open or closed without touching the
// time window. Closing never deletes the rule row.
func (h *DashboardHandler) ToggleAvailability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	businessID := businessIDFromHeader(r)
	if businessID == "" {
		http.Error(w, "missing X-Business-Id", http.StatusBadRequest)
		return
	}

	var req struct {
		Weekday  int  `json:"weekday"`
		IsActive bool `json:"is_active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if req.Weekday < 0 || req.Weekday > 6 {
		http.Error(w, "weekday must be between 0 and 6", http.StatusBadRequest)
		return
	}
	if err := h.repo.SetRuleActive(r.Context(), businessID, req.Weekday, req.IsActive); err != nil {
		http.Error(w, "failed to update availability", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Professionals handles GET (list), POST (create, gated by the tier's
// professional limit), and PUT (update).
func (h *DashboardHandler) Professionals(w http.ResponseWriter, r *http.Request) {
	businessID := businessIDFromHeader(r)
	if businessID == "" {
		http.Error(w, "missing X-Business-Id", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		activeOnly := r.URL.Query().Get("active") == "true"
		pros, err := h.repo.ListProfessionals(r.Context(), businessID, activeOnly)
		if err != nil {
			http.Error(w, "failed to list professionals", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, pros)

	case http.MethodPost:
		var req struct {
			Name     string `json:"name"`
			Capacity int    `json:"capacity"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" {
			http.Error(w, "name is required", http.StatusBadRequest)
			return
		}
		if req.Capacity < 1 {
			req.Capacity = 1
		}

		if err := h.checkProfessionalLimit(r, businessID); err != nil {
			if errors.Is(err, errUpgradeRequired) {
				http.Error(w, "professional limit reached for current plan", http.StatusPaymentRequired)
				return
			}
			http.Error(w, "entitlements check failed", http.StatusInternalServerError)
			return
		}

		id, err := h.repo.CreateProfessional(r.Context(), businessID, req.Name, req.Capacity)
		if err != nil {
			http.Error(w, "failed to create professional", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"id": id})

	case http.MethodPut:
		var req struct {
			ID       string `json:"id"`
			Name     string `json:"name"`
			Capacity int    `json:"capacity"`
			IsActive *bool  `json:"is_active"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		req.ID = strings.TrimSpace(req.ID)
		req.Name = strings.TrimSpace(req.Name)
		if req.ID == "" || req.Name == "" {
			http.Error(w, "id and name are required", http.StatusBadRequest)
			return
		}
		if req.Capacity < 1 {
			req.Capacity = 1
		}
		isActive := true
		if req.IsActive != nil {
			isActive = *req.IsActive
		}
		err := h.repo.UpdateProfessional(r.Context(), model.Professional{
			ID:         req.ID,
			BusinessID: businessID,
			Name:       req.Name,
			Capacity:   req.Capacity,
			IsActive:   isActive,
		})
		if err != nil {
			http.Error(w, "failed to update professional", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

var errUpgradeRequired = errors.New("plan limit reached")

func (h *DashboardHandler) checkProfessionalLimit(r *http.Request, businessID string) error {
	ent, ok, err := h.repo.GetEntitlements(r.Context(), nil, businessID)
	if err != nil {
		return err
	}
	max := entitlements.LimitsForTier(entitlements.TierFree).MaxProfessionals
	if ok {
		max = ent.MaxProfessionals
	}
	if max <= 0 {
		return nil
	}
	count, err := h.repo.CountActiveProfessionals(r.Context(), businessID)
	if err != nil {
		return err
	}
	if count >= max {
		return errUpgradeRequired
	}
	return nil
}

func (h *DashboardHandler) checkServiceLimit(r *http.Request, businessID string) error {
	ent, ok, err := h.repo.GetEntitlements(r.Context(), nil, businessID)
	if err != nil {
		return err
	}
	max := entitlements.LimitsForTier(entitlements.TierFree).MaxServices
	if ok {
		max = ent.MaxServices
	}
	if max <= 0 {
		return nil
	}
	count, err := h.repo.CountActiveServices(r.Context(), businessID)
	if err != nil {
		return err
	}
	if count >= max {
		return errUpgradeRequired
	}
	return nil
}

// Services handles GET (list), POST (create, gated by the tier's service
// limit), and PUT (update).
func (h *DashboardHandler) Services(w http.ResponseWriter, r *http.Request) {
	businessID := businessIDFromHeader(r)
	if businessID == "" {
		http.Error(w, "missing X-Business-Id", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		activeOnly := r.URL.Query().Get("active") == "true"
		services, err := h.repo.ListServices(r.Context(), businessID, activeOnly)
		if err != nil {
			http.Error(w, "failed to list services", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, services)

	case http.MethodPost:
		svc, ok := h.decodeService(w, r, businessID, false)
		if !ok {
			return
		}
		if err := h.checkServiceLimit(r, businessID); err != nil {
			if errors.Is(err, errUpgradeRequired) {
				http.Error(w, "service limit reached for current plan", http.StatusPaymentRequired)
				return
			}
			http.Error(w, "entitlements check failed", http.StatusInternalServerError)
			return
		}
		id, err := h.repo.CreateService(r.Context(), svc)
		if err != nil {
			http.Error(w, "failed to create service", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"id": id})

	case http.MethodPut:
		svc, ok := h.decodeService(w, r, businessID, true)
		if !ok {
			return
		}
		if err := h.repo.UpdateService(r.Context(), svc); err != nil {
			http.Error(w, "failed to update service", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *DashboardHandler) decodeService(w http.ResponseWriter, r *http.Request, businessID string, requireID bool) (model.Service, bool) {
	var req struct {
		ID           string  `json:"id"`
		Name         string  `json:"name"`
		Category     string  `json:"category"`
		DurationMins int     `json:"duration_minutes"`
		Price        float64 `json:"price"`
		IsActive     *bool   `json:"is_active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return model.Service{}, false
	}
	req.ID = strings.TrimSpace(req.ID)
	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)
	if req.Name == "" || req.DurationMins <= 0 {
		http.Error(w, "name and duration_minutes required", http.StatusBadRequest)
		return model.Service{}, false
	}
	if requireID && req.ID == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return model.Service{}, false
	}
	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}
	return model.Service{
		ID:           req.ID,
		BusinessID:   businessID,
		Name:         req.Name,
		Category:     req.Category,
		DurationMins: req.DurationMins,
		Price:        strconv.FormatFloat(req.Price, 'f', 2, 64),
		IsActive:     isActive,
	}, true
}

// Appointments lists a day's schedule (?date=YYYY-MM-DD) or the most recent
// bookings when no date is given.
func (h *DashboardHandler) Appointments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	businessID := businessIDFromHeader(r)
	if businessID == "" {
		http.Error(w, "missing X-Business-Id", http.StatusBadRequest)
		return
	}

	var (
		appts []model.Appointment
		err   error
	)
	if dateStr := strings.TrimSpace(r.URL.Query().Get("date")); dateStr != "" {
		var date time.Time
		date, err = time.ParseInLocation("2006-01-02", dateStr, time.UTC)
		if err != nil {
			http.Error(w, "invalid date", http.StatusBadRequest)
			return
		}
		appts, err = h.repo.ListAppointmentsByDate(r.Context(), businessID, date)
	} else {
		limit := 50
		if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
			if n, atoiErr := strconv.Atoi(raw); atoiErr == nil && n > 0 && n <= 200 {
				limit = n
			}
		}
		appts, err = h.repo.ListRecentAppointments(r.Context(), businessID, limit)
	}
	if err != nil {
		http.Error(w, "failed to list appointments", http.StatusInternalServerError)
		return
	}

	type apptItem struct {
		ID             string `json:"id"`
		ClientID       string `json:"client_id"`
		ServiceID      string `json:"service_id"`
		ProfessionalID string `json:"professional_id"`
		Date           string `json:"date"`
		Time           string `json:"time"`
		Status         string `json:"status"`
		CreatedAt      string `json:"created_at"`
	}
	items := make([]apptItem, 0, len(appts))
	for _, a := range appts {
		items = append(items, apptItem{
			ID:             a.ID,
			ClientID:       a.ClientID,
			ServiceID:      a.ServiceID,
			ProfessionalID: a.ProfessionalID,
			Date:           a.Date.Format("2006-01-02"),
			Time:           schedule.FormatMinute(a.StartMinute),
			Status:         string(a.Status),
			CreatedAt:      a.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, items)
}

// UpdateAppointmentStatus drives the appointment lifecycle from the
// dashboard. The dashboard surface may name the exact failure, unlike the
// public one.
func (h *DashboardHandler) UpdateAppointmentStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	businessID := businessIDFromHeader(r)
	if businessID == "" {
		http.Error(w, "missing X-Business-Id", http.StatusBadRequest)
		return
	}

	var req struct {
		AppointmentID string `json:"appointment_id"`
		Status        string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	to := model.AppointmentStatus(strings.TrimSpace(req.Status))

	appt, err := h.svc.Transition(r.Context(), businessID, req.AppointmentID, to)
	if err != nil {
		h.metrics.ObserveTransition(string(to), "rejected")

		var verr *booking.ValidationError
		var invalid *appointment.InvalidTransitionError
		switch {
		case errors.As(err, &verr):
			http.Error(w, verr.Error(), http.StatusBadRequest)
		case errors.Is(err, booking.ErrAppointmentNotFound):
			http.Error(w, "appointment not found", http.StatusNotFound)
		case errors.As(err, &invalid):
			http.Error(w, invalid.Error(), http.StatusConflict)
		default:
			h.logger.Error("status transition failed", "err", err, "appointment_id", req.AppointmentID)
			http.Error(w, "failed to update status", http.StatusInternalServerError)
		}
		return
	}

	h.metrics.ObserveTransition(string(to), "applied")
	writeJSON(w, http.StatusOK, map[string]any{
		"appointment_id": appt.ID,
		"status":         string(appt.Status),
	})
}

// BlockClient adds a client to the business's blocklist, recording the
// current no-show count as context for the owner.
func (h *DashboardHandler) BlockClient(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	businessID := businessIDFromHeader(r)
	if businessID == "" {
		http.Error(w, "missing X-Business-Id", http.StatusBadRequest)
		return
	}

	var req struct {
		ClientID string `json:"client_id"`
		Reason   string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.ClientID = strings.TrimSpace(req.ClientID)
	if req.ClientID == "" {
		http.Error(w, "client_id is required", http.StatusBadRequest)
		return
	}

	noShows, err := h.repo.CountNoShows(r.Context(), businessID, req.ClientID)
	if err != nil {
		http.Error(w, "failed to load client history", http.StatusInternalServerError)
		return
	}
	err = h.repo.BlockClient(r.Context(), model.BlockedClient{
		BusinessID:  businessID,
		ClientID:    req.ClientID,
		NoShowCount: noShows,
		Reason:      strings.TrimSpace(req.Reason),
	})
	if err != nil {
		http.Error(w, "failed to block client", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DashboardHandler) UnblockClient(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	businessID := businessIDFromHeader(r)
	if businessID == "" {
		http.Error(w, "missing X-Business-Id", http.StatusBadRequest)
		return
	}

	var req struct {
		ClientID string `json:"client_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.ClientID = strings.TrimSpace(req.ClientID)
	if req.ClientID == "" {
		http.Error(w, "client_id is required", http.StatusBadRequest)
		return
	}

	if err := h.repo.UnblockClient(r.Context(), businessID, req.ClientID); err != nil {
		http.Error(w, "failed to unblock client", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DashboardHandler) ListBlockedClients(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	businessID := businessIDFromHeader(r)
	if businessID == "" {
		http.Error(w, "missing X-Business-Id", http.StatusBadRequest)
		return
	}

	blocked, err := h.repo.ListBlockedClients(r.Context(), businessID)
	if err != nil {
		http.Error(w, "failed to list blocked clients", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, blocked)
}
