package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"agendly/internal/entitlements"
	"agendly/internal/outbox"
	"agendly/internal/storage"
)

// StripeWebhookHandler keeps the local entitlement cache in sync with the
// billing provider. No JWT auth on this path; the signature verification is
// the auth.
type StripeWebhookHandler struct {
	repo       *storage.Repository
	outboxRepo *outbox.Repository
	logger     *slog.Logger
	secret     string
	tolerance  time.Duration
}

type StripeWebhookConfig struct {
	Secret           string
	ToleranceSeconds int
}

func NewStripeWebhookHandler(repo *storage.Repository, outboxRepo *outbox.Repository, logger *slog.Logger, cfg StripeWebhookConfig) *StripeWebhookHandler {
	tolSeconds := cfg.ToleranceSeconds
	if tolSeconds <= 0 {
		tolSeconds = 300
	}
	return &StripeWebhookHandler{
		repo:       repo,
		outboxRepo: outboxRepo,
		logger:     logger,
		secret:     strings.TrimSpace(cfg.Secret),
		tolerance:  time.Duration(tolSeconds) * time.Second,
	}
}

func (h *StripeWebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.secret == "" {
		http.Error(w, "stripe webhook not configured", http.StatusServiceUnavailable)
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if strings.TrimSpace(sigHeader) == "" {
		http.Error(w, "missing Stripe-Signature header", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1 MiB hard cap
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	evt, err := webhook.ConstructEventWithTolerance(body, sigHeader, h.secret, h.tolerance)
	if err != nil {
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	evtType := string(evt.Type)
	h.logger.Info("billing provider event received",
		"provider", "stripe",
		"provider_event_id", evt.ID,
		"event_type", evtType,
	)

	ctx := r.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Idempotency: replayed Stripe deliveries hit the unique constraint.
	if err := h.repo.InsertProviderEvent(ctx, tx, storage.ProviderEvent{
		Provider:        "stripe",
		ProviderEventID: evt.ID,
		EventType:       evtType,
		Payload:         body,
	}); err != nil {
		if errors.Is(err, storage.ErrDuplicateProviderEvent) {
			h.logger.Info("billing provider event duplicate ignored",
				"provider", "stripe", "provider_event_id", evt.ID)
			writeJSON(w, http.StatusOK, map[string]any{"status": "duplicate"})
			return
		}
		http.Error(w, "failed to record provider event", http.StatusInternalServerError)
		return
	}

	switch evtType {
	case "customer.subscription.created", "customer.subscription.updated":
		var sub stripe.Subscription
		if err := json.Unmarshal(evt.Data.Raw, &sub); err != nil {
			h.logger.Error("stripe: invalid subscription payload", "err", err)
			break
		}
		// Only active/trialing subscriptions grant the paid tier.
		if sub.Status != stripe.SubscriptionStatusActive && sub.Status != stripe.SubscriptionStatusTrialing {
			break
		}
		businessID := strings.TrimSpace(sub.Metadata["business_id"])
		tier := strings.TrimSpace(strings.ToLower(sub.Metadata["tier"]))
		if businessID == "" || tier == "" {
			h.logger.Warn("stripe: missing metadata on subscription (business_id/tier)")
			break
		}
		if err := h.applyTier(ctx, tx, businessID, tier); err != nil {
			http.Error(w, "failed to apply entitlements", http.StatusInternalServerError)
			return
		}

	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(evt.Data.Raw, &sub); err != nil {
			h.logger.Error("stripe: invalid subscription payload", "err", err)
			break
		}
		businessID := strings.TrimSpace(sub.Metadata["business_id"])
		if businessID == "" {
			h.logger.Warn("stripe: missing metadata on subscription (business_id)")
			break
		}
		// Cancellation drops the business back to the free tier.
		if err := h.applyTier(ctx, tx, businessID, entitlements.TierFree); err != nil {
			http.Error(w, "failed to apply entitlements", http.StatusInternalServerError)
			return
		}
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *StripeWebhookHandler) applyTier(ctx context.Context, tx pgx.Tx, businessID, tier string) error {
	limits := entitlements.LimitsForTier(tier)
	if err := h.repo.UpsertEntitlements(ctx, tx, storage.BusinessEntitlements{
		BusinessID:             businessID,
		Tier:                   limits.Tier,
		MaxProfessionals:       limits.MaxProfessionals,
		MaxServices:            limits.MaxServices,
		MaxMonthlyAppointments: limits.MaxMonthlyAppointments,
	}); err != nil {
		return err
	}

	payload, err := json.Marshal(map[string]any{
		"business_id":              businessID,
		"tier":                     limits.Tier,
		"max_professionals":        limits.MaxProfessionals,
		"max_services":             limits.MaxServices,
		"max_monthly_appointments": limits.MaxMonthlyAppointments,
	})
	if err != nil {
		return err
	}
	return h.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "business",
		AggregateID:   businessID,
		EventType:     outbox.EventEntitlementsUpdated,
		Payload:       payload,
	})
}
