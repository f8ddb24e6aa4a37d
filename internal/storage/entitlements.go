package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

var ErrDuplicateProviderEvent = errors.New("provider event already processed")

// BusinessEntitlements is the locally cached view of a business's
// subscription tier; the billing provider is the source of truth.
type BusinessEntitlements struct {
	BusinessID             string
	Tier                   string
	MaxProfessionals       int
	MaxServices            int
	MaxMonthlyAppointments int
	UpdatedAt              time.Time
}

func (r *Repository) UpsertEntitlements(ctx context.Context, q Querier, ent BusinessEntitlements) error {
	_, err := r.querier(q).Exec(ctx, `
		INSERT INTO business_entitlements (business_id, tier, max_professionals, max_services, max_monthly_appointments)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (business_id) DO UPDATE
		SET tier = EXCLUDED.tier,
			max_professionals = EXCLUDED.max_professionals,
			max_services = EXCLUDED.max_services,
			max_monthly_appointments = EXCLUDED.max_monthly_appointments,
			updated_at = now()
	`, ent.BusinessID, ent.Tier, ent.MaxProfessionals, ent.MaxServices, ent.MaxMonthlyAppointments)
	return err
}

func (r *Repository) GetEntitlements(ctx context.Context, q Querier, businessID string) (BusinessEntitlements, bool, error) {
	var ent BusinessEntitlements
	err := r.querier(q).QueryRow(ctx, `
		SELECT business_id::text, tier, max_professionals, max_services, max_monthly_appointments, updated_at
		FROM business_entitlements
		WHERE business_id = $1
	`, businessID).Scan(&ent.BusinessID, &ent.Tier, &ent.MaxProfessionals, &ent.MaxServices, &ent.MaxMonthlyAppointments, &ent.UpdatedAt)
	if err != nil {
		if IsNotFound(err) {
			return BusinessEntitlements{}, false, nil
		}
		return BusinessEntitlements{}, false, err
	}
	return ent, true, nil
}

// ProviderEvent records a billing-provider webhook delivery for idempotency:
// replayed events hit the unique constraint and are ignored.
type ProviderEvent struct {
	Provider        string
	ProviderEventID string
	EventType       string
	Payload         []byte
}

func (r *Repository) InsertProviderEvent(ctx context.Context, q Querier, evt ProviderEvent) error {
	_, err := r.querier(q).Exec(ctx, `
		INSERT INTO billing_provider_events (provider, provider_event_id, event_type, payload)
		VALUES ($1, $2, $3, $4)
	`, evt.Provider, evt.ProviderEventID, evt.EventType, evt.Payload)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateProviderEvent
		}
		return err
	}
	return nil
}
