package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/google/uuid"

	"agendly/internal/model"
)

const (
	defaultRuleStartMinute = 540  // 09:00
	defaultRuleEndMinute   = 1080 // 18:00
)

func (r *Repository) ActiveRules(ctx context.Context, businessID string) ([]model.AvailabilityRule, error) {
	return r.listRules(ctx, businessID, true)
}

func (r *Repository) ListRules(ctx context.Context, businessID string) ([]model.AvailabilityRule, error) {
	return r.listRules(ctx, businessID, false)
}

func (r *Repository) listRules(ctx context.Context, businessID string, activeOnly bool) ([]model.AvailabilityRule, error) {
	query := `
		SELECT business_id::text, weekday, start_minute, end_minute, is_active
		FROM availability_rules
		WHERE business_id = $1`
	if activeOnly {
		query += ` AND is_active`
	}
	query += ` ORDER BY weekday ASC`

	rows, err := r.pool.Query(ctx, query, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []model.AvailabilityRule
	for rows.Next() {
		var rule model.AvailabilityRule
		if err := rows.Scan(&rule.BusinessID, &rule.Weekday, &rule.StartMinute, &rule.EndMinute, &rule.IsActive); err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return rules, nil
}

// UpsertRule creates or replaces the single rule for (business, weekday).
func (r *Repository) UpsertRule(ctx context.Context, rule model.AvailabilityRule) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO availability_rules (business_id, weekday, start_minute, end_minute, is_active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (business_id, weekday) DO UPDATE
		SET start_minute = EXCLUDED.start_minute,
			end_minute = EXCLUDED.end_minute,
			is_active = EXCLUDED.is_active,
			updated_at = now()
	`, rule.BusinessID, rule.Weekday, rule.StartMinute, rule.EndMinute, rule.IsActive)
	return err
}

// SetRuleActive toggles a weekday. Toggling a weekday that has no rule yet
// creates one with the default 09:00-18:00 window.
func (r *Repository) SetRuleActive(ctx context.Context, businessID string, weekday int, active bool) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO availability_rules (business_id, weekday, start_minute, end_minute, is_active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (business_id, weekday) DO UPDATE
		SET is_active = EXCLUDED.is_active,
			updated_at = now()
	`, businessID, weekday, defaultRuleStartMinute, defaultRuleEndMinute, active)
	return err
}

func (r *Repository) Professional(ctx context.Context, businessID, professionalID string) (model.Professional, error) {
	var p model.Professional
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, business_id::text, name, capacity, is_active
		FROM professionals
		WHERE id = $1 AND business_id = $2
	`, professionalID, businessID).Scan(&p.ID, &p.BusinessID, &p.Name, &p.Capacity, &p.IsActive)
	return p, err
}

// ProfessionalForUpdate locks the professional row for the duration of the
// booking transaction, serializing concurrent bookings per professional.
func (r *Repository) ProfessionalForUpdate(ctx context.Context, tx pgx.Tx, businessID, professionalID string) (model.Professional, error) {
	var p model.Professional
	err := tx.QueryRow(ctx, `
		SELECT id::text, business_id::text, name, capacity, is_active
		FROM professionals
		WHERE id = $1 AND business_id = $2
		FOR UPDATE
	`, professionalID, businessID).Scan(&p.ID, &p.BusinessID, &p.Name, &p.Capacity, &p.IsActive)
	return p, err
}

func (r *Repository) CreateProfessional(ctx context.Context, businessID, name string, capacity int) (string, error) {
	id := uuid.NewString()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO professionals (id, business_id, name, capacity, is_active)
		VALUES ($1, $2, $3, $4, TRUE)
	`, id, businessID, name, capacity)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *Repository) UpdateProfessional(ctx context.Context, p model.Professional) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE professionals
		SET name = $3,
			capacity = $4,
			is_active = $5,
			updated_at = now()
		WHERE id = $1 AND business_id = $2
	`, p.ID, p.BusinessID, p.Name, p.Capacity, p.IsActive)
	return err
}

func (r *Repository) ListProfessionals(ctx context.Context, businessID string, activeOnly bool) ([]model.Professional, error) {
	query := `
		SELECT id::text, business_id::text, name, capacity, is_active
		FROM professionals
		WHERE business_id = $1`
	if activeOnly {
		query += ` AND is_active`
	}
	query += ` ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Professional
	for rows.Next() {
		var p model.Professional
		if err := rows.Scan(&p.ID, &p.BusinessID, &p.Name, &p.Capacity, &p.IsActive); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *Repository) CountActiveProfessionals(ctx context.Context, businessID string) (int, error) {
	var cnt int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM professionals WHERE business_id = $1 AND is_active
	`, businessID).Scan(&cnt)
	return cnt, err
}

func (r *Repository) CountActiveServices(ctx context.Context, businessID string) (int, error) {
	var cnt int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM services WHERE business_id = $1 AND is_active
	`, businessID).Scan(&cnt)
	return cnt, err
}

func (r *Repository) CreateService(ctx context.Context, svc model.Service) (string, error) {
	id := uuid.NewString()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO services (id, business_id, name, category, duration_minutes, price, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE)
	`, id, svc.BusinessID, svc.Name, svc.Category, svc.DurationMins, svc.Price)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *Repository) UpdateService(ctx context.Context, svc model.Service) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE services
		SET name = $3,
			category = $4,
			duration_minutes = $5,
			price = $6,
			is_active = $7,
			updated_at = now()
		WHERE id = $1 AND business_id = $2
	`, svc.ID, svc.BusinessID, svc.Name, svc.Category, svc.DurationMins, svc.Price, svc.IsActive)
	return err
}

func (r *Repository) ListServices(ctx context.Context, businessID string, activeOnly bool) ([]model.Service, error) {
	query := `
		SELECT id::text, business_id::text, name, category, duration_minutes, price::text, is_active
		FROM services
		WHERE business_id = $1`
	if activeOnly {
		query += ` AND is_active`
	}
	query += ` ORDER BY category ASC, name ASC`

	rows, err := r.pool.Query(ctx, query, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Service
	for rows.Next() {
		var s model.Service
		if err := rows.Scan(&s.ID, &s.BusinessID, &s.Name, &s.Category, &s.DurationMins, &s.Price, &s.IsActive); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *Repository) Service(ctx context.Context, businessID, serviceID string) (model.Service, error) {
	var s model.Service
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, business_id::text, name, category, duration_minutes, price::text, is_active
		FROM services
		WHERE id = $1 AND business_id = $2
	`, serviceID, businessID).Scan(&s.ID, &s.BusinessID, &s.Name, &s.Category, &s.DurationMins, &s.Price, &s.IsActive)
	return s, err
}
