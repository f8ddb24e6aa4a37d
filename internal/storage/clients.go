package storage

import (
	"context"

	"agendly/internal/model"
)

// FindClientByPhone looks up a client by exact normalized phone. Pass the
// booking transaction as q, or nil for a pool-level read.
func (r *Repository) FindClientByPhone(ctx context.Context, q Querier, phone string) (model.Client, bool, error) {
	var c model.Client
	err := r.querier(q).QueryRow(ctx, `
		SELECT id::text, name, phone, created_at
		FROM clients
		WHERE phone = $1
		ORDER BY created_at ASC
		LIMIT 1
	`, phone).Scan(&c.ID, &c.Name, &c.Phone, &c.CreatedAt)
	if err != nil {
		if IsNotFound(err) {
			return model.Client{}, false, nil
		}
		return model.Client{}, false, err
	}
	return c, true, nil
}

func (r *Repository) InsertClient(ctx context.Context, q Querier, name, phone string) (model.Client, error) {
	var c model.Client
	err := r.querier(q).QueryRow(ctx, `
		INSERT INTO clients (name, phone)
		VALUES ($1, $2)
		RETURNING id::text, name, phone, created_at
	`, name, phone).Scan(&c.ID, &c.Name, &c.Phone, &c.CreatedAt)
	if err != nil {
		return model.Client{}, err
	}
	return c, nil
}

func (r *Repository) IsClientBlocked(ctx context.Context, q Querier, businessID, clientID string) (bool, error) {
	var one int
	err := r.querier(q).QueryRow(ctx, `
		SELECT 1
		FROM blocked_clients
		WHERE business_id = $1 AND client_id = $2
	`, businessID, clientID).Scan(&one)
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *Repository) BlockClient(ctx context.Context, b model.BlockedClient) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO blocked_clients (business_id, client_id, no_show_count, reason)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (business_id, client_id) DO UPDATE
		SET no_show_count = EXCLUDED.no_show_count,
			reason = EXCLUDED.reason
	`, b.BusinessID, b.ClientID, b.NoShowCount, b.Reason)
	return err
}

func (r *Repository) UnblockClient(ctx context.Context, businessID, clientID string) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM blocked_clients
		WHERE business_id = $1 AND client_id = $2
	`, businessID, clientID)
	return err
}

func (r *Repository) ListBlockedClients(ctx context.Context, businessID string) ([]model.BlockedClient, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT business_id::text, client_id::text, no_show_count, COALESCE(reason, ''), blocked_at
		FROM blocked_clients
		WHERE business_id = $1
		ORDER BY blocked_at DESC
	`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.BlockedClient
	for rows.Next() {
		var b model.BlockedClient
		if err := rows.Scan(&b.BusinessID, &b.ClientID, &b.NoShowCount, &b.Reason, &b.BlockedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}
