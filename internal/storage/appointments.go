package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"agendly/internal/model"
)

// occupyingStatusList is the SQL IN-list of statuses that hold capacity,
// derived from the model so the ledger queries and the state machine share
// one definition.
var occupyingStatusList = func() string {
	parts := make([]string, 0, len(model.AllStatuses))
	for _, s := range model.OccupyingStatuses() {
		parts = append(parts, "'"+string(s)+"'")
	}
	return strings.Join(parts, ", ")
}()

func (r *Repository) InsertAppointment(ctx context.Context, tx pgx.Tx, appt *model.Appointment) (string, error) {
	var id string
	err := tx.QueryRow(ctx, `
		INSERT INTO appointments
			(business_id, client_id, service_id, professional_id, date, start_minute, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id::text
	`, appt.BusinessID, appt.ClientID, appt.ServiceID, appt.ProfessionalID,
		appt.Date, appt.StartMinute, string(appt.Status)).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

// CountAtSlot counts capacity-occupying appointments for one slot. Called
// inside the booking transaction, after the professional row is locked, so
// the count cannot be invalidated by a concurrent booking.
func (r *Repository) CountAtSlot(ctx context.Context, tx pgx.Tx, professionalID string, date time.Time, startMinute int) (int, error) {
	var cnt int
	err := tx.QueryRow(ctx, fmt.Sprintf(`
		SELECT COUNT(*)
		FROM appointments
		WHERE professional_id = $1
		  AND date = $2
		  AND start_minute = $3
		  AND status IN (%s)
	`, occupyingStatusList), professionalID, date, startMinute).Scan(&cnt)
	return cnt, err
}

// CountByStartMinute is the read-side capacity ledger for one professional
// and date, keyed by minute-of-day. Only pending and confirmed occupy
// capacity.
func (r *Repository) CountByStartMinute(ctx context.Context, professionalID string, date time.Time) (map[int]int, error) {
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		SELECT start_minute, COUNT(*)
		FROM appointments
		WHERE professional_id = $1
		  AND date = $2
		  AND status IN (%s)
		GROUP BY start_minute
	`, occupyingStatusList), professionalID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[int]int)
	for rows.Next() {
		var minute, cnt int
		if err := rows.Scan(&minute, &cnt); err != nil {
			return nil, err
		}
		counts[minute] = cnt
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return counts, nil
}

func (r *Repository) AppointmentForUpdate(ctx context.Context, tx pgx.Tx, businessID, appointmentID string) (model.Appointment, error) {
	var appt model.Appointment
	var status string
	err := tx.QueryRow(ctx, `
		SELECT id::text, business_id::text, client_id::text, service_id::text, professional_id::text,
			date, start_minute, status, created_at, updated_at
		FROM appointments
		WHERE id = $1 AND business_id = $2
		FOR UPDATE
	`, appointmentID, businessID).Scan(
		&appt.ID,
		&appt.BusinessID,
		&appt.ClientID,
		&appt.ServiceID,
		&appt.ProfessionalID,
		&appt.Date,
		&appt.StartMinute,
		&status,
		&appt.CreatedAt,
		&appt.UpdatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	appt.Status = model.AppointmentStatus(status)
	return appt, nil
}

func (r *Repository) UpdateAppointmentStatus(ctx context.Context, tx pgx.Tx, businessID, appointmentID string, status model.AppointmentStatus) error {
	_, err := tx.Exec(ctx, `
		UPDATE appointments
		SET status = $3,
			updated_at = now()
		WHERE id = $1 AND business_id = $2
	`, appointmentID, businessID, string(status))
	return err
}

func (r *Repository) ListAppointmentsByDate(ctx context.Context, businessID string, date time.Time) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, business_id::text, client_id::text, service_id::text, professional_id::text,
			date, start_minute, status, created_at, updated_at
		FROM appointments
		WHERE business_id = $1 AND date = $2
		ORDER BY start_minute ASC
	`, businessID, date)
	if err != nil {
		return nil, err
	}
	return scanAppointments(rows)
}

func (r *Repository) ListRecentAppointments(ctx context.Context, businessID string, limit int) ([]model.Appointment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, business_id::text, client_id::text, service_id::text, professional_id::text,
			date, start_minute, status, created_at, updated_at
		FROM appointments
		WHERE business_id = $1
		ORDER BY date DESC, start_minute DESC
		LIMIT $2
	`, businessID, limit)
	if err != nil {
		return nil, err
	}
	return scanAppointments(rows)
}

// CountOccupyingInRange counts pending+confirmed appointments for a business
// with dates in [startInclusive, endExclusive). Used for the monthly
// entitlement cap.
func (r *Repository) CountOccupyingInRange(ctx context.Context, tx pgx.Tx, businessID string, startInclusive, endExclusive time.Time) (int, error) {
	var cnt int
	err := tx.QueryRow(ctx, fmt.Sprintf(`
		SELECT COUNT(*)
		FROM appointments
		WHERE business_id = $1
		  AND status IN (%s)
		  AND date >= $2
		  AND date < $3
	`, occupyingStatusList), businessID, startInclusive, endExclusive).Scan(&cnt)
	return cnt, err
}

func (r *Repository) CountNoShows(ctx context.Context, businessID, clientID string) (int, error) {
	var cnt int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM appointments
		WHERE business_id = $1 AND client_id = $2 AND status = 'no_show'
	`, businessID, clientID).Scan(&cnt)
	return cnt, err
}

func scanAppointments(rows pgx.Rows) ([]model.Appointment, error) {
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		var appt model.Appointment
		var status string
		if err := rows.Scan(
			&appt.ID,
			&appt.BusinessID,
			&appt.ClientID,
			&appt.ServiceID,
			&appt.ProfessionalID,
			&appt.Date,
			&appt.StartMinute,
			&status,
			&appt.CreatedAt,
			&appt.UpdatedAt,
		); err != nil {
			return nil, err
		}
		appt.Status = model.AppointmentStatus(status)
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}
