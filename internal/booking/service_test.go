package booking

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"agendly/internal/appointment"
	"agendly/internal/model"
	"agendly/internal/outbox"
	"agendly/internal/storage"
)

var bookingDate = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC) // a Monday

func newTestService(t *testing.T) (*Service, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	repo := storage.NewRepository(mock)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(repo, outbox.NewRepository(), logger, 30), mock
}

func validRequest() Request {
	return Request{
		BusinessID:     "b1",
		ProfessionalID: "p1",
		ServiceID:      "s1",
		Date:           bookingDate,
		StartMinute:    570, // 09:30
		ClientName:     "Maria",
		ClientPhone:    "+55 (11) 99999-9999",
	}
}

func expectMondayRules(mock pgxmock.PgxPoolIface) {
	mock.ExpectQuery("FROM availability_rules").
		WithArgs("b1").
		WillReturnRows(pgxmock.NewRows([]string{"business_id", "weekday", "start_minute", "end_minute", "is_active"}).
			AddRow("b1", 1, 540, 1080, true))
}

func expectActiveService(mock pgxmock.PgxPoolIface, businessID string) {
	mock.ExpectQuery("FROM services").
		WithArgs("s1", businessID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "business_id", "name", "category", "duration_minutes", "price", "is_active"}).
			AddRow("s1", businessID, "Haircut", "hair", 30, "50.00", true))
}

func expectNewClient(mock pgxmock.PgxPoolIface) {
	mock.ExpectQuery("FROM clients").
		WithArgs("+5511999999999").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("INSERT INTO clients").
		WithArgs("Maria", "+5511999999999").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "phone", "created_at"}).
			AddRow("c1", "Maria", "+5511999999999", time.Now()))
}

func expectNotBlocked(mock pgxmock.PgxPoolIface) {
	mock.ExpectQuery("FROM blocked_clients").
		WithArgs("b1", "c1").
		WillReturnError(pgx.ErrNoRows)
}

func expectProfessionalLock(mock pgxmock.PgxPoolIface, capacity int) {
	mock.ExpectQuery("FROM professionals").
		WithArgs("p1", "b1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "business_id", "name", "capacity", "is_active"}).
			AddRow("p1", "b1", "Alice", capacity, true))
}

func expectFreeTierUsage(mock pgxmock.PgxPoolIface, used int) {
	mock.ExpectQuery("FROM business_entitlements").
		WithArgs("b1").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT COUNT").
		WithArgs("b1", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(used))
}

func expectSlotCount(mock pgxmock.PgxPoolIface, count int) {
	mock.ExpectQuery("SELECT COUNT").
		WithArgs("p1", pgxmock.AnyArg(), 570).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(count))
}

func TestBook_Success(t *testing.T) {
	svc, mock := newTestService(t)

	expectMondayRules(mock)
	expectActiveService(mock, "b1")
	mock.ExpectBegin()
	expectNewClient(mock)
	expectNotBlocked(mock)
	expectProfessionalLock(mock, 1)
	expectFreeTierUsage(mock, 3)
	expectSlotCount(mock, 0)
	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs("b1", "c1", "s1", "p1", bookingDate, 570, "pending").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("a1"))
	mock.ExpectExec("INSERT INTO outbox_events").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	appt, err := svc.Book(context.Background(), validRequest())
	require.NoError(t, err)
	require.Equal(t, "a1", appt.ID)
	require.Equal(t, model.StatusPending, appt.Status)
	require.Equal(t, "c1", appt.ClientID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBook_ReusesClientByNormalizedPhone(t *testing.T) {
	svc, mock := newTestService(t)

	expectMondayRules(mock)
	expectActiveService(mock, "b1")
	mock.ExpectBegin()
	// The raw request carries a formatted phone; lookup sees the canonical form.
	mock.ExpectQuery("FROM clients").
		WithArgs("+5511999999999").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "phone", "created_at"}).
			AddRow("c-existing", "Maria", "+5511999999999", time.Now()))
	mock.ExpectQuery("FROM blocked_clients").
		WithArgs("b1", "c-existing").
		WillReturnError(pgx.ErrNoRows)
	expectProfessionalLock(mock, 1)
	expectFreeTierUsage(mock, 0)
	expectSlotCount(mock, 0)
	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs("b1", "c-existing", "s1", "p1", bookingDate, 570, "pending").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("a2"))
	mock.ExpectExec("INSERT INTO outbox_events").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	appt, err := svc.Book(context.Background(), validRequest())
	require.NoError(t, err)
	require.Equal(t, "c-existing", appt.ClientID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBook_BlockedClient(t *testing.T) {
	svc, mock := newTestService(t)

	expectMondayRules(mock)
	expectActiveService(mock, "b1")
	mock.ExpectBegin()
	expectNewClient(mock)
	mock.ExpectQuery("FROM blocked_clients").
		WithArgs("b1", "c1").
		WillReturnRows(pgxmock.NewRows([]string{"one"}).AddRow(1))
	mock.ExpectRollback()

	_, err := svc.Book(context.Background(), validRequest())
	require.ErrorIs(t, err, ErrClientBlocked)
}

// A blocklist entry only binds the business that created it.
func TestBook_BlockScopedToBusiness(t *testing.T) {
	svc, mock := newTestService(t)

	req := validRequest()
	req.BusinessID = "b2"

	mock.ExpectQuery("FROM availability_rules").
		WithArgs("b2").
		WillReturnRows(pgxmock.NewRows([]string{"business_id", "weekday", "start_minute", "end_minute", "is_active"}).
			AddRow("b2", 1, 540, 1080, true))
	expectActiveService(mock, "b2")
	mock.ExpectBegin()
	mock.ExpectQuery("FROM clients").
		WithArgs("+5511999999999").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "phone", "created_at"}).
			AddRow("c1", "Maria", "+5511999999999", time.Now()))
	// Blocked by b1, not by b2.
	mock.ExpectQuery("FROM blocked_clients").
		WithArgs("b2", "c1").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("FROM professionals").
		WithArgs("p1", "b2").
		WillReturnRows(pgxmock.NewRows([]string{"id", "business_id", "name", "capacity", "is_active"}).
			AddRow("p1", "b2", "Alice", 1, true))
	mock.ExpectQuery("FROM business_entitlements").
		WithArgs("b2").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT COUNT").
		WithArgs("b2", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("SELECT COUNT").
		WithArgs("p1", pgxmock.AnyArg(), 570).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("INSERT INTO appointments").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("a4"))
	mock.ExpectExec("INSERT INTO outbox_events").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	appt, err := svc.Book(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, "b2", appt.BusinessID)
}

func TestBook_SlotFull(t *testing.T) {
	svc, mock := newTestService(t)

	expectMondayRules(mock)
	expectActiveService(mock, "b1")
	mock.ExpectBegin()
	expectNewClient(mock)
	expectNotBlocked(mock)
	expectProfessionalLock(mock, 1)
	expectFreeTierUsage(mock, 0)
	expectSlotCount(mock, 1)
	mock.ExpectRollback()

	_, err := svc.Book(context.Background(), validRequest())
	require.ErrorIs(t, err, ErrCapacityExceeded)
}

func TestBook_CapacityTwoAdmitsSecondBooking(t *testing.T) {
	svc, mock := newTestService(t)

	expectMondayRules(mock)
	expectActiveService(mock, "b1")
	mock.ExpectBegin()
	expectNewClient(mock)
	expectNotBlocked(mock)
	expectProfessionalLock(mock, 2)
	expectFreeTierUsage(mock, 0)
	expectSlotCount(mock, 1)
	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs("b1", "c1", "s1", "p1", bookingDate, 570, "pending").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("a3"))
	mock.ExpectExec("INSERT INTO outbox_events").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	_, err := svc.Book(context.Background(), validRequest())
	require.NoError(t, err)
}

func TestBook_InsertConflictMapsToCapacityExceeded(t *testing.T) {
	svc, mock := newTestService(t)

	expectMondayRules(mock)
	expectActiveService(mock, "b1")
	mock.ExpectBegin()
	expectNewClient(mock)
	expectNotBlocked(mock)
	expectProfessionalLock(mock, 1)
	expectFreeTierUsage(mock, 0)
	expectSlotCount(mock, 0)
	mock.ExpectQuery("INSERT INTO appointments").
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	_, err := svc.Book(context.Background(), validRequest())
	require.ErrorIs(t, err, ErrCapacityExceeded)
}

func TestBook_MonthlyLimitReached(t *testing.T) {
	svc, mock := newTestService(t)

	expectMondayRules(mock)
	expectActiveService(mock, "b1")
	mock.ExpectBegin()
	expectNewClient(mock)
	expectNotBlocked(mock)
	expectProfessionalLock(mock, 1)
	mock.ExpectQuery("FROM business_entitlements").
		WithArgs("b1").
		WillReturnRows(pgxmock.NewRows([]string{"business_id", "tier", "max_professionals", "max_services", "max_monthly_appointments", "updated_at"}).
			AddRow("b1", "free", 1, 5, 50, time.Now()))
	mock.ExpectQuery("SELECT COUNT").
		WithArgs("b1", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(50))
	mock.ExpectRollback()

	_, err := svc.Book(context.Background(), validRequest())
	require.ErrorIs(t, err, ErrMonthlyLimitReached)
}

func TestBook_OutsideAvailability(t *testing.T) {
	svc, mock := newTestService(t)

	// Rules exist but the requested Monday 08:00 is before opening.
	expectMondayRules(mock)

	req := validRequest()
	req.StartMinute = 480
	_, err := svc.Book(context.Background(), req)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "time", verr.Field)
}

func TestBook_UnknownServiceRejected(t *testing.T) {
	svc, mock := newTestService(t)

	expectMondayRules(mock)
	// The posted id does not belong to this business.
	mock.ExpectQuery("FROM services").
		WithArgs("s1", "b1").
		WillReturnError(pgx.ErrNoRows)

	_, err := svc.Book(context.Background(), validRequest())
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "service_id", verr.Field)
}

func TestBook_InactiveServiceRejected(t *testing.T) {
	svc, mock := newTestService(t)

	expectMondayRules(mock)
	mock.ExpectQuery("FROM services").
		WithArgs("s1", "b1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "business_id", "name", "category", "duration_minutes", "price", "is_active"}).
			AddRow("s1", "b1", "Haircut", "hair", 30, "50.00", false))

	_, err := svc.Book(context.Background(), validRequest())
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "service_id", verr.Field)
}

func TestBook_InvalidPhoneRejectedBeforeStorage(t *testing.T) {
	svc, _ := newTestService(t)

	req := validRequest()
	req.ClientPhone = "not-a-phone"
	_, err := svc.Book(context.Background(), req)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "client_phone", verr.Field)
}

func TestBook_MissingFields(t *testing.T) {
	svc, _ := newTestService(t)

	req := validRequest()
	req.BusinessID = "  "
	_, err := svc.Book(context.Background(), req)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "business_id", verr.Field)
}

func expectAppointmentLock(mock pgxmock.PgxPoolIface, status string) {
	mock.ExpectQuery("FROM appointments").
		WithArgs("a1", "b1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "business_id", "client_id", "service_id", "professional_id",
			"date", "start_minute", "status", "created_at", "updated_at",
		}).AddRow("a1", "b1", "c1", "s1", "p1", bookingDate, 570, status, time.Now(), time.Now()))
}

func TestTransition_PendingToConfirmed(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectBegin()
	expectAppointmentLock(mock, "pending")
	mock.ExpectExec("UPDATE appointments").
		WithArgs("a1", "b1", "confirmed").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("INSERT INTO outbox_events").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	appt, err := svc.Transition(context.Background(), "b1", "a1", model.StatusConfirmed)
	require.NoError(t, err)
	require.Equal(t, model.StatusConfirmed, appt.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransition_TerminalStateRejected(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectBegin()
	expectAppointmentLock(mock, "completed")
	mock.ExpectRollback()

	_, err := svc.Transition(context.Background(), "b1", "a1", model.StatusConfirmed)
	var invalid *appointment.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
}

func TestTransition_SameStatusIsNoOp(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectBegin()
	expectAppointmentLock(mock, "confirmed")
	mock.ExpectRollback()

	appt, err := svc.Transition(context.Background(), "b1", "a1", model.StatusConfirmed)
	require.NoError(t, err)
	require.Equal(t, model.StatusConfirmed, appt.Status)
}

func TestTransition_NotFound(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM appointments").
		WithArgs("a1", "b1").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, err := svc.Transition(context.Background(), "b1", "a1", model.StatusConfirmed)
	require.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestTransition_UnknownStatus(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Transition(context.Background(), "b1", "a1", model.AppointmentStatus("archived"))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestBook_StorageFailureWrapped(t *testing.T) {
	svc, mock := newTestService(t)

	expectMondayRules(mock)
	expectActiveService(mock, "b1")
	mock.ExpectBegin()
	mock.ExpectQuery("FROM clients").
		WillReturnError(errors.New("connection refused"))
	mock.ExpectRollback()

	_, err := svc.Book(context.Background(), validRequest())
	var serr *StorageError
	require.ErrorAs(t, err, &serr)
}
