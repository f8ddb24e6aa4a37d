package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"agendly/internal/outbox"
	"agendly/internal/storage"
)

const testWebhookSecret = "whsec_test"

func newWebhookHandler(t *testing.T) (*StripeWebhookHandler, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	repo := storage.NewRepository(mock)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewStripeWebhookHandler(repo, outbox.NewRepository(), logger, StripeWebhookConfig{Secret: testWebhookSecret})
	return h, mock
}

// signPayload builds a Stripe-Signature header the same way Stripe does:
// HMAC-SHA256 of "<timestamp>.<payload>" keyed with the endpoint secret.
func signPayload(payload string, at time.Time) string {
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	mac.Write([]byte(fmt.Sprintf("%d.%s", at.Unix(), payload)))
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func subscriptionEvent(eventID, status string) string {
	return fmt.Sprintf(`{
		"id": %q,
		"type": "customer.subscription.updated",
		"created": %d,
		"data": {
			"object": {
				"id": "sub_1",
				"status": %q,
				"metadata": {"business_id": "b1", "tier": "pro"}
			}
		}
	}`, eventID, time.Now().Unix(), status)
}

func TestStripeWebhook_AppliesProTier(t *testing.T) {
	h, mock := newWebhookHandler(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO billing_provider_events").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO business_entitlements").
		WithArgs("b1", "pro", 3, 0, 0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO outbox_events").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	payload := subscriptionEvent("evt_1", "active")
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(payload))
	req.Header.Set("Stripe-Signature", signPayload(payload, time.Now()))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStripeWebhook_InactiveSubscriptionIgnored(t *testing.T) {
	h, mock := newWebhookHandler(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO billing_provider_events").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	// No entitlement writes for past_due; the event is still recorded.
	mock.ExpectCommit()

	payload := subscriptionEvent("evt_2", "past_due")
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(payload))
	req.Header.Set("Stripe-Signature", signPayload(payload, time.Now()))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStripeWebhook_DuplicateEventIgnored(t *testing.T) {
	h, mock := newWebhookHandler(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO billing_provider_events").
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	payload := subscriptionEvent("evt_1", "active")
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(payload))
	req.Header.Set("Stripe-Signature", signPayload(payload, time.Now()))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "duplicate")
}

func TestStripeWebhook_BadSignature(t *testing.T) {
	h, _ := newWebhookHandler(t)

	payload := subscriptionEvent("evt_3", "active")
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(payload))
	req.Header.Set("Stripe-Signature", "t=0,v1=deadbeef")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStripeWebhook_MissingSignature(t *testing.T) {
	h, _ := newWebhookHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
