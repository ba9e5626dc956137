package router

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"matchday/internal/config"
	"matchday/internal/database"
	"matchday/internal/model"
	"matchday/internal/processor"
	"matchday/internal/processor/processortest"
	"matchday/internal/repository"
	"matchday/internal/util"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	jwtSecret     = "test-jwt-secret"
	webhookSecret = "whsec_test"
	priceMonthly  = "price_monthly"
	priceYearly   = "price_yearly"
)

type testServer struct {
	handler http.Handler
	db      *sql.DB
	subs    repository.SubscriptionRepository
	fake    *processortest.Fake
}

func testConfig() *config.Config {
	return &config.Config{
		Environment:           "test",
		JWTSecret:             jwtSecret,
		CORSAllowedOrigins:    []string{"*"},
		JSONBodyLimit:         1 << 20,
		WebhookBodyLimit:      1 << 16,
		StripeWebhookSecret:   webhookSecret,
		StripePriceMonthly:    priceMonthly,
		StripePriceYearly:     priceYearly,
		StripeSuccessURL:      "https://app.test/billing?status=success",
		StripeCancelURL:       "https://app.test/billing?status=cancel",
		StripePortalReturnURL: "https://app.test/billing",
		StripeTimeout:         time.Second,
	}
}

func newTestServer(t *testing.T, cfg *config.Config, withProcessor bool) *testServer {
	t.Helper()
	db, err := database.Open(context.Background(), database.Options{Driver: "sqlite", DSN: ":memory:", Migrate: true})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ts := &testServer{db: db, subs: repository.NewSubscriptionRepo(db), fake: processortest.New()}
	deps := Deps{DB: db}
	if withProcessor {
		deps.Processor = ts.fake
	}
	ts.handler = New(cfg, deps, zerolog.Nop())
	return ts
}

func token(t *testing.T, userID string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, util.Claims{
		Email: userID + "@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(jwtSecret))
	require.NoError(t, err)
	return s
}

func (ts *testServer) do(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, userID))
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) webhook(t *testing.T, payload []byte, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/billing/webhook", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", signature)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func subscriptionObject(s processor.Subscription) map[string]any {
	return processortest.SubscriptionObject(s.ID, s.CustomerID, string(s.Status), s.PriceID, s.CancelAtPeriodEnd,
		*s.CurrentPeriodStart, *s.CurrentPeriodEnd, s.Metadata)
}

func TestCheckoutThenWebhooksActivateSubscription(t *testing.T) {
	ts := newTestServer(t, testConfig(), true)

	rec := ts.do(t, http.MethodPost, "/billing/checkout", "user-1", map[string]string{"plan": "monthly"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, strings.HasPrefix(decode[map[string]string](t, rec)["url"], "https://checkout.test/"))

	row, err := ts.subs.GetByUserID(context.Background(), "user-1")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, model.StatusInactive, row.Status)
	assert.NotEmpty(t, row.CustomerID())

	sessions := ts.fake.Sessions()
	require.Len(t, sessions, 1)
	sub := ts.fake.CompleteCheckout(sessions[0])

	payload, sig := processortest.SignedEvent(t, webhookSecret, "evt_1", "checkout.session.completed", map[string]any{
		"id":           "cs_1",
		"object":       "checkout.session",
		"customer":     sub.CustomerID,
		"subscription": sub.ID,
		"metadata":     sessions[0].Metadata,
	})
	rec = ts.webhook(t, payload, sig)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"received":true}`, rec.Body.String())

	row, err = ts.subs.GetByUserID(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusInactive, row.Status, "checkout completion alone does not activate")

	payload, sig = processortest.SignedEvent(t, webhookSecret, "evt_2", "customer.subscription.created", subscriptionObject(sub))
	rec = ts.webhook(t, payload, sig)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/v1/billing/subscription", "user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[map[string]any](t, rec)
	assert.Equal(t, "active", got["status"])
	assert.Equal(t, "monthly", got["plan"])
	assert.Equal(t, false, got["cancel_at_period_end"])

	// A second checkout is refused while the first subscription is live.
	rec = ts.do(t, http.MethodPost, "/billing/checkout", "user-1", map[string]string{"plan": "monthly"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "duplicate_same_plan", decode[map[string]string](t, rec)["reason"])
}

func TestWebhookInvalidSignatureLeavesRowUnchanged(t *testing.T) {
	ts := newTestServer(t, testConfig(), true)
	ctx := context.Background()

	_, err := ts.subs.EnsureForUser(ctx, "user-1")
	require.NoError(t, err)
	_, err = ts.subs.LinkCustomer(ctx, "user-1", "cus_1")
	require.NoError(t, err)
	start, end := time.Now().UTC().Truncate(time.Second), time.Now().UTC().Truncate(time.Second).AddDate(0, 1, 0)
	plan := model.PlanMonthly
	require.NoError(t, ts.subs.ApplySnapshot(ctx, "user-1", model.SubscriptionSnapshot{
		ExternalCustomerID:     "cus_1",
		ExternalSubscriptionID: "sub_1",
		Status:                 model.StatusActive,
		Plan:                   &plan,
		CurrentPeriodStart:     &start,
		CurrentPeriodEnd:       &end,
	}))

	obj := processortest.SubscriptionObject("sub_1", "cus_1", "canceled", priceMonthly, false, start, end, nil)
	payload, foreignSig := processortest.SignedEvent(t, "whsec_other", "evt_1", "customer.subscription.deleted", obj)

	for name, sig := range map[string]string{
		"wrong secret":     foreignSig,
		"missing header":   "",
		"malformed header": "t=1,v1=deadbeef",
	} {
		t.Run(name, func(t *testing.T) {
			rec := ts.webhook(t, payload, sig)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "invalid_signature", decode[map[string]string](t, rec)["reason"])
		})
	}

	row, err := ts.subs.GetByUserID(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, row.Status)
	assert.Equal(t, "sub_1", row.SubscriptionID())
}

func TestCancelMarksRowCanceledBeforeWebhook(t *testing.T) {
	ts := newTestServer(t, testConfig(), true)
	ctx := context.Background()

	_, err := ts.subs.EnsureForUser(ctx, "user-1")
	require.NoError(t, err)
	sub := ts.fake.CompleteCheckout(processor.CheckoutRequest{CustomerID: "cus_1", PriceID: priceMonthly})
	_, err = ts.subs.LinkCustomer(ctx, "user-1", "cus_1")
	require.NoError(t, err)
	plan := model.PlanMonthly
	require.NoError(t, ts.subs.ApplySnapshot(ctx, "user-1", model.SubscriptionSnapshot{
		ExternalCustomerID:     "cus_1",
		ExternalSubscriptionID: sub.ID,
		Status:                 model.StatusActive,
		Plan:                   &plan,
		CurrentPeriodStart:     sub.CurrentPeriodStart,
		CurrentPeriodEnd:       sub.CurrentPeriodEnd,
	}))

	rec := ts.do(t, http.MethodPost, "/billing/cancel", "user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[map[string]any](t, rec)
	assert.Equal(t, "canceled", got["status"])
	assert.Equal(t, false, got["cancel_at_period_end"])

	stored, ok := ts.fake.Subscription(sub.ID)
	require.True(t, ok)
	assert.Equal(t, processor.StatusCanceled, stored.Status)

	row, err := ts.subs.GetByUserID(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCanceled, row.Status)
	assert.False(t, row.CancelAtPeriodEnd)

	// Reactivating a canceled subscription is rejected.
	rec = ts.do(t, http.MethodPost, "/billing/reactivate", "user-1", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "not_scheduled_for_cancellation", decode[map[string]string](t, rec)["reason"])
}

func TestCleanupDuplicatesEndpoint(t *testing.T) {
	ts := newTestServer(t, testConfig(), true)
	ctx := context.Background()

	_, err := ts.subs.EnsureForUser(ctx, "user-1")
	require.NoError(t, err)
	_, err = ts.subs.LinkCustomer(ctx, "user-1", "cus_1")
	require.NoError(t, err)
	older := ts.fake.CompleteCheckout(processor.CheckoutRequest{CustomerID: "cus_1", PriceID: priceMonthly})
	newer := ts.fake.CompleteCheckout(processor.CheckoutRequest{CustomerID: "cus_1", PriceID: priceYearly})

	rec := ts.do(t, http.MethodPost, "/v1/billing/cleanup-duplicates", "user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[map[string]any](t, rec)
	assert.EqualValues(t, 2, got["found"])
	assert.EqualValues(t, 1, got["canceled"])
	assert.Equal(t, newer.ID, got["kept_subscription_id"])

	stored, _ := ts.fake.Subscription(older.ID)
	assert.Equal(t, processor.StatusCanceled, stored.Status)

	row, err := ts.subs.GetByUserID(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, newer.ID, row.SubscriptionID())
	require.NotNil(t, row.Plan)
	assert.Equal(t, model.PlanYearly, *row.Plan)
}

func TestSubscriptionDefaultsToInactive(t *testing.T) {
	ts := newTestServer(t, testConfig(), true)

	rec := ts.do(t, http.MethodGet, "/billing/subscription", "nobody", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[map[string]any](t, rec)
	assert.Equal(t, "inactive", got["status"])
	assert.Nil(t, got["plan"])
}

func TestLifecycleErrors(t *testing.T) {
	ts := newTestServer(t, testConfig(), true)

	tests := []struct {
		path   string
		status int
		reason string
	}{
		{"/billing/cancel", http.StatusNotFound, "no_subscription"},
		{"/billing/reactivate", http.StatusNotFound, "no_subscription"},
		{"/billing/portal", http.StatusNotFound, "no_customer"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, tt.path, "user-1", nil)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.reason, decode[map[string]string](t, rec)["reason"])
		})
	}
}

func TestCheckoutRejectsUnknownPlan(t *testing.T) {
	ts := newTestServer(t, testConfig(), true)

	rec := ts.do(t, http.MethodPost, "/billing/checkout", "user-1", map[string]string{"plan": "weekly"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_plan", decode[map[string]string](t, rec)["reason"])
	assert.Zero(t, ts.fake.Calls("CreateCustomer"))
}

func TestProcessorUnavailable(t *testing.T) {
	ts := newTestServer(t, testConfig(), true)
	ts.fake.SetError("CreateCustomer", context.DeadlineExceeded)

	rec := ts.do(t, http.MethodPost, "/billing/checkout", "user-1", map[string]string{"plan": "yearly"})
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "upstream_unavailable", decode[map[string]string](t, rec)["reason"])
}

func TestBillingNotConfigured(t *testing.T) {
	cfg := testConfig()
	cfg.StripeWebhookSecret = ""
	ts := newTestServer(t, cfg, false)

	rec := ts.do(t, http.MethodPost, "/billing/checkout", "user-1", map[string]string{"plan": "monthly"})
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "not_configured", decode[map[string]string](t, rec)["reason"])

	rec = ts.webhook(t, []byte(`{}`), "t=1,v1=abc")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "not_configured", decode[map[string]string](t, rec)["reason"])
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t, testConfig(), true)

	for _, path := range []string{"/billing/checkout", "/billing/cancel", "/billing/cleanup-duplicates", "/v1/billing/portal"} {
		rec := ts.do(t, http.MethodPost, path, "", map[string]string{"plan": "monthly"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
		assert.Equal(t, "unauthorized", decode[map[string]string](t, rec)["reason"], path)
	}
}

func TestUsersMe(t *testing.T) {
	ts := newTestServer(t, testConfig(), true)

	rec := ts.do(t, http.MethodGet, "/users/me", "user-1", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodPost, "/users/me", "user-1", map[string]string{"name": "Ada"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	got := decode[map[string]any](t, rec)
	assert.Equal(t, "user-1@example.com", got["email"])

	rec = ts.do(t, http.MethodPost, "/users/me", "user-1", map[string]string{"name": "Ada"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/v1/users/me", "user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Ada", decode[map[string]any](t, rec)["name"])

	row, err := ts.subs.GetByUserID(context.Background(), "user-1")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, model.StatusInactive, row.Status)
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t, testConfig(), true)

	rec := ts.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "matchday_http_requests_total")
}

func TestMetricsLabelRequestsByRoute(t *testing.T) {
	ts := newTestServer(t, testConfig(), true)

	for i := range 5 {
		rec := ts.do(t, http.MethodGet, fmt.Sprintf("/scan/%d", i), "", nil)
		require.Equal(t, http.StatusNotFound, rec.Code)
	}
	ts.do(t, http.MethodGet, "/billing/subscription", "user-1", nil)
	ts.do(t, http.MethodGet, "/v1/billing/subscription", "user-1", nil)
	ts.do(t, http.MethodGet, "/healthz", "", nil)

	rec := ts.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.NotContains(t, body, "/scan/")
	assert.Contains(t, body, `matchday_http_requests_total{method="GET",route="unmatched",status_code="404"} 5`)
	assert.Contains(t, body, `matchday_http_requests_total{method="GET",route="GET /billing/subscription",status_code="200"} 2`)
	assert.Contains(t, body, `matchday_http_requests_total{method="GET",route="GET /healthz",status_code="200"} 1`)
}
