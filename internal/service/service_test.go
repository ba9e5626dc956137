package service

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"matchday/internal/database"
	"matchday/internal/model"
	"matchday/internal/processor"
	"matchday/internal/processor/processortest"
	"matchday/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const (
	priceMonthly = "price_monthly"
	priceYearly  = "price_yearly"
)

type capturedMessage struct {
	topic   string
	payload []byte
	attrs   map[string]string
}

type capturePublisher struct {
	mu   sync.Mutex
	msgs []capturedMessage
}

func (p *capturePublisher) Publish(_ context.Context, topic string, payload []byte, attrs map[string]string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, capturedMessage{topic: topic, payload: payload, attrs: attrs})
	return "msg", nil
}

func (p *capturePublisher) messages() []capturedMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]capturedMessage(nil), p.msgs...)
}

type testEnv struct {
	db         *sql.DB
	subs       repository.SubscriptionRepository
	users      repository.UserRepository
	fake       *processortest.Fake
	pub        *capturePublisher
	opts       BillingOptions
	reconciler Reconciler
	checkout   CheckoutService
	lifecycle  LifecycleService
	cleanup    CleanupService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.Open(context.Background(), database.Options{Driver: "sqlite", DSN: ":memory:", Migrate: true})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	env := &testEnv{
		db:    db,
		subs:  repository.NewSubscriptionRepo(db),
		users: repository.NewUserRepo(db),
		fake:  processortest.New(),
		pub:   &capturePublisher{},
		opts: BillingOptions{
			Prices:          PriceCatalog{Monthly: priceMonthly, Yearly: priceYearly},
			SuccessURL:      "https://app.test/billing?status=success",
			CancelURL:       "https://app.test/billing?status=cancel",
			PortalReturnURL: "https://app.test/billing",
			CallTimeout:     time.Second,
		},
	}
	lg := zerolog.Nop()
	env.reconciler = NewReconciler(env.subs, env.opts.Prices, env.pub, "subscription-changes", lg)
	env.checkout = NewCheckoutService(env.subs, env.users, env.fake, env.opts, lg)
	env.lifecycle = NewLifecycleService(env.subs, env.fake, env.opts, lg)
	env.cleanup = NewCleanupService(env.subs, env.fake, env.reconciler, env.opts, nil, lg)
	return env
}

// linkCustomer creates the user's row with a processor customer attached.
func (e *testEnv) linkCustomer(t *testing.T, userID, customerID string) {
	t.Helper()
	ctx := context.Background()
	_, err := e.subs.EnsureForUser(ctx, userID)
	require.NoError(t, err)
	_, err = e.subs.LinkCustomer(ctx, userID, customerID)
	require.NoError(t, err)
}

func (e *testEnv) row(t *testing.T, userID string) *model.Subscription {
	t.Helper()
	row, err := e.subs.GetByUserID(context.Background(), userID)
	require.NoError(t, err)
	require.NotNil(t, row)
	return row
}

func period() (*time.Time, *time.Time) {
	start := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	return &start, &end
}

func liveSub(customerID, priceID string, status processor.Status) processor.Subscription {
	start, end := period()
	return processor.Subscription{
		CustomerID:         customerID,
		Status:             status,
		PriceID:            priceID,
		CurrentPeriodStart: start,
		CurrentPeriodEnd:   end,
	}
}
