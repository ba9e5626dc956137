package processor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v82"
	billingsession "github.com/stripe/stripe-go/v82/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	customerpkg "github.com/stripe/stripe-go/v82/customer"
	subscriptionpkg "github.com/stripe/stripe-go/v82/subscription"
)

// StripeConfig holds the settings for the Stripe API backend.
type StripeConfig struct {
	SecretKey  string
	Timeout    time.Duration
	MaxRetries int64
	// BaseURL overrides the API endpoint, e.g. for stripe-mock.
	BaseURL string
}

// StripeProcessor implements Processor on top of the Stripe API.
type StripeProcessor struct {
	logger zerolog.Logger
}

// NewStripeProcessor configures the global Stripe key and API backend and
// returns the processor. Every request is bounded by cfg.Timeout.
func NewStripeProcessor(cfg StripeConfig, logger zerolog.Logger) *StripeProcessor {
	lg := logger.With().Str("component", "StripeProcessor").Logger()

	stripe.Key = cfg.SecretKey
	backendCfg := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: cfg.Timeout},
		MaxNetworkRetries: stripe.Int64(cfg.MaxRetries),
		LeveledLogger:     &leveledLogger{logger: lg},
	}
	if cfg.BaseURL != "" {
		backendCfg.URL = stripe.String(cfg.BaseURL)
	}
	stripe.SetBackend(stripe.APIBackend, stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg))

	return &StripeProcessor{logger: lg}
}

func (p *StripeProcessor) CreateCustomer(ctx context.Context, email string, metadata map[string]string) (string, error) {
	params := &stripe.CustomerParams{Metadata: metadata}
	if email != "" {
		params.Email = stripe.String(email)
	}
	params.Context = ctx
	cust, err := customerpkg.New(params)
	if err != nil {
		return "", classify("create customer", err)
	}
	return cust.ID, nil
}

func (p *StripeProcessor) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Customer: stripe.String(req.CustomerID),
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(req.PriceID), Quantity: stripe.Int64(1)},
		},
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
		Metadata:   req.Metadata,
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: req.Metadata,
		},
	}
	params.Context = ctx
	sess, err := checkoutsession.New(params)
	if err != nil {
		return "", classify("create checkout session", err)
	}
	return sess.URL, nil
}

func (p *StripeProcessor) ListSubscriptions(ctx context.Context, customerID string, filter ListFilter) ([]Subscription, error) {
	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String(string(filter)),
	}
	params.Context = ctx

	var subs []Subscription
	it := subscriptionpkg.List(params)
	for it.Next() {
		subs = append(subs, FromStripeSubscription(it.Subscription()))
	}
	if err := it.Err(); err != nil {
		return nil, classify("list subscriptions", err)
	}
	return subs, nil
}

func (p *StripeProcessor) CancelSubscription(ctx context.Context, subscriptionID string) error {
	params := &stripe.SubscriptionCancelParams{Prorate: stripe.Bool(true)}
	params.Context = ctx
	if _, err := subscriptionpkg.Cancel(subscriptionID, params); err != nil {
		return classify("cancel subscription", err)
	}
	return nil
}

func (p *StripeProcessor) ResumeSubscription(ctx context.Context, subscriptionID string) error {
	params := &stripe.SubscriptionParams{CancelAtPeriodEnd: stripe.Bool(false)}
	params.Context = ctx
	if _, err := subscriptionpkg.Update(subscriptionID, params); err != nil {
		return classify("clear scheduled cancellation", err)
	}
	return nil
}

func (p *StripeProcessor) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx
	sess, err := billingsession.New(params)
	if err != nil {
		return "", classify("create billing portal session", err)
	}
	return sess.URL, nil
}

// FromStripeSubscription converts an API subscription. Price and billing
// period come from the first item.
func FromStripeSubscription(s *stripe.Subscription) Subscription {
	sub := Subscription{
		ID:                s.ID,
		Status:            Status(s.Status),
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
		Created:           time.Unix(s.Created, 0).UTC(),
		Metadata:          s.Metadata,
	}
	if s.Customer != nil {
		sub.CustomerID = s.Customer.ID
	}
	if s.Items != nil && len(s.Items.Data) > 0 {
		item := s.Items.Data[0]
		if item.Price != nil {
			sub.PriceID = item.Price.ID
		}
		sub.CurrentPeriodStart = unixTime(item.CurrentPeriodStart)
		sub.CurrentPeriodEnd = unixTime(item.CurrentPeriodEnd)
	}
	return sub
}

func unixTime(sec int64) *time.Time {
	if sec == 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}

func classify(op string, err error) error {
	if IsTransient(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrTransient, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrRejected, err)
}

// IsTransient reports whether err is a timeout, a network failure, a rate
// limit or a processor-side error.
func IsTransient(err error) bool {
	if errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var se *stripe.Error
	if errors.As(err, &se) {
		return se.HTTPStatusCode >= http.StatusInternalServerError ||
			se.HTTPStatusCode == http.StatusTooManyRequests ||
			se.Type == stripe.ErrorTypeAPI
	}
	var ne net.Error
	return errors.As(err, &ne)
}

// leveledLogger routes the Stripe SDK's own logging through zerolog.
type leveledLogger struct {
	logger zerolog.Logger
}

func (l *leveledLogger) Debugf(format string, v ...interface{}) { l.logger.Debug().Msgf(format, v...) }
func (l *leveledLogger) Infof(format string, v ...interface{})  { l.logger.Debug().Msgf(format, v...) }
func (l *leveledLogger) Warnf(format string, v ...interface{})  { l.logger.Warn().Msgf(format, v...) }
func (l *leveledLogger) Errorf(format string, v ...interface{}) { l.logger.Error().Msgf(format, v...) }
