package service

import (
	"context"
	"fmt"
	"time"

	"matchday/internal/model"
	"matchday/internal/processor"
	"matchday/internal/repository"

	"github.com/rs/zerolog"
)

// BillingOptions are the processor-facing settings shared by the billing services.
type BillingOptions struct {
	Prices          PriceCatalog
	SuccessURL      string
	CancelURL       string
	PortalReturnURL string
	// CallTimeout bounds every processor call. Zero means no extra bound.
	CallTimeout time.Duration
}

func (o BillingOptions) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.CallTimeout)
}

// CheckoutService guards checkout against duplicate live subscriptions.
type CheckoutService interface {
	CreateCheckoutSession(ctx context.Context, userID string, plan model.Plan) (string, error)
}

type checkoutService struct {
	subs   repository.SubscriptionRepository
	users  repository.UserRepository
	proc   processor.Processor
	opts   BillingOptions
	logger zerolog.Logger
}

// NewCheckoutService returns the checkout guard. A nil processor makes every
// call fail with ErrNotConfigured.
func NewCheckoutService(subs repository.SubscriptionRepository, users repository.UserRepository, proc processor.Processor, opts BillingOptions, logger zerolog.Logger) CheckoutService {
	return &checkoutService{
		subs:   subs,
		users:  users,
		proc:   proc,
		opts:   opts,
		logger: logger.With().Str("service", "CheckoutService").Logger(),
	}
}

func (s *checkoutService) CreateCheckoutSession(ctx context.Context, userID string, plan model.Plan) (string, error) {
	if userID == "" {
		return "", newError(ErrAuthenticationRequired, ReasonUnauthorized, nil)
	}
	if !plan.Valid() {
		return "", newError(ErrInvalidPlan, ReasonInvalidPlan, fmt.Errorf("plan %q", plan))
	}
	if s.proc == nil || !s.opts.Prices.Configured() {
		return "", newError(ErrNotConfigured, ReasonNotConfigured, nil)
	}
	priceID := s.opts.Prices.PriceFor(plan)
	lg := s.logger.With().Str("user_id", userID).Str("plan", string(plan)).Logger()

	row, err := s.subs.EnsureForUser(ctx, userID)
	if err != nil {
		lg.Error().Err(err).Msg("Failed to ensure subscription row")
		return "", err
	}

	customerID := row.CustomerID()
	if customerID == "" {
		customerID, err = s.createCustomer(ctx, userID)
		if err != nil {
			lg.Error().Err(err).Msg("Failed to create processor customer")
			return "", err
		}
	}

	existing, err := s.liveSubscriptions(ctx, customerID)
	if err != nil {
		lg.Error().Err(err).Str("customer_id", customerID).Msg("Failed to list processor subscriptions")
		return "", processorError(err)
	}
	if len(existing) > 0 {
		reason := ReasonDuplicateDifferentPlan
		for _, sub := range existing {
			if sub.PriceID == priceID {
				reason = ReasonDuplicateSamePlan
				break
			}
		}
		lg.Info().Str("customer_id", customerID).Str("reason", reason).Int("live", len(existing)).Msg("Rejected checkout for customer with a live subscription")
		return "", newError(ErrDuplicateSubscription, reason, nil)
	}

	metadata := map[string]string{"user_id": userID, "plan": string(plan)}
	callCtx, cancel := s.opts.callContext(ctx)
	defer cancel()
	url, err := s.proc.CreateCheckoutSession(callCtx, processor.CheckoutRequest{
		CustomerID: customerID,
		PriceID:    priceID,
		SuccessURL: s.opts.SuccessURL,
		CancelURL:  s.opts.CancelURL,
		Metadata:   metadata,
	})
	if err != nil {
		lg.Error().Err(err).Str("customer_id", customerID).Msg("Failed to create checkout session")
		return "", processorError(err)
	}
	lg.Info().Str("customer_id", customerID).Msg("Created checkout session")
	return url, nil
}

func (s *checkoutService) createCustomer(ctx context.Context, userID string) (string, error) {
	var email string
	if s.users != nil {
		u, err := s.users.GetUserByID(ctx, userID)
		if err != nil {
			return "", err
		}
		if u != nil {
			email = u.Email
		}
	}

	callCtx, cancel := s.opts.callContext(ctx)
	defer cancel()
	customerID, err := s.proc.CreateCustomer(callCtx, email, map[string]string{"user_id": userID})
	if err != nil {
		return "", processorError(err)
	}
	linked, err := s.subs.LinkCustomer(ctx, userID, customerID)
	if err != nil {
		return "", fmt.Errorf("store customer id: %w", err)
	}
	if linked != customerID {
		// A concurrent checkout attached its customer first.
		s.logger.Warn().
			Str("user_id", userID).
			Str("customer_id", linked).
			Str("discarded_customer_id", customerID).
			Msg("Customer already linked, discarding new processor customer")
	}
	return linked, nil
}

// liveSubscriptions returns the customer's active, trialing and past-due
// subscriptions, checking the active filter and the full list.
func (s *checkoutService) liveSubscriptions(ctx context.Context, customerID string) ([]processor.Subscription, error) {
	seen := make(map[string]bool)
	var live []processor.Subscription
	for _, filter := range []processor.ListFilter{processor.ListActive, processor.ListAll} {
		callCtx, cancel := s.opts.callContext(ctx)
		subs, err := s.proc.ListSubscriptions(callCtx, customerID, filter)
		cancel()
		if err != nil {
			return nil, err
		}
		for _, sub := range subs {
			if seen[sub.ID] || !isLive(LocalStatus(sub.Status)) {
				continue
			}
			seen[sub.ID] = true
			live = append(live, sub)
		}
	}
	return live, nil
}
