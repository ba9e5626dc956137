package service

import (
	"context"
	"fmt"

	"matchday/internal/model"
	"matchday/internal/processor"
	"matchday/internal/repository"

	"github.com/rs/zerolog"
)

// LifecycleService carries out user-initiated changes to an existing subscription.
// Local writes happen only after the processor accepted the change.
type LifecycleService interface {
	// GetSubscription returns the user's local state, defaulting to inactive.
	GetSubscription(ctx context.Context, userID string) (*model.Subscription, error)
	Cancel(ctx context.Context, userID string) (*model.Subscription, error)
	Reactivate(ctx context.Context, userID string) (*model.Subscription, error)
	CreatePortalSession(ctx context.Context, userID string) (string, error)
}

type lifecycleService struct {
	subs   repository.SubscriptionRepository
	proc   processor.Processor
	opts   BillingOptions
	logger zerolog.Logger
}

func NewLifecycleService(subs repository.SubscriptionRepository, proc processor.Processor, opts BillingOptions, logger zerolog.Logger) LifecycleService {
	return &lifecycleService{
		subs:   subs,
		proc:   proc,
		opts:   opts,
		logger: logger.With().Str("service", "LifecycleService").Logger(),
	}
}

func (s *lifecycleService) GetSubscription(ctx context.Context, userID string) (*model.Subscription, error) {
	if userID == "" {
		return nil, newError(ErrAuthenticationRequired, ReasonUnauthorized, nil)
	}
	row, err := s.subs.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return &model.Subscription{UserID: userID, Status: model.StatusInactive}, nil
	}
	return row, nil
}

func (s *lifecycleService) Cancel(ctx context.Context, userID string) (*model.Subscription, error) {
	row, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	subID := row.SubscriptionID()
	if subID == "" {
		return nil, newError(ErrNotFound, ReasonNoSubscription, nil)
	}
	lg := s.logger.With().Str("user_id", userID).Str("subscription_id", subID).Logger()

	callCtx, cancel := s.opts.callContext(ctx)
	defer cancel()
	if err := s.proc.CancelSubscription(callCtx, subID); err != nil {
		lg.Error().Err(err).Msg("Failed to cancel subscription at processor")
		return nil, processorError(err)
	}

	if err := s.subs.MarkCanceled(ctx, userID); err != nil {
		lg.Error().Err(err).Msg("Subscription canceled at processor but local update failed")
		return nil, fmt.Errorf("mark canceled: %w", err)
	}
	lg.Info().Msg("Subscription canceled")
	return s.subs.GetByUserID(ctx, userID)
}

func (s *lifecycleService) Reactivate(ctx context.Context, userID string) (*model.Subscription, error) {
	row, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	subID := row.SubscriptionID()
	if subID == "" {
		return nil, newError(ErrNotFound, ReasonNoSubscription, nil)
	}
	if row.Status != model.StatusActive || !row.CancelAtPeriodEnd {
		return nil, newError(ErrInvalidState, ReasonNotScheduledForCancellation, nil)
	}
	lg := s.logger.With().Str("user_id", userID).Str("subscription_id", subID).Logger()

	callCtx, cancel := s.opts.callContext(ctx)
	defer cancel()
	if err := s.proc.ResumeSubscription(callCtx, subID); err != nil {
		lg.Error().Err(err).Msg("Failed to clear scheduled cancellation at processor")
		return nil, processorError(err)
	}

	if err := s.subs.SetCancelAtPeriodEnd(ctx, userID, false); err != nil {
		lg.Error().Err(err).Msg("Subscription resumed at processor but local update failed")
		return nil, fmt.Errorf("clear cancel at period end: %w", err)
	}
	lg.Info().Msg("Subscription reactivated")
	return s.subs.GetByUserID(ctx, userID)
}

func (s *lifecycleService) CreatePortalSession(ctx context.Context, userID string) (string, error) {
	row, err := s.load(ctx, userID)
	if err != nil {
		return "", err
	}
	customerID := row.CustomerID()
	if customerID == "" {
		return "", newError(ErrNotFound, ReasonNoCustomer, nil)
	}

	callCtx, cancel := s.opts.callContext(ctx)
	defer cancel()
	url, err := s.proc.CreatePortalSession(callCtx, customerID, s.opts.PortalReturnURL)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Str("customer_id", customerID).Msg("Failed to create billing portal session")
		return "", processorError(err)
	}
	return url, nil
}

// load checks the caller and configuration and returns the user's row, which
// may be an empty inactive placeholder.
func (s *lifecycleService) load(ctx context.Context, userID string) (*model.Subscription, error) {
	if userID == "" {
		return nil, newError(ErrAuthenticationRequired, ReasonUnauthorized, nil)
	}
	if s.proc == nil {
		return nil, newError(ErrNotConfigured, ReasonNotConfigured, nil)
	}
	row, err := s.subs.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return &model.Subscription{UserID: userID, Status: model.StatusInactive}, nil
	}
	return row, nil
}
