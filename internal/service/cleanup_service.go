package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"matchday/internal/metrics"
	"matchday/internal/processor"
	"matchday/internal/repository"

	"github.com/rs/zerolog"
)

// CleanupResult reports what a duplicate cleanup run did.
type CleanupResult struct {
	Found              int    `json:"found"`
	Canceled           int    `json:"canceled"`
	KeptSubscriptionID string `json:"kept_subscription_id,omitempty"`
}

// CleanupService converges a customer to at most one live subscription.
type CleanupService interface {
	CleanupDuplicates(ctx context.Context, userID string) (*CleanupResult, error)
}

type cleanupService struct {
	subs       repository.SubscriptionRepository
	proc       processor.Processor
	reconciler Reconciler
	opts       BillingOptions
	metrics    *metrics.Collector
	logger     zerolog.Logger
}

func NewCleanupService(subs repository.SubscriptionRepository, proc processor.Processor, reconciler Reconciler, opts BillingOptions, m *metrics.Collector, logger zerolog.Logger) CleanupService {
	return &cleanupService{
		subs:       subs,
		proc:       proc,
		reconciler: reconciler,
		opts:       opts,
		metrics:    m,
		logger:     logger.With().Str("service", "CleanupService").Logger(),
	}
}

// CleanupDuplicates keeps the most recently created active or trialing
// subscription, cancels the others and points the local row at the survivor.
// Individual cancellation failures are joined into the returned error; the
// survivor is persisted regardless.
func (s *cleanupService) CleanupDuplicates(ctx context.Context, userID string) (*CleanupResult, error) {
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
	customerID := row.CustomerID()
	if customerID == "" {
		return nil, newError(ErrNotFound, ReasonNoCustomer, nil)
	}
	lg := s.logger.With().Str("user_id", userID).Str("customer_id", customerID).Logger()

	callCtx, cancel := s.opts.callContext(ctx)
	all, err := s.proc.ListSubscriptions(callCtx, customerID, processor.ListAll)
	cancel()
	if err != nil {
		lg.Error().Err(err).Msg("Failed to list processor subscriptions")
		return nil, processorError(err)
	}

	var live []processor.Subscription
	for _, sub := range all {
		if sub.Status == processor.StatusActive || sub.Status == processor.StatusTrialing {
			live = append(live, sub)
		}
	}
	result := &CleanupResult{Found: len(live)}
	if len(live) == 0 {
		return result, nil
	}

	sort.SliceStable(live, func(i, j int) bool {
		if !live[i].Created.Equal(live[j].Created) {
			return live[i].Created.After(live[j].Created)
		}
		return live[i].ID > live[j].ID
	})
	survivor := live[0]
	result.KeptSubscriptionID = survivor.ID
	if len(live) == 1 {
		return result, nil
	}

	var errs []error
	for _, dup := range live[1:] {
		callCtx, cancel := s.opts.callContext(ctx)
		err := s.proc.CancelSubscription(callCtx, dup.ID)
		cancel()
		if err != nil {
			lg.Error().Err(err).Str("subscription_id", dup.ID).Msg("Failed to cancel duplicate subscription")
			errs = append(errs, fmt.Errorf("cancel %s: %w", dup.ID, err))
			continue
		}
		result.Canceled++
		lg.Info().Str("subscription_id", dup.ID).Msg("Canceled duplicate subscription")
	}
	s.metrics.RecordCleanupCanceled(result.Canceled)

	if err := s.reconciler.ApplySubscription(ctx, userID, survivor); err != nil {
		lg.Error().Err(err).Str("subscription_id", survivor.ID).Msg("Failed to persist surviving subscription")
		errs = append(errs, err)
		return result, errors.Join(errs...)
	}
	lg.Info().Int("found", result.Found).Int("canceled", result.Canceled).Str("kept_subscription_id", survivor.ID).Msg("Duplicate cleanup finished")

	if len(errs) > 0 {
		return result, processorError(errors.Join(errs...))
	}
	return result, nil
}
