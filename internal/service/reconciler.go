package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"matchday/internal/model"
	"matchday/internal/processor"
	"matchday/internal/pubsub"
	"matchday/internal/repository"

	"github.com/rs/zerolog"
)

// Outcome describes what the reconciler did with an event.
type Outcome string

const (
	OutcomeApplied Outcome = "applied"
	OutcomeNoop    Outcome = "noop"
	// OutcomeOrphan means no local row could be matched to the event.
	OutcomeOrphan Outcome = "orphan"
	// OutcomeStale means the event names a subscription other than the one on file.
	OutcomeStale Outcome = "stale"
)

// notifyTimeout bounds the change notification publish so a slow broker
// cannot hold up the webhook acknowledgement.
const notifyTimeout = 2 * time.Second

// Reconciler is the single authoritative writer of subscription state.
type Reconciler interface {
	Apply(ctx context.Context, ev processor.Event) (Outcome, error)
	// ApplySubscription overwrites the user's row with a processor subscription.
	ApplySubscription(ctx context.Context, userID string, sub processor.Subscription) error
}

type eventHandler func(ctx context.Context, ev processor.Event) (Outcome, error)

type reconciler struct {
	subs      repository.SubscriptionRepository
	prices    PriceCatalog
	publisher pubsub.Publisher
	topic     string
	timeout   time.Duration
	logger    zerolog.Logger
	handlers  map[processor.EventKind]eventHandler
}

// SubscriptionChanged is published after every local mutation.
type SubscriptionChanged struct {
	UserID           string                   `json:"user_id"`
	Status           model.SubscriptionStatus `json:"status"`
	Plan             *model.Plan              `json:"plan"`
	CurrentPeriodEnd *time.Time               `json:"current_period_end"`
	EventID          string                   `json:"event_id,omitempty"`
}

// NewReconciler builds the reconciler. Change notifications go to topic;
// an empty topic disables them.
func NewReconciler(subs repository.SubscriptionRepository, prices PriceCatalog, publisher pubsub.Publisher, topic string, logger zerolog.Logger) Reconciler {
	if publisher == nil || topic == "" {
		publisher = pubsub.NoopPublisher{}
	}
	r := &reconciler{
		subs:      subs,
		prices:    prices,
		publisher: publisher,
		topic:     topic,
		timeout:   notifyTimeout,
		logger:    logger.With().Str("service", "Reconciler").Logger(),
	}
	r.handlers = map[processor.EventKind]eventHandler{
		processor.KindSubscriptionUpdated:  handle(r.onSubscriptionUpdated),
		processor.KindSubscriptionDeleted:  handle(r.onSubscriptionDeleted),
		processor.KindInvoicePaid:          handle(r.onInvoicePaid),
		processor.KindInvoicePaymentFailed: handle(r.onInvoicePaymentFailed),
		processor.KindCheckoutCompleted:    handle(r.onCheckoutCompleted),
	}
	return r
}

func handle[E processor.Event](fn func(context.Context, E) (Outcome, error)) eventHandler {
	return func(ctx context.Context, ev processor.Event) (Outcome, error) {
		e, ok := ev.(E)
		if !ok {
			return "", fmt.Errorf("event %s: unexpected payload %T", ev.EventID(), ev)
		}
		return fn(ctx, e)
	}
}

func (r *reconciler) Apply(ctx context.Context, ev processor.Event) (Outcome, error) {
	h, ok := r.handlers[ev.Kind()]
	if !ok {
		return OutcomeNoop, nil
	}
	return h(ctx, ev)
}

func (r *reconciler) onSubscriptionUpdated(ctx context.Context, e processor.SubscriptionUpdated) (Outcome, error) {
	s := e.Subscription
	lg := r.logger.With().Str("event_id", e.ID).Str("subscription_id", s.ID).Str("customer_id", s.CustomerID).Logger()

	row, err := r.resolveRow(ctx, s.CustomerID, s.Metadata)
	if err != nil {
		return "", err
	}
	if row == nil {
		lg.Warn().Msg("No subscription row for customer; ignoring snapshot")
		return OutcomeOrphan, nil
	}

	status := LocalStatus(s.Status)
	if current := row.SubscriptionID(); current != "" && current != s.ID && !isLive(status) {
		lg.Info().Str("user_id", row.UserID).Str("current_subscription_id", current).Str("status", string(s.Status)).
			Msg("Ignoring terminal snapshot for a subscription that is not on file")
		return OutcomeStale, nil
	}

	if err := r.writeSnapshot(ctx, row.UserID, s); err != nil {
		return "", err
	}
	lg.Info().Str("user_id", row.UserID).Str("status", string(status)).Msg("Applied subscription snapshot")
	r.notify(ctx, row.UserID, e.ID)
	return OutcomeApplied, nil
}

func (r *reconciler) onSubscriptionDeleted(ctx context.Context, e processor.SubscriptionDeleted) (Outcome, error) {
	s := e.Subscription
	lg := r.logger.With().Str("event_id", e.ID).Str("subscription_id", s.ID).Str("customer_id", s.CustomerID).Logger()

	row, err := r.rowForCustomer(ctx, s.CustomerID)
	if err != nil {
		return "", err
	}
	if row == nil {
		lg.Warn().Msg("No subscription row for customer; ignoring deletion")
		return OutcomeOrphan, nil
	}
	if current := row.SubscriptionID(); current != "" && current != s.ID {
		lg.Info().Str("user_id", row.UserID).Str("current_subscription_id", current).Msg("Ignoring deletion of a subscription that is not on file")
		return OutcomeStale, nil
	}

	if err := r.subs.MarkCanceled(ctx, row.UserID); err != nil {
		return "", fmt.Errorf("mark canceled: %w", err)
	}
	lg.Info().Str("user_id", row.UserID).Msg("Subscription canceled by processor")
	r.notify(ctx, row.UserID, e.ID)
	return OutcomeApplied, nil
}

func (r *reconciler) onInvoicePaid(ctx context.Context, e processor.InvoicePaid) (Outcome, error) {
	return r.applyInvoice(ctx, e.Envelope, e.InvoiceID, e.CustomerID, e.SubscriptionID, model.StatusActive)
}

func (r *reconciler) onInvoicePaymentFailed(ctx context.Context, e processor.InvoicePaymentFailed) (Outcome, error) {
	return r.applyInvoice(ctx, e.Envelope, e.InvoiceID, e.CustomerID, e.SubscriptionID, model.StatusPastDue)
}

func (r *reconciler) applyInvoice(ctx context.Context, env processor.Envelope, invoiceID, customerID, subscriptionID string, status model.SubscriptionStatus) (Outcome, error) {
	lg := r.logger.With().Str("event_id", env.ID).Str("invoice_id", invoiceID).Str("customer_id", customerID).Logger()
	if subscriptionID == "" {
		lg.Debug().Msg("Invoice is not tied to a subscription; skipping")
		return OutcomeNoop, nil
	}

	row, err := r.rowForCustomer(ctx, customerID)
	if err != nil {
		return "", err
	}
	if row == nil {
		lg.Warn().Msg("No subscription row for customer; ignoring invoice")
		return OutcomeOrphan, nil
	}
	if current := row.SubscriptionID(); current != "" && current != subscriptionID {
		lg.Info().Str("user_id", row.UserID).Str("subscription_id", subscriptionID).Str("current_subscription_id", current).
			Msg("Ignoring invoice for a subscription that is not on file")
		return OutcomeStale, nil
	}

	if err := r.subs.UpdateStatus(ctx, row.UserID, status); err != nil {
		return "", fmt.Errorf("update status: %w", err)
	}
	lg.Info().Str("user_id", row.UserID).Str("status", string(status)).Msg("Applied invoice status")
	r.notify(ctx, row.UserID, env.ID)
	return OutcomeApplied, nil
}

func (r *reconciler) onCheckoutCompleted(_ context.Context, e processor.CheckoutCompleted) (Outcome, error) {
	r.logger.Info().
		Str("event_id", e.ID).
		Str("session_id", e.SessionID).
		Str("customer_id", e.CustomerID).
		Str("subscription_id", e.SubscriptionID).
		Str("user_id", e.Metadata["user_id"]).
		Msg("Checkout completed")
	return OutcomeNoop, nil
}

func (r *reconciler) ApplySubscription(ctx context.Context, userID string, sub processor.Subscription) error {
	if err := r.writeSnapshot(ctx, userID, sub); err != nil {
		return err
	}
	r.notify(ctx, userID, "")
	return nil
}

func (r *reconciler) writeSnapshot(ctx context.Context, userID string, s processor.Subscription) error {
	snap := model.SubscriptionSnapshot{
		ExternalCustomerID:     s.CustomerID,
		ExternalSubscriptionID: s.ID,
		Status:                 LocalStatus(s.Status),
		Plan:                   r.prices.PlanFor(s.PriceID),
		CurrentPeriodStart:     s.CurrentPeriodStart,
		CurrentPeriodEnd:       s.CurrentPeriodEnd,
		CancelAtPeriodEnd:      s.CancelAtPeriodEnd,
	}
	if err := r.subs.ApplySnapshot(ctx, userID, snap); err != nil {
		return fmt.Errorf("apply snapshot: %w", err)
	}
	return nil
}

func (r *reconciler) rowForCustomer(ctx context.Context, customerID string) (*model.Subscription, error) {
	if customerID == "" {
		return nil, nil
	}
	row, err := r.subs.GetByCustomerID(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("lookup by customer: %w", err)
	}
	return row, nil
}

// resolveRow finds the row by customer id, falling back to the user_id
// metadata set at checkout when the row is unlinked or linked to the same customer.
func (r *reconciler) resolveRow(ctx context.Context, customerID string, metadata map[string]string) (*model.Subscription, error) {
	row, err := r.rowForCustomer(ctx, customerID)
	if err != nil || row != nil {
		return row, err
	}
	userID := metadata["user_id"]
	if userID == "" {
		return nil, nil
	}
	row, err = r.subs.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("lookup by metadata user: %w", err)
	}
	if row == nil {
		return nil, nil
	}
	if linked := row.CustomerID(); linked != "" && linked != customerID {
		r.logger.Warn().
			Str("user_id", userID).
			Str("customer_id", customerID).
			Str("linked_customer_id", linked).
			Msg("Metadata user is linked to another customer; not applying")
		return nil, nil
	}
	return row, nil
}

func (r *reconciler) notify(ctx context.Context, userID, eventID string) {
	if _, noop := r.publisher.(pubsub.NoopPublisher); noop {
		return
	}
	row, err := r.subs.GetByUserID(ctx, userID)
	if err != nil || row == nil {
		r.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to load subscription for change notification")
		return
	}
	payload, err := json.Marshal(SubscriptionChanged{
		UserID:           row.UserID,
		Status:           row.Status,
		Plan:             row.Plan,
		CurrentPeriodEnd: row.CurrentPeriodEnd,
		EventID:          eventID,
	})
	if err != nil {
		r.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to encode change notification")
		return
	}
	attrs := map[string]string{"event_type": "subscription.changed", "user_id": userID}
	pubCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if _, err := r.publisher.Publish(pubCtx, r.topic, payload, attrs); err != nil {
		r.logger.Error().Err(err).Str("user_id", userID).Str("topic", r.topic).Msg("Failed to publish change notification")
	}
}

// LocalStatus maps a processor status onto the local status set.
func LocalStatus(s processor.Status) model.SubscriptionStatus {
	switch s {
	case processor.StatusActive:
		return model.StatusActive
	case processor.StatusTrialing:
		return model.StatusTrialing
	case processor.StatusPastDue, processor.StatusUnpaid:
		return model.StatusPastDue
	case processor.StatusCanceled, processor.StatusIncompleteExpired:
		return model.StatusCanceled
	default:
		return model.StatusInactive
	}
}

func isLive(s model.SubscriptionStatus) bool {
	return s == model.StatusActive || s == model.StatusTrialing || s == model.StatusPastDue
}
