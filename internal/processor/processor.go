// Package processor wraps the external payment processor behind a small
// interface so the billing services never import the Stripe SDK directly.
package processor

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrTransient marks failures worth retrying: timeouts, network errors,
	// rate limits and processor-side 5xx responses.
	ErrTransient = errors.New("processor unavailable")
	// ErrRejected marks requests the processor refused.
	ErrRejected = errors.New("processor rejected request")
	// ErrInvalidSignature is returned when a webhook payload fails verification.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrUnhandledEvent is returned for webhook event types the service ignores.
	ErrUnhandledEvent = errors.New("unhandled event type")
)

// Status is a subscription status as reported by the processor.
type Status string

const (
	StatusActive            Status = "active"
	StatusTrialing          Status = "trialing"
	StatusPastDue           Status = "past_due"
	StatusUnpaid            Status = "unpaid"
	StatusCanceled          Status = "canceled"
	StatusIncomplete        Status = "incomplete"
	StatusIncompleteExpired Status = "incomplete_expired"
	StatusPaused            Status = "paused"
)

// ListFilter narrows ListSubscriptions. ListAll includes canceled subscriptions.
type ListFilter string

const (
	ListActive ListFilter = "active"
	ListAll    ListFilter = "all"
)

// Subscription is the processor's view of one subscription.
type Subscription struct {
	ID                 string
	CustomerID         string
	Status             Status
	PriceID            string
	CancelAtPeriodEnd  bool
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	Created            time.Time
	Metadata           map[string]string
}

// CheckoutRequest describes a hosted checkout session for a single recurring price.
type CheckoutRequest struct {
	CustomerID string
	PriceID    string
	SuccessURL string
	CancelURL  string
	// Metadata is attached to both the session and the subscription it creates.
	Metadata map[string]string
}

// Processor is the subset of the payment processor API the billing services use.
type Processor interface {
	CreateCustomer(ctx context.Context, email string, metadata map[string]string) (string, error)
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (string, error)
	ListSubscriptions(ctx context.Context, customerID string, filter ListFilter) ([]Subscription, error)
	// CancelSubscription cancels immediately with proration.
	CancelSubscription(ctx context.Context, subscriptionID string) error
	// ResumeSubscription clears a scheduled end-of-period cancellation.
	ResumeSubscription(ctx context.Context, subscriptionID string) error
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
}

// Verifier authenticates a raw webhook payload and decodes it into an Event.
type Verifier interface {
	ConstructEvent(payload []byte, signature string) (Event, error)
}
