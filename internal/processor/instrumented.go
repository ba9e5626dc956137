package processor

import (
	"context"
	"time"
)

// CallRecorder receives the outcome and latency of every processor call.
type CallRecorder interface {
	RecordProcessorCall(operation string, err error, d time.Duration)
}

type instrumented struct {
	next Processor
	rec  CallRecorder
}

// Instrument wraps p so every call is reported to rec.
func Instrument(p Processor, rec CallRecorder) Processor {
	return &instrumented{next: p, rec: rec}
}

func (i *instrumented) observe(op string, start time.Time, err *error) {
	i.rec.RecordProcessorCall(op, *err, time.Since(start))
}

func (i *instrumented) CreateCustomer(ctx context.Context, email string, metadata map[string]string) (id string, err error) {
	defer i.observe("create_customer", time.Now(), &err)
	return i.next.CreateCustomer(ctx, email, metadata)
}

func (i *instrumented) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (url string, err error) {
	defer i.observe("create_checkout_session", time.Now(), &err)
	return i.next.CreateCheckoutSession(ctx, req)
}

func (i *instrumented) ListSubscriptions(ctx context.Context, customerID string, filter ListFilter) (subs []Subscription, err error) {
	defer i.observe("list_subscriptions", time.Now(), &err)
	return i.next.ListSubscriptions(ctx, customerID, filter)
}

func (i *instrumented) CancelSubscription(ctx context.Context, subscriptionID string) (err error) {
	defer i.observe("cancel_subscription", time.Now(), &err)
	return i.next.CancelSubscription(ctx, subscriptionID)
}

func (i *instrumented) ResumeSubscription(ctx context.Context, subscriptionID string) (err error) {
	defer i.observe("resume_subscription", time.Now(), &err)
	return i.next.ResumeSubscription(ctx, subscriptionID)
}

func (i *instrumented) CreatePortalSession(ctx context.Context, customerID, returnURL string) (url string, err error) {
	defer i.observe("create_portal_session", time.Now(), &err)
	return i.next.CreatePortalSession(ctx, customerID, returnURL)
}
