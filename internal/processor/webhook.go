package processor

import (
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeVerifier checks Stripe-Signature headers against the endpoint secret.
type StripeVerifier struct {
	secret string
}

func NewStripeVerifier(secret string) *StripeVerifier {
	return &StripeVerifier{secret: secret}
}

// ConstructEvent verifies the payload and decodes it. Unknown event types
// yield ErrUnhandledEvent.
func (v *StripeVerifier) ConstructEvent(payload []byte, signature string) (Event, error) {
	// Events are decoded by hand below, so a dashboard API version newer than
	// the SDK's is fine.
	ev, err := webhook.ConstructEventWithOptions(payload, signature, v.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	return ParseEvent(ev)
}

// ParseEvent maps a Stripe event onto the closed Event set.
func ParseEvent(ev stripe.Event) (Event, error) {
	env := Envelope{ID: ev.ID, Type: string(ev.Type)}
	if ev.Data == nil {
		return nil, fmt.Errorf("event %s has no data", ev.ID)
	}

	switch ev.Type {
	case "customer.subscription.created", "customer.subscription.updated",
		"customer.subscription.paused", "customer.subscription.resumed":
		var s stripe.Subscription
		if err := json.Unmarshal(ev.Data.Raw, &s); err != nil {
			return nil, fmt.Errorf("decode %s: %w", ev.Type, err)
		}
		return SubscriptionUpdated{Envelope: env, Subscription: FromStripeSubscription(&s)}, nil

	case "customer.subscription.deleted":
		var s stripe.Subscription
		if err := json.Unmarshal(ev.Data.Raw, &s); err != nil {
			return nil, fmt.Errorf("decode %s: %w", ev.Type, err)
		}
		return SubscriptionDeleted{Envelope: env, Subscription: FromStripeSubscription(&s)}, nil

	case "invoice.paid", "invoice.payment_succeeded":
		inv, err := decodeInvoice(ev)
		if err != nil {
			return nil, err
		}
		return InvoicePaid{Envelope: env, InvoiceID: inv.ID, CustomerID: customerID(inv.Customer), SubscriptionID: invoiceSubscriptionID(inv)}, nil

	case "invoice.payment_failed":
		inv, err := decodeInvoice(ev)
		if err != nil {
			return nil, err
		}
		return InvoicePaymentFailed{Envelope: env, InvoiceID: inv.ID, CustomerID: customerID(inv.Customer), SubscriptionID: invoiceSubscriptionID(inv)}, nil

	case "checkout.session.completed":
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &cs); err != nil {
			return nil, fmt.Errorf("decode %s: %w", ev.Type, err)
		}
		out := CheckoutCompleted{Envelope: env, SessionID: cs.ID, CustomerID: customerID(cs.Customer), Metadata: cs.Metadata}
		if cs.Subscription != nil {
			out.SubscriptionID = cs.Subscription.ID
		}
		return out, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrUnhandledEvent, ev.Type)
}

func decodeInvoice(ev stripe.Event) (*stripe.Invoice, error) {
	var inv stripe.Invoice
	if err := json.Unmarshal(ev.Data.Raw, &inv); err != nil {
		return nil, fmt.Errorf("decode %s: %w", ev.Type, err)
	}
	return &inv, nil
}

func invoiceSubscriptionID(inv *stripe.Invoice) string {
	if inv.Parent != nil &&
		inv.Parent.SubscriptionDetails != nil &&
		inv.Parent.SubscriptionDetails.Subscription != nil {
		return inv.Parent.SubscriptionDetails.Subscription.ID
	}
	return ""
}

func customerID(c *stripe.Customer) string {
	if c == nil {
		return ""
	}
	return c.ID
}
