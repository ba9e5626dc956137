package processortest

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v82/webhook"
)

// SignedEvent builds a webhook payload of the given type wrapping object and
// signs it with secret. It returns the raw body and the Stripe-Signature header.
func SignedEvent(t testing.TB, secret, id, eventType string, object any) ([]byte, string) {
	t.Helper()
	obj, err := json.Marshal(object)
	if err != nil {
		t.Fatalf("marshal event object: %v", err)
	}
	payload, err := json.Marshal(map[string]any{
		"id":          id,
		"object":      "event",
		"type":        eventType,
		"api_version": "2025-03-31.basil",
		"created":     time.Now().Unix(),
		"data":        map[string]json.RawMessage{"object": obj},
	})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
	})
	return signed.Payload, signed.Header
}

// SubscriptionObject renders a subscription in the shape the processor sends
// in customer.subscription.* events.
func SubscriptionObject(id, customerID, status, priceID string, cancelAtPeriodEnd bool, periodStart, periodEnd time.Time, metadata map[string]string) map[string]any {
	return map[string]any{
		"id":                   id,
		"object":               "subscription",
		"customer":             customerID,
		"status":               status,
		"cancel_at_period_end": cancelAtPeriodEnd,
		"created":              periodStart.Unix(),
		"metadata":             metadata,
		"items": map[string]any{
			"object": "list",
			"data": []map[string]any{{
				"id":                   "si_" + id,
				"object":               "subscription_item",
				"current_period_start": periodStart.Unix(),
				"current_period_end":   periodEnd.Unix(),
				"price":                map[string]any{"id": priceID, "object": "price"},
			}},
		},
	}
}

// InvoiceObject renders an invoice tied to subscriptionID ("" for a one-off invoice).
func InvoiceObject(id, customerID, subscriptionID string) map[string]any {
	inv := map[string]any{
		"id":       id,
		"object":   "invoice",
		"customer": customerID,
	}
	if subscriptionID != "" {
		inv["parent"] = map[string]any{
			"type": "subscription_details",
			"subscription_details": map[string]any{
				"subscription": subscriptionID,
			},
		}
	}
	return inv
}
