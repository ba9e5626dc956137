package dto

import "time"

// CheckoutRequest is the body of POST /billing/checkout.
type CheckoutRequest struct {
	Plan string `json:"plan" validate:"required,oneof=monthly yearly"`
}

// URLResponse carries a hosted processor page (checkout or billing portal).
type URLResponse struct {
	URL string `json:"url"`
}

// SubscriptionResponse is the user's local subscription snapshot.
type SubscriptionResponse struct {
	Status             string     `json:"status"`
	Plan               *string    `json:"plan"`
	CurrentPeriodStart *time.Time `json:"current_period_start"`
	CurrentPeriodEnd   *time.Time `json:"current_period_end"`
	CancelAtPeriodEnd  bool       `json:"cancel_at_period_end"`
}

type CleanupResponse struct {
	Found              int    `json:"found"`
	Canceled           int    `json:"canceled"`
	KeptSubscriptionID string `json:"kept_subscription_id,omitempty"`
}

type WebhookResponse struct {
	Received bool `json:"received"`
}

// ErrorResponse is returned for every failed request.
type ErrorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}
