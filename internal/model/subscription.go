package model

import "time"

// SubscriptionStatus is the local view of a user's paid subscription state.
type SubscriptionStatus string

const (
	StatusInactive SubscriptionStatus = "inactive"
	StatusTrialing SubscriptionStatus = "trialing"
	StatusActive   SubscriptionStatus = "active"
	StatusPastDue  SubscriptionStatus = "past_due"
	StatusCanceled SubscriptionStatus = "canceled"
)

// Plan is the billing interval a subscription is paid on.
type Plan string

const (
	PlanMonthly Plan = "monthly"
	PlanYearly  Plan = "yearly"
)

// Valid reports whether p is a purchasable plan.
func (p Plan) Valid() bool {
	return p == PlanMonthly || p == PlanYearly
}

// Subscription is the single subscription row owned by a user.
type Subscription struct {
	UserID                 string             `db:"user_id" json:"user_id"`
	ExternalCustomerID     *string            `db:"external_customer_id" json:"external_customer_id,omitempty"`
	ExternalSubscriptionID *string            `db:"external_subscription_id" json:"external_subscription_id,omitempty"`
	Status                 SubscriptionStatus `db:"status" json:"status"`
	Plan                   *Plan              `db:"plan" json:"plan"`
	CurrentPeriodStart     *time.Time         `db:"current_period_start" json:"current_period_start"`
	CurrentPeriodEnd       *time.Time         `db:"current_period_end" json:"current_period_end"`
	CancelAtPeriodEnd      bool               `db:"cancel_at_period_end" json:"cancel_at_period_end"`
	CreatedAt              time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time          `db:"updated_at" json:"updated_at"`
}

// CustomerID returns the external customer id or "" when none is on file.
func (s *Subscription) CustomerID() string {
	if s == nil || s.ExternalCustomerID == nil {
		return ""
	}
	return *s.ExternalCustomerID
}

// SubscriptionID returns the external subscription id or "" when none is on file.
func (s *Subscription) SubscriptionID() string {
	if s == nil || s.ExternalSubscriptionID == nil {
		return ""
	}
	return *s.ExternalSubscriptionID
}

// SubscriptionSnapshot is the full set of mutable fields carried by a
// processor snapshot. Applying it overwrites the row.
type SubscriptionSnapshot struct {
	ExternalCustomerID     string
	ExternalSubscriptionID string
	Status                 SubscriptionStatus
	Plan                   *Plan
	CurrentPeriodStart     *time.Time
	CurrentPeriodEnd       *time.Time
	CancelAtPeriodEnd      bool
}
