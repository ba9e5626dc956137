package service

import (
	"errors"
	"fmt"

	"matchday/internal/processor"
)

var (
	ErrAuthenticationRequired = errors.New("authentication required")
	ErrNotConfigured          = errors.New("billing is not configured")
	ErrDuplicateSubscription  = errors.New("an active subscription already exists")
	ErrNotFound               = errors.New("not found")
	ErrInvalidSignature       = errors.New("invalid webhook signature")
	ErrUpstreamTransient      = errors.New("payment processor unavailable")
	ErrInvalidState           = errors.New("invalid subscription state")
	ErrInvalidPlan            = errors.New("invalid plan")
	ErrUpstream               = errors.New("payment processor rejected the request")
	ErrUserNotFound           = errors.New("user not found")
	ErrUserExists             = errors.New("user already exists")
)

// Stable machine-readable reasons returned to clients.
const (
	ReasonUnauthorized                = "unauthorized"
	ReasonNotConfigured               = "not_configured"
	ReasonDuplicateSamePlan           = "duplicate_same_plan"
	ReasonDuplicateDifferentPlan      = "duplicate_different_plan"
	ReasonNoSubscription              = "no_subscription"
	ReasonNoCustomer                  = "no_customer"
	ReasonInvalidSignature            = "invalid_signature"
	ReasonUpstreamUnavailable         = "upstream_unavailable"
	ReasonNotScheduledForCancellation = "not_scheduled_for_cancellation"
	ReasonInvalidPlan                 = "invalid_plan"
	ReasonProcessorError              = "processor_error"
)

// Error is a domain failure. Kind is one of the sentinel errors above and is
// matched with errors.Is.
type Error struct {
	Kind   error
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (%s): %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s (%s)", e.Kind, e.Reason)
}

func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func newError(kind error, reason string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}

// Reason extracts the client-facing reason from err, or "" if err is not a domain error.
func Reason(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}

// processorError classifies a failed processor call.
func processorError(err error) error {
	if processor.IsTransient(err) {
		return newError(ErrUpstreamTransient, ReasonUpstreamUnavailable, err)
	}
	return newError(ErrUpstream, ReasonProcessorError, err)
}
