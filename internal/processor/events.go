package processor

// EventKind identifies the events the reconciler acts on.
type EventKind string

const (
	KindSubscriptionUpdated  EventKind = "subscription.updated"
	KindSubscriptionDeleted  EventKind = "subscription.deleted"
	KindInvoicePaid          EventKind = "invoice.paid"
	KindInvoicePaymentFailed EventKind = "invoice.payment_failed"
	KindCheckoutCompleted    EventKind = "checkout.completed"
)

// Event is a verified processor notification. The set of implementations is closed.
type Event interface {
	Kind() EventKind
	EventID() string
	isEvent()
}

// Envelope carries the processor's event id and original type.
type Envelope struct {
	ID   string
	Type string
}

func (e Envelope) EventID() string { return e.ID }

// SubscriptionUpdated carries a full snapshot of a created or updated subscription.
type SubscriptionUpdated struct {
	Envelope
	Subscription Subscription
}

// SubscriptionDeleted is sent when a subscription reaches its terminal state.
type SubscriptionDeleted struct {
	Envelope
	Subscription Subscription
}

// InvoicePaid is sent when an invoice is paid. SubscriptionID is empty for one-off invoices.
type InvoicePaid struct {
	Envelope
	InvoiceID      string
	CustomerID     string
	SubscriptionID string
}

type InvoicePaymentFailed struct {
	Envelope
	InvoiceID      string
	CustomerID     string
	SubscriptionID string
}

type CheckoutCompleted struct {
	Envelope
	SessionID      string
	CustomerID     string
	SubscriptionID string
	Metadata       map[string]string
}

func (SubscriptionUpdated) Kind() EventKind  { return KindSubscriptionUpdated }
func (SubscriptionDeleted) Kind() EventKind  { return KindSubscriptionDeleted }
func (InvoicePaid) Kind() EventKind          { return KindInvoicePaid }
func (InvoicePaymentFailed) Kind() EventKind { return KindInvoicePaymentFailed }
func (CheckoutCompleted) Kind() EventKind    { return KindCheckoutCompleted }

func (SubscriptionUpdated) isEvent()  {}
func (SubscriptionDeleted) isEvent()  {}
func (InvoicePaid) isEvent()          {}
func (InvoicePaymentFailed) isEvent() {}
func (CheckoutCompleted) isEvent()    {}
