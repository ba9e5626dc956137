// Package processortest provides an in-memory Processor for tests.
package processortest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"matchday/internal/processor"
)

// Fake is a mutex-guarded in-memory processor. Subscriptions are created
// through AddSubscription or CompleteCheckout; errors can be injected per method.
type Fake struct {
	mu        sync.Mutex
	seq       int
	now       time.Time
	customers map[string]map[string]string
	subs      map[string]*processor.Subscription
	sessions  []processor.CheckoutRequest
	errs      map[string]error
	calls     map[string]int
	hooks     map[string]func()
}

func New() *Fake {
	return &Fake{
		now:       time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		customers: make(map[string]map[string]string),
		subs:      make(map[string]*processor.Subscription),
		errs:      make(map[string]error),
		calls:     make(map[string]int),
		hooks:     make(map[string]func()),
	}
}

// SetError makes every call to method fail with err until cleared with a nil err.
func (f *Fake) SetError(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.errs, method)
		return
	}
	f.errs[method] = err
}

// SetHook runs fn at the start of each call to method, outside the fake's
// lock, so concurrent callers can be held at a barrier. Only CreateCustomer
// runs hooks.
func (f *Fake) SetHook(method string, fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hooks[method] = fn
}

// Calls returns how many times method was invoked.
func (f *Fake) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// Sessions returns the checkout sessions created so far.
func (f *Fake) Sessions() []processor.CheckoutRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]processor.CheckoutRequest(nil), f.sessions...)
}

// AddSubscription stores sub, assigning an id and a creation time one second
// after the previous subscription when they are unset.
func (f *Fake) AddSubscription(sub processor.Subscription) processor.Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sub.ID == "" {
		sub.ID = f.nextID("sub")
	}
	if sub.Created.IsZero() {
		f.now = f.now.Add(time.Second)
		sub.Created = f.now
	}
	s := sub
	f.subs[sub.ID] = &s
	return sub
}

// CompleteCheckout simulates a customer paying for a checkout session and
// returns the resulting active subscription.
func (f *Fake) CompleteCheckout(req processor.CheckoutRequest) processor.Subscription {
	start := f.clock()
	end := start.AddDate(0, 1, 0)
	return f.AddSubscription(processor.Subscription{
		CustomerID:         req.CustomerID,
		Status:             processor.StatusActive,
		PriceID:            req.PriceID,
		CurrentPeriodStart: &start,
		CurrentPeriodEnd:   &end,
		Metadata:           req.Metadata,
	})
}

// Subscription returns a copy of the stored subscription.
func (f *Fake) Subscription(id string) (processor.Subscription, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.subs[id]
	if !ok {
		return processor.Subscription{}, false
	}
	return *s, true
}

// UpdateSubscription applies fn to the stored subscription.
func (f *Fake) UpdateSubscription(id string, fn func(*processor.Subscription)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.subs[id]; ok {
		fn(s)
	}
}

func (f *Fake) CreateCustomer(_ context.Context, email string, metadata map[string]string) (string, error) {
	f.runHook("CreateCustomer")
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateCustomer"); err != nil {
		return "", err
	}
	id := f.nextID("cus")
	md := map[string]string{"email": email}
	for k, v := range metadata {
		md[k] = v
	}
	f.customers[id] = md
	return id, nil
}

func (f *Fake) CreateCheckoutSession(_ context.Context, req processor.CheckoutRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateCheckoutSession"); err != nil {
		return "", err
	}
	f.sessions = append(f.sessions, req)
	return "https://checkout.test/" + f.nextID("cs"), nil
}

func (f *Fake) ListSubscriptions(_ context.Context, customerID string, filter processor.ListFilter) ([]processor.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ListSubscriptions"); err != nil {
		return nil, err
	}
	var out []processor.Subscription
	for _, s := range f.subs {
		if s.CustomerID != customerID {
			continue
		}
		if filter == processor.ListActive && s.Status != processor.StatusActive {
			continue
		}
		out = append(out, *s)
	}
	// Newest first, like the processor's list endpoint.
	sort.Slice(out, func(i, j int) bool { return out[i].Created.After(out[j].Created) })
	return out, nil
}

func (f *Fake) CancelSubscription(_ context.Context, subscriptionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CancelSubscription"); err != nil {
		return err
	}
	s, ok := f.subs[subscriptionID]
	if !ok {
		return fmt.Errorf("%w: no such subscription %s", processor.ErrRejected, subscriptionID)
	}
	s.Status = processor.StatusCanceled
	s.CancelAtPeriodEnd = false
	return nil
}

func (f *Fake) ResumeSubscription(_ context.Context, subscriptionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ResumeSubscription"); err != nil {
		return err
	}
	s, ok := f.subs[subscriptionID]
	if !ok {
		return fmt.Errorf("%w: no such subscription %s", processor.ErrRejected, subscriptionID)
	}
	s.CancelAtPeriodEnd = false
	return nil
}

func (f *Fake) CreatePortalSession(_ context.Context, customerID, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreatePortalSession"); err != nil {
		return "", err
	}
	return "https://portal.test/" + customerID, nil
}

func (f *Fake) runHook(method string) {
	f.mu.Lock()
	fn := f.hooks[method]
	f.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (f *Fake) record(method string) error {
	f.calls[method]++
	return f.errs[method]
}

func (f *Fake) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s_%d", prefix, f.seq)
}

func (f *Fake) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}
