package payments

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// FakeProvider is an in-memory Provider useful for tests. Sessions and
// intents it creates can be completed with Pay / SetIntentStatus.
type FakeProvider struct {
	mu       sync.Mutex
	seq      int
	sessions map[string]CheckoutSession
	intents  []IntentRequest
	cards    map[string]Card

	// NextIntentStatus is the status given to the next created intent.
	// Empty means succeeded for confirmed intents and requires_payment_method otherwise.
	NextIntentStatus string
	// NextIntentError makes the next CreatePaymentIntent fail.
	NextIntentError error
	// Events maps a signature to the event ParseWebhook returns for it.
	Events map[string]Event
}

func NewFakeProvider() *FakeProvider {
	return &FakeProvider{
		sessions: make(map[string]CheckoutSession),
		cards:    make(map[string]Card),
		Events:   make(map[string]Event),
	}
}

func (f *FakeProvider) next(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s_%d", prefix, f.seq)
}

func (f *FakeProvider) CreateCustomer(context.Context, uuid.UUID, string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.next("cus"), nil
}

func (f *FakeProvider) CreateCheckoutSession(_ context.Context, req CheckoutRequest) (CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.next("cs")
	s := CheckoutSession{
		ID:                id,
		URL:               "https://checkout.example/" + id,
		BusinessAccountID: req.BusinessAccountID,
		Amount:            req.Amount,
		Currency:          req.Currency,
		PaymentIntentID:   f.next("pi"),
	}
	f.sessions[id] = s
	return s, nil
}

// AddSession registers s as if the provider had created it.
func (f *FakeProvider) AddSession(s CheckoutSession) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[s.ID] = s
}

// Pay marks a session as paid.
func (f *FakeProvider) Pay(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.sessions[id]
	s.Paid = true
	f.sessions[id] = s
}

func (f *FakeProvider) GetCheckoutSession(_ context.Context, id string) (CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return CheckoutSession{}, fmt.Errorf("no such checkout session: %s", id)
	}
	return s, nil
}

func (f *FakeProvider) CreatePaymentIntent(_ context.Context, req IntentRequest) (PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.NextIntentError; err != nil {
		f.NextIntentError = nil
		return PaymentIntent{}, err
	}
	f.intents = append(f.intents, req)

	status := f.NextIntentStatus
	f.NextIntentStatus = ""
	if status == "" {
		status = "requires_payment_method"
		if req.PaymentMethodRef != "" {
			status = IntentSucceeded
		}
	}
	id := f.next("pi")
	return PaymentIntent{
		ID:                id,
		ClientSecret:      id + "_secret",
		Status:            status,
		BusinessAccountID: req.BusinessAccountID,
		Amount:            req.Amount,
		Currency:          req.Currency,
		Purpose:           req.Purpose,
		AttemptID:         req.AttemptID,
		PaymentMethodRef:  req.PaymentMethodRef,
		CustomerID:        req.CustomerID,
		SavesMethod:       req.SaveMethod,
	}, nil
}

// Intents returns every intent request received, in order.
func (f *FakeProvider) Intents() []IntentRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]IntentRequest(nil), f.intents...)
}

func (f *FakeProvider) AddCard(c Card) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cards[c.Ref] = c
}

func (f *FakeProvider) GetCard(_ context.Context, ref string) (Card, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.cards[ref]
	if !ok {
		return Card{}, fmt.Errorf("no such payment method: %s", ref)
	}
	return c, nil
}

func (f *FakeProvider) ParseWebhook(_ []byte, signature string) (Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev, ok := f.Events[signature]
	if !ok {
		return Event{}, ErrInvalidSignature
	}
	return ev, nil
}
