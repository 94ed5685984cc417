package payments

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Metadata keys written on every provider object this service creates.
const (
	MetaBusinessAccountID = "business_account_id"
	MetaAmount            = "amount"
	MetaCurrency          = "currency"
	MetaPurpose           = "purpose"
	MetaAttemptID         = "auto_recharge_attempt_id"

	PurposeTopUp        = "wallet_topup"
	PurposeAutoRecharge = "auto_recharge"
)

// Intent statuses the bridge acts on.
const (
	IntentSucceeded      = "succeeded"
	IntentRequiresAction = "requires_action"
	IntentProcessing     = "processing"
)

// Event types the bridge acts on. Everything else is acknowledged and ignored.
const (
	EventCheckoutCompleted      = "checkout.session.completed"
	EventPaymentIntentSucceeded = "payment_intent.succeeded"
)

type CheckoutRequest struct {
	BusinessAccountID uuid.UUID
	Amount            decimal.Decimal
	Currency          string
	CustomerID        string
	SuccessURL        string
	CancelURL         string
}

type CheckoutSession struct {
	ID                string
	URL               string
	Paid              bool
	BusinessAccountID uuid.UUID
	Amount            decimal.Decimal
	Currency          string
	PaymentIntentID   string
}

// Reference is the idempotency key for crediting this session. The payment
// intent id is preferred so the checkout and intent webhooks converge.
func (s CheckoutSession) Reference() string {
	if s.PaymentIntentID != "" {
		return s.PaymentIntentID
	}
	return s.ID
}

type IntentRequest struct {
	BusinessAccountID uuid.UUID
	Amount            decimal.Decimal
	Currency          string
	CustomerID        string
	Purpose           string
	AttemptID         string

	// PaymentMethodRef confirms the intent immediately against a saved method.
	PaymentMethodRef string
	// OffSession marks a charge made without the customer present.
	OffSession bool
	// SaveMethod asks the provider to keep the method for later charges.
	SaveMethod bool
}

type PaymentIntent struct {
	ID                string
	ClientSecret      string
	Status            string
	BusinessAccountID uuid.UUID
	Amount            decimal.Decimal
	Currency          string
	Purpose           string
	AttemptID         string
	PaymentMethodRef  string
	CustomerID        string
	SavesMethod       bool
	LastError         string
}

type Card struct {
	Ref      string
	Brand    string
	Last4    string
	ExpMonth int
	ExpYear  int
}

// Event is a verified provider webhook delivery.
type Event struct {
	ID      string
	Type    string
	Session *CheckoutSession
	Intent  *PaymentIntent
}

// Provider is the payment provider surface the service uses.
type Provider interface {
	CreateCustomer(ctx context.Context, businessID uuid.UUID, name string) (string, error)
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, id string) (CheckoutSession, error)
	CreatePaymentIntent(ctx context.Context, req IntentRequest) (PaymentIntent, error)
	GetCard(ctx context.Context, paymentMethodRef string) (Card, error)
	ParseWebhook(payload []byte, signature string) (Event, error)
}
