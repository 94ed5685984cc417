package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"bizwallet/internal/apperr"
	"bizwallet/internal/money"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

// ErrInvalidSignature is returned for webhook payloads that fail verification.
var ErrInvalidSignature = apperr.Validation("invalid webhook signature")

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
}

// StripeProvider implements Provider on the Stripe API.
type StripeProvider struct {
	api           *client.API
	webhookSecret string
	successURL    string
	cancelURL     string
}

func NewStripeProvider(cfg StripeConfig) *StripeProvider {
	return &StripeProvider{
		api:           client.New(cfg.SecretKey, nil),
		webhookSecret: cfg.WebhookSecret,
		successURL:    cfg.SuccessURL,
		cancelURL:     cfg.CancelURL,
	}
}

func (p *StripeProvider) CreateCustomer(ctx context.Context, businessID uuid.UUID, name string) (string, error) {
	params := &stripe.CustomerParams{Name: stripe.String(name)}
	params.Context = ctx
	params.AddMetadata(MetaBusinessAccountID, businessID.String())

	c, err := p.api.Customers.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe create customer: %w", err)
	}
	return c.ID, nil
}

func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (CheckoutSession, error) {
	minor, err := money.ToMinor(req.Amount, req.Currency)
	if err != nil {
		return CheckoutSession{}, err
	}
	successURL, cancelURL := req.SuccessURL, req.CancelURL
	if successURL == "" {
		successURL = p.successURL
	}
	if cancelURL == "" {
		cancelURL = p.cancelURL
	}

	meta := metadata(req.BusinessAccountID, req.Amount, req.Currency, PurposeTopUp, "")
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(successURL),
		CancelURL:         stripe.String(cancelURL),
		ClientReferenceID: stripe.String(req.BusinessAccountID.String()),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(strings.ToLower(req.Currency)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String("Wallet top-up"),
				},
				UnitAmount: stripe.Int64(minor),
			},
			Quantity: stripe.Int64(1),
		}},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: meta,
		},
	}
	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
		params.PaymentIntentData.SetupFutureUsage = stripe.String(string(stripe.PaymentIntentSetupFutureUsageOffSession))
	}
	params.Context = ctx
	for k, v := range meta {
		params.AddMetadata(k, v)
	}

	s, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("stripe create checkout session: %w", err)
	}
	return toSession(s), nil
}

func (p *StripeProvider) GetCheckoutSession(ctx context.Context, id string) (CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	s, err := p.api.CheckoutSessions.Get(id, params)
	if err != nil {
		var se *stripe.Error
		if errors.As(err, &se) && se.HTTPStatusCode == 404 {
			return CheckoutSession{}, apperr.NotFound("payment session not found")
		}
		return CheckoutSession{}, fmt.Errorf("stripe get checkout session: %w", err)
	}
	return toSession(s), nil
}

func (p *StripeProvider) CreatePaymentIntent(ctx context.Context, req IntentRequest) (PaymentIntent, error) {
	minor, err := money.ToMinor(req.Amount, req.Currency)
	if err != nil {
		return PaymentIntent{}, err
	}
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(minor),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	}
	switch {
	case req.PaymentMethodRef != "":
		params.PaymentMethod = stripe.String(req.PaymentMethodRef)
		params.Confirm = stripe.Bool(true)
		params.AutomaticPaymentMethods.AllowRedirects = stripe.String(string(stripe.PaymentIntentAutomaticPaymentMethodsAllowRedirectsNever))
		if req.OffSession {
			params.OffSession = stripe.Bool(true)
		}
	case req.SaveMethod && req.CustomerID != "":
		params.SetupFutureUsage = stripe.String(string(stripe.PaymentIntentSetupFutureUsageOffSession))
	}
	params.Context = ctx
	for k, v := range metadata(req.BusinessAccountID, req.Amount, req.Currency, req.Purpose, req.AttemptID) {
		params.AddMetadata(k, v)
	}

	pi, err := p.api.PaymentIntents.New(params)
	if err != nil {
		// Off-session confirmations that need the customer come back as an
		// error carrying the intent.
		var se *stripe.Error
		if errors.As(err, &se) && se.PaymentIntent != nil {
			out := toIntent(se.PaymentIntent)
			if se.Code == stripe.ErrorCodeAuthenticationRequired {
				out.Status = IntentRequiresAction
			}
			if out.LastError == "" {
				out.LastError = se.Msg
			}
			return out, nil
		}
		return PaymentIntent{}, fmt.Errorf("stripe create payment intent: %w", err)
	}
	return toIntent(pi), nil
}

func (p *StripeProvider) GetCard(ctx context.Context, ref string) (Card, error) {
	params := &stripe.PaymentMethodParams{}
	params.Context = ctx

	pm, err := p.api.PaymentMethods.Get(ref, params)
	if err != nil {
		return Card{}, fmt.Errorf("stripe get payment method: %w", err)
	}
	c := Card{Ref: pm.ID}
	if pm.Card != nil {
		c.Brand = string(pm.Card.Brand)
		c.Last4 = pm.Card.Last4
		c.ExpMonth = int(pm.Card.ExpMonth)
		c.ExpYear = int(pm.Card.ExpYear)
	}
	return c, nil
}

func (p *StripeProvider) ParseWebhook(payload []byte, signature string) (Event, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	// A signed event whose object does not decode is returned without a
	// payload; the bridge acknowledges it so Stripe stops redelivering.
	out := Event{ID: ev.ID, Type: string(ev.Type)}
	if ev.Data == nil {
		return out, nil
	}
	switch out.Type {
	case EventCheckoutCompleted:
		var s stripe.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &s); err == nil {
			sess := toSession(&s)
			out.Session = &sess
		}
	case EventPaymentIntentSucceeded:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(ev.Data.Raw, &pi); err == nil {
			intent := toIntent(&pi)
			out.Intent = &intent
		}
	}
	return out, nil
}

func metadata(businessID uuid.UUID, amount decimal.Decimal, currency, purpose, attemptID string) map[string]string {
	m := map[string]string{
		MetaBusinessAccountID: businessID.String(),
		MetaAmount:            amount.StringFixed(money.Places(currency)),
		MetaCurrency:          currency,
		MetaPurpose:           purpose,
	}
	if attemptID != "" {
		m[MetaAttemptID] = attemptID
	}
	return m
}

func toSession(s *stripe.CheckoutSession) CheckoutSession {
	out := CheckoutSession{
		ID:       s.ID,
		URL:      s.URL,
		Paid:     s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		Currency: strings.ToUpper(string(s.Currency)),
	}
	if s.PaymentIntent != nil {
		out.PaymentIntentID = s.PaymentIntent.ID
	}
	out.BusinessAccountID, _ = uuid.Parse(s.Metadata[MetaBusinessAccountID])
	out.Amount = amountFrom(s.Metadata, s.AmountTotal, out.Currency)
	if c := s.Metadata[MetaCurrency]; c != "" {
		out.Currency = c
	}
	return out
}

func toIntent(pi *stripe.PaymentIntent) PaymentIntent {
	out := PaymentIntent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
		Currency:     strings.ToUpper(string(pi.Currency)),
		Purpose:      pi.Metadata[MetaPurpose],
		AttemptID:    pi.Metadata[MetaAttemptID],
		SavesMethod:  pi.SetupFutureUsage != "",
	}
	if pi.PaymentMethod != nil {
		out.PaymentMethodRef = pi.PaymentMethod.ID
	}
	if pi.Customer != nil {
		out.CustomerID = pi.Customer.ID
	}
	if pi.LastPaymentError != nil {
		out.LastError = pi.LastPaymentError.Msg
	}
	out.BusinessAccountID, _ = uuid.Parse(pi.Metadata[MetaBusinessAccountID])
	out.Amount = amountFrom(pi.Metadata, pi.Amount, out.Currency)
	if c := pi.Metadata[MetaCurrency]; c != "" {
		out.Currency = c
	}
	return out
}

// amountFrom prefers the amount this service wrote into metadata and falls
// back to the provider's minor-unit total.
func amountFrom(meta map[string]string, minor int64, currency string) decimal.Decimal {
	if v, ok := meta[MetaAmount]; ok {
		if d, err := money.ParseAmount(v); err == nil {
			return d
		}
	}
	if currency == "" {
		return decimal.Zero
	}
	return money.FromMinor(minor, currency)
}
