// Package payments reconciles payment provider completions with wallet credits.
package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"bizwallet/internal/apperr"
	"bizwallet/internal/metrics"
	"bizwallet/internal/money"
	"bizwallet/internal/wallet"
	"bizwallet/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Delivery paths, used as metric labels and transaction descriptions.
const (
	PathWebhook      = "webhook"
	PathVerify       = "verify"
	PathChargeSaved  = "charge_saved"
	PathAutoRecharge = "auto_recharge"
)

var (
	ErrPaymentNotCompleted = apperr.Validation("payment not completed")
	ErrSessionNotOwned     = apperr.Forbidden("payment session does not belong to this business")
	ErrAmountOutOfRange    = apperr.Validation("amount is outside the allowed top-up range")
	ErrAmountTooPrecise    = apperr.Validation("amount has too many decimal places")
)

// Ledger is the part of the wallet gateway the bridge needs.
type Ledger interface {
	Account(ctx context.Context, id uuid.UUID) (wallet.Account, error)
	Credit(ctx context.Context, op wallet.Operation) (wallet.Result, error)
	FindByExternalReference(ctx context.Context, businessID uuid.UUID, ref string) (wallet.Transaction, bool, error)
}

// Payment is one completed provider payment to be credited.
type Payment struct {
	BusinessAccountID uuid.UUID
	Amount            decimal.Decimal
	Currency          string
	Reference         string
	Path              string
	CreatedBy         string
}

type CreditResult struct {
	TransactionID    uuid.UUID       `json:"transaction_id"`
	AmountAdded      decimal.Decimal `json:"amount_added"`
	NewBalance       decimal.Decimal `json:"new_balance"`
	Currency         string          `json:"currency"`
	AlreadyProcessed bool            `json:"already_processed"`
}

type CheckoutResult struct {
	URL       string `json:"url"`
	SessionID string `json:"session_id"`
}

type IntentResult struct {
	ClientSecret    string          `json:"client_secret"`
	PaymentIntentID string          `json:"payment_intent_id"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
}

type ChargeResult struct {
	PaymentIntentID  string           `json:"payment_intent_id"`
	Status           string           `json:"status"`
	RequiresAction   bool             `json:"requires_action,omitempty"`
	ClientSecret     string           `json:"client_secret,omitempty"`
	NewBalance       *decimal.Decimal `json:"new_balance,omitempty"`
	AmountAdded      *decimal.Decimal `json:"amount_added,omitempty"`
	AlreadyProcessed bool             `json:"already_processed,omitempty"`
}

// WebhookOutcome is the acknowledgement returned to the provider.
type WebhookOutcome struct {
	Message string `json:"message"`
}

type Options struct {
	TopUpMin decimal.Decimal
	TopUpMax decimal.Decimal
	Claimer  Claimer
	Now      func() time.Time
}

// Bridge turns provider payment completions into at most one wallet credit
// per payment reference, whichever delivery path observes them first.
type Bridge struct {
	ledger   Ledger
	provider Provider
	methods  *Methods
	store    Store
	claimer  Claimer
	min, max decimal.Decimal
	now      func() time.Time
}

func NewBridge(ledger Ledger, provider Provider, store Store, opts Options) *Bridge {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Bridge{
		ledger:   ledger,
		provider: provider,
		methods:  NewMethods(store),
		store:    store,
		claimer:  opts.Claimer,
		min:      opts.TopUpMin,
		max:      opts.TopUpMax,
		now:      now,
	}
}

func (b *Bridge) Methods() *Methods { return b.methods }

// CreditPayment credits p once. Repeated calls with the same reference return
// the original balance_after with AlreadyProcessed set.
func (b *Bridge) CreditPayment(ctx context.Context, p Payment) (CreditResult, error) {
	if p.BusinessAccountID == uuid.Nil || p.Reference == "" || !p.Amount.IsPositive() {
		return CreditResult{}, apperr.Validation("payment is missing business account, reference or amount")
	}
	log := logger.From(ctx).With(
		slog.String("business_account_id", p.BusinessAccountID.String()),
		slog.String("payment_reference", p.Reference),
		slog.String("path", p.Path),
	)

	if b.claimer != nil {
		release, err := b.claimer.Claim(ctx, p.Reference)
		switch {
		case errors.Is(err, ErrPaymentInFlight):
			metrics.Reconciliation(p.Path, metrics.ResultRejected)
			return CreditResult{}, err
		case err != nil:
			log.Warn("payment claim unavailable, relying on storage uniqueness", "err", err)
		default:
			defer release()
		}
	}

	existing, found, err := b.ledger.FindByExternalReference(ctx, p.BusinessAccountID, p.Reference)
	if err != nil {
		metrics.Reconciliation(p.Path, metrics.ResultError)
		return CreditResult{}, fmt.Errorf("lookup payment reference: %w", err)
	}
	if found {
		metrics.Reconciliation(p.Path, metrics.ResultDup)
		return duplicate(existing), nil
	}

	if p.Currency != "" {
		acct, err := b.ledger.Account(ctx, p.BusinessAccountID)
		if err != nil {
			metrics.Reconciliation(p.Path, metrics.ResultRejected)
			return CreditResult{}, err
		}
		if !strings.EqualFold(acct.Currency, p.Currency) {
			metrics.Reconciliation(p.Path, metrics.ResultRejected)
			log.Error("payment currency differs from wallet currency", "payment_currency", p.Currency, "wallet_currency", acct.Currency)
			return CreditResult{}, wallet.ErrCurrencyMismatch
		}
	}

	createdBy := p.CreatedBy
	if createdBy == "" {
		createdBy = "system"
	}
	res, err := b.ledger.Credit(ctx, wallet.Operation{
		BusinessAccountID:        p.BusinessAccountID,
		Amount:                   p.Amount,
		Type:                     wallet.TypeCreditAdded,
		Description:              describe(p),
		CreatedBy:                createdBy,
		ExternalPaymentReference: p.Reference,
	})
	if err != nil {
		if apperr.KindOf(err) == apperr.KindInternal {
			metrics.Reconciliation(p.Path, metrics.ResultError)
		} else {
			metrics.Reconciliation(p.Path, metrics.ResultRejected)
		}
		log.Error("payment credit failed", "err", err)
		return CreditResult{}, err
	}
	if res.AlreadyProcessed {
		metrics.Reconciliation(p.Path, metrics.ResultDup)
		return duplicate(res.Transaction), nil
	}

	metrics.Reconciliation(p.Path, metrics.ResultOK)
	log.Info("payment credited", "amount", res.Transaction.Amount.String(), "balance_after", res.Balance.String())
	return CreditResult{
		TransactionID: res.Transaction.ID,
		AmountAdded:   res.Transaction.Amount,
		NewBalance:    res.Balance,
		Currency:      res.Transaction.Currency,
	}, nil
}

// HandleWebhook verifies and applies one provider delivery. Signature
// failures are validation errors. Rule failures (frozen wallet, bad
// metadata) are acknowledged so the provider stops retrying; anything
// else is returned so the provider retries.
func (b *Bridge) HandleWebhook(ctx context.Context, payload []byte, signature string) (WebhookOutcome, error) {
	if signature == "" {
		metrics.WebhookEvent("unknown", metrics.ResultRejected)
		return WebhookOutcome{}, ErrInvalidSignature
	}
	ev, err := b.provider.ParseWebhook(payload, signature)
	if err != nil {
		metrics.WebhookEvent("unknown", metrics.ResultRejected)
		logger.From(ctx).Warn("webhook signature rejected", "err", err)
		return WebhookOutcome{}, ErrInvalidSignature
	}

	log := logger.From(ctx).With(slog.String("event_id", ev.ID), slog.String("event_type", ev.Type))

	var p Payment
	switch {
	case ev.Type == EventCheckoutCompleted && ev.Session != nil:
		if !ev.Session.Paid {
			metrics.WebhookEvent(ev.Type, metrics.ResultIgnored)
			return WebhookOutcome{Message: "checkout session not paid"}, nil
		}
		p = Payment{
			BusinessAccountID: ev.Session.BusinessAccountID,
			Amount:            ev.Session.Amount,
			Currency:          ev.Session.Currency,
			Reference:         ev.Session.Reference(),
		}
	case ev.Type == EventPaymentIntentSucceeded && ev.Intent != nil:
		p = Payment{
			BusinessAccountID: ev.Intent.BusinessAccountID,
			Amount:            ev.Intent.Amount,
			Currency:          ev.Intent.Currency,
			Reference:         ev.Intent.ID,
		}
		b.rememberMethod(ctx, *ev.Intent)
	case ev.Type == EventCheckoutCompleted || ev.Type == EventPaymentIntentSucceeded:
		metrics.WebhookEvent(ev.Type, metrics.ResultIgnored)
		log.Warn("webhook event payload could not be decoded")
		return WebhookOutcome{Message: "event ignored"}, nil
	default:
		metrics.WebhookEvent(ev.Type, metrics.ResultIgnored)
		return WebhookOutcome{Message: "event ignored"}, nil
	}
	p.Path = PathWebhook

	if p.BusinessAccountID == uuid.Nil {
		metrics.WebhookEvent(ev.Type, metrics.ResultIgnored)
		log.Warn("webhook event without business account metadata")
		return WebhookOutcome{Message: "event ignored"}, nil
	}

	res, err := b.CreditPayment(ctx, p)
	if err != nil {
		switch apperr.KindOf(err) {
		case apperr.KindValidation, apperr.KindLedger, apperr.KindNotFound:
			metrics.WebhookEvent(ev.Type, metrics.ResultRejected)
			log.Error("webhook payment rejected by ledger", "business_account_id", p.BusinessAccountID.String(), "err", err)
			return WebhookOutcome{Message: "event acknowledged"}, nil
		default:
			metrics.WebhookEvent(ev.Type, metrics.ResultError)
			return WebhookOutcome{}, err
		}
	}
	if res.AlreadyProcessed {
		metrics.WebhookEvent(ev.Type, metrics.ResultDup)
		return WebhookOutcome{Message: "payment already processed"}, nil
	}
	metrics.WebhookEvent(ev.Type, metrics.ResultOK)
	return WebhookOutcome{Message: "wallet credited"}, nil
}

// VerifyCheckout is the client-side fallback for a missed webhook.
func (b *Bridge) VerifyCheckout(ctx context.Context, businessID uuid.UUID, sessionID string) (CreditResult, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return CreditResult{}, apperr.Validation("session_id is required")
	}
	sess, err := b.provider.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		if _, ok := apperr.As(err); ok {
			return CreditResult{}, err
		}
		return CreditResult{}, apperr.Provider("could not retrieve payment session", err)
	}
	if sess.BusinessAccountID != businessID {
		metrics.Reconciliation(PathVerify, metrics.ResultRejected)
		return CreditResult{}, ErrSessionNotOwned
	}
	if !sess.Paid {
		metrics.Reconciliation(PathVerify, metrics.ResultRejected)
		return CreditResult{}, ErrPaymentNotCompleted
	}
	return b.CreditPayment(ctx, Payment{
		BusinessAccountID: businessID,
		Amount:            sess.Amount,
		Currency:          sess.Currency,
		Reference:         sess.Reference(),
		Path:              PathVerify,
	})
}

// StartCheckout opens a hosted checkout session for a top-up.
func (b *Bridge) StartCheckout(ctx context.Context, businessID uuid.UUID, in wallet.TopUpInput) (CheckoutResult, error) {
	acct, err := b.topUpAccount(ctx, businessID, in.Amount)
	if err != nil {
		return CheckoutResult{}, err
	}
	customer, err := b.ensureCustomer(ctx, acct)
	if err != nil {
		return CheckoutResult{}, err
	}
	sess, err := b.provider.CreateCheckoutSession(ctx, CheckoutRequest{
		BusinessAccountID: businessID,
		Amount:            in.Amount,
		Currency:          acct.Currency,
		CustomerID:        customer,
	})
	if err != nil {
		return CheckoutResult{}, apperr.Provider("could not create checkout session", err)
	}
	return CheckoutResult{URL: sess.URL, SessionID: sess.ID}, nil
}

// CreateIntent prepares an embedded payment for a top-up. The card is saved
// for later charges when the provider customer exists.
func (b *Bridge) CreateIntent(ctx context.Context, businessID uuid.UUID, in wallet.TopUpInput) (IntentResult, error) {
	acct, err := b.topUpAccount(ctx, businessID, in.Amount)
	if err != nil {
		return IntentResult{}, err
	}
	customer, err := b.ensureCustomer(ctx, acct)
	if err != nil {
		return IntentResult{}, err
	}
	pi, err := b.provider.CreatePaymentIntent(ctx, IntentRequest{
		BusinessAccountID: businessID,
		Amount:            in.Amount,
		Currency:          acct.Currency,
		CustomerID:        customer,
		Purpose:           PurposeTopUp,
		SaveMethod:        true,
	})
	if err != nil {
		return IntentResult{}, apperr.Provider("could not create payment intent", err)
	}
	return IntentResult{
		ClientSecret:    pi.ClientSecret,
		PaymentIntentID: pi.ID,
		Amount:          in.Amount,
		Currency:        acct.Currency,
	}, nil
}

// ChargeSaved charges a saved method now. A succeeded intent is credited
// immediately under the same reference the webhook will later carry.
func (b *Bridge) ChargeSaved(ctx context.Context, businessID uuid.UUID, in wallet.ChargeSavedInput) (ChargeResult, error) {
	if err := wallet.Validate(in); err != nil {
		return ChargeResult{}, err
	}
	acct, err := b.topUpAccount(ctx, businessID, in.Amount)
	if err != nil {
		return ChargeResult{}, err
	}
	pm, err := b.methods.Usable(ctx, businessID, uuid.MustParse(in.PaymentMethodID))
	if err != nil {
		return ChargeResult{}, err
	}
	customer, err := b.ensureCustomer(ctx, acct)
	if err != nil {
		return ChargeResult{}, err
	}

	pi, err := b.provider.CreatePaymentIntent(ctx, IntentRequest{
		BusinessAccountID: businessID,
		Amount:            in.Amount,
		Currency:          acct.Currency,
		CustomerID:        customer,
		Purpose:           PurposeTopUp,
		PaymentMethodRef:  pm.ProviderRef,
	})
	if err != nil {
		return ChargeResult{}, apperr.Provider("could not charge payment method", err)
	}
	if err := b.methods.MarkUsed(ctx, pm.ID, b.now()); err != nil {
		logger.From(ctx).Warn("mark payment method used failed", "payment_method_id", pm.ID.String(), "err", err)
	}

	out := ChargeResult{PaymentIntentID: pi.ID, Status: pi.Status}
	switch pi.Status {
	case IntentSucceeded:
		res, err := b.CreditPayment(ctx, Payment{
			BusinessAccountID: businessID,
			Amount:            in.Amount,
			Currency:          acct.Currency,
			Reference:         pi.ID,
			Path:              PathChargeSaved,
		})
		if err != nil {
			return ChargeResult{}, err
		}
		out.NewBalance = &res.NewBalance
		out.AmountAdded = &res.AmountAdded
		out.AlreadyProcessed = res.AlreadyProcessed
	case IntentRequiresAction, "requires_confirmation", "requires_payment_method":
		if pi.Status == "requires_payment_method" && pi.LastError != "" {
			return ChargeResult{}, apperr.Validation("payment was declined")
		}
		out.RequiresAction = true
		out.ClientSecret = pi.ClientSecret
	}
	return out, nil
}

// ChargeOffSession charges pm without the customer present and credits on
// success. Used by auto-recharge.
func (b *Bridge) ChargeOffSession(ctx context.Context, businessID uuid.UUID, pm PaymentMethod, amount decimal.Decimal, attemptID string) (PaymentIntent, CreditResult, error) {
	acct, err := b.ledger.Account(ctx, businessID)
	if err != nil {
		return PaymentIntent{}, CreditResult{}, err
	}
	customer, err := b.store.CustomerID(ctx, businessID)
	if err != nil {
		return PaymentIntent{}, CreditResult{}, fmt.Errorf("load stripe customer: %w", err)
	}
	pi, err := b.provider.CreatePaymentIntent(ctx, IntentRequest{
		BusinessAccountID: businessID,
		Amount:            amount,
		Currency:          acct.Currency,
		CustomerID:        customer,
		Purpose:           PurposeAutoRecharge,
		AttemptID:         attemptID,
		PaymentMethodRef:  pm.ProviderRef,
		OffSession:        true,
	})
	if err != nil {
		return PaymentIntent{}, CreditResult{}, apperr.Provider("could not charge payment method", err)
	}
	if err := b.methods.MarkUsed(ctx, pm.ID, b.now()); err != nil {
		logger.From(ctx).Warn("mark payment method used failed", "payment_method_id", pm.ID.String(), "err", err)
	}
	if pi.Status != IntentSucceeded {
		return pi, CreditResult{}, nil
	}
	res, err := b.CreditPayment(ctx, Payment{
		BusinessAccountID: businessID,
		Amount:            amount,
		Currency:          acct.Currency,
		Reference:         pi.ID,
		Path:              PathAutoRecharge,
	})
	return pi, res, err
}

func (b *Bridge) topUpAccount(ctx context.Context, businessID uuid.UUID, amount decimal.Decimal) (wallet.Account, error) {
	if err := wallet.Validate(wallet.TopUpInput{Amount: amount}); err != nil {
		return wallet.Account{}, err
	}
	if (!b.min.IsZero() && amount.LessThan(b.min)) || (!b.max.IsZero() && amount.GreaterThan(b.max)) {
		return wallet.Account{}, ErrAmountOutOfRange
	}
	acct, err := b.ledger.Account(ctx, businessID)
	if err != nil {
		return wallet.Account{}, err
	}
	if !acct.IsActive {
		return wallet.Account{}, wallet.ErrAccountInactive
	}
	if acct.Frozen {
		return wallet.Account{}, wallet.ErrWalletFrozen
	}
	if _, err := money.ToMinor(amount, acct.Currency); err != nil {
		return wallet.Account{}, ErrAmountTooPrecise
	}
	return acct, nil
}

func (b *Bridge) ensureCustomer(ctx context.Context, acct wallet.Account) (string, error) {
	id, err := b.store.CustomerID(ctx, acct.ID)
	if err != nil {
		return "", fmt.Errorf("load stripe customer: %w", err)
	}
	if id != "" {
		return id, nil
	}
	created, err := b.provider.CreateCustomer(ctx, acct.ID, acct.Name)
	if err != nil {
		return "", apperr.Provider("could not create payment customer", err)
	}
	return b.store.SetCustomerID(ctx, acct.ID, created)
}

// rememberMethod saves the card behind a succeeded intent that asked for it.
// Failures are logged; the credit does not depend on it.
func (b *Bridge) rememberMethod(ctx context.Context, pi PaymentIntent) {
	if !pi.SavesMethod || pi.PaymentMethodRef == "" || pi.BusinessAccountID == uuid.Nil {
		return
	}
	card, err := b.provider.GetCard(ctx, pi.PaymentMethodRef)
	if err != nil {
		logger.From(ctx).Warn("fetch saved card failed", "payment_method", pi.PaymentMethodRef, "err", err)
		return
	}
	_, err = b.methods.Save(ctx, PaymentMethod{
		BusinessAccountID: pi.BusinessAccountID,
		ProviderRef:       card.Ref,
		Brand:             card.Brand,
		Last4:             card.Last4,
		ExpMonth:          card.ExpMonth,
		ExpYear:           card.ExpYear,
		CreatedAt:         b.now().UTC(),
	})
	if err != nil {
		logger.From(ctx).Warn("save payment method failed", "payment_method", pi.PaymentMethodRef, "err", err)
	}
}

func duplicate(t wallet.Transaction) CreditResult {
	return CreditResult{
		TransactionID:    t.ID,
		AmountAdded:      t.Amount,
		NewBalance:       t.BalanceAfter,
		Currency:         t.Currency,
		AlreadyProcessed: true,
	}
}

func describe(p Payment) string {
	switch p.Path {
	case PathAutoRecharge:
		return "Auto-recharge"
	case PathChargeSaved:
		return "Wallet top-up (saved card)"
	default:
		return "Wallet top-up"
	}
}
