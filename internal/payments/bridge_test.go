package payments

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"bizwallet/internal/apperr"
	"bizwallet/internal/wallet"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	bridge   *Bridge
	ledger   *wallet.Service
	store    *wallet.MemoryStore
	methods  *MemoryStore
	provider *FakeProvider
	acct     wallet.Account
}

func newFixture(t *testing.T, balance string) fixture {
	t.Helper()
	ws := wallet.NewMemoryStore(nil)
	acct := ws.Seed(wallet.Account{Name: "Acme Transfers", Balance: d(balance), Currency: "EUR", IsActive: true})
	ledger := wallet.NewService(ws)
	ms := NewMemoryStore()
	fp := NewFakeProvider()
	b := NewBridge(ledger, fp, ms, Options{TopUpMin: d("10"), TopUpMax: d("10000")})
	return fixture{bridge: b, ledger: ledger, store: ws, methods: ms, provider: fp, acct: acct}
}

func (f fixture) payment(ref, amount string) Payment {
	return Payment{BusinessAccountID: f.acct.ID, Amount: d(amount), Currency: "EUR", Reference: ref, Path: PathWebhook}
}

func TestCreditPayment_Idempotent(t *testing.T) {
	f := newFixture(t, "5")
	ctx := context.Background()

	first, err := f.bridge.CreditPayment(ctx, f.payment("pi_123", "50"))
	require.NoError(t, err)
	assert.False(t, first.AlreadyProcessed)
	assert.True(t, first.NewBalance.Equal(d("55")))

	for i := 0; i < 4; i++ {
		again, err := f.bridge.CreditPayment(ctx, f.payment("pi_123", "50"))
		require.NoError(t, err)
		assert.True(t, again.AlreadyProcessed)
		assert.True(t, again.NewBalance.Equal(first.NewBalance))
		assert.Equal(t, first.TransactionID, again.TransactionID)
	}

	txs := f.store.Transactions(f.acct.ID)
	require.Len(t, txs, 1)
	assert.Equal(t, "pi_123", txs[0].ExternalPaymentReference)
	assert.Equal(t, wallet.TypeCreditAdded, txs[0].Type)
}

func TestCreditPayment_ConcurrentDuplicatesCreditOnce(t *testing.T) {
	f := newFixture(t, "0")
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	credited := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.bridge.CreditPayment(ctx, f.payment("pi_race", "25"))
			if err != nil {
				t.Error(err)
				return
			}
			if !res.AlreadyProcessed {
				mu.Lock()
				credited++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, credited)
	require.Len(t, f.store.Transactions(f.acct.ID), 1)
	acct, err := f.ledger.Account(ctx, f.acct.ID)
	require.NoError(t, err)
	assert.True(t, acct.Balance.Equal(d("25")))
}

func TestCreditPayment_CurrencyMismatch(t *testing.T) {
	f := newFixture(t, "0")
	p := f.payment("pi_usd", "10")
	p.Currency = "USD"

	_, err := f.bridge.CreditPayment(context.Background(), p)
	require.ErrorIs(t, err, wallet.ErrCurrencyMismatch)
	assert.Empty(t, f.store.Transactions(f.acct.ID))
}

type busyClaimer struct{}

func (busyClaimer) Claim(context.Context, string) (func(), error) { return nil, ErrPaymentInFlight }

type brokenClaimer struct{ calls int }

func (c *brokenClaimer) Claim(context.Context, string) (func(), error) {
	c.calls++
	return nil, errors.New("dial tcp: connection refused")
}

func TestCreditPayment_Claims(t *testing.T) {
	f := newFixture(t, "0")
	ctx := context.Background()

	f.bridge.claimer = busyClaimer{}
	_, err := f.bridge.CreditPayment(ctx, f.payment("pi_busy", "10"))
	require.ErrorIs(t, err, ErrPaymentInFlight)
	assert.Equal(t, http.StatusConflict, apperr.HTTPStatus(err))
	assert.Empty(t, f.store.Transactions(f.acct.ID))

	// An unreachable claim store degrades to storage uniqueness.
	broken := &brokenClaimer{}
	f.bridge.claimer = broken
	res, err := f.bridge.CreditPayment(ctx, f.payment("pi_busy", "10"))
	require.NoError(t, err)
	assert.False(t, res.AlreadyProcessed)
	assert.Equal(t, 1, broken.calls)
}

func checkoutEvent(s CheckoutSession) Event {
	return Event{ID: "evt_" + s.ID, Type: EventCheckoutCompleted, Session: &s}
}

func TestWebhookAndVerifyConverge(t *testing.T) {
	f := newFixture(t, "0")
	ctx := context.Background()

	sess := CheckoutSession{ID: "cs_1", Paid: true, BusinessAccountID: f.acct.ID, Amount: d("40"), Currency: "EUR", PaymentIntentID: "pi_1"}
	f.provider.AddSession(sess)
	f.provider.Events["sig-checkout"] = checkoutEvent(sess)
	f.provider.Events["sig-intent"] = Event{ID: "evt_pi", Type: EventPaymentIntentSucceeded, Intent: &PaymentIntent{
		ID: "pi_1", Status: IntentSucceeded, BusinessAccountID: f.acct.ID, Amount: d("40"), Currency: "EUR",
	}}

	out, err := f.bridge.HandleWebhook(ctx, []byte(`{}`), "sig-checkout")
	require.NoError(t, err)
	assert.Equal(t, "wallet credited", out.Message)

	res, err := f.bridge.VerifyCheckout(ctx, f.acct.ID, "cs_1")
	require.NoError(t, err)
	assert.True(t, res.AlreadyProcessed)
	assert.True(t, res.NewBalance.Equal(d("40")))

	out, err = f.bridge.HandleWebhook(ctx, []byte(`{}`), "sig-intent")
	require.NoError(t, err)
	assert.Equal(t, "payment already processed", out.Message)

	require.Len(t, f.store.Transactions(f.acct.ID), 1)
}

func TestHandleWebhook_BadSignature(t *testing.T) {
	f := newFixture(t, "0")

	_, err := f.bridge.HandleWebhook(context.Background(), []byte(`{}`), "forged")
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, apperr.HTTPStatus(err))

	_, err = f.bridge.HandleWebhook(context.Background(), []byte(`{}`), "")
	assert.Equal(t, http.StatusBadRequest, apperr.HTTPStatus(err))
}

func TestHandleWebhook_IgnoredAndAcknowledged(t *testing.T) {
	f := newFixture(t, "0")
	ctx := context.Background()

	f.provider.Events["sig-other"] = Event{ID: "evt_x", Type: "customer.created"}
	out, err := f.bridge.HandleWebhook(ctx, nil, "sig-other")
	require.NoError(t, err)
	assert.Equal(t, "event ignored", out.Message)

	unpaid := CheckoutSession{ID: "cs_unpaid", BusinessAccountID: f.acct.ID, Amount: d("10"), Currency: "EUR"}
	f.provider.Events["sig-unpaid"] = checkoutEvent(unpaid)
	_, err = f.bridge.HandleWebhook(ctx, nil, "sig-unpaid")
	require.NoError(t, err)

	noMeta := CheckoutSession{ID: "cs_nometa", Paid: true, Amount: d("10"), Currency: "EUR"}
	f.provider.Events["sig-nometa"] = checkoutEvent(noMeta)
	_, err = f.bridge.HandleWebhook(ctx, nil, "sig-nometa")
	require.NoError(t, err)

	assert.Empty(t, f.store.Transactions(f.acct.ID))
}

func TestHandleWebhook_UndecodablePayloadIsAcknowledged(t *testing.T) {
	f := newFixture(t, "0")
	ctx := context.Background()

	f.provider.Events["sig-intent"] = Event{ID: "evt_bad", Type: EventPaymentIntentSucceeded}
	out, err := f.bridge.HandleWebhook(ctx, []byte(`{}`), "sig-intent")
	require.NoError(t, err)
	assert.Equal(t, "event ignored", out.Message)

	f.provider.Events["sig-checkout"] = Event{ID: "evt_bad_cs", Type: EventCheckoutCompleted}
	out, err = f.bridge.HandleWebhook(ctx, []byte(`{}`), "sig-checkout")
	require.NoError(t, err)
	assert.Equal(t, "event ignored", out.Message)

	assert.Empty(t, f.store.Transactions(f.acct.ID))
}

func TestHandleWebhook_FrozenWalletIsAcknowledged(t *testing.T) {
	f := newFixture(t, "0")
	ctx := context.Background()
	_, err := f.ledger.Freeze(ctx, f.acct.ID, wallet.FreezeInput{Reason: "chargeback investigation"}, wallet.Actor{UserID: "admin-1"})
	require.NoError(t, err)

	sess := CheckoutSession{ID: "cs_f", Paid: true, BusinessAccountID: f.acct.ID, Amount: d("10"), Currency: "EUR", PaymentIntentID: "pi_f"}
	f.provider.Events["sig"] = checkoutEvent(sess)

	out, err := f.bridge.HandleWebhook(ctx, nil, "sig")
	require.NoError(t, err)
	assert.Equal(t, "event acknowledged", out.Message)
	assert.Empty(t, f.store.Transactions(f.acct.ID))
}

type failingLedger struct {
	*wallet.Service
}

func (failingLedger) Credit(context.Context, wallet.Operation) (wallet.Result, error) {
	return wallet.Result{}, errors.New("connection reset by peer")
}

func TestHandleWebhook_InternalFailureIsRetried(t *testing.T) {
	f := newFixture(t, "0")
	b := NewBridge(failingLedger{f.ledger}, f.provider, f.methods, Options{})

	sess := CheckoutSession{ID: "cs_e", Paid: true, BusinessAccountID: f.acct.ID, Amount: d("10"), Currency: "EUR", PaymentIntentID: "pi_e"}
	f.provider.Events["sig"] = checkoutEvent(sess)

	_, err := b.HandleWebhook(context.Background(), nil, "sig")
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, apperr.HTTPStatus(err))
	assert.Equal(t, "internal error", apperr.PublicMessage(err))
}

func TestVerifyCheckout_Rejections(t *testing.T) {
	f := newFixture(t, "0")
	ctx := context.Background()

	other := uuid.New()
	f.provider.AddSession(CheckoutSession{ID: "cs_other", Paid: true, BusinessAccountID: other, Amount: d("10"), Currency: "EUR"})
	f.provider.AddSession(CheckoutSession{ID: "cs_open", BusinessAccountID: f.acct.ID, Amount: d("10"), Currency: "EUR"})

	_, err := f.bridge.VerifyCheckout(ctx, f.acct.ID, "cs_other")
	require.ErrorIs(t, err, ErrSessionNotOwned)
	assert.Equal(t, http.StatusForbidden, apperr.HTTPStatus(err))

	_, err = f.bridge.VerifyCheckout(ctx, f.acct.ID, "cs_open")
	require.ErrorIs(t, err, ErrPaymentNotCompleted)
	assert.Equal(t, http.StatusBadRequest, apperr.HTTPStatus(err))

	_, err = f.bridge.VerifyCheckout(ctx, f.acct.ID, "cs_missing")
	assert.Equal(t, http.StatusInternalServerError, apperr.HTTPStatus(err))

	_, err = f.bridge.VerifyCheckout(ctx, f.acct.ID, " ")
	assert.Equal(t, http.StatusBadRequest, apperr.HTTPStatus(err))

	assert.Empty(t, f.store.Transactions(f.acct.ID))
}

func TestStartCheckout(t *testing.T) {
	f := newFixture(t, "0")
	ctx := context.Background()

	_, err := f.bridge.StartCheckout(ctx, f.acct.ID, wallet.TopUpInput{Amount: d("5")})
	require.ErrorIs(t, err, ErrAmountOutOfRange)
	_, err = f.bridge.StartCheckout(ctx, f.acct.ID, wallet.TopUpInput{Amount: d("20000")})
	require.ErrorIs(t, err, ErrAmountOutOfRange)
	_, err = f.bridge.StartCheckout(ctx, f.acct.ID, wallet.TopUpInput{Amount: d("10.001")})
	require.ErrorIs(t, err, ErrAmountTooPrecise)

	first, err := f.bridge.StartCheckout(ctx, f.acct.ID, wallet.TopUpInput{Amount: d("50")})
	require.NoError(t, err)
	assert.NotEmpty(t, first.URL)
	assert.NotEmpty(t, first.SessionID)

	customer, err := f.methods.CustomerID(ctx, f.acct.ID)
	require.NoError(t, err)
	require.NotEmpty(t, customer)

	_, err = f.bridge.StartCheckout(ctx, f.acct.ID, wallet.TopUpInput{Amount: d("60")})
	require.NoError(t, err)
	again, _ := f.methods.CustomerID(ctx, f.acct.ID)
	assert.Equal(t, customer, again)

	// Nothing is credited until the provider reports payment.
	assert.Empty(t, f.store.Transactions(f.acct.ID))
}

func TestStartCheckout_FrozenWallet(t *testing.T) {
	f := newFixture(t, "0")
	ctx := context.Background()
	_, err := f.ledger.Freeze(ctx, f.acct.ID, wallet.FreezeInput{Reason: "chargeback investigation"}, wallet.Actor{UserID: "admin-1"})
	require.NoError(t, err)

	_, err = f.bridge.StartCheckout(ctx, f.acct.ID, wallet.TopUpInput{Amount: d("50")})
	require.ErrorIs(t, err, wallet.ErrWalletFrozen)
}

func TestCreateIntent(t *testing.T) {
	f := newFixture(t, "0")

	res, err := f.bridge.CreateIntent(context.Background(), f.acct.ID, wallet.TopUpInput{Amount: d("25")})
	require.NoError(t, err)
	assert.NotEmpty(t, res.ClientSecret)
	assert.Equal(t, "EUR", res.Currency)
	assert.True(t, res.Amount.Equal(d("25")))

	intents := f.provider.Intents()
	require.Len(t, intents, 1)
	assert.True(t, intents[0].SaveMethod)
	assert.Equal(t, PurposeTopUp, intents[0].Purpose)
	assert.Empty(t, f.store.Transactions(f.acct.ID))
}

func (f fixture) saveCard(t *testing.T, businessID uuid.UUID) PaymentMethod {
	t.Helper()
	pm, err := f.methods.SaveMethod(context.Background(), PaymentMethod{
		BusinessAccountID: businessID, ProviderRef: "pm_" + uuid.NewString()[:8], Brand: "visa", Last4: "4242", ExpMonth: 12, ExpYear: 2030,
	})
	require.NoError(t, err)
	return pm
}

func TestChargeSaved(t *testing.T) {
	f := newFixture(t, "0")
	ctx := context.Background()
	pm := f.saveCard(t, f.acct.ID)

	res, err := f.bridge.ChargeSaved(ctx, f.acct.ID, wallet.ChargeSavedInput{PaymentMethodID: pm.ID.String(), Amount: d("30")})
	require.NoError(t, err)
	assert.Equal(t, IntentSucceeded, res.Status)
	assert.False(t, res.RequiresAction)
	require.NotNil(t, res.NewBalance)
	assert.True(t, res.NewBalance.Equal(d("30")))

	txs := f.store.Transactions(f.acct.ID)
	require.Len(t, txs, 1)
	assert.Equal(t, res.PaymentIntentID, txs[0].ExternalPaymentReference)

	used, err := f.methods.GetMethod(ctx, pm.ID)
	require.NoError(t, err)
	assert.NotNil(t, used.LastUsedAt)

	// The later webhook for the same intent is a duplicate.
	f.provider.Events["sig"] = Event{ID: "evt", Type: EventPaymentIntentSucceeded, Intent: &PaymentIntent{
		ID: res.PaymentIntentID, Status: IntentSucceeded, BusinessAccountID: f.acct.ID, Amount: d("30"), Currency: "EUR",
	}}
	out, err := f.bridge.HandleWebhook(ctx, nil, "sig")
	require.NoError(t, err)
	assert.Equal(t, "payment already processed", out.Message)
	assert.Len(t, f.store.Transactions(f.acct.ID), 1)
}

func TestChargeSaved_RequiresAction(t *testing.T) {
	f := newFixture(t, "0")
	pm := f.saveCard(t, f.acct.ID)
	f.provider.NextIntentStatus = IntentRequiresAction

	res, err := f.bridge.ChargeSaved(context.Background(), f.acct.ID, wallet.ChargeSavedInput{PaymentMethodID: pm.ID.String(), Amount: d("30")})
	require.NoError(t, err)
	assert.True(t, res.RequiresAction)
	assert.NotEmpty(t, res.ClientSecret)
	assert.Nil(t, res.NewBalance)
	assert.Empty(t, f.store.Transactions(f.acct.ID))
}

func TestChargeSaved_Ownership(t *testing.T) {
	f := newFixture(t, "0")
	ctx := context.Background()
	foreign := f.saveCard(t, uuid.New())

	_, err := f.bridge.ChargeSaved(ctx, f.acct.ID, wallet.ChargeSavedInput{PaymentMethodID: foreign.ID.String(), Amount: d("30")})
	require.ErrorIs(t, err, ErrMethodNotOwned)
	assert.Equal(t, http.StatusForbidden, apperr.HTTPStatus(err))

	_, err = f.bridge.ChargeSaved(ctx, f.acct.ID, wallet.ChargeSavedInput{PaymentMethodID: uuid.NewString(), Amount: d("30")})
	assert.Equal(t, http.StatusNotFound, apperr.HTTPStatus(err))

	_, err = f.bridge.ChargeSaved(ctx, f.acct.ID, wallet.ChargeSavedInput{PaymentMethodID: "nope", Amount: d("30")})
	assert.Equal(t, http.StatusBadRequest, apperr.HTTPStatus(err))

	assert.Empty(t, f.provider.Intents())
}

func TestWebhookSavesRequestedCard(t *testing.T) {
	f := newFixture(t, "0")
	ctx := context.Background()
	f.provider.AddCard(Card{Ref: "pm_saved", Brand: "mastercard", Last4: "4444", ExpMonth: 1, ExpYear: 2031})
	f.provider.Events["sig"] = Event{ID: "evt", Type: EventPaymentIntentSucceeded, Intent: &PaymentIntent{
		ID: "pi_save", Status: IntentSucceeded, BusinessAccountID: f.acct.ID, Amount: d("15"), Currency: "EUR",
		PaymentMethodRef: "pm_saved", SavesMethod: true,
	}}

	_, err := f.bridge.HandleWebhook(ctx, nil, "sig")
	require.NoError(t, err)

	list, err := f.bridge.Methods().List(ctx, f.acct.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "4444", list[0].Last4)
	assert.True(t, list[0].IsActive)
}

func TestMethods_Delete(t *testing.T) {
	f := newFixture(t, "0")
	ctx := context.Background()
	pm := f.saveCard(t, f.acct.ID)
	methods := f.bridge.Methods()

	require.ErrorIs(t, methods.Delete(ctx, uuid.New(), pm.ID), ErrMethodNotOwned)
	require.NoError(t, methods.Delete(ctx, f.acct.ID, pm.ID))
	require.ErrorIs(t, methods.Delete(ctx, f.acct.ID, pm.ID), ErrMethodNotFound)

	list, err := methods.List(ctx, f.acct.ID)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = f.bridge.ChargeSaved(ctx, f.acct.ID, wallet.ChargeSavedInput{PaymentMethodID: pm.ID.String(), Amount: d("30")})
	require.ErrorIs(t, err, ErrMethodInactive)
}
