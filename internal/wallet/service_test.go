package wallet

import (
	"context"
	"errors"
	"sync"
	"testing"

	"bizwallet/internal/apperr"
	"bizwallet/internal/audit"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var admin = Actor{UserID: "admin-1", IPAddress: "10.0.0.1"}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestService(t *testing.T, balance string) (*Service, *MemoryStore, Account) {
	t.Helper()
	store := NewMemoryStore(nil)
	acct := store.Seed(Account{Name: "Acme Transfers", Balance: d(balance), Currency: "EUR", IsActive: true})
	return NewService(store), store, acct
}

// spyStore counts calls that reach the store.
type spyStore struct {
	Store
	calls int
}

func (s *spyStore) Apply(ctx context.Context, op Operation) (Result, error) {
	s.calls++
	return s.Store.Apply(ctx, op)
}

func (s *spyStore) AdminAdjust(ctx context.Context, adj Adjustment) (Result, error) {
	s.calls++
	return s.Store.AdminAdjust(ctx, adj)
}

func (s *spyStore) SetFrozen(ctx context.Context, ch FreezeChange) (FreezeResult, error) {
	s.calls++
	return s.Store.SetFrozen(ctx, ch)
}

func assertConserved(t *testing.T, opening decimal.Decimal, txs []Transaction) {
	t.Helper()
	running := opening
	for i, tx := range txs {
		running = running.Add(tx.Amount)
		require.Truef(t, running.Equal(tx.BalanceAfter), "row %d: balance_after %s, cumulative %s", i, tx.BalanceAfter, running)
	}
}

func TestLedgerConservation(t *testing.T) {
	svc, store, acct := newTestService(t, "0")
	ctx := context.Background()

	_, err := svc.Credit(ctx, Operation{BusinessAccountID: acct.ID, Amount: d("100"), Type: TypeCreditAdded, ExternalPaymentReference: "pi_1"})
	require.NoError(t, err)
	_, err = svc.Debit(ctx, Operation{BusinessAccountID: acct.ID, Amount: d("30.25"), Type: TypeBookingDeduction, ReferenceID: "b1"})
	require.NoError(t, err)
	_, err = svc.Credit(ctx, Operation{BusinessAccountID: acct.ID, Amount: d("30.25"), Type: TypeRefund, ReferenceID: "b1"})
	require.NoError(t, err)
	_, err = svc.AdminAdjust(ctx, acct.ID, AdjustmentInput{Amount: d("-9.99"), Reason: "fee correction for March", Currency: "EUR"}, admin)
	require.NoError(t, err)

	txs := store.Transactions(acct.ID)
	require.Len(t, txs, 4)
	assertConserved(t, decimal.Zero, txs)

	got, err := svc.Account(ctx, acct.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(d("90.01")))
}

func TestDebitRejectsOverdraft(t *testing.T) {
	svc, store, acct := newTestService(t, "10")

	_, err := svc.Debit(context.Background(), Operation{BusinessAccountID: acct.ID, Amount: d("10.01"), Type: TypeBookingDeduction})
	require.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Empty(t, store.Transactions(acct.ID))
}

func TestApplyRejectsMismatchedSigns(t *testing.T) {
	svc, _, acct := newTestService(t, "10")
	ctx := context.Background()

	_, err := svc.Apply(ctx, Operation{BusinessAccountID: acct.ID, Amount: d("-1"), Type: TypeCreditAdded})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	_, err = svc.Apply(ctx, Operation{BusinessAccountID: acct.ID, Amount: d("5"), Type: TypeAdminAdjustment})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestExternalReferenceIsIdempotent(t *testing.T) {
	svc, store, acct := newTestService(t, "0")
	ctx := context.Background()
	op := Operation{BusinessAccountID: acct.ID, Amount: d("50"), Type: TypeCreditAdded, ExternalPaymentReference: "pi_dup"}

	first, err := svc.Credit(ctx, op)
	require.NoError(t, err)
	assert.False(t, first.AlreadyProcessed)

	for i := 0; i < 3; i++ {
		again, err := svc.Credit(ctx, op)
		require.NoError(t, err)
		assert.True(t, again.AlreadyProcessed)
		assert.True(t, again.Balance.Equal(first.Balance))
		assert.Equal(t, first.Transaction.ID, again.Transaction.ID)
	}
	assert.Len(t, store.Transactions(acct.ID), 1)
}

func TestFrozenWalletRejectsCreditsDebitsAndAdjustments(t *testing.T) {
	svc, store, acct := newTestService(t, "100")
	ctx := context.Background()

	_, err := svc.Freeze(ctx, acct.ID, FreezeInput{Reason: "chargeback investigation"}, admin)
	require.NoError(t, err)

	_, err = svc.Credit(ctx, Operation{BusinessAccountID: acct.ID, Amount: d("5"), Type: TypeCreditAdded})
	assert.ErrorIs(t, err, ErrWalletFrozen)
	_, err = svc.Debit(ctx, Operation{BusinessAccountID: acct.ID, Amount: d("5"), Type: TypeBookingDeduction})
	assert.ErrorIs(t, err, ErrWalletFrozen)
	_, err = svc.AdminAdjust(ctx, acct.ID, AdjustmentInput{Amount: d("5"), Reason: "goodwill credit for delay", Currency: "EUR"}, admin)
	assert.ErrorIs(t, err, ErrWalletFrozen)
	assert.Empty(t, store.Transactions(acct.ID))

	_, err = svc.Unfreeze(ctx, acct.ID, FreezeInput{Reason: "investigation closed"}, admin)
	require.NoError(t, err)
	_, err = svc.Credit(ctx, Operation{BusinessAccountID: acct.ID, Amount: d("5"), Type: TypeCreditAdded})
	assert.NoError(t, err)
}

func TestFreezeMutualExclusion(t *testing.T) {
	svc, store, acct := newTestService(t, "0")
	ctx := context.Background()
	auditRepo := store.AuditRepo()

	_, err := svc.Unfreeze(ctx, acct.ID, FreezeInput{Reason: "nothing to unfreeze"}, admin)
	require.ErrorIs(t, err, ErrNotFrozen)
	assert.Equal(t, 400, apperr.HTTPStatus(err))
	assert.Empty(t, auditRepo.Events())

	res, err := svc.Freeze(ctx, acct.ID, FreezeInput{Reason: "suspected card testing"}, admin)
	require.NoError(t, err)
	assert.True(t, res.Frozen)
	require.Len(t, auditRepo.Events(), 1)

	_, err = svc.Freeze(ctx, acct.ID, FreezeInput{Reason: "suspected card testing again"}, admin)
	require.ErrorIs(t, err, ErrAlreadyFrozen)
	assert.Equal(t, 400, apperr.HTTPStatus(err))
	assert.Len(t, auditRepo.Events(), 1)

	ev := auditRepo.Events()[0]
	assert.Equal(t, audit.ActionFreeze, ev.ActionType)
	assert.Equal(t, "admin-1", ev.AdminUserID)
	assert.Equal(t, "10.0.0.1", ev.IPAddress)
}

func TestValidationFailuresNeverReachStore(t *testing.T) {
	mem := NewMemoryStore(nil)
	acct := mem.Seed(Account{Currency: "EUR"})
	spy := &spyStore{Store: mem}
	svc := NewService(spy)
	ctx := context.Background()

	_, err := svc.AdminAdjust(ctx, acct.ID, AdjustmentInput{Amount: d("10"), Reason: "short", Currency: "EUR"}, admin)
	assert.Equal(t, 400, apperr.HTTPStatus(err))
	_, err = svc.Freeze(ctx, acct.ID, FreezeInput{Reason: "too short"}, admin)
	assert.Equal(t, 400, apperr.HTTPStatus(err))
	_, err = svc.Unfreeze(ctx, acct.ID, FreezeInput{Reason: ""}, admin)
	assert.Equal(t, 400, apperr.HTTPStatus(err))

	assert.Zero(t, spy.calls)
}

func TestAdminAdjustNegativeBalance(t *testing.T) {
	svc, store, acct := newTestService(t, "20")
	ctx := context.Background()
	in := AdjustmentInput{Amount: d("-50"), Reason: "reverse fraudulent top-up", Currency: "EUR"}

	_, err := svc.AdminAdjust(ctx, acct.ID, in, admin)
	require.ErrorIs(t, err, ErrInsufficientBalance)

	in.AllowNegative = true
	res, err := svc.AdminAdjust(ctx, acct.ID, in, admin)
	require.NoError(t, err)
	assert.True(t, res.Balance.Equal(d("-30")))
	assert.True(t, res.PreviousBalance.Equal(d("20")))

	evs := store.AuditRepo().Events()
	require.Len(t, evs, 1)
	assert.Equal(t, audit.ActionAdjustment, evs[0].ActionType)
	assert.Equal(t, evs[0].ID.String(), res.Transaction.ReferenceID)
	assert.True(t, evs[0].NewBalance.Equal(d("-30")))
}

func TestSubMinorUnitAmountsNeverReachStore(t *testing.T) {
	mem := NewMemoryStore(nil)
	acct := mem.Seed(Account{Balance: d("1.00"), Currency: "EUR", IsActive: true})
	yen := mem.Seed(Account{Balance: d("500"), Currency: "JPY", IsActive: true})
	spy := &spyStore{Store: mem}
	svc := NewService(spy)
	ctx := context.Background()

	for _, amount := range []string{"-0.005", "0.001"} {
		_, err := svc.AdminAdjust(ctx, acct.ID, AdjustmentInput{Amount: d(amount), Reason: "rounding correction", Currency: "EUR"}, admin)
		require.Error(t, err, amount)
		assert.True(t, apperr.Is(err, apperr.KindValidation), amount)
		assert.Equal(t, 400, apperr.HTTPStatus(err), amount)
	}
	_, err := svc.Credit(ctx, Operation{BusinessAccountID: acct.ID, Amount: d("0.005"), Type: TypeCreditAdded})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	_, err = svc.Debit(ctx, Operation{BusinessAccountID: yen.ID, Amount: d("0.5"), Type: TypeBookingDeduction, ReferenceID: "b1"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	assert.Zero(t, spy.calls)
	assert.Empty(t, mem.Transactions(acct.ID))
	assert.Empty(t, mem.AuditRepo().Events())

	got, err := svc.Account(ctx, acct.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(d("1.00")))

	res, err := svc.Debit(ctx, Operation{BusinessAccountID: yen.ID, Amount: d("120"), Type: TypeBookingDeduction, ReferenceID: "b2"})
	require.NoError(t, err)
	assert.True(t, res.Balance.Equal(d("380")))
}

func TestAdminAdjustCurrencyMismatch(t *testing.T) {
	svc, _, acct := newTestService(t, "20")
	_, err := svc.AdminAdjust(context.Background(), acct.ID, AdjustmentInput{Amount: d("5"), Reason: "goodwill credit for delay", Currency: "USD"}, admin)
	assert.ErrorIs(t, err, ErrCurrencyMismatch)
}

func TestUnknownAccount(t *testing.T) {
	svc, _, _ := newTestService(t, "0")
	_, err := svc.Credit(context.Background(), Operation{BusinessAccountID: uuid.New(), Amount: d("5"), Type: TypeCreditAdded})
	assert.Equal(t, 404, apperr.HTTPStatus(err))
}

func TestConcurrentDebitsSerialize(t *testing.T) {
	svc, store, acct := newTestService(t, "100")
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	var ok, rejected int
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Debit(ctx, Operation{BusinessAccountID: acct.ID, Amount: d("3"), Type: TypeBookingDeduction})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrInsufficientBalance):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 33, ok)
	assert.Equal(t, 17, rejected)
	got, _ := svc.Account(ctx, acct.ID)
	assert.True(t, got.Balance.Equal(d("1")))
	assertConserved(t, d("100"), store.Transactions(acct.ID))
}

func TestLowBalanceHookRunsAfterDebitOnly(t *testing.T) {
	svc, _, acct := newTestService(t, "100")
	ctx := context.Background()

	var seen []decimal.Decimal
	svc.SetLowBalanceHook(func(_ context.Context, id uuid.UUID, bal decimal.Decimal) error {
		assert.Equal(t, acct.ID, id)
		seen = append(seen, bal)
		return errors.New("hook failures are swallowed")
	})

	_, err := svc.Credit(ctx, Operation{BusinessAccountID: acct.ID, Amount: d("5"), Type: TypeCreditAdded})
	require.NoError(t, err)
	_, err = svc.Debit(ctx, Operation{BusinessAccountID: acct.ID, Amount: d("80"), Type: TypeBookingDeduction})
	require.NoError(t, err)

	require.Len(t, seen, 1)
	assert.True(t, seen[0].Equal(d("25")))
}
