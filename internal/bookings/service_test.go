package bookings

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

type fakeQueue struct {
	mu    sync.Mutex
	tasks []RefundTask
	err   error
}

func (q *fakeQueue) EnqueueRefund(_ context.Context, t RefundTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.tasks = append(q.tasks, t)
	return nil
}

type fixture struct {
	svc    *Service
	repo   *MemoryRepo
	ledger *wallet.Service
	store  *wallet.MemoryStore
	queue  *fakeQueue
	acct   wallet.Account
}

func newFixture(t *testing.T, balance string) fixture {
	t.Helper()
	ws := wallet.NewMemoryStore(nil)
	acct := ws.Seed(wallet.Account{Name: "Acme Transfers", Balance: d(balance), Currency: "EUR", IsActive: true})
	ledger := wallet.NewService(ws)
	repo := NewMemoryRepo()
	q := &fakeQueue{}
	return fixture{svc: NewService(repo, ledger, q), repo: repo, ledger: ledger, store: ws, queue: q, acct: acct}
}

func (f fixture) booking(status Status, deduction string) Booking {
	return f.repo.Put(Booking{
		BusinessAccountID:     f.acct.ID,
		Status:                status,
		TotalPrice:            d(deduction),
		WalletDeductionAmount: d(deduction),
		Currency:              "EUR",
	})
}

func (f fixture) refunds() []wallet.Transaction {
	var out []wallet.Transaction
	for _, tx := range f.store.Transactions(f.acct.ID) {
		if tx.Type == wallet.TypeRefund {
			out = append(out, tx)
		}
	}
	return out
}

func TestDelete_RefundsConfirmedBooking(t *testing.T) {
	f := newFixture(t, "0")
	ctx := context.Background()
	b := f.booking(StatusConfirmed, "50")

	res, err := f.svc.Delete(ctx, b.ID, "admin-1")
	require.NoError(t, err)
	assert.True(t, res.Refunded)
	assert.True(t, res.RefundAmount.Equal(d("50")))

	refunds := f.refunds()
	require.Len(t, refunds, 1)
	assert.True(t, refunds[0].Amount.Equal(d("50")))
	assert.Equal(t, b.ID.String(), refunds[0].ReferenceID)
	assert.Equal(t, "booking_refund:"+b.ID.String(), refunds[0].ExternalPaymentReference)

	_, err = f.repo.Get(ctx, b.ID)
	require.ErrorIs(t, err, ErrNotFound)

	cancelled := f.booking(StatusCancelled, "50")
	res, err = f.svc.Delete(ctx, cancelled.ID, "admin-1")
	require.NoError(t, err)
	assert.False(t, res.Refunded)
	assert.Len(t, f.refunds(), 1)
	assert.Equal(t, 0, f.repo.Len())
}

func TestDelete_NotFound(t *testing.T) {
	f := newFixture(t, "0")
	_, err := f.svc.Delete(context.Background(), uuid.New(), "admin-1")
	assert.Equal(t, http.StatusNotFound, apperr.HTTPStatus(err))
}

// stickyRepo fails the first delete.
type stickyRepo struct {
	*MemoryRepo
	failed bool
}

func (r *stickyRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if !r.failed {
		r.failed = true
		return errors.New("connection reset")
	}
	return r.MemoryRepo.Delete(ctx, id)
}

func TestDelete_RetryAfterFailedDeleteDoesNotRefundTwice(t *testing.T) {
	f := newFixture(t, "0")
	ctx := context.Background()
	b := f.booking(StatusConfirmed, "30")
	svc := NewService(&stickyRepo{MemoryRepo: f.repo}, f.ledger, f.queue)

	_, err := svc.Delete(ctx, b.ID, "admin-1")
	require.Error(t, err)
	require.Len(t, f.refunds(), 1)

	res, err := svc.Delete(ctx, b.ID, "admin-1")
	require.NoError(t, err)
	assert.False(t, res.Refunded)
	assert.Len(t, f.refunds(), 1)

	acct, err := f.ledger.Account(ctx, f.acct.ID)
	require.NoError(t, err)
	assert.True(t, acct.Balance.Equal(d("30")))
}

func TestDelete_FailedRefundIsQueued(t *testing.T) {
	f := newFixture(t, "0")
	ctx := context.Background()
	b := f.booking(StatusConfirmed, "25")
	_, err := f.ledger.Freeze(ctx, f.acct.ID, wallet.FreezeInput{Reason: "chargeback investigation"}, wallet.Actor{UserID: "admin-1"})
	require.NoError(t, err)

	res, err := f.svc.Delete(ctx, b.ID, "admin-1")
	require.NoError(t, err)
	assert.False(t, res.Refunded)
	assert.True(t, res.RefundQueued)
	assert.Empty(t, f.refunds())
	assert.Equal(t, 0, f.repo.Len())

	require.Len(t, f.queue.tasks, 1)
	task := f.queue.tasks[0]
	assert.Equal(t, b.ID, task.BookingID)
	assert.True(t, task.Amount.Equal(d("25")))

	// The retried refund lands once the wallet is usable again.
	_, err = f.ledger.Unfreeze(ctx, f.acct.ID, wallet.FreezeInput{Reason: "investigation closed"}, wallet.Actor{UserID: "admin-1"})
	require.NoError(t, err)
	_, err = f.svc.Refund(ctx, task)
	require.NoError(t, err)
	again, err := f.svc.Refund(ctx, task)
	require.NoError(t, err)
	assert.True(t, again.AlreadyProcessed)
	assert.Len(t, f.refunds(), 1)
}

func TestDelete_AbortsWhenRefundCannotBeQueued(t *testing.T) {
	f := newFixture(t, "0")
	ctx := context.Background()
	b := f.booking(StatusConfirmed, "25")
	_, err := f.ledger.Freeze(ctx, f.acct.ID, wallet.FreezeInput{Reason: "chargeback investigation"}, wallet.Actor{UserID: "admin-1"})
	require.NoError(t, err)
	f.queue.err = errors.New("queue unavailable")

	_, err = f.svc.Delete(ctx, b.ID, "admin-1")
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, apperr.HTTPStatus(err))

	_, err = f.repo.Get(ctx, b.ID)
	assert.NoError(t, err, "booking must survive when its refund is neither posted nor queued")
}

func TestBulkDelete_RefundAggregation(t *testing.T) {
	f := newFixture(t, "0")
	ctx := context.Background()
	a := f.booking(StatusConfirmed, "10")
	b := f.booking(StatusPending, "0")
	c := f.booking(StatusRefunded, "20")

	res, err := f.svc.BulkDelete(ctx, []uuid.UUID{a.ID, b.ID, c.ID}, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, 3, res.DeletedCount)
	assert.Equal(t, 1, res.RefundedCount)
	assert.True(t, res.TotalRefund.Equal(d("10")))
	assert.Empty(t, res.Failed)
	assert.Len(t, f.refunds(), 1)
}

func TestBulkDelete_PartialFailure(t *testing.T) {
	f := newFixture(t, "0")
	ctx := context.Background()
	a := f.booking(StatusConfirmed, "10")
	missing := uuid.New()

	res, err := f.svc.BulkDelete(ctx, []uuid.UUID{a.ID, missing, a.ID}, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.DeletedCount)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, missing.String(), res.Failed[0].BookingID)
	assert.Equal(t, "booking not found", res.Failed[0].Error)

	_, err = f.svc.BulkDelete(ctx, nil, "admin-1")
	assert.Equal(t, http.StatusBadRequest, apperr.HTTPStatus(err))
}

func TestPayWithWallet(t *testing.T) {
	f := newFixture(t, "100")
	ctx := context.Background()
	b := f.repo.Put(Booking{BusinessAccountID: f.acct.ID, Status: StatusPending, TotalPrice: d("40"), Currency: "EUR"})

	res, err := f.svc.PayWithWallet(ctx, f.acct.ID, b.ID, "user-1")
	require.NoError(t, err)
	assert.True(t, res.NewBalance.Equal(d("60")))
	assert.Equal(t, StatusConfirmed, res.Booking.Status)
	assert.True(t, res.Booking.WalletDeductionAmount.Equal(d("40")))

	_, err = f.svc.PayWithWallet(ctx, f.acct.ID, b.ID, "user-1")
	require.ErrorIs(t, err, ErrNotPayable)
	assert.Equal(t, http.StatusConflict, apperr.HTTPStatus(err))

	txs := f.store.Transactions(f.acct.ID)
	require.Len(t, txs, 1)
	assert.Equal(t, wallet.TypeBookingDeduction, txs[0].Type)
	assert.True(t, txs[0].Amount.Equal(d("-40")))

	// Deleting the paid booking gives the money back.
	del, err := f.svc.Delete(ctx, b.ID, "admin-1")
	require.NoError(t, err)
	assert.True(t, del.Refunded)
	acct, err := f.ledger.Account(ctx, f.acct.ID)
	require.NoError(t, err)
	assert.True(t, acct.Balance.Equal(d("100")))
}

func TestPayWithWallet_Rejections(t *testing.T) {
	f := newFixture(t, "10")
	ctx := context.Background()
	b := f.repo.Put(Booking{BusinessAccountID: f.acct.ID, Status: StatusPending, TotalPrice: d("40"), Currency: "EUR"})

	_, err := f.svc.PayWithWallet(ctx, uuid.New(), b.ID, "user-1")
	require.ErrorIs(t, err, ErrNotOwned)
	assert.Equal(t, http.StatusForbidden, apperr.HTTPStatus(err))

	_, err = f.svc.PayWithWallet(ctx, f.acct.ID, b.ID, "user-1")
	require.ErrorIs(t, err, wallet.ErrInsufficientBalance)

	got, err := f.repo.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
	assert.Empty(t, f.store.Transactions(f.acct.ID))
}

func TestBookingCurrencyMustMatchWallet(t *testing.T) {
	f := newFixture(t, "100")
	ctx := context.Background()
	pending := f.repo.Put(Booking{BusinessAccountID: f.acct.ID, Status: StatusPending, TotalPrice: d("40"), Currency: "JPY"})
	paid := f.repo.Put(Booking{BusinessAccountID: f.acct.ID, Status: StatusConfirmed, TotalPrice: d("40"), WalletDeductionAmount: d("40"), Currency: "JPY"})

	_, err := f.svc.PayWithWallet(ctx, f.acct.ID, pending.ID, "user-1")
	require.ErrorIs(t, err, wallet.ErrCurrencyMismatch)
	assert.Equal(t, http.StatusBadRequest, apperr.HTTPStatus(err))

	_, err = f.svc.Delete(ctx, paid.ID, "admin-1")
	require.ErrorIs(t, err, wallet.ErrCurrencyMismatch)
	assert.Empty(t, f.queue.tasks)

	_, err = f.repo.Get(ctx, paid.ID)
	assert.NoError(t, err, "booking must survive when its refund currency is wrong")
	got, err := f.repo.Get(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)

	assert.Empty(t, f.store.Transactions(f.acct.ID))
	acct, err := f.ledger.Account(ctx, f.acct.ID)
	require.NoError(t, err)
	assert.True(t, acct.Balance.Equal(d("100")))
}
