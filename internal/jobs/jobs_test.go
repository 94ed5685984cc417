package jobs

import (
	"context"
	"errors"
	"testing"

	"bizwallet/internal/bookings"
	"bizwallet/internal/wallet"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInserter struct {
	args []river.JobArgs
	err  error
}

func (f *fakeInserter) Insert(_ context.Context, args river.JobArgs, _ *river.InsertOpts) (*rivertype.JobInsertResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.args = append(f.args, args)
	return &rivertype.JobInsertResult{Job: &rivertype.JobRow{ID: int64(len(f.args))}}, nil
}

func TestEnqueuer(t *testing.T) {
	ins := &fakeInserter{}
	e := NewEnqueuer(ins)
	ctx := context.Background()

	task := bookings.RefundTask{BookingID: uuid.New(), BusinessAccountID: uuid.New(), Amount: decimal.RequireFromString("12.50"), Currency: "EUR", RequestedBy: "admin-1"}
	require.NoError(t, e.EnqueueRefund(ctx, task))
	attempt := uuid.New()
	require.NoError(t, e.EnqueueAutoRecharge(ctx, attempt))

	require.Len(t, ins.args, 2)
	refund, ok := ins.args[0].(RefundArgs)
	require.True(t, ok)
	assert.Equal(t, task, refund.task())
	assert.Equal(t, "booking_refund", refund.Kind())
	assert.Equal(t, AutoRechargeArgs{AttemptID: attempt}, ins.args[1])

	ins.err = errors.New("pool closed")
	assert.Error(t, e.EnqueueRefund(ctx, task))
}

func refundJob(args RefundArgs) *river.Job[RefundArgs] {
	return &river.Job[RefundArgs]{JobRow: &rivertype.JobRow{Attempt: 1}, Args: args}
}

func TestRefundWorker(t *testing.T) {
	ctx := context.Background()
	ws := wallet.NewMemoryStore(nil)
	acct := ws.Seed(wallet.Account{Name: "Acme Transfers", Currency: "EUR", IsActive: true})
	ledger := wallet.NewService(ws)
	svc := bookings.NewService(bookings.NewMemoryRepo(), ledger, nil)
	w := NewRefundWorker(svc)

	args := RefundArgs{BookingID: uuid.New(), BusinessAccountID: acct.ID, Amount: decimal.RequireFromString("20")}

	_, err := ledger.Freeze(ctx, acct.ID, wallet.FreezeInput{Reason: "chargeback investigation"}, wallet.Actor{UserID: "admin-1"})
	require.NoError(t, err)
	require.Error(t, w.Work(ctx, refundJob(args)), "frozen wallet must be retried")

	_, err = ledger.Unfreeze(ctx, acct.ID, wallet.FreezeInput{Reason: "investigation closed"}, wallet.Actor{UserID: "admin-1"})
	require.NoError(t, err)
	require.NoError(t, w.Work(ctx, refundJob(args)))
	require.NoError(t, w.Work(ctx, refundJob(args)))

	txs := ws.Transactions(acct.ID)
	require.Len(t, txs, 1)
	assert.Equal(t, wallet.TypeRefund, txs[0].Type)

	missing := args
	missing.BusinessAccountID = uuid.New()
	err = w.Work(ctx, refundJob(missing))
	var cancel *river.JobCancelError
	assert.ErrorAs(t, err, &cancel)

	yen := args
	yen.BookingID = uuid.New()
	yen.Currency = "JPY"
	err = w.Work(ctx, refundJob(yen))
	assert.ErrorAs(t, err, &cancel)
	assert.ErrorIs(t, err, wallet.ErrCurrencyMismatch)
	assert.Len(t, ws.Transactions(acct.ID), 1)
}

type processorFunc func(ctx context.Context, id uuid.UUID) error

func (f processorFunc) Process(ctx context.Context, id uuid.UUID) error { return f(ctx, id) }

func TestAutoRechargeWorker(t *testing.T) {
	var got uuid.UUID
	w := NewAutoRechargeWorker(processorFunc(func(_ context.Context, id uuid.UUID) error {
		got = id
		return nil
	}))
	id := uuid.New()
	job := &river.Job[AutoRechargeArgs]{JobRow: &rivertype.JobRow{Attempt: 1}, Args: AutoRechargeArgs{AttemptID: id}}

	require.NoError(t, w.Work(context.Background(), job))
	assert.Equal(t, id, got)
	assert.Positive(t, w.Timeout(job))
}
