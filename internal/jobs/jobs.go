// Package jobs runs the wallet's durable background work on river.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bizwallet/internal/apperr"
	"bizwallet/internal/bookings"
	"bizwallet/internal/wallet"
	"bizwallet/pkg/logger"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/shopspring/decimal"
)

// RefundArgs retries a booking refund that failed inline.
type RefundArgs struct {
	BookingID         uuid.UUID       `json:"booking_id"`
	BusinessAccountID uuid.UUID       `json:"business_account_id"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency,omitempty"`
	RequestedBy       string          `json:"requested_by"`
}

func (RefundArgs) Kind() string { return "booking_refund" }

// InsertOpts keeps one live retry per booking. The ledger reference makes
// a duplicate harmless anyway.
func (RefundArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		MaxAttempts: 25,
		UniqueOpts:  river.UniqueOpts{ByArgs: true},
	}
}

func (a RefundArgs) task() bookings.RefundTask {
	return bookings.RefundTask{
		BookingID:         a.BookingID,
		BusinessAccountID: a.BusinessAccountID,
		Amount:            a.Amount,
		Currency:          a.Currency,
		RequestedBy:       a.RequestedBy,
	}
}

// Refunder posts a booking refund idempotently.
type Refunder interface {
	Refund(ctx context.Context, task bookings.RefundTask) (wallet.Result, error)
}

type RefundWorker struct {
	river.WorkerDefaults[RefundArgs]
	refunder Refunder
}

func NewRefundWorker(r Refunder) *RefundWorker { return &RefundWorker{refunder: r} }

func (w *RefundWorker) Work(ctx context.Context, job *river.Job[RefundArgs]) error {
	args := job.Args
	log := logger.From(ctx).With(
		"booking_id", args.BookingID.String(),
		"business_account_id", args.BusinessAccountID.String(),
		"attempt", job.Attempt,
	)

	res, err := w.refunder.Refund(ctx, args.task())
	if err != nil {
		// The account is gone or holds another currency; retrying cannot succeed.
		if apperr.Is(err, apperr.KindNotFound) || errors.Is(err, wallet.ErrCurrencyMismatch) {
			log.Error("booking refund abandoned", "amount", args.Amount.String(), "err", err)
			return river.JobCancel(err)
		}
		log.Warn("booking refund retry failed", "amount", args.Amount.String(), "err", err)
		return fmt.Errorf("booking refund: %w", err)
	}
	log.Info("booking refund posted from retry queue", "already_processed", res.AlreadyProcessed, "balance_after", res.Balance.String())
	return nil
}

// AutoRechargeArgs processes one pending auto-recharge attempt.
type AutoRechargeArgs struct {
	AttemptID uuid.UUID `json:"attempt_id"`
}

func (AutoRechargeArgs) Kind() string { return "auto_recharge" }

// Attempts reach a terminal state inside Process, so river never needs to
// retry a charge.
func (AutoRechargeArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		MaxAttempts: 3,
		UniqueOpts:  river.UniqueOpts{ByArgs: true},
	}
}

type Processor interface {
	Process(ctx context.Context, attemptID uuid.UUID) error
}

type AutoRechargeWorker struct {
	river.WorkerDefaults[AutoRechargeArgs]
	processor Processor
}

func NewAutoRechargeWorker(p Processor) *AutoRechargeWorker {
	return &AutoRechargeWorker{processor: p}
}

func (w *AutoRechargeWorker) Timeout(*river.Job[AutoRechargeArgs]) time.Duration {
	return 2 * time.Minute
}

func (w *AutoRechargeWorker) Work(ctx context.Context, job *river.Job[AutoRechargeArgs]) error {
	return w.processor.Process(ctx, job.Args.AttemptID)
}

// Inserter is satisfied by *river.Client.
type Inserter interface {
	Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
}

// Enqueuer adapts river to the queues the domain packages declare.
type Enqueuer struct {
	client Inserter
}

func NewEnqueuer(client Inserter) *Enqueuer { return &Enqueuer{client: client} }

func (e *Enqueuer) EnqueueRefund(ctx context.Context, task bookings.RefundTask) error {
	_, err := e.client.Insert(ctx, RefundArgs{
		BookingID:         task.BookingID,
		BusinessAccountID: task.BusinessAccountID,
		Amount:            task.Amount,
		Currency:          task.Currency,
		RequestedBy:       task.RequestedBy,
	}, nil)
	if err != nil {
		return fmt.Errorf("enqueue booking refund: %w", err)
	}
	return nil
}

func (e *Enqueuer) EnqueueAutoRecharge(ctx context.Context, attemptID uuid.UUID) error {
	_, err := e.client.Insert(ctx, AutoRechargeArgs{AttemptID: attemptID}, nil)
	if err != nil {
		return fmt.Errorf("enqueue auto-recharge: %w", err)
	}
	return nil
}

// Workers registers every worker of this package.
func Workers(refunds Refunder, recharges Processor) *river.Workers {
	workers := river.NewWorkers()
	river.AddWorker(workers, NewRefundWorker(refunds))
	river.AddWorker(workers, NewAutoRechargeWorker(recharges))
	return workers
}
