// Package bookings owns the wallet side of booking payment and deletion.
package bookings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"bizwallet/internal/apperr"
	"bizwallet/internal/auth"
	"bizwallet/internal/metrics"
	"bizwallet/internal/wallet"
	"bizwallet/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MaxBulkDelete bounds one bulk-delete request.
const MaxBulkDelete = 100

var ErrNotOwned = apperr.Forbidden("booking does not belong to this business")

// Ledger is the part of the wallet gateway bookings need.
type Ledger interface {
	Account(ctx context.Context, id uuid.UUID) (wallet.Account, error)
	Credit(ctx context.Context, op wallet.Operation) (wallet.Result, error)
	Debit(ctx context.Context, op wallet.Operation) (wallet.Result, error)
}

// RefundQueue durably retries a refund that failed inline.
type RefundQueue interface {
	EnqueueRefund(ctx context.Context, task RefundTask) error
}

type Service struct {
	repo   Repository
	ledger Ledger
	queue  RefundQueue
	now    func() time.Time
}

func NewService(repo Repository, ledger Ledger, queue RefundQueue) *Service {
	return &Service{repo: repo, ledger: ledger, queue: queue, now: time.Now}
}

// SetRefundQueue installs the retry queue. The queue and the service depend
// on each other, so one side is wired after construction.
func (s *Service) SetRefundQueue(q RefundQueue) { s.queue = q }

// Delete refunds the booking's wallet deduction when it is still owed and
// removes the booking. A refund that cannot be posted now is queued for
// retry first; if it cannot be queued either, nothing is deleted.
func (s *Service) Delete(ctx context.Context, id uuid.UUID, actor string) (DeleteResult, error) {
	b, err := s.repo.Get(ctx, id)
	if err != nil {
		return DeleteResult{}, err
	}
	log := logger.From(ctx).With(
		slog.String("booking_id", id.String()),
		slog.String("business_account_id", b.BusinessAccountID.String()),
	)

	out := DeleteResult{BookingID: id, RefundAmount: decimal.Zero}
	if b.Refundable() {
		task := RefundTask{
			BookingID:         b.ID,
			BusinessAccountID: b.BusinessAccountID,
			Amount:            b.WalletDeductionAmount,
			Currency:          b.Currency,
			RequestedBy:       actor,
		}
		res, refundErr := s.Refund(ctx, task)
		switch {
		case errors.Is(refundErr, wallet.ErrCurrencyMismatch):
			log.Warn("booking refund rejected, deletion aborted", "currency", b.Currency, "err", refundErr)
			return DeleteResult{}, refundErr
		case refundErr == nil:
			if !res.AlreadyProcessed {
				out.Refunded = true
				out.RefundAmount = task.Amount
			}
			out.NewBalance = &res.Balance
		default:
			log.Warn("booking refund failed, queueing retry", "amount", task.Amount.String(), "err", refundErr)
			if err := s.enqueue(ctx, task); err != nil {
				log.Error("booking refund could not be queued, deletion aborted", "amount", task.Amount.String(), "err", err)
				return DeleteResult{}, apperr.Internal("refund could not be issued", errors.Join(refundErr, err))
			}
			metrics.RefundRetryEnqueued()
			out.RefundQueued = true
		}
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return DeleteResult{}, fmt.Errorf("delete booking: %w", err)
	}
	log.Info("booking deleted", "refunded", out.Refunded, "refund_queued", out.RefundQueued)
	return out, nil
}

// BulkDelete deletes each booking independently and aggregates the outcome.
func (s *Service) BulkDelete(ctx context.Context, ids []uuid.UUID, actor string) (BulkResult, error) {
	if len(ids) == 0 {
		return BulkResult{}, apperr.Validation("booking_ids must not be empty")
	}
	if len(ids) > MaxBulkDelete {
		return BulkResult{}, apperr.Validation(fmt.Sprintf("at most %d bookings can be deleted at once", MaxBulkDelete))
	}

	out := BulkResult{TotalRefund: decimal.Zero, Failed: []BulkFailure{}}
	seen := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		res, err := s.Delete(ctx, id, actor)
		if err != nil {
			out.Failed = append(out.Failed, BulkFailure{BookingID: id.String(), Error: apperr.PublicMessage(err)})
			continue
		}
		out.DeletedCount++
		if res.Refunded {
			out.RefundedCount++
			out.TotalRefund = out.TotalRefund.Add(res.RefundAmount)
		}
		if res.RefundQueued {
			out.QueuedCount++
		}
	}
	return out, nil
}

// Refund posts the booking refund. It is idempotent per booking.
func (s *Service) Refund(ctx context.Context, task RefundTask) (wallet.Result, error) {
	if task.Currency != "" {
		if err := s.checkCurrency(ctx, task.BusinessAccountID, task.Currency); err != nil {
			return wallet.Result{}, err
		}
	}
	createdBy := task.RequestedBy
	if createdBy == "" {
		createdBy = "system"
	}
	return s.ledger.Credit(ctx, wallet.Operation{
		BusinessAccountID:        task.BusinessAccountID,
		Amount:                   task.Amount,
		Type:                     wallet.TypeRefund,
		Description:              "Refund for deleted booking " + task.BookingID.String(),
		CreatedBy:                createdBy,
		ReferenceID:              task.BookingID.String(),
		ExternalPaymentReference: task.Reference(),
	})
}

// checkCurrency rejects a booking priced in another currency than the wallet.
func (s *Service) checkCurrency(ctx context.Context, businessID uuid.UUID, currency string) error {
	acct, err := s.ledger.Account(ctx, businessID)
	if err != nil {
		return err
	}
	if !strings.EqualFold(acct.Currency, currency) {
		return wallet.ErrCurrencyMismatch
	}
	return nil
}

func (s *Service) enqueue(ctx context.Context, task RefundTask) error {
	if s.queue == nil {
		return errors.New("no refund queue configured")
	}
	return s.queue.EnqueueRefund(ctx, task)
}

// PayWithWallet debits the booking price and confirms the booking. Retries
// after a partial failure reuse the same debit.
func (s *Service) PayWithWallet(ctx context.Context, businessID, bookingID uuid.UUID, actor string) (PayResult, error) {
	b, err := s.Booking(ctx, businessID, bookingID)
	if err != nil {
		return PayResult{}, err
	}
	if b.Status != StatusPending {
		return PayResult{}, ErrNotPayable
	}
	if !b.TotalPrice.IsPositive() {
		return PayResult{}, apperr.Validation("booking has nothing to pay")
	}
	if err := s.checkCurrency(ctx, businessID, b.Currency); err != nil {
		return PayResult{}, err
	}

	res, err := s.ledger.Debit(ctx, wallet.Operation{
		BusinessAccountID:        businessID,
		Amount:                   b.TotalPrice,
		Type:                     wallet.TypeBookingDeduction,
		Description:              "Payment for booking " + b.ID.String(),
		CreatedBy:                actor,
		ReferenceID:              b.ID.String(),
		ExternalPaymentReference: "booking_payment:" + b.ID.String(),
	})
	if err != nil {
		return PayResult{}, err
	}

	paid, err := s.repo.MarkPaid(ctx, b.ID, b.TotalPrice, s.now())
	if err != nil {
		logger.From(ctx).Error("booking debited but not confirmed",
			"booking_id", b.ID.String(),
			"business_account_id", businessID.String(),
			"err", err,
		)
		return PayResult{}, err
	}
	return PayResult{
		Booking:          paid,
		AmountCharged:    b.TotalPrice,
		NewBalance:       res.Balance,
		AlreadyProcessed: res.AlreadyProcessed,
	}, nil
}

// Booking returns the booking only when it belongs to businessID.
func (s *Service) Booking(ctx context.Context, businessID, id uuid.UUID) (Booking, error) {
	b, err := s.repo.Get(ctx, id)
	if err != nil {
		return Booking{}, err
	}
	if b.BusinessAccountID != businessID {
		return Booking{}, ErrNotOwned
	}
	return b, nil
}

// PriceResolver prices the booking named by the :id route parameter for
// wallet.RequireSufficientBalance.
func (s *Service) PriceResolver() wallet.CostResolver {
	return func(c *gin.Context) (decimal.Decimal, error) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			return decimal.Zero, apperr.Validation("invalid booking id")
		}
		businessID, err := auth.BusinessAccountID(c.Request.Context())
		if err != nil {
			return decimal.Zero, apperr.Unauthenticated("unauthorized")
		}
		b, err := s.Booking(c.Request.Context(), businessID, id)
		if err != nil {
			return decimal.Zero, err
		}
		return b.TotalPrice, nil
	}
}
