package bookings

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusRefunded  Status = "refunded"
)

// Booking carries only what the wallet paths read.
type Booking struct {
	ID                    uuid.UUID       `json:"id"`
	BusinessAccountID     uuid.UUID       `json:"business_account_id"`
	Status                Status          `json:"booking_status"`
	TotalPrice            decimal.Decimal `json:"total_price"`
	WalletDeductionAmount decimal.Decimal `json:"wallet_deduction_amount"`
	Currency              string          `json:"currency"`
	PaidAt                *time.Time      `json:"paid_at,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// Refundable reports whether deleting b must give its wallet deduction back.
func (b Booking) Refundable() bool {
	if b.Status == StatusCancelled || b.Status == StatusRefunded {
		return false
	}
	return b.WalletDeductionAmount.IsPositive()
}

// RefundTask is a booking refund, inline or retried from the queue.
type RefundTask struct {
	BookingID         uuid.UUID       `json:"booking_id"`
	BusinessAccountID uuid.UUID       `json:"business_account_id"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency,omitempty"`
	RequestedBy       string          `json:"requested_by"`
}

// Reference is the ledger idempotency key of the refund.
func (t RefundTask) Reference() string { return "booking_refund:" + t.BookingID.String() }

type DeleteResult struct {
	BookingID    uuid.UUID        `json:"booking_id"`
	Refunded     bool             `json:"refunded"`
	RefundAmount decimal.Decimal  `json:"refund_amount"`
	RefundQueued bool             `json:"refund_queued"`
	NewBalance   *decimal.Decimal `json:"new_balance,omitempty"`
}

type BulkFailure struct {
	BookingID string `json:"booking_id"`
	Error     string `json:"error"`
}

type BulkResult struct {
	DeletedCount  int             `json:"deleted_count"`
	RefundedCount int             `json:"refunded_count"`
	QueuedCount   int             `json:"queued_refund_count"`
	TotalRefund   decimal.Decimal `json:"total_refund"`
	Failed        []BulkFailure   `json:"failed"`
}

type PayResult struct {
	Booking          Booking         `json:"booking"`
	AmountCharged    decimal.Decimal `json:"amount_charged"`
	NewBalance       decimal.Decimal `json:"new_balance"`
	AlreadyProcessed bool            `json:"already_processed"`
}
