package wallet

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Account is a business account's wallet state.
// Invariant: Balance is only ever changed together with an appended
// Transaction whose BalanceAfter equals the new Balance.
type Account struct {
	ID               uuid.UUID       `json:"id"`
	Name             string          `json:"name"`
	Balance          decimal.Decimal `json:"wallet_balance"`
	Currency         string          `json:"currency"`
	Frozen           bool            `json:"wallet_frozen"`
	FrozenAt         *time.Time      `json:"wallet_frozen_at,omitempty"`
	FrozenReason     string          `json:"wallet_frozen_reason,omitempty"`
	IsActive         bool            `json:"is_active"`
	StripeCustomerID string          `json:"stripe_customer_id,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Transaction is an immutable ledger row.
// Amount is signed: credits positive, debits negative.
type Transaction struct {
	ID                       uuid.UUID       `json:"id"`
	BusinessAccountID        uuid.UUID       `json:"business_account_id"`
	Type                     TransactionType `json:"transaction_type"`
	Amount                   decimal.Decimal `json:"amount"`
	Currency                 string          `json:"currency"`
	BalanceAfter             decimal.Decimal `json:"balance_after"`
	Description              string          `json:"description"`
	ReferenceID              string          `json:"reference_id,omitempty"`
	ExternalPaymentReference string          `json:"external_payment_reference,omitempty"`
	CreatedBy                string          `json:"created_by"`
	CreatedAt                time.Time       `json:"created_at"`
}

type TransactionType string

const (
	TypeCreditAdded      TransactionType = "credit_added"
	TypeBookingDeduction TransactionType = "booking_deduction"
	TypeRefund           TransactionType = "refund"
	TypeAdminAdjustment  TransactionType = "admin_adjustment"
)

var AllTypes = []TransactionType{TypeCreditAdded, TypeBookingDeduction, TypeRefund, TypeAdminAdjustment}

func (t TransactionType) Valid() bool {
	switch t {
	case TypeCreditAdded, TypeBookingDeduction, TypeRefund, TypeAdminAdjustment:
		return true
	default:
		return false
	}
}

// Operation is one add_to_wallet call: a signed delta posted to one account.
type Operation struct {
	BusinessAccountID        uuid.UUID
	Amount                   decimal.Decimal
	Type                     TransactionType
	Description              string
	CreatedBy                string
	ReferenceID              string
	ExternalPaymentReference string
}

// Adjustment is a privileged balance change recorded with an audit row.
type Adjustment struct {
	BusinessAccountID uuid.UUID
	AdminUserID       string
	Amount            decimal.Decimal
	Reason            string
	Currency          string
	AllowNegative     bool
	IPAddress         string
}

// FreezeChange flips wallet_frozen and records who did it and why.
type FreezeChange struct {
	BusinessAccountID uuid.UUID
	AdminUserID       string
	Freeze            bool
	Reason            string
	IPAddress         string
}

// Result is the authoritative outcome of a ledger unit of work.
type Result struct {
	Transaction      Transaction     `json:"transaction"`
	PreviousBalance  decimal.Decimal `json:"previous_balance"`
	Balance          decimal.Decimal `json:"balance_after"`
	AlreadyProcessed bool            `json:"already_processed"`
}

type FreezeResult struct {
	BusinessAccountID uuid.UUID `json:"business_account_id"`
	Frozen            bool      `json:"wallet_frozen"`
	AuditID           uuid.UUID `json:"audit_log_id"`
	ChangedAt         time.Time `json:"changed_at"`
}
