package autorecharge

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

var openStatuses = []Status{StatusPending, StatusProcessing}

// Open reports whether the attempt can still change state.
func (s Status) Open() bool { return s == StatusPending || s == StatusProcessing }

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusSucceeded, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Settings are per account. PaymentMethodID is required while Enabled.
type Settings struct {
	BusinessAccountID uuid.UUID       `json:"business_account_id"`
	Enabled           bool            `json:"enabled"`
	Threshold         decimal.Decimal `json:"threshold"`
	Amount            decimal.Decimal `json:"amount"`
	PaymentMethodID   *uuid.UUID      `json:"payment_method_id,omitempty"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

type Attempt struct {
	ID                uuid.UUID       `json:"id"`
	BusinessAccountID uuid.UUID       `json:"business_account_id"`
	Status            Status          `json:"status"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	TriggerBalance    decimal.Decimal `json:"trigger_balance"`
	Threshold         decimal.Decimal `json:"threshold"`
	PaymentMethodID   *uuid.UUID      `json:"payment_method_id,omitempty"`
	PaymentIntentID   string          `json:"payment_intent_id,omitempty"`
	FailureReason     string          `json:"failure_reason,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	CompletedAt       *time.Time      `json:"completed_at,omitempty"`
}

// Patch carries the fields a transition may set.
type Patch struct {
	PaymentIntentID string
	FailureReason   string
	At              time.Time
}

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

type HistoryFilter struct {
	Status    Status
	StartDate *time.Time
	EndDate   *time.Time
	Page      int
	Limit     int
}

func (f HistoryFilter) offset() int { return (f.Page - 1) * f.Limit }

func (f HistoryFilter) matchesDates(a Attempt) bool {
	if f.StartDate != nil && a.CreatedAt.Before(*f.StartDate) {
		return false
	}
	if f.EndDate != nil && a.CreatedAt.After(*f.EndDate) {
		return false
	}
	return true
}

func (f HistoryFilter) matches(a Attempt) bool {
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	return f.matchesDates(a)
}

type Pagination struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"totalPages"`
	HasNext    bool `json:"hasNext"`
	HasPrev    bool `json:"hasPrev"`
}

// Statistics cover the filter's date range regardless of status filter.
// SuccessRate is a percentage of finished (succeeded or failed) attempts.
type Statistics struct {
	Total          int             `json:"total_attempts"`
	Pending        int             `json:"pending"`
	Processing     int             `json:"processing"`
	Succeeded      int             `json:"succeeded"`
	Failed         int             `json:"failed"`
	Cancelled      int             `json:"cancelled"`
	TotalRecharged decimal.Decimal `json:"total_recharged"`
	SuccessRate    float64         `json:"success_rate"`
}

type HistoryPage struct {
	Attempts   []Attempt  `json:"attempts"`
	Pagination Pagination `json:"pagination"`
	Statistics Statistics `json:"statistics"`
}
