package audit

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event is an immutable, append-only record of a privileged wallet action.
//
// Invariants:
// - Events are never updated or deleted.
// - An event is written in the same transaction as the wallet change it describes.
type Event struct {
	ID                uuid.UUID  `json:"id"`
	BusinessAccountID uuid.UUID  `json:"business_account_id"`
	AdminUserID       string     `json:"admin_user_id"`
	ActionType        ActionType `json:"action_type"`
	Reason            string     `json:"reason"`

	// Amount and balances are set for adjustments only.
	Amount          *decimal.Decimal `json:"amount,omitempty"`
	PreviousBalance *decimal.Decimal `json:"previous_balance,omitempty"`
	NewBalance      *decimal.Decimal `json:"new_balance,omitempty"`
	Currency        string           `json:"currency,omitempty"`

	// IPAddress is the resolved client IP of the admin, best-effort.
	IPAddress string `json:"ip_address,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

type ActionType string

const (
	ActionAdjustment ActionType = "wallet_adjustment"
	ActionFreeze     ActionType = "wallet_freeze"
	ActionUnfreeze   ActionType = "wallet_unfreeze"
)

func (a ActionType) Valid() bool {
	switch a {
	case ActionAdjustment, ActionFreeze, ActionUnfreeze:
		return true
	default:
		return false
	}
}

// Filter narrows an audit listing. Zero values mean "no constraint".
type Filter struct {
	StartDate   *time.Time
	EndDate     *time.Time
	ActionTypes []ActionType
	Limit       int
	Offset      int
}

func (f Filter) matches(e Event) bool {
	if f.StartDate != nil && e.CreatedAt.Before(*f.StartDate) {
		return false
	}
	if f.EndDate != nil && e.CreatedAt.After(*f.EndDate) {
		return false
	}
	if len(f.ActionTypes) == 0 {
		return true
	}
	for _, a := range f.ActionTypes {
		if a == e.ActionType {
			return true
		}
	}
	return false
}

type Pagination struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}

type Page struct {
	AuditLogs  []Event    `json:"audit_logs"`
	Pagination Pagination `json:"pagination"`
}
