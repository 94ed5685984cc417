package reporting

import (
	"time"

	"bizwallet/internal/wallet"

	"github.com/shopspring/decimal"
)

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
	MaxExportRows    = 10000
	MaxStatsRows     = 50000
)

// Filter narrows a transaction listing. Zero values mean "no constraint".
// Amount bounds apply to the absolute amount.
type Filter struct {
	Types       []wallet.TransactionType
	StartDate   *time.Time
	EndDate     *time.Time
	MinAmount   *decimal.Decimal
	MaxAmount   *decimal.Decimal
	Currency    string
	ReferenceID string
	Search      string

	Page  int
	Limit int
}

func (f Filter) offset() int { return (f.Page - 1) * f.Limit }

func (f Filter) matches(t wallet.Transaction) bool {
	if len(f.Types) > 0 {
		found := false
		for _, typ := range f.Types {
			if typ == t.Type {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.StartDate != nil && t.CreatedAt.Before(*f.StartDate) {
		return false
	}
	if f.EndDate != nil && t.CreatedAt.After(*f.EndDate) {
		return false
	}
	abs := t.Amount.Abs()
	if f.MinAmount != nil && abs.LessThan(*f.MinAmount) {
		return false
	}
	if f.MaxAmount != nil && abs.GreaterThan(*f.MaxAmount) {
		return false
	}
	if f.Currency != "" && t.Currency != f.Currency {
		return false
	}
	if f.ReferenceID != "" && t.ReferenceID != f.ReferenceID {
		return false
	}
	return true
}

type Pagination struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"totalPages"`
	HasNext    bool `json:"hasNext"`
	HasPrev    bool `json:"hasPrev"`
}

// AppliedFilters echoes the effective filters back to the caller.
type AppliedFilters struct {
	Types       []wallet.TransactionType `json:"types,omitempty"`
	StartDate   *time.Time               `json:"start_date,omitempty"`
	EndDate     *time.Time               `json:"end_date,omitempty"`
	MinAmount   *decimal.Decimal         `json:"min_amount,omitempty"`
	MaxAmount   *decimal.Decimal         `json:"max_amount,omitempty"`
	Currency    string                   `json:"currency,omitempty"`
	ReferenceID string                   `json:"reference_id,omitempty"`
	Search      string                   `json:"search,omitempty"`
}

// TransactionPage is one page of history. In search mode IsSearchResult is
// set and the page is the whole result: TotalPages is always 1.
type TransactionPage struct {
	Transactions   []wallet.Transaction `json:"transactions"`
	Pagination     Pagination           `json:"pagination"`
	Filters        AppliedFilters       `json:"filters"`
	IsSearchResult bool                 `json:"isSearchResult"`
}

type TypeTotal struct {
	Count int             `json:"count"`
	Total decimal.Decimal `json:"total"`
}

type Statistics struct {
	TotalTransactions  int                                  `json:"total_transactions"`
	TotalCredits       decimal.Decimal                      `json:"total_credits"`
	TotalDebits        decimal.Decimal                      `json:"total_debits"`
	NetChange          decimal.Decimal                      `json:"net_change"`
	AverageTransaction decimal.Decimal                      `json:"average_transaction"`
	ByType             map[wallet.TransactionType]TypeTotal `json:"by_type"`
	Currency           string                               `json:"currency,omitempty"`
}

// TrendPoint aggregates one month ("2026-03") or one day ("2026-03-14").
type TrendPoint struct {
	Period  string          `json:"period"`
	Credits decimal.Decimal `json:"credits"`
	Debits  decimal.Decimal `json:"debits"`
	Net     decimal.Decimal `json:"net"`
	Count   int             `json:"count"`
}

type Trends struct {
	Monthly []TrendPoint `json:"monthly"`
	Daily   []TrendPoint `json:"daily"`
}

// Stats covers the newest MaxStatsRows matching rows; Truncated reports
// that older rows were left out.
type Stats struct {
	Statistics Statistics `json:"statistics"`
	Trends     Trends     `json:"trends"`
	Truncated  bool       `json:"truncated"`
}
