package reporting

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"sort"
	"strings"
	"time"

	"bizwallet/internal/wallet"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// dailyTrendDays bounds the daily series to the most recent days with data.
const dailyTrendDays = 30

// Repository abstracts data access for wallet history.
//
// IMPORTANT:
// - Methods must enforce business_account_id filtering.
// - Results are newest first.
type Repository interface {
	// ListTransactions returns one page plus the total count of matching rows.
	ListTransactions(ctx context.Context, businessID uuid.UUID, f Filter) ([]wallet.Transaction, int, error)
	// SearchTransactions runs the full-text search and returns at most limit rows.
	SearchTransactions(ctx context.Context, businessID uuid.UUID, query string, limit int) ([]wallet.Transaction, error)
	// AllTransactions returns every matching row up to max, ignoring paging.
	AllTransactions(ctx context.Context, businessID uuid.UUID, f Filter, max int) ([]wallet.Transaction, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

// NormalizeFilter applies paging defaults, clamps limit to 100 and drops
// unknown transaction types.
func NormalizeFilter(f Filter) Filter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = DefaultPageLimit
	}
	if f.Limit > MaxPageLimit {
		f.Limit = MaxPageLimit
	}
	f.Currency = strings.ToUpper(strings.TrimSpace(f.Currency))
	f.Search = strings.TrimSpace(f.Search)
	valid := f.Types[:0:0]
	for _, t := range f.Types {
		if t.Valid() {
			valid = append(valid, t)
		}
	}
	f.Types = valid
	return f
}

// Transactions lists a business account's ledger. With a search term the
// full-text path is used and pagination collapses to a single page.
func (s *Service) Transactions(ctx context.Context, businessID uuid.UUID, f Filter) (TransactionPage, error) {
	if s.repo == nil {
		return TransactionPage{}, errors.New("reporting: repository not configured")
	}
	f = NormalizeFilter(f)
	applied := appliedFilters(f)

	if f.Search != "" {
		rows, err := s.repo.SearchTransactions(ctx, businessID, f.Search, f.Limit)
		if err != nil {
			return TransactionPage{}, err
		}
		return TransactionPage{
			Transactions:   nonNil(rows),
			Pagination:     Pagination{Page: 1, Limit: f.Limit, Total: len(rows), TotalPages: 1},
			Filters:        applied,
			IsSearchResult: true,
		}, nil
	}

	rows, total, err := s.repo.ListTransactions(ctx, businessID, f)
	if err != nil {
		return TransactionPage{}, err
	}
	pages := (total + f.Limit - 1) / f.Limit
	return TransactionPage{
		Transactions: nonNil(rows),
		Pagination: Pagination{
			Page:       f.Page,
			Limit:      f.Limit,
			Total:      total,
			TotalPages: pages,
			HasNext:    f.Page < pages,
			HasPrev:    f.Page > 1,
		},
		Filters: applied,
	}, nil
}

// Stats aggregates the newest MaxStatsRows matching transactions.
func (s *Service) Stats(ctx context.Context, businessID uuid.UUID, f Filter) (Stats, error) {
	if s.repo == nil {
		return Stats{}, errors.New("reporting: repository not configured")
	}
	f = NormalizeFilter(f)
	rows, err := s.repo.AllTransactions(ctx, businessID, f, MaxStatsRows+1)
	if err != nil {
		return Stats{}, err
	}
	truncated := len(rows) > MaxStatsRows
	if truncated {
		rows = rows[:MaxStatsRows]
	}
	return Stats{Statistics: summarize(rows), Trends: trends(rows), Truncated: truncated}, nil
}

// Export writes up to limit matching transactions as CSV, newest first.
func (s *Service) Export(ctx context.Context, businessID uuid.UUID, f Filter, limit int, w io.Writer) (int, error) {
	if s.repo == nil {
		return 0, errors.New("reporting: repository not configured")
	}
	if limit <= 0 || limit > MaxExportRows {
		limit = MaxExportRows
	}
	f = NormalizeFilter(f)
	rows, err := s.repo.AllTransactions(ctx, businessID, f, limit)
	if err != nil {
		return 0, err
	}

	cw := csv.NewWriter(w)
	header := []string{"id", "created_at", "transaction_type", "description", "amount", "currency", "balance_after", "reference_id", "external_payment_reference", "created_by"}
	if err := cw.Write(header); err != nil {
		return 0, err
	}
	for _, t := range rows {
		rec := []string{
			t.ID.String(),
			t.CreatedAt.UTC().Format(time.RFC3339),
			string(t.Type),
			t.Description,
			t.Amount.StringFixed(2),
			t.Currency,
			t.BalanceAfter.StringFixed(2),
			t.ReferenceID,
			t.ExternalPaymentReference,
			t.CreatedBy,
		}
		if err := cw.Write(rec); err != nil {
			return 0, err
		}
	}
	cw.Flush()
	return len(rows), cw.Error()
}

func summarize(rows []wallet.Transaction) Statistics {
	st := Statistics{
		TotalCredits:       decimal.Zero,
		TotalDebits:        decimal.Zero,
		NetChange:          decimal.Zero,
		AverageTransaction: decimal.Zero,
		ByType:             make(map[wallet.TransactionType]TypeTotal),
	}
	volume := decimal.Zero
	for _, t := range rows {
		st.TotalTransactions++
		if st.Currency == "" {
			st.Currency = t.Currency
		}
		if t.Amount.IsPositive() {
			st.TotalCredits = st.TotalCredits.Add(t.Amount)
		} else {
			st.TotalDebits = st.TotalDebits.Add(t.Amount.Abs())
		}
		volume = volume.Add(t.Amount.Abs())

		tt := st.ByType[t.Type]
		tt.Count++
		tt.Total = tt.Total.Add(t.Amount)
		st.ByType[t.Type] = tt
	}
	st.NetChange = st.TotalCredits.Sub(st.TotalDebits)
	if st.TotalTransactions > 0 {
		st.AverageTransaction = volume.Div(decimal.NewFromInt(int64(st.TotalTransactions))).Round(2)
	}
	return st
}

func trends(rows []wallet.Transaction) Trends {
	monthly := bucket(rows, "2006-01")
	daily := bucket(rows, "2006-01-02")
	if len(daily) > dailyTrendDays {
		daily = daily[len(daily)-dailyTrendDays:]
	}
	return Trends{Monthly: monthly, Daily: daily}
}

// bucket groups rows by the formatted UTC timestamp, oldest period first.
func bucket(rows []wallet.Transaction, layout string) []TrendPoint {
	idx := make(map[string]*TrendPoint)
	for _, t := range rows {
		key := t.CreatedAt.UTC().Format(layout)
		p, ok := idx[key]
		if !ok {
			p = &TrendPoint{Period: key, Credits: decimal.Zero, Debits: decimal.Zero, Net: decimal.Zero}
			idx[key] = p
		}
		p.Count++
		if t.Amount.IsPositive() {
			p.Credits = p.Credits.Add(t.Amount)
		} else {
			p.Debits = p.Debits.Add(t.Amount.Abs())
		}
		p.Net = p.Net.Add(t.Amount)
	}
	out := make([]TrendPoint, 0, len(idx))
	for _, p := range idx {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period < out[j].Period })
	return out
}

func appliedFilters(f Filter) AppliedFilters {
	return AppliedFilters{
		Types:       f.Types,
		StartDate:   f.StartDate,
		EndDate:     f.EndDate,
		MinAmount:   f.MinAmount,
		MaxAmount:   f.MaxAmount,
		Currency:    f.Currency,
		ReferenceID: f.ReferenceID,
		Search:      f.Search,
	}
}

func nonNil(rows []wallet.Transaction) []wallet.Transaction {
	if rows == nil {
		return []wallet.Transaction{}
	}
	return rows
}
