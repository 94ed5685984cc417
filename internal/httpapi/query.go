package httpapi

import (
	"strconv"
	"strings"
	"time"

	"bizwallet/internal/apperr"
	"bizwallet/internal/audit"
	"bizwallet/internal/autorecharge"
	"bizwallet/internal/money"
	"bizwallet/internal/reporting"
	"bizwallet/internal/wallet"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

const dateOnly = "2006-01-02"

// queryTime accepts RFC 3339 or a bare date. A bare end date covers the
// whole day.
func queryTime(c *gin.Context, key string, endOfDay bool) (*time.Time, error) {
	v := strings.TrimSpace(c.Query(key))
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t, nil
	}
	t, err := time.Parse(dateOnly, v)
	if err != nil {
		return nil, apperr.Validation(key + " must be a date (YYYY-MM-DD) or RFC 3339 timestamp")
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

func queryInt(c *gin.Context, key string) (int, error) {
	v := strings.TrimSpace(c.Query(key))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, apperr.Validation(key + " must be a non-negative integer")
	}
	return n, nil
}

func queryAmount(c *gin.Context, key string) (*decimal.Decimal, error) {
	v := strings.TrimSpace(c.Query(key))
	if v == "" {
		return nil, nil
	}
	d, err := money.ParseAmount(v)
	if err != nil {
		return nil, apperr.Validation(key + " must be a number")
	}
	return &d, nil
}

// queryList reads comma separated and repeated values alike.
func queryList(c *gin.Context, key string) []string {
	var out []string
	for _, raw := range c.QueryArray(key) {
		for _, part := range strings.Split(raw, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func dateRange(c *gin.Context) (start, end *time.Time, err error) {
	if start, err = queryTime(c, "start_date", false); err != nil {
		return nil, nil, err
	}
	if end, err = queryTime(c, "end_date", true); err != nil {
		return nil, nil, err
	}
	if start != nil && end != nil && end.Before(*start) {
		return nil, nil, apperr.Validation("end_date must not be before start_date")
	}
	return start, end, nil
}

func transactionFilter(c *gin.Context) (reporting.Filter, error) {
	var (
		f   reporting.Filter
		err error
	)
	for _, t := range queryList(c, "type") {
		typ := wallet.TransactionType(t)
		if !typ.Valid() {
			return f, apperr.Validation("unknown transaction type: " + t)
		}
		f.Types = append(f.Types, typ)
	}
	if f.StartDate, f.EndDate, err = dateRange(c); err != nil {
		return f, err
	}
	if f.MinAmount, err = queryAmount(c, "min_amount"); err != nil {
		return f, err
	}
	if f.MaxAmount, err = queryAmount(c, "max_amount"); err != nil {
		return f, err
	}
	if f.MinAmount != nil && f.MaxAmount != nil && f.MaxAmount.LessThan(*f.MinAmount) {
		return f, apperr.Validation("max_amount must not be less than min_amount")
	}
	if cur := strings.TrimSpace(c.Query("currency")); cur != "" {
		if !money.IsCurrencyCode(cur) {
			return f, apperr.Validation("currency must be a 3-letter uppercase code")
		}
		f.Currency = cur
	}
	f.ReferenceID = strings.TrimSpace(c.Query("reference_id"))
	f.Search = strings.TrimSpace(c.Query("search"))
	if f.Page, err = queryInt(c, "page"); err != nil {
		return f, err
	}
	if f.Limit, err = queryInt(c, "limit"); err != nil {
		return f, err
	}
	return f, nil
}

func auditFilter(c *gin.Context) (audit.Filter, error) {
	var (
		f   audit.Filter
		err error
	)
	if f.StartDate, f.EndDate, err = dateRange(c); err != nil {
		return f, err
	}
	for _, a := range queryList(c, "action_types") {
		at := audit.ActionType(a)
		if !at.Valid() {
			return f, apperr.Validation("unknown action type: " + a)
		}
		f.ActionTypes = append(f.ActionTypes, at)
	}
	if f.Limit, err = queryInt(c, "limit"); err != nil {
		return f, err
	}
	if f.Offset, err = queryInt(c, "offset"); err != nil {
		return f, err
	}
	return f, nil
}

func historyFilter(c *gin.Context) (autorecharge.HistoryFilter, error) {
	var (
		f   autorecharge.HistoryFilter
		err error
	)
	f.Status = autorecharge.Status(strings.TrimSpace(c.Query("status")))
	if f.StartDate, f.EndDate, err = dateRange(c); err != nil {
		return f, err
	}
	if f.Page, err = queryInt(c, "page"); err != nil {
		return f, err
	}
	if f.Limit, err = queryInt(c, "limit"); err != nil {
		return f, err
	}
	return f, nil
}
