package httpapi

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"bizwallet/internal/reporting"

	"github.com/gin-gonic/gin"
)

// --- Wallet ---

func (h Handlers) GetWallet(c *gin.Context) {
	biz, ok := callerBusiness(c)
	if !ok {
		return
	}
	acct, err := h.Wallet.Account(c.Request.Context(), biz)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"business_account_id": acct.ID,
		"name":                acct.Name,
		"balance":             acct.Balance,
		"currency":            acct.Currency,
		"wallet_frozen":       acct.Frozen,
		"wallet_frozen_at":    acct.FrozenAt,
	})
}

func (h Handlers) GetTransactions(c *gin.Context) {
	biz, ok := callerBusiness(c)
	if !ok {
		return
	}
	f, err := transactionFilter(c)
	if err != nil {
		respondError(c, err)
		return
	}
	page, err := h.Reporting.Transactions(c.Request.Context(), biz, f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h Handlers) GetTransactionStats(c *gin.Context) {
	biz, ok := callerBusiness(c)
	if !ok {
		return
	}
	f, err := transactionFilter(c)
	if err != nil {
		respondError(c, err)
		return
	}
	stats, err := h.Reporting.Stats(c.Request.Context(), biz, f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetTransactionExport renders into a buffer first so a failed query still
// produces a JSON error instead of a truncated attachment.
func (h Handlers) GetTransactionExport(c *gin.Context) {
	biz, ok := callerBusiness(c)
	if !ok {
		return
	}
	f, err := transactionFilter(c)
	if err != nil {
		respondError(c, err)
		return
	}
	limit := h.ExportLimit
	if limit <= 0 || limit > reporting.MaxExportRows {
		limit = reporting.MaxExportRows
	}
	if f.Limit > 0 && f.Limit < limit {
		limit = f.Limit
	}

	var buf bytes.Buffer
	if _, err := h.Reporting.Export(c.Request.Context(), biz, f, limit, &buf); err != nil {
		respondError(c, err)
		return
	}
	name := fmt.Sprintf("wallet-transactions-%s.csv", time.Now().UTC().Format(dateOnly))
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}
