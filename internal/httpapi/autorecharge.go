package httpapi

import (
	"net/http"

	"bizwallet/internal/wallet"

	"github.com/gin-gonic/gin"
)

// --- Auto-recharge ---

func (h Handlers) GetAutoRechargeSettings(c *gin.Context) {
	biz, ok := callerBusiness(c)
	if !ok {
		return
	}
	s, err := h.AutoRecharge.Settings(c.Request.Context(), biz)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h Handlers) PutAutoRechargeSettings(c *gin.Context) {
	biz, ok := callerBusiness(c)
	if !ok {
		return
	}
	var in wallet.AutoRechargeSettingsInput
	if !bindJSON(c, &in) {
		return
	}
	s, err := h.AutoRecharge.UpdateSettings(c.Request.Context(), biz, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h Handlers) PostCancelAutoRecharge(c *gin.Context) {
	biz, ok := callerBusiness(c)
	if !ok {
		return
	}
	var in wallet.CancelAttemptInput
	if !bindJSON(c, &in) {
		return
	}
	a, err := h.AutoRecharge.Cancel(c.Request.Context(), biz, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":    "auto-recharge attempt cancelled",
		"attempt_id": a.ID,
	})
}

func (h Handlers) GetAutoRechargeHistory(c *gin.Context) {
	biz, ok := callerBusiness(c)
	if !ok {
		return
	}
	f, err := historyFilter(c)
	if err != nil {
		respondError(c, err)
		return
	}
	page, err := h.AutoRecharge.History(c.Request.Context(), biz, f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}
