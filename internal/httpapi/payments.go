package httpapi

import (
	"io"
	"net/http"
	"strings"

	"bizwallet/internal/apperr"
	"bizwallet/internal/wallet"

	"github.com/gin-gonic/gin"
)

const maxWebhookBytes = 64 << 10

// --- Top-ups ---

func (h Handlers) PostCheckout(c *gin.Context) {
	biz, ok := callerBusiness(c)
	if !ok {
		return
	}
	var in wallet.TopUpInput
	if !bindJSON(c, &in) {
		return
	}
	res, err := h.Payments.StartCheckout(c.Request.Context(), biz, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h Handlers) PostCreateIntent(c *gin.Context) {
	biz, ok := callerBusiness(c)
	if !ok {
		return
	}
	var in wallet.TopUpInput
	if !bindJSON(c, &in) {
		return
	}
	res, err := h.Payments.CreateIntent(c.Request.Context(), biz, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h Handlers) PostChargeSaved(c *gin.Context) {
	biz, ok := callerBusiness(c)
	if !ok {
		return
	}
	var in wallet.ChargeSavedInput
	if !bindJSON(c, &in) {
		return
	}
	res, err := h.Payments.ChargeSaved(c.Request.Context(), biz, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h Handlers) GetVerifyPayment(c *gin.Context) {
	biz, ok := callerBusiness(c)
	if !ok {
		return
	}
	sessionID := strings.TrimSpace(c.Query("session_id"))
	if sessionID == "" {
		respondError(c, apperr.Validation("session_id is required"))
		return
	}
	res, err := h.Payments.VerifyCheckout(c.Request.Context(), biz, sessionID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// PostStripeWebhook needs the raw body for signature verification.
func (h Handlers) PostStripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBytes))
	if err != nil {
		respondError(c, apperr.Validation("unreadable body"))
		return
	}
	out, err := h.Payments.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// --- Payment methods ---

func (h Handlers) GetPaymentMethods(c *gin.Context) {
	biz, ok := callerBusiness(c)
	if !ok {
		return
	}
	methods, err := h.Payments.Methods().List(c.Request.Context(), biz)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payment_methods": methods})
}

func (h Handlers) DeletePaymentMethod(c *gin.Context) {
	biz, ok := callerBusiness(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id", "payment method id")
	if !ok {
		return
	}
	if err := h.Payments.Methods().Delete(c.Request.Context(), biz, id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "payment method removed", "payment_method_id": id})
}
