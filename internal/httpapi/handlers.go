// Package httpapi holds the gin handlers. Keep these thin: parse input, call
// internal services, shape JSON. Every error leaves through respondError.
package httpapi

import (
	"net/http"

	"bizwallet/internal/apperr"
	"bizwallet/internal/audit"
	"bizwallet/internal/auth"
	"bizwallet/internal/autorecharge"
	"bizwallet/internal/bookings"
	"bizwallet/internal/payments"
	"bizwallet/internal/reporting"
	"bizwallet/internal/wallet"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Handlers groups HTTP handlers for dependency injection.
type Handlers struct {
	Login        *auth.LoginService
	Wallet       *wallet.Service
	Audit        *audit.Service
	Reporting    *reporting.Service
	Payments     *payments.Bridge
	Bookings     *bookings.Service
	AutoRecharge *autorecharge.Service

	// ExportLimit caps CSV exports.
	ExportLimit int
}

type businessRef struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// respondError writes {"error": msg} with the taxonomy status. Causes of
// 5xx responses are recorded on the gin context for the request log line.
func respondError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	body := gin.H{"error": apperr.PublicMessage(err)}
	if e, ok := apperr.As(err); ok && len(e.Fields) > 0 {
		body["fields"] = e.Fields
	}
	c.AbortWithStatusJSON(status, body)
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, apperr.Validation("invalid json"))
		return false
	}
	return true
}

func pathUUID(c *gin.Context, name, label string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		respondError(c, apperr.Validation("invalid "+label))
		return uuid.Nil, false
	}
	return id, true
}

// callerBusiness is the business account attached by rbac.RequireBusiness.
func callerBusiness(c *gin.Context) (uuid.UUID, bool) {
	id, err := auth.BusinessAccountID(c.Request.Context())
	if err != nil {
		respondError(c, apperr.Unauthenticated("unauthorized"))
		return uuid.Nil, false
	}
	return id, true
}

func callerID(c *gin.Context) (string, bool) {
	id, err := auth.UserID(c.Request.Context())
	if err != nil || id == "" {
		respondError(c, apperr.Unauthenticated("unauthorized"))
		return "", false
	}
	return id, true
}

// targetBusiness loads the :id business of an admin route.
func (h Handlers) targetBusiness(c *gin.Context) (wallet.Account, bool) {
	id, ok := pathUUID(c, "id", "business id")
	if !ok {
		return wallet.Account{}, false
	}
	acct, err := h.Wallet.Account(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return wallet.Account{}, false
	}
	return acct, true
}
