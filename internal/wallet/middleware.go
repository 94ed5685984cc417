package wallet

import (
	"context"
	"net/http"

	"bizwallet/internal/apperr"
	"bizwallet/internal/auth"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountReader is the minimal wallet interface needed by middleware.
type AccountReader interface {
	Account(ctx context.Context, id uuid.UUID) (Account, error)
}

// CostResolver returns the amount the guarded route is about to debit.
type CostResolver func(c *gin.Context) (decimal.Decimal, error)

// RequireSufficientBalance blocks the request when the caller's wallet is
// frozen or holds less than the resolved cost. It is a fast pre-check only;
// the ledger re-checks under the account lock.
func RequireSufficientBalance(accounts AccountReader, cost CostResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		businessID, err := auth.BusinessAccountID(c.Request.Context())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		amount, err := cost(c)
		if err != nil {
			c.AbortWithStatusJSON(apperr.HTTPStatus(err), gin.H{"error": apperr.PublicMessage(err)})
			return
		}

		acct, err := accounts.Account(c.Request.Context(), businessID)
		if err != nil {
			c.AbortWithStatusJSON(apperr.HTTPStatus(err), gin.H{"error": apperr.PublicMessage(err)})
			return
		}
		if acct.Frozen {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": ErrWalletFrozen.Message})
			return
		}
		if acct.Balance.LessThan(amount) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": ErrInsufficientBalance.Message})
			return
		}

		c.Next()
	}
}
