package rbac

import (
	"errors"
	"net/http"

	"bizwallet/internal/auth"
	"bizwallet/pkg/logger"

	"github.com/gin-gonic/gin"
)

// RequireAdmin allows the request only when the caller's stored profile role
// is admin. The role in the token is not trusted; it is re-read every time.
func RequireAdmin(dir Directory) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, err := auth.UserID(c.Request.Context())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		role, err := dir.ProfileRole(c.Request.Context(), uid)
		switch {
		case errors.Is(err, ErrNotFound):
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		case err != nil:
			logger.FromGin(c).Error("admin role lookup failed", "user_id", uid, "err", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		if !IsAdmin(role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin access required"})
			return
		}
		c.Next()
	}
}

// RequireBusiness resolves the caller's business membership and attaches the
// business account id to the request context.
// Rules:
// - no identity: 401
// - no membership, inactive membership or inactive account: 403
func RequireBusiness(dir Directory) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, err := auth.UserID(c.Request.Context())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		m, err := dir.Membership(c.Request.Context(), uid)
		switch {
		case errors.Is(err, ErrNotFound):
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "business account required"})
			return
		case err != nil:
			logger.FromGin(c).Error("business membership lookup failed", "user_id", uid, "err", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		if !m.Active || !m.AccountActive {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "business account is inactive"})
			return
		}

		ctx := auth.WithBusiness(c.Request.Context(), m.BusinessAccountID, m.Role)
		c.Request = c.Request.WithContext(ctx)
		c.Set("business_account_id", m.BusinessAccountID.String())
		c.Next()
	}
}

// RequireBusinessRole restricts a route to the listed business roles.
// Use it after RequireBusiness in the chain.
func RequireBusinessRole(allowed ...string) gin.HandlerFunc {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, r := range allowed {
		allowedSet[r] = struct{}{}
	}

	return func(c *gin.Context) {
		if _, err := auth.BusinessAccountID(c.Request.Context()); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if _, ok := allowedSet[auth.BusinessRole(c.Request.Context())]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}
