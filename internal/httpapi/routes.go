package httpapi

import (
	"github.com/gin-gonic/gin"
)

// Guards are the middleware chains routes are mounted behind.
type Guards struct {
	Auth     gin.HandlerFunc
	Admin    gin.HandlerFunc
	Business gin.HandlerFunc
	Owner    gin.HandlerFunc
	// Balance pre-checks wallet funds for booking payment.
	Balance gin.HandlerFunc
}

// Register mounts the /v1 API. Keep this free of business logic.
func Register(r *gin.Engine, h Handlers, g Guards) {
	v1 := r.Group("/v1")

	authGroup := v1.Group("/auth")
	{
		authGroup.POST("/login", h.PostLogin)
		authGroup.POST("/refresh", h.PostRefresh)
	}

	// Signature-verified, no session.
	v1.POST("/webhooks/stripe", h.PostStripeWebhook)

	protected := v1.Group("")
	protected.Use(g.Auth)

	w := protected.Group("/wallet")
	w.Use(g.Business)
	{
		w.GET("", h.GetWallet)
		w.GET("/transactions", h.GetTransactions)
		w.GET("/transactions/stats", h.GetTransactionStats)
		w.GET("/transactions/export", h.GetTransactionExport)

		w.POST("/checkout", g.Owner, h.PostCheckout)
		w.POST("/payment-element/create-intent", g.Owner, h.PostCreateIntent)
		w.POST("/payment-element/charge-saved", g.Owner, h.PostChargeSaved)
		w.GET("/verify-payment", h.GetVerifyPayment)

		w.GET("/payment-methods", h.GetPaymentMethods)
		w.DELETE("/payment-methods/:id", g.Owner, h.DeletePaymentMethod)

		w.GET("/auto-recharge/settings", h.GetAutoRechargeSettings)
		w.PUT("/auto-recharge/settings", g.Owner, h.PutAutoRechargeSettings)
		w.POST("/auto-recharge/cancel", h.PostCancelAutoRecharge)
		w.GET("/auto-recharge/history", h.GetAutoRechargeHistory)
	}

	b := protected.Group("/bookings")
	b.Use(g.Business)
	{
		b.POST("/:id/pay", g.Balance, h.PostPayBooking)
	}

	admin := protected.Group("/admin")
	admin.Use(g.Admin)
	{
		admin.POST("/businesses/:id/wallet/adjust", h.PostAdjust)
		admin.POST("/businesses/:id/wallet/freeze", h.PostFreeze)
		admin.DELETE("/businesses/:id/wallet/freeze", h.DeleteFreeze)
		admin.GET("/businesses/:id/wallet/audit", h.GetAudit)

		admin.DELETE("/bookings/:id", h.DeleteBooking)
		admin.POST("/bookings/bulk-delete", h.PostBulkDeleteBookings)
	}
}
