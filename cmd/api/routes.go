package main

import (
	"net/http"
	"time"

	"bizwallet/internal/audit"
	"bizwallet/internal/auth"
	"bizwallet/internal/autorecharge"
	"bizwallet/internal/bookings"
	"bizwallet/internal/config"
	"bizwallet/internal/httpapi"
	"bizwallet/internal/jobs"
	"bizwallet/internal/payments"
	"bizwallet/internal/rbac"
	"bizwallet/internal/reporting"
	"bizwallet/internal/wallet"
	"bizwallet/pkg/logger"
	"bizwallet/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/riverqueue/river"
)

const paymentClaimTTL = 30 * time.Second

// app holds the wired services. Queue-backed services get their enqueuer
// after the river client exists, see wireQueue.
type app struct {
	handlers httpapi.Handlers
	guards   httpapi.Guards
	workers  *river.Workers

	bookings     *bookings.Service
	autoRecharge *autorecharge.Service
}

func newApp(cfg config.Config, db *pgxpool.Pool, rdb *redis.Client) (*app, error) {
	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		return nil, err
	}
	dir := rbac.NewPostgresDirectory(db)

	ledger := wallet.NewService(wallet.NewPostgresStore(db))

	minTopUp, maxTopUp := cfg.TopUpRange()
	opts := payments.Options{TopUpMin: minTopUp, TopUpMax: maxTopUp}
	if rdb != nil {
		opts.Claimer = payments.NewRedisClaimer(rdb, paymentClaimTTL)
	}
	provider := payments.NewStripeProvider(payments.StripeConfig{
		SecretKey:     cfg.Stripe.SecretKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
		SuccessURL:    cfg.Stripe.SuccessURL,
		CancelURL:     cfg.Stripe.CancelURL,
	})
	bridge := payments.NewBridge(ledger, provider, payments.NewPostgresStore(db), opts)

	bookingSvc := bookings.NewService(bookings.NewPostgresRepo(db), ledger, nil)
	rechargeSvc := autorecharge.NewService(autorecharge.NewPostgresRepo(db), ledger, bridge.Methods(), bridge, nil)
	ledger.SetLowBalanceHook(rechargeSvc.Trigger)

	return &app{
		handlers: httpapi.Handlers{
			Login:        auth.NewLoginService(auth.NewPostgresUsers(db), authManager),
			Wallet:       ledger,
			Audit:        audit.NewService(audit.NewPostgresRepo(db)),
			Reporting:    reporting.NewService(reporting.NewPostgresRepo(db)),
			Payments:     bridge,
			Bookings:     bookingSvc,
			AutoRecharge: rechargeSvc,
			ExportLimit:  cfg.Wallet.ExportLimit,
		},
		guards: httpapi.Guards{
			Auth:     auth.RequireAccessToken(authManager),
			Admin:    rbac.RequireAdmin(dir),
			Business: rbac.RequireBusiness(dir),
			Owner:    rbac.RequireBusinessRole(rbac.BusinessRoleOwner),
			Balance:  wallet.RequireSufficientBalance(ledger, bookingSvc.PriceResolver()),
		},
		workers:      jobs.Workers(bookingSvc, rechargeSvc),
		bookings:     bookingSvc,
		autoRecharge: rechargeSvc,
	}, nil
}

func (a *app) wireQueue(client jobs.Inserter) {
	q := jobs.NewEnqueuer(client)
	a.bookings.SetRefundQueue(q)
	a.autoRecharge.SetQueue(q)
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, a *app, db *pgxpool.Pool) {
	r.GET("/healthz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), db, 2*time.Second); err != nil {
			logger.FromGin(c).Error("health check failed", "err", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	httpapi.Register(r, a.handlers, a.guards)
}
