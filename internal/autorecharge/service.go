// Package autorecharge tops a wallet up from a saved card when its balance
// drops below a configured threshold.
package autorecharge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"bizwallet/internal/apperr"
	"bizwallet/internal/metrics"
	"bizwallet/internal/payments"
	"bizwallet/internal/wallet"
	"bizwallet/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Queue hands a pending attempt to the background worker.
type Queue interface {
	EnqueueAutoRecharge(ctx context.Context, attemptID uuid.UUID) error
}

// Charger charges a saved method without the customer present and credits
// the wallet on success.
type Charger interface {
	ChargeOffSession(ctx context.Context, businessID uuid.UUID, pm payments.PaymentMethod, amount decimal.Decimal, attemptID string) (payments.PaymentIntent, payments.CreditResult, error)
}

// MethodFinder resolves a saved method owned by the business.
type MethodFinder interface {
	Usable(ctx context.Context, businessID, id uuid.UUID) (payments.PaymentMethod, error)
}

type AccountReader interface {
	Account(ctx context.Context, id uuid.UUID) (wallet.Account, error)
}

type Service struct {
	repo     Repository
	accounts AccountReader
	methods  MethodFinder
	charger  Charger
	queue    Queue
	now      func() time.Time
}

func NewService(repo Repository, accounts AccountReader, methods MethodFinder, charger Charger, queue Queue) *Service {
	return &Service{repo: repo, accounts: accounts, methods: methods, charger: charger, queue: queue, now: time.Now}
}

// SetQueue installs the worker queue once it exists.
func (s *Service) SetQueue(q Queue) { s.queue = q }

func (s *Service) Settings(ctx context.Context, businessID uuid.UUID) (Settings, error) {
	return s.repo.Settings(ctx, businessID)
}

// UpdateSettings replaces the account's settings. A payment method, when
// given, must be an active method of the same business.
func (s *Service) UpdateSettings(ctx context.Context, businessID uuid.UUID, in wallet.AutoRechargeSettingsInput) (Settings, error) {
	if err := wallet.Validate(in); err != nil {
		return Settings{}, err
	}
	next := Settings{
		BusinessAccountID: businessID,
		Enabled:           in.Enabled,
		Threshold:         in.Threshold,
		Amount:            in.Amount,
		UpdatedAt:         s.now().UTC(),
	}
	if in.PaymentMethodID != "" {
		pmID := uuid.MustParse(in.PaymentMethodID)
		if _, err := s.methods.Usable(ctx, businessID, pmID); err != nil {
			return Settings{}, err
		}
		next.PaymentMethodID = &pmID
	}
	return s.repo.SaveSettings(ctx, next)
}

// Trigger is the wallet's low-balance hook. It opens at most one attempt per
// account and hands it to the queue.
func (s *Service) Trigger(ctx context.Context, businessID uuid.UUID, balance decimal.Decimal) error {
	settings, err := s.repo.Settings(ctx, businessID)
	if err != nil {
		return fmt.Errorf("load auto-recharge settings: %w", err)
	}
	if !settings.Enabled || settings.PaymentMethodID == nil || !settings.Amount.IsPositive() {
		return nil
	}
	if !balance.LessThan(settings.Threshold) {
		return nil
	}

	acct, err := s.accounts.Account(ctx, businessID)
	if err != nil {
		return err
	}
	if acct.Frozen || !acct.IsActive {
		return nil
	}

	attempt, err := s.repo.CreateAttempt(ctx, Attempt{
		BusinessAccountID: businessID,
		Amount:            settings.Amount,
		Currency:          acct.Currency,
		TriggerBalance:    balance,
		Threshold:         settings.Threshold,
		PaymentMethodID:   settings.PaymentMethodID,
		CreatedAt:         s.now().UTC(),
	})
	if errors.Is(err, ErrOpenAttempt) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("create auto-recharge attempt: %w", err)
	}

	logger.From(ctx).Info("auto-recharge triggered",
		"business_account_id", businessID.String(),
		"attempt_id", attempt.ID.String(),
		"balance", balance.String(),
		"threshold", settings.Threshold.String(),
	)

	if s.queue == nil {
		err = errors.New("no auto-recharge queue configured")
	} else {
		err = s.queue.EnqueueAutoRecharge(ctx, attempt.ID)
	}
	if err != nil {
		s.finish(ctx, attempt.ID, []Status{StatusPending}, StatusFailed, Patch{FailureReason: "could not be scheduled"})
		return fmt.Errorf("enqueue auto-recharge attempt: %w", err)
	}
	return nil
}

// Process runs one attempt: pending to processing, charge, then exactly one
// terminal transition. It returns nil when someone else already moved the
// attempt (for example a cancel).
func (s *Service) Process(ctx context.Context, attemptID uuid.UUID) error {
	attempt, moved, err := s.repo.Transition(ctx, attemptID, []Status{StatusPending}, StatusProcessing, Patch{At: s.now()})
	if err != nil {
		return err
	}
	log := logger.From(ctx).With(
		slog.String("attempt_id", attemptID.String()),
		slog.String("business_account_id", attempt.BusinessAccountID.String()),
	)
	if !moved {
		log.Info("auto-recharge attempt skipped", "status", string(attempt.Status))
		return nil
	}

	processing := []Status{StatusProcessing}
	if attempt.PaymentMethodID == nil {
		s.finish(ctx, attemptID, processing, StatusFailed, Patch{FailureReason: "no payment method configured"})
		return nil
	}
	pm, err := s.methods.Usable(ctx, attempt.BusinessAccountID, *attempt.PaymentMethodID)
	if err != nil {
		s.finish(ctx, attemptID, processing, StatusFailed, Patch{FailureReason: apperr.PublicMessage(err)})
		return nil
	}

	pi, credit, err := s.charger.ChargeOffSession(ctx, attempt.BusinessAccountID, pm, attempt.Amount, attemptID.String())
	switch {
	case err != nil && pi.ID == "":
		log.Error("auto-recharge charge failed", "err", err)
		s.finish(ctx, attemptID, processing, StatusFailed, Patch{FailureReason: apperr.PublicMessage(err)})
		return nil
	case pi.Status != payments.IntentSucceeded:
		reason := pi.LastError
		if reason == "" {
			reason = "payment " + strings.ReplaceAll(pi.Status, "_", " ")
		}
		s.finish(ctx, attemptID, processing, StatusFailed, Patch{PaymentIntentID: pi.ID, FailureReason: reason})
		return nil
	case err != nil:
		// Charged but not yet credited. The payment_intent.succeeded
		// webhook carries the same reference and completes the credit.
		log.Error("auto-recharge credit deferred to webhook", "payment_intent_id", pi.ID, "err", err)
	default:
		log.Info("auto-recharge credited", "payment_intent_id", pi.ID, "balance_after", credit.NewBalance.String())
	}
	s.finish(ctx, attemptID, processing, StatusSucceeded, Patch{PaymentIntentID: pi.ID})
	return nil
}

// Cancel stops an attempt that has not finished. Cancelling does not
// interrupt a charge already sent to the provider.
func (s *Service) Cancel(ctx context.Context, businessID uuid.UUID, in wallet.CancelAttemptInput) (Attempt, error) {
	if err := wallet.Validate(in); err != nil {
		return Attempt{}, err
	}
	id := uuid.MustParse(in.AttemptID)
	attempt, err := s.repo.Attempt(ctx, id)
	if err != nil {
		return Attempt{}, err
	}
	if attempt.BusinessAccountID != businessID {
		return Attempt{}, ErrAttemptNotOwned
	}
	if !attempt.Status.Open() {
		return Attempt{}, ErrNotCancellable
	}

	cancelled, moved := s.finish(ctx, id, openStatuses, StatusCancelled, Patch{FailureReason: "cancelled by user"})
	if !moved {
		return Attempt{}, ErrNotCancellable
	}
	return cancelled, nil
}

// History lists attempts newest first with statistics over the date range.
func (s *Service) History(ctx context.Context, businessID uuid.UUID, f HistoryFilter) (HistoryPage, error) {
	if f.Status != "" && !f.Status.Valid() {
		return HistoryPage{}, apperr.Validation("status must be one of pending, processing, succeeded, failed, cancelled")
	}
	if f.StartDate != nil && f.EndDate != nil && f.EndDate.Before(*f.StartDate) {
		return HistoryPage{}, apperr.Validation("end_date must not be before start_date")
	}
	f = NormalizeFilter(f)

	attempts, total, err := s.repo.ListAttempts(ctx, businessID, f)
	if err != nil {
		return HistoryPage{}, err
	}
	stats, err := s.repo.Statistics(ctx, businessID, f)
	if err != nil {
		return HistoryPage{}, err
	}
	if attempts == nil {
		attempts = []Attempt{}
	}

	pages := (total + f.Limit - 1) / f.Limit
	return HistoryPage{
		Attempts: attempts,
		Pagination: Pagination{
			Page:       f.Page,
			Limit:      f.Limit,
			Total:      total,
			TotalPages: pages,
			HasNext:    f.Page < pages,
			HasPrev:    f.Page > 1,
		},
		Statistics: stats,
	}, nil
}

func NormalizeFilter(f HistoryFilter) HistoryFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = DefaultPageLimit
	}
	if f.Limit > MaxPageLimit {
		f.Limit = MaxPageLimit
	}
	return f
}

// finish performs a conditional transition and records terminal outcomes.
func (s *Service) finish(ctx context.Context, id uuid.UUID, from []Status, to Status, p Patch) (Attempt, bool) {
	p.At = s.now()
	a, moved, err := s.repo.Transition(ctx, id, from, to, p)
	if err != nil {
		logger.From(ctx).Error("auto-recharge transition failed",
			"attempt_id", id.String(), "to", string(to), "err", err)
		return Attempt{}, false
	}
	if !moved {
		logger.From(ctx).Warn("auto-recharge attempt changed concurrently",
			"attempt_id", id.String(), "status", string(a.Status), "wanted", string(to))
		return a, false
	}
	metrics.AutoRechargeAttempt(string(to))
	return a, true
}

func summarize(attempts []Attempt) Statistics {
	s := Statistics{TotalRecharged: decimal.Zero}
	for _, a := range attempts {
		s.Total++
		switch a.Status {
		case StatusPending:
			s.Pending++
		case StatusProcessing:
			s.Processing++
		case StatusSucceeded:
			s.Succeeded++
			s.TotalRecharged = s.TotalRecharged.Add(a.Amount)
		case StatusFailed:
			s.Failed++
		case StatusCancelled:
			s.Cancelled++
		}
	}
	s.SuccessRate = successRate(s.Succeeded, s.Failed)
	return s
}

func successRate(succeeded, failed int) float64 {
	finished := succeeded + failed
	if finished == 0 {
		return 0
	}
	return math.Round(float64(succeeded)/float64(finished)*10000) / 100
}
