package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"bizwallet/internal/apperr"
	"bizwallet/internal/metrics"
	"bizwallet/internal/money"
	"bizwallet/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LowBalanceHook is told the new balance after every debit. Errors are
// logged and never fail the debit.
type LowBalanceHook func(ctx context.Context, businessID uuid.UUID, balance decimal.Decimal) error

// Actor identifies the admin behind a privileged change.
type Actor struct {
	UserID    string
	IPAddress string
}

// Service is the ledger gateway. It validates intents, turns each into
// exactly one Store call, and never computes or writes a balance itself.
//
// Money invariants:
// - No balance updates without a ledger entry
// - Ledger is append-only (immutable)
// - Frozen wallets accept no credit or debit of any kind
type Service struct {
	store Store
	hook  LowBalanceHook
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// SetLowBalanceHook installs the post-debit callback. Call before serving traffic.
func (s *Service) SetLowBalanceHook(h LowBalanceHook) { s.hook = h }

func (s *Service) Account(ctx context.Context, id uuid.UUID) (Account, error) {
	return s.store.Account(ctx, id)
}

func (s *Service) Transaction(ctx context.Context, businessID, id uuid.UUID) (Transaction, error) {
	return s.store.Transaction(ctx, businessID, id)
}

func (s *Service) FindByExternalReference(ctx context.Context, businessID uuid.UUID, ref string) (Transaction, bool, error) {
	return s.store.FindByExternalReference(ctx, businessID, ref)
}

// Credit posts a positive amount (credit_added or refund).
func (s *Service) Credit(ctx context.Context, op Operation) (Result, error) {
	if !op.Amount.IsPositive() {
		return Result{}, ErrInvalidOperation
	}
	return s.Apply(ctx, op)
}

// Debit posts a positive amount as a deduction.
func (s *Service) Debit(ctx context.Context, op Operation) (Result, error) {
	if !op.Amount.IsPositive() {
		return Result{}, ErrInvalidOperation
	}
	op.Amount = op.Amount.Neg()
	return s.Apply(ctx, op)
}

// Apply is add_to_wallet: one signed delta for one account.
func (s *Service) Apply(ctx context.Context, op Operation) (Result, error) {
	if err := checkOperation(op); err != nil {
		return Result{}, err
	}
	if op.CreatedBy == "" {
		op.CreatedBy = "system"
	}
	if err := s.checkPrecision(ctx, op.BusinessAccountID, op.Amount); err != nil {
		return Result{}, err
	}

	res, err := s.store.Apply(ctx, op)
	record(string(op.Type), res, err)
	if err != nil {
		return Result{}, err
	}
	if op.Amount.IsNegative() && !res.AlreadyProcessed {
		s.notifyLowBalance(ctx, op.BusinessAccountID, res.Balance)
	}
	return res, nil
}

// AdminAdjust is admin_adjust_wallet. A negative result balance is only
// possible when the input sets AllowNegative.
func (s *Service) AdminAdjust(ctx context.Context, businessID uuid.UUID, in AdjustmentInput, actor Actor) (Result, error) {
	if err := Validate(in); err != nil {
		return Result{}, err
	}
	if actor.UserID == "" {
		return Result{}, apperr.Unauthenticated("unauthorized")
	}
	if err := s.checkPrecision(ctx, businessID, in.Amount); err != nil {
		return Result{}, err
	}

	res, err := s.store.AdminAdjust(ctx, Adjustment{
		BusinessAccountID: businessID,
		AdminUserID:       actor.UserID,
		Amount:            in.Amount,
		Reason:            strings.TrimSpace(in.Reason),
		Currency:          in.Currency,
		AllowNegative:     in.AllowNegative,
		IPAddress:         actor.IPAddress,
	})
	record(string(TypeAdminAdjustment), res, err)
	if err != nil {
		return Result{}, err
	}
	if in.Amount.IsNegative() {
		s.notifyLowBalance(ctx, businessID, res.Balance)
	}
	return res, nil
}

// Freeze is freeze_business_wallet. Redundant requests are rejected before
// the store is called so they leave no audit row.
func (s *Service) Freeze(ctx context.Context, businessID uuid.UUID, in FreezeInput, actor Actor) (FreezeResult, error) {
	return s.setFrozen(ctx, businessID, true, in, actor)
}

// Unfreeze is unfreeze_business_wallet.
func (s *Service) Unfreeze(ctx context.Context, businessID uuid.UUID, in FreezeInput, actor Actor) (FreezeResult, error) {
	return s.setFrozen(ctx, businessID, false, in, actor)
}

func (s *Service) setFrozen(ctx context.Context, businessID uuid.UUID, freeze bool, in FreezeInput, actor Actor) (FreezeResult, error) {
	if err := Validate(in); err != nil {
		return FreezeResult{}, err
	}
	if actor.UserID == "" {
		return FreezeResult{}, apperr.Unauthenticated("unauthorized")
	}

	op := "unfreeze"
	if freeze {
		op = "freeze"
	}

	acct, err := s.store.Account(ctx, businessID)
	if err != nil {
		return FreezeResult{}, err
	}
	switch {
	case freeze && acct.Frozen:
		metrics.LedgerOperation(op, metrics.ResultRejected)
		return FreezeResult{}, ErrAlreadyFrozen
	case !freeze && !acct.Frozen:
		metrics.LedgerOperation(op, metrics.ResultRejected)
		return FreezeResult{}, ErrNotFrozen
	}

	res, err := s.store.SetFrozen(ctx, FreezeChange{
		BusinessAccountID: businessID,
		AdminUserID:       actor.UserID,
		Freeze:            freeze,
		Reason:            strings.TrimSpace(in.Reason),
		IPAddress:         actor.IPAddress,
	})
	if err != nil {
		metrics.LedgerOperation(op, resultLabel(err))
		return FreezeResult{}, err
	}
	metrics.LedgerOperation(op, metrics.ResultOK)
	return res, nil
}

// checkPrecision rejects amounts finer than the wallet currency's minor
// unit. Stored amounts and balances are rounded independently, so a finer
// amount would break balance_after = previous + amount.
func (s *Service) checkPrecision(ctx context.Context, businessID uuid.UUID, amount decimal.Decimal) error {
	acct, err := s.store.Account(ctx, businessID)
	if err != nil {
		return err
	}
	if _, err := money.ToMinor(amount, acct.Currency); err != nil {
		return apperr.ValidationFields([]apperr.FieldError{{
			Field:   "amount",
			Message: fmt.Sprintf("amount has more decimal places than %s allows", acct.Currency),
		}})
	}
	return nil
}

func (s *Service) notifyLowBalance(ctx context.Context, businessID uuid.UUID, balance decimal.Decimal) {
	if s.hook == nil {
		return
	}
	if err := s.hook(ctx, businessID, balance); err != nil {
		logger.From(ctx).Warn("low balance hook failed",
			"business_account_id", businessID.String(),
			"balance", balance.String(),
			"err", err,
		)
	}
}

func checkOperation(op Operation) error {
	if op.BusinessAccountID == uuid.Nil || op.Amount.IsZero() {
		return ErrInvalidOperation
	}
	switch op.Type {
	case TypeCreditAdded, TypeRefund:
		if !op.Amount.IsPositive() {
			return fmt.Errorf("%s must be positive: %w", op.Type, ErrInvalidOperation)
		}
	case TypeBookingDeduction:
		if !op.Amount.IsNegative() {
			return fmt.Errorf("%s must be negative: %w", op.Type, ErrInvalidOperation)
		}
	default:
		// admin_adjustment only goes through AdminAdjust.
		return ErrInvalidOperation
	}
	return nil
}

func record(op string, res Result, err error) {
	switch {
	case err != nil:
		metrics.LedgerOperation(op, resultLabel(err))
	case res.AlreadyProcessed:
		metrics.LedgerOperation(op, metrics.ResultDup)
	default:
		metrics.LedgerOperation(op, metrics.ResultOK)
	}
}

func resultLabel(err error) string {
	var ae *apperr.Error
	if errors.As(err, &ae) && ae.Kind != apperr.KindInternal {
		return metrics.ResultRejected
	}
	return metrics.ResultError
}
