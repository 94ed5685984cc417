package wallet

import "bizwallet/internal/apperr"

// Ledger rule failures carry fixed, caller-safe messages.
var (
	ErrAccountNotFound     = apperr.NotFound("business account not found")
	ErrTransactionNotFound = apperr.NotFound("transaction not found")
	ErrAccountInactive     = apperr.Ledger("business account is inactive")
	ErrWalletFrozen        = apperr.Ledger("wallet is frozen")
	ErrInsufficientBalance = apperr.Ledger("insufficient wallet balance")
	ErrCurrencyMismatch    = apperr.Ledger("currency does not match wallet currency")
	ErrInvalidOperation    = apperr.Validation("invalid wallet operation")

	ErrAlreadyFrozen = apperr.Validation("wallet is already frozen")
	ErrNotFrozen     = apperr.Validation("wallet is not frozen")
)
