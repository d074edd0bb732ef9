// Package errors provides common, reusable error values and helpers.
package errors

import (
	"errors"
	"fmt"
)

// Validation errors: checked before any mutation, nothing committed.
var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrAmountExceedsDebt = errors.New("amount exceeds active debt")
)

// Conflict errors: detected via state inspection, nothing committed.
var (
	ErrSettlementExists        = errors.New("settlement already exists")
	ErrSettlementNotSettleable = errors.New("settlement is not in a settleable state")
	ErrClosedAccount           = errors.New("update on closed account")
	ErrSettlementReverse       = errors.New("reversal error")
	ErrSettlementConfirmed     = errors.New("settlement already confirmed, cannot reverse")
	ErrAlreadyReversed         = errors.New("settlement already reversed")
	ErrServiceAlreadyActivated = errors.New("service is already activated")
	ErrAlreadyDeactivated      = errors.New("grant is already deactivated")
)

// Resource-exhaustion errors: the caller may resolve them (e.g. by
// liquidating collateral) and retry.
var (
	ErrNeedsLiquidation        = errors.New("settlement needs liquidation")
	ErrInsuranceFundLowBalance = errors.New("insurance fund low balance")
)

// Fatal errors: an invariant has already been breached; the enclosing
// transaction must halt and the condition be reported as an incident.
var (
	ErrNegativeBalance        = errors.New("negative balance")
	ErrUnexpectedLowLiquidity = errors.New("unexpected low liquidity")
)

// Lookup errors.
var (
	ErrWalletNotFound        = errors.New("wallet not found")
	ErrWalletInactive        = errors.New("wallet is not active")
	ErrAccountNotFound       = errors.New("debt account not found")
	ErrSettlementNotFound    = errors.New("settlement not found")
	ErrEntryNotFound         = errors.New("ledger entry not found")
	ErrCacheCorrupt          = errors.New("corrupt cache payload")
	ErrProviderNotConfigured = errors.New("provider has no configured settlement account")
)

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
