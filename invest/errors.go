/*
errors.go - Centralized error types for the investment engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The store and API layers wrap these with additional context.

ERROR CATEGORIES:
  1. Not-found errors - referenced ids that do not resolve
  2. Ledger errors - balance and transition rule violations
  3. Store errors - persistence-level failures

USAGE:
  Callers classify with errors.Is or the helpers below:

    if errors.Is(err, invest.ErrInsufficientBalance) { ... }
    if invest.IsNotFound(err) { ... }

SEE ALSO:
  - store.go: operations returning these errors
  - accrual.go: per-record failure isolation during a pass
*/
package invest

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrUserNotFound is returned when a referenced user does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrInvestmentNotFound is returned when a referenced investment does not exist.
	ErrInvestmentNotFound = errors.New("investment not found")

	// ErrPaymentNotFound is returned when a referenced payment does not exist.
	ErrPaymentNotFound = errors.New("payment not found")

	// ErrWithdrawalNotFound is returned when a referenced withdrawal does not exist.
	ErrWithdrawalNotFound = errors.New("withdrawal not found")

	// ErrInsufficientBalance is returned when a debit exceeds the wallet balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrBelowMinimumWithdrawal is returned when a withdrawal asks for less
	// than MinWithdrawal.
	ErrBelowMinimumWithdrawal = errors.New("below minimum withdrawal")

	// ErrInvalidTransition is returned when a state change would move an
	// investment, payment or withdrawal backwards or skip a state.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrConcurrentModification is returned when a compare-and-set update
	// observed a record changed underneath it. The record was left unchanged.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrEmailTaken is returned when registration reuses an email.
	ErrEmailTaken = errors.New("email already registered")

	// ErrAccountBlocked is returned when a blocked account attempts to
	// authenticate or transact.
	ErrAccountBlocked = errors.New("account is blocked")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientBalanceError reports the shortage on a rejected debit.
type InsufficientBalanceError struct {
	UserID    UserID
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: available %s, requested %s",
		e.Available, e.Requested)
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

// TransitionError reports a rejected state change.
type TransitionError struct {
	InvestmentID InvestmentID
	From         InvestmentStatus
	Attempted    InvestmentStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition for %s: %s -> %s",
		e.InvestmentID, e.From, e.Attempted)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrInvestmentNotFound) ||
		errors.Is(err, ErrPaymentNotFound) ||
		errors.Is(err, ErrWithdrawalNotFound)
}

// IsClientError returns true if the error is caused by the caller rather
// than the store, and should map to a 4xx response.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrBelowMinimumWithdrawal) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrEmailTaken) ||
		errors.Is(err, ErrAccountBlocked) ||
		IsNotFound(err)
}

// IsRetryable returns true if the operation might succeed on retry.
// Retry is the caller's responsibility; nothing in the engine retries.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}
