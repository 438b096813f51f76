/*
store.go - Persistence contract for the investment engine

PURPOSE:
  Defines the interface between the business rules and the database.
  Implementations must provide per-record atomicity: every multi-field
  or multi-record operation below is all-or-nothing, and every
  check-then-act is a compare-and-set, never an application-level
  read-modify-write pair.

ATOMIC LEDGER OPERATIONS:
  ApplyAccrualCycle: investment advance + wallet credit, one transaction,
    guarded on the expected pre-cycle count. A lost race returns
    ErrConcurrentModification and leaves both records unchanged.
  ConfirmPayment: payment pending->confirmed + wallet credit, one
    transaction. Re-confirming does nothing and never re-credits.
  CreateWithdrawal: balance-guarded debit + withdrawal insert, one
    transaction. The guard is the walletBalance >= amount invariant.
  GrantReferralBonus: flag compare-and-set + referrer credit, one
    transaction. At most one grant per referred user, ever.

IMPLEMENTATIONS:
  - store/sqlite: production store (SQL transactions, guarded UPDATEs)
  - store/memory: in-memory store for tests (mutex-serialized)

SEE ALSO:
  - lifecycle.go: decisions applied through ApplyAccrualCycle
  - accrual.go: the scan driving EligibleInvestments
*/
package invest

import (
	"context"
	"time"
)

// Store is the durable home of all records. The engine holds no
// authoritative in-memory state; every accrual pass re-reads from here.
type Store interface {
	UserStore
	InvestmentStore
	PaymentStore
	WithdrawalStore
}

// =============================================================================
// USERS
// =============================================================================

type UserStore interface {
	// CreateUser persists a new user. Returns ErrEmailTaken on a
	// duplicate email.
	CreateUser(ctx context.Context, u User) error

	UserByID(ctx context.Context, id UserID) (*User, error)
	UserByEmail(ctx context.Context, email string) (*User, error)
	UserByReferralCode(ctx context.Context, code string) (*User, error)

	// ListUsers returns all non-admin users, newest first.
	ListUsers(ctx context.Context) ([]User, error)

	// CountReferrals returns how many users name id as their referrer.
	CountReferrals(ctx context.Context, id UserID) (int, error)

	// SetUserBlocked flips the block flag.
	SetUserBlocked(ctx context.Context, id UserID, blocked bool) error

	// GrantReferralBonus applies the one-time referral bonus for the
	// referred user: credits the referrer's wallet and referral earnings
	// by ReferralBonus and sets referralBonusPaid, atomically. Returns
	// (false, nil) when the bonus was already paid or the user has no
	// referrer; the flag can never be set twice.
	GrantReferralBonus(ctx context.Context, referredUserID UserID) (bool, error)
}

// =============================================================================
// INVESTMENTS
// =============================================================================

type InvestmentStore interface {
	// CreateInvestment persists a pending investment and, atomically,
	// increments the owner's totalInvested and activeInvestments.
	CreateInvestment(ctx context.Context, inv Investment) error

	InvestmentByID(ctx context.Context, id InvestmentID) (*Investment, error)
	InvestmentsByUser(ctx context.Context, userID UserID) ([]Investment, error)
	ListInvestments(ctx context.Context) ([]Investment, error)

	// EligibleInvestments returns every investment that could receive a
	// cycle this pass: confirmed, payment settled, cycles below the
	// completion count. Interval gating happens per record afterwards.
	EligibleInvestments(ctx context.Context) ([]Investment, error)

	// ConfirmInvestment applies the pending->confirmed transition:
	// paymentConfirmed=true, confirmedAt=now, cyclesCompleted=0.
	// ErrInvestmentNotFound if the id does not resolve; a TransitionError
	// if the investment is not pending.
	ConfirmInvestment(ctx context.Context, id InvestmentID, now time.Time) error

	// ApplyAccrualCycle persists one accrual cycle: the investment fields
	// from ApplyDecision plus the owner's wallet and withdrawable credits
	// (and the activeInvestments decrement on completion), guarded on
	// expectedCycles. ErrConcurrentModification on a lost race.
	ApplyAccrualCycle(ctx context.Context, id InvestmentID, expectedCycles int, d AccrualDecision, now time.Time) error

	// InvestmentCounts returns totals for the admin overview.
	InvestmentCounts(ctx context.Context) (InvestmentCounts, error)
}

// InvestmentCounts aggregates the admin overview numbers.
type InvestmentCounts struct {
	Total     int
	Pending   int
	Confirmed int
	// ConfirmedPrincipal is the summed principal of confirmed investments,
	// reported as total platform income.
	ConfirmedPrincipal string
}

// =============================================================================
// PAYMENTS
// =============================================================================

type PaymentStore interface {
	CreatePayment(ctx context.Context, p Payment) error
	PaymentByID(ctx context.Context, id PaymentID) (*Payment, error)
	PaymentsByUser(ctx context.Context, userID UserID) ([]Payment, error)
	ListPayments(ctx context.Context) ([]Payment, error)

	// ConfirmPayment applies pending->confirmed and credits the owner's
	// wallet by the payment amount, atomically. ErrPaymentNotFound if the
	// id does not resolve; ErrInvalidTransition if already confirmed,
	// with no credit applied.
	ConfirmPayment(ctx context.Context, id PaymentID, now time.Time) error
}

// =============================================================================
// WITHDRAWALS
// =============================================================================

type WithdrawalStore interface {
	// CreateWithdrawal records a pending withdrawal and debits the owner's
	// wallet by the amount, atomically, only if the balance covers it.
	// Returns an InsufficientBalanceError otherwise, with no record created.
	CreateWithdrawal(ctx context.Context, w Withdrawal) error

	WithdrawalsByUser(ctx context.Context, userID UserID) ([]Withdrawal, error)
	ListWithdrawals(ctx context.Context) ([]Withdrawal, error)

	// MarkWithdrawalPaid applies pending->paid. The wallet was already
	// debited at request time, so no balance mutation happens here.
	MarkWithdrawalPaid(ctx context.Context, id WithdrawalID, now time.Time) error
}
