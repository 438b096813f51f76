/*
Package invest contains the core investment lifecycle and returns-accrual
engine.

PURPOSE:
  This package owns the business rules of the platform: the per-investment
  state machine (pending -> confirmed -> completed), the interval-gated
  accrual engine that credits a fixed daily return for five cycles, the
  wallet ledger semantics, and the one-time referral bonus rule.

KEY CONCEPTS IN THIS FILE (types.go):
  - User: account record with wallet, withdrawable and referral balances
  - Investment: a fixed-term position with its accrual progress
  - Payment: a funding proof submitted by a user, confirmed by an admin
  - Withdrawal: a payout request that reserves funds at request time
  - Plan: the catalog of investment products

DESIGN PRINCIPLES:
  1. Precision: all money amounts use decimal.Decimal, never float64
  2. Ownership: the store is authoritative; the engine holds no state
     across invocations and re-reads everything each pass
  3. Explicit transitions: every state change is a named operation with
     compare-and-set semantics at the store boundary

SEE ALSO:
  - lifecycle.go: state machine and accrual eligibility
  - accrual.go: the periodic accrual pass
  - referral.go: one-time referral bonus rule
  - store.go: persistence contract
*/
package invest

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PLATFORM CONSTANTS
// =============================================================================

// Business constants of the product. AccrualInterval is deliberately NOT
// here: it is a configurable duration injected into the engine (the 10
// minute default compresses a "daily" cycle for demo purposes).
var (
	// WelcomeCredit is granted to every wallet at registration.
	WelcomeCredit = decimal.NewFromInt(700)

	// DailyROIRate is the fixed per-cycle return on principal (15%).
	DailyROIRate = decimal.NewFromFloat(0.15)

	// ReferralBonus is credited to a referrer exactly once, when the
	// referred user creates their first investment.
	ReferralBonus = decimal.NewFromInt(500)

	// MinWithdrawal is the smallest amount a withdrawal request may ask for.
	MinWithdrawal = decimal.NewFromInt(3700)
)

// CyclesToComplete is the number of accrual cycles before an investment
// is marked completed.
const CyclesToComplete = 5

// DefaultAccrualInterval is the fallback gate between two accrual cycles
// on the same investment when no interval is configured.
const DefaultAccrualInterval = 10 * time.Minute

// =============================================================================
// IDENTIFIERS
// =============================================================================

type UserID string
type InvestmentID string
type PaymentID string
type WithdrawalID string

// =============================================================================
// USER
// =============================================================================

// User is an account record. Balances are mutated only through the atomic
// ledger operations on Store; handlers never write balance fields directly.
type User struct {
	ID           UserID
	FullName     string
	Email        string
	Phone        string
	PasswordHash string

	ReferralCode      string
	ReferredBy        *UserID
	ReferralBonusPaid bool

	WalletBalance       decimal.Decimal // spendable + earned; never negative
	WithdrawableBalance decimal.Decimal // earned returns eligible for payout
	TotalInvested       decimal.Decimal // cumulative principal
	ReferralEarnings    decimal.Decimal
	ActiveInvestments   int

	IsBlocked bool
	IsAdmin   bool

	CreatedAt time.Time
}

// =============================================================================
// INVESTMENT
// =============================================================================

type InvestmentStatus string

const (
	InvestmentPending   InvestmentStatus = "pending"
	InvestmentConfirmed InvestmentStatus = "confirmed"
	InvestmentCompleted InvestmentStatus = "completed"
)

// Investment is a fixed-term position.
//
// INVARIANTS:
//   - Status is completed iff CyclesCompleted >= CyclesToComplete.
//   - LastAccrualAt is set only while Status is confirmed.
//   - Accrual never runs while Status is pending.
type Investment struct {
	ID       InvestmentID
	UserID   UserID
	PlanID   string
	PlanName string

	Amount   decimal.Decimal // principal
	DailyROI decimal.Decimal // per-cycle rate, fixed at DailyROIRate

	CyclesCompleted  int
	LastAccrualAt    *time.Time
	Status           InvestmentStatus
	PaymentConfirmed bool

	ConfirmedAt *time.Time
	CompletedAt *time.Time
	CreatedAt   time.Time
}

// DailyReturn is the amount credited per accrual cycle.
func (i Investment) DailyReturn() decimal.Decimal {
	return i.Amount.Mul(i.DailyROI)
}

// =============================================================================
// PAYMENT - funding proof, independent of any specific investment
// =============================================================================

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentConfirmed PaymentStatus = "confirmed"
)

// Payment funds a wallet, not an investment. Admin confirmation applies
// exactly one wallet credit of Amount to the owning user.
type Payment struct {
	ID        PaymentID
	UserID    UserID
	Amount    decimal.Decimal
	Reference string

	Status      PaymentStatus
	ConfirmedAt *time.Time
	CreatedAt   time.Time
}

// =============================================================================
// WITHDRAWAL - funds are reserved at request time, not at payout
// =============================================================================

type WithdrawalStatus string

const (
	WithdrawalPending WithdrawalStatus = "pending"
	WithdrawalPaid    WithdrawalStatus = "paid"
)

// Withdrawal debits the wallet when the request is recorded. A pending
// withdrawal has therefore already reserved its funds.
type Withdrawal struct {
	ID       WithdrawalID
	UserID   UserID
	UserName string
	Amount   decimal.Decimal

	BankName      string
	AccountNumber string
	AccountName   string

	Status    WithdrawalStatus
	PaidAt    *time.Time
	CreatedAt time.Time
}

// =============================================================================
// PLAN CATALOG
// =============================================================================

// planNames maps plan identifiers to display names. Unknown plan ids fall
// back to the raw id, matching how the product treats ad-hoc plans.
var planNames = map[string]string{
	"starter":  "Starter Growth",
	"silver":   "Silver Growth",
	"gold":     "Gold Growth",
	"platinum": "Platinum Growth",
}

// PlanName resolves a plan id to its display name.
func PlanName(planID string) string {
	if name, ok := planNames[planID]; ok {
		return name
	}
	return planID
}
