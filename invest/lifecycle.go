/*
lifecycle.go - Investment state machine

PURPOSE:
  Pure transition rules for the pending -> confirmed -> completed state
  machine. Nothing here touches the store: eligibility and the resulting
  state are computed from a snapshot of the record plus a single "now",
  and the store applies the outcome with compare-and-set semantics.

STATE MACHINE:
  pending   --admin confirm-->  confirmed
  confirmed --accrual cycle-->  confirmed   (self-loop, < 5 cycles)
  confirmed --5th cycle------>  completed

  No backward transitions. No skip transitions. A completed investment
  is never mutated again.

INTERVAL GATING:
  A confirmed investment accrues at most once per interval: either
  LastAccrualAt is unset (first cycle after confirmation) or at least
  the configured interval has elapsed. A gated-out record is skipped
  with no mutation and no error, which is what makes the accrual pass
  idempotent under repeated invocation.

SEE ALSO:
  - accrual.go: the pass that applies these decisions
  - store.go: ApplyAccrualCycle / ConfirmInvestment contracts
*/
package invest

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CONFIRMATION
// =============================================================================

// CanConfirm reports whether an admin confirmation may be applied.
// Only a pending investment can be confirmed; anything else is a
// TransitionError so re-confirmation can never reset accrual progress.
func CanConfirm(inv Investment) error {
	if inv.Status != InvestmentPending {
		return &TransitionError{
			InvestmentID: inv.ID,
			From:         inv.Status,
			Attempted:    InvestmentConfirmed,
		}
	}
	return nil
}

// =============================================================================
// ACCRUAL ELIGIBILITY
// =============================================================================

// AccrualDecision is the outcome of evaluating one investment for one
// accrual cycle at a fixed instant.
type AccrualDecision struct {
	Eligible    bool
	SkipReason  string          // set when not eligible
	DailyReturn decimal.Decimal // amount * rate, credited once per cycle
	NewCycles   int             // CyclesCompleted after this cycle
	Completes   bool            // true on the final cycle
}

// Skip reasons reported by EvaluateAccrual.
const (
	SkipNotConfirmed     = "not confirmed"
	SkipPaymentUnsettled = "payment not confirmed"
	SkipCyclesComplete   = "all cycles completed"
	SkipIntervalGate     = "interval not elapsed"
)

// EvaluateAccrual decides whether one accrual cycle applies to inv at now.
// The same now must be used for every record within a pass so the pass is
// internally consistent even if wall-clock time advances mid-scan.
func EvaluateAccrual(inv Investment, now time.Time, interval time.Duration) AccrualDecision {
	if interval <= 0 {
		interval = DefaultAccrualInterval
	}

	if inv.Status != InvestmentConfirmed {
		return AccrualDecision{SkipReason: SkipNotConfirmed}
	}
	if !inv.PaymentConfirmed {
		return AccrualDecision{SkipReason: SkipPaymentUnsettled}
	}
	if inv.CyclesCompleted >= CyclesToComplete {
		return AccrualDecision{SkipReason: SkipCyclesComplete}
	}
	if inv.LastAccrualAt != nil && now.Sub(*inv.LastAccrualAt) < interval {
		return AccrualDecision{SkipReason: SkipIntervalGate}
	}

	newCycles := inv.CyclesCompleted + 1
	return AccrualDecision{
		Eligible:    true,
		DailyReturn: inv.DailyReturn(),
		NewCycles:   newCycles,
		Completes:   newCycles >= CyclesToComplete,
	}
}

// ApplyDecision returns the investment as it should be persisted after the
// cycle. The caller persists it atomically with the wallet credit, guarded
// on the pre-cycle CyclesCompleted value.
func ApplyDecision(inv Investment, d AccrualDecision, now time.Time) Investment {
	inv.CyclesCompleted = d.NewCycles
	at := now
	inv.LastAccrualAt = &at
	if d.Completes {
		inv.Status = InvestmentCompleted
		inv.CompletedAt = &at
	}
	return inv
}
