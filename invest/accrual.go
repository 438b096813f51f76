/*
accrual.go - The periodic returns-accrual pass

PURPOSE:
  One invocation of the engine scans every investment that could receive
  a cycle, applies the interval gate per record, and advances each
  eligible record exactly once. Correctness is self-contained in each
  record (the LastAccrualAt gate plus the cycle-count compare-and-set),
  so the pass can run at arbitrary cadence: a cron, a long-running
  ticker, or a manual admin trigger.

IDEMPOTENCE:
  Running the pass twice within one interval window double-credits
  nothing: the second run finds every record gated out. Two overlapping
  passes at the same instant are resolved by the store's compare-and-set;
  the loser observes ErrConcurrentModification, which the pass counts as
  skipped rather than failed.

FAILURE ISOLATION:
  A store failure on one record must not starve the rest of the pass.
  Failures are collected per record and reported in the result instead
  of aborting or being swallowed. Nothing here retries; retry is the
  next scheduled pass.

SEE ALSO:
  - lifecycle.go: EvaluateAccrual / ApplyDecision
  - api/scheduler.go: the background ticker driving RunPass
*/
package invest

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// ACCRUAL ENGINE
// =============================================================================

// AccrualEngine advances confirmed investments. Safe for concurrent use;
// it keeps no state between passes.
type AccrualEngine struct {
	Store    Store
	Interval time.Duration
}

// NewAccrualEngine creates an engine with the given gate interval.
// A non-positive interval falls back to DefaultAccrualInterval.
func NewAccrualEngine(store Store, interval time.Duration) *AccrualEngine {
	if interval <= 0 {
		interval = DefaultAccrualInterval
	}
	return &AccrualEngine{Store: store, Interval: interval}
}

// RecordFailure is one investment the pass could not advance.
type RecordFailure struct {
	InvestmentID InvestmentID
	Err          error
}

func (f RecordFailure) Error() string {
	return fmt.Sprintf("investment %s: %v", f.InvestmentID, f.Err)
}

// PassResult summarizes one accrual pass.
type PassResult struct {
	Processed int             // cycles applied
	Skipped   int             // gated out or lost a benign race
	Failures  []RecordFailure // store errors, isolated per record
	Timestamp time.Time       // the single now used for the whole pass
}

// RunPass scans and advances all eligible investments using one fixed now.
// It returns an error only when the initial scan itself fails; per-record
// errors land in the result.
func (e *AccrualEngine) RunPass(ctx context.Context, now time.Time) (PassResult, error) {
	result := PassResult{Timestamp: now}

	candidates, err := e.Store.EligibleInvestments(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to scan eligible investments: %w", err)
	}

	for _, inv := range candidates {
		d := EvaluateAccrual(inv, now, e.Interval)
		if !d.Eligible {
			result.Skipped++
			continue
		}

		err := e.Store.ApplyAccrualCycle(ctx, inv.ID, inv.CyclesCompleted, d, now)
		switch {
		case err == nil:
			result.Processed++
		case errors.Is(err, ErrConcurrentModification):
			// Another pass already applied this cycle. Not a failure.
			result.Skipped++
		default:
			result.Failures = append(result.Failures, RecordFailure{
				InvestmentID: inv.ID,
				Err:          err,
			})
		}
	}

	return result, nil
}
