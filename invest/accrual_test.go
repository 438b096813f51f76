package invest_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vantage/invest-engine/invest"
	"github.com/vantage/invest-engine/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestEngine(t *testing.T, interval time.Duration) (*invest.AccrualEngine, *memory.Store) {
	t.Helper()
	store := memory.New()
	return invest.NewAccrualEngine(store, interval), store
}

func seedUser(t *testing.T, store *memory.Store, id invest.UserID) {
	t.Helper()
	err := store.CreateUser(context.Background(), invest.User{
		ID:                  id,
		FullName:            "Ada Okafor",
		Email:               string(id) + "@example.com",
		WalletBalance:       invest.WelcomeCredit,
		WithdrawableBalance: decimal.Zero,
		TotalInvested:       decimal.Zero,
		ReferralEarnings:    decimal.Zero,
		CreatedAt:           time.Now().UTC(),
	})
	require.NoError(t, err)
}

func seedInvestment(t *testing.T, store *memory.Store, id invest.InvestmentID, userID invest.UserID, amount int64) {
	t.Helper()
	err := store.CreateInvestment(context.Background(), invest.Investment{
		ID:        id,
		UserID:    userID,
		PlanID:    "gold",
		PlanName:  "Gold Growth",
		Amount:    decimal.NewFromInt(amount),
		DailyROI:  invest.DailyROIRate,
		Status:    invest.InvestmentPending,
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
}

// =============================================================================
// PASS BEHAVIOR
// =============================================================================

func TestRunPass_PendingInvestment_Untouched(t *testing.T) {
	// GIVEN: A pending (unconfirmed) investment
	// WHEN: An accrual pass runs
	// THEN: Nothing is processed and the record keeps zero cycles

	engine, store := newTestEngine(t, 10*time.Minute)
	ctx := context.Background()

	seedUser(t, store, "user-1")
	seedInvestment(t, store, "inv-1", "user-1", 10000)

	result, err := engine.RunPass(ctx, time.Now().UTC())
	require.NoError(t, err)

	assert.Equal(t, 0, result.Processed)
	assert.Empty(t, result.Failures)

	inv, err := store.InvestmentByID(ctx, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, 0, inv.CyclesCompleted)
	assert.Equal(t, invest.InvestmentPending, inv.Status)

	u, err := store.UserByID(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, u.WalletBalance.Equal(invest.WelcomeCredit),
		"wallet must not move for pending investments")
}

func TestRunPass_ConfirmedInvestment_CreditsOneCycle(t *testing.T) {
	engine, store := newTestEngine(t, 10*time.Minute)
	ctx := context.Background()
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

	seedUser(t, store, "user-1")
	seedInvestment(t, store, "inv-1", "user-1", 10000)
	require.NoError(t, store.ConfirmInvestment(ctx, "inv-1", now))

	result, err := engine.RunPass(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)

	inv, err := store.InvestmentByID(ctx, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, 1, inv.CyclesCompleted)
	require.NotNil(t, inv.LastAccrualAt)
	assert.Equal(t, now, *inv.LastAccrualAt)

	u, err := store.UserByID(ctx, "user-1")
	require.NoError(t, err)
	expected := invest.WelcomeCredit.Add(decimal.NewFromInt(1500))
	assert.True(t, u.WalletBalance.Equal(expected),
		"expected wallet %s, got %s", expected, u.WalletBalance)
	assert.True(t, u.WithdrawableBalance.Equal(decimal.NewFromInt(1500)))
}

func TestRunPass_BackToBack_NoDoubleCredit(t *testing.T) {
	// GIVEN: An investment that just accrued a cycle
	// WHEN: A second pass runs within the same interval window
	// THEN: The record is gated out; no additional credit

	engine, store := newTestEngine(t, 10*time.Minute)
	ctx := context.Background()
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

	seedUser(t, store, "user-1")
	seedInvestment(t, store, "inv-1", "user-1", 10000)
	require.NoError(t, store.ConfirmInvestment(ctx, "inv-1", now))

	first, err := engine.RunPass(ctx, now)
	require.NoError(t, err)
	require.Equal(t, 1, first.Processed)

	second, err := engine.RunPass(ctx, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 0, second.Processed)
	assert.Equal(t, 1, second.Skipped)

	u, err := store.UserByID(ctx, "user-1")
	require.NoError(t, err)
	expected := invest.WelcomeCredit.Add(decimal.NewFromInt(1500))
	assert.True(t, u.WalletBalance.Equal(expected))
}

func TestRunPass_FiveCycles_CompletesAndStops(t *testing.T) {
	// GIVEN: A confirmed 10,000 investment
	// WHEN: Passes run with the clock advanced a full interval each time
	// THEN: Exactly five cycles credit 7,500 total, the investment is
	//       completed, and further passes find nothing to do

	interval := 10 * time.Minute
	engine, store := newTestEngine(t, interval)
	ctx := context.Background()
	start := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

	seedUser(t, store, "user-1")
	seedInvestment(t, store, "inv-1", "user-1", 10000)
	require.NoError(t, store.ConfirmInvestment(ctx, "inv-1", start))

	now := start
	for i := 0; i < invest.CyclesToComplete; i++ {
		result, err := engine.RunPass(ctx, now)
		require.NoError(t, err)
		require.Equal(t, 1, result.Processed, "pass %d", i+1)
		now = now.Add(interval)
	}

	inv, err := store.InvestmentByID(ctx, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, invest.InvestmentCompleted, inv.Status)
	assert.Equal(t, invest.CyclesToComplete, inv.CyclesCompleted)
	require.NotNil(t, inv.CompletedAt)

	u, err := store.UserByID(ctx, "user-1")
	require.NoError(t, err)
	expected := invest.WelcomeCredit.Add(decimal.NewFromInt(7500))
	assert.True(t, u.WalletBalance.Equal(expected),
		"expected wallet %s, got %s", expected, u.WalletBalance)
	assert.True(t, u.WithdrawableBalance.Equal(decimal.NewFromInt(7500)))
	assert.Equal(t, 0, u.ActiveInvestments, "completion decrements exactly once")

	// Completed investments never accrue again.
	extra, err := engine.RunPass(ctx, now.Add(interval))
	require.NoError(t, err)
	assert.Equal(t, 0, extra.Processed)
	assert.Equal(t, 0, extra.Skipped)
}

// =============================================================================
// FAILURE ISOLATION
// =============================================================================

// flakyStore fails ApplyAccrualCycle for one investment id.
type flakyStore struct {
	*memory.Store
	failID   invest.InvestmentID
	failWith error
}

func (f *flakyStore) ApplyAccrualCycle(ctx context.Context, id invest.InvestmentID, expectedCycles int, d invest.AccrualDecision, now time.Time) error {
	if id == f.failID {
		return f.failWith
	}
	return f.Store.ApplyAccrualCycle(ctx, id, expectedCycles, d, now)
}

func TestRunPass_OneRecordFails_RestStillProcessed(t *testing.T) {
	// GIVEN: Two eligible investments, one of which the store cannot advance
	// WHEN: A pass runs
	// THEN: The healthy record is processed; the failure is reported per
	//       record instead of aborting the pass

	inner := memory.New()
	store := &flakyStore{
		Store:    inner,
		failID:   "inv-bad",
		failWith: errors.New("disk full"),
	}
	engine := invest.NewAccrualEngine(store, 10*time.Minute)
	ctx := context.Background()
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

	seedUser(t, inner, "user-1")
	seedInvestment(t, inner, "inv-good", "user-1", 10000)
	seedInvestment(t, inner, "inv-bad", "user-1", 20000)
	require.NoError(t, inner.ConfirmInvestment(ctx, "inv-good", now))
	require.NoError(t, inner.ConfirmInvestment(ctx, "inv-bad", now))

	result, err := engine.RunPass(ctx, now)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Processed)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, invest.InvestmentID("inv-bad"), result.Failures[0].InvestmentID)
	assert.Contains(t, result.Failures[0].Error(), "disk full")
}

func TestRunPass_LostRace_CountedAsSkipped(t *testing.T) {
	// A compare-and-set loss means another pass already applied the cycle.
	// That is benign and must not show up as a failure.

	inner := memory.New()
	store := &flakyStore{
		Store:    inner,
		failID:   "inv-1",
		failWith: invest.ErrConcurrentModification,
	}
	engine := invest.NewAccrualEngine(store, 10*time.Minute)
	ctx := context.Background()
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

	seedUser(t, inner, "user-1")
	seedInvestment(t, inner, "inv-1", "user-1", 10000)
	require.NoError(t, inner.ConfirmInvestment(ctx, "inv-1", now))

	result, err := engine.RunPass(ctx, now)
	require.NoError(t, err)

	assert.Equal(t, 0, result.Processed)
	assert.Equal(t, 1, result.Skipped)
	assert.Empty(t, result.Failures)
}
