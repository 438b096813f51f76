package invest_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vantage/invest-engine/invest"
	"github.com/vantage/invest-engine/store/memory"
)

func seedReferralPair(t *testing.T, store *memory.Store) (referrer, referred invest.UserID) {
	t.Helper()
	ctx := context.Background()

	referrer = "referrer-1"
	referred = "referred-1"

	require.NoError(t, store.CreateUser(ctx, invest.User{
		ID:                  referrer,
		Email:               "referrer@example.com",
		ReferralCode:        "REFCODE1",
		WalletBalance:       invest.WelcomeCredit,
		WithdrawableBalance: decimal.Zero,
		TotalInvested:       decimal.Zero,
		ReferralEarnings:    decimal.Zero,
		CreatedAt:           time.Now().UTC(),
	}))

	ref := referrer
	require.NoError(t, store.CreateUser(ctx, invest.User{
		ID:                  referred,
		Email:               "referred@example.com",
		ReferralCode:        "REFCODE2",
		ReferredBy:          &ref,
		WalletBalance:       invest.WelcomeCredit,
		WithdrawableBalance: decimal.Zero,
		TotalInvested:       decimal.Zero,
		ReferralEarnings:    decimal.Zero,
		CreatedAt:           time.Now().UTC(),
	}))
	return referrer, referred
}

func TestQualifiesForReferralBonus(t *testing.T) {
	ref := invest.UserID("referrer-1")

	assert.True(t, invest.QualifiesForReferralBonus(invest.User{ReferredBy: &ref}))
	assert.False(t, invest.QualifiesForReferralBonus(invest.User{}))
	assert.False(t, invest.QualifiesForReferralBonus(invest.User{ReferredBy: &ref, ReferralBonusPaid: true}))
}

func TestGrantReferralBonus_CreditsReferrerOnce(t *testing.T) {
	// GIVEN: A referred user whose bonus has not been paid
	// WHEN: The bonus is granted twice
	// THEN: The referrer is credited exactly once; the flag blocks the rerun

	store := memory.New()
	ctx := context.Background()
	referrerID, referredID := seedReferralPair(t, store)

	granted, err := invest.MaybeGrantReferralBonus(ctx, store, referredID)
	require.NoError(t, err)
	assert.True(t, granted)

	referrer, err := store.UserByID(ctx, referrerID)
	require.NoError(t, err)
	expected := invest.WelcomeCredit.Add(invest.ReferralBonus)
	assert.True(t, referrer.WalletBalance.Equal(expected))
	assert.True(t, referrer.ReferralEarnings.Equal(invest.ReferralBonus))

	referred, err := store.UserByID(ctx, referredID)
	require.NoError(t, err)
	assert.True(t, referred.ReferralBonusPaid)

	// Second grant is a no-op.
	granted, err = invest.MaybeGrantReferralBonus(ctx, store, referredID)
	require.NoError(t, err)
	assert.False(t, granted)

	referrer, err = store.UserByID(ctx, referrerID)
	require.NoError(t, err)
	assert.True(t, referrer.WalletBalance.Equal(expected), "no double credit")
}

func TestGrantReferralBonus_NoReferrer_Declined(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	require.NoError(t, store.CreateUser(ctx, invest.User{
		ID:                  "solo-1",
		Email:               "solo@example.com",
		ReferralCode:        "SOLOCODE",
		WalletBalance:       invest.WelcomeCredit,
		WithdrawableBalance: decimal.Zero,
		TotalInvested:       decimal.Zero,
		ReferralEarnings:    decimal.Zero,
		CreatedAt:           time.Now().UTC(),
	}))

	granted, err := invest.MaybeGrantReferralBonus(ctx, store, "solo-1")
	require.NoError(t, err)
	assert.False(t, granted)
}
