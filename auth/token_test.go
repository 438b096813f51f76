package auth_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vantage/invest-engine/auth"
	"github.com/vantage/invest-engine/invest"
)

func TestTokens_IssueVerify_RoundTrip(t *testing.T) {
	tokens := auth.NewTokens("test-secret-0123456789-0123456789")

	signed, err := tokens.Issue("user-1", false)
	require.NoError(t, err)
	require.NotEmpty(t, signed)

	claims, err := tokens.Verify(signed)
	require.NoError(t, err)
	assert.Equal(t, invest.UserID("user-1"), claims.UserID)
	assert.False(t, claims.IsAdmin)
}

func TestTokens_AdminClaim_Preserved(t *testing.T) {
	tokens := auth.NewTokens("test-secret-0123456789-0123456789")

	signed, err := tokens.Issue("admin-1", true)
	require.NoError(t, err)

	claims, err := tokens.Verify(signed)
	require.NoError(t, err)
	assert.True(t, claims.IsAdmin)
}

func TestTokens_WrongSecret_Rejected(t *testing.T) {
	issuer := auth.NewTokens("secret-one-0123456789-0123456789")
	verifier := auth.NewTokens("secret-two-0123456789-0123456789")

	signed, err := issuer.Issue("user-1", false)
	require.NoError(t, err)

	_, err = verifier.Verify(signed)
	assert.Error(t, err)
}

func TestTokens_Garbage_Rejected(t *testing.T) {
	tokens := auth.NewTokens("test-secret-0123456789-0123456789")

	_, err := tokens.Verify("not.a.token")
	assert.Error(t, err)
}

func TestHashPassword_CheckPassword(t *testing.T) {
	hash, err := auth.HashPassword("correct horse battery staple")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse battery staple", hash)

	assert.True(t, auth.CheckPassword("correct horse battery staple", hash))
	assert.False(t, auth.CheckPassword("wrong password", hash))
}

func TestNewReferralCode_LengthAndUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code, err := auth.NewReferralCode()
		require.NoError(t, err)
		assert.Len(t, code, 8)
		assert.False(t, seen[code], "codes should not repeat in a small sample")
		seen[code] = true
	}
}
