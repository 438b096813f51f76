package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantage/invest-engine/api"
	"github.com/vantage/invest-engine/auth"
	"github.com/vantage/invest-engine/invest"
	"github.com/vantage/invest-engine/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type testServer struct {
	router http.Handler
	store  *memory.Store
	tokens *auth.Tokens
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memory.New()
	tokens := auth.NewTokens("test-secret-0123456789-0123456789")
	engine := invest.NewAccrualEngine(store, time.Nanosecond) // no gate in tests
	handler := api.NewHandler(store, tokens, engine)
	return &testServer{
		router: api.NewRouter(handler),
		store:  store,
		tokens: tokens,
	}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(dst))
}

func (ts *testServer) register(t *testing.T, email, referralCode string) (token string, userID invest.UserID) {
	t.Helper()

	rec := ts.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"fullName":     "Amara Obi",
		"email":        email,
		"phone":        "08011112222",
		"password":     "hunter22",
		"referralCode": referralCode,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		Token string `json:"token"`
		User  struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	decodeBody(t, rec, &resp)
	require.NotEmpty(t, resp.Token)
	return resp.Token, invest.UserID(resp.User.ID)
}

func (ts *testServer) adminToken(t *testing.T) string {
	t.Helper()

	admin := invest.User{
		ID:                  "admin-1",
		FullName:            "Platform Admin",
		Email:               "admin@example.com",
		ReferralCode:        "ADMIN001",
		WalletBalance:       decimal.Zero,
		WithdrawableBalance: decimal.Zero,
		TotalInvested:       decimal.Zero,
		ReferralEarnings:    decimal.Zero,
		IsAdmin:             true,
		CreatedAt:           time.Now().UTC(),
	}
	require.NoError(t, ts.store.CreateUser(context.Background(), admin))

	token, err := ts.tokens.Issue(admin.ID, true)
	require.NoError(t, err)
	return token
}

// =============================================================================
// AUTH TESTS
// =============================================================================

func TestRegister_GrantsWelcomeCredit(t *testing.T) {
	ts := newTestServer(t)
	token, _ := ts.register(t, "amara@example.com", "")

	rec := ts.do(t, http.MethodGet, "/api/user/dashboard", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var dash struct {
		WalletBalance  float64 `json:"walletBalance"`
		TotalRoiEarned float64 `json:"totalRoiEarned"`
		ReferralCode   string  `json:"referralCode"`
	}
	decodeBody(t, rec, &dash)
	assert.Equal(t, 700.0, dash.WalletBalance)
	assert.Equal(t, 0.0, dash.TotalRoiEarned)
	assert.Len(t, dash.ReferralCode, 8)
}

func TestRegister_DuplicateEmail_Conflict(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "amara@example.com", "")

	rec := ts.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"fullName": "Amara Obi",
		"email":    "amara@example.com",
		"phone":    "08011112222",
		"password": "hunter22",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRegister_UnknownReferralCode_Rejected(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"fullName":     "Amara Obi",
		"email":        "amara@example.com",
		"phone":        "08011112222",
		"password":     "hunter22",
		"referralCode": "NOPE1234",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegister_ValidationFailure(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"fullName": "A",
		"email":    "not-an-email",
		"phone":    "1",
		"password": "short",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogin_WrongPassword_Unauthorized(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "amara@example.com", "")

	rec := ts.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "amara@example.com",
		"password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogin_Succeeds(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "amara@example.com", "")

	rec := ts.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "amara@example.com",
		"password": "hunter22",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Token   string `json:"token"`
		IsAdmin bool   `json:"isAdmin"`
	}
	decodeBody(t, rec, &resp)
	assert.NotEmpty(t, resp.Token)
	assert.False(t, resp.IsAdmin)
}

func TestAdminLogin_NonAdmin_Forbidden(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "amara@example.com", "")

	rec := ts.do(t, http.MethodPost, "/api/auth/admin/login", "", map[string]string{
		"email":    "amara@example.com",
		"password": "hunter22",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

// =============================================================================
// AUTHORIZATION TESTS
// =============================================================================

func TestUserRoutes_RequireToken(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/user/dashboard", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/user/dashboard", "garbage-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminRoutes_RejectNonAdmin(t *testing.T) {
	ts := newTestServer(t)
	token, _ := ts.register(t, "amara@example.com", "")

	rec := ts.do(t, http.MethodGet, "/api/admin/overview", token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestBlockedUser_CannotTransact(t *testing.T) {
	ts := newTestServer(t)
	token, userID := ts.register(t, "amara@example.com", "")

	require.NoError(t, ts.store.SetUserBlocked(context.Background(), userID, true))

	rec := ts.do(t, http.MethodGet, "/api/user/dashboard", token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

// =============================================================================
// INVESTMENT LIFECYCLE (END TO END)
// =============================================================================

func TestInvestmentLifecycle_CreateConfirmAccrue(t *testing.T) {
	// GIVEN: A registered user with a pending 10,000 investment
	// WHEN: An admin confirms it and triggers an accrual pass
	// THEN: One cycle credits 1,500 to wallet and withdrawable balance

	ts := newTestServer(t)
	userToken, _ := ts.register(t, "amara@example.com", "")
	adminToken := ts.adminToken(t)

	rec := ts.do(t, http.MethodPost, "/api/user/investments", userToken, map[string]any{
		"planId": "gold",
		"amount": 10000,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		ID       string `json:"id"`
		PlanName string `json:"planName"`
		Status   string `json:"status"`
	}
	decodeBody(t, rec, &created)
	assert.Equal(t, "Gold Growth", created.PlanName)
	assert.Equal(t, "pending", created.Status)

	// Accrual before confirmation does nothing.
	rec = ts.do(t, http.MethodPost, "/api/admin/trigger-roi", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var pass struct {
		ProcessedCount int `json:"processedCount"`
	}
	decodeBody(t, rec, &pass)
	assert.Equal(t, 0, pass.ProcessedCount)

	// Confirm.
	rec = ts.do(t, http.MethodPost, "/api/admin/confirm-investment", adminToken, map[string]string{
		"investmentId": created.ID,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var confirmed struct {
		Status           string `json:"status"`
		PaymentConfirmed bool   `json:"paymentConfirmed"`
	}
	decodeBody(t, rec, &confirmed)
	assert.Equal(t, "confirmed", confirmed.Status)
	assert.True(t, confirmed.PaymentConfirmed)

	// Re-confirming is a conflict, not a reset.
	rec = ts.do(t, http.MethodPost, "/api/admin/confirm-investment", adminToken, map[string]string{
		"investmentId": created.ID,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// One accrual cycle.
	rec = ts.do(t, http.MethodPost, "/api/admin/trigger-roi", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &pass)
	assert.Equal(t, 1, pass.ProcessedCount)

	rec = ts.do(t, http.MethodGet, "/api/user/dashboard", userToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var dash struct {
		WalletBalance       float64 `json:"walletBalance"`
		WithdrawableBalance float64 `json:"withdrawableBalance"`
		TotalInvested       float64 `json:"totalInvested"`
		ActiveInvestments   int     `json:"activeInvestments"`
		TotalRoiEarned      float64 `json:"totalRoiEarned"`
	}
	decodeBody(t, rec, &dash)
	assert.Equal(t, 700.0+1500.0, dash.WalletBalance)
	assert.Equal(t, 1500.0, dash.WithdrawableBalance)
	assert.Equal(t, 10000.0, dash.TotalInvested)
	assert.Equal(t, 1, dash.ActiveInvestments)
	assert.Equal(t, 1500.0, dash.TotalRoiEarned)
}

func TestConfirmInvestment_Unknown_NotFound(t *testing.T) {
	ts := newTestServer(t)
	adminToken := ts.adminToken(t)

	rec := ts.do(t, http.MethodPost, "/api/admin/confirm-investment", adminToken, map[string]string{
		"investmentId": "ghost",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// REFERRAL FLOW
// =============================================================================

func TestReferralBonus_PaidOnFirstInvestment(t *testing.T) {
	// GIVEN: User B registered with user A's referral code
	// WHEN: B creates two investments
	// THEN: A earns the bonus exactly once, at the first creation

	ts := newTestServer(t)
	tokenA, idA := ts.register(t, "a@example.com", "")

	a, err := ts.store.UserByID(context.Background(), idA)
	require.NoError(t, err)

	tokenB, _ := ts.register(t, "b@example.com", a.ReferralCode)

	for i := 0; i < 2; i++ {
		rec := ts.do(t, http.MethodPost, "/api/user/investments", tokenB, map[string]any{
			"planId": "starter",
			"amount": 5000,
		})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := ts.do(t, http.MethodGet, "/api/user/referral", tokenA, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var referral struct {
		TotalReferrals   int     `json:"totalReferrals"`
		ReferralEarnings float64 `json:"referralEarnings"`
	}
	decodeBody(t, rec, &referral)
	assert.Equal(t, 1, referral.TotalReferrals)
	assert.Equal(t, 500.0, referral.ReferralEarnings, "bonus paid once, not per investment")
}

// =============================================================================
// WITHDRAWAL FLOW
// =============================================================================

func TestCreateWithdrawal_BelowMinimum_Rejected(t *testing.T) {
	ts := newTestServer(t)
	token, _ := ts.register(t, "amara@example.com", "")

	rec := ts.do(t, http.MethodPost, "/api/user/withdrawals", token, map[string]any{
		"amount":        500,
		"bankName":      "First Bank",
		"accountNumber": "0123456789",
		"accountName":   "Amara Obi",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateWithdrawal_InsufficientBalance_Rejected(t *testing.T) {
	ts := newTestServer(t)
	token, _ := ts.register(t, "amara@example.com", "")

	// Above the minimum but beyond the 700 welcome credit.
	rec := ts.do(t, http.MethodPost, "/api/user/withdrawals", token, map[string]any{
		"amount":        4000,
		"bankName":      "First Bank",
		"accountNumber": "0123456789",
		"accountName":   "Amara Obi",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp struct {
		Error string `json:"error"`
	}
	decodeBody(t, rec, &resp)
	assert.Equal(t, "insufficient balance", resp.Error)
}

func TestWithdrawal_RequestAndApprove(t *testing.T) {
	ts := newTestServer(t)
	token, userID := ts.register(t, "amara@example.com", "")
	adminToken := ts.adminToken(t)

	// Fund the wallet through a confirmed payment.
	rec := ts.do(t, http.MethodPost, "/api/user/payments", token, map[string]any{
		"amount":    5000,
		"reference": "TRF/2026/077",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var payment struct {
		ID string `json:"id"`
	}
	decodeBody(t, rec, &payment)

	rec = ts.do(t, http.MethodPost, "/api/admin/confirm-payment", adminToken, map[string]string{
		"paymentId": payment.ID,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	// Request the payout; wallet is debited immediately.
	rec = ts.do(t, http.MethodPost, "/api/user/withdrawals", token, map[string]any{
		"amount":        3700,
		"bankName":      "First Bank",
		"accountNumber": "0123456789",
		"accountName":   "Amara Obi",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var wd struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	decodeBody(t, rec, &wd)
	assert.Equal(t, "pending", wd.Status)

	u, err := ts.store.UserByID(context.Background(), userID)
	require.NoError(t, err)
	assert.True(t, u.WalletBalance.Equal(decimal.NewFromInt(2000)),
		"700 welcome + 5000 payment - 3700 reserved")

	// Approve; no further balance change.
	rec = ts.do(t, http.MethodPost, "/api/admin/approve-withdrawal", adminToken, map[string]string{
		"withdrawalId": wd.ID,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	u, err = ts.store.UserByID(context.Background(), userID)
	require.NoError(t, err)
	assert.True(t, u.WalletBalance.Equal(decimal.NewFromInt(2000)))

	// Approving again is a conflict.
	rec = ts.do(t, http.MethodPost, "/api/admin/approve-withdrawal", adminToken, map[string]string{
		"withdrawalId": wd.ID,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

// =============================================================================
// ADMIN READ MODELS
// =============================================================================

func TestAdminOverview_Counts(t *testing.T) {
	ts := newTestServer(t)
	userToken, _ := ts.register(t, "amara@example.com", "")
	adminToken := ts.adminToken(t)

	rec := ts.do(t, http.MethodPost, "/api/user/investments", userToken, map[string]any{
		"planId": "gold",
		"amount": 10000,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		ID string `json:"id"`
	}
	decodeBody(t, rec, &created)

	rec = ts.do(t, http.MethodPost, "/api/admin/confirm-investment", adminToken, map[string]string{
		"investmentId": created.ID,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/admin/overview", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var overview struct {
		TotalUsers           int     `json:"totalUsers"`
		TotalInvestments     int     `json:"totalInvestments"`
		TotalPlatformIncome  float64 `json:"totalPlatformIncome"`
		ConfirmedInvestments int     `json:"confirmedInvestments"`
	}
	decodeBody(t, rec, &overview)
	assert.Equal(t, 1, overview.TotalUsers, "admin excluded")
	assert.Equal(t, 1, overview.TotalInvestments)
	assert.Equal(t, 10000.0, overview.TotalPlatformIncome)
	assert.Equal(t, 1, overview.ConfirmedInvestments)
}

func TestToggleBlock_FlipsFlag(t *testing.T) {
	ts := newTestServer(t)
	_, userID := ts.register(t, "amara@example.com", "")
	adminToken := ts.adminToken(t)

	rec := ts.do(t, http.MethodPost, "/api/admin/users/"+string(userID)+"/toggle-block", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		IsBlocked bool `json:"isBlocked"`
	}
	decodeBody(t, rec, &resp)
	assert.True(t, resp.IsBlocked)

	rec = ts.do(t, http.MethodPost, "/api/admin/users/"+string(userID)+"/toggle-block", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &resp)
	assert.False(t, resp.IsBlocked)
}
