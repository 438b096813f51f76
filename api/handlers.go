/*
handlers.go - HTTP API handlers for the investment platform

PURPOSE:
  Exposes the investment engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Auth:
    POST   /api/auth/register           Create account (welcome credit applied)
    POST   /api/auth/login              User login
    POST   /api/auth/admin/login        Admin login

  User (bearer token):
    GET    /api/user/dashboard          Balances and portfolio summary
    GET    /api/user/transactions       Combined history
    GET    /api/user/investments        Own investments
    POST   /api/user/investments        Create pending investment
    GET    /api/user/payments           Own payments
    POST   /api/user/payments           Submit funding proof
    GET    /api/user/referral           Referral stats
    GET    /api/user/withdrawals        Own withdrawals
    POST   /api/user/withdrawals        Request payout (debits wallet)

  Admin (bearer token + admin claim):
    GET    /api/admin/overview          Platform totals
    GET    /api/admin/users             All non-admin users
    POST   /api/admin/users/{id}/toggle-block
    GET    /api/admin/investments       All investments
    POST   /api/admin/confirm-investment
    GET    /api/admin/payments          All payments
    POST   /api/admin/confirm-payment
    GET    /api/admin/withdrawals       All withdrawals
    POST   /api/admin/approve-withdrawal
    POST   /api/admin/trigger-roi       Run one accrual pass now

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Store: Database access
  - Engine: Accrual pass runner (shared with the background scheduler)
  - tokens: JWT issue/verify
  - validate: Request struct validation

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, insufficient balance, below minimum
  - 401: Bad credentials, missing/invalid token
  - 403: Blocked account, non-admin on admin routes
  - 404: Record not found
  - 409: Invalid transition, duplicate email, lost race
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - middleware.go: Authentication middleware
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vantage/invest-engine/auth"
	"github.com/vantage/invest-engine/invest"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store  invest.Store
	Engine *invest.AccrualEngine

	tokens   *auth.Tokens
	validate *validator.Validate
}

// NewHandler creates a new handler with the given store, token signer
// and accrual engine.
func NewHandler(store invest.Store, tokens *auth.Tokens, engine *invest.AccrualEngine) *Handler {
	return &Handler{
		Store:    store,
		Engine:   engine,
		tokens:   tokens,
		validate: validator.New(),
	}
}

// decodeAndValidate parses the JSON body into dst and runs struct validation.
// Writes the error response itself; callers just bail on false.
func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			details := make([]string, len(verrs))
			for i, fe := range verrs {
				details[i] = fe.Field() + " failed " + fe.Tag() + " validation"
			}
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation failed", Details: details})
			return false
		}
		writeError(w, http.StatusBadRequest, "validation failed")
		return false
	}
	return true
}

// currentUser loads the authenticated user and enforces the block flag.
func (h *Handler) currentUser(w http.ResponseWriter, r *http.Request) (*invest.User, bool) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return nil, false
	}
	u, err := h.Store.UserByID(r.Context(), claims.UserID)
	if err != nil {
		writeDomainError(w, err)
		return nil, false
	}
	if u.IsBlocked {
		writeError(w, http.StatusForbidden, "account is blocked")
		return nil, false
	}
	return u, true
}

// =============================================================================
// AUTH HANDLERS
// =============================================================================

// Register creates an account with the welcome credit and returns a token.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	var referredBy *invest.UserID
	if req.ReferralCode != "" {
		referrer, err := h.Store.UserByReferralCode(r.Context(), req.ReferralCode)
		if err != nil {
			if invest.IsNotFound(err) {
				writeError(w, http.StatusBadRequest, "unknown referral code")
				return
			}
			writeDomainError(w, err)
			return
		}
		referredBy = &referrer.ID
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to process password")
		return
	}

	code, err := auth.NewReferralCode()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to generate referral code")
		return
	}

	u := invest.User{
		ID:           invest.UserID(uuid.NewString()),
		FullName:     req.FullName,
		Email:        req.Email,
		Phone:        req.Phone,
		PasswordHash: hash,

		ReferralCode: code,
		ReferredBy:   referredBy,

		WalletBalance:       invest.WelcomeCredit,
		WithdrawableBalance: decimal.Zero,
		TotalInvested:       decimal.Zero,
		ReferralEarnings:    decimal.Zero,

		CreatedAt: time.Now().UTC(),
	}

	if err := h.Store.CreateUser(r.Context(), u); err != nil {
		if errors.Is(err, invest.ErrEmailTaken) {
			writeError(w, http.StatusConflict, "email already registered")
			return
		}
		writeDomainError(w, err)
		return
	}

	token, err := h.tokens.Issue(u.ID, false)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	writeJSON(w, http.StatusCreated, LoginResponse{
		Token: token,
		User:  toUserDTO(u),
	})
}

// Login authenticates a user by email and password.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	h.login(w, r, false)
}

// AdminLogin authenticates an admin. Non-admin credentials are rejected
// even when valid.
func (h *Handler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	h.login(w, r, true)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request, wantAdmin bool) {
	var req LoginRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	u, err := h.Store.UserByEmail(r.Context(), req.Email)
	if err != nil {
		if invest.IsNotFound(err) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeDomainError(w, err)
		return
	}
	if !auth.CheckPassword(req.Password, u.PasswordHash) {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if wantAdmin && !u.IsAdmin {
		writeError(w, http.StatusForbidden, "admin access required")
		return
	}
	if u.IsBlocked {
		writeError(w, http.StatusForbidden, "account is blocked")
		return
	}

	token, err := h.tokens.Issue(u.ID, u.IsAdmin)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{
		Token:   token,
		IsAdmin: u.IsAdmin,
		User:    toUserDTO(*u),
	})
}

// =============================================================================
// USER HANDLERS
// =============================================================================

// Dashboard returns balances and portfolio summary for the current user.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	u, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	invs, err := h.Store.InvestmentsByUser(r.Context(), u.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	// ROI earned to date: credited cycles times the per-cycle return.
	roiEarned := decimal.Zero
	for _, inv := range invs {
		cycles := decimal.NewFromInt(int64(inv.CyclesCompleted))
		roiEarned = roiEarned.Add(inv.DailyReturn().Mul(cycles))
	}

	writeJSON(w, http.StatusOK, DashboardDTO{
		WalletBalance:       f64(u.WalletBalance),
		WithdrawableBalance: f64(u.WithdrawableBalance),
		TotalInvested:       f64(u.TotalInvested),
		ActiveInvestments:   u.ActiveInvestments,
		ReferralEarnings:    f64(u.ReferralEarnings),
		ReferralCode:        u.ReferralCode,
		TotalRoiEarned:      f64(roiEarned),
	})
}

// Transactions returns the combined history for the current user.
func (h *Handler) Transactions(w http.ResponseWriter, r *http.Request) {
	u, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	invs, err := h.Store.InvestmentsByUser(ctx, u.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	payments, err := h.Store.PaymentsByUser(ctx, u.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	withdrawals, err := h.Store.WithdrawalsByUser(ctx, u.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, TransactionsDTO{
		Investments: toInvestmentDTOs(invs),
		Payments:    toPaymentDTOs(payments),
		Withdrawals: toWithdrawalDTOs(withdrawals),
	})
}

// ListMyInvestments returns the current user's investments, newest first.
func (h *Handler) ListMyInvestments(w http.ResponseWriter, r *http.Request) {
	u, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	invs, err := h.Store.InvestmentsByUser(r.Context(), u.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toInvestmentDTOs(invs))
}

// CreateInvestment records a pending investment and fires the one-time
// referral bonus for referred users.
func (h *Handler) CreateInvestment(w http.ResponseWriter, r *http.Request) {
	u, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	var req CreateInvestmentRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	inv := invest.Investment{
		ID:       invest.InvestmentID(uuid.NewString()),
		UserID:   u.ID,
		PlanID:   req.PlanID,
		PlanName: invest.PlanName(req.PlanID),

		Amount:   decimal.NewFromFloat(req.Amount),
		DailyROI: invest.DailyROIRate,

		Status:    invest.InvestmentPending,
		CreatedAt: time.Now().UTC(),
	}

	ctx := r.Context()
	if err := h.Store.CreateInvestment(ctx, inv); err != nil {
		writeDomainError(w, err)
		return
	}

	// The bonus is tied to investment creation. A grant failure must not
	// undo the investment, so it is reported but not fatal.
	if invest.QualifiesForReferralBonus(*u) {
		if _, err := invest.MaybeGrantReferralBonus(ctx, h.Store, u.ID); err != nil {
			writeJSON(w, http.StatusCreated, map[string]any{
				"investment": toInvestmentDTO(inv),
				"warning":    "referral bonus could not be applied",
			})
			return
		}
	}

	writeJSON(w, http.StatusCreated, toInvestmentDTO(inv))
}

// ListMyPayments returns the current user's payments, newest first.
func (h *Handler) ListMyPayments(w http.ResponseWriter, r *http.Request) {
	u, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	payments, err := h.Store.PaymentsByUser(r.Context(), u.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTOs(payments))
}

// SubmitPayment records a pending funding proof. No balance changes until
// an admin confirms it.
func (h *Handler) SubmitPayment(w http.ResponseWriter, r *http.Request) {
	u, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	var req SubmitPaymentRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	p := invest.Payment{
		ID:        invest.PaymentID(uuid.NewString()),
		UserID:    u.ID,
		Amount:    decimal.NewFromFloat(req.Amount),
		Reference: req.Reference,
		Status:    invest.PaymentPending,
		CreatedAt: time.Now().UTC(),
	}

	if err := h.Store.CreatePayment(r.Context(), p); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toPaymentDTO(p))
}

// Referral returns referral stats for the current user.
func (h *Handler) Referral(w http.ResponseWriter, r *http.Request) {
	u, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	count, err := h.Store.CountReferrals(r.Context(), u.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ReferralDTO{
		TotalReferrals:   count,
		ReferralEarnings: f64(u.ReferralEarnings),
		ReferralCode:     u.ReferralCode,
	})
}

// ListMyWithdrawals returns the current user's withdrawals, newest first.
func (h *Handler) ListMyWithdrawals(w http.ResponseWriter, r *http.Request) {
	u, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	withdrawals, err := h.Store.WithdrawalsByUser(r.Context(), u.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toWithdrawalDTOs(withdrawals))
}

// CreateWithdrawal records a payout request and debits the wallet now.
// The funds are reserved from this point; admin approval only marks the
// transfer as done.
func (h *Handler) CreateWithdrawal(w http.ResponseWriter, r *http.Request) {
	u, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	var req CreateWithdrawalRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	amount := decimal.NewFromFloat(req.Amount)
	if amount.LessThan(invest.MinWithdrawal) {
		writeError(w, http.StatusBadRequest, "amount is below the minimum withdrawal of "+invest.MinWithdrawal.String())
		return
	}

	wd := invest.Withdrawal{
		ID:       invest.WithdrawalID(uuid.NewString()),
		UserID:   u.ID,
		UserName: u.FullName,
		Amount:   amount,

		BankName:      req.BankName,
		AccountNumber: req.AccountNumber,
		AccountName:   req.AccountName,

		Status:    invest.WithdrawalPending,
		CreatedAt: time.Now().UTC(),
	}

	if err := h.Store.CreateWithdrawal(r.Context(), wd); err != nil {
		var ibe *invest.InsufficientBalanceError
		if errors.As(err, &ibe) {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error: "insufficient balance",
				Details: map[string]float64{
					"available": f64(ibe.Available),
					"requested": f64(ibe.Requested),
				},
			})
			return
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toWithdrawalDTO(wd))
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// Overview returns platform totals.
func (h *Handler) Overview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	users, err := h.Store.ListUsers(ctx)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	counts, err := h.Store.InvestmentCounts(ctx)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	income, err := decimal.NewFromString(counts.ConfirmedPrincipal)
	if err != nil {
		income = decimal.Zero
	}

	writeJSON(w, http.StatusOK, OverviewDTO{
		TotalUsers:           len(users),
		TotalInvestments:     counts.Total,
		TotalPlatformIncome:  f64(income),
		PendingInvestments:   counts.Pending,
		ConfirmedInvestments: counts.Confirmed,
	})
}

// ListUsers returns all non-admin users.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Store.ListUsers(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]AdminUserDTO, len(users))
	for i, u := range users {
		dtos[i] = AdminUserDTO{
			ID:            string(u.ID),
			FullName:      u.FullName,
			Email:         u.Email,
			Phone:         u.Phone,
			WalletBalance: f64(u.WalletBalance),
			TotalInvested: f64(u.TotalInvested),
			IsBlocked:     u.IsBlocked,
			CreatedAt:     u.CreatedAt.Format(time.RFC3339),
		}
	}

	writeJSON(w, http.StatusOK, dtos)
}

// ToggleBlock flips a user's block flag.
func (h *Handler) ToggleBlock(w http.ResponseWriter, r *http.Request) {
	id := invest.UserID(chi.URLParam(r, "id"))
	ctx := r.Context()

	u, err := h.Store.UserByID(ctx, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	blocked := !u.IsBlocked
	if err := h.Store.SetUserBlocked(ctx, id, blocked); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"userId":    string(id),
		"isBlocked": blocked,
	})
}

// ListAllInvestments returns every investment, enriched with owner names.
func (h *Handler) ListAllInvestments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	invs, err := h.Store.ListInvestments(ctx)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.withInvestmentOwners(ctx, invs))
}

// ConfirmInvestment applies the pending->confirmed transition and starts
// the accrual clock.
func (h *Handler) ConfirmInvestment(w http.ResponseWriter, r *http.Request) {
	var req ConfirmInvestmentRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	ctx := r.Context()
	id := invest.InvestmentID(req.InvestmentID)
	if err := h.Store.ConfirmInvestment(ctx, id, time.Now().UTC()); err != nil {
		writeDomainError(w, err)
		return
	}

	inv, err := h.Store.InvestmentByID(ctx, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toInvestmentDTO(*inv))
}

// ListAllPayments returns every payment, enriched with owner names.
func (h *Handler) ListAllPayments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	payments, err := h.Store.ListPayments(ctx)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]PaymentDTO, len(payments))
	for i, p := range payments {
		dto := toPaymentDTO(p)
		if u, err := h.Store.UserByID(ctx, p.UserID); err == nil {
			dto.UserName = u.FullName
		}
		dtos[i] = dto
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ConfirmPayment settles a pending payment and credits the owner's wallet.
// Re-confirming is rejected and never re-credits.
func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	var req ConfirmPaymentRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	ctx := r.Context()
	id := invest.PaymentID(req.PaymentID)
	if err := h.Store.ConfirmPayment(ctx, id, time.Now().UTC()); err != nil {
		writeDomainError(w, err)
		return
	}

	p, err := h.Store.PaymentByID(ctx, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTO(*p))
}

// ListAllWithdrawals returns every withdrawal.
func (h *Handler) ListAllWithdrawals(w http.ResponseWriter, r *http.Request) {
	withdrawals, err := h.Store.ListWithdrawals(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toWithdrawalDTOs(withdrawals))
}

// ApproveWithdrawal marks a pending withdrawal as paid. The wallet was
// already debited at request time.
func (h *Handler) ApproveWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req ApproveWithdrawalRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	id := invest.WithdrawalID(req.WithdrawalID)
	if err := h.Store.MarkWithdrawalPaid(r.Context(), id, time.Now().UTC()); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "withdrawal marked as paid"})
}

// TriggerAccrual runs one accrual pass immediately.
func (h *Handler) TriggerAccrual(w http.ResponseWriter, r *http.Request) {
	result, err := h.Engine.RunPass(r.Context(), time.Now().UTC())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "accrual pass failed")
		return
	}

	dto := AccrualPassDTO{
		ProcessedCount: result.Processed,
		SkippedCount:   result.Skipped,
		FailedCount:    len(result.Failures),
		Timestamp:      result.Timestamp.Format(time.RFC3339),
	}
	for _, f := range result.Failures {
		dto.Failures = append(dto.Failures, f.Error())
	}

	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) withInvestmentOwners(ctx context.Context, invs []invest.Investment) []InvestmentDTO {
	dtos := make([]InvestmentDTO, len(invs))
	for i, inv := range invs {
		dto := toInvestmentDTO(inv)
		if u, err := h.Store.UserByID(ctx, inv.UserID); err == nil {
			dto.UserName = u.FullName
		}
		dtos[i] = dto
	}
	return dtos
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// writeDomainError maps engine errors to HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case invest.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, invest.ErrInvalidTransition),
		errors.Is(err, invest.ErrConcurrentModification),
		errors.Is(err, invest.ErrEmailTaken):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, invest.ErrInsufficientBalance),
		errors.Is(err, invest.ErrBelowMinimumWithdrawal):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, invest.ErrAccountBlocked):
		writeError(w, http.StatusForbidden, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
