/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request types carry go-playground/validator tags; handlers run them
  through Handler.validate before touching the store. Amounts cross the
  wire as JSON numbers and are converted to decimals at the boundary.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vantage/invest-engine/invest"
)

// =============================================================================
// AUTH
// =============================================================================

type RegisterRequest struct {
	FullName     string `json:"fullName" validate:"required,min=2"`
	Email        string `json:"email" validate:"required,email"`
	Phone        string `json:"phone" validate:"required,min=7"`
	Password     string `json:"password" validate:"required,min=6"`
	ReferralCode string `json:"referralCode,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	Token   string  `json:"token"`
	IsAdmin bool    `json:"isAdmin"`
	User    UserDTO `json:"user"`
}

// UserDTO is the public view of an account.
type UserDTO struct {
	ID           string `json:"id"`
	FullName     string `json:"fullName"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	ReferralCode string `json:"referralCode"`
}

// =============================================================================
// USER DASHBOARD
// =============================================================================

type DashboardDTO struct {
	WalletBalance       float64 `json:"walletBalance"`
	WithdrawableBalance float64 `json:"withdrawableBalance"`
	TotalInvested       float64 `json:"totalInvested"`
	ActiveInvestments   int     `json:"activeInvestments"`
	ReferralEarnings    float64 `json:"referralEarnings"`
	ReferralCode        string  `json:"referralCode"`
	TotalRoiEarned      float64 `json:"totalRoiEarned"`
}

type ReferralDTO struct {
	TotalReferrals   int     `json:"totalReferrals"`
	ReferralEarnings float64 `json:"referralEarnings"`
	ReferralCode     string  `json:"referralCode"`
}

type TransactionsDTO struct {
	Investments []InvestmentDTO `json:"investments"`
	Payments    []PaymentDTO    `json:"payments"`
	Withdrawals []WithdrawalDTO `json:"withdrawals"`
}

// =============================================================================
// INVESTMENTS
// =============================================================================

type CreateInvestmentRequest struct {
	PlanID string  `json:"planId" validate:"required"`
	Amount float64 `json:"amount" validate:"required,gt=0"`
}

type InvestmentDTO struct {
	ID               string  `json:"id"`
	UserID           string  `json:"userId"`
	UserName         string  `json:"userName,omitempty"`
	PlanID           string  `json:"planId"`
	PlanName         string  `json:"planName"`
	Amount           float64 `json:"amount"`
	DailyROI         float64 `json:"dailyROI"`
	CyclesCompleted  int     `json:"cyclesCompleted"`
	LastAccrualAt    string  `json:"lastAccrualAt,omitempty"`
	Status           string  `json:"status"`
	PaymentConfirmed bool    `json:"paymentConfirmed"`
	ConfirmedAt      string  `json:"confirmedAt,omitempty"`
	CompletedAt      string  `json:"completedAt,omitempty"`
	CreatedAt        string  `json:"createdAt"`
}

type ConfirmInvestmentRequest struct {
	InvestmentID string `json:"investmentId" validate:"required"`
}

// =============================================================================
// PAYMENTS
// =============================================================================

type SubmitPaymentRequest struct {
	Amount    float64 `json:"amount" validate:"required,gt=0"`
	Reference string  `json:"reference" validate:"required"`
}

type PaymentDTO struct {
	ID          string  `json:"id"`
	UserID      string  `json:"userId"`
	UserName    string  `json:"userName,omitempty"`
	Amount      float64 `json:"amount"`
	Reference   string  `json:"reference"`
	Status      string  `json:"status"`
	ConfirmedAt string  `json:"confirmedAt,omitempty"`
	CreatedAt   string  `json:"createdAt"`
}

type ConfirmPaymentRequest struct {
	PaymentID string `json:"paymentId" validate:"required"`
}

// =============================================================================
// WITHDRAWALS
// =============================================================================

type CreateWithdrawalRequest struct {
	Amount        float64 `json:"amount" validate:"required,gt=0"`
	BankName      string  `json:"bankName" validate:"required"`
	AccountNumber string  `json:"accountNumber" validate:"required"`
	AccountName   string  `json:"accountName" validate:"required"`
}

type WithdrawalDTO struct {
	ID            string  `json:"id"`
	UserID        string  `json:"userId"`
	UserName      string  `json:"userName,omitempty"`
	Amount        float64 `json:"amount"`
	BankName      string  `json:"bankName"`
	AccountNumber string  `json:"accountNumber"`
	AccountName   string  `json:"accountName"`
	Status        string  `json:"status"`
	PaidAt        string  `json:"paidAt,omitempty"`
	CreatedAt     string  `json:"createdAt"`
}

type ApproveWithdrawalRequest struct {
	WithdrawalID string `json:"withdrawalId" validate:"required"`
}

// =============================================================================
// ADMIN
// =============================================================================

type OverviewDTO struct {
	TotalUsers           int     `json:"totalUsers"`
	TotalInvestments     int     `json:"totalInvestments"`
	TotalPlatformIncome  float64 `json:"totalPlatformIncome"`
	PendingInvestments   int     `json:"pendingInvestments"`
	ConfirmedInvestments int     `json:"confirmedInvestments"`
}

type AdminUserDTO struct {
	ID            string  `json:"id"`
	FullName      string  `json:"fullName"`
	Email         string  `json:"email"`
	Phone         string  `json:"phone"`
	WalletBalance float64 `json:"walletBalance"`
	TotalInvested float64 `json:"totalInvested"`
	IsBlocked     bool    `json:"isBlocked"`
	CreatedAt     string  `json:"createdAt"`
}

// AccrualPassDTO is the result of a triggered accrual pass.
type AccrualPassDTO struct {
	ProcessedCount int      `json:"processedCount"`
	SkippedCount   int      `json:"skippedCount"`
	FailedCount    int      `json:"failedCount"`
	Failures       []string `json:"failures,omitempty"`
	Timestamp      string   `json:"timestamp"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func f64(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}

func toUserDTO(u invest.User) UserDTO {
	return UserDTO{
		ID:           string(u.ID),
		FullName:     u.FullName,
		Email:        u.Email,
		Phone:        u.Phone,
		ReferralCode: u.ReferralCode,
	}
}

func toInvestmentDTO(inv invest.Investment) InvestmentDTO {
	return InvestmentDTO{
		ID:               string(inv.ID),
		UserID:           string(inv.UserID),
		PlanID:           inv.PlanID,
		PlanName:         inv.PlanName,
		Amount:           f64(inv.Amount),
		DailyROI:         f64(inv.DailyROI),
		CyclesCompleted:  inv.CyclesCompleted,
		LastAccrualAt:    formatTime(inv.LastAccrualAt),
		Status:           string(inv.Status),
		PaymentConfirmed: inv.PaymentConfirmed,
		ConfirmedAt:      formatTime(inv.ConfirmedAt),
		CompletedAt:      formatTime(inv.CompletedAt),
		CreatedAt:        inv.CreatedAt.Format(time.RFC3339),
	}
}

func toInvestmentDTOs(invs []invest.Investment) []InvestmentDTO {
	dtos := make([]InvestmentDTO, len(invs))
	for i, inv := range invs {
		dtos[i] = toInvestmentDTO(inv)
	}
	return dtos
}

func toPaymentDTO(p invest.Payment) PaymentDTO {
	return PaymentDTO{
		ID:          string(p.ID),
		UserID:      string(p.UserID),
		Amount:      f64(p.Amount),
		Reference:   p.Reference,
		Status:      string(p.Status),
		ConfirmedAt: formatTime(p.ConfirmedAt),
		CreatedAt:   p.CreatedAt.Format(time.RFC3339),
	}
}

func toPaymentDTOs(payments []invest.Payment) []PaymentDTO {
	dtos := make([]PaymentDTO, len(payments))
	for i, p := range payments {
		dtos[i] = toPaymentDTO(p)
	}
	return dtos
}

func toWithdrawalDTO(w invest.Withdrawal) WithdrawalDTO {
	return WithdrawalDTO{
		ID:            string(w.ID),
		UserID:        string(w.UserID),
		UserName:      w.UserName,
		Amount:        f64(w.Amount),
		BankName:      w.BankName,
		AccountNumber: w.AccountNumber,
		AccountName:   w.AccountName,
		Status:        string(w.Status),
		PaidAt:        formatTime(w.PaidAt),
		CreatedAt:     w.CreatedAt.Format(time.RFC3339),
	}
}

func toWithdrawalDTOs(withdrawals []invest.Withdrawal) []WithdrawalDTO {
	dtos := make([]WithdrawalDTO, len(withdrawals))
	for i, w := range withdrawals {
		dtos[i] = toWithdrawalDTO(w)
	}
	return dtos
}
