// Package memory provides an in-memory invest.Store for tests and local
// development. All operations are serialized on one mutex, which gives the
// same per-record atomicity guarantees as the SQL store's transactions.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vantage/invest-engine/invest"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

type Store struct {
	mu          sync.RWMutex
	users       map[invest.UserID]invest.User
	investments map[invest.InvestmentID]invest.Investment
	payments    map[invest.PaymentID]invest.Payment
	withdrawals map[invest.WithdrawalID]invest.Withdrawal
}

func New() *Store {
	return &Store{
		users:       make(map[invest.UserID]invest.User),
		investments: make(map[invest.InvestmentID]invest.Investment),
		payments:    make(map[invest.PaymentID]invest.Payment),
		withdrawals: make(map[invest.WithdrawalID]invest.Withdrawal),
	}
}

var _ invest.Store = (*Store)(nil)

// =============================================================================
// USERS
// =============================================================================

func (s *Store) CreateUser(_ context.Context, u invest.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return invest.ErrEmailTaken
		}
	}
	s.users[u.ID] = u
	return nil
}

func (s *Store) UserByID(_ context.Context, id invest.UserID) (*invest.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, invest.ErrUserNotFound
	}
	return &u, nil
}

func (s *Store) UserByEmail(_ context.Context, email string) (*invest.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			u := u
			return &u, nil
		}
	}
	return nil, invest.ErrUserNotFound
}

func (s *Store) UserByReferralCode(_ context.Context, code string) (*invest.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.ReferralCode == code {
			u := u
			return &u, nil
		}
	}
	return nil, invest.ErrUserNotFound
}

func (s *Store) ListUsers(_ context.Context) ([]invest.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var users []invest.User
	for _, u := range s.users {
		if u.IsAdmin {
			continue
		}
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].CreatedAt.After(users[j].CreatedAt)
	})
	return users, nil
}

func (s *Store) CountReferrals(_ context.Context, id invest.UserID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, u := range s.users {
		if u.ReferredBy != nil && *u.ReferredBy == id {
			count++
		}
	}
	return count, nil
}

func (s *Store) SetUserBlocked(_ context.Context, id invest.UserID, blocked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return invest.ErrUserNotFound
	}
	u.IsBlocked = blocked
	s.users[id] = u
	return nil
}

func (s *Store) GrantReferralBonus(_ context.Context, referredUserID invest.UserID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	referred, ok := s.users[referredUserID]
	if !ok {
		return false, invest.ErrUserNotFound
	}
	// The flag is the re-entry guard: once set, never set again.
	if referred.ReferredBy == nil || referred.ReferralBonusPaid {
		return false, nil
	}

	referrer, ok := s.users[*referred.ReferredBy]
	if !ok {
		return false, invest.ErrUserNotFound
	}

	referrer.WalletBalance = referrer.WalletBalance.Add(invest.ReferralBonus)
	referrer.ReferralEarnings = referrer.ReferralEarnings.Add(invest.ReferralBonus)
	referred.ReferralBonusPaid = true

	s.users[referrer.ID] = referrer
	s.users[referred.ID] = referred
	return true, nil
}

// =============================================================================
// INVESTMENTS
// =============================================================================

func (s *Store) CreateInvestment(_ context.Context, inv invest.Investment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	owner, ok := s.users[inv.UserID]
	if !ok {
		return invest.ErrUserNotFound
	}

	s.investments[inv.ID] = inv
	owner.TotalInvested = owner.TotalInvested.Add(inv.Amount)
	owner.ActiveInvestments++
	s.users[owner.ID] = owner
	return nil
}

func (s *Store) InvestmentByID(_ context.Context, id invest.InvestmentID) (*invest.Investment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, ok := s.investments[id]
	if !ok {
		return nil, invest.ErrInvestmentNotFound
	}
	return &inv, nil
}

func (s *Store) InvestmentsByUser(_ context.Context, userID invest.UserID) ([]invest.Investment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []invest.Investment
	for _, inv := range s.investments {
		if inv.UserID == userID {
			out = append(out, inv)
		}
	}
	sortInvestments(out)
	return out, nil
}

func (s *Store) ListInvestments(_ context.Context) ([]invest.Investment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]invest.Investment, 0, len(s.investments))
	for _, inv := range s.investments {
		out = append(out, inv)
	}
	sortInvestments(out)
	return out, nil
}

func (s *Store) EligibleInvestments(_ context.Context) ([]invest.Investment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []invest.Investment
	for _, inv := range s.investments {
		if inv.Status == invest.InvestmentConfirmed &&
			inv.PaymentConfirmed &&
			inv.CyclesCompleted < invest.CyclesToComplete {
			out = append(out, inv)
		}
	}
	sortInvestments(out)
	return out, nil
}

func (s *Store) ConfirmInvestment(_ context.Context, id invest.InvestmentID, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.investments[id]
	if !ok {
		return invest.ErrInvestmentNotFound
	}
	if err := invest.CanConfirm(inv); err != nil {
		return err
	}

	at := now
	inv.Status = invest.InvestmentConfirmed
	inv.PaymentConfirmed = true
	inv.ConfirmedAt = &at
	inv.CyclesCompleted = 0
	s.investments[id] = inv
	return nil
}

func (s *Store) ApplyAccrualCycle(_ context.Context, id invest.InvestmentID, expectedCycles int, d invest.AccrualDecision, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.investments[id]
	if !ok {
		return invest.ErrInvestmentNotFound
	}
	// Compare-and-set: another pass may have advanced this record already.
	if inv.Status != invest.InvestmentConfirmed || inv.CyclesCompleted != expectedCycles {
		return invest.ErrConcurrentModification
	}

	owner, ok := s.users[inv.UserID]
	if !ok {
		return invest.ErrUserNotFound
	}

	s.investments[id] = invest.ApplyDecision(inv, d, now)

	owner.WalletBalance = owner.WalletBalance.Add(d.DailyReturn)
	owner.WithdrawableBalance = owner.WithdrawableBalance.Add(d.DailyReturn)
	if d.Completes {
		owner.ActiveInvestments--
	}
	s.users[owner.ID] = owner
	return nil
}

func (s *Store) InvestmentCounts(_ context.Context) (invest.InvestmentCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := invest.InvestmentCounts{Total: len(s.investments)}
	income := decimal.Zero
	for _, inv := range s.investments {
		switch inv.Status {
		case invest.InvestmentPending:
			counts.Pending++
		case invest.InvestmentConfirmed:
			counts.Confirmed++
			income = income.Add(inv.Amount)
		}
	}
	counts.ConfirmedPrincipal = income.String()
	return counts, nil
}

// =============================================================================
// PAYMENTS
// =============================================================================

func (s *Store) CreatePayment(_ context.Context, p invest.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[p.UserID]; !ok {
		return invest.ErrUserNotFound
	}
	s.payments[p.ID] = p
	return nil
}

func (s *Store) PaymentByID(_ context.Context, id invest.PaymentID) (*invest.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.payments[id]
	if !ok {
		return nil, invest.ErrPaymentNotFound
	}
	return &p, nil
}

func (s *Store) PaymentsByUser(_ context.Context, userID invest.UserID) ([]invest.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []invest.Payment
	for _, p := range s.payments {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListPayments(_ context.Context) ([]invest.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]invest.Payment, 0, len(s.payments))
	for _, p := range s.payments {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ConfirmPayment(_ context.Context, id invest.PaymentID, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payments[id]
	if !ok {
		return invest.ErrPaymentNotFound
	}
	// Status check before crediting: re-confirming never re-credits.
	if p.Status != invest.PaymentPending {
		return invest.ErrInvalidTransition
	}

	owner, ok := s.users[p.UserID]
	if !ok {
		return invest.ErrUserNotFound
	}

	at := now
	p.Status = invest.PaymentConfirmed
	p.ConfirmedAt = &at
	s.payments[id] = p

	owner.WalletBalance = owner.WalletBalance.Add(p.Amount)
	s.users[owner.ID] = owner
	return nil
}

// =============================================================================
// WITHDRAWALS
// =============================================================================

func (s *Store) CreateWithdrawal(_ context.Context, w invest.Withdrawal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	owner, ok := s.users[w.UserID]
	if !ok {
		return invest.ErrUserNotFound
	}
	// Check-then-act under the same lock: the balance guard and the debit
	// are a single logical transaction.
	if owner.WalletBalance.LessThan(w.Amount) {
		return &invest.InsufficientBalanceError{
			UserID:    w.UserID,
			Available: owner.WalletBalance,
			Requested: w.Amount,
		}
	}

	owner.WalletBalance = owner.WalletBalance.Sub(w.Amount)
	s.users[owner.ID] = owner
	s.withdrawals[w.ID] = w
	return nil
}

func (s *Store) WithdrawalsByUser(_ context.Context, userID invest.UserID) ([]invest.Withdrawal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []invest.Withdrawal
	for _, w := range s.withdrawals {
		if w.UserID == userID {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListWithdrawals(_ context.Context) ([]invest.Withdrawal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]invest.Withdrawal, 0, len(s.withdrawals))
	for _, w := range s.withdrawals {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) MarkWithdrawalPaid(_ context.Context, id invest.WithdrawalID, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.withdrawals[id]
	if !ok {
		return invest.ErrWithdrawalNotFound
	}
	if w.Status != invest.WithdrawalPending {
		return invest.ErrInvalidTransition
	}

	at := now
	w.Status = invest.WithdrawalPaid
	w.PaidAt = &at
	s.withdrawals[id] = w
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func sortInvestments(invs []invest.Investment) {
	sort.Slice(invs, func(i, j int) bool {
		if invs[i].CreatedAt.Equal(invs[j].CreatedAt) {
			return invs[i].ID < invs[j].ID
		}
		return invs[i].CreatedAt.After(invs[j].CreatedAt)
	})
}
