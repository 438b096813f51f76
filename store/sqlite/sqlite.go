/*
Package sqlite provides the SQLite-backed implementation of invest.Store.

PURPOSE:
  Implements the persistence contract with explicit SQL transactions.
  In production the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

ATOMICITY:
  Every multi-record operation (accrual cycle, payment confirmation,
  withdrawal request, referral bonus) runs inside one database
  transaction. Check-then-act operations are guarded UPDATEs: the WHERE
  clause carries the expected prior state, and RowsAffected==0 means the
  record changed underneath us (or the guard failed), in which case the
  transaction rolls back and nothing is observable to readers.

KEY TABLES:
  users:        account records with wallet balances (decimal TEXT)
  investments:  lifecycle state, cycle count, last accrual timestamp
  payments:     funding proofs
  withdrawals:  payout requests (funds reserved at insert time)

MONEY:
  All amounts are decimal strings (shopspring/decimal), never REAL.
  Arithmetic happens in Go inside the transaction; the write is guarded
  on the value that was read, making each mutation a compare-and-set.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety on top of WAL mode. In production
  with PostgreSQL, database-level concurrency control handles this
  instead.

USAGE:
  store, err := sqlite.New("./data/invest.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - invest/store.go: interface definitions and contracts
  - store/memory: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/vantage/invest-engine/invest"
)

// Store implements invest.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ invest.Store = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		full_name TEXT NOT NULL,
		email TEXT NOT NULL COLLATE NOCASE UNIQUE,
		phone TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		referral_code TEXT NOT NULL UNIQUE,
		referred_by TEXT,
		referral_bonus_paid INTEGER NOT NULL DEFAULT 0,
		wallet_balance TEXT NOT NULL,
		withdrawable_balance TEXT NOT NULL,
		total_invested TEXT NOT NULL,
		referral_earnings TEXT NOT NULL,
		active_investments INTEGER NOT NULL DEFAULT 0,
		is_blocked INTEGER NOT NULL DEFAULT 0,
		is_admin INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_users_referred_by
		ON users(referred_by) WHERE referred_by IS NOT NULL;

	CREATE TABLE IF NOT EXISTS investments (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		plan_id TEXT NOT NULL,
		plan_name TEXT NOT NULL,
		amount TEXT NOT NULL,
		daily_roi TEXT NOT NULL,
		cycles_completed INTEGER NOT NULL DEFAULT 0,
		last_accrual_at TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		payment_confirmed INTEGER NOT NULL DEFAULT 0,
		confirmed_at TEXT,
		completed_at TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_investments_user
		ON investments(user_id);

	-- Hot path: the accrual scan. Partial index keeps it small once
	-- most investments are completed.
	CREATE INDEX IF NOT EXISTS idx_investments_accrual_scan
		ON investments(status, payment_confirmed, cycles_completed)
		WHERE status = 'confirmed';

	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		amount TEXT NOT NULL,
		reference TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		confirmed_at TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payments_user
		ON payments(user_id);

	CREATE TABLE IF NOT EXISTS withdrawals (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		user_name TEXT,
		amount TEXT NOT NULL,
		bank_name TEXT NOT NULL,
		account_number TEXT NOT NULL,
		account_name TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		paid_at TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_withdrawals_user
		ON withdrawals(user_id);
	CREATE INDEX IF NOT EXISTS idx_withdrawals_status
		ON withdrawals(status);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// USER STORE
// =============================================================================

func (s *Store) CreateUser(ctx context.Context, u invest.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO users
		(id, full_name, email, phone, password_hash, referral_code, referred_by,
		 referral_bonus_paid, wallet_balance, withdrawable_balance, total_invested,
		 referral_earnings, active_investments, is_blocked, is_admin, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		u.ID, u.FullName, u.Email, u.Phone, u.PasswordHash,
		u.ReferralCode, nullUserID(u.ReferredBy), boolToInt(u.ReferralBonusPaid),
		u.WalletBalance.String(), u.WithdrawableBalance.String(),
		u.TotalInvested.String(), u.ReferralEarnings.String(),
		u.ActiveInvestments, boolToInt(u.IsBlocked), boolToInt(u.IsAdmin),
		u.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return invest.ErrEmailTaken
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

const userColumns = `id, full_name, email, phone, password_hash, referral_code,
	referred_by, referral_bonus_paid, wallet_balance, withdrawable_balance,
	total_invested, referral_earnings, active_investments, is_blocked, is_admin,
	created_at`

func (s *Store) UserByID(ctx context.Context, id invest.UserID) (*invest.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryUser(ctx, s.db, "id = ?", id)
}

func (s *Store) UserByEmail(ctx context.Context, email string) (*invest.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryUser(ctx, s.db, "email = ?", email)
}

func (s *Store) UserByReferralCode(ctx context.Context, code string) (*invest.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryUser(ctx, s.db, "referral_code = ?", code)
}

func queryUser(ctx context.Context, db querier, where string, arg any) (*invest.User, error) {
	row := db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE "+where, arg)

	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, invest.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]invest.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE is_admin = 0 ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []invest.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (s *Store) CountReferrals(ctx context.Context, id invest.UserID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM users WHERE referred_by = ?", id).Scan(&count)
	return count, err
}

func (s *Store) SetUserBlocked(ctx context.Context, id invest.UserID, blocked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE users SET is_blocked = ? WHERE id = ?", boolToInt(blocked), id)
	if err != nil {
		return fmt.Errorf("failed to update block flag: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return invest.ErrUserNotFound
	}
	return nil
}

func (s *Store) GrantReferralBonus(ctx context.Context, referredUserID invest.UserID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var granted bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		// The flag update is the compare-and-set guard: it only succeeds
		// the first time, so the credit below can never run twice.
		res, err := tx.ExecContext(ctx, `
			UPDATE users SET referral_bonus_paid = 1
			WHERE id = ? AND referred_by IS NOT NULL AND referral_bonus_paid = 0
		`, referredUserID)
		if err != nil {
			return fmt.Errorf("failed to set referral flag: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			// Already paid, no referrer, or unknown user. Distinguish the
			// unknown-user case for the caller.
			if _, err := queryUser(ctx, tx, "id = ?", referredUserID); err != nil {
				return err
			}
			return nil
		}

		var referrerID invest.UserID
		if err := tx.QueryRowContext(ctx,
			"SELECT referred_by FROM users WHERE id = ?", referredUserID,
		).Scan(&referrerID); err != nil {
			return fmt.Errorf("failed to resolve referrer: %w", err)
		}

		if err := creditUser(ctx, tx, referrerID, credit{
			wallet:   invest.ReferralBonus,
			referral: invest.ReferralBonus,
		}); err != nil {
			return err
		}
		granted = true
		return nil
	})
	return granted, err
}

// =============================================================================
// INVESTMENT STORE
// =============================================================================

const investmentColumns = `id, user_id, plan_id, plan_name, amount, daily_roi,
	cycles_completed, last_accrual_at, status, payment_confirmed, confirmed_at,
	completed_at, created_at`

func (s *Store) CreateInvestment(ctx context.Context, inv invest.Investment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		u, err := queryUser(ctx, tx, "id = ?", inv.UserID)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO investments
			(id, user_id, plan_id, plan_name, amount, daily_roi, cycles_completed,
			 last_accrual_at, status, payment_confirmed, confirmed_at, completed_at, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			inv.ID, inv.UserID, inv.PlanID, inv.PlanName,
			inv.Amount.String(), inv.DailyROI.String(), inv.CyclesCompleted,
			nullTime(inv.LastAccrualAt), inv.Status, boolToInt(inv.PaymentConfirmed),
			nullTime(inv.ConfirmedAt), nullTime(inv.CompletedAt),
			inv.CreatedAt.UTC().Format(time.RFC3339),
		)
		if err != nil {
			return fmt.Errorf("failed to insert investment: %w", err)
		}

		// Principal and position counters move with the insert.
		res, err := tx.ExecContext(ctx, `
			UPDATE users SET total_invested = ?, active_investments = active_investments + 1
			WHERE id = ? AND total_invested = ?
		`, u.TotalInvested.Add(inv.Amount).String(), inv.UserID, u.TotalInvested.String())
		if err != nil {
			return fmt.Errorf("failed to update owner counters: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return invest.ErrConcurrentModification
		}
		return nil
	})
}

func (s *Store) InvestmentByID(ctx context.Context, id invest.InvestmentID) (*invest.Investment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return investmentByID(ctx, s.db, id)
}

func investmentByID(ctx context.Context, db querier, id invest.InvestmentID) (*invest.Investment, error) {
	row := db.QueryRowContext(ctx,
		"SELECT "+investmentColumns+" FROM investments WHERE id = ?", id)
	inv, err := scanInvestment(row)
	if err == sql.ErrNoRows {
		return nil, invest.ErrInvestmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query investment: %w", err)
	}
	return inv, nil
}

func (s *Store) InvestmentsByUser(ctx context.Context, userID invest.UserID) ([]invest.Investment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryInvestments(ctx,
		"SELECT "+investmentColumns+" FROM investments WHERE user_id = ? ORDER BY created_at DESC", userID)
}

func (s *Store) ListInvestments(ctx context.Context) ([]invest.Investment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryInvestments(ctx,
		"SELECT "+investmentColumns+" FROM investments ORDER BY created_at DESC")
}

func (s *Store) EligibleInvestments(ctx context.Context) ([]invest.Investment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryInvestments(ctx, `
		SELECT `+investmentColumns+` FROM investments
		WHERE status = 'confirmed' AND payment_confirmed = 1 AND cycles_completed < ?
		ORDER BY created_at ASC
	`, invest.CyclesToComplete)
}

func (s *Store) ConfirmInvestment(ctx context.Context, id invest.InvestmentID, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Guarded on the pending state so confirmation cannot reset a running
	// or completed investment, and cannot interleave with the accrual scan.
	res, err := s.db.ExecContext(ctx, `
		UPDATE investments
		SET status = 'confirmed', payment_confirmed = 1, confirmed_at = ?, cycles_completed = 0
		WHERE id = ? AND status = 'pending'
	`, now.UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("failed to confirm investment: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	inv, err := investmentByID(ctx, s.db, id)
	if err != nil {
		return err
	}
	return &invest.TransitionError{
		InvestmentID: id,
		From:         inv.Status,
		Attempted:    invest.InvestmentConfirmed,
	}
}

func (s *Store) ApplyAccrualCycle(ctx context.Context, id invest.InvestmentID, expectedCycles int, d invest.AccrualDecision, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		status := invest.InvestmentConfirmed
		var completedAt sql.NullString
		if d.Completes {
			status = invest.InvestmentCompleted
			completedAt = sql.NullString{String: now.UTC().Format(time.RFC3339), Valid: true}
		}

		// The cycle count is the version: if another pass advanced this
		// record, the guard fails and nothing is written.
		res, err := tx.ExecContext(ctx, `
			UPDATE investments
			SET cycles_completed = ?, last_accrual_at = ?, status = ?, completed_at = ?
			WHERE id = ? AND status = 'confirmed' AND cycles_completed = ?
		`, d.NewCycles, now.UTC().Format(time.RFC3339), status, completedAt, id, expectedCycles)
		if err != nil {
			return fmt.Errorf("failed to advance investment: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			if _, err := investmentByID(ctx, tx, id); err != nil {
				return err
			}
			return invest.ErrConcurrentModification
		}

		var ownerID invest.UserID
		if err := tx.QueryRowContext(ctx,
			"SELECT user_id FROM investments WHERE id = ?", id).Scan(&ownerID); err != nil {
			return fmt.Errorf("failed to resolve owner: %w", err)
		}

		c := credit{wallet: d.DailyReturn, withdrawable: d.DailyReturn}
		if d.Completes {
			c.activeDelta = -1
		}
		return creditUser(ctx, tx, ownerID, c)
	})
}

func (s *Store) InvestmentCounts(ctx context.Context) (invest.InvestmentCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var counts invest.InvestmentCounts
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(status = 'pending'), 0),
		       COALESCE(SUM(status = 'confirmed'), 0)
		FROM investments
	`).Scan(&counts.Total, &counts.Pending, &counts.Confirmed)
	if err != nil {
		return counts, fmt.Errorf("failed to count investments: %w", err)
	}

	// Principal is decimal TEXT, so the sum happens in Go.
	rows, err := s.db.QueryContext(ctx,
		"SELECT amount FROM investments WHERE status = 'confirmed'")
	if err != nil {
		return counts, fmt.Errorf("failed to sum principal: %w", err)
	}
	defer rows.Close()

	income := decimal.Zero
	for rows.Next() {
		var amount string
		if err := rows.Scan(&amount); err != nil {
			return counts, err
		}
		income = income.Add(mustDecimal(amount))
	}
	counts.ConfirmedPrincipal = income.String()
	return counts, rows.Err()
}

// =============================================================================
// PAYMENT STORE
// =============================================================================

const paymentColumns = `id, user_id, amount, reference, status, confirmed_at, created_at`

func (s *Store) CreatePayment(ctx context.Context, p invest.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payments (id, user_id, amount, reference, status, confirmed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.UserID, p.Amount.String(), p.Reference, p.Status,
		nullTime(p.ConfirmedAt), p.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

func (s *Store) PaymentByID(ctx context.Context, id invest.PaymentID) (*invest.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT "+paymentColumns+" FROM payments WHERE id = ?", id)
	p, err := scanPayment(row)
	if err == sql.ErrNoRows {
		return nil, invest.ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query payment: %w", err)
	}
	return p, nil
}

func (s *Store) PaymentsByUser(ctx context.Context, userID invest.UserID) ([]invest.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryPayments(ctx,
		"SELECT "+paymentColumns+" FROM payments WHERE user_id = ? ORDER BY created_at DESC", userID)
}

func (s *Store) ListPayments(ctx context.Context) ([]invest.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryPayments(ctx,
		"SELECT "+paymentColumns+" FROM payments ORDER BY created_at DESC")
}

func (s *Store) ConfirmPayment(ctx context.Context, id invest.PaymentID, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		var (
			ownerID invest.UserID
			amount  string
			status  invest.PaymentStatus
		)
		err := tx.QueryRowContext(ctx,
			"SELECT user_id, amount, status FROM payments WHERE id = ?", id,
		).Scan(&ownerID, &amount, &status)
		if err == sql.ErrNoRows {
			return invest.ErrPaymentNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to query payment: %w", err)
		}

		// Status check before crediting: re-confirming never re-credits.
		res, err := tx.ExecContext(ctx, `
			UPDATE payments SET status = 'confirmed', confirmed_at = ?
			WHERE id = ? AND status = 'pending'
		`, now.UTC().Format(time.RFC3339), id)
		if err != nil {
			return fmt.Errorf("failed to confirm payment: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return invest.ErrInvalidTransition
		}

		return creditUser(ctx, tx, ownerID, credit{wallet: mustDecimal(amount)})
	})
}

// =============================================================================
// WITHDRAWAL STORE
// =============================================================================

const withdrawalColumns = `id, user_id, user_name, amount, bank_name,
	account_number, account_name, status, paid_at, created_at`

func (s *Store) CreateWithdrawal(ctx context.Context, w invest.Withdrawal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		u, err := queryUser(ctx, tx, "id = ?", w.UserID)
		if err != nil {
			return err
		}
		if u.WalletBalance.LessThan(w.Amount) {
			return &invest.InsufficientBalanceError{
				UserID:    w.UserID,
				Available: u.WalletBalance,
				Requested: w.Amount,
			}
		}

		// Debit guarded on the balance that was just checked: two racing
		// requests cannot both pass the guard and push the wallet negative.
		res, err := tx.ExecContext(ctx, `
			UPDATE users SET wallet_balance = ? WHERE id = ? AND wallet_balance = ?
		`, u.WalletBalance.Sub(w.Amount).String(), w.UserID, u.WalletBalance.String())
		if err != nil {
			return fmt.Errorf("failed to debit wallet: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return invest.ErrConcurrentModification
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO withdrawals
			(id, user_id, user_name, amount, bank_name, account_number, account_name,
			 status, paid_at, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, w.ID, w.UserID, w.UserName, w.Amount.String(),
			w.BankName, w.AccountNumber, w.AccountName,
			w.Status, nullTime(w.PaidAt), w.CreatedAt.UTC().Format(time.RFC3339))
		if err != nil {
			return fmt.Errorf("failed to insert withdrawal: %w", err)
		}
		return nil
	})
}

func (s *Store) WithdrawalsByUser(ctx context.Context, userID invest.UserID) ([]invest.Withdrawal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryWithdrawals(ctx,
		"SELECT "+withdrawalColumns+" FROM withdrawals WHERE user_id = ? ORDER BY created_at DESC", userID)
}

func (s *Store) ListWithdrawals(ctx context.Context) ([]invest.Withdrawal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryWithdrawals(ctx,
		"SELECT "+withdrawalColumns+" FROM withdrawals ORDER BY created_at DESC")
}

func (s *Store) MarkWithdrawalPaid(ctx context.Context, id invest.WithdrawalID, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE withdrawals SET status = 'paid', paid_at = ?
		WHERE id = ? AND status = 'pending'
	`, now.UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("failed to mark withdrawal paid: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	var exists int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM withdrawals WHERE id = ?", id).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return invest.ErrWithdrawalNotFound
	}
	return invest.ErrInvalidTransition
}

// =============================================================================
// INTERNAL HELPERS
// =============================================================================

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// credit is one atomic balance mutation applied to a user row.
type credit struct {
	wallet       decimal.Decimal
	withdrawable decimal.Decimal
	referral     decimal.Decimal
	activeDelta  int
}

// creditUser applies the mutation with a compare-and-set on the balances
// that were read. Must run inside a transaction.
func creditUser(ctx context.Context, tx *sql.Tx, id invest.UserID, c credit) error {
	u, err := queryUser(ctx, tx, "id = ?", id)
	if err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE users
		SET wallet_balance = ?, withdrawable_balance = ?, referral_earnings = ?,
		    active_investments = active_investments + ?
		WHERE id = ? AND wallet_balance = ? AND withdrawable_balance = ? AND referral_earnings = ?
	`,
		u.WalletBalance.Add(c.wallet).String(),
		u.WithdrawableBalance.Add(c.withdrawable).String(),
		u.ReferralEarnings.Add(c.referral).String(),
		c.activeDelta, id,
		u.WalletBalance.String(), u.WithdrawableBalance.String(), u.ReferralEarnings.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to credit user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return invest.ErrConcurrentModification
	}
	return nil
}

// =============================================================================
// SCANNERS
// =============================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*invest.User, error) {
	var (
		u                invest.User
		referredBy       sql.NullString
		bonusPaid        int
		wallet           string
		withdrawable     string
		invested         string
		referralEarnings string
		blocked, admin   int
		createdAt        string
	)

	err := row.Scan(
		&u.ID, &u.FullName, &u.Email, &u.Phone, &u.PasswordHash, &u.ReferralCode,
		&referredBy, &bonusPaid, &wallet, &withdrawable, &invested,
		&referralEarnings, &u.ActiveInvestments, &blocked, &admin, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	if referredBy.Valid {
		id := invest.UserID(referredBy.String)
		u.ReferredBy = &id
	}
	u.ReferralBonusPaid = bonusPaid != 0
	u.WalletBalance = mustDecimal(wallet)
	u.WithdrawableBalance = mustDecimal(withdrawable)
	u.TotalInvested = mustDecimal(invested)
	u.ReferralEarnings = mustDecimal(referralEarnings)
	u.IsBlocked = blocked != 0
	u.IsAdmin = admin != 0
	u.CreatedAt = parseTime(createdAt)
	return &u, nil
}

func scanInvestment(row rowScanner) (*invest.Investment, error) {
	var (
		inv              invest.Investment
		amount, dailyROI string
		lastAccrual      sql.NullString
		paymentConfirmed int
		confirmedAt      sql.NullString
		completedAt      sql.NullString
		createdAt        string
	)

	err := row.Scan(
		&inv.ID, &inv.UserID, &inv.PlanID, &inv.PlanName, &amount, &dailyROI,
		&inv.CyclesCompleted, &lastAccrual, &inv.Status, &paymentConfirmed,
		&confirmedAt, &completedAt, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	inv.Amount = mustDecimal(amount)
	inv.DailyROI = mustDecimal(dailyROI)
	inv.LastAccrualAt = nullableTime(lastAccrual)
	inv.PaymentConfirmed = paymentConfirmed != 0
	inv.ConfirmedAt = nullableTime(confirmedAt)
	inv.CompletedAt = nullableTime(completedAt)
	inv.CreatedAt = parseTime(createdAt)
	return &inv, nil
}

func scanPayment(row rowScanner) (*invest.Payment, error) {
	var (
		p           invest.Payment
		amount      string
		confirmedAt sql.NullString
		createdAt   string
	)

	err := row.Scan(&p.ID, &p.UserID, &amount, &p.Reference, &p.Status, &confirmedAt, &createdAt)
	if err != nil {
		return nil, err
	}

	p.Amount = mustDecimal(amount)
	p.ConfirmedAt = nullableTime(confirmedAt)
	p.CreatedAt = parseTime(createdAt)
	return &p, nil
}

func scanWithdrawal(row rowScanner) (*invest.Withdrawal, error) {
	var (
		w         invest.Withdrawal
		userName  sql.NullString
		amount    string
		paidAt    sql.NullString
		createdAt string
	)

	err := row.Scan(&w.ID, &w.UserID, &userName, &amount, &w.BankName,
		&w.AccountNumber, &w.AccountName, &w.Status, &paidAt, &createdAt)
	if err != nil {
		return nil, err
	}

	w.UserName = userName.String
	w.Amount = mustDecimal(amount)
	w.PaidAt = nullableTime(paidAt)
	w.CreatedAt = parseTime(createdAt)
	return &w, nil
}

func (s *Store) queryInvestments(ctx context.Context, query string, args ...any) ([]invest.Investment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query investments: %w", err)
	}
	defer rows.Close()

	var out []invest.Investment
	for rows.Next() {
		inv, err := scanInvestment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inv)
	}
	return out, rows.Err()
}

func (s *Store) queryPayments(ctx context.Context, query string, args ...any) ([]invest.Payment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var out []invest.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *Store) queryWithdrawals(ctx context.Context, query string, args ...any) ([]invest.Withdrawal, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query withdrawals: %w", err)
	}
	defer rows.Close()

	var out []invest.Withdrawal
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullUserID(id *invest.UserID) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*id), Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func nullableTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
