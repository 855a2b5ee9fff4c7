package repo

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-credits-go/internal/credit/entity"
)

// CreditRepo provides data access for the credits and credit_transactions
// tables. It runs against a *sqlx.DB or a *sqlx.Tx.
type CreditRepo struct {
	db sqlx.ExtContext
}

func NewCreditRepo(db sqlx.ExtContext) *CreditRepo { return &CreditRepo{db: db} }

// EnsureTable creates the credit tables if they do not exist. The DDL is
// portable between Postgres and SQLite.
func (r *CreditRepo) EnsureTable(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS credits (
  user_id VARCHAR(128) PRIMARY KEY,
  balance BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
  updated_at BIGINT NOT NULL DEFAULT 0
)`,
		`CREATE TABLE IF NOT EXISTS credit_transactions (
  id VARCHAR(32) PRIMARY KEY,
  user_id VARCHAR(128) NOT NULL,
  delta BIGINT NOT NULL,
  balance_after BIGINT NOT NULL,
  reason VARCHAR(32) NOT NULL,
  reference VARCHAR(255) NOT NULL DEFAULT '',
  created_at BIGINT NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_credit_transactions_user ON credit_transactions (user_id, created_at)`,
	}
	for _, q := range stmts {
		if _, err := r.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the credit row of a user or sql.ErrNoRows.
func (r *CreditRepo) Get(ctx context.Context, userID string) (*entity.Credit, error) {
	q := r.db.Rebind(`SELECT user_id, balance, updated_at FROM credits WHERE user_id=?`)
	var row entity.Credit
	if err := sqlx.GetContext(ctx, r.db, &row, q, userID); err != nil {
		return nil, err
	}
	return &row, nil
}

// InsertZero creates a zero balance row unless one exists.
func (r *CreditRepo) InsertZero(ctx context.Context, userID string, at int64) error {
	q := r.db.Rebind(`INSERT INTO credits (user_id, balance, updated_at) VALUES (?, 0, ?)
ON CONFLICT (user_id) DO NOTHING`)
	_, err := r.db.ExecContext(ctx, q, userID, at)
	return err
}

// Set overwrites the balance, creating the row when missing.
func (r *CreditRepo) Set(ctx context.Context, userID string, balance, at int64) error {
	q := r.db.Rebind(`INSERT INTO credits (user_id, balance, updated_at) VALUES (?, ?, ?)
ON CONFLICT (user_id) DO UPDATE SET balance = excluded.balance, updated_at = excluded.updated_at`)
	_, err := r.db.ExecContext(ctx, q, userID, balance, at)
	return err
}

// Add increments the balance, creating the row when missing, and returns the new balance.
func (r *CreditRepo) Add(ctx context.Context, userID string, amount, at int64) (int64, error) {
	q := r.db.Rebind(`INSERT INTO credits (user_id, balance, updated_at) VALUES (?, ?, ?)
ON CONFLICT (user_id) DO UPDATE SET balance = credits.balance + excluded.balance, updated_at = excluded.updated_at
RETURNING balance`)
	var balance int64
	if err := sqlx.GetContext(ctx, r.db, &balance, q, userID, amount, at); err != nil {
		return 0, err
	}
	return balance, nil
}

// DecrementIfAtLeast subtracts cost in a single conditional update and
// returns the remaining balance, or sql.ErrNoRows when the balance is short.
func (r *CreditRepo) DecrementIfAtLeast(ctx context.Context, userID string, cost, at int64) (int64, error) {
	q := r.db.Rebind(`UPDATE credits SET balance = balance - ?, updated_at = ?
WHERE user_id = ? AND balance >= ? RETURNING balance`)
	var balance int64
	if err := sqlx.GetContext(ctx, r.db, &balance, q, cost, at, userID, cost); err != nil {
		return 0, err
	}
	return balance, nil
}

// AppendTransaction writes one journal line.
func (r *CreditRepo) AppendTransaction(ctx context.Context, tx *entity.Transaction) error {
	q := `INSERT INTO credit_transactions (id, user_id, delta, balance_after, reason, reference, created_at)
VALUES (:id, :user_id, :delta, :balance_after, :reason, :reference, :created_at)`
	_, err := sqlx.NamedExecContext(ctx, r.db, q, tx)
	return err
}

// ListTransactions returns the newest journal lines of a user.
func (r *CreditRepo) ListTransactions(ctx context.Context, userID string, limit int) ([]entity.Transaction, error) {
	q := r.db.Rebind(`SELECT id, user_id, delta, balance_after, reason, reference, created_at
FROM credit_transactions WHERE user_id=? ORDER BY created_at DESC, id DESC LIMIT ?`)
	var rows []entity.Transaction
	if err := sqlx.SelectContext(ctx, r.db, &rows, q, userID, limit); err != nil {
		return nil, err
	}
	return rows, nil
}
