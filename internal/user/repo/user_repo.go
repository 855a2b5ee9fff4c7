package repo

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-credits-go/internal/user/entity"
)

// UserRepo provides data access for users table using sqlx.
type UserRepo struct {
	db sqlx.ExtContext
}

func NewUserRepo(db sqlx.ExtContext) *UserRepo { return &UserRepo{db: db} }

// EnsureTable creates the users table if not exists (idempotent).
func (r *UserRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS users (
  id VARCHAR(128) PRIMARY KEY,
  email VARCHAR(320) NOT NULL DEFAULT '',
  created_at BIGINT NOT NULL,
  updated_at BIGINT NOT NULL
)`
	if _, err := r.db.ExecContext(ctx, ddl); err != nil {
		return err
	}
	const idx = `CREATE INDEX IF NOT EXISTS idx_users_email ON users (email)`
	_, err := r.db.ExecContext(ctx, idx)
	return err
}

// Create inserts the user unless the id exists and reports whether a row was written.
func (r *UserRepo) Create(ctx context.Context, u *entity.User) (bool, error) {
	q := `INSERT INTO users (id, email, created_at, updated_at)
VALUES (:id, :email, :created_at, :updated_at) ON CONFLICT (id) DO NOTHING`
	res, err := sqlx.NamedExecContext(ctx, r.db, q, u)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// GetByID fetches a user or returns sql.ErrNoRows.
func (r *UserRepo) GetByID(ctx context.Context, id string) (*entity.User, error) {
	q := r.db.Rebind(`SELECT id, email, created_at, updated_at FROM users WHERE id=?`)
	var row entity.User
	if err := sqlx.GetContext(ctx, r.db, &row, q, id); err != nil {
		return nil, err
	}
	return &row, nil
}
