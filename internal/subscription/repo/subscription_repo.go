package repo

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-credits-go/internal/subscription/entity"
)

type SubscriptionRepo struct {
	db sqlx.ExtContext
}

func NewSubscriptionRepo(db sqlx.ExtContext) *SubscriptionRepo {
	return &SubscriptionRepo{db: db}
}

// EnsureTable creates the subscriptions table if it does not already exist.
// One row per user keeps at most one active record.
func (r *SubscriptionRepo) EnsureTable(ctx context.Context) error {
	const tbl = `
	CREATE TABLE IF NOT EXISTS subscriptions (
		user_id varchar(128) PRIMARY KEY,
		status varchar(16) NOT NULL DEFAULT 'inactive',
		renewal_date BIGINT NOT NULL DEFAULT 0,
		stripe_customer_id varchar(64) NOT NULL DEFAULT '',
		stripe_subscription_id varchar(64) NOT NULL DEFAULT '',
		updated_at BIGINT NOT NULL DEFAULT 0
	);
	`
	if _, err := r.db.ExecContext(ctx, tbl); err != nil {
		return err
	}

	const idx = `
	CREATE INDEX IF NOT EXISTS idx_subscriptions_status ON subscriptions (status);
	`
	if _, err := r.db.ExecContext(ctx, idx); err != nil {
		return err
	}

	const idxStripe = `
	CREATE INDEX IF NOT EXISTS idx_subscriptions_stripe_subscription ON subscriptions (stripe_subscription_id);
	`
	if _, err := r.db.ExecContext(ctx, idxStripe); err != nil {
		return err
	}
	return nil
}

// GetActive returns the active subscription of a user or sql.ErrNoRows.
func (r *SubscriptionRepo) GetActive(ctx context.Context, userID string) (*entity.Subscription, error) {
	q := r.db.Rebind(`SELECT user_id, status, renewal_date, stripe_customer_id, stripe_subscription_id, updated_at
	FROM subscriptions WHERE user_id=? AND status=?`)
	var row entity.Subscription
	if err := sqlx.GetContext(ctx, r.db, &row, q, userID, entity.StatusActive); err != nil {
		return nil, err
	}
	return &row, nil
}

// Activate marks the subscription active with the given renewal date. Empty
// processor ids keep the stored values.
func (r *SubscriptionRepo) Activate(ctx context.Context, s *entity.Subscription) error {
	q := r.db.Rebind(`
	INSERT INTO subscriptions (user_id, status, renewal_date, stripe_customer_id, stripe_subscription_id, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT (user_id) DO UPDATE SET
		status = excluded.status,
		renewal_date = excluded.renewal_date,
		stripe_customer_id = CASE WHEN excluded.stripe_customer_id = '' THEN subscriptions.stripe_customer_id ELSE excluded.stripe_customer_id END,
		stripe_subscription_id = CASE WHEN excluded.stripe_subscription_id = '' THEN subscriptions.stripe_subscription_id ELSE excluded.stripe_subscription_id END,
		updated_at = excluded.updated_at
	`)
	_, err := r.db.ExecContext(ctx, q, s.UserID, entity.StatusActive, s.RenewalDate, s.StripeCustomerID, s.StripeSubscriptionID, s.UpdatedAt)
	return err
}

// SetRenewalDate moves the renewal date. It returns sql.ErrNoRows when the
// user has no subscription row.
func (r *SubscriptionRepo) SetRenewalDate(ctx context.Context, userID string, renewal, at int64) error {
	q := r.db.Rebind(`UPDATE subscriptions SET renewal_date=?, updated_at=? WHERE user_id=?`)
	res, err := r.db.ExecContext(ctx, q, renewal, at, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
