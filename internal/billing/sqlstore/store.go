// Package sqlstore implements billing.Store on Postgres or SQLite via sqlx.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-credits-go/internal/billing"
	creditentity "github.com/ovaphlow/pitchfork/service-credits-go/internal/credit/entity"
	creditrepo "github.com/ovaphlow/pitchfork/service-credits-go/internal/credit/repo"
	paymentrepo "github.com/ovaphlow/pitchfork/service-credits-go/internal/payment/repo"
	subentity "github.com/ovaphlow/pitchfork/service-credits-go/internal/subscription/entity"
	subrepo "github.com/ovaphlow/pitchfork/service-credits-go/internal/subscription/repo"
	"github.com/ovaphlow/pitchfork/service-credits-go/pkg/utilities"
)

type Store struct {
	db *sqlx.DB
}

var _ billing.Store = (*Store)(nil)

func New(db *sqlx.DB) *Store { return &Store{db: db} }

// Migrate creates the ledger tables.
func (s *Store) Migrate(ctx context.Context) error {
	if err := creditrepo.NewCreditRepo(s.db).EnsureTable(ctx); err != nil {
		return fmt.Errorf("credits: %w", err)
	}
	if err := subrepo.NewSubscriptionRepo(s.db).EnsureTable(ctx); err != nil {
		return fmt.Errorf("subscriptions: %w", err)
	}
	if err := paymentrepo.NewEventRepo(s.db).EnsureTable(ctx); err != nil {
		return fmt.Errorf("payment_events: %w", err)
	}
	return nil
}

func (s *Store) GetBalance(ctx context.Context, userID string) (*billing.CreditBalance, error) {
	row, err := creditrepo.NewCreditRepo(s.db).Get(ctx, userID)
	if err != nil {
		return nil, notFound(err)
	}
	return &billing.CreditBalance{UserID: row.UserID, Balance: row.Balance, UpdatedAt: fromMillis(row.UpdatedAt)}, nil
}

func (s *Store) GetActiveSubscription(ctx context.Context, userID string) (*billing.SubscriptionRecord, error) {
	row, err := subrepo.NewSubscriptionRepo(s.db).GetActive(ctx, userID)
	if err != nil {
		return nil, notFound(err)
	}
	return &billing.SubscriptionRecord{
		UserID:               row.UserID,
		Status:               billing.SubscriptionStatus(row.Status),
		RenewalBoundary:      fromMillis(row.RenewalDate),
		StripeCustomerID:     row.StripeCustomerID,
		StripeSubscriptionID: row.StripeSubscriptionID,
		UpdatedAt:            fromMillis(row.UpdatedAt),
	}, nil
}

func (s *Store) EnsureAccount(ctx context.Context, userID string, at time.Time) error {
	return creditrepo.NewCreditRepo(s.db).InsertZero(ctx, userID, at.UnixMilli())
}

func (s *Store) ResetBalance(ctx context.Context, userID string, amount int64, at time.Time) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		credits := creditrepo.NewCreditRepo(tx)
		var prev int64
		row, err := credits.Get(ctx, userID)
		switch {
		case err == nil:
			prev = row.Balance
		case errors.Is(err, sql.ErrNoRows):
		default:
			return err
		}
		if err := credits.Set(ctx, userID, amount, at.UnixMilli()); err != nil {
			return err
		}
		return credits.AppendTransaction(ctx, journal(userID, amount-prev, amount, billing.ReasonRenewalReset, "", at))
	})
}

func (s *Store) AdvanceRenewal(ctx context.Context, userID string, boundary time.Time) error {
	ms := boundary.UnixMilli()
	if err := subrepo.NewSubscriptionRepo(s.db).SetRenewalDate(ctx, userID, ms, ms); err != nil {
		return notFound(err)
	}
	return nil
}

func (s *Store) DecrementIfAtLeast(ctx context.Context, userID string, cost int64, at time.Time) (int64, error) {
	var remaining int64
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		credits := creditrepo.NewCreditRepo(tx)
		left, err := credits.DecrementIfAtLeast(ctx, userID, cost, at.UnixMilli())
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return billing.ErrInsufficientCredits
			}
			return err
		}
		remaining = left
		return credits.AppendTransaction(ctx, journal(userID, -cost, left, billing.ReasonDebit, "", at))
	})
	if err != nil {
		return 0, err
	}
	return remaining, nil
}

func (s *Store) ApplyGrant(ctx context.Context, g billing.Grant) (bool, error) {
	applied := false
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		ms := g.At.UnixMilli()
		fresh, err := paymentrepo.NewEventRepo(tx).Record(ctx, &paymentrepo.Event{
			EventID:    g.EventID,
			EventType:  g.EventType,
			UserID:     g.UserID,
			Amount:     g.Amount,
			ReceivedAt: ms,
		})
		if err != nil || !fresh {
			return err
		}

		credits := creditrepo.NewCreditRepo(tx)
		balance, err := credits.Add(ctx, g.UserID, g.Amount, ms)
		if err != nil {
			return err
		}
		if err := credits.AppendTransaction(ctx, journal(g.UserID, g.Amount, balance, g.Reason, g.EventID, g.At)); err != nil {
			return err
		}
		if g.Activate {
			if err := subrepo.NewSubscriptionRepo(tx).Activate(ctx, &subentity.Subscription{
				UserID:               g.UserID,
				RenewalDate:          ms,
				StripeCustomerID:     g.CustomerID,
				StripeSubscriptionID: g.SubscriptionID,
				UpdatedAt:            ms,
			}); err != nil {
				return err
			}
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

func (s *Store) ListTransactions(ctx context.Context, userID string, limit int) ([]billing.CreditTransaction, error) {
	rows, err := creditrepo.NewCreditRepo(s.db).ListTransactions(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]billing.CreditTransaction, 0, len(rows))
	for _, r := range rows {
		out = append(out, billing.CreditTransaction{
			ID:           r.ID,
			UserID:       r.UserID,
			Delta:        r.Delta,
			BalanceAfter: r.BalanceAfter,
			Reason:       r.Reason,
			Reference:    r.Reference,
			CreatedAt:    fromMillis(r.CreatedAt),
		})
	}
	return out, nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func journal(userID string, delta, after int64, reason, ref string, at time.Time) *creditentity.Transaction {
	return &creditentity.Transaction{
		ID:           utilities.NewSnowflakeID(),
		UserID:       userID,
		Delta:        delta,
		BalanceAfter: after,
		Reason:       reason,
		Reference:    ref,
		CreatedAt:    at.UnixMilli(),
	}
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return billing.ErrNotFound
	}
	return err
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
