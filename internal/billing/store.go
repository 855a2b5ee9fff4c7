package billing

import (
	"context"
	"time"
)

// Store is the persistence boundary of the ledger. Implementations must make
// DecrementIfAtLeast and ApplyGrant atomic at the storage level.
type Store interface {
	// GetBalance returns ErrNotFound when the user has no credit row.
	GetBalance(ctx context.Context, userID string) (*CreditBalance, error)
	// GetActiveSubscription returns ErrNotFound when no active record exists.
	GetActiveSubscription(ctx context.Context, userID string) (*SubscriptionRecord, error)

	// EnsureAccount creates a zero balance row when absent.
	EnsureAccount(ctx context.Context, userID string, at time.Time) error
	// ResetBalance sets the balance to amount regardless of its current value.
	ResetBalance(ctx context.Context, userID string, amount int64, at time.Time) error
	// AdvanceRenewal moves the renewal boundary of the user's subscription.
	AdvanceRenewal(ctx context.Context, userID string, boundary time.Time) error
	// DecrementIfAtLeast subtracts cost only when balance >= cost and returns
	// the remaining balance. It returns ErrInsufficientCredits otherwise.
	DecrementIfAtLeast(ctx context.Context, userID string, cost int64, at time.Time) (int64, error)
	// ApplyGrant increments the balance and activates the subscription once per
	// event id. applied is false when the event id was already recorded.
	ApplyGrant(ctx context.Context, g Grant) (applied bool, err error)

	// ListTransactions returns the newest journal lines first.
	ListTransactions(ctx context.Context, userID string, limit int) ([]CreditTransaction, error)
}
