package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-credits-go/internal/metrics"
)

// Entitlement is the outcome of a gate check. Balance is a snapshot read
// without a lock; the debit that follows re-checks it atomically.
type Entitlement struct {
	Allowed      bool
	Reason       DenialReason
	Balance      int64
	Subscription *SubscriptionRecord
	Renewed      bool
}

// Err returns the typed denial, or nil when the action is allowed.
func (e *Entitlement) Err() error {
	if e.Allowed {
		return nil
	}
	return &DeniedError{Reason: e.Reason}
}

// Gate checks subscription and balance preconditions of metered actions.
type Gate struct {
	store      Store
	reconciler *Reconciler
	clock      clockwork.Clock
	logger     *zap.SugaredLogger
}

func NewGate(store Store, reconciler *Reconciler, clock clockwork.Clock, logger *zap.SugaredLogger) *Gate {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if reconciler == nil {
		reconciler = NewReconciler(store, clock, logger)
	}
	return &Gate{store: store, reconciler: reconciler, clock: clock, logger: logger}
}

// Check runs renewal reconciliation and then evaluates the preconditions.
// A balance below minCost is reported as insufficient credits whatever the
// subscription state; otherwise a missing or lapsed subscription is denied.
// The returned error is reserved for storage failures.
func (g *Gate) Check(ctx context.Context, userID string, minCost int64) (*Entitlement, error) {
	m, err := g.reconciler.Run(ctx, userID)
	if err != nil {
		return nil, err
	}

	ent := &Entitlement{Renewed: m != nil}

	bal, err := g.store.GetBalance(ctx, userID)
	switch {
	case err == nil:
		ent.Balance = bal.Balance
	case errors.Is(err, ErrNotFound):
	default:
		return nil, fmt.Errorf("load balance: %w", err)
	}

	sub, err := g.store.GetActiveSubscription(ctx, userID)
	switch {
	case err == nil:
		ent.Subscription = sub
	case errors.Is(err, ErrNotFound):
	default:
		return nil, fmt.Errorf("load subscription: %w", err)
	}

	switch {
	case ent.Balance < minCost:
		ent.Reason = DenialInsufficientCredits
	case !ent.Subscription.Active() || g.clock.Now().After(ent.Subscription.Expiry()):
		ent.Reason = DenialNoSubscription
	default:
		ent.Allowed = true
		return ent, nil
	}

	metrics.EntitlementDenialsTotal.WithLabelValues(string(ent.Reason)).Inc()
	g.logger.Debugw("entitlement denied", "user_id", userID, "reason", ent.Reason, "balance", ent.Balance)
	return ent, nil
}
