package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-credits-go/internal/metrics"
)

// Mutation is the ledger change emitted when a billing period has elapsed.
type Mutation struct {
	UserID          string
	ResetBalanceTo  int64
	RenewalBoundary time.Time
}

// Reconcile decides whether the period of sub has elapsed at now. It returns
// nil when there is nothing to do.
func Reconcile(sub *SubscriptionRecord, now time.Time) *Mutation {
	if !sub.Active() {
		return nil
	}
	if !now.After(sub.Expiry()) {
		return nil
	}
	return &Mutation{
		UserID:          sub.UserID,
		ResetBalanceTo:  MonthlyAllotment,
		RenewalBoundary: now,
	}
}

// Reconciler applies Reconcile against the store.
type Reconciler struct {
	store  Store
	clock  clockwork.Clock
	logger *zap.SugaredLogger
}

func NewReconciler(store Store, clock clockwork.Clock, logger *zap.SugaredLogger) *Reconciler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Reconciler{store: store, clock: clock, logger: logger}
}

// Run loads the user's active subscription and commits a reset when due.
// The reset and the boundary advance are two writes; a failure between them
// leaves a stale boundary that triggers another (idempotent) reset later.
func (r *Reconciler) Run(ctx context.Context, userID string) (*Mutation, error) {
	sub, err := r.store.GetActiveSubscription(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load subscription: %w", err)
	}
	m := Reconcile(sub, r.clock.Now())
	if m == nil {
		return nil, nil
	}
	if err := r.store.ResetBalance(ctx, m.UserID, m.ResetBalanceTo, m.RenewalBoundary); err != nil {
		return nil, fmt.Errorf("reset balance: %w", err)
	}
	if err := r.store.AdvanceRenewal(ctx, m.UserID, m.RenewalBoundary); err != nil {
		return nil, fmt.Errorf("advance renewal: %w", err)
	}
	metrics.RenewalResetsTotal.Inc()
	r.logger.Infow("billing period renewed",
		"user_id", userID,
		"balance", m.ResetBalanceTo,
		"previous_boundary", sub.RenewalBoundary,
		"renewal_boundary", m.RenewalBoundary,
	)
	return m, nil
}
