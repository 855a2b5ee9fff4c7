package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-credits-go/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-credits-go/pkg/utilities"
)

// BalanceView is what the balance endpoint reports.
type BalanceView struct {
	Credits            int64 `json:"credits"`
	SubscriptionActive bool  `json:"subscriptionActive"`
}

// Service wires the ledger components around one Store.
type Service struct {
	store      Store
	reconciler *Reconciler
	gate       *Gate
	executor   *Executor
	clock      clockwork.Clock
	logger     *zap.SugaredLogger
}

func NewService(store Store, gen Generator, clock clockwork.Clock, logger *zap.SugaredLogger) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	rec := NewReconciler(store, clock, logger)
	gate := NewGate(store, rec, clock, logger)
	return &Service{
		store:      store,
		reconciler: rec,
		gate:       gate,
		executor:   NewExecutor(gate, store, gen, clock, logger),
		clock:      clock,
		logger:     logger,
	}
}

func (s *Service) Gate() *Gate { return s.gate }

// Balance reconciles the period and reports the balance. A user without a
// credit row reads as zero credits and no subscription.
func (s *Service) Balance(ctx context.Context, userID string) (*BalanceView, error) {
	if _, err := s.reconciler.Run(ctx, userID); err != nil {
		return nil, err
	}
	bal, err := s.store.GetBalance(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return &BalanceView{}, nil
		}
		return nil, fmt.Errorf("load balance: %w", err)
	}
	view := &BalanceView{Credits: bal.Balance}
	sub, err := s.store.GetActiveSubscription(ctx, userID)
	switch {
	case err == nil:
		view.SubscriptionActive = sub.Active()
	case errors.Is(err, ErrNotFound):
	default:
		return nil, fmt.Errorf("load subscription: %w", err)
	}
	return view, nil
}

// Deduct charges one generation without running a job.
func (s *Service) Deduct(ctx context.Context, userID string) (int64, error) {
	return s.executor.Debit(ctx, userID)
}

// Generate runs a metered generation for the user.
func (s *Service) Generate(ctx context.Context, userID, prompt string) (*Result, error) {
	return s.executor.Execute(ctx, userID, prompt)
}

// Grant adds credits outside the payment flow. The reference doubles as the
// idempotency key; an empty reference gets a fresh one.
func (s *Service) Grant(ctx context.Context, userID string, amount int64, reference string) (bool, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" || amount <= 0 {
		return false, ErrInvalidInput
	}
	if reference == "" {
		reference = "manual_" + utilities.NewKSUID()
	}
	applied, err := s.store.ApplyGrant(ctx, Grant{
		EventID:   reference,
		EventType: "manual.grant",
		UserID:    userID,
		Amount:    amount,
		Reason:    ReasonManualGrant,
		At:        s.clock.Now(),
	})
	if err != nil {
		return false, fmt.Errorf("apply grant: %w", err)
	}
	if applied {
		metrics.CreditsGrantedTotal.WithLabelValues(ReasonManualGrant).Add(float64(amount))
		s.logger.Infow("manual grant applied", "user_id", userID, "amount", amount, "reference", reference)
	}
	return applied, nil
}

// History lists the newest journal lines of a user.
func (s *Service) History(ctx context.Context, userID string, limit int) ([]CreditTransaction, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return s.store.ListTransactions(ctx, userID, limit)
}

// EnsureAccount creates the zero balance row of a newly provisioned user.
func (s *Service) EnsureAccount(ctx context.Context, userID string) error {
	return s.store.EnsureAccount(ctx, userID, s.clock.Now())
}
