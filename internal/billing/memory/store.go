// Package memory is an in-process billing.Store for tests and local runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ovaphlow/pitchfork/service-credits-go/internal/billing"
	"github.com/ovaphlow/pitchfork/service-credits-go/pkg/utilities"
)

type Store struct {
	mu sync.RWMutex

	balances      map[string]*billing.CreditBalance
	subscriptions map[string]*billing.SubscriptionRecord
	events        map[string]struct{}
	journal       []billing.CreditTransaction
}

var _ billing.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		balances:      make(map[string]*billing.CreditBalance),
		subscriptions: make(map[string]*billing.SubscriptionRecord),
		events:        make(map[string]struct{}),
	}
}

func (s *Store) GetBalance(_ context.Context, userID string) (*billing.CreditBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.balances[userID]
	if !ok {
		return nil, billing.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (s *Store) GetActiveSubscription(_ context.Context, userID string) (*billing.SubscriptionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subscriptions[userID]
	if !ok || !sub.Active() {
		return nil, billing.ErrNotFound
	}
	cp := *sub
	return &cp, nil
}

func (s *Store) EnsureAccount(_ context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.balances[userID]; !ok {
		s.balances[userID] = &billing.CreditBalance{UserID: userID, UpdatedAt: at}
	}
	return nil
}

func (s *Store) ResetBalance(_ context.Context, userID string, amount int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.balanceLocked(userID, at)
	delta := amount - b.Balance
	b.Balance = amount
	b.UpdatedAt = at
	s.appendLocked(userID, delta, amount, billing.ReasonRenewalReset, "", at)
	return nil
}

func (s *Store) AdvanceRenewal(_ context.Context, userID string, boundary time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscriptions[userID]
	if !ok {
		return billing.ErrNotFound
	}
	sub.RenewalBoundary = boundary
	sub.UpdatedAt = boundary
	return nil
}

func (s *Store) DecrementIfAtLeast(_ context.Context, userID string, cost int64, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.balances[userID]
	if !ok || b.Balance < cost {
		return 0, billing.ErrInsufficientCredits
	}
	b.Balance -= cost
	b.UpdatedAt = at
	s.appendLocked(userID, -cost, b.Balance, billing.ReasonDebit, "", at)
	return b.Balance, nil
}

func (s *Store) ApplyGrant(_ context.Context, g billing.Grant) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, seen := s.events[g.EventID]; seen {
		return false, nil
	}
	s.events[g.EventID] = struct{}{}

	b := s.balanceLocked(g.UserID, g.At)
	b.Balance += g.Amount
	b.UpdatedAt = g.At
	s.appendLocked(g.UserID, g.Amount, b.Balance, g.Reason, g.EventID, g.At)

	if g.Activate {
		sub, ok := s.subscriptions[g.UserID]
		if !ok {
			sub = &billing.SubscriptionRecord{UserID: g.UserID}
			s.subscriptions[g.UserID] = sub
		}
		sub.Status = billing.SubscriptionActive
		sub.RenewalBoundary = g.At
		sub.UpdatedAt = g.At
		if g.CustomerID != "" {
			sub.StripeCustomerID = g.CustomerID
		}
		if g.SubscriptionID != "" {
			sub.StripeSubscriptionID = g.SubscriptionID
		}
	}
	return true, nil
}

func (s *Store) ListTransactions(_ context.Context, userID string, limit int) ([]billing.CreditTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []billing.CreditTransaction
	for i := len(s.journal) - 1; i >= 0; i-- {
		if s.journal[i].UserID == userID {
			out = append(out, s.journal[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// PutSubscription replaces the subscription record of a user.
func (s *Store) PutSubscription(sub billing.SubscriptionRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriptions[sub.UserID] = &sub
}

// SetBalance overwrites a balance without writing a journal line.
func (s *Store) SetBalance(userID string, balance int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balanceLocked(userID, time.Time{}).Balance = balance
}

func (s *Store) balanceLocked(userID string, at time.Time) *billing.CreditBalance {
	b, ok := s.balances[userID]
	if !ok {
		b = &billing.CreditBalance{UserID: userID, UpdatedAt: at}
		s.balances[userID] = b
	}
	return b
}

func (s *Store) appendLocked(userID string, delta, after int64, reason, ref string, at time.Time) {
	s.journal = append(s.journal, billing.CreditTransaction{
		ID:           utilities.NewSnowflakeID(),
		UserID:       userID,
		Delta:        delta,
		BalanceAfter: after,
		Reason:       reason,
		Reference:    ref,
		CreatedAt:    at,
	})
}
