package memory

import (
	"context"
	"sync"
	"time"

	"github.com/R3E-Network/agent-proposal-engine/internal/domain/budget"
	"github.com/R3E-Network/agent-proposal-engine/internal/platform/apperrors"
	"github.com/R3E-Network/agent-proposal-engine/internal/platform/money"
)

// BudgetStore is an in-memory budget.Store. Debit and Rollover hold the
// store-wide write lock for their whole check-then-update so two
// concurrent callers can never both pass the capacity/expiry check
// against the same stale snapshot.
type BudgetStore struct {
	mu   sync.Mutex
	byID map[string]*budget.Budget
}

func NewBudgetStore() *BudgetStore {
	return &BudgetStore{byID: make(map[string]*budget.Budget)}
}

func cloneBudget(b *budget.Budget) *budget.Budget {
	cp := *b
	return &cp
}

func (s *BudgetStore) Create(ctx context.Context, b *budget.Budget) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[b.ID] = cloneBudget(b)
	return nil
}

func (s *BudgetStore) Get(ctx context.Context, id string) (*budget.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	return cloneBudget(b), nil
}

func (s *BudgetStore) List(ctx context.Context, agentID string) ([]*budget.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*budget.Budget, 0)
	for _, b := range s.byID {
		if b.AgentID == agentID {
			out = append(out, cloneBudget(b))
		}
	}
	return out, nil
}

func (s *BudgetStore) Update(ctx context.Context, b *budget.Budget) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[b.ID]; !ok {
		return nil
	}
	s.byID[b.ID] = cloneBudget(b)
	return nil
}

func (s *BudgetStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, id)
	return nil
}

// Debit is the atomic conditional update named in the store contract:
// it fails closed if amount exceeds remaining, equivalent to an
// `UPDATE ... WHERE remaining >= amount` in a SQL-backed store.
func (s *BudgetStore) Debit(ctx context.Context, id string, amount money.Decimal) (*budget.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.byID[id]
	if !ok {
		return nil, apperrors.NotFound("budget", id)
	}
	if b.RemainingAmount.Cmp(amount) < 0 {
		return cloneBudget(b), apperrors.InsufficientBudget(b.RemainingAmount.String(), amount.String())
	}
	updated := cloneBudget(b)
	updated.RemainingAmount = updated.RemainingAmount.Sub(amount)
	updated.UsedAmount = updated.UsedAmount.Add(amount)
	s.byID[id] = updated
	return cloneBudget(updated), nil
}

// Rollover re-rolls the budget only if its stored period_end has not
// already been advanced past now by a concurrent caller.
func (s *BudgetStore) Rollover(ctx context.Context, id string, now time.Time, newPeriodEnd *time.Time) (*budget.Budget, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.byID[id]
	if !ok {
		return nil, false, apperrors.NotFound("budget", id)
	}
	if !b.IsExpired(now) {
		return cloneBudget(b), false, nil
	}
	updated := cloneBudget(b)
	updated.UsedAmount = money.Zero()
	updated.RemainingAmount = updated.Amount
	updated.PeriodStart = now
	updated.PeriodEnd = newPeriodEnd
	updated.UpdatedAt = now
	s.byID[id] = updated
	return cloneBudget(updated), true, nil
}

func (s *BudgetStore) ListExpired(ctx context.Context, now time.Time) ([]*budget.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*budget.Budget, 0)
	for _, b := range s.byID {
		if b.IsExpired(now) {
			out = append(out, cloneBudget(b))
		}
	}
	return out, nil
}
