package budget

import (
	"context"
	"strings"
	"time"

	"github.com/R3E-Network/agent-proposal-engine/internal/platform/apperrors"
	"github.com/R3E-Network/agent-proposal-engine/internal/platform/clock"
	"github.com/R3E-Network/agent-proposal-engine/internal/platform/idgen"
	"github.com/R3E-Network/agent-proposal-engine/internal/platform/money"
)

// Store is the persistence seam for budgets. Debit and Rollover must be
// implemented as an atomic conditional update (a per-budget critical
// section, or a `WHERE remaining >= amount` / `WHERE period_end <= now`
// style update) so that concurrent callers can never both succeed past
// the invariant.
type Store interface {
	Create(ctx context.Context, b *Budget) error
	Get(ctx context.Context, id string) (*Budget, error)
	List(ctx context.Context, agentID string) ([]*Budget, error)
	Update(ctx context.Context, b *Budget) error
	Delete(ctx context.Context, id string) error

	// Debit atomically subtracts amount from remaining, failing with a
	// Capacity error if amount > remaining. Returns the updated budget.
	Debit(ctx context.Context, id string, amount money.Decimal) (*Budget, error)

	// Rollover atomically resets the budget named by id if (and only
	// if) its stored period_end is still <= now, to avoid a second
	// concurrent caller re-rolling an already-rolled budget. Returns
	// the budget (rolled or not) and whether a rollover happened.
	Rollover(ctx context.Context, id string, now time.Time, newPeriodEnd *time.Time) (*Budget, bool, error)

	// ListExpired returns every budget (across all agents) whose
	// period has ended at or before now, for the periodic sweep.
	ListExpired(ctx context.Context, now time.Time) ([]*Budget, error)
}

// Ledger implements the Budget Ledger contract (C2).
type Ledger struct {
	store Store
	clock clock.Clock
	ids   idgen.Generator
}

func NewLedger(store Store, c clock.Clock, ids idgen.Generator) *Ledger {
	if c == nil {
		c = clock.Real()
	}
	if ids == nil {
		ids = idgen.Default
	}
	return &Ledger{store: store, clock: c, ids: ids}
}

func (l *Ledger) Create(ctx context.Context, input CreateInput) (*Budget, error) {
	now := l.clock.Now()
	b := &Budget{
		ID:              l.ids.New(),
		AgentID:         input.AgentID,
		Owner:           input.Owner,
		Amount:          input.Amount,
		Token:           strings.ToUpper(input.Token),
		ChainID:         input.ChainID,
		Period:          input.Period,
		UsedAmount:      money.Zero(),
		RemainingAmount: input.Amount,
		PeriodStart:     now,
		PeriodEnd:       NextPeriodEnd(input.Period, now),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := l.store.Create(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// Get fetches a budget, rolling it over first if its period has
// expired.
func (l *Ledger) Get(ctx context.Context, id string) (*Budget, error) {
	b, err := l.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, apperrors.NotFound("budget", id)
	}
	return l.rollIfExpired(ctx, b)
}

// List returns every budget for agentID, rolling over any that have
// expired.
func (l *Ledger) List(ctx context.Context, agentID string) ([]*Budget, error) {
	budgets, err := l.store.List(ctx, agentID)
	if err != nil {
		return nil, err
	}
	out := make([]*Budget, 0, len(budgets))
	for _, b := range budgets {
		rolled, err := l.rollIfExpired(ctx, b)
		if err != nil {
			return nil, err
		}
		out = append(out, rolled)
	}
	return out, nil
}

func (l *Ledger) rollIfExpired(ctx context.Context, b *Budget) (*Budget, error) {
	now := l.clock.Now()
	if !b.IsExpired(now) {
		return b, nil
	}
	rolled, _, err := l.store.Rollover(ctx, b.ID, now, NextPeriodEnd(b.Period, now))
	if err != nil {
		return nil, err
	}
	return rolled, nil
}

// Update applies an amount edit. Used is preserved; remaining is
// recomputed. If the new remaining would be negative, the edit is
// rejected.
func (l *Ledger) Update(ctx context.Context, id, owner string, newAmount money.Decimal) (*Budget, error) {
	b, err := l.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.Owner != owner {
		return nil, apperrors.OwnerMismatch("budget")
	}
	newRemaining := newAmount.Sub(b.UsedAmount)
	if newRemaining.IsNegative() {
		return nil, apperrors.InvalidAmount("new amount would make remaining negative given already-used amount")
	}
	b.Amount = newAmount
	b.RemainingAmount = newRemaining
	b.UpdatedAt = l.clock.Now()
	if err := l.store.Update(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (l *Ledger) Delete(ctx context.Context, id, owner string) error {
	b, err := l.Get(ctx, id)
	if err != nil {
		return err
	}
	if b.Owner != owner {
		return apperrors.OwnerMismatch("budget")
	}
	return l.store.Delete(ctx, id)
}

// CheckAvailability selects the most recently created budget matching
// (agentID, token, chainID). If its remaining amount is below amount,
// it returns that budget together with an InsufficientBudget error;
// other matching budgets are not tried.
func (l *Ledger) CheckAvailability(ctx context.Context, agentID string, amount money.Decimal, token string, chainID *int64) (*Budget, error) {
	budgets, err := l.List(ctx, agentID)
	if err != nil {
		return nil, err
	}
	var best *Budget
	for _, b := range budgets {
		if !b.Matches(token, chainID) {
			continue
		}
		if best == nil || b.CreatedAt.After(best.CreatedAt) {
			best = b
		}
	}
	if best == nil {
		return nil, apperrors.NotFound("budget", "no matching budget for token/chain")
	}
	if best.RemainingAmount.Cmp(amount) < 0 {
		return best, apperrors.InsufficientBudget(best.RemainingAmount.String(), amount.String())
	}
	return best, nil
}

// Debit atomically subtracts amount from the named budget's remaining.
func (l *Ledger) Debit(ctx context.Context, budgetID string, amount money.Decimal) (*Budget, error) {
	return l.store.Debit(ctx, budgetID, amount)
}

// ResetExpired sweeps every budget whose period has ended and rolls it
// over, returning the count rolled. This is the background-job
// counterpart to the lazy, read-time rollover.
func (l *Ledger) ResetExpired(ctx context.Context) (int, error) {
	now := l.clock.Now()
	expired, err := l.store.ListExpired(ctx, now)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, b := range expired {
		_, rolled, err := l.store.Rollover(ctx, b.ID, now, NextPeriodEnd(b.Period, now))
		if err != nil {
			return count, err
		}
		if rolled {
			count++
		}
	}
	return count, nil
}

// Utilization reports used/amount per budget for agentID.
type Utilization struct {
	BudgetID  string
	Token     string
	Amount    money.Decimal
	Used      money.Decimal
	Remaining money.Decimal
}

func (l *Ledger) Utilization(ctx context.Context, agentID string) ([]Utilization, error) {
	budgets, err := l.List(ctx, agentID)
	if err != nil {
		return nil, err
	}
	out := make([]Utilization, 0, len(budgets))
	for _, b := range budgets {
		out = append(out, Utilization{
			BudgetID:  b.ID,
			Token:     b.Token,
			Amount:    b.Amount,
			Used:      b.UsedAmount,
			Remaining: b.RemainingAmount,
		})
	}
	return out, nil
}
