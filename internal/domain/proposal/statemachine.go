package proposal

import (
	"context"
	"sort"
	"time"

	"github.com/R3E-Network/agent-proposal-engine/internal/platform/apperrors"
	"github.com/R3E-Network/agent-proposal-engine/internal/platform/clock"
	"github.com/R3E-Network/agent-proposal-engine/internal/platform/idgen"
	"github.com/R3E-Network/agent-proposal-engine/internal/platform/money"
)

// legalEdges enumerates every allowed (from, to) transition. Anything
// not listed here is rejected with a state error.
var legalEdges = map[Status]map[Status]bool{
	StatusPending:   {StatusApproved: true, StatusRejected: true},
	StatusApproved:  {StatusExecuting: true},
	StatusExecuting: {StatusExecuted: true, StatusFailed: true},
}

func isLegal(from, to Status) bool {
	edges, ok := legalEdges[from]
	if !ok {
		return false
	}
	return edges[to]
}

// legalTargets lists the states `from` may legally move to, for
// reporting as a state error's expected_states (§7). Empty for a
// terminal status.
func legalTargets(from Status) []string {
	edges, ok := legalEdges[from]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(edges))
	for to := range edges {
		out = append(out, string(to))
	}
	sort.Strings(out)
	return out
}

// Store is the persistence seam for proposals. Transition must be
// implemented as a single atomic conditional update (CAS on status, a
// per-id mutex, or a serialized queue) so that only one of several
// concurrent attempts on the same (from, to) edge can succeed; the
// others must fail with an IllegalTransition error, never partially
// apply.
type Store interface {
	Create(ctx context.Context, p *Proposal) error
	Get(ctx context.Context, id string) (*Proposal, error)
	List(ctx context.Context, owner string, filter ListFilter) ([]*Proposal, error)
	Transition(ctx context.Context, id string, from, to Status, mutate func(*Proposal)) (*Proposal, error)
	// DailySpent sums amount across this agent's executed proposals
	// with decided_at on or after dayStart, across all tokens/chains
	// (the resolved, agent-global daily-sum scope).
	DailySpent(ctx context.Context, agentID string, dayStart time.Time) (money.Decimal, error)
}

// Machine implements the Proposal State Machine contract (C4).
type Machine struct {
	store Store
	clock clock.Clock
	ids   idgen.Generator
}

func NewMachine(store Store, c clock.Clock, ids idgen.Generator) *Machine {
	if c == nil {
		c = clock.Real()
	}
	if ids == nil {
		ids = idgen.Default
	}
	return &Machine{store: store, clock: c, ids: ids}
}

func (m *Machine) Create(ctx context.Context, input CreateInput) (*Proposal, error) {
	now := m.clock.Now()
	p := &Proposal{
		ID:        m.ids.New(),
		AgentID:   input.AgentID,
		Owner:     input.Owner,
		Recipient: input.Recipient,
		Amount:    input.Amount,
		Token:     input.Token,
		ChainID:   input.ChainID,
		Reason:    input.Reason,
		BudgetID:  input.BudgetID,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (m *Machine) Get(ctx context.Context, id string) (*Proposal, error) {
	p, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperrors.NotFound("proposal", id)
	}
	return p, nil
}

func (m *Machine) List(ctx context.Context, owner string, filter ListFilter) ([]*Proposal, error) {
	return m.store.List(ctx, owner, filter)
}

// Transition attempts to move a proposal from `from` to `to`. mutate
// sets the fields that belong to this specific transition (tx_hash,
// error_message, decided_at, executed_at); it is only invoked if the
// transition is legal and the store's compare-and-swap succeeds.
func (m *Machine) Transition(ctx context.Context, id string, from, to Status, mutate func(*Proposal)) (*Proposal, error) {
	if !isLegal(from, to) {
		return nil, apperrors.IllegalTransition(string(from), string(from), string(to), legalTargets(from))
	}
	now := m.clock.Now()
	wrapped := func(p *Proposal) {
		p.Status = to
		p.UpdatedAt = now
		if mutate != nil {
			mutate(p)
		}
	}
	return m.store.Transition(ctx, id, from, to, wrapped)
}

// Approve moves pending -> approved. budgetID, when non-nil, is
// recorded as the budget resolved for this proposal (e.g. by the
// ledger's own CheckAvailability lookup at step 5 of the auto-execute
// algorithm); when nil, any budget_id already set at creation time is
// left untouched.
func (m *Machine) Approve(ctx context.Context, id string, budgetID *string) (*Proposal, error) {
	now := m.clock.Now()
	return m.Transition(ctx, id, StatusPending, StatusApproved, func(p *Proposal) {
		p.DecidedAt = &now
		if budgetID != nil {
			p.BudgetID = budgetID
		}
	})
}

// Reject moves pending -> rejected, carrying a reason.
func (m *Machine) Reject(ctx context.Context, id, reason string) (*Proposal, error) {
	now := m.clock.Now()
	return m.Transition(ctx, id, StatusPending, StatusRejected, func(p *Proposal) {
		p.DecidedAt = &now
		p.ErrorMessage = &reason
	})
}

// BeginExecuting moves approved -> executing, the single entry point
// into execution.
func (m *Machine) BeginExecuting(ctx context.Context, id string) (*Proposal, error) {
	return m.Transition(ctx, id, StatusApproved, StatusExecuting, nil)
}

// MarkExecuted moves executing -> executed, recording the transaction
// hash.
func (m *Machine) MarkExecuted(ctx context.Context, id, txHash string) (*Proposal, error) {
	now := m.clock.Now()
	return m.Transition(ctx, id, StatusExecuting, StatusExecuted, func(p *Proposal) {
		p.TxHash = &txHash
		p.ExecutedAt = &now
	})
}

// MarkFailed moves executing -> failed, recording the error.
func (m *Machine) MarkFailed(ctx context.Context, id, errMsg string) (*Proposal, error) {
	return m.Transition(ctx, id, StatusExecuting, StatusFailed, func(p *Proposal) {
		p.ErrorMessage = &errMsg
	})
}

// DailySpent delegates to the store's agent-global daily sum.
func (m *Machine) DailySpent(ctx context.Context, agentID string) (money.Decimal, error) {
	now := m.clock.Now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return m.store.DailySpent(ctx, agentID, dayStart)
}
