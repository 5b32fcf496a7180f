package memory

import (
	"context"
	"sync"
	"time"

	"github.com/R3E-Network/agent-proposal-engine/internal/domain/proposal"
	"github.com/R3E-Network/agent-proposal-engine/internal/platform/apperrors"
	"github.com/R3E-Network/agent-proposal-engine/internal/platform/money"
)

// ProposalStore is an in-memory proposal.Store. Transition holds the
// store-wide lock for its compare-and-swap, so two concurrent attempts
// on the same (from, to) edge can never both succeed.
type ProposalStore struct {
	mu   sync.Mutex
	byID map[string]*proposal.Proposal
}

func NewProposalStore() *ProposalStore {
	return &ProposalStore{byID: make(map[string]*proposal.Proposal)}
}

func cloneProposal(p *proposal.Proposal) *proposal.Proposal {
	cp := *p
	return &cp
}

func (s *ProposalStore) Create(ctx context.Context, p *proposal.Proposal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[p.ID] = cloneProposal(p)
	return nil
}

func (s *ProposalStore) Get(ctx context.Context, id string) (*proposal.Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	return cloneProposal(p), nil
}

func (s *ProposalStore) List(ctx context.Context, owner string, filter proposal.ListFilter) ([]*proposal.Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*proposal.Proposal, 0)
	for _, p := range s.byID {
		if p.Owner != owner {
			continue
		}
		if filter.AgentID != "" && p.AgentID != filter.AgentID {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		out = append(out, cloneProposal(p))
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Transition is the single atomic conditional update: it checks the
// current status still equals `from` under the store lock before
// applying mutate, so a losing concurrent caller observes an
// IllegalTransition error rather than a partially-applied change.
func (s *ProposalStore) Transition(ctx context.Context, id string, from, to proposal.Status, mutate func(*proposal.Proposal)) (*proposal.Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return nil, apperrors.NotFound("proposal", id)
	}
	if p.Status != from {
		return nil, apperrors.IllegalTransition(string(p.Status), string(from), string(to), []string{string(from)})
	}
	updated := cloneProposal(p)
	if mutate != nil {
		mutate(updated)
	}
	s.byID[id] = updated
	return cloneProposal(updated), nil
}

// DailySpent sums amount across agentID's executed proposals decided
// on or after dayStart, agent-global across tokens/chains.
func (s *ProposalStore) DailySpent(ctx context.Context, agentID string, dayStart time.Time) (money.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := money.Zero()
	for _, p := range s.byID {
		if p.AgentID != agentID || p.Status != proposal.StatusExecuted {
			continue
		}
		if p.DecidedAt == nil || p.DecidedAt.Before(dayStart) {
			continue
		}
		total = total.Add(p.Amount)
	}
	return total, nil
}
