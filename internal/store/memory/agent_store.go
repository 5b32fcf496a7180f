// Package memory implements in-memory, mutex-guarded stores for
// every domain entity, satisfying the Store interfaces named in the
// domain packages. Intended for tests and for running the demo binary
// without a database.
package memory

import (
	"context"
	"sync"

	"github.com/R3E-Network/agent-proposal-engine/internal/domain/agent"
)

// AgentStore is an in-memory agent.Store.
type AgentStore struct {
	mu   sync.RWMutex
	byID map[string]*agent.Agent
}

func NewAgentStore() *AgentStore {
	return &AgentStore{byID: make(map[string]*agent.Agent)}
}

func clone(a *agent.Agent) *agent.Agent {
	cp := *a
	return &cp
}

func (s *AgentStore) Create(ctx context.Context, a *agent.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[a.ID] = clone(a)
	return nil
}

func (s *AgentStore) Get(ctx context.Context, id string) (*agent.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	return clone(a), nil
}

func (s *AgentStore) GetByAPIKeyHash(ctx context.Context, hash string) (*agent.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.byID {
		if a.APIKeyHash == hash {
			return clone(a), nil
		}
	}
	return nil, nil
}

func (s *AgentStore) List(ctx context.Context, owner string) ([]*agent.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*agent.Agent, 0)
	for _, a := range s.byID {
		if a.Owner == owner {
			out = append(out, clone(a))
		}
	}
	return out, nil
}

func (s *AgentStore) Update(ctx context.Context, a *agent.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.byID[a.ID]
	if !ok {
		return nil
	}
	updated := clone(a)
	updated.SetWebhookSecret(existing.WebhookSecret())
	s.byID[a.ID] = updated
	return nil
}

func (s *AgentStore) Count(ctx context.Context, owner string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, a := range s.byID {
		if a.Owner == owner {
			n++
		}
	}
	return n, nil
}

// BulkSetStatus is the single critical section guarding PauseAll/ResumeAll:
// holding the write lock for the whole scan means no concurrent
// ValidateApiKey lookup observes a half-updated set of agents.
func (s *AgentStore) BulkSetStatus(ctx context.Context, owner string, from, to agent.Status, disableAutoExecute bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, a := range s.byID {
		if a.Owner != owner || a.Status != from {
			continue
		}
		updated := clone(a)
		updated.Status = to
		if disableAutoExecute {
			updated.AutoExecuteEnabled = false
		}
		s.byID[id] = updated
		n++
	}
	return n, nil
}
