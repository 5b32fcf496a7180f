package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/R3E-Network/agent-proposal-engine/internal/domain/activity"
)

// ActivityStore is an in-memory activity.Store.
type ActivityStore struct {
	mu      sync.Mutex
	entries []*activity.Entry
	audits  []*activity.AuditEntry
}

func NewActivityStore() *ActivityStore {
	return &ActivityStore{}
}

func (s *ActivityStore) RecordActivity(ctx context.Context, e *activity.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	s.entries = append(s.entries, &cp)
	return nil
}

func (s *ActivityStore) RecordAudit(ctx context.Context, e *activity.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	s.audits = append(s.audits, &cp)
	return nil
}

func (s *ActivityStore) ListByAgent(ctx context.Context, agentID string, limit int) ([]*activity.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*activity.Entry, 0)
	for _, e := range s.entries {
		if e.AgentID == agentID {
			out = append(out, e)
		}
	}
	return mostRecentFirst(out, limit), nil
}

func (s *ActivityStore) ListByOwner(ctx context.Context, owner string, limit int) ([]*activity.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*activity.Entry, 0)
	for _, e := range s.entries {
		if e.Owner == owner {
			out = append(out, e)
		}
	}
	return mostRecentFirst(out, limit), nil
}

func (s *ActivityStore) ListByActionKind(ctx context.Context, owner string, kind activity.ActionKind, limit int) ([]*activity.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*activity.Entry, 0)
	for _, e := range s.entries {
		if e.Owner == owner && e.ActionKind == kind {
			out = append(out, e)
		}
	}
	return mostRecentFirst(out, limit), nil
}

func mostRecentFirst(entries []*activity.Entry, limit int) []*activity.Entry {
	sort.Slice(entries, func(i, j int) bool { return entries[i].CreatedAt.After(entries[j].CreatedAt) })
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}
