package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/R3E-Network/agent-proposal-engine/internal/domain/webhook"
)

// WebhookStore is an in-memory webhook.Store. PickDue atomically claims
// a due delivery by flipping it to delivering under the store lock, so
// a second concurrent scanner cannot re-pick the same row.
type WebhookStore struct {
	mu   sync.Mutex
	byID map[string]*webhook.Delivery
}

func NewWebhookStore() *WebhookStore {
	return &WebhookStore{byID: make(map[string]*webhook.Delivery)}
}

func cloneDelivery(d *webhook.Delivery) *webhook.Delivery {
	cp := *d
	if d.LastAttemptAt != nil {
		t := *d.LastAttemptAt
		cp.LastAttemptAt = &t
	}
	payload := make([]byte, len(d.Payload))
	copy(payload, d.Payload)
	cp.Payload = payload
	return &cp
}

func (s *WebhookStore) Create(ctx context.Context, d *webhook.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[d.ID] = cloneDelivery(d)
	return nil
}

func (s *WebhookStore) Get(ctx context.Context, id string) (*webhook.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	return cloneDelivery(d), nil
}

func (s *WebhookStore) ListByAgent(ctx context.Context, agentID string, limit int) ([]*webhook.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*webhook.Delivery, 0)
	for _, d := range s.byID {
		if d.AgentID == agentID {
			out = append(out, cloneDelivery(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *WebhookStore) ListFailed(ctx context.Context, agentID string) ([]*webhook.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*webhook.Delivery, 0)
	for _, d := range s.byID {
		if d.AgentID == agentID && d.Status == webhook.StatusFailed {
			out = append(out, cloneDelivery(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// PickDue finds one delivery in pending/retrying whose next_retry_at
// has arrived and claims it by marking it delivering, all under the
// store lock.
func (s *WebhookStore) PickDue(ctx context.Context, now time.Time) (*webhook.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, d := range s.byID {
		if d.Status != webhook.StatusPending && d.Status != webhook.StatusRetrying {
			continue
		}
		if d.NextRetryAt.After(now) {
			continue
		}
		claimed := cloneDelivery(d)
		claimed.Status = webhook.StatusDelivering
		s.byID[id] = claimed
		return cloneDelivery(claimed), nil
	}
	return nil, nil
}

func (s *WebhookStore) Save(ctx context.Context, d *webhook.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[d.ID] = cloneDelivery(d)
	return nil
}
