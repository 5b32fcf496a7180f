// Package activity implements the append-only Activity/Audit Log that
// every other component publishes to and owner-facing analytics reads
// from.
package activity

import (
	"context"
	"time"

	"github.com/R3E-Network/agent-proposal-engine/internal/platform/clock"
	"github.com/R3E-Network/agent-proposal-engine/internal/platform/idgen"
	"github.com/R3E-Network/agent-proposal-engine/internal/platform/logging"
)

// ActionKind names the activity event, e.g. "proposal_created",
// "payment_executed".
type ActionKind string

const (
	ActionProposalCreated  ActionKind = "proposal_created"
	ActionProposalApproved ActionKind = "proposal_approved"
	ActionProposalRejected ActionKind = "proposal_rejected"
	ActionPaymentExecuting ActionKind = "payment_executing"
	ActionPaymentExecuted  ActionKind = "payment_executed"
	ActionPaymentFailed    ActionKind = "payment_failed"
	ActionBudgetDepleted   ActionKind = "budget_depleted"
	ActionBudgetReset      ActionKind = "budget_reset"
	ActionAgentPaused      ActionKind = "agent_paused"
	ActionAgentResumed     ActionKind = "agent_resumed"
)

// ActorType labels who caused an audited event.
type ActorType string

const (
	ActorTypeAgent  ActorType = "agent"
	ActorTypeOwner  ActorType = "owner"
	ActorTypeSystem ActorType = "system"
)

// Entry is one append-only activity record.
type Entry struct {
	ID         string
	AgentID    string
	Owner      string
	ActionKind ActionKind
	Details    map[string]any
	CreatedAt  time.Time
}

// AuditEntry is one append-only audit record; it supplements activity
// with an actor and a resource reference.
type AuditEntry struct {
	ID           string
	ActorType    ActorType
	Owner        string
	AgentID      string
	ResourceType string
	ResourceID   string
	Details      map[string]any
	CreatedAt    time.Time
}

// Store is the persistence seam for activity and audit entries.
type Store interface {
	RecordActivity(ctx context.Context, e *Entry) error
	RecordAudit(ctx context.Context, e *AuditEntry) error
	ListByAgent(ctx context.Context, agentID string, limit int) ([]*Entry, error)
	ListByOwner(ctx context.Context, owner string, limit int) ([]*Entry, error)
	ListByActionKind(ctx context.Context, owner string, kind ActionKind, limit int) ([]*Entry, error)
}

// Log publishes activity and audit entries. Recording failures are
// logged, never returned, matching §7's propagation policy for
// activity-logging.
type Log struct {
	store  Store
	clock  clock.Clock
	ids    idgen.Generator
	logger *logging.Logger
}

func NewLog(store Store, c clock.Clock, ids idgen.Generator, logger *logging.Logger) *Log {
	if c == nil {
		c = clock.Real()
	}
	if ids == nil {
		ids = idgen.Default
	}
	return &Log{store: store, clock: c, ids: ids, logger: logger}
}

// Record appends one activity entry and one audit entry for the same
// event, best-effort.
func (l *Log) Record(ctx context.Context, agentID, owner string, kind ActionKind, actor ActorType, resourceType, resourceID string, details map[string]any) {
	now := l.clock.Now()

	entry := &Entry{
		ID:         l.ids.New(),
		AgentID:    agentID,
		Owner:      owner,
		ActionKind: kind,
		Details:    details,
		CreatedAt:  now,
	}
	if err := l.store.RecordActivity(ctx, entry); err != nil && l.logger != nil {
		l.logger.Warn(ctx, "failed to record activity", map[string]interface{}{"action": string(kind), "error": err.Error()})
	}

	audit := &AuditEntry{
		ID:           l.ids.New(),
		ActorType:    actor,
		Owner:        owner,
		AgentID:      agentID,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Details:      details,
		CreatedAt:    now,
	}
	if err := l.store.RecordAudit(ctx, audit); err != nil && l.logger != nil {
		l.logger.Warn(ctx, "failed to record audit entry", map[string]interface{}{"resource_type": resourceType, "error": err.Error()})
	}
	if l.logger != nil {
		l.logger.LogAudit(ctx, string(actor), string(kind), resourceType, resourceID)
	}
}

func (l *Log) ListByAgent(ctx context.Context, agentID string, limit int) ([]*Entry, error) {
	return l.store.ListByAgent(ctx, agentID, limit)
}

func (l *Log) ListByOwner(ctx context.Context, owner string, limit int) ([]*Entry, error) {
	return l.store.ListByOwner(ctx, owner, limit)
}

func (l *Log) ListByActionKind(ctx context.Context, owner string, kind ActionKind, limit int) ([]*Entry, error) {
	return l.store.ListByActionKind(ctx, owner, kind, limit)
}
