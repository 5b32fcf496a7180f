// Package proposal implements the Proposal State Machine (C4): the
// proposal entity, its legal transitions, and per-proposal exclusion.
package proposal

import (
	"time"

	"github.com/R3E-Network/agent-proposal-engine/internal/platform/money"
)

// Status is one of the six legal proposal states.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusExecuting Status = "executing"
	StatusExecuted  Status = "executed"
	StatusFailed    Status = "failed"
)

// IsTerminal reports whether no further transition can occur.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusRejected, StatusExecuted, StatusFailed:
		return true
	default:
		return false
	}
}

// Actor identifies who drove a transition, for the audit log.
type Actor string

const (
	ActorAgent  Actor = "agent"
	ActorOwner  Actor = "owner"
	ActorSystem Actor = "system"
)

// Proposal is a structured request for a single payment.
type Proposal struct {
	ID       string
	AgentID  string
	Owner    string
	Recipient string
	Amount   money.Decimal
	Token    string
	ChainID  int64
	Reason   string

	BudgetID *string

	Status       Status
	TxHash       *string
	ErrorMessage *string

	CreatedAt time.Time
	UpdatedAt time.Time
	DecidedAt *time.Time
	ExecutedAt *time.Time
}

// CreateInput carries the fields an agent supplies when submitting a
// proposal.
type CreateInput struct {
	AgentID   string
	Owner     string
	Recipient string
	Amount    money.Decimal
	Token     string
	ChainID   int64
	Reason    string
	BudgetID  *string
}

// ListFilter narrows a proposal listing.
type ListFilter struct {
	AgentID string
	Status  Status
	Limit   int
}
