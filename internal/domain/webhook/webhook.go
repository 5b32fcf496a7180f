// Package webhook implements the Webhook Delivery Pipeline (C6):
// signed, retried, circuit-breaker-aware delivery of lifecycle events
// to each agent's endpoint.
package webhook

import "time"

// EventType is one of the catalog entries in §4.6.
type EventType string

const (
	EventProposalCreated  EventType = "proposal.created"
	EventProposalApproved EventType = "proposal.approved"
	EventProposalRejected EventType = "proposal.rejected"
	EventPaymentExecuting EventType = "payment.executing"
	EventPaymentExecuted  EventType = "payment.executed"
	EventPaymentFailed    EventType = "payment.failed"
	EventBudgetDepleted   EventType = "budget.depleted"
	EventBudgetReset      EventType = "budget.reset"
	EventAgentPaused      EventType = "agent.paused"
	EventAgentResumed     EventType = "agent.resumed"
)

// Status is the delivery lifecycle status.
type Status string

const (
	StatusPending   Status = "pending"
	StatusDelivering Status = "delivering"
	StatusDelivered Status = "delivered"
	StatusRetrying  Status = "retrying"
	StatusFailed    Status = "failed"
)

// MaxAttempts is the hard cap on delivery attempts per §3/§4.6.
const MaxAttempts = 3

// retrySchedule holds the delay before each attempt, indexed by the
// attempt number about to be made (0-based): the first attempt is
// immediate, the second waits 60s, the third waits 300s.
var retrySchedule = [MaxAttempts]time.Duration{0, 60 * time.Second, 300 * time.Second}

// DelayForAttempt returns the delay that must elapse before making the
// attempt numbered attemptIndex (0-based).
func DelayForAttempt(attemptIndex int) time.Duration {
	if attemptIndex < 0 {
		attemptIndex = 0
	}
	if attemptIndex >= MaxAttempts {
		attemptIndex = MaxAttempts - 1
	}
	return retrySchedule[attemptIndex]
}

// Delivery is one WebhookDelivery record.
type Delivery struct {
	ID        string
	AgentID   string
	EventType EventType
	Payload   []byte // opaque JSON event-specific data

	Status Status
	Attempts int

	LastAttemptAt *time.Time
	NextRetryAt   time.Time

	ResponseStatus int
	ErrorMessage   string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsTerminal reports whether no further attempt will be made.
func (d *Delivery) IsTerminal() bool {
	return d.Status == StatusDelivered || d.Status == StatusFailed
}
