// Package notify implements the Notifier seam: best-effort delivery of
// owner-facing lifecycle notices, distinct from the signed webhook
// pipeline (C6), which targets the agent's own endpoint rather than
// the owner directly.
package notify

import (
	"context"

	"github.com/R3E-Network/agent-proposal-engine/internal/domain/proposal"
	"github.com/R3E-Network/agent-proposal-engine/internal/platform/logging"
)

// LogNotifier satisfies orchestrator.Notifier by writing a structured
// log line. Used in tests and as the fallback when no richer notifier
// is wired.
type LogNotifier struct {
	logger *logging.Logger
}

func NewLogNotifier(logger *logging.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) NotifyManualApprovalNeeded(ctx context.Context, p *proposal.Proposal) {
	n.logger.Info(ctx, "manual approval needed", map[string]interface{}{
		"proposal_id": p.ID, "agent_id": p.AgentID, "owner": p.Owner,
	})
}

func (n *LogNotifier) NotifyRuleViolations(ctx context.Context, p *proposal.Proposal, violations []string) {
	n.logger.Info(ctx, "proposal held for rule violations", map[string]interface{}{
		"proposal_id": p.ID, "agent_id": p.AgentID, "owner": p.Owner, "violations": violations,
	})
}

func (n *LogNotifier) NotifyBudgetUnavailable(ctx context.Context, p *proposal.Proposal, err error) {
	n.logger.Info(ctx, "proposal held for insufficient budget", map[string]interface{}{
		"proposal_id": p.ID, "agent_id": p.AgentID, "owner": p.Owner, "error": err.Error(),
	})
}
