package notify

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/R3E-Network/agent-proposal-engine/internal/domain/proposal"
	"github.com/R3E-Network/agent-proposal-engine/internal/platform/logging"
)

// PgNotifier publishes owner notifications over PostgreSQL's
// NOTIFY/LISTEN channel, one channel per owner, so a dashboard process
// can `LISTEN apled_owner_<owner>` without polling a table. Grounded
// on the teacher's pg_notify publish shape; APLE only needs the
// publish half since it never listens for notifications itself.
type PgNotifier struct {
	db     *sql.DB
	logger *logging.Logger
}

func NewPgNotifier(db *sql.DB, logger *logging.Logger) *PgNotifier {
	return &PgNotifier{db: db, logger: logger}
}

type noticeEnvelope struct {
	Kind       string `json:"kind"`
	ProposalID string `json:"proposal_id"`
	AgentID    string `json:"agent_id"`
	Detail     any    `json:"detail,omitempty"`
}

func (n *PgNotifier) publish(ctx context.Context, owner string, envelope noticeEnvelope) {
	payload, err := json.Marshal(envelope)
	if err != nil {
		n.logger.Warn(ctx, "failed to marshal owner notification", map[string]interface{}{"owner": owner, "error": err.Error()})
		return
	}
	channel := ownerChannel(owner)
	if _, err := n.db.ExecContext(ctx, "SELECT pg_notify($1, $2)", channel, string(payload)); err != nil {
		n.logger.Warn(ctx, "failed to publish owner notification", map[string]interface{}{"owner": owner, "channel": channel, "error": err.Error()})
	}
}

func ownerChannel(owner string) string {
	return fmt.Sprintf("apled_owner_%s", owner)
}

func (n *PgNotifier) NotifyManualApprovalNeeded(ctx context.Context, p *proposal.Proposal) {
	n.publish(ctx, p.Owner, noticeEnvelope{Kind: "manual_approval_needed", ProposalID: p.ID, AgentID: p.AgentID})
}

func (n *PgNotifier) NotifyRuleViolations(ctx context.Context, p *proposal.Proposal, violations []string) {
	n.publish(ctx, p.Owner, noticeEnvelope{Kind: "rule_violations", ProposalID: p.ID, AgentID: p.AgentID, Detail: violations})
}

func (n *PgNotifier) NotifyBudgetUnavailable(ctx context.Context, p *proposal.Proposal, err error) {
	n.publish(ctx, p.Owner, noticeEnvelope{Kind: "budget_unavailable", ProposalID: p.ID, AgentID: p.AgentID, Detail: err.Error()})
}
