// Package orchestrator implements the Auto-Execute Orchestrator (C5):
// the component that drives a proposal from pending submission through
// rule/budget checks into execution, composing every other domain
// package and emitting webhooks/activity/audit at each transition.
package orchestrator

import (
	"context"

	"github.com/R3E-Network/agent-proposal-engine/internal/domain/activity"
	"github.com/R3E-Network/agent-proposal-engine/internal/domain/agent"
	"github.com/R3E-Network/agent-proposal-engine/internal/domain/budget"
	"github.com/R3E-Network/agent-proposal-engine/internal/domain/execution"
	"github.com/R3E-Network/agent-proposal-engine/internal/domain/proposal"
	"github.com/R3E-Network/agent-proposal-engine/internal/domain/rules"
	"github.com/R3E-Network/agent-proposal-engine/internal/domain/webhook"
	"github.com/R3E-Network/agent-proposal-engine/internal/platform/apperrors"
	"github.com/R3E-Network/agent-proposal-engine/internal/platform/logging"
)

// Notifier delivers best-effort owner notifications, per the seam
// named in the design notes. Failures are logged, never propagated.
type Notifier interface {
	NotifyManualApprovalNeeded(ctx context.Context, p *proposal.Proposal)
	NotifyRuleViolations(ctx context.Context, p *proposal.Proposal, violations []string)
	NotifyBudgetUnavailable(ctx context.Context, p *proposal.Proposal, err error)
}

// LifecycleResult is what every orchestrator entry point returns: the
// proposal in whatever state it landed, plus the execution result when
// it got that far.
type LifecycleResult struct {
	Proposal *proposal.Proposal
	Executed *execution.Result
}

// Orchestrator composes every domain component into the proposal
// lifecycle described in the component design.
type Orchestrator struct {
	agents   *agent.Registry
	budgets  *budget.Ledger
	rules    *rules.Engine
	machine  *proposal.Machine
	webhooks *webhook.Pipeline
	bridge   *execution.Bridge
	activity *activity.Log
	notifier Notifier
	logger   *logging.Logger
}

func New(
	agents *agent.Registry,
	budgets *budget.Ledger,
	ruleEngine *rules.Engine,
	machine *proposal.Machine,
	webhooks *webhook.Pipeline,
	bridge *execution.Bridge,
	activityLog *activity.Log,
	notifier Notifier,
	logger *logging.Logger,
) *Orchestrator {
	return &Orchestrator{
		agents: agents, budgets: budgets, rules: ruleEngine, machine: machine,
		webhooks: webhooks, bridge: bridge, activity: activityLog, notifier: notifier, logger: logger,
	}
}

func (o *Orchestrator) emit(ctx context.Context, p *proposal.Proposal, kind activity.ActionKind, actor proposal.Actor, event webhook.EventType, data interface{}) {
	var actorType activity.ActorType
	switch actor {
	case proposal.ActorOwner:
		actorType = activity.ActorTypeOwner
	case proposal.ActorSystem:
		actorType = activity.ActorTypeSystem
	default:
		actorType = activity.ActorTypeAgent
	}
	o.activity.Record(ctx, p.AgentID, p.Owner, kind, actorType, "proposal", p.ID, nil)
	if _, err := o.webhooks.Trigger(ctx, p.AgentID, event, data); err != nil && o.logger != nil {
		o.logger.Warn(ctx, "webhook trigger failed", map[string]interface{}{"proposal_id": p.ID, "event": string(event), "error": err.Error()})
	}
}

// ProcessNew runs the full 10-step auto-execute algorithm for a freshly
// submitted proposal.
func (o *Orchestrator) ProcessNew(ctx context.Context, input proposal.CreateInput) (LifecycleResult, error) {
	// 1. Create the proposal in pending.
	p, err := o.machine.Create(ctx, input)
	if err != nil {
		return LifecycleResult{}, err
	}

	// 2. Emit proposal.created webhook + activity + audit.
	o.emit(ctx, p, activity.ActionProposalCreated, proposal.ActorSystem, webhook.EventProposalCreated, proposalSummary(p))

	ag, err := o.agents.Get(ctx, p.AgentID)
	if err != nil {
		return LifecycleResult{Proposal: p}, err
	}

	// 3. Manual approval required: not active, or auto-execute disabled.
	if !ag.IsActive() || !ag.AutoExecuteEnabled {
		if o.notifier != nil {
			o.notifier.NotifyManualApprovalNeeded(ctx, p)
		}
		return LifecycleResult{Proposal: p}, nil
	}

	// 4. Rule check.
	dailySpent, err := o.machine.DailySpent(ctx, p.AgentID)
	if err != nil {
		return LifecycleResult{Proposal: p}, err
	}
	result := o.rules.Check(ag, rules.Candidate{Amount: p.Amount, Token: p.Token, Recipient: p.Recipient, ChainID: p.ChainID}, dailySpent)
	if !result.Passed {
		if o.notifier != nil {
			o.notifier.NotifyRuleViolations(ctx, p, result.Violations)
		}
		return LifecycleResult{Proposal: p}, nil
	}

	// 5. Budget availability check. Unconditional per spec.md §4.5 step
	// 5 (the "if budget_id is set" conditional only applies to the
	// debit at step 7): CheckAvailability resolves the best matching
	// budget for this (agent, token, chain) itself, regardless of
	// whether the caller supplied a budget_id at submission time.
	budgetMatch, err := o.budgets.CheckAvailability(ctx, p.AgentID, p.Amount, p.Token, &p.ChainID)
	if err != nil {
		if o.notifier != nil {
			o.notifier.NotifyBudgetUnavailable(ctx, p, err)
		}
		return LifecycleResult{Proposal: p}, nil
	}

	return o.approveAndExecute(ctx, p, proposal.ActorSystem, &budgetMatch.ID)
}

// ApproveAndExecute performs steps 6-10 with actor=owner, skipping the
// rule check (owner override). Budget debit still applies.
func (o *Orchestrator) ApproveAndExecute(ctx context.Context, proposalID, owner string) (LifecycleResult, error) {
	p, err := o.machine.Get(ctx, proposalID)
	if err != nil {
		return LifecycleResult{}, err
	}
	if p.Owner != owner {
		return LifecycleResult{}, apperrors.OwnerMismatch("proposal")
	}
	if p.Status != proposal.StatusPending {
		return LifecycleResult{}, apperrors.IllegalTransition(string(p.Status), string(proposal.StatusPending), string(proposal.StatusApproved), []string{string(proposal.StatusPending)})
	}
	// Owner override: no fresh availability lookup runs here (spec.md
	// §4.5, ApproveAndExecute), so the budget debited at step 7 is
	// whichever one the proposal already carries (from submission, or
	// from a prior auto-execute attempt that resolved one).
	return o.approveAndExecute(ctx, p, proposal.ActorOwner, nil)
}

func (o *Orchestrator) approveAndExecute(ctx context.Context, p *proposal.Proposal, actor proposal.Actor, resolvedBudgetID *string) (LifecycleResult, error) {
	// 6. pending -> approved.
	approved, err := o.machine.Approve(ctx, p.ID, resolvedBudgetID)
	if err != nil {
		return LifecycleResult{Proposal: p}, err
	}
	p = approved
	o.emit(ctx, p, activity.ActionProposalApproved, actor, webhook.EventProposalApproved, proposalSummary(p))

	// 7. Budget debit, if the proposal is tied to one.
	if p.BudgetID != nil {
		if _, err := o.budgets.Debit(ctx, *p.BudgetID, p.Amount); err != nil {
			rejected, rejectErr := o.machine.Reject(ctx, p.ID, "budget deduction failed")
			if rejectErr != nil {
				return LifecycleResult{Proposal: p}, rejectErr
			}
			p = rejected
			o.emit(ctx, p, activity.ActionProposalRejected, proposal.ActorSystem, webhook.EventProposalRejected, proposalSummary(p))
			return LifecycleResult{Proposal: p}, nil
		}
	}

	// 8. approved -> executing.
	executing, err := o.machine.BeginExecuting(ctx, p.ID)
	if err != nil {
		return LifecycleResult{Proposal: p}, err
	}
	p = executing
	o.emit(ctx, p, activity.ActionPaymentExecuting, proposal.ActorSystem, webhook.EventPaymentExecuting, proposalSummary(p))

	// 9. Invoke the execution bridge.
	execResult, execErr := o.bridge.Execute(ctx, execution.Request{
		From: p.Owner, To: p.Recipient, Amount: p.Amount.String(), Token: p.Token, ChainID: p.ChainID,
		Memo: p.Reason,
	})
	if execErr != nil {
		failed, err := o.machine.MarkFailed(ctx, p.ID, execErr.Error())
		if err != nil {
			return LifecycleResult{Proposal: p}, err
		}
		p = failed
		o.emit(ctx, p, activity.ActionPaymentFailed, proposal.ActorSystem, webhook.EventPaymentFailed, proposalSummary(p))
		return LifecycleResult{Proposal: p}, nil
	}

	executed, err := o.machine.MarkExecuted(ctx, p.ID, execResult.TxHash)
	if err != nil {
		return LifecycleResult{Proposal: p}, err
	}
	p = executed

	// 10. Emit the terminal webhook + activity + audit.
	o.emit(ctx, p, activity.ActionPaymentExecuted, proposal.ActorSystem, webhook.EventPaymentExecuted, proposalSummary(p))

	return LifecycleResult{Proposal: p, Executed: &execResult}, nil
}

// Reject performs a direct pending -> rejected transition, actor=owner.
func (o *Orchestrator) Reject(ctx context.Context, proposalID, owner, reason string) (*proposal.Proposal, error) {
	p, err := o.machine.Get(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if p.Owner != owner {
		return nil, apperrors.OwnerMismatch("proposal")
	}
	rejected, err := o.machine.Reject(ctx, proposalID, reason)
	if err != nil {
		return nil, err
	}
	o.emit(ctx, rejected, activity.ActionProposalRejected, proposal.ActorOwner, webhook.EventProposalRejected, proposalSummary(rejected))
	return rejected, nil
}

func proposalSummary(p *proposal.Proposal) map[string]interface{} {
	summary := map[string]interface{}{
		"id":        p.ID,
		"agent_id":  p.AgentID,
		"recipient": p.Recipient,
		"amount":    p.Amount.String(),
		"token":     p.Token,
		"chain_id":  p.ChainID,
		"status":    string(p.Status),
	}
	if p.TxHash != nil {
		summary["tx_hash"] = *p.TxHash
	}
	if p.ErrorMessage != nil {
		summary["error_message"] = *p.ErrorMessage
	}
	return summary
}
