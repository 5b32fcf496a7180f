package orchestrator_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/agent-proposal-engine/internal/domain/activity"
	"github.com/R3E-Network/agent-proposal-engine/internal/domain/agent"
	"github.com/R3E-Network/agent-proposal-engine/internal/domain/budget"
	"github.com/R3E-Network/agent-proposal-engine/internal/domain/execution"
	"github.com/R3E-Network/agent-proposal-engine/internal/domain/proposal"
	"github.com/R3E-Network/agent-proposal-engine/internal/domain/rules"
	"github.com/R3E-Network/agent-proposal-engine/internal/domain/webhook"
	"github.com/R3E-Network/agent-proposal-engine/internal/orchestrator"
	"github.com/R3E-Network/agent-proposal-engine/internal/platform/clock"
	"github.com/R3E-Network/agent-proposal-engine/internal/platform/idgen"
	"github.com/R3E-Network/agent-proposal-engine/internal/platform/money"
	"github.com/R3E-Network/agent-proposal-engine/internal/platform/resilience"
	"github.com/R3E-Network/agent-proposal-engine/internal/store/memory"
)

type stubExecBackend struct {
	resp execution.Response
	err  error
}

func (s *stubExecBackend) Execute(ctx context.Context, req execution.Request) (execution.Response, error) {
	return s.resp, s.err
}

type recordingNotifier struct {
	manualApproval  int
	ruleViolations  []string
	budgetUnavailable int
}

func (n *recordingNotifier) NotifyManualApprovalNeeded(ctx context.Context, p *proposal.Proposal) {
	n.manualApproval++
}
func (n *recordingNotifier) NotifyRuleViolations(ctx context.Context, p *proposal.Proposal, violations []string) {
	n.ruleViolations = violations
}
func (n *recordingNotifier) NotifyBudgetUnavailable(ctx context.Context, p *proposal.Proposal, err error) {
	n.budgetUnavailable++
}

type harness struct {
	orch     *orchestrator.Orchestrator
	agents   *agent.Registry
	budgets  *budget.Ledger
	notifier *recordingNotifier
	clock    *clock.Fixed
}

func newHarness(t *testing.T, primary, secondary execution.Backend) *harness {
	t.Helper()
	c := clock.NewFixed(time.Now())
	ids := idgen.UUID{}

	agents := agent.NewRegistry(memory.NewAgentStore(), c, ids, nil)
	budgets := budget.NewLedger(memory.NewBudgetStore(), c, ids)
	ruleEngine := rules.NewEngine()
	machine := proposal.NewMachine(memory.NewProposalStore(), c, ids)
	breakers := resilience.NewRegistry(resilience.DefaultConfig(), c)
	pipeline := webhook.NewPipeline(memory.NewWebhookStore(), agents, breakers, nil, c, ids, 5*time.Second, nil)
	bridge := execution.NewBridge(primary, secondary, breakers, 5*time.Second, nil)
	activityLog := activity.NewLog(memory.NewActivityStore(), c, ids, nil)
	notifier := &recordingNotifier{}

	orch := orchestrator.New(agents, budgets, ruleEngine, machine, pipeline, bridge, activityLog, notifier, nil)
	return &harness{orch: orch, agents: agents, budgets: budgets, notifier: notifier, clock: c}
}

func TestProcessNewHappyPathAutoExecutes(t *testing.T) {
	primary := &stubExecBackend{resp: execution.Response{TxHash: "0xprimary"}}
	h := newHarness(t, primary, &stubExecBackend{})

	a, _, _, err := h.agents.Create(context.Background(), agent.CreateInput{
		Owner: "owner-1", AutoExecuteEnabled: true,
	})
	require.NoError(t, err)

	b, err := h.budgets.Create(context.Background(), budget.CreateInput{
		AgentID: a.ID, Owner: "owner-1", Amount: money.MustParse("5000"), Token: "USDC", Period: budget.PeriodTotal,
	})
	require.NoError(t, err)

	// No budget_id supplied at submission: step 5's availability check
	// must resolve the matching budget itself (spec.md §4.2, §4.5).
	result, err := h.orch.ProcessNew(context.Background(), proposal.CreateInput{
		AgentID: a.ID, Owner: "owner-1", Recipient: "0xabc",
		Amount: money.MustParse("250"), Token: "USDC", ChainID: 1,
	})
	require.NoError(t, err)
	require.Equal(t, proposal.StatusExecuted, result.Proposal.Status)
	require.Equal(t, "0xprimary", result.Executed.TxHash)
	require.Equal(t, 0, h.notifier.manualApproval)
	require.NotNil(t, result.Proposal.BudgetID)
	require.Equal(t, b.ID, *result.Proposal.BudgetID)

	updatedBudget, err := h.budgets.Get(context.Background(), b.ID)
	require.NoError(t, err)
	require.Equal(t, "250", updatedBudget.UsedAmount.String())
	require.Equal(t, "4750", updatedBudget.RemainingAmount.String())
}

func TestProcessNewRequiresManualApprovalWhenAutoExecuteDisabled(t *testing.T) {
	h := newHarness(t, &stubExecBackend{}, &stubExecBackend{})
	a, _, _, err := h.agents.Create(context.Background(), agent.CreateInput{Owner: "owner-1", AutoExecuteEnabled: false})
	require.NoError(t, err)

	result, err := h.orch.ProcessNew(context.Background(), proposal.CreateInput{
		AgentID: a.ID, Owner: "owner-1", Recipient: "0xabc",
		Amount: money.MustParse("100"), Token: "USDC", ChainID: 1,
	})
	require.NoError(t, err)
	require.Equal(t, proposal.StatusPending, result.Proposal.Status)
	require.Equal(t, 1, h.notifier.manualApproval)
}

func TestProcessNewRequiresManualApprovalWhenAgentPaused(t *testing.T) {
	h := newHarness(t, &stubExecBackend{}, &stubExecBackend{})
	a, _, _, err := h.agents.Create(context.Background(), agent.CreateInput{Owner: "owner-1", AutoExecuteEnabled: true})
	require.NoError(t, err)
	_, err = h.agents.PauseAll(context.Background(), "owner-1")
	require.NoError(t, err)

	result, err := h.orch.ProcessNew(context.Background(), proposal.CreateInput{
		AgentID: a.ID, Owner: "owner-1", Recipient: "0xabc",
		Amount: money.MustParse("100"), Token: "USDC", ChainID: 1,
	})
	require.NoError(t, err)
	require.Equal(t, proposal.StatusPending, result.Proposal.Status)
	require.Equal(t, 1, h.notifier.manualApproval)
}

func TestProcessNewStopsOnRuleViolation(t *testing.T) {
	h := newHarness(t, &stubExecBackend{}, &stubExecBackend{})
	maxAmount := money.MustParse("50")
	a, _, _, err := h.agents.Create(context.Background(), agent.CreateInput{
		Owner: "owner-1", AutoExecuteEnabled: true,
		AutoExecuteRules: &agent.AutoExecuteRules{MaxSingleAmount: &maxAmount},
	})
	require.NoError(t, err)

	result, err := h.orch.ProcessNew(context.Background(), proposal.CreateInput{
		AgentID: a.ID, Owner: "owner-1", Recipient: "0xabc",
		Amount: money.MustParse("100"), Token: "USDC", ChainID: 1,
	})
	require.NoError(t, err)
	require.Equal(t, proposal.StatusPending, result.Proposal.Status)
	require.NotEmpty(t, h.notifier.ruleViolations)
}

func TestProcessNewStopsOnBudgetUnavailable(t *testing.T) {
	h := newHarness(t, &stubExecBackend{}, &stubExecBackend{})
	a, _, _, err := h.agents.Create(context.Background(), agent.CreateInput{Owner: "owner-1", AutoExecuteEnabled: true})
	require.NoError(t, err)

	// Agent has no budget configured at all for this token/chain: step
	// 5's unconditional CheckAvailability must block before approval.
	result, err := h.orch.ProcessNew(context.Background(), proposal.CreateInput{
		AgentID: a.ID, Owner: "owner-1", Recipient: "0xabc",
		Amount: money.MustParse("100"), Token: "USDC", ChainID: 1,
	})
	require.NoError(t, err)
	require.Equal(t, proposal.StatusPending, result.Proposal.Status)
	require.Equal(t, 1, h.notifier.budgetUnavailable)
}

func TestProcessNewStopsWhenBudgetInsufficient(t *testing.T) {
	h := newHarness(t, &stubExecBackend{}, &stubExecBackend{})
	a, _, _, err := h.agents.Create(context.Background(), agent.CreateInput{Owner: "owner-1", AutoExecuteEnabled: true})
	require.NoError(t, err)

	_, err = h.budgets.Create(context.Background(), budget.CreateInput{
		AgentID: a.ID, Owner: "owner-1", Amount: money.MustParse("50"), Token: "USDC", Period: budget.PeriodTotal,
	})
	require.NoError(t, err)

	result, err := h.orch.ProcessNew(context.Background(), proposal.CreateInput{
		AgentID: a.ID, Owner: "owner-1", Recipient: "0xabc",
		Amount: money.MustParse("100"), Token: "USDC", ChainID: 1,
	})
	require.NoError(t, err)
	require.Equal(t, proposal.StatusPending, result.Proposal.Status)
	require.Equal(t, 1, h.notifier.budgetUnavailable)
}

func TestProcessNewDebitsBudgetThenExecutes(t *testing.T) {
	primary := &stubExecBackend{resp: execution.Response{TxHash: "0xprimary"}}
	h := newHarness(t, primary, &stubExecBackend{})
	a, _, _, err := h.agents.Create(context.Background(), agent.CreateInput{Owner: "owner-1", AutoExecuteEnabled: true})
	require.NoError(t, err)

	b, err := h.budgets.Create(context.Background(), budget.CreateInput{
		AgentID: a.ID, Owner: "owner-1", Amount: money.MustParse("1000"), Token: "USDC", Period: budget.PeriodTotal,
	})
	require.NoError(t, err)

	result, err := h.orch.ProcessNew(context.Background(), proposal.CreateInput{
		AgentID: a.ID, Owner: "owner-1", Recipient: "0xabc",
		Amount: money.MustParse("300"), Token: "USDC", ChainID: 1, BudgetID: &b.ID,
	})
	require.NoError(t, err)
	require.Equal(t, proposal.StatusExecuted, result.Proposal.Status)

	updatedBudget, err := h.budgets.Get(context.Background(), b.ID)
	require.NoError(t, err)
	require.Equal(t, "700", updatedBudget.RemainingAmount.String())
}

func TestProcessNewStaysPendingWhenBudgetDrainedBeforeSubmission(t *testing.T) {
	h := newHarness(t, &stubExecBackend{}, &stubExecBackend{})
	a, _, _, err := h.agents.Create(context.Background(), agent.CreateInput{Owner: "owner-1", AutoExecuteEnabled: true})
	require.NoError(t, err)

	b, err := h.budgets.Create(context.Background(), budget.CreateInput{
		AgentID: a.ID, Owner: "owner-1", Amount: money.MustParse("100"), Token: "USDC", Period: budget.PeriodTotal,
	})
	require.NoError(t, err)

	// Drain the budget before submission, so step 5's CheckAvailability
	// sees nothing remaining and the proposal never reaches approval.
	_, err = h.budgets.Debit(context.Background(), b.ID, money.MustParse("100"))
	require.NoError(t, err)

	result, err := h.orch.ProcessNew(context.Background(), proposal.CreateInput{
		AgentID: a.ID, Owner: "owner-1", Recipient: "0xabc",
		Amount: money.MustParse("50"), Token: "USDC", ChainID: 1, BudgetID: &b.ID,
	})
	require.NoError(t, err)
	require.Equal(t, proposal.StatusPending, result.Proposal.Status, "CheckAvailability itself should already block before approval")
}

func TestProcessNewMarksFailedOnExecutionError(t *testing.T) {
	primary := &stubExecBackend{err: errors.New("primary down")}
	secondary := &stubExecBackend{err: errors.New("secondary down too")}
	h := newHarness(t, primary, secondary)
	a, _, _, err := h.agents.Create(context.Background(), agent.CreateInput{Owner: "owner-1", AutoExecuteEnabled: true})
	require.NoError(t, err)
	_, err = h.budgets.Create(context.Background(), budget.CreateInput{
		AgentID: a.ID, Owner: "owner-1", Amount: money.MustParse("1000"), Token: "USDC", Period: budget.PeriodTotal,
	})
	require.NoError(t, err)

	result, err := h.orch.ProcessNew(context.Background(), proposal.CreateInput{
		AgentID: a.ID, Owner: "owner-1", Recipient: "0xabc",
		Amount: money.MustParse("100"), Token: "USDC", ChainID: 1,
	})
	require.NoError(t, err)
	require.Equal(t, proposal.StatusFailed, result.Proposal.Status)
}

func TestProcessNewFallsBackToSecondaryOnPrimaryFailure(t *testing.T) {
	primary := &stubExecBackend{err: errors.New("primary down")}
	secondary := &stubExecBackend{resp: execution.Response{TxHash: "0xsecondary"}}
	h := newHarness(t, primary, secondary)
	a, _, _, err := h.agents.Create(context.Background(), agent.CreateInput{Owner: "owner-1", AutoExecuteEnabled: true})
	require.NoError(t, err)
	_, err = h.budgets.Create(context.Background(), budget.CreateInput{
		AgentID: a.ID, Owner: "owner-1", Amount: money.MustParse("1000"), Token: "USDC", Period: budget.PeriodTotal,
	})
	require.NoError(t, err)

	result, err := h.orch.ProcessNew(context.Background(), proposal.CreateInput{
		AgentID: a.ID, Owner: "owner-1", Recipient: "0xabc",
		Amount: money.MustParse("100"), Token: "USDC", ChainID: 1,
	})
	require.NoError(t, err)
	require.Equal(t, proposal.StatusExecuted, result.Proposal.Status)
	require.Equal(t, execution.ServedBySecondary, result.Executed.ServedBy)
}

func TestApproveAndExecuteByOwnerSkipsRuleCheck(t *testing.T) {
	primary := &stubExecBackend{resp: execution.Response{TxHash: "0xprimary"}}
	h := newHarness(t, primary, &stubExecBackend{})
	maxAmount := money.MustParse("1") // any real amount would violate this
	a, _, _, err := h.agents.Create(context.Background(), agent.CreateInput{
		Owner: "owner-1", AutoExecuteEnabled: false,
		AutoExecuteRules: &agent.AutoExecuteRules{MaxSingleAmount: &maxAmount},
	})
	require.NoError(t, err)

	result, err := h.orch.ProcessNew(context.Background(), proposal.CreateInput{
		AgentID: a.ID, Owner: "owner-1", Recipient: "0xabc",
		Amount: money.MustParse("500"), Token: "USDC", ChainID: 1,
	})
	require.NoError(t, err)
	require.Equal(t, proposal.StatusPending, result.Proposal.Status)

	approved, err := h.orch.ApproveAndExecute(context.Background(), result.Proposal.ID, "owner-1")
	require.NoError(t, err)
	require.Equal(t, proposal.StatusExecuted, approved.Proposal.Status, "owner override should bypass the rule engine entirely")
}

func TestApproveAndExecuteRejectsWrongOwner(t *testing.T) {
	h := newHarness(t, &stubExecBackend{}, &stubExecBackend{})
	a, _, _, err := h.agents.Create(context.Background(), agent.CreateInput{Owner: "owner-1", AutoExecuteEnabled: false})
	require.NoError(t, err)

	result, err := h.orch.ProcessNew(context.Background(), proposal.CreateInput{
		AgentID: a.ID, Owner: "owner-1", Recipient: "0xabc",
		Amount: money.MustParse("100"), Token: "USDC", ChainID: 1,
	})
	require.NoError(t, err)

	_, err = h.orch.ApproveAndExecute(context.Background(), result.Proposal.ID, "owner-2")
	require.Error(t, err)
}

func TestRejectTransitionsPendingToRejected(t *testing.T) {
	h := newHarness(t, &stubExecBackend{}, &stubExecBackend{})
	a, _, _, err := h.agents.Create(context.Background(), agent.CreateInput{Owner: "owner-1", AutoExecuteEnabled: false})
	require.NoError(t, err)

	result, err := h.orch.ProcessNew(context.Background(), proposal.CreateInput{
		AgentID: a.ID, Owner: "owner-1", Recipient: "0xabc",
		Amount: money.MustParse("100"), Token: "USDC", ChainID: 1,
	})
	require.NoError(t, err)

	rejected, err := h.orch.Reject(context.Background(), result.Proposal.ID, "owner-1", "changed my mind")
	require.NoError(t, err)
	require.Equal(t, proposal.StatusRejected, rejected.Status)
	require.Equal(t, "changed my mind", *rejected.ErrorMessage)
}
