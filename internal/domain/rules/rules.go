// Package rules implements the Rule Engine (C3): evaluating a proposal
// against an agent's auto_execute_rules and daily-sum ceiling.
package rules

import (
	"fmt"

	"github.com/R3E-Network/agent-proposal-engine/internal/domain/agent"
	"github.com/R3E-Network/agent-proposal-engine/internal/platform/money"
)

// Candidate is the subset of a proposal the rule engine needs to
// evaluate; it has no dependency on the proposal package so this
// package can be imported without creating a cycle.
type Candidate struct {
	Amount    money.Decimal
	Token     string
	Recipient string
	ChainID   int64
}

// Result carries the outcome of a Check call.
type Result struct {
	Passed     bool
	Violations []string
}

// Engine evaluates proposals against an agent's rules.
type Engine struct{}

func NewEngine() *Engine { return &Engine{} }

// Check evaluates candidate against agent's auto_execute_rules. A nil
// rules set passes unconditionally. dailySpent is the sum, computed by
// the caller, of this agent's already-executed proposal amounts today
// (agent-global, per the resolved daily-sum scope). All violated
// dimensions accumulate; order does not affect the result.
func (e *Engine) Check(ag *agent.Agent, candidate Candidate, dailySpent money.Decimal) Result {
	rules := ag.AutoExecuteRules
	if rules == nil {
		return Result{Passed: true}
	}

	var violations []string

	if rules.MaxSingleAmount != nil && candidate.Amount.Cmp(*rules.MaxSingleAmount) > 0 {
		violations = append(violations, fmt.Sprintf(
			"Amount %s exceeds max single amount %s", candidate.Amount.String(), rules.MaxSingleAmount.String()))
	}

	if !rules.HasAllowedToken(candidate.Token) {
		violations = append(violations, fmt.Sprintf("Token %s is not in allowed_tokens", candidate.Token))
	}

	if !rules.HasAllowedRecipient(candidate.Recipient) {
		violations = append(violations, fmt.Sprintf("Recipient %s is not in allowed_recipients", candidate.Recipient))
	}

	if !rules.HasAllowedChain(candidate.ChainID) {
		violations = append(violations, fmt.Sprintf("Chain %d is not in allowed_chains", candidate.ChainID))
	}

	if rules.MaxDailyAmount != nil {
		projected := dailySpent.Add(candidate.Amount)
		if projected.Cmp(*rules.MaxDailyAmount) > 0 {
			violations = append(violations, fmt.Sprintf(
				"Daily total %s would exceed max daily amount %s", projected.String(), rules.MaxDailyAmount.String()))
		}
	}

	return Result{Passed: len(violations) == 0, Violations: violations}
}

// WithinDailyLimit reports whether adding amount to dailySpent stays
// within the agent's max_daily_amount (true if unconstrained).
func (e *Engine) WithinDailyLimit(ag *agent.Agent, dailySpent, amount money.Decimal) bool {
	rules := ag.AutoExecuteRules
	if rules == nil || rules.MaxDailyAmount == nil {
		return true
	}
	return dailySpent.Add(amount).Cmp(*rules.MaxDailyAmount) <= 0
}
