// Package budget implements the Budget Ledger (C2): periodized
// spending envelopes with lazy rollover and atomic debits.
package budget

import (
	"strings"
	"time"

	"github.com/R3E-Network/agent-proposal-engine/internal/platform/money"
)

// Period is the budget's renewal cadence.
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
	PeriodTotal   Period = "total"
)

// Budget is a periodized allocation bounding an agent's cumulative
// spending for a (token, chain) pair.
type Budget struct {
	ID      string
	AgentID string
	Owner   string

	Amount  money.Decimal // immutable allocation for the current period
	Token   string        // uppercased
	ChainID *int64        // nil = wildcard, matches any chain

	Period          Period
	UsedAmount      money.Decimal
	RemainingAmount money.Decimal

	PeriodStart time.Time
	PeriodEnd   *time.Time // nil iff Period == total

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Matches reports whether this budget applies to a request for token
// on chainID, per §4.2's availability match rule.
func (b *Budget) Matches(token string, chainID *int64) bool {
	if !strings.EqualFold(b.Token, token) {
		return false
	}
	if b.ChainID == nil {
		return true
	}
	return chainID != nil && *b.ChainID == *chainID
}

// IsExpired reports whether now has reached or passed PeriodEnd. A
// total-period budget never expires.
func (b *Budget) IsExpired(now time.Time) bool {
	if b.PeriodEnd == nil {
		return false
	}
	return !now.Before(*b.PeriodEnd)
}

// NextPeriodEnd computes the end of the period that starts at
// periodStart, per §4.2's rollover arithmetic: day = +24h, week = +7d,
// month/year = calendar arithmetic clamped to the last valid day of the
// target month.
func NextPeriodEnd(period Period, periodStart time.Time) *time.Time {
	switch period {
	case PeriodDaily:
		t := periodStart.Add(24 * time.Hour)
		return &t
	case PeriodWeekly:
		t := periodStart.AddDate(0, 0, 7)
		return &t
	case PeriodMonthly:
		t := addMonthsClamped(periodStart, 1)
		return &t
	case PeriodYearly:
		t := addMonthsClamped(periodStart, 12)
		return &t
	default:
		return nil
	}
}

// PeriodYearly follows the same month-clamped arithmetic as monthly,
// spanning 12 months instead of 1.
const PeriodYearly Period = "yearly"

// addMonthsClamped adds months to t, clamping the resulting day to the
// last valid day of the target month (e.g. Jan 31 + 1 month -> Feb
// 28 or 29).
func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	firstOfTarget := time.Date(year, month, 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	firstOfTarget = firstOfTarget.AddDate(0, months, 0)
	lastDayOfTarget := firstOfTarget.AddDate(0, 1, -1).Day()
	if day > lastDayOfTarget {
		day = lastDayOfTarget
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// CreateInput carries the fields an owner supplies when allocating a
// budget.
type CreateInput struct {
	AgentID string
	Owner   string
	Amount  money.Decimal
	Token   string
	ChainID *int64
	Period  Period
}
