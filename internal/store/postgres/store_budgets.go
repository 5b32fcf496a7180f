package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/R3E-Network/agent-proposal-engine/internal/domain/budget"
	"github.com/R3E-Network/agent-proposal-engine/internal/platform/apperrors"
	"github.com/R3E-Network/agent-proposal-engine/internal/platform/money"
)

var _ budget.Store = (*Store)(nil)

func (s *Store) Create(ctx context.Context, b *budget.Budget) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agent_budgets (
			id, agent_id, owner, amount, token, chain_id, period,
			used_amount, remaining_amount, period_start, period_end,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, b.ID, b.AgentID, b.Owner, b.Amount.String(), b.Token, b.ChainID, string(b.Period),
		b.UsedAmount.String(), b.RemainingAmount.String(), b.PeriodStart, b.PeriodEnd,
		b.CreatedAt, b.UpdatedAt)
	return err
}

const selectBudgetColumns = `
	id, agent_id, owner, amount, token, chain_id, period,
	used_amount, remaining_amount, period_start, period_end,
	created_at, updated_at
`

func scanBudget(row interface{ Scan(...any) error }) (*budget.Budget, error) {
	var b budget.Budget
	var period, amount, used, remaining string
	if err := row.Scan(
		&b.ID, &b.AgentID, &b.Owner, &amount, &b.Token, &b.ChainID, &period,
		&used, &remaining, &b.PeriodStart, &b.PeriodEnd,
		&b.CreatedAt, &b.UpdatedAt,
	); err != nil {
		return nil, err
	}
	b.Period = budget.Period(period)
	var err error
	if b.Amount, err = decimalOrZero(amount); err != nil {
		return nil, err
	}
	if b.UsedAmount, err = decimalOrZero(used); err != nil {
		return nil, err
	}
	if b.RemainingAmount, err = decimalOrZero(remaining); err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *Store) Get(ctx context.Context, id string) (*budget.Budget, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectBudgetColumns+` FROM agent_budgets WHERE id = $1`, id)
	b, err := scanBudget(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return b, err
}

func (s *Store) List(ctx context.Context, agentID string) ([]*budget.Budget, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+selectBudgetColumns+` FROM agent_budgets WHERE agent_id = $1 ORDER BY created_at`, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*budget.Budget
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) Update(ctx context.Context, b *budget.Budget) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE agent_budgets SET
			amount = $1, used_amount = $2, remaining_amount = $3, updated_at = $4
		WHERE id = $5
	`, b.Amount.String(), b.UsedAmount.String(), b.RemainingAmount.String(), b.UpdatedAt, b.ID)
	return err
}

func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM agent_budgets WHERE id = $1`, id)
	return err
}

// Debit is the conditional update described in §5: the WHERE clause
// only matches rows with enough remaining balance, so two concurrent
// debits that together exceed remaining can never both affect a row.
func (s *Store) Debit(ctx context.Context, id string, amount money.Decimal) (*budget.Budget, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE agent_budgets SET
			used_amount = used_amount + $1,
			remaining_amount = remaining_amount - $1,
			updated_at = now()
		WHERE id = $2 AND remaining_amount >= $1
		RETURNING `+selectBudgetColumns, amount.String(), id)
	b, err := scanBudget(row)
	if errors.Is(err, sql.ErrNoRows) {
		current, getErr := s.Get(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		if current == nil {
			return nil, apperrors.NotFound("budget", id)
		}
		return current, apperrors.InsufficientBudget(current.RemainingAmount.String(), amount.String())
	}
	return b, err
}

// Rollover conditionally resets the budget only if its stored
// period_end is still <= now, so a second concurrent sweep or lazy
// read cannot double-roll it.
func (s *Store) Rollover(ctx context.Context, id string, now time.Time, newPeriodEnd *time.Time) (*budget.Budget, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE agent_budgets SET
			used_amount = 0,
			remaining_amount = amount,
			period_start = $1,
			period_end = $2,
			updated_at = $1
		WHERE id = $3 AND period_end IS NOT NULL AND period_end <= $1
		RETURNING `+selectBudgetColumns, now, newPeriodEnd, id)
	b, err := scanBudget(row)
	if errors.Is(err, sql.ErrNoRows) {
		current, getErr := s.Get(ctx, id)
		if getErr != nil {
			return nil, false, getErr
		}
		if current == nil {
			return nil, false, apperrors.NotFound("budget", id)
		}
		return current, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (s *Store) ListExpired(ctx context.Context, now time.Time) ([]*budget.Budget, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+selectBudgetColumns+` FROM agent_budgets WHERE period_end IS NOT NULL AND period_end <= $1`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*budget.Budget
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
