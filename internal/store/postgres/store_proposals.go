package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/R3E-Network/agent-proposal-engine/internal/domain/proposal"
	"github.com/R3E-Network/agent-proposal-engine/internal/platform/apperrors"
	"github.com/R3E-Network/agent-proposal-engine/internal/platform/money"
)

var _ proposal.Store = (*Store)(nil)

func (s *Store) Create(ctx context.Context, p *proposal.Proposal) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payment_proposals (
			id, agent_id, owner, recipient, amount, token, chain_id, reason,
			budget_id, status, tx_hash, error_message,
			created_at, updated_at, decided_at, executed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	`, p.ID, p.AgentID, p.Owner, p.Recipient, p.Amount.String(), p.Token, p.ChainID, p.Reason,
		p.BudgetID, string(p.Status), p.TxHash, p.ErrorMessage,
		p.CreatedAt, p.UpdatedAt, p.DecidedAt, p.ExecutedAt)
	return err
}

const selectProposalColumns = `
	id, agent_id, owner, recipient, amount, token, chain_id, reason,
	budget_id, status, tx_hash, error_message,
	created_at, updated_at, decided_at, executed_at
`

func scanProposal(row interface{ Scan(...any) error }) (*proposal.Proposal, error) {
	var p proposal.Proposal
	var status, amount string
	if err := row.Scan(
		&p.ID, &p.AgentID, &p.Owner, &p.Recipient, &amount, &p.Token, &p.ChainID, &p.Reason,
		&p.BudgetID, &status, &p.TxHash, &p.ErrorMessage,
		&p.CreatedAt, &p.UpdatedAt, &p.DecidedAt, &p.ExecutedAt,
	); err != nil {
		return nil, err
	}
	p.Status = proposal.Status(status)
	var err error
	if p.Amount, err = decimalOrZero(amount); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) Get(ctx context.Context, id string) (*proposal.Proposal, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectProposalColumns+` FROM payment_proposals WHERE id = $1`, id)
	p, err := scanProposal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func (s *Store) List(ctx context.Context, owner string, filter proposal.ListFilter) ([]*proposal.Proposal, error) {
	query := `SELECT ` + selectProposalColumns + ` FROM payment_proposals WHERE owner = $1`
	args := []any{owner}

	if filter.AgentID != "" {
		args = append(args, filter.AgentID)
		query += ` AND agent_id = $` + strconv.Itoa(len(args))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += ` AND status = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*proposal.Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Transition is the conditional update that implements per-proposal
// exclusion at the database layer: the WHERE clause only matches the
// row if its status still equals `from`, so only one of several
// concurrent attempts on the same edge ever affects a row.
func (s *Store) Transition(ctx context.Context, id string, from, to proposal.Status, mutate func(*proposal.Proposal)) (*proposal.Proposal, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, apperrors.NotFound("proposal", id)
	}

	mutated := *current
	mutated.Status = to
	if mutate != nil {
		mutate(&mutated)
	}

	row := s.db.QueryRowContext(ctx, `
		UPDATE payment_proposals SET
			status = $1, tx_hash = $2, error_message = $3,
			updated_at = $4, decided_at = $5, executed_at = $6, budget_id = $7
		WHERE id = $8 AND status = $9
		RETURNING `+selectProposalColumns,
		string(mutated.Status), mutated.TxHash, mutated.ErrorMessage,
		mutated.UpdatedAt, mutated.DecidedAt, mutated.ExecutedAt, mutated.BudgetID,
		id, string(from))
	p, err := scanProposal(row)
	if errors.Is(err, sql.ErrNoRows) {
		latest, getErr := s.Get(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		actual := string(from)
		if latest != nil {
			actual = string(latest.Status)
		}
		return nil, apperrors.IllegalTransition(actual, string(from), string(to), []string{string(from)})
	}
	return p, err
}

// DailySpent sums amount across agentID's executed proposals decided on
// or after dayStart, agent-global across tokens/chains (the resolved
// daily-sum scope).
func (s *Store) DailySpent(ctx context.Context, agentID string, dayStart time.Time) (money.Decimal, error) {
	var total sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT SUM(amount) FROM payment_proposals
		WHERE agent_id = $1 AND status = $2 AND decided_at >= $3
	`, agentID, string(proposal.StatusExecuted), dayStart).Scan(&total)
	if err != nil {
		return money.Zero(), err
	}
	if !total.Valid {
		return money.Zero(), nil
	}
	return money.Parse(total.String)
}
