package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/R3E-Network/agent-proposal-engine/internal/domain/webhook"
)

var _ webhook.Store = (*Store)(nil)

func (s *Store) Create(ctx context.Context, d *webhook.Delivery) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO webhook_deliveries (
			id, agent_id, event_type, payload, status, attempts,
			last_attempt_at, next_retry_at, response_status, error_message,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, d.ID, d.AgentID, string(d.EventType), d.Payload, string(d.Status), d.Attempts,
		d.LastAttemptAt, d.NextRetryAt, d.ResponseStatus, d.ErrorMessage,
		d.CreatedAt, d.UpdatedAt)
	return err
}

const selectDeliveryColumns = `
	id, agent_id, event_type, payload, status, attempts,
	last_attempt_at, next_retry_at, response_status, error_message,
	created_at, updated_at
`

func scanDelivery(row interface{ Scan(...any) error }) (*webhook.Delivery, error) {
	var d webhook.Delivery
	var eventType, status string
	if err := row.Scan(
		&d.ID, &d.AgentID, &eventType, &d.Payload, &status, &d.Attempts,
		&d.LastAttemptAt, &d.NextRetryAt, &d.ResponseStatus, &d.ErrorMessage,
		&d.CreatedAt, &d.UpdatedAt,
	); err != nil {
		return nil, err
	}
	d.EventType = webhook.EventType(eventType)
	d.Status = webhook.Status(status)
	return &d, nil
}

func (s *Store) Get(ctx context.Context, id string) (*webhook.Delivery, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectDeliveryColumns+` FROM webhook_deliveries WHERE id = $1`, id)
	d, err := scanDelivery(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return d, err
}

func (s *Store) ListByAgent(ctx context.Context, agentID string, limit int) ([]*webhook.Delivery, error) {
	query := `SELECT ` + selectDeliveryColumns + ` FROM webhook_deliveries WHERE agent_id = $1 ORDER BY created_at DESC`
	args := []any{agentID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*webhook.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) ListFailed(ctx context.Context, agentID string) ([]*webhook.Delivery, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+selectDeliveryColumns+` FROM webhook_deliveries
		WHERE agent_id = $1 AND status = $2
		ORDER BY created_at DESC
	`, agentID, string(webhook.StatusFailed))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*webhook.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// PickDue atomically claims one due delivery using SELECT ... FOR
// UPDATE SKIP LOCKED inside a transaction, so a second scanner running
// concurrently (possibly in another process) skips rows already being
// claimed rather than blocking on or re-picking them.
func (s *Store) PickDue(ctx context.Context, now time.Time) (*webhook.Delivery, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	row := tx.QueryRowContext(ctx, `
		SELECT `+selectDeliveryColumns+` FROM webhook_deliveries
		WHERE status IN ($1, $2) AND next_retry_at <= $3
		ORDER BY next_retry_at
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`, string(webhook.StatusPending), string(webhook.StatusRetrying), now)
	d, err := scanDelivery(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, tx.Commit()
	}
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `UPDATE webhook_deliveries SET status = $1 WHERE id = $2`,
		string(webhook.StatusDelivering), d.ID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true

	d.Status = webhook.StatusDelivering
	return d, nil
}

func (s *Store) Save(ctx context.Context, d *webhook.Delivery) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE webhook_deliveries SET
			status = $1, attempts = $2, last_attempt_at = $3, next_retry_at = $4,
			response_status = $5, error_message = $6, updated_at = $7
		WHERE id = $8
	`, string(d.Status), d.Attempts, d.LastAttemptAt, d.NextRetryAt,
		d.ResponseStatus, d.ErrorMessage, d.UpdatedAt, d.ID)
	return err
}
