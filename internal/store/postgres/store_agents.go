package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/R3E-Network/agent-proposal-engine/internal/domain/agent"
)

var _ agent.Store = (*Store)(nil)

func (s *Store) Create(ctx context.Context, a *agent.Agent) error {
	rulesJSON, err := marshalRules(a.AutoExecuteRules)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO agents (
			id, owner, status, api_key_hash, api_key_prefix,
			webhook_url, webhook_secret_hash, webhook_secret,
			auto_execute_enabled, auto_execute_rules, rate_limit_per_minute,
			created_at, updated_at, last_active_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, a.ID, a.Owner, string(a.Status), a.APIKeyHash, a.APIKeyPrefix,
		a.WebhookURL, a.WebhookSecretHash, a.WebhookSecret(),
		a.AutoExecuteEnabled, rulesJSON, a.RateLimitPerMinute,
		a.CreatedAt, a.UpdatedAt, a.LastActiveAt)
	return err
}

func scanAgent(row interface{ Scan(...any) error }) (*agent.Agent, error) {
	var a agent.Agent
	var status, webhookSecret string
	var rulesJSON []byte
	if err := row.Scan(
		&a.ID, &a.Owner, &status, &a.APIKeyHash, &a.APIKeyPrefix,
		&a.WebhookURL, &a.WebhookSecretHash, &webhookSecret,
		&a.AutoExecuteEnabled, &rulesJSON, &a.RateLimitPerMinute,
		&a.CreatedAt, &a.UpdatedAt, &a.LastActiveAt,
	); err != nil {
		return nil, err
	}
	a.Status = agent.Status(status)
	a.SetWebhookSecret(webhookSecret)
	rules, err := unmarshalRules(rulesJSON)
	if err != nil {
		return nil, err
	}
	a.AutoExecuteRules = rules
	return &a, nil
}

const selectAgentColumns = `
	id, owner, status, api_key_hash, api_key_prefix,
	webhook_url, webhook_secret_hash, webhook_secret,
	auto_execute_enabled, auto_execute_rules, rate_limit_per_minute,
	created_at, updated_at, last_active_at
`

func (s *Store) Get(ctx context.Context, id string) (*agent.Agent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectAgentColumns+` FROM agents WHERE id = $1`, id)
	a, err := scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (s *Store) GetByAPIKeyHash(ctx context.Context, hash string) (*agent.Agent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectAgentColumns+` FROM agents WHERE api_key_hash = $1`, hash)
	a, err := scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (s *Store) List(ctx context.Context, owner string) ([]*agent.Agent, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+selectAgentColumns+` FROM agents WHERE owner = $1 ORDER BY created_at`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*agent.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) Update(ctx context.Context, a *agent.Agent) error {
	rulesJSON, err := marshalRules(a.AutoExecuteRules)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE agents SET
			status = $1, webhook_url = $2, webhook_secret_hash = $3, webhook_secret = $4,
			auto_execute_enabled = $5, auto_execute_rules = $6, rate_limit_per_minute = $7,
			updated_at = $8, last_active_at = $9
		WHERE id = $10
	`, string(a.Status), a.WebhookURL, a.WebhookSecretHash, a.WebhookSecret(),
		a.AutoExecuteEnabled, rulesJSON, a.RateLimitPerMinute,
		a.UpdatedAt, a.LastActiveAt, a.ID)
	return err
}

func (s *Store) Count(ctx context.Context, owner string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM agents WHERE owner = $1`, owner).Scan(&n)
	return n, err
}

// BulkSetStatus is a single conditional UPDATE, the SQL-backed
// equivalent of the in-memory store's whole-map critical section: the
// WHERE clause and the SET clause commit atomically, so no concurrent
// API-key lookup observes a half-updated set of agents.
func (s *Store) BulkSetStatus(ctx context.Context, owner string, from, to agent.Status, disableAutoExecute bool) (int, error) {
	query := `UPDATE agents SET status = $1, updated_at = now()`
	args := []any{string(to)}
	if disableAutoExecute {
		query += `, auto_execute_enabled = FALSE`
	}
	query += ` WHERE owner = $2 AND status = $3`
	args = append(args, owner, string(from))

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	return int(affected), err
}
