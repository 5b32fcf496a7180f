package postgres

import (
	"context"
	"strconv"

	"github.com/R3E-Network/agent-proposal-engine/internal/domain/activity"
)

var _ activity.Store = (*Store)(nil)

func (s *Store) RecordActivity(ctx context.Context, e *activity.Entry) error {
	detailsJSON, err := marshalDetails(e.Details)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO agent_activities (id, agent_id, owner, action_kind, details, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, e.ID, e.AgentID, e.Owner, string(e.ActionKind), detailsJSON, e.CreatedAt)
	return err
}

func (s *Store) RecordAudit(ctx context.Context, e *activity.AuditEntry) error {
	detailsJSON, err := marshalDetails(e.Details)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, actor_type, owner, agent_id, resource_type, resource_id, details, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, e.ID, string(e.ActorType), e.Owner, e.AgentID, e.ResourceType, e.ResourceID, detailsJSON, e.CreatedAt)
	return err
}

func scanActivityEntry(row interface{ Scan(...any) error }) (*activity.Entry, error) {
	var e activity.Entry
	var kind string
	var detailsJSON []byte
	if err := row.Scan(&e.ID, &e.AgentID, &e.Owner, &kind, &detailsJSON, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.ActionKind = activity.ActionKind(kind)
	details, err := unmarshalDetails(detailsJSON)
	if err != nil {
		return nil, err
	}
	e.Details = details
	return &e, nil
}

const selectActivityColumns = `id, agent_id, owner, action_kind, details, created_at`

func (s *Store) ListByAgent(ctx context.Context, agentID string, limit int) ([]*activity.Entry, error) {
	return s.queryActivity(ctx, `WHERE agent_id = $1 ORDER BY created_at DESC`, []any{agentID}, limit)
}

func (s *Store) ListByOwner(ctx context.Context, owner string, limit int) ([]*activity.Entry, error) {
	return s.queryActivity(ctx, `WHERE owner = $1 ORDER BY created_at DESC`, []any{owner}, limit)
}

func (s *Store) ListByActionKind(ctx context.Context, owner string, kind activity.ActionKind, limit int) ([]*activity.Entry, error) {
	return s.queryActivity(ctx, `WHERE owner = $1 AND action_kind = $2 ORDER BY created_at DESC`, []any{owner, string(kind)}, limit)
}

func (s *Store) queryActivity(ctx context.Context, whereAndOrder string, args []any, limit int) ([]*activity.Entry, error) {
	query := `SELECT ` + selectActivityColumns + ` FROM agent_activities ` + whereAndOrder
	if limit > 0 {
		args = append(args, limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*activity.Entry
	for rows.Next() {
		e, err := scanActivityEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
