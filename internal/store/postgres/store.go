// Package postgres is the production-grade implementation of every
// domain Store interface, backed by database/sql and lib/pq. Grounded
// on applications/storage/postgres/store_secrets.go's plain
// database/sql + parameterized-query style: no ORM, no query builder,
// matching what the teacher's own storage code actually does.
package postgres

import (
	"database/sql"
	"encoding/json"

	"github.com/R3E-Network/agent-proposal-engine/internal/domain/agent"
	"github.com/R3E-Network/agent-proposal-engine/internal/platform/money"
)

// Store implements agent.Store, budget.Store, proposal.Store,
// webhook.Store, and activity.Store against a single *sql.DB.
type Store struct {
	db *sql.DB
}

// New creates a Store using the provided database handle. The caller
// owns the handle's lifecycle (opening, pooling, closing).
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func marshalRules(rules *agent.AutoExecuteRules) ([]byte, error) {
	if rules == nil {
		return nil, nil
	}
	return json.Marshal(rules)
}

func unmarshalRules(raw []byte) (*agent.AutoExecuteRules, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var rules agent.AutoExecuteRules
	if err := json.Unmarshal(raw, &rules); err != nil {
		return nil, err
	}
	return &rules, nil
}

// decimalOrZero parses a NUMERIC column read back as a string, treating
// an empty string (NULL) as zero.
func decimalOrZero(s string) (money.Decimal, error) {
	if s == "" {
		return money.Zero(), nil
	}
	return money.Parse(s)
}

func marshalDetails(details map[string]any) ([]byte, error) {
	if details == nil {
		return nil, nil
	}
	return json.Marshal(details)
}

func unmarshalDetails(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var details map[string]any
	if err := json.Unmarshal(raw, &details); err != nil {
		return nil, err
	}
	return details, nil
}
