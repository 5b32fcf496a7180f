package agent

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/R3E-Network/agent-proposal-engine/internal/platform/apperrors"
	"github.com/R3E-Network/agent-proposal-engine/internal/platform/clock"
	"github.com/R3E-Network/agent-proposal-engine/internal/platform/idgen"
	"github.com/R3E-Network/agent-proposal-engine/internal/platform/logging"
)

const (
	apiKeyPrefix      = "agent_"
	webhookSecretPrefix = "whsec_"
	keyRandomBytes    = 24
	prefixDisplayLen  = 12
)

// Store is the persistence seam for agents, named in the design notes.
type Store interface {
	Create(ctx context.Context, a *Agent) error
	Get(ctx context.Context, id string) (*Agent, error)
	GetByAPIKeyHash(ctx context.Context, hash string) (*Agent, error)
	List(ctx context.Context, owner string) ([]*Agent, error)
	Update(ctx context.Context, a *Agent) error
	Count(ctx context.Context, owner string) (int, error)
	// BulkSetStatus conditionally transitions every agent for owner
	// currently in `from` to `to`, optionally disabling auto-execute,
	// and returns the number of rows affected. Implementations must do
	// this atomically (a single conditional UPDATE, or an equivalent
	// critical section) so the API-key lookup and the status change
	// are never observed out of sync.
	BulkSetStatus(ctx context.Context, owner string, from, to Status, disableAutoExecute bool) (int, error)
}

// Registry implements the Agent Registry contract (C1).
type Registry struct {
	store  Store
	clock  clock.Clock
	ids    idgen.Generator
	logger *logging.Logger
}

func NewRegistry(store Store, c clock.Clock, ids idgen.Generator, logger *logging.Logger) *Registry {
	if c == nil {
		c = clock.Real()
	}
	if ids == nil {
		ids = idgen.Default
	}
	return &Registry{store: store, clock: c, ids: ids, logger: logger}
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func hashKey(cleartext string) string {
	sum := sha256.Sum256([]byte(cleartext))
	return hex.EncodeToString(sum[:])
}

// Create registers a new agent and returns the agent plus the API key
// and webhook secret cleartexts, each returned exactly once.
func (r *Registry) Create(ctx context.Context, input CreateInput) (*Agent, string, string, error) {
	randPart, err := randomHex(keyRandomBytes)
	if err != nil {
		return nil, "", "", apperrors.Wrap(apperrors.ClassFatal, apperrors.CodeRetryExhausted, "failed to generate API key", 500, err)
	}
	apiKeyCleartext := apiKeyPrefix + randPart

	var webhookSecretCleartext, webhookSecretHash string
	if strings.TrimSpace(input.WebhookURL) != "" {
		secretRand, err := randomHex(keyRandomBytes)
		if err != nil {
			return nil, "", "", apperrors.Wrap(apperrors.ClassFatal, apperrors.CodeRetryExhausted, "failed to generate webhook secret", 500, err)
		}
		webhookSecretCleartext = webhookSecretPrefix + secretRand
		webhookSecretHash = hashKey(webhookSecretCleartext)
	}

	now := r.clock.Now()
	a := &Agent{
		ID:                 r.ids.New(),
		Owner:              input.Owner,
		Status:             StatusActive,
		APIKeyHash:         hashKey(apiKeyCleartext),
		APIKeyPrefix:       apiKeyCleartext[:prefixDisplayLen],
		WebhookURL:         input.WebhookURL,
		WebhookSecretHash:  webhookSecretHash,
		AutoExecuteEnabled: input.AutoExecuteEnabled,
		AutoExecuteRules:   input.AutoExecuteRules,
		RateLimitPerMinute: input.RateLimitPerMinute,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	a.SetWebhookSecret(webhookSecretCleartext)

	if err := r.store.Create(ctx, a); err != nil {
		return nil, "", "", err
	}
	return a, apiKeyCleartext, webhookSecretCleartext, nil
}

func (r *Registry) Get(ctx context.Context, id string) (*Agent, error) {
	a, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, apperrors.NotFound("agent", id)
	}
	return a, nil
}

func (r *Registry) List(ctx context.Context, owner string) ([]*Agent, error) {
	return r.store.List(ctx, owner)
}

func (r *Registry) Count(ctx context.Context, owner string) (int, error) {
	return r.store.Count(ctx, owner)
}

func (r *Registry) Update(ctx context.Context, id string, owner string, input UpdateInput) (*Agent, error) {
	a, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Owner != owner {
		return nil, apperrors.OwnerMismatch("agent")
	}
	if input.WebhookURL != nil {
		a.WebhookURL = *input.WebhookURL
	}
	if input.AutoExecuteEnabled != nil {
		a.AutoExecuteEnabled = *input.AutoExecuteEnabled
	}
	if input.AutoExecuteRules != nil {
		a.AutoExecuteRules = input.AutoExecuteRules
	}
	if input.RateLimitPerMinute != nil {
		a.RateLimitPerMinute = *input.RateLimitPerMinute
	}
	a.UpdatedAt = r.clock.Now()
	if err := r.store.Update(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Deactivate soft-deletes the agent: status moves to deactivated, which
// also invalidates the API-key lookup since ValidateApiKey rejects
// non-active agents regardless of hash match.
func (r *Registry) Deactivate(ctx context.Context, id, owner string) error {
	a, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if a.Owner != owner {
		return apperrors.OwnerMismatch("agent")
	}
	a.Status = StatusDeactivated
	a.AutoExecuteEnabled = false
	a.UpdatedAt = r.clock.Now()
	return r.store.Update(ctx, a)
}

// ValidateApiKey looks up an agent by the hash of cleartext and
// enforces status.
func (r *Registry) ValidateApiKey(ctx context.Context, cleartext string) (*Agent, error) {
	if !strings.HasPrefix(cleartext, apiKeyPrefix) {
		return nil, apperrors.InvalidAPIKey()
	}
	a, err := r.store.GetByAPIKeyHash(ctx, hashKey(cleartext))
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, apperrors.InvalidAPIKey()
	}
	switch a.Status {
	case StatusDeactivated:
		return nil, apperrors.AgentDeactivated()
	case StatusPaused:
		return nil, apperrors.AgentPaused()
	}
	return a, nil
}

// PauseAll transitions every active agent for owner to paused and
// disables auto-execute on each.
func (r *Registry) PauseAll(ctx context.Context, owner string) (int, error) {
	return r.store.BulkSetStatus(ctx, owner, StatusActive, StatusPaused, true)
}

// ResumeAll transitions every paused agent for owner back to active. It
// does not re-enable auto-execute; the owner must opt back in per
// agent.
func (r *Registry) ResumeAll(ctx context.Context, owner string) (int, error) {
	return r.store.BulkSetStatus(ctx, owner, StatusPaused, StatusActive, false)
}

// TouchLastActive is best-effort: failures are logged, never returned,
// and the caller must not be blocked by it.
func (r *Registry) TouchLastActive(ctx context.Context, id string) {
	go func() {
		a, err := r.store.Get(context.Background(), id)
		if err != nil || a == nil {
			return
		}
		now := r.clock.Now()
		a.LastActiveAt = &now
		if err := r.store.Update(context.Background(), a); err != nil && r.logger != nil {
			r.logger.Warn(context.Background(), "touch last active failed", map[string]interface{}{"agent_id": id, "error": err.Error()})
		}
	}()
}
