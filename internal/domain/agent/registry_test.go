package agent_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/agent-proposal-engine/internal/domain/agent"
	"github.com/R3E-Network/agent-proposal-engine/internal/platform/apperrors"
	"github.com/R3E-Network/agent-proposal-engine/internal/platform/clock"
	"github.com/R3E-Network/agent-proposal-engine/internal/platform/idgen"
	"github.com/R3E-Network/agent-proposal-engine/internal/store/memory"
)

func newTestRegistry() *agent.Registry {
	return agent.NewRegistry(memory.NewAgentStore(), clock.NewFixed(time.Now()), idgen.UUID{}, nil)
}

func TestCreateIssuesKeyAndSecretOnce(t *testing.T) {
	r := newTestRegistry()
	a, apiKey, webhookSecret, err := r.Create(context.Background(), agent.CreateInput{
		Owner:              "owner-1",
		WebhookURL:         "https://example.com/hooks",
		AutoExecuteEnabled: true,
	})
	require.NoError(t, err)
	require.NotEmpty(t, apiKey)
	require.NotEmpty(t, webhookSecret)
	require.Equal(t, agent.StatusActive, a.Status)
	require.NotEqual(t, apiKey, a.APIKeyHash, "hash must not equal cleartext")
	require.Equal(t, webhookSecret, a.WebhookSecret())
}

func TestCreateWithoutWebhookURLSkipsSecret(t *testing.T) {
	r := newTestRegistry()
	a, _, webhookSecret, err := r.Create(context.Background(), agent.CreateInput{Owner: "owner-1"})
	require.NoError(t, err)
	require.Empty(t, webhookSecret)
	require.Empty(t, a.WebhookSecretHash)
}

func TestValidateApiKeySuccess(t *testing.T) {
	r := newTestRegistry()
	_, apiKey, _, err := r.Create(context.Background(), agent.CreateInput{Owner: "owner-1"})
	require.NoError(t, err)

	found, err := r.ValidateApiKey(context.Background(), apiKey)
	require.NoError(t, err)
	require.Equal(t, "owner-1", found.Owner)
}

func TestValidateApiKeyRejectsUnknownKey(t *testing.T) {
	r := newTestRegistry()
	_, err := r.ValidateApiKey(context.Background(), "agent_deadbeef")
	require.Error(t, err)
	require.Equal(t, apperrors.CodeInvalidAPIKey, apperrors.As(err).Code)
}

func TestValidateApiKeyRejectsWrongPrefix(t *testing.T) {
	r := newTestRegistry()
	_, err := r.ValidateApiKey(context.Background(), "not-a-real-key")
	require.Error(t, err)
	require.Equal(t, apperrors.CodeInvalidAPIKey, apperrors.As(err).Code)
}

func TestValidateApiKeyRejectsPausedAndDeactivated(t *testing.T) {
	r := newTestRegistry()
	a, apiKey, _, err := r.Create(context.Background(), agent.CreateInput{Owner: "owner-1"})
	require.NoError(t, err)

	_, err = r.PauseAll(context.Background(), a.Owner)
	require.NoError(t, err)
	_, err = r.ValidateApiKey(context.Background(), apiKey)
	require.Error(t, err)
	require.Equal(t, apperrors.CodeAgentPaused, apperrors.As(err).Code)

	require.NoError(t, r.Deactivate(context.Background(), a.ID, a.Owner))
	_, err = r.ValidateApiKey(context.Background(), apiKey)
	require.Equal(t, apperrors.CodeAgentDeactivated, apperrors.As(err).Code)
}

func TestPauseAllThenResumeAll(t *testing.T) {
	r := newTestRegistry()
	a1, _, _, err := r.Create(context.Background(), agent.CreateInput{Owner: "owner-1", AutoExecuteEnabled: true})
	require.NoError(t, err)
	a2, _, _, err := r.Create(context.Background(), agent.CreateInput{Owner: "owner-1", AutoExecuteEnabled: true})
	require.NoError(t, err)
	_, _, _, err = r.Create(context.Background(), agent.CreateInput{Owner: "owner-2"})
	require.NoError(t, err)

	n, err := r.PauseAll(context.Background(), "owner-1")
	require.NoError(t, err)
	require.Equal(t, 2, n)

	got1, err := r.Get(context.Background(), a1.ID)
	require.NoError(t, err)
	require.Equal(t, agent.StatusPaused, got1.Status)
	require.False(t, got1.AutoExecuteEnabled)

	n, err = r.ResumeAll(context.Background(), "owner-1")
	require.NoError(t, err)
	require.Equal(t, 2, n)

	got2, err := r.Get(context.Background(), a2.ID)
	require.NoError(t, err)
	require.Equal(t, agent.StatusActive, got2.Status)
	require.False(t, got2.AutoExecuteEnabled, "ResumeAll must not re-enable auto-execute")
}

func TestUpdateRejectsOwnerMismatch(t *testing.T) {
	r := newTestRegistry()
	a, _, _, err := r.Create(context.Background(), agent.CreateInput{Owner: "owner-1"})
	require.NoError(t, err)

	_, err = r.Update(context.Background(), a.ID, "owner-2", agent.UpdateInput{})
	require.Error(t, err)
	require.Equal(t, apperrors.CodeOwnerMismatch, apperrors.As(err).Code)
}

func TestUpdateAppliesOnlySetFields(t *testing.T) {
	r := newTestRegistry()
	a, _, _, err := r.Create(context.Background(), agent.CreateInput{Owner: "owner-1", RateLimitPerMinute: 60})
	require.NoError(t, err)

	newLimit := 120
	updated, err := r.Update(context.Background(), a.ID, "owner-1", agent.UpdateInput{RateLimitPerMinute: &newLimit})
	require.NoError(t, err)
	require.Equal(t, 120, updated.RateLimitPerMinute)
	require.Equal(t, a.WebhookURL, updated.WebhookURL)
}

func TestGetUnknownReturnsNotFound(t *testing.T) {
	r := newTestRegistry()
	_, err := r.Get(context.Background(), "missing")
	require.Error(t, err)
	require.Equal(t, apperrors.CodeNotFound, apperrors.As(err).Code)
}

func TestAutoExecuteRulesHelpers(t *testing.T) {
	rules := &agent.AutoExecuteRules{
		AllowedTokens:     []string{"USDC"},
		AllowedRecipients: []string{"0xABC"},
		AllowedChains:     []int64{1},
	}
	require.True(t, rules.HasAllowedToken("usdc"))
	require.False(t, rules.HasAllowedToken("DAI"))
	require.True(t, rules.HasAllowedRecipient("0xabc"))
	require.False(t, rules.HasAllowedRecipient("0xdef"))
	require.True(t, rules.HasAllowedChain(1))
	require.False(t, rules.HasAllowedChain(2))

	var nilRules *agent.AutoExecuteRules
	require.True(t, nilRules.HasAllowedToken("anything"), "nil rules mean unconstrained")
}
