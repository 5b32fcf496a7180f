package webhook_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/agent-proposal-engine/internal/domain/agent"
	"github.com/R3E-Network/agent-proposal-engine/internal/domain/webhook"
	"github.com/R3E-Network/agent-proposal-engine/internal/domain/webhook/webhooktest"
	"github.com/R3E-Network/agent-proposal-engine/internal/platform/clock"
	"github.com/R3E-Network/agent-proposal-engine/internal/platform/idgen"
	"github.com/R3E-Network/agent-proposal-engine/internal/platform/resilience"
	"github.com/R3E-Network/agent-proposal-engine/internal/store/memory"
)

func newTestAgent(t *testing.T, registry *agent.Registry, webhookURL string) *agent.Agent {
	t.Helper()
	a, _, _, err := registry.Create(context.Background(), agent.CreateInput{
		Owner: "owner-1", WebhookURL: webhookURL,
	})
	require.NoError(t, err)
	return a
}

func newPipeline(registry *agent.Registry, c clock.Clock) (*webhook.Pipeline, *memory.WebhookStore) {
	store := memory.NewWebhookStore()
	breakers := resilience.NewRegistry(resilience.DefaultConfig(), c)
	return webhook.NewPipeline(store, registry, breakers, &http.Client{}, c, idgen.UUID{}, 5*time.Second, nil), store
}

func TestTriggerNoopWithoutWebhookURL(t *testing.T) {
	registry := agent.NewRegistry(memory.NewAgentStore(), clock.NewFixed(time.Now()), idgen.UUID{}, nil)
	a, _, _, err := registry.Create(context.Background(), agent.CreateInput{Owner: "owner-1"})
	require.NoError(t, err)

	pipeline, _ := newPipeline(registry, clock.NewFixed(time.Now()))
	id, err := pipeline.Trigger(context.Background(), a.ID, webhook.EventProposalCreated, map[string]string{"id": "p1"})
	require.NoError(t, err)
	require.Empty(t, id)
}

func TestDeliverySucceedsAndIsSigned(t *testing.T) {
	receiver := webhooktest.New()
	defer receiver.Close()

	c := clock.NewFixed(time.Now())
	registry := agent.NewRegistry(memory.NewAgentStore(), c, idgen.UUID{}, nil)
	a := newTestAgent(t, registry, receiver.URL())

	pipeline, _ := newPipeline(registry, c)
	id, err := pipeline.Trigger(context.Background(), a.ID, webhook.EventProposalCreated, map[string]string{"id": "p1"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	n, err := pipeline.ProcessDue(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	received := receiver.Received()
	require.Len(t, received, 1)
	require.Equal(t, string(webhook.EventProposalCreated), received[0].EventType)
	require.True(t, webhook.Verify(received[0].Body, received[0].Signature, a.WebhookSecret()))

	delivery, err := pipeline.GetDeliveries(context.Background(), a.ID, 10)
	require.NoError(t, err)
	require.Len(t, delivery, 1)
	require.Equal(t, webhook.StatusDelivered, delivery[0].Status)
	require.Equal(t, 1, delivery[0].Attempts)
}

func TestDeliveryRetriesOnFailureThenSucceeds(t *testing.T) {
	receiver := webhooktest.New(http.StatusInternalServerError, http.StatusInternalServerError)
	defer receiver.Close()

	c := clock.NewFixed(time.Now())
	registry := agent.NewRegistry(memory.NewAgentStore(), c, idgen.UUID{}, nil)
	a := newTestAgent(t, registry, receiver.URL())

	pipeline, _ := newPipeline(registry, c)
	_, err := pipeline.Trigger(context.Background(), a.ID, webhook.EventPaymentExecuted, map[string]string{"id": "p1"})
	require.NoError(t, err)

	n, err := pipeline.ProcessDue(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	deliveries, err := pipeline.GetDeliveries(context.Background(), a.ID, 10)
	require.NoError(t, err)
	require.Equal(t, webhook.StatusRetrying, deliveries[0].Status)
	require.Equal(t, 1, deliveries[0].Attempts)

	// Not due yet: next_retry_at is 60s out.
	n, err = pipeline.ProcessDue(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, n)

	c.Advance(61 * time.Second)
	n, err = pipeline.ProcessDue(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	deliveries, err = pipeline.GetDeliveries(context.Background(), a.ID, 10)
	require.NoError(t, err)
	require.Equal(t, webhook.StatusRetrying, deliveries[0].Status, "second attempt still fails, scheduling a third")
	require.Equal(t, 2, deliveries[0].Attempts)

	c.Advance(5*time.Minute + time.Second)
	n, err = pipeline.ProcessDue(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	deliveries, err = pipeline.GetDeliveries(context.Background(), a.ID, 10)
	require.NoError(t, err)
	require.Equal(t, webhook.StatusDelivered, deliveries[0].Status)
	require.Equal(t, 3, deliveries[0].Attempts)
}

func TestDeliveryExhaustsRetriesAndFails(t *testing.T) {
	receiver := webhooktest.New(http.StatusInternalServerError, http.StatusInternalServerError, http.StatusInternalServerError)
	defer receiver.Close()

	c := clock.NewFixed(time.Now())
	registry := agent.NewRegistry(memory.NewAgentStore(), c, idgen.UUID{}, nil)
	a := newTestAgent(t, registry, receiver.URL())

	pipeline, _ := newPipeline(registry, c)
	_, err := pipeline.Trigger(context.Background(), a.ID, webhook.EventPaymentFailed, nil)
	require.NoError(t, err)

	pipeline.ProcessDue(context.Background())
	c.Advance(61 * time.Second)
	pipeline.ProcessDue(context.Background())
	c.Advance(5*time.Minute + time.Second)
	pipeline.ProcessDue(context.Background())

	failed, err := pipeline.ListFailed(context.Background(), a.ID)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	require.Equal(t, webhook.MaxAttempts, failed[0].Attempts)
}

func TestMarksFailedWhenWebhookURLRemoved(t *testing.T) {
	c := clock.NewFixed(time.Now())
	agentStore := memory.NewAgentStore()
	registry := agent.NewRegistry(agentStore, c, idgen.UUID{}, nil)

	receiver := webhooktest.New()
	a := newTestAgent(t, registry, receiver.URL())
	receiver.Close()

	pipeline, _ := newPipeline(registry, c)
	_, err := pipeline.Trigger(context.Background(), a.ID, webhook.EventAgentPaused, nil)
	require.NoError(t, err)

	emptyURL := ""
	_, err = registry.Update(context.Background(), a.ID, a.Owner, agent.UpdateInput{WebhookURL: &emptyURL})
	require.NoError(t, err)

	n, err := pipeline.ProcessDue(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	deliveries, err := pipeline.GetDeliveries(context.Background(), a.ID, 10)
	require.NoError(t, err)
	require.Equal(t, webhook.StatusFailed, deliveries[0].Status)
}
