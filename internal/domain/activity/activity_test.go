package activity_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/agent-proposal-engine/internal/domain/activity"
	"github.com/R3E-Network/agent-proposal-engine/internal/platform/clock"
	"github.com/R3E-Network/agent-proposal-engine/internal/platform/idgen"
	"github.com/R3E-Network/agent-proposal-engine/internal/store/memory"
)

func TestRecordAppendsActivityAndAudit(t *testing.T) {
	store := memory.NewActivityStore()
	log := activity.NewLog(store, clock.NewFixed(time.Now()), idgen.UUID{}, nil)

	log.Record(context.Background(), "agent-1", "owner-1", activity.ActionProposalCreated, activity.ActorTypeAgent, "proposal", "p1", map[string]any{"amount": "100"})

	entries, err := log.ListByAgent(context.Background(), "agent-1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, activity.ActionProposalCreated, entries[0].ActionKind)
	require.Equal(t, "100", entries[0].Details["amount"])
}

func TestListByOwnerAndActionKind(t *testing.T) {
	store := memory.NewActivityStore()
	log := activity.NewLog(store, clock.NewFixed(time.Now()), idgen.UUID{}, nil)

	log.Record(context.Background(), "agent-1", "owner-1", activity.ActionProposalCreated, activity.ActorTypeAgent, "proposal", "p1", nil)
	log.Record(context.Background(), "agent-1", "owner-1", activity.ActionPaymentExecuted, activity.ActorTypeSystem, "proposal", "p1", nil)
	log.Record(context.Background(), "agent-2", "owner-2", activity.ActionProposalCreated, activity.ActorTypeAgent, "proposal", "p2", nil)

	byOwner, err := log.ListByOwner(context.Background(), "owner-1", 10)
	require.NoError(t, err)
	require.Len(t, byOwner, 2)

	byKind, err := log.ListByActionKind(context.Background(), "owner-1", activity.ActionPaymentExecuted, 10)
	require.NoError(t, err)
	require.Len(t, byKind, 1)
	require.Equal(t, activity.ActionPaymentExecuted, byKind[0].ActionKind)
}

func TestListByAgentRespectsLimit(t *testing.T) {
	store := memory.NewActivityStore()
	log := activity.NewLog(store, clock.NewFixed(time.Now()), idgen.UUID{}, nil)

	for i := 0; i < 5; i++ {
		log.Record(context.Background(), "agent-1", "owner-1", activity.ActionProposalCreated, activity.ActorTypeAgent, "proposal", "p", nil)
	}

	limited, err := log.ListByAgent(context.Background(), "agent-1", 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
}
