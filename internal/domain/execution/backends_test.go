package execution_test

import (
	"context"
	"strings"
	"testing"

	"github.com/R3E-Network/agent-proposal-engine/internal/domain/execution"
	"github.com/R3E-Network/agent-proposal-engine/internal/platform/idgen"
)

func TestInProcessBackendProducesDistinctHashes(t *testing.T) {
	backend := execution.NewInProcessBackend(idgen.UUID{})
	req := execution.Request{From: "owner-1", To: "0xabc", Amount: "100", Token: "USDC", ChainID: 1}

	resp1, err := backend.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp2, err := backend.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp1.TxHash == resp2.TxHash {
		t.Errorf("repeated calls with identical inputs should still produce distinct pseudo hashes")
	}
	if !strings.HasPrefix(resp1.TxHash, "0xsec") {
		t.Errorf("in-process tx hash should carry the 0xsec marker, got %q", resp1.TxHash)
	}
}
