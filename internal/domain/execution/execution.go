// Package execution implements the Execution Bridge (C7): calling a
// primary execution backend through a circuit breaker, falling back to
// a secondary in-process backend on open/failure.
package execution

import (
	"context"
	"time"

	"github.com/R3E-Network/agent-proposal-engine/internal/platform/apperrors"
	"github.com/R3E-Network/agent-proposal-engine/internal/platform/resilience"
)

// ServedBy names which backend actually executed a payment.
type ServedBy string

const (
	ServedByPrimary   ServedBy = "primary"
	ServedBySecondary ServedBy = "secondary"
)

const primaryBreakerService = "primary-exec"

// Request is the abstract outbound execution call.
type Request struct {
	From    string
	To      string
	Amount  string
	Token   string
	ChainID int64
	Memo    string
}

// Response carries the settled transaction hash.
type Response struct {
	TxHash string
}

// Backend is the seam both the primary and secondary implementations
// satisfy.
type Backend interface {
	Execute(ctx context.Context, req Request) (Response, error)
}

// Result is what Bridge.Execute returns to the orchestrator.
type Result struct {
	TxHash   string
	ServedBy ServedBy
}

// FallbackObserver is notified whenever the secondary path serves a
// call, so the caller can emit an observability event.
type FallbackObserver func(ctx context.Context, reason error)

// Bridge implements the Execution Bridge contract (C7).
type Bridge struct {
	primary   Backend
	secondary Backend
	breakers  *resilience.Registry
	timeout   time.Duration
	onFallback FallbackObserver
}

func NewBridge(primary, secondary Backend, breakers *resilience.Registry, timeout time.Duration, onFallback FallbackObserver) *Bridge {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Bridge{primary: primary, secondary: secondary, breakers: breakers, timeout: timeout, onFallback: onFallback}
}

// Execute calls the primary backend through the primary-exec breaker;
// on an open breaker or any execution error it falls back to the
// secondary backend and annotates the result accordingly.
func (b *Bridge) Execute(ctx context.Context, req Request) (Result, error) {
	breaker := b.breakers.Get(primaryBreakerService)

	if err := breaker.Allow(); err != nil {
		return b.fallback(ctx, req, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	resp, err := b.primary.Execute(callCtx, req)
	if err != nil {
		breaker.Record(false)
		return b.fallback(ctx, req, err)
	}
	breaker.Record(true)
	return Result{TxHash: resp.TxHash, ServedBy: ServedByPrimary}, nil
}

func (b *Bridge) fallback(ctx context.Context, req Request, reason error) (Result, error) {
	if b.onFallback != nil {
		b.onFallback(ctx, reason)
	}
	resp, err := b.secondary.Execute(ctx, req)
	if err != nil {
		return Result{}, apperrors.ExecutionFailed("secondary", true, err)
	}
	return Result{TxHash: resp.TxHash, ServedBy: ServedBySecondary}, nil
}
