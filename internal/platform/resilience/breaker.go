// Package resilience implements the per-service circuit breaker that
// guards outbound dependencies (the execution backends and each
// webhook target host).
package resilience

import (
	"sync"
	"time"

	"github.com/R3E-Network/agent-proposal-engine/internal/platform/apperrors"
	"github.com/R3E-Network/agent-proposal-engine/internal/platform/clock"
)

// State is one of the three circuit breaker states.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config holds the thresholds named in the component design.
type Config struct {
	FailureThreshold int
	SuccessThreshold int
	OpenTimeout      time.Duration
	ResetTimeout     time.Duration
	OnStateChange    func(service string, from, to State)
}

// DefaultConfig returns the defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		OpenTimeout:      30 * time.Second,
		ResetTimeout:     60 * time.Second,
	}
}

// Breaker is a single named circuit breaker instance.
type Breaker struct {
	service string
	clock   clock.Clock
	cfg     Config

	mu          sync.Mutex
	state       State
	failures    int
	successes   int
	lastFailure time.Time
	waitFor     time.Duration
}

// New constructs a closed breaker for service, using c for time so
// tests can drive it deterministically.
func New(service string, cfg Config, c clock.Clock) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 60 * time.Second
	}
	if c == nil {
		c = clock.Real()
	}
	return &Breaker{service: service, clock: c, cfg: cfg, state: StateClosed}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a call may proceed, transitioning open→half-open
// when the open timeout has elapsed. Returns a TRANSIENT/breaker-open
// AppError when the call must be short-circuited.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		elapsed := b.clock.Now().Sub(b.lastFailure)
		if elapsed >= b.waitFor {
			b.setState(StateHalfOpen)
			return nil
		}
		retryAfter := b.waitFor - elapsed
		return apperrors.BreakerOpen(b.service, retryAfter.String())
	default:
		return nil
	}
}

// TimeUntilRetry returns how long remains before a call may be
// attempted again; zero when the breaker isn't open.
func (b *Breaker) TimeUntilRetry() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateOpen {
		return 0
	}
	elapsed := b.clock.Now().Sub(b.lastFailure)
	remaining := b.waitFor - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Record reports the outcome of a call that Allow permitted.
func (b *Breaker) Record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if success {
		b.onSuccess()
	} else {
		b.onFailure()
	}
}

func (b *Breaker) onSuccess() {
	switch b.state {
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.setState(StateClosed)
		}
	case StateClosed:
		b.failures = 0
	}
}

func (b *Breaker) onFailure() {
	b.lastFailure = b.clock.Now()

	switch b.state {
	case StateHalfOpen:
		// A failed probe resets the clock: the next wait uses
		// reset_timeout rather than the original open_timeout.
		b.waitFor = b.cfg.ResetTimeout
		b.setState(StateOpen)
	case StateClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.waitFor = b.cfg.OpenTimeout
			b.setState(StateOpen)
		}
	}
}

func (b *Breaker) setState(next State) {
	if b.state == next {
		return
	}
	prev := b.state
	b.state = next
	b.failures = 0
	b.successes = 0
	if b.cfg.OnStateChange != nil {
		go b.cfg.OnStateChange(b.service, prev, next)
	}
}

// Snapshot is a point-in-time, non-transactional view of a breaker,
// used by the periodic metrics-logging job and by tests.
type Snapshot struct {
	Service     string
	State       State
	Failures    int
	Successes   int
	LastFailure time.Time
}

func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		Service:     b.service,
		State:       b.state,
		Failures:    b.failures,
		Successes:   b.successes,
		LastFailure: b.lastFailure,
	}
}

// Registry owns every process-scoped breaker, one per service name
// (execution backend identifiers, or a webhook target host).
type Registry struct {
	mu       sync.Mutex
	cfg      Config
	clock    clock.Clock
	breakers map[string]*Breaker
}

func NewRegistry(cfg Config, c clock.Clock) *Registry {
	return &Registry{cfg: cfg, clock: c, breakers: make(map[string]*Breaker)}
}

// Get returns the named breaker, creating it on first use.
func (r *Registry) Get(service string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[service]
	if !ok {
		b = New(service, r.cfg, r.clock)
		r.breakers[service] = b
	}
	return b
}

// Snapshot returns a point-in-time view of every known breaker.
func (r *Registry) Snapshot() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Snapshot, 0, len(r.breakers))
	for _, b := range r.breakers {
		out = append(out, b.Snapshot())
	}
	return out
}
