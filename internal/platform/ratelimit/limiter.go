// Package ratelimit enforces each agent's rate_limit_per_minute using a
// token bucket per agent.
package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"
)

// Limiter holds one token bucket per agent ID, sized to the agent's
// configured requests-per-minute.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

func New() *Limiter {
	return &Limiter{buckets: make(map[string]*rate.Limiter)}
}

// Allow consumes one token for agentID, creating its bucket (sized to
// perMinute, with a burst equal to the per-minute allowance) on first
// use. perMinute <= 0 disables limiting for that agent.
func (l *Limiter) Allow(agentID string, perMinute int) bool {
	if perMinute <= 0 {
		return true
	}
	l.mu.Lock()
	b, ok := l.buckets[agentID]
	if !ok {
		perSecond := float64(perMinute) / 60.0
		b = rate.NewLimiter(rate.Limit(perSecond), perMinute)
		l.buckets[agentID] = b
	}
	l.mu.Unlock()
	return b.Allow()
}

// Reset drops an agent's bucket, e.g. after its rate limit is edited.
func (l *Limiter) Reset(agentID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, agentID)
}
