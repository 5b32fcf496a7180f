// Package agent implements the Agent Registry (C1): agent identity,
// hashed API key issuance and validation, webhook secret issuance, and
// pause/resume/deactivate lifecycle.
package agent

import (
	"strings"
	"time"

	"github.com/R3E-Network/agent-proposal-engine/internal/platform/money"
)

// Status is the agent lifecycle status.
type Status string

const (
	StatusActive      Status = "active"
	StatusPaused      Status = "paused"
	StatusDeactivated Status = "deactivated"
)

// AutoExecuteRules are optional whitelists/ceilings; an absent field
// means unconstrained on that dimension. A nil *AutoExecuteRules means
// "all pass" (no rules configured at all).
type AutoExecuteRules struct {
	MaxSingleAmount   *money.Decimal
	MaxDailyAmount    *money.Decimal
	AllowedTokens     []string
	AllowedRecipients []string
	AllowedChains     []int64
}

// HasAllowedToken reports whether token is permitted, case-insensitively.
func (r *AutoExecuteRules) HasAllowedToken(token string) bool {
	if r == nil || len(r.AllowedTokens) == 0 {
		return true
	}
	return containsFold(r.AllowedTokens, token)
}

// HasAllowedRecipient reports whether recipient is permitted,
// case-insensitively.
func (r *AutoExecuteRules) HasAllowedRecipient(recipient string) bool {
	if r == nil || len(r.AllowedRecipients) == 0 {
		return true
	}
	return containsFold(r.AllowedRecipients, recipient)
}

// HasAllowedChain reports whether chainID is permitted.
func (r *AutoExecuteRules) HasAllowedChain(chainID int64) bool {
	if r == nil || len(r.AllowedChains) == 0 {
		return true
	}
	for _, c := range r.AllowedChains {
		if c == chainID {
			return true
		}
	}
	return false
}

func containsFold(set []string, value string) bool {
	for _, s := range set {
		if strings.EqualFold(s, value) {
			return true
		}
	}
	return false
}

// Agent is a non-human principal authorized to submit payment
// proposals on behalf of an Owner.
type Agent struct {
	ID           string
	Owner        string
	Status       Status
	APIKeyHash   string
	APIKeyPrefix string

	WebhookURL         string
	WebhookSecretHash  string
	webhookSecret      string // never serialized; see design notes on webhook secret storage.

	AutoExecuteEnabled bool
	AutoExecuteRules   *AutoExecuteRules
	RateLimitPerMinute int

	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastActiveAt *time.Time
}

// WebhookSecret returns the signing key used by the webhook pipeline.
// It is deliberately not exported as a struct field so that generic
// logging/serialization of an Agent value can never leak it.
func (a *Agent) WebhookSecret() string { return a.webhookSecret }

// SetWebhookSecret is used only by the registry at creation/rotation
// time and by stores reconstructing an Agent from persistence.
func (a *Agent) SetWebhookSecret(secret string) { a.webhookSecret = secret }

// IsActive reports whether the agent can currently authenticate and
// transact.
func (a *Agent) IsActive() bool { return a.Status == StatusActive }

// CreateInput carries the fields an owner supplies when registering an
// agent.
type CreateInput struct {
	Owner              string
	WebhookURL         string
	AutoExecuteEnabled bool
	AutoExecuteRules   *AutoExecuteRules
	RateLimitPerMinute int
}

// UpdateInput carries the mutable fields an owner may change.
type UpdateInput struct {
	WebhookURL         *string
	AutoExecuteEnabled *bool
	AutoExecuteRules   *AutoExecuteRules
	RateLimitPerMinute *int
}
