package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/R3E-Network/agent-proposal-engine/internal/domain/agent"
	"github.com/R3E-Network/agent-proposal-engine/internal/platform/clock"
	"github.com/R3E-Network/agent-proposal-engine/internal/platform/idgen"
	"github.com/R3E-Network/agent-proposal-engine/internal/platform/logging"
	"github.com/R3E-Network/agent-proposal-engine/internal/platform/resilience"
)

// Store is the persistence seam for webhook deliveries. PickDue must
// atomically claim a due delivery (mark it delivering) so that a
// second scanner instance cannot re-pick the same row until the
// attempt resolves.
type Store interface {
	Create(ctx context.Context, d *Delivery) error
	Get(ctx context.Context, id string) (*Delivery, error)
	ListByAgent(ctx context.Context, agentID string, limit int) ([]*Delivery, error)
	ListFailed(ctx context.Context, agentID string) ([]*Delivery, error)
	PickDue(ctx context.Context, now time.Time) (*Delivery, error)
	Save(ctx context.Context, d *Delivery) error
}

// AgentLookup is the narrow slice of the Agent Registry the pipeline
// needs: the webhook URL and signing secret for a given agent.
type AgentLookup interface {
	Get(ctx context.Context, id string) (*agent.Agent, error)
}

type outboundBody struct {
	Event      string      `json:"event"`
	Data       interface{} `json:"data"`
	Timestamp  string      `json:"timestamp"`
	DeliveryID string      `json:"delivery_id"`
}

// Pipeline implements the Webhook Delivery Pipeline contract (C6).
type Pipeline struct {
	store    Store
	agents   AgentLookup
	breakers *resilience.Registry
	client   *http.Client
	clock    clock.Clock
	ids      idgen.Generator
	timeout  time.Duration
	logger   *logging.Logger
}

func NewPipeline(store Store, agents AgentLookup, breakers *resilience.Registry, client *http.Client, c clock.Clock, ids idgen.Generator, timeout time.Duration, logger *logging.Logger) *Pipeline {
	if client == nil {
		client = &http.Client{}
	}
	if c == nil {
		c = clock.Real()
	}
	if ids == nil {
		ids = idgen.Default
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Pipeline{store: store, agents: agents, breakers: breakers, client: client, clock: c, ids: ids, timeout: timeout, logger: logger}
}

// Trigger enqueues a new delivery for agentID. If the agent has no
// webhook URL configured, this is a no-op (empty delivery id, no
// error): there is nowhere to deliver to.
func (p *Pipeline) Trigger(ctx context.Context, agentID string, eventType EventType, data interface{}) (string, error) {
	ag, err := p.agents.Get(ctx, agentID)
	if err != nil {
		return "", err
	}
	if ag.WebhookURL == "" {
		return "", nil
	}

	id := p.ids.New()
	now := p.clock.Now()
	body, err := json.Marshal(outboundBody{
		Event:      string(eventType),
		Data:       data,
		Timestamp:  now.UTC().Format(time.RFC3339),
		DeliveryID: id,
	})
	if err != nil {
		return "", fmt.Errorf("marshal webhook body: %w", err)
	}

	d := &Delivery{
		ID:          id,
		AgentID:     agentID,
		EventType:   eventType,
		Payload:     body,
		Status:      StatusPending,
		Attempts:    0,
		NextRetryAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := p.store.Create(ctx, d); err != nil {
		return "", err
	}
	return id, nil
}

// ProcessDue attempts every delivery whose next_retry_at has arrived,
// returning the number processed.
func (p *Pipeline) ProcessDue(ctx context.Context) (int, error) {
	now := p.clock.Now()
	count := 0
	for {
		d, err := p.store.PickDue(ctx, now)
		if err != nil {
			return count, err
		}
		if d == nil {
			return count, nil
		}
		p.attempt(ctx, d)
		count++
	}
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Host
}

func (p *Pipeline) attempt(ctx context.Context, d *Delivery) {
	ag, err := p.agents.Get(ctx, d.AgentID)
	if err != nil || ag.WebhookURL == "" {
		d.Status = StatusFailed
		d.ErrorMessage = "agent webhook no longer configured"
		d.UpdatedAt = p.clock.Now()
		_ = p.store.Save(ctx, d)
		return
	}

	breaker := p.breakers.Get(hostOf(ag.WebhookURL))
	if err := breaker.Allow(); err != nil {
		d.Status = StatusRetrying
		d.NextRetryAt = p.clock.Now().Add(breaker.TimeUntilRetry())
		d.UpdatedAt = p.clock.Now()
		_ = p.store.Save(ctx, d)
		return
	}

	now := p.clock.Now()
	d.Attempts++
	d.LastAttemptAt = &now
	d.Status = StatusDelivering
	d.UpdatedAt = now
	_ = p.store.Save(ctx, d)

	statusCode, attemptErr := p.send(ctx, ag, d)
	breaker.Record(attemptErr == nil)

	d.ResponseStatus = statusCode
	if attemptErr == nil {
		d.Status = StatusDelivered
		d.ErrorMessage = ""
	} else {
		d.ErrorMessage = attemptErr.Error()
		if d.Attempts >= MaxAttempts {
			d.Status = StatusFailed
		} else {
			d.Status = StatusRetrying
			d.NextRetryAt = p.clock.Now().Add(DelayForAttempt(d.Attempts))
		}
	}
	d.UpdatedAt = p.clock.Now()
	_ = p.store.Save(ctx, d)

	if p.logger != nil {
		p.logger.LogWebhookAttempt(ctx, d.ID, string(d.EventType), d.Attempts, statusCode, attemptErr)
	}
}

func (p *Pipeline) send(ctx context.Context, ag *agent.Agent, d *Delivery) (int, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, ag.WebhookURL, bytes.NewReader(d.Payload))
	if err != nil {
		return 0, fmt.Errorf("build webhook request: %w", err)
	}
	sig := Sign(d.Payload, ag.WebhookSecret())
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", sig)
	req.Header.Set("X-Webhook-Timestamp", strconv.FormatInt(p.clock.Now().Unix(), 10))
	req.Header.Set("X-Webhook-Event", string(d.EventType))
	req.Header.Set("X-Webhook-ID", d.ID)

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("webhook receiver returned status %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

// Sign computes the hex HMAC-SHA256 of body under secret, the signed
// input being the raw body bytes.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches HMAC-SHA256(body, secret).
func Verify(body []byte, signature, secret string) bool {
	expected := Sign(body, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (p *Pipeline) GetDeliveries(ctx context.Context, agentID string, limit int) ([]*Delivery, error) {
	return p.store.ListByAgent(ctx, agentID, limit)
}

// ListFailed surfaces terminally failed deliveries for operator review.
func (p *Pipeline) ListFailed(ctx context.Context, agentID string) ([]*Delivery, error) {
	return p.store.ListFailed(ctx, agentID)
}
