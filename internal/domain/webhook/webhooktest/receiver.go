// Package webhooktest provides an embeddable HTTP receiver that plays
// the role of an agent's webhook endpoint in integration tests,
// recording every delivery it receives (body, headers, signature) so
// tests can assert on signing and retry behavior end to end.
package webhooktest

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/go-chi/chi/v5"
)

// Received is one recorded inbound delivery.
type Received struct {
	Body      []byte
	Signature string
	Timestamp string
	EventType string
	DeliveryID string
}

// Receiver is a test double for an agent's webhook endpoint.
type Receiver struct {
	mu          sync.Mutex
	received    []Received
	statusQueue []int // consumed in order; once exhausted, responds 200
	server      *httptest.Server
}

// New starts an httptest server backed by a chi router. statusQueue, if
// non-empty, dictates the HTTP status of successive requests (used to
// script "fail twice then succeed" scenarios); once exhausted every
// further request gets 200.
func New(statusQueue ...int) *Receiver {
	rec := &Receiver{statusQueue: statusQueue}

	router := chi.NewRouter()
	router.Post("/webhook", rec.handle)
	rec.server = httptest.NewServer(router)
	return rec
}

func (r *Receiver) handle(w http.ResponseWriter, req *http.Request) {
	body, _ := io.ReadAll(req.Body)

	r.mu.Lock()
	status := http.StatusOK
	if len(r.statusQueue) > 0 {
		status = r.statusQueue[0]
		r.statusQueue = r.statusQueue[1:]
	}
	r.received = append(r.received, Received{
		Body:       body,
		Signature:  req.Header.Get("X-Webhook-Signature"),
		Timestamp:  req.Header.Get("X-Webhook-Timestamp"),
		EventType:  req.Header.Get("X-Webhook-Event"),
		DeliveryID: req.Header.Get("X-Webhook-ID"),
	})
	r.mu.Unlock()

	w.WriteHeader(status)
}

// URL returns the receiver's webhook endpoint, suitable for
// agent.Agent.WebhookURL in a test.
func (r *Receiver) URL() string {
	return r.server.URL + "/webhook"
}

// Received returns every delivery recorded so far, in arrival order.
func (r *Receiver) Received() []Received {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Received, len(r.received))
	copy(out, r.received)
	return out
}

// Close shuts down the underlying httptest server.
func (r *Receiver) Close() {
	r.server.Close()
}
