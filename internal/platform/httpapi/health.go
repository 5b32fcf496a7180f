// Package httpapi exposes the demo binary's liveness surface. APLE's
// REST layer for agents/proposals/budgets is an external collaborator
// (out of scope per the component design); the only in-repo HTTP
// surface this package owns is a health probe for the demo binary.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/R3E-Network/agent-proposal-engine/internal/platform/resilience"
)

// NewHealthRouter builds a chi mux exposing /healthz and a breaker
// snapshot endpoint for operational visibility.
func NewHealthRouter(breakers *resilience.Registry) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	r.Get("/internal/breakers", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(breakers.Snapshot())
	})

	return r
}
