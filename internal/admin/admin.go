// Package admin is the supplemental health/metrics HTTP side-channel of
// SPEC_FULL.md §C.1: a small chi-routed mux, separate from the JSON-RPC
// tool transport, that an operator can scrape.
//
// Grounded on the teacher's cmd/gateway/main.go chi router setup
// (middleware.RealIP, middleware.Recoverer, a GET /health route) and its
// internal/telemetry Prometheus registration, reused near-verbatim for a
// single-purpose mux instead of the teacher's authenticated API surface.
package admin

import (
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JustHereToHelp/HydraMCP/internal/circuit"
)

// NewMux builds the admin chi.Router: GET /healthz (process liveness plus
// per-model circuit state) and GET /metrics (Prometheus exposition).
func NewMux(breaker *circuit.Breaker, reg *prometheus.Registry, version string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", healthHandler(breaker, version))
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	return r
}

type healthResponse struct {
	Status     string            `json:"status"`
	Version    string            `json:"version"`
	OpenModels map[string]string `json:"open_models,omitempty"`
}

func healthHandler(breaker *circuit.Breaker, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "healthy", Version: version}

		if breaker != nil {
			open := breaker.OpenModels()
			sort.Strings(open)
			if len(open) > 0 {
				resp.OpenModels = make(map[string]string, len(open))
				for _, id := range open {
					resp.OpenModels[id] = breaker.CooldownRemaining(id).Round(time.Second).String()
				}
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}
