package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/eleanor-project/eleanor/internal/adapter/ws"
	"github.com/eleanor-project/eleanor/internal/domain/decision"
	"github.com/eleanor-project/eleanor/internal/engine"
	"github.com/eleanor-project/eleanor/internal/port/audit"
	"github.com/eleanor-project/eleanor/internal/port/precedent"
)

// ReloadFunc re-reads configuration, rebuilds the critic snapshot and
// applies it, returning the old and new config fingerprints.
type ReloadFunc func(ctx context.Context) (oldFingerprint, newFingerprint string, critics int, err error)

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	Orchestrator   *engine.Orchestrator
	Precedents     precedent.Store
	Audit          audit.Log
	Hub            *ws.Hub
	Reload         ReloadFunc
	PrecedentLimit int
}

// DecideCase evaluates a case and returns the aggregate decision.
func (h *Handlers) DecideCase(w http.ResponseWriter, r *http.Request) {
	c, ok := readJSON[decision.Case](w, r)
	if !ok {
		return
	}

	d, err := h.Orchestrator.Decide(r.Context(), c)
	if err != nil {
		writeDomainError(w, err, "decision failed")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// GetDecision returns the audit record for a decision ID.
func (h *Handlers) GetDecision(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")

	rec, err := h.Audit.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "decision not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// LookupPrecedents returns prior decisions for a case fingerprint.
func (h *Handlers) LookupPrecedents(w http.ResponseWriter, r *http.Request) {
	fingerprint := urlParam(r, "fingerprint")

	limit := h.PrecedentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			writeError(w, http.StatusBadRequest, "limit must be an integer in [1,100]")
			return
		}
		limit = n
	}

	matches, err := h.Precedents.Lookup(r.Context(), fingerprint, limit)
	if err != nil {
		writeDomainError(w, err, "precedent lookup failed")
		return
	}
	if matches == nil {
		matches = []precedent.Match{}
	}
	writeJSON(w, http.StatusOK, matches)
}

type criticInfo struct {
	Name      string        `json:"name"`
	Weight    float64       `json:"weight"`
	Override  bool          `json:"override"`
	Timeout   time.Duration `json:"timeout_ns"`
	Safeguard string        `json:"safeguard,omitempty"`
}

// ListCritics returns the active critic set and per-critic failure rates.
func (h *Handlers) ListCritics(w http.ResponseWriter, _ *http.Request) {
	snap := h.Orchestrator.Snapshot()
	rates := h.Orchestrator.FailureRates()

	critics := make([]criticInfo, 0, len(snap.Critics()))
	for _, c := range snap.Critics() {
		critics = append(critics, criticInfo{
			Name:      c.Name,
			Weight:    c.Weight,
			Override:  c.Override,
			Timeout:   c.Timeout,
			Safeguard: c.Safeguard,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"config_fingerprint": snap.Fingerprint(),
		"critics":            critics,
		"failure_rates":      rates,
	})
}

// ReloadConfig re-reads configuration and swaps the critic snapshot.
func (h *Handlers) ReloadConfig(w http.ResponseWriter, r *http.Request) {
	oldFP, newFP, critics, err := h.Reload(r.Context())
	if err != nil {
		writeDomainError(w, err, "config reload failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"old_fingerprint": oldFP,
		"new_fingerprint": newFP,
		"critics":         critics,
	})
}

// InvalidateCache evicts every cached decision.
func (h *Handlers) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	if err := h.Orchestrator.InvalidateCache(r.Context()); err != nil {
		writeDomainError(w, err, "cache invalidation failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Health reports engine liveness and the operational counters.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"status":             "ok",
		"config_fingerprint": h.Orchestrator.ConfigFingerprint(),
		"cache":              h.Orchestrator.CacheStats(),
		"critic_failures":    h.Orchestrator.FailureRates(),
		"outstanding":        h.Orchestrator.Outstanding(),
	}
	if h.Hub != nil {
		resp["ws_connections"] = h.Hub.ConnectionCount()
	}
	writeJSON(w, http.StatusOK, resp)
}
