package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/eleanor-project/eleanor/internal/adapter/lrucache"
	"github.com/eleanor-project/eleanor/internal/domain"
	"github.com/eleanor-project/eleanor/internal/domain/critic"
	"github.com/eleanor-project/eleanor/internal/domain/decision"
	"github.com/eleanor-project/eleanor/internal/engine"
	"github.com/eleanor-project/eleanor/internal/port/audit"
	"github.com/eleanor-project/eleanor/internal/port/precedent"
)

type allowCritic struct{ name string }

func (c allowCritic) Name() string { return c.name }

func (c allowCritic) Evaluate(_ context.Context, _ decision.Case) (decision.Verdict, error) {
	return decision.Verdict{Outcome: decision.OutcomeAllow, Confidence: 0.9}, nil
}

type memPrecedents struct {
	mu      sync.Mutex
	matches []precedent.Match
	err     error
}

func (m *memPrecedents) Lookup(_ context.Context, _ string, _ int) ([]precedent.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.matches, m.err
}

func (m *memPrecedents) Store(_ context.Context, _ string, _ *decision.Aggregated) error {
	return nil
}

type memAudit struct {
	mu      sync.Mutex
	records map[string]*audit.Record
}

func (m *memAudit) Record(_ context.Context, rec *audit.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.records == nil {
		m.records = make(map[string]*audit.Record)
	}
	m.records[rec.DecisionID] = rec
	return nil
}

func (m *memAudit) Get(_ context.Context, decisionID string) (*audit.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[decisionID]
	if !ok {
		return nil, fmt.Errorf("%w: audit record for decision %s", domain.ErrNotFound, decisionID)
	}
	return rec, nil
}

func newTestServer(t *testing.T, h *Handlers) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	MountRoutes(r, h)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func newTestHandlers(t *testing.T) (*Handlers, *engine.Orchestrator, *memAudit) {
	t.Helper()
	snap, err := critic.NewSnapshot([]critic.Handle{{
		Critic:  allowCritic{name: "policy"},
		Name:    "policy",
		Weight:  1,
		Timeout: time.Second,
	}}, decision.Thresholds{Ambiguity: 0.45, MinConfidence: 0.25})
	if err != nil {
		t.Fatal(err)
	}

	auditLog := &memAudit{}
	orch, err := engine.NewOrchestrator(snap, engine.Options{
		Cache:         lrucache.New(16),
		AuditLog:      auditLog,
		CacheTTL:      time.Minute,
		MaxConcurrent: 8,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = orch.Close(context.Background()) })

	return &Handlers{
		Orchestrator:   orch,
		Precedents:     &memPrecedents{},
		Audit:          auditLog,
		PrecedentLimit: 10,
	}, orch, auditLog
}

func TestDecideCase(t *testing.T) {
	h, _, _ := newTestHandlers(t)
	srv := newTestServer(t, h)

	resp, err := http.Post(srv.URL+"/api/v1/decisions", "application/json",
		strings.NewReader(`{"kind": "tool", "action": "push"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var d decision.Aggregated
	if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
		t.Fatal(err)
	}
	if d.Verdict != decision.OutcomeAllow {
		t.Errorf("verdict = %s, want ALLOW", d.Verdict)
	}
	if d.ID == "" {
		t.Error("decision ID missing")
	}
}

func TestDecideCaseInvalidBody(t *testing.T) {
	h, _, _ := newTestHandlers(t)
	srv := newTestServer(t, h)

	resp, err := http.Post(srv.URL+"/api/v1/decisions", "application/json",
		strings.NewReader(`{not json`))
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestDecideCaseInvalidCase(t *testing.T) {
	h, _, _ := newTestHandlers(t)
	srv := newTestServer(t, h)

	// Missing action fails case validation.
	resp, err := http.Post(srv.URL+"/api/v1/decisions", "application/json",
		strings.NewReader(`{"kind": "tool"}`))
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestGetDecision(t *testing.T) {
	h, orch, _ := newTestHandlers(t)
	srv := newTestServer(t, h)

	d, err := orch.Decide(context.Background(), decision.Case{Kind: "tool", Action: "push"})
	if err != nil {
		t.Fatal(err)
	}

	// Audit records are written asynchronously after the decision returns.
	deadline := time.Now().Add(time.Second)
	var resp *http.Response
	for {
		resp, err = http.Get(srv.URL + "/api/v1/decisions/" + d.ID)
		if err != nil {
			t.Fatal(err)
		}
		if resp.StatusCode == http.StatusOK || time.Now().After(deadline) {
			break
		}
		_ = resp.Body.Close()
		time.Sleep(5 * time.Millisecond)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var rec audit.Record
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		t.Fatal(err)
	}
	if rec.DecisionID != d.ID {
		t.Errorf("decision_id = %s, want %s", rec.DecisionID, d.ID)
	}
}

func TestGetDecisionNotFound(t *testing.T) {
	h, _, _ := newTestHandlers(t)
	srv := newTestServer(t, h)

	resp, err := http.Get(srv.URL + "/api/v1/decisions/no-such-id")
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestLookupPrecedents(t *testing.T) {
	h, _, _ := newTestHandlers(t)
	srv := newTestServer(t, h)

	resp, err := http.Get(srv.URL + "/api/v1/precedents/abc123")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var matches []precedent.Match
	if err := json.NewDecoder(resp.Body).Decode(&matches); err != nil {
		t.Fatal(err)
	}
	if matches == nil {
		t.Error("empty result must encode as [], not null")
	}
}

func TestLookupPrecedentsBadLimit(t *testing.T) {
	h, _, _ := newTestHandlers(t)
	srv := newTestServer(t, h)

	for _, limit := range []string{"0", "101", "-5", "abc"} {
		resp, err := http.Get(srv.URL + "/api/v1/precedents/abc123?limit=" + limit)
		if err != nil {
			t.Fatal(err)
		}
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("limit %q: status = %d, want 400", limit, resp.StatusCode)
		}
	}
}

func TestListCritics(t *testing.T) {
	h, _, _ := newTestHandlers(t)
	srv := newTestServer(t, h)

	resp, err := http.Get(srv.URL + "/api/v1/critics")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()

	var body struct {
		ConfigFingerprint string       `json:"config_fingerprint"`
		Critics           []criticInfo `json:"critics"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.ConfigFingerprint == "" {
		t.Error("config_fingerprint missing")
	}
	if len(body.Critics) != 1 || body.Critics[0].Name != "policy" {
		t.Errorf("unexpected critics %+v", body.Critics)
	}
}

func TestReloadConfig(t *testing.T) {
	h, _, _ := newTestHandlers(t)
	h.Reload = func(context.Context) (string, string, int, error) {
		return "old-fp", "new-fp", 3, nil
	}
	srv := newTestServer(t, h)

	resp, err := http.Post(srv.URL+"/api/v1/config/reload", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var body struct {
		OldFingerprint string `json:"old_fingerprint"`
		NewFingerprint string `json:"new_fingerprint"`
		Critics        int    `json:"critics"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.OldFingerprint != "old-fp" || body.NewFingerprint != "new-fp" || body.Critics != 3 {
		t.Errorf("unexpected reload response %+v", body)
	}
}

func TestInvalidateCache(t *testing.T) {
	h, orch, _ := newTestHandlers(t)
	srv := newTestServer(t, h)

	if _, err := orch.Decide(context.Background(), decision.Case{Kind: "tool", Action: "push"}); err != nil {
		t.Fatal(err)
	}

	resp, err := http.Post(srv.URL+"/api/v1/cache/invalidate", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
	if size := orch.CacheStats().Size; size != 0 {
		t.Errorf("cache size = %d after invalidation", size)
	}
}

func TestHealth(t *testing.T) {
	h, _, _ := newTestHandlers(t)
	srv := newTestServer(t, h)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %v", body["status"])
	}
	if body["config_fingerprint"] == "" {
		t.Error("config_fingerprint missing")
	}
}
