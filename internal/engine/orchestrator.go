package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/eleanor-project/eleanor/internal/adapter/otel"
	"github.com/eleanor-project/eleanor/internal/adapter/ws"
	"github.com/eleanor-project/eleanor/internal/domain"
	"github.com/eleanor-project/eleanor/internal/domain/critic"
	"github.com/eleanor-project/eleanor/internal/domain/decision"
	"github.com/eleanor-project/eleanor/internal/port/audit"
	"github.com/eleanor-project/eleanor/internal/port/broadcast"
	"github.com/eleanor-project/eleanor/internal/port/decisioncache"
	"github.com/eleanor-project/eleanor/internal/port/eventbus"
	"github.com/eleanor-project/eleanor/internal/port/precedent"
)

// SubjectDecisionCompleted is the event bus subject for completed decisions.
const SubjectDecisionCompleted = "decisions.completed"

// notifyTimeout bounds the fire-and-forget collaborator calls after a
// decision so abandoned work cannot accumulate without bound.
const notifyTimeout = 10 * time.Second

// FailureRate summarizes one critic's reliability for the health surface.
type FailureRate struct {
	Runs     int64   `json:"runs"`
	Failures int64   `json:"failures"`
	Rate     float64 `json:"rate"`
}

// Orchestrator is the root of the decision core. Given a case it checks
// the cache, else runs the executor and aggregator, stores the result,
// and notifies the precedent store, audit log and event feeds
// asynchronously before returning.
type Orchestrator struct {
	exec       *Executor
	cache      decisioncache.Cache
	precedents precedent.Store
	auditLog   audit.Log
	hub        broadcast.Broadcaster
	bus        eventbus.Publisher
	metrics    *otel.Metrics

	snap     atomic.Pointer[critic.Snapshot]
	sem      *semaphore.Weighted
	flight   singleflight.Group
	cacheTTL time.Duration

	statsMu    sync.Mutex
	criticRuns map[string]*FailureRate

	notifyWG sync.WaitGroup
}

// Options carries the orchestrator's collaborators and tuning knobs.
// Precedents, AuditLog, Hub, Bus and Metrics are optional; nil disables
// the corresponding notification.
type Options struct {
	Cache         decisioncache.Cache
	Precedents    precedent.Store
	AuditLog      audit.Log
	Hub           broadcast.Broadcaster
	Bus           eventbus.Publisher
	Metrics       *otel.Metrics
	CacheTTL      time.Duration
	MaxConcurrent int64
}

// NewOrchestrator creates an orchestrator under the given configuration
// snapshot. The snapshot must contain at least one critic.
func NewOrchestrator(snap *critic.Snapshot, opts Options) (*Orchestrator, error) {
	if snap == nil || len(snap.Critics()) == 0 {
		return nil, fmt.Errorf("%w: orchestrator requires at least one critic", domain.ErrConfiguration)
	}
	if opts.Cache == nil {
		return nil, fmt.Errorf("%w: orchestrator requires a decision cache", domain.ErrConfiguration)
	}
	if opts.MaxConcurrent < 1 {
		opts.MaxConcurrent = 64
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}

	o := &Orchestrator{
		exec:       NewExecutor(),
		cache:      opts.Cache,
		precedents: opts.Precedents,
		auditLog:   opts.AuditLog,
		hub:        opts.Hub,
		bus:        opts.Bus,
		metrics:    opts.Metrics,
		sem:        semaphore.NewWeighted(opts.MaxConcurrent),
		cacheTTL:   opts.CacheTTL,
		criticRuns: make(map[string]*FailureRate),
	}
	o.snap.Store(snap)
	return o, nil
}

// ApplySnapshot atomically swaps the configuration snapshot. The swap
// happens before any subsequent cache lookup uses the new fingerprint,
// so a live policy change can never serve decisions cached under the old
// configuration.
func (o *Orchestrator) ApplySnapshot(snap *critic.Snapshot) error {
	if snap == nil || len(snap.Critics()) == 0 {
		return fmt.Errorf("%w: snapshot has no critics", domain.ErrConfiguration)
	}
	old := o.snap.Swap(snap)
	slog.Info("config snapshot applied",
		"old_fingerprint", old.Fingerprint(),
		"new_fingerprint", snap.Fingerprint(),
		"critics", len(snap.Critics()),
	)
	return nil
}

// Snapshot returns the current configuration snapshot.
func (o *Orchestrator) Snapshot() *critic.Snapshot {
	return o.snap.Load()
}

// ConfigFingerprint returns the fingerprint of the active configuration.
func (o *Orchestrator) ConfigFingerprint() string {
	return o.snap.Load().Fingerprint()
}

// CacheStats returns the decision cache counters.
func (o *Orchestrator) CacheStats() decisioncache.Stats {
	return o.cache.Stats()
}

// InvalidateCache evicts every cached decision. Key drift from config
// fingerprints already partitions entries across reloads; this is the
// operator escape hatch that forces eviction instead of waiting for it.
func (o *Orchestrator) InvalidateCache(ctx context.Context) error {
	return o.cache.InvalidateAll(ctx)
}

// Outstanding returns the number of in-flight critic evaluations,
// including abandoned ones.
func (o *Orchestrator) Outstanding() int64 {
	return o.exec.Outstanding()
}

// FailureRates returns per-critic failure statistics for the health
// surface.
func (o *Orchestrator) FailureRates() map[string]FailureRate {
	o.statsMu.Lock()
	defer o.statsMu.Unlock()
	out := make(map[string]FailureRate, len(o.criticRuns))
	for name, fr := range o.criticRuns {
		out[name] = *fr
	}
	return out
}

// Decide produces the governed decision for a case. Callers only ever
// see a well-formed decision (including the ERROR verdict) or a
// configuration/validation error; critic faults never escape.
func (o *Orchestrator) Decide(ctx context.Context, c decision.Case) (*decision.Aggregated, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	snap := o.snap.Load()

	if err := o.sem.Acquire(ctx, 1); err != nil {
		// Caller deadline fired while queued: answer with an ERROR
		// verdict instead of hanging or surfacing a raw context error.
		// Like every other ERROR path it is audited and announced but
		// never cached or stored as precedent.
		d := o.deadlineDecision(c, snap)
		o.notify(ctx, c, d)
		return d, nil
	}
	defer o.sem.Release(1)

	caseFP := c.Fingerprint()
	key := caseFP + "|" + snap.Fingerprint()

	res, err, shared := o.flight.Do(key, func() (any, error) {
		if cached, ok := o.cacheGet(ctx, caseFP, snap.Fingerprint()); ok {
			return cached, nil
		}
		return o.compute(ctx, c, caseFP, snap)
	})
	if err != nil {
		return nil, err
	}
	d := res.(*decision.Aggregated)

	if shared {
		// Followers collapsed onto another caller's computation read the
		// entry back from the cache so hit accounting reflects them.
		if cached, ok := o.cacheGet(ctx, caseFP, snap.Fingerprint()); ok {
			d = cached
		} else {
			d = d.Clone() // entry already expired or evicted; don't share the leader's copy
		}
	}

	if d.FromCache && o.metrics != nil {
		o.metrics.RecordCacheHit(ctx)
	}
	return d, nil
}

// cacheGet consults the decision cache, failing open: any cache error is
// logged and treated as a miss.
func (o *Orchestrator) cacheGet(ctx context.Context, caseFP, configFP string) (*decision.Aggregated, bool) {
	d, ok, err := o.cache.Get(ctx, caseFP, configFP)
	if err != nil {
		slog.Warn("decision cache get failed, treating as miss", "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	d.FromCache = true
	return d, true
}

// compute runs the executor and aggregator, caches the result, and kicks
// off the asynchronous collaborator notifications.
func (o *Orchestrator) compute(ctx context.Context, c decision.Case, caseFP string, snap *critic.Snapshot) (*decision.Aggregated, error) {
	ctx, span := otel.StartDecideSpan(ctx, caseFP, snap.Fingerprint())
	defer span.End()
	start := time.Now()

	verdicts, failures, err := o.exec.Run(ctx, c, snap.Critics())
	if err != nil {
		return nil, err
	}
	o.recordCriticStats(snap, failures)

	if ctx.Err() != nil {
		// The caller's deadline fired mid-run; in-flight critics were
		// abandoned by their own contexts. Do not cache; audit and
		// announce like any other ERROR decision.
		d := o.deadlineDecision(c, snap)
		d.Failures = failures
		o.notify(ctx, c, d)
		return d, nil
	}

	agg := Aggregate(verdicts, failures, snap)
	agg.ID = uuid.NewString()
	agg.CaseFingerprint = caseFP
	agg.ConfigFingerprint = snap.Fingerprint()
	agg.DecidedAt = time.Now().UTC()
	d := &agg

	if err := o.cache.Put(ctx, caseFP, snap.Fingerprint(), d, o.cacheTTL); err != nil {
		slog.Warn("decision cache put failed", "error", err)
	}

	if o.metrics != nil {
		o.metrics.RecordDecision(ctx, string(d.Verdict), time.Since(start), len(failures))
	}
	slog.Info("decision computed",
		"decision_id", d.ID,
		"verdict", d.Verdict,
		"confidence", d.Confidence,
		"dissent", d.DissentIndex,
		"failures", len(failures),
		"elapsed", time.Since(start),
	)

	o.notify(ctx, c, d)
	return d, nil
}

// notify invokes the external collaborators asynchronously. Their
// failures are logged for operators but never fail the decision
// response. ERROR decisions are audit-logged for visibility yet must not
// pollute the precedent store.
func (o *Orchestrator) notify(ctx context.Context, c decision.Case, d *decision.Aggregated) {
	snapshot := d.Clone()
	o.notifyWG.Add(1)
	go func() {
		defer o.notifyWG.Done()
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()

		if o.precedents != nil && snapshot.Verdict != decision.OutcomeError {
			if err := o.precedents.Store(nctx, snapshot.CaseFingerprint, snapshot); err != nil {
				slog.Error("precedent store failed", "decision_id", snapshot.ID, "error", err)
			}
		}

		if o.auditLog != nil {
			rec := &audit.Record{
				DecisionID:        snapshot.ID,
				CaseFingerprint:   snapshot.CaseFingerprint,
				ConfigFingerprint: snapshot.ConfigFingerprint,
				Case:              c,
				Decision:          *snapshot,
				RecordedAt:        time.Now().UTC(),
			}
			if err := o.auditLog.Record(nctx, rec); err != nil {
				slog.Error("audit record failed", "decision_id", snapshot.ID, "error", err)
			}
		}

		if o.hub != nil {
			o.hub.BroadcastEvent(nctx, ws.EventDecisionCompleted, ws.DecisionEvent{
				DecisionID:      snapshot.ID,
				Verdict:         string(snapshot.Verdict),
				Confidence:      snapshot.Confidence,
				DissentIndex:    snapshot.DissentIndex,
				Escalate:        snapshot.Escalate,
				CaseFingerprint: snapshot.CaseFingerprint,
			})
		}

		if o.bus != nil {
			payload, err := json.Marshal(snapshot)
			if err == nil {
				err = o.bus.Publish(nctx, SubjectDecisionCompleted, payload)
			}
			if err != nil {
				slog.Error("decision event publish failed", "decision_id", snapshot.ID, "error", err)
			}
		}
	}()
}

// deadlineDecision is the ERROR-equivalent result returned when the
// caller's deadline or cancellation fires. It is never cached nor stored
// as precedent.
func (o *Orchestrator) deadlineDecision(c decision.Case, snap *critic.Snapshot) *decision.Aggregated {
	return &decision.Aggregated{
		ID:                  uuid.NewString(),
		Verdict:             decision.OutcomeError,
		Confidence:          0,
		VerdictScores:       map[decision.Outcome]float64{},
		SafeguardsTriggered: []string{decision.SafeguardDeadlineExceeded},
		Escalate:            true,
		CaseFingerprint:     c.Fingerprint(),
		ConfigFingerprint:   snap.Fingerprint(),
		DecidedAt:           time.Now().UTC(),
	}
}

func (o *Orchestrator) recordCriticStats(snap *critic.Snapshot, failures []decision.CriticFailure) {
	o.statsMu.Lock()
	defer o.statsMu.Unlock()
	for _, h := range snap.Critics() {
		fr := o.criticRuns[h.Name]
		if fr == nil {
			fr = &FailureRate{}
			o.criticRuns[h.Name] = fr
		}
		fr.Runs++
	}
	for _, f := range failures {
		fr := o.criticRuns[f.CriticName]
		if fr == nil {
			fr = &FailureRate{}
			o.criticRuns[f.CriticName] = fr
		}
		fr.Failures++
	}
	for _, fr := range o.criticRuns {
		if fr.Runs > 0 {
			fr.Rate = float64(fr.Failures) / float64(fr.Runs)
		}
	}
}

// Close waits for in-flight collaborator notifications to drain, bounded
// by the context.
func (o *Orchestrator) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.notifyWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
