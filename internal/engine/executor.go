// Package engine implements the decision orchestration core: the
// concurrent critic executor, the verdict aggregator, and the
// orchestrator that ties them to the cache and collaborators.
package engine

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/eleanor-project/eleanor/internal/adapter/otel"
	"github.com/eleanor-project/eleanor/internal/domain"
	"github.com/eleanor-project/eleanor/internal/domain/critic"
	"github.com/eleanor-project/eleanor/internal/domain/decision"
)

// Executor runs critics concurrently against one case with per-critic
// timeouts and failure isolation: a broken critic never aborts the batch.
type Executor struct {
	// outstanding counts critic goroutines still running, including
	// abandoned ones that exceeded their timeout. Exposed for
	// backpressure observability.
	outstanding atomic.Int64
}

// NewExecutor creates an Executor.
func NewExecutor() *Executor {
	return &Executor{}
}

// Outstanding returns the number of critic evaluations currently running,
// including abandoned ones whose results will be discarded.
func (e *Executor) Outstanding() int64 {
	return e.outstanding.Load()
}

// settled is the single result every critic yields: exactly one of
// verdict or failure, never both, never neither.
type settled struct {
	verdict decision.Verdict
	failure *decision.CriticFailure
}

// Run invokes every critic at most once, concurrently, and returns once
// all have settled. Total wall-clock time is bounded by the largest
// individual critic timeout. It never returns an error for individual
// critic failures; only an empty critic list is a programmer error.
func (e *Executor) Run(ctx context.Context, c decision.Case, critics []critic.Handle) ([]decision.Verdict, []decision.CriticFailure, error) {
	if len(critics) == 0 {
		return nil, nil, fmt.Errorf("%w: executor requires a non-empty critic list", domain.ErrConfiguration)
	}

	results := make(chan settled, len(critics))
	for _, h := range critics {
		go func(h critic.Handle) {
			results <- e.invoke(ctx, h, c)
		}(h)
	}

	verdicts := make([]decision.Verdict, 0, len(critics))
	var failures []decision.CriticFailure
	for range critics {
		res := <-results
		if res.failure != nil {
			failures = append(failures, *res.failure)
			continue
		}
		verdicts = append(verdicts, res.verdict)
	}
	return verdicts, failures, nil
}

// invoke evaluates one critic under its own timeout. The evaluation runs
// in a separate goroutine so a critic that overruns its deadline is
// abandoned rather than awaited; its eventual result, if any, is
// discarded through the buffered channel.
func (e *Executor) invoke(ctx context.Context, h critic.Handle, c decision.Case) settled {
	ctx, span := otel.StartCriticSpan(ctx, h.Name)
	defer span.End()

	cctx, cancel := context.WithTimeout(ctx, h.Timeout)
	defer cancel()

	type evalOut struct {
		verdict decision.Verdict
		err     error
	}
	out := make(chan evalOut, 1)

	e.outstanding.Add(1)
	start := time.Now()
	go func() {
		defer e.outstanding.Add(-1)
		defer func() {
			if r := recover(); r != nil {
				out <- evalOut{err: fmt.Errorf("critic panic: %v", r)}
			}
		}()
		v, err := h.Critic.Evaluate(cctx, c)
		out <- evalOut{verdict: v, err: err}
	}()

	select {
	case res := <-out:
		if res.err != nil {
			return settled{failure: &decision.CriticFailure{
				CriticName: h.Name,
				Reason:     decision.FailureException,
				Detail:     res.err.Error(),
			}}
		}
		v := res.verdict
		v.CriticName = h.Name
		v.Elapsed = time.Since(start)
		if err := v.Validate(); err != nil {
			return settled{failure: &decision.CriticFailure{
				CriticName: h.Name,
				Reason:     decision.FailureInvalidOutput,
				Detail:     err.Error(),
			}}
		}
		return settled{verdict: v}
	case <-cctx.Done():
		return settled{failure: &decision.CriticFailure{
			CriticName: h.Name,
			Reason:     decision.FailureTimeout,
			Detail:     cctx.Err().Error(),
		}}
	}
}
