package critics

import (
	"context"
	"errors"
	"testing"

	"github.com/eleanor-project/eleanor/internal/domain/decision"
	"github.com/eleanor-project/eleanor/internal/port/precedent"
)

// stubStore serves a fixed match set.
type stubStore struct {
	matches   []precedent.Match
	err       error
	lastLimit int
}

func (s *stubStore) Lookup(_ context.Context, _ string, limit int) ([]precedent.Match, error) {
	s.lastLimit = limit
	return s.matches, s.err
}

func (s *stubStore) Store(_ context.Context, _ string, _ *decision.Aggregated) error {
	return nil
}

func priors(verdicts ...decision.Outcome) []precedent.Match {
	out := make([]precedent.Match, len(verdicts))
	for i, v := range verdicts {
		out[i] = precedent.Match{Decision: decision.Aggregated{Verdict: v}}
	}
	return out
}

func TestPrecedentCriticNoHistory(t *testing.T) {
	c := NewPrecedentCritic("history", &stubStore{}, 5)

	v, err := c.Evaluate(context.Background(), decision.Case{Kind: "tool", Action: "push"})
	if err != nil {
		t.Fatal(err)
	}
	if v.Outcome != decision.OutcomeReview {
		t.Errorf("outcome = %s, want REVIEW for empty history", v.Outcome)
	}
	if v.Confidence != noPrecedentConfidence {
		t.Errorf("confidence = %v, want %v", v.Confidence, noPrecedentConfidence)
	}
}

func TestPrecedentCriticMajority(t *testing.T) {
	store := &stubStore{matches: priors(
		decision.OutcomeAllow,
		decision.OutcomeAllow,
		decision.OutcomeAllow,
		decision.OutcomeDeny,
	)}
	c := NewPrecedentCritic("history", store, 5)

	v, err := c.Evaluate(context.Background(), decision.Case{Kind: "tool", Action: "push"})
	if err != nil {
		t.Fatal(err)
	}
	if v.Outcome != decision.OutcomeAllow {
		t.Errorf("outcome = %s, want ALLOW majority", v.Outcome)
	}
	if v.Confidence != 0.75 {
		t.Errorf("confidence = %v, want 0.75", v.Confidence)
	}
	if store.lastLimit != 5 {
		t.Errorf("lookup limit = %d, want 5", store.lastLimit)
	}
}

func TestPrecedentCriticTieBreaksRestrictive(t *testing.T) {
	store := &stubStore{matches: priors(
		decision.OutcomeAllow,
		decision.OutcomeDeny,
	)}
	c := NewPrecedentCritic("history", store, 5)

	v, err := c.Evaluate(context.Background(), decision.Case{Kind: "tool", Action: "push"})
	if err != nil {
		t.Fatal(err)
	}
	if v.Outcome != decision.OutcomeDeny {
		t.Errorf("tied priors must resolve restrictive, got %s", v.Outcome)
	}
	if v.Confidence != 0.5 {
		t.Errorf("confidence = %v, want 0.5", v.Confidence)
	}
}

func TestPrecedentCriticLookupError(t *testing.T) {
	c := NewPrecedentCritic("history", &stubStore{err: errors.New("db down")}, 5)

	if _, err := c.Evaluate(context.Background(), decision.Case{Kind: "tool", Action: "push"}); err == nil {
		t.Error("expected lookup error to propagate")
	}
}

func TestPrecedentCriticDefaultLimit(t *testing.T) {
	store := &stubStore{}
	c := NewPrecedentCritic("history", store, 0)

	_, _ = c.Evaluate(context.Background(), decision.Case{Kind: "tool", Action: "push"})
	if store.lastLimit != defaultPrecedentLimit {
		t.Errorf("limit = %d, want default %d", store.lastLimit, defaultPrecedentLimit)
	}
}
