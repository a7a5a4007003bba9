package critics

import (
	"context"
	"fmt"

	"github.com/eleanor-project/eleanor/internal/domain/decision"
	"github.com/eleanor-project/eleanor/internal/port/precedent"
)

const (
	// noPrecedentConfidence is the near-abstain weight carried by the
	// REVIEW vote emitted when a case has no history.
	noPrecedentConfidence = 0.1

	defaultPrecedentLimit = 5
)

// PrecedentCritic votes for consistency with prior decisions on the same
// case fingerprint. The majority verdict among recent priors wins, with
// confidence scaled by how unanimous the priors are. A case with no
// history yields a near-abstain REVIEW.
type PrecedentCritic struct {
	name  string
	store precedent.Store
	limit int
}

// NewPrecedentCritic builds a precedent critic over the given store.
func NewPrecedentCritic(name string, store precedent.Store, limit int) *PrecedentCritic {
	if limit <= 0 {
		limit = defaultPrecedentLimit
	}
	return &PrecedentCritic{name: name, store: store, limit: limit}
}

// Name implements critic.Critic.
func (c *PrecedentCritic) Name() string { return c.name }

// Evaluate looks up priors and votes the majority verdict among them.
func (c *PrecedentCritic) Evaluate(ctx context.Context, cs decision.Case) (decision.Verdict, error) {
	matches, err := c.store.Lookup(ctx, cs.Fingerprint(), c.limit)
	if err != nil {
		return decision.Verdict{}, fmt.Errorf("lookup precedents: %w", err)
	}

	if len(matches) == 0 {
		return decision.Verdict{
			Outcome:       decision.OutcomeReview,
			Confidence:    noPrecedentConfidence,
			Justification: "no precedent for this case",
		}, nil
	}

	counts := make(map[decision.Outcome]int, len(matches))
	for _, m := range matches {
		counts[m.Decision.Verdict]++
	}

	// Walk outcomes in severity order so a count tie resolves to the
	// more restrictive verdict.
	var (
		winner decision.Outcome
		best   int
	)
	for _, o := range decision.VotablePriority {
		if counts[o] > best {
			winner, best = o, counts[o]
		}
	}

	return decision.Verdict{
		Outcome:       winner,
		Confidence:    float64(best) / float64(len(matches)),
		Justification: fmt.Sprintf("%d of %d priors decided %s", best, len(matches), winner),
	}, nil
}
