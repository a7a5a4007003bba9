// Package critic defines the evaluator contract and the immutable
// configuration snapshot the engine decides under.
package critic

import (
	"context"
	"fmt"
	"time"

	"github.com/eleanor-project/eleanor/internal/domain"
	"github.com/eleanor-project/eleanor/internal/domain/decision"
)

// Critic is an independent evaluator. How it computes its answer (rule
// set, external model call, precedent lookup) is its own business; the
// engine only requires this contract and that failures surface as errors
// or timeouts, never as sentinel verdicts.
type Critic interface {
	Name() string
	Evaluate(ctx context.Context, c decision.Case) (decision.Verdict, error)
}

// Handle wraps one critic with its governance parameters.
type Handle struct {
	Critic   Critic
	Name     string
	Weight   float64
	Override bool
	Timeout  time.Duration

	// Safeguard, when non-empty, names the safeguard flag recorded if
	// this critic votes BLOCK (e.g. "non_discrimination").
	Safeguard string
}

// Validate checks the handle's governance parameters.
func (h Handle) Validate() error {
	if h.Name == "" {
		return fmt.Errorf("%w: critic name is required", domain.ErrConfiguration)
	}
	if h.Critic == nil {
		return fmt.Errorf("%w: critic %q has no evaluator", domain.ErrConfiguration, h.Name)
	}
	if h.Weight < 0 {
		return fmt.Errorf("%w: critic %q weight %v is negative", domain.ErrConfiguration, h.Name, h.Weight)
	}
	if h.Timeout <= 0 {
		return fmt.Errorf("%w: critic %q timeout must be positive", domain.ErrConfiguration, h.Name)
	}
	return nil
}
