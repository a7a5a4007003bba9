package decision

import (
	"fmt"

	"github.com/eleanor-project/eleanor/internal/domain"
)

// Validate checks a case has the minimum shape the engine requires.
func (c Case) Validate() error {
	if c.Kind == "" {
		return fmt.Errorf("%w: case kind is required", domain.ErrValidation)
	}
	if c.Action == "" {
		return fmt.Errorf("%w: case action is required", domain.ErrValidation)
	}
	return nil
}

// Validate enforces the verdict schema at the executor boundary. A critic
// returning an unknown outcome or a confidence outside [0,1] is recorded
// as an invalid-output failure, never silently coerced.
func (v Verdict) Validate() error {
	if !v.Outcome.Votable() {
		return fmt.Errorf("%w: unknown outcome %q", domain.ErrValidation, v.Outcome)
	}
	if v.Confidence < 0 || v.Confidence > 1 {
		return fmt.Errorf("%w: confidence %v outside [0,1]", domain.ErrValidation, v.Confidence)
	}
	return nil
}
