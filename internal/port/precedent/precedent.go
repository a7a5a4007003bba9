// Package precedent defines the port interface for the prior-decision
// store used for consistency checks.
package precedent

import (
	"context"
	"time"

	"github.com/eleanor-project/eleanor/internal/domain/decision"
)

// Match is one prior decision relevant to a case. Similarity is 1.0 for
// an exact fingerprint match; semantic similarity backends may return
// fractional values.
type Match struct {
	CaseFingerprint string              `json:"case_fingerprint"`
	Similarity      float64             `json:"similarity"`
	Decision        decision.Aggregated `json:"decision"`
	DecidedAt       time.Time           `json:"decided_at"`
}

// Store persists non-ERROR decisions and looks up priors for a case.
// Store failures must not fail the decision response (fire-and-forget),
// and implementations never receive ERROR decisions.
type Store interface {
	Lookup(ctx context.Context, caseFingerprint string, limit int) ([]Match, error)
	Store(ctx context.Context, caseFingerprint string, d *decision.Aggregated) error
}
