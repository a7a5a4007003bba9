// Package decision defines the core data model of the policy-decision
// engine: cases, critic verdicts, failures, and aggregated decisions.
package decision

import (
	"maps"
	"slices"
	"time"
)

// Outcome is the verdict category a critic (or the engine) can produce.
type Outcome string

const (
	OutcomeAllow  Outcome = "ALLOW"
	OutcomeDeny   Outcome = "DENY"
	OutcomeReview Outcome = "REVIEW"
	OutcomeBlock  Outcome = "BLOCK"

	// OutcomeError is reserved for the engine when every critic failed.
	// Critics may not return it.
	OutcomeError Outcome = "ERROR"
)

// VotablePriority lists the critic-votable outcomes in tie-break order:
// on equal normalized scores the more conservative outcome wins.
var VotablePriority = []Outcome{OutcomeBlock, OutcomeDeny, OutcomeReview, OutcomeAllow}

// Votable reports whether o is an outcome a critic may return.
func (o Outcome) Votable() bool {
	return slices.Contains(VotablePriority, o)
}

// Case is the immutable input to a decision. Fields carries an arbitrary
// JSON-like document; encoding/json marshals map keys in sorted order, so
// two cases with equal content always serialize identically regardless of
// construction order. That property is load-bearing: the serialized form
// is what the engine fingerprints for cache keys and precedent matching.
type Case struct {
	Kind    string         `json:"kind"`
	Subject string         `json:"subject,omitempty"`
	Action  string         `json:"action"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// Verdict is one critic's judgment of a case. Produced only by critics
// that completed within their timeout without raising.
type Verdict struct {
	CriticName    string        `json:"critic_name"`
	Outcome       Outcome       `json:"outcome"`
	Confidence    float64       `json:"confidence"`
	Justification string        `json:"justification,omitempty"`
	Elapsed       time.Duration `json:"elapsed"`
}

// FailureReason classifies why a critic produced no verdict.
type FailureReason string

const (
	FailureTimeout       FailureReason = "timeout"
	FailureException     FailureReason = "exception"
	FailureInvalidOutput FailureReason = "invalid_output"
)

// CriticFailure records one critic that yielded no verdict for a run.
// Every registered critic yields exactly one of {Verdict, CriticFailure}
// per run.
type CriticFailure struct {
	CriticName string        `json:"critic_name"`
	Reason     FailureReason `json:"reason"`
	Detail     string        `json:"detail,omitempty"`
}

// Safeguard flag names recorded in AggregatedDecision.SafeguardsTriggered.
const (
	SafeguardUncertainty      = "uncertainty"
	SafeguardLowConfidence    = "low_confidence"
	SafeguardOverrideConflict = "override_conflict"
	SafeguardAllCriticsFailed = "all_critics_failed"
	SafeguardDeadlineExceeded = "deadline_exceeded"
)

// Aggregated is the engine's single governed outcome for a case.
//
// VerdictScores holds the raw weighted sums (confidence x weight) per
// outcome, so the values total the applied weight rather than 1 and stay
// comparable across runs with different active critic sets.
type Aggregated struct {
	ID                  string             `json:"id,omitempty"`
	Verdict             Outcome            `json:"verdict"`
	Confidence          float64            `json:"confidence"`
	VerdictScores       map[Outcome]float64 `json:"verdict_scores"`
	DissentIndex        float64            `json:"dissent_index"`
	SafeguardsTriggered []string           `json:"safeguards_triggered,omitempty"`
	Escalate            bool               `json:"escalate"`
	CriticOutputs       []Verdict          `json:"critic_outputs,omitempty"`
	Failures            []CriticFailure    `json:"failures,omitempty"`

	CaseFingerprint   string    `json:"case_fingerprint,omitempty"`
	ConfigFingerprint string    `json:"config_fingerprint,omitempty"`
	DecidedAt         time.Time `json:"decided_at,omitempty"`

	// FromCache tags cache-sourced copies for observability. It is never
	// part of the cached value itself.
	FromCache bool `json:"from_cache,omitempty"`
}

// Clone returns a deep copy. The decision cache owns its entries
// exclusively and hands out clones so callers cannot mutate shared state.
func (a *Aggregated) Clone() *Aggregated {
	if a == nil {
		return nil
	}
	cp := *a
	cp.VerdictScores = maps.Clone(a.VerdictScores)
	cp.SafeguardsTriggered = slices.Clone(a.SafeguardsTriggered)
	cp.CriticOutputs = slices.Clone(a.CriticOutputs)
	cp.Failures = slices.Clone(a.Failures)
	return &cp
}

// Thresholds are the safeguard knobs applied after weighted voting.
type Thresholds struct {
	// Ambiguity forces REVIEW when the dissent index exceeds it.
	Ambiguity float64 `json:"ambiguity" yaml:"ambiguity"`
	// MinConfidence forces REVIEW when the winning normalized score
	// falls below it.
	MinConfidence float64 `json:"min_confidence" yaml:"min_confidence"`
}
