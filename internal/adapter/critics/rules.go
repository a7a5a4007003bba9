// Package critics provides the built-in critic implementations: a
// deterministic glob-rule evaluator, an LLM-backed evaluator and a
// precedent-consistency evaluator.
package critics

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/eleanor-project/eleanor/internal/domain/decision"
)

// Confidence levels for rule verdicts. An explicit rule match is a
// strong signal; the fallthrough ALLOW is weaker.
const (
	ruleMatchConfidence   = 0.95
	ruleDefaultConfidence = 0.6
)

// rule binds a glob pattern to an outcome, first match wins.
type rule struct {
	pattern string
	outcome decision.Outcome
}

// RulesCritic evaluates cases against an ordered glob rule list matched
// on "kind:action". Patterns follow filepath.Match semantics:
//   - "*" matches everything
//   - "tool:*" matches "tool:delete_repo"
//   - "tool:delete_repo" matches exactly
type RulesCritic struct {
	name  string
	rules []rule
}

// NewRulesCritic builds a rules critic from params. The keys "block",
// "deny", "review" and "allow" hold comma-separated pattern lists; rules
// are ordered block, deny, review, allow. Unmatched cases get ALLOW at
// reduced confidence.
func NewRulesCritic(name string, params map[string]string) (*RulesCritic, error) {
	c := &RulesCritic{name: name}
	for _, group := range []struct {
		key     string
		outcome decision.Outcome
	}{
		{"block", decision.OutcomeBlock},
		{"deny", decision.OutcomeDeny},
		{"review", decision.OutcomeReview},
		{"allow", decision.OutcomeAllow},
	} {
		for _, pattern := range splitPatterns(params[group.key]) {
			if _, err := filepath.Match(pattern, ""); err != nil {
				return nil, fmt.Errorf("critic %q: bad pattern %q: %w", name, pattern, err)
			}
			c.rules = append(c.rules, rule{pattern: pattern, outcome: group.outcome})
		}
	}
	return c, nil
}

// Name implements critic.Critic.
func (c *RulesCritic) Name() string { return c.name }

// Evaluate matches the case against the rule list, first match wins.
func (c *RulesCritic) Evaluate(_ context.Context, cs decision.Case) (decision.Verdict, error) {
	target := cs.Kind + ":" + cs.Action
	for _, r := range c.rules {
		if matchPattern(r.pattern, target) || matchPattern(r.pattern, cs.Action) {
			return decision.Verdict{
				Outcome:       r.outcome,
				Confidence:    ruleMatchConfidence,
				Justification: fmt.Sprintf("matched rule %q", r.pattern),
			}, nil
		}
	}
	return decision.Verdict{
		Outcome:       decision.OutcomeAllow,
		Confidence:    ruleDefaultConfidence,
		Justification: "no rule matched",
	}, nil
}

func matchPattern(pattern, name string) bool {
	if pattern == name {
		return true
	}
	matched, err := filepath.Match(pattern, name)
	return err == nil && matched
}

func splitPatterns(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
