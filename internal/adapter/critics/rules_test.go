package critics

import (
	"context"
	"testing"

	"github.com/eleanor-project/eleanor/internal/domain/decision"
)

func TestRulesCriticMatching(t *testing.T) {
	c, err := NewRulesCritic("policy", map[string]string{
		"block":  "tool:delete_*",
		"deny":   "tool:force_push, rm_rf",
		"review": "tool:*",
		"allow":  "query:*",
	})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name       string
		cs         decision.Case
		outcome    decision.Outcome
		confidence float64
	}{
		{
			"block glob on kind:action",
			decision.Case{Kind: "tool", Action: "delete_repo"},
			decision.OutcomeBlock, ruleMatchConfidence,
		},
		{
			"deny exact kind:action",
			decision.Case{Kind: "tool", Action: "force_push"},
			decision.OutcomeDeny, ruleMatchConfidence,
		},
		{
			"deny bare action pattern",
			decision.Case{Kind: "shell", Action: "rm_rf"},
			decision.OutcomeDeny, ruleMatchConfidence,
		},
		{
			"review catches remaining tools",
			decision.Case{Kind: "tool", Action: "open_issue"},
			decision.OutcomeReview, ruleMatchConfidence,
		},
		{
			"allow glob",
			decision.Case{Kind: "query", Action: "list_repos"},
			decision.OutcomeAllow, ruleMatchConfidence,
		},
		{
			"fallthrough allows at reduced confidence",
			decision.Case{Kind: "chat", Action: "reply"},
			decision.OutcomeAllow, ruleDefaultConfidence,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := c.Evaluate(context.Background(), tt.cs)
			if err != nil {
				t.Fatal(err)
			}
			if v.Outcome != tt.outcome {
				t.Errorf("outcome = %s, want %s", v.Outcome, tt.outcome)
			}
			if v.Confidence != tt.confidence {
				t.Errorf("confidence = %v, want %v", v.Confidence, tt.confidence)
			}
		})
	}
}

func TestRulesCriticFirstMatchWins(t *testing.T) {
	// Both the block and allow groups match; block is ordered first.
	c, err := NewRulesCritic("policy", map[string]string{
		"block": "tool:*",
		"allow": "tool:push",
	})
	if err != nil {
		t.Fatal(err)
	}

	v, err := c.Evaluate(context.Background(), decision.Case{Kind: "tool", Action: "push"})
	if err != nil {
		t.Fatal(err)
	}
	if v.Outcome != decision.OutcomeBlock {
		t.Errorf("expected first matching group to win, got %s", v.Outcome)
	}
}

func TestRulesCriticRejectsBadPattern(t *testing.T) {
	if _, err := NewRulesCritic("policy", map[string]string{"deny": "tool:[unclosed"}); err == nil {
		t.Error("expected error for malformed glob pattern")
	}
}

func TestRulesCriticEmptyParams(t *testing.T) {
	c, err := NewRulesCritic("policy", nil)
	if err != nil {
		t.Fatal(err)
	}
	v, err := c.Evaluate(context.Background(), decision.Case{Kind: "tool", Action: "anything"})
	if err != nil {
		t.Fatal(err)
	}
	if v.Outcome != decision.OutcomeAllow || v.Confidence != ruleDefaultConfidence {
		t.Errorf("empty rule set should fall through to weak ALLOW, got %+v", v)
	}
}
