package decision

import (
	"testing"
)

func TestFingerprintDeterministic(t *testing.T) {
	a := Case{
		Kind:    "tool_call",
		Subject: "agent-1",
		Action:  "delete_repo",
		Fields:  map[string]any{"repo": "core", "force": true, "count": 3},
	}
	b := Case{
		Kind:    "tool_call",
		Subject: "agent-1",
		Action:  "delete_repo",
		Fields:  map[string]any{"count": 3, "force": true, "repo": "core"},
	}

	fpA := a.Fingerprint()
	fpB := b.Fingerprint()
	if fpA != fpB {
		t.Errorf("equal cases produced different fingerprints:\n%s\n%s", fpA, fpB)
	}
	if len(fpA) != 64 {
		t.Errorf("expected 64-char hex digest, got %d chars", len(fpA))
	}

	// Repeated computation is stable.
	if a.Fingerprint() != fpA {
		t.Error("fingerprint changed between calls")
	}
}

func TestFingerprintSensitivity(t *testing.T) {
	base := Case{Kind: "tool_call", Subject: "agent-1", Action: "read_file"}

	changed := base
	changed.Action = "write_file"
	if base.Fingerprint() == changed.Fingerprint() {
		t.Error("different actions produced the same fingerprint")
	}

	withFields := base
	withFields.Fields = map[string]any{"path": "/etc/passwd"}
	if base.Fingerprint() == withFields.Fingerprint() {
		t.Error("added fields did not change the fingerprint")
	}
}

func TestFingerprintUnmarshalable(t *testing.T) {
	c := Case{
		Kind:   "tool_call",
		Action: "x",
		Fields: map[string]any{"bad": make(chan int)},
	}
	if got := c.Fingerprint(); got != "unfingerprintable" {
		t.Errorf("expected sentinel fingerprint, got %q", got)
	}
}

func TestCaseValidate(t *testing.T) {
	tests := []struct {
		name    string
		c       Case
		wantErr bool
	}{
		{"valid", Case{Kind: "tool_call", Action: "read"}, false},
		{"missing kind", Case{Action: "read"}, true},
		{"missing action", Case{Kind: "tool_call"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.c.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("expected no error, got %v", err)
			}
		})
	}
}

func TestVerdictValidate(t *testing.T) {
	tests := []struct {
		name    string
		v       Verdict
		wantErr bool
	}{
		{"valid allow", Verdict{Outcome: OutcomeAllow, Confidence: 0.5}, false},
		{"valid block", Verdict{Outcome: OutcomeBlock, Confidence: 1.0}, false},
		{"boundary zero", Verdict{Outcome: OutcomeDeny, Confidence: 0}, false},
		{"error outcome not votable", Verdict{Outcome: OutcomeError, Confidence: 0.5}, true},
		{"unknown outcome", Verdict{Outcome: "MAYBE", Confidence: 0.5}, true},
		{"confidence above one", Verdict{Outcome: OutcomeAllow, Confidence: 1.2}, true},
		{"negative confidence", Verdict{Outcome: OutcomeAllow, Confidence: -0.1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.v.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("expected no error, got %v", err)
			}
		})
	}
}

func TestAggregatedCloneIsolation(t *testing.T) {
	orig := &Aggregated{
		ID:                  "d1",
		Verdict:             OutcomeDeny,
		VerdictScores:       map[Outcome]float64{OutcomeDeny: 1.5, OutcomeAllow: 0.9},
		SafeguardsTriggered: []string{"uncertainty"},
		CriticOutputs:       []Verdict{{CriticName: "a", Outcome: OutcomeDeny, Confidence: 0.8}},
		Failures:            []CriticFailure{{CriticName: "b", Reason: FailureTimeout}},
	}

	clone := orig.Clone()
	clone.VerdictScores[OutcomeAllow] = 99
	clone.SafeguardsTriggered[0] = "mutated"
	clone.CriticOutputs[0].CriticName = "mutated"
	clone.Failures[0].CriticName = "mutated"

	if orig.VerdictScores[OutcomeAllow] != 0.9 {
		t.Error("clone shares VerdictScores map with original")
	}
	if orig.SafeguardsTriggered[0] != "uncertainty" {
		t.Error("clone shares SafeguardsTriggered slice with original")
	}
	if orig.CriticOutputs[0].CriticName != "a" {
		t.Error("clone shares CriticOutputs slice with original")
	}
	if orig.Failures[0].CriticName != "b" {
		t.Error("clone shares Failures slice with original")
	}
}
