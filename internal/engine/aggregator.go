package engine

import (
	"slices"
	"sort"

	"github.com/eleanor-project/eleanor/internal/domain/critic"
	"github.com/eleanor-project/eleanor/internal/domain/decision"
)

// Aggregate combines the verdict/failure set of one executor run into a
// single governed decision under the snapshot's weights, override flags
// and thresholds. It is a pure function of its inputs: re-running it on
// the same set yields identical output, with all slices in a fixed order.
func Aggregate(verdicts []decision.Verdict, failures []decision.CriticFailure, snap *critic.Snapshot) decision.Aggregated {
	outputs := sortedVerdicts(verdicts)
	fails := sortedFailures(failures)

	if len(verdicts) == 0 {
		return decision.Aggregated{
			Verdict:             decision.OutcomeError,
			Confidence:          0,
			VerdictScores:       map[decision.Outcome]float64{},
			SafeguardsTriggered: []string{decision.SafeguardAllCriticsFailed},
			Escalate:            true,
			CriticOutputs:       outputs,
			Failures:            fails,
		}
	}

	var overrides, regular []decision.Verdict
	for _, v := range outputs {
		if h, ok := snap.Lookup(v.CriticName); ok && h.Override {
			overrides = append(overrides, v)
		} else {
			regular = append(regular, v)
		}
	}

	// Raw weighted sums per outcome across non-override verdicts. Stored
	// un-normalized so values total the applied weight and stay
	// comparable across runs with different active critic sets.
	scores := make(map[decision.Outcome]float64)
	totalWeight := 0.0
	for _, v := range regular {
		h, ok := snap.Lookup(v.CriticName)
		if !ok {
			continue
		}
		scores[v.Outcome] += v.Confidence * h.Weight
		totalWeight += h.Weight
	}

	agg := decision.Aggregated{
		VerdictScores: scores,
		CriticOutputs: outputs,
		Failures:      fails,
	}

	if len(overrides) > 0 {
		return decideOverride(agg, overrides)
	}

	// Weighted vote. Normalizing by the total applied weight keeps
	// threshold comparisons stable as the active critic count changes;
	// a raw sum would let any category clear a fixed threshold merely by
	// adding more weak critics.
	winner, winScore, sumScores := pickWinner(scores, totalWeight)

	agg.Verdict = winner
	agg.Confidence = winScore
	if sumScores > 0 {
		agg.DissentIndex = 1 - winScore/sumScores
	}

	th := snap.Thresholds()
	var safeguards []string
	if agg.DissentIndex > th.Ambiguity {
		safeguards = append(safeguards, decision.SafeguardUncertainty)
	}
	if winScore < th.MinConfidence {
		safeguards = append(safeguards, decision.SafeguardLowConfidence)
	}
	for _, v := range regular {
		if h, ok := snap.Lookup(v.CriticName); ok && h.Safeguard != "" && v.Outcome == decision.OutcomeBlock {
			safeguards = append(safeguards, h.Safeguard)
			agg.Escalate = true
		}
	}
	if len(safeguards) > 0 {
		// Critics may share a safeguard flag; the audit record carries
		// each flag once, in sorted order.
		sort.Strings(safeguards)
		agg.SafeguardsTriggered = slices.Compact(safeguards)
	}
	if agg.DissentIndex > th.Ambiguity || winScore < th.MinConfidence {
		agg.Verdict = decision.OutcomeReview
		agg.Escalate = true
	}

	return agg
}

// decideOverride resolves the override partition: agreeing override
// verdicts short-circuit the weighted vote; disagreeing overrides are a
// conflict routed to REVIEW with escalation, never silently tie-broken.
func decideOverride(agg decision.Aggregated, overrides []decision.Verdict) decision.Aggregated {
	outcome := overrides[0].Outcome
	confidence := overrides[0].Confidence
	for _, v := range overrides[1:] {
		if v.Outcome != outcome {
			agg.Verdict = decision.OutcomeReview
			agg.Confidence = 0
			agg.Escalate = true
			agg.SafeguardsTriggered = []string{decision.SafeguardOverrideConflict}
			return agg
		}
		if v.Confidence > confidence {
			confidence = v.Confidence
		}
	}

	agg.Verdict = outcome
	agg.Confidence = confidence
	return agg
}

// pickWinner selects the outcome with the highest normalized score,
// breaking ties by the fixed conservative priority order
// BLOCK > DENY > REVIEW > ALLOW.
func pickWinner(scores map[decision.Outcome]float64, totalWeight float64) (winner decision.Outcome, winScore, sumScores float64) {
	winner = decision.OutcomeReview
	first := true
	for _, o := range decision.VotablePriority {
		raw, voted := scores[o]
		if !voted {
			continue
		}
		norm := 0.0
		if totalWeight > 0 {
			norm = raw / totalWeight
		}
		sumScores += norm
		if first || norm > winScore {
			winner = o
			winScore = norm
			first = false
		}
	}
	return winner, winScore, sumScores
}

func sortedVerdicts(verdicts []decision.Verdict) []decision.Verdict {
	out := make([]decision.Verdict, len(verdicts))
	copy(out, verdicts)
	sort.Slice(out, func(i, j int) bool { return out[i].CriticName < out[j].CriticName })
	return out
}

func sortedFailures(failures []decision.CriticFailure) []decision.CriticFailure {
	out := make([]decision.CriticFailure, len(failures))
	copy(out, failures)
	sort.Slice(out, func(i, j int) bool { return out[i].CriticName < out[j].CriticName })
	return out
}
