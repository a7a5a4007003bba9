package critics

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/eleanor-project/eleanor/internal/adapter/llm"
	"github.com/eleanor-project/eleanor/internal/domain/decision"
)

const llmSystemPrompt = `You are a policy critic. Evaluate the case and respond
with a single JSON object and nothing else:
{"outcome": "ALLOW|DENY|REVIEW|BLOCK", "confidence": <0.0-1.0>, "justification": "<one sentence>"}`

// Completer is the completion surface the LLM critic needs.
type Completer interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (string, error)
}

// LLMCritic asks a chat model for a verdict. The model's answer is parsed
// strictly and passed through without clamping, so a model emitting an
// out-of-range confidence or unknown outcome is surfaced as malformed
// output rather than silently repaired.
type LLMCritic struct {
	name   string
	model  string
	client Completer
}

// NewLLMCritic builds an LLM critic. params["model"] selects the model.
func NewLLMCritic(name string, client Completer, params map[string]string) (*LLMCritic, error) {
	model := params["model"]
	if model == "" {
		return nil, fmt.Errorf("critic %q: llm critic requires a model param", name)
	}
	return &LLMCritic{name: name, model: model, client: client}, nil
}

// Name implements critic.Critic.
func (c *LLMCritic) Name() string { return c.name }

// Evaluate sends the case to the model and parses its JSON verdict.
func (c *LLMCritic) Evaluate(ctx context.Context, cs decision.Case) (decision.Verdict, error) {
	payload, err := json.Marshal(cs)
	if err != nil {
		return decision.Verdict{}, fmt.Errorf("encode case: %w", err)
	}

	answer, err := c.client.Complete(ctx, llm.CompletionRequest{
		Model: c.model,
		Messages: []llm.Message{
			{Role: "system", Content: llmSystemPrompt},
			{Role: "user", Content: string(payload)},
		},
		Temperature: 0,
	})
	if err != nil {
		return decision.Verdict{}, fmt.Errorf("completion: %w", err)
	}

	return parseVerdict(answer)
}

// parseVerdict extracts the JSON verdict from a model answer. Code fences
// are tolerated; anything else malformed is an error.
func parseVerdict(answer string) (decision.Verdict, error) {
	trimmed := strings.TrimSpace(answer)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var raw struct {
		Outcome       string  `json:"outcome"`
		Confidence    float64 `json:"confidence"`
		Justification string  `json:"justification"`
	}
	dec := json.NewDecoder(strings.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&raw); err != nil {
		return decision.Verdict{}, fmt.Errorf("parse model verdict: %w", err)
	}

	return decision.Verdict{
		Outcome:       decision.Outcome(strings.ToUpper(raw.Outcome)),
		Confidence:    raw.Confidence,
		Justification: raw.Justification,
	}, nil
}
