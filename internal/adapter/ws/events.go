package ws

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Event type constants for WebSocket messages.
const (
	EventDecisionCompleted = "decision.completed"
	EventConfigReloaded    = "config.reloaded"
)

// DecisionEvent is broadcast when a decision completes.
type DecisionEvent struct {
	DecisionID      string  `json:"decision_id"`
	Verdict         string  `json:"verdict"`
	Confidence      float64 `json:"confidence"`
	DissentIndex    float64 `json:"dissent_index"`
	Escalate        bool    `json:"escalate"`
	CaseFingerprint string  `json:"case_fingerprint"`
}

// ConfigReloadedEvent is broadcast after a configuration snapshot swap.
type ConfigReloadedEvent struct {
	OldFingerprint string `json:"old_fingerprint"`
	NewFingerprint string `json:"new_fingerprint"`
	Critics        int    `json:"critics"`
}

// BroadcastEvent is a convenience method that marshals a typed event and broadcasts it.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.Broadcast(ctx, Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
}
