// Package audit defines the port interface for the append-only decision
// audit log.
package audit

import (
	"context"
	"time"

	"github.com/eleanor-project/eleanor/internal/domain/decision"
)

// Record is a complete, immutable snapshot of one decision's inputs and
// outputs. PrevHash/Hash chain records together so tampering with an
// earlier record invalidates every later one.
type Record struct {
	Seq               int64               `json:"seq"`
	DecisionID        string              `json:"decision_id"`
	CaseFingerprint   string              `json:"case_fingerprint"`
	ConfigFingerprint string              `json:"config_fingerprint"`
	Case              decision.Case       `json:"case"`
	Decision          decision.Aggregated `json:"decision"`
	RecordedAt        time.Time           `json:"recorded_at"`
	PrevHash          string              `json:"prev_hash"`
	Hash              string              `json:"hash"`
}

// Log appends decision records and retrieves them by decision ID. The
// engine calls Record exactly once per computed decision; failures are
// logged, never propagated to the decision caller.
type Log interface {
	Record(ctx context.Context, rec *Record) error
	Get(ctx context.Context, decisionID string) (*Record, error)
}
