// Package decisioncache defines the port interface for the engine's
// decision cache.
package decisioncache

import (
	"context"
	"time"

	"github.com/eleanor-project/eleanor/internal/domain/decision"
)

// Stats is a point-in-time snapshot of cache effectiveness counters.
type Stats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
	Size      int    `json:"size"`
}

// Cache stores aggregated decisions keyed by (case fingerprint, config
// fingerprint). Implementations must be safe for concurrent use and must
// hand out copies the caller owns; a cache failure is treated as a miss
// by the orchestrator (fail open), never as a decision failure.
type Cache interface {
	Get(ctx context.Context, caseFP, configFP string) (*decision.Aggregated, bool, error)
	Put(ctx context.Context, caseFP, configFP string, d *decision.Aggregated, ttl time.Duration) error
	InvalidateAll(ctx context.Context) error
	Stats() Stats
}
