package critic

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/eleanor-project/eleanor/internal/domain"
	"github.com/eleanor-project/eleanor/internal/domain/decision"
)

// Snapshot is an immutable view of the outcome-affecting configuration:
// the critic set with weights, override flags and timeouts, plus the
// safeguard thresholds. Configuration reloads publish a new Snapshot
// (and a new fingerprint) rather than mutating a shared object, so
// in-flight decisions always see a consistent view and the decision
// cache partitions itself across config changes by key drift.
type Snapshot struct {
	critics     []Handle
	thresholds  decision.Thresholds
	fingerprint string
}

// fingerprintEntry is the canonical serialized form of one critic's
// outcome-affecting parameters.
type fingerprintEntry struct {
	Name      string  `json:"name"`
	Weight    float64 `json:"weight"`
	Override  bool    `json:"override"`
	TimeoutNS int64   `json:"timeout_ns"`
	Safeguard string  `json:"safeguard,omitempty"`
}

// NewSnapshot validates the critic set and computes the config
// fingerprint. Critic names must be unique.
func NewSnapshot(critics []Handle, thresholds decision.Thresholds) (*Snapshot, error) {
	if len(critics) == 0 {
		return nil, fmt.Errorf("%w: no critics registered", domain.ErrConfiguration)
	}

	seen := make(map[string]bool, len(critics))
	entries := make([]fingerprintEntry, 0, len(critics))
	for _, h := range critics {
		if err := h.Validate(); err != nil {
			return nil, err
		}
		if seen[h.Name] {
			return nil, fmt.Errorf("%w: duplicate critic name %q", domain.ErrConfiguration, h.Name)
		}
		seen[h.Name] = true
		entries = append(entries, fingerprintEntry{
			Name:      h.Name,
			Weight:    h.Weight,
			Override:  h.Override,
			TimeoutNS: int64(h.Timeout),
			Safeguard: h.Safeguard,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	payload, err := json.Marshal(struct {
		Critics    []fingerprintEntry  `json:"critics"`
		Thresholds decision.Thresholds `json:"thresholds"`
	}{entries, thresholds})
	if err != nil {
		return nil, fmt.Errorf("fingerprint config: %w", err)
	}
	sum := sha256.Sum256(payload)

	snap := &Snapshot{
		critics:     make([]Handle, len(critics)),
		thresholds:  thresholds,
		fingerprint: hex.EncodeToString(sum[:]),
	}
	copy(snap.critics, critics)
	return snap, nil
}

// Critics returns the critic set. Callers must not mutate the returned
// slice; reloads swap whole snapshots instead.
func (s *Snapshot) Critics() []Handle { return s.critics }

// Thresholds returns the safeguard thresholds.
func (s *Snapshot) Thresholds() decision.Thresholds { return s.thresholds }

// Fingerprint returns the hex SHA-256 over the outcome-affecting
// configuration. It participates in every decision cache key.
func (s *Snapshot) Fingerprint() string { return s.fingerprint }

// Lookup returns the handle registered under name.
func (s *Snapshot) Lookup(name string) (Handle, bool) {
	for _, h := range s.critics {
		if h.Name == name {
			return h, true
		}
	}
	return Handle{}, false
}
