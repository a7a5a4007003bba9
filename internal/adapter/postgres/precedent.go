package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eleanor-project/eleanor/internal/domain/decision"
	"github.com/eleanor-project/eleanor/internal/port/cache"
	"github.com/eleanor-project/eleanor/internal/port/precedent"
)

const precedentCacheTTL = 10 * time.Minute

// PrecedentStore persists non-ERROR decisions keyed by case fingerprint,
// optionally fronted by a byte cache for lookup-heavy workloads.
type PrecedentStore struct {
	pool  *pgxpool.Pool
	cache cache.Cache
}

var _ precedent.Store = (*PrecedentStore)(nil)

// NewPrecedentStore creates a precedent store. cache may be nil, in which
// case every lookup hits the database.
func NewPrecedentStore(pool *pgxpool.Pool, c cache.Cache) *PrecedentStore {
	return &PrecedentStore{pool: pool, cache: c}
}

// Lookup returns prior decisions for a case fingerprint, newest first.
// Exact fingerprint matches carry similarity 1.0.
func (s *PrecedentStore) Lookup(ctx context.Context, caseFingerprint string, limit int) ([]precedent.Match, error) {
	if limit <= 0 {
		limit = 10
	}

	key := precedentCacheKey(caseFingerprint, limit)
	if s.cache != nil {
		if raw, ok, err := s.cache.Get(ctx, key); err == nil && ok {
			var matches []precedent.Match
			if err := json.Unmarshal(raw, &matches); err == nil {
				return matches, nil
			}
		}
	}

	const q = `SELECT case_fingerprint, decision, decided_at
		FROM precedents WHERE case_fingerprint = $1
		ORDER BY decided_at DESC LIMIT $2`
	rows, err := s.pool.Query(ctx, q, caseFingerprint, limit)
	if err != nil {
		return nil, fmt.Errorf("lookup precedents: %w", err)
	}
	defer rows.Close()

	var matches []precedent.Match
	for rows.Next() {
		var (
			m   precedent.Match
			raw []byte
		)
		if err := rows.Scan(&m.CaseFingerprint, &raw, &m.DecidedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &m.Decision); err != nil {
			return nil, fmt.Errorf("decode precedent %s: %w", m.CaseFingerprint, err)
		}
		m.Similarity = 1.0
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if s.cache != nil {
		if raw, err := json.Marshal(matches); err == nil {
			_ = s.cache.Set(ctx, key, raw, precedentCacheTTL)
		}
	}

	return matches, nil
}

// Store persists a decision as a precedent. ERROR decisions are rejected
// so operational failures never become consistency signals.
func (s *PrecedentStore) Store(ctx context.Context, caseFingerprint string, d *decision.Aggregated) error {
	if d.Verdict == decision.OutcomeError {
		return fmt.Errorf("refusing to store ERROR decision %s as precedent", d.ID)
	}

	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode decision %s: %w", d.ID, err)
	}

	const q = `INSERT INTO precedents
		(id, case_fingerprint, config_fingerprint, verdict, confidence, decision, decided_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`
	_, err = s.pool.Exec(ctx, q,
		d.ID, caseFingerprint, d.ConfigFingerprint,
		string(d.Verdict), d.Confidence, raw, d.DecidedAt,
	)
	if err != nil {
		return fmt.Errorf("store precedent %s: %w", d.ID, err)
	}

	// New precedent invalidates cached lookups for this fingerprint.
	if s.cache != nil {
		for _, limit := range []int{1, 5, 10, 20} {
			_ = s.cache.Delete(ctx, precedentCacheKey(caseFingerprint, limit))
		}
	}

	return nil
}

// precedentCacheKey uses dots as separators: the L2 is a NATS KV bucket,
// whose key charset excludes colons. Fingerprints are hex so the pieces
// cannot collide.
func precedentCacheKey(fingerprint string, limit int) string {
	return fmt.Sprintf("precedent.%s.%d", fingerprint, limit)
}
