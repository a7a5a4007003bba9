package postgres

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eleanor-project/eleanor/internal/port/audit"
)

// AuditLog is the append-only decision audit trail. Records form a hash
// chain: each record's hash covers the previous record's hash, so any
// tampering breaks verification of everything appended after it.
type AuditLog struct {
	pool *pgxpool.Pool

	// mu serializes appends so the prev_hash read and the insert see a
	// consistent chain head.
	mu sync.Mutex
}

var _ audit.Log = (*AuditLog)(nil)

// NewAuditLog creates an audit log backed by the given pool.
func NewAuditLog(pool *pgxpool.Pool) *AuditLog {
	return &AuditLog{pool: pool}
}

// Record appends one decision record to the chain. Seq, PrevHash and Hash
// are assigned here; callers fill everything else.
func (l *AuditLog) Record(ctx context.Context, rec *audit.Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var (
		prevSeq  int64
		prevHash string
	)
	const head = `SELECT seq, record_hash FROM audit_records ORDER BY seq DESC LIMIT 1`
	err := l.pool.QueryRow(ctx, head).Scan(&prevSeq, &prevHash)
	switch {
	case err == nil:
	case errors.Is(err, pgx.ErrNoRows):
		prevSeq, prevHash = 0, ""
	default:
		return fmt.Errorf("read audit chain head: %w", err)
	}

	rec.Seq = prevSeq + 1
	rec.PrevHash = prevHash
	h, err := chainHash(rec)
	if err != nil {
		return fmt.Errorf("hash audit record %s: %w", rec.DecisionID, err)
	}
	rec.Hash = h

	casePayload, err := json.Marshal(rec.Case)
	if err != nil {
		return fmt.Errorf("encode case %s: %w", rec.DecisionID, err)
	}
	decisionPayload, err := json.Marshal(rec.Decision)
	if err != nil {
		return fmt.Errorf("encode decision %s: %w", rec.DecisionID, err)
	}

	const q = `INSERT INTO audit_records
		(seq, decision_id, case_fingerprint, config_fingerprint,
		 case_payload, decision, recorded_at, prev_hash, record_hash)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
	_, err = l.pool.Exec(ctx, q,
		rec.Seq, rec.DecisionID, rec.CaseFingerprint, rec.ConfigFingerprint,
		casePayload, decisionPayload, rec.RecordedAt, rec.PrevHash, rec.Hash,
	)
	if err != nil {
		return fmt.Errorf("append audit record %s: %w", rec.DecisionID, err)
	}
	return nil
}

// Get retrieves the audit record for a decision ID.
func (l *AuditLog) Get(ctx context.Context, decisionID string) (*audit.Record, error) {
	const q = `SELECT seq, decision_id, case_fingerprint, config_fingerprint,
		case_payload, decision, recorded_at, prev_hash, record_hash
		FROM audit_records WHERE decision_id = $1`
	rec := &audit.Record{}
	var casePayload, decisionPayload []byte
	err := l.pool.QueryRow(ctx, q, decisionID).Scan(
		&rec.Seq, &rec.DecisionID, &rec.CaseFingerprint, &rec.ConfigFingerprint,
		&casePayload, &decisionPayload, &rec.RecordedAt, &rec.PrevHash, &rec.Hash,
	)
	if err != nil {
		return nil, notFoundWrap(err, "get audit record %s", decisionID)
	}
	if err := json.Unmarshal(casePayload, &rec.Case); err != nil {
		return nil, fmt.Errorf("decode case %s: %w", decisionID, err)
	}
	if err := json.Unmarshal(decisionPayload, &rec.Decision); err != nil {
		return nil, fmt.Errorf("decode decision %s: %w", decisionID, err)
	}
	return rec, nil
}

// chainHash computes the record hash over the previous hash and the
// record's immutable content.
func chainHash(rec *audit.Record) (string, error) {
	decisionPayload, err := json.Marshal(rec.Decision)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write([]byte(rec.PrevHash))
	h.Write([]byte(rec.DecisionID))
	h.Write([]byte(rec.CaseFingerprint))
	h.Write(decisionPayload)
	h.Write([]byte(rec.RecordedAt.UTC().Format("2006-01-02T15:04:05.000000000Z")))
	return hex.EncodeToString(h.Sum(nil)), nil
}
