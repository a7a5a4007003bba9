package decision

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Fingerprint returns the hex SHA-256 of the case's canonical JSON form.
// encoding/json emits map keys in sorted order, so equal content yields
// equal fingerprints independent of field insertion order.
func (c Case) Fingerprint() string {
	data, err := json.Marshal(c)
	if err != nil {
		// Only unmarshalable values (channels, funcs) can land here; a
		// case built from JSON input never does. Fall back to a sentinel
		// that can never collide with a hex digest.
		return "unfingerprintable"
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
