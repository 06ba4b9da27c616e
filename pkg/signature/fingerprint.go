package signature

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint returns the lowercase hex SHA-256 of the raw body bytes.
// It must be computed over the exact bytes verified by Verify; hashing a
// re-encoded payload would decouple deduplication from the MAC check.
func Fingerprint(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
