// Package sha256 fingerprints normalized page content.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hasher implements monitor.Hasher with lowercase hex SHA-256 digests.
type Hasher struct{}

// New returns a SHA-256 content hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the hex digest of data. It never fails; the error keeps the port swappable.
func (h *Hasher) Hash(data []byte) (string, error) {
	return Fingerprint(string(data)), nil
}

// Fingerprint hashes already-normalized text.
func Fingerprint(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
