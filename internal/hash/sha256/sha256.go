// Package sha256 provides SHA-256 content hashing for review page fingerprints.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hasher implements analysis.Hasher using SHA-256.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash hashes the input and returns a hex digest.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// HashFields digests the fields with a separator so ("ab","c") and ("a","bc") differ.
func (h *Hasher) HashFields(fields ...string) (string, error) {
	d := sha256.New()
	for _, f := range fields {
		d.Write([]byte(f))
		d.Write([]byte{0})
	}
	return hex.EncodeToString(d.Sum(nil)), nil
}
