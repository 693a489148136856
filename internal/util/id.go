// Package util holds small helpers shared across packages.
package util

import (
	"crypto/rand"
	"encoding/hex"
)

// RandomHex returns n random bytes hex-encoded.
func RandomHex(n int) string {
	buf := make([]byte, n)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

// NewID returns an opaque random identifier. A non-empty prefix namespaces
// the identifier by kind, e.g. "jti" for access token ids.
func NewID(prefix string) string {
	id := RandomHex(16)
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}
