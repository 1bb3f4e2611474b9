package util

import (
	"crypto/sha256"
	"fmt"
)

// StorageKey maps a normalized cache key into a store namespace.
// Normalized keys are binary and unbounded, so only a short hash is kept:
// namespace + ":" + first 16 hex chars of SHA-256.
func StorageKey(namespace, key string) string {
	sum := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%s:%x", namespace, sum)[:len(namespace)+1+16]
}
