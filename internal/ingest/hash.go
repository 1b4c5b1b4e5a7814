package ingest

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashBytes returns the hex SHA-256 digest of raw file bytes. Identical
// content always hashes identically regardless of filename.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
