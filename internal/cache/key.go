package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// GenerateKey creates a cache key for a JSON document within a namespace.
// Insignificant whitespace is removed before hashing so equal documents
// share a key. String contents are hashed as-is.
func GenerateKey(namespace string, data json.RawMessage) string {
	hash := sha256.Sum256(normalize(data))
	return namespace + ":" + hex.EncodeToString(hash[:16])
}

// normalize compacts a JSON document for consistent hashing
func normalize(data json.RawMessage) []byte {
	if len(data) == 0 {
		return []byte("null")
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return data // Hash as-is if it cannot be parsed
	}
	return buf.Bytes()
}
