package util

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

func SHA256Hex(b []byte) string {
	x := sha256.Sum256(b)
	return hex.EncodeToString(x[:])
}

// HashParts hashes parts joined by ":"; used for stable derived ids.
func HashParts(parts ...string) string {
	return SHA256Hex([]byte(strings.Join(parts, ":")))
}
