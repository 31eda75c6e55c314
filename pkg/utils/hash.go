package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HashString returns a stable hex digest of the case-folded, trimmed input.
func HashString(input string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(input), " "))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:16])
}

// Truncate cuts s to at most max bytes without splitting a UTF-8 sequence.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
