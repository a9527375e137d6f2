package utils

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// Fingerprint returns a stable digest of a normalized question. Normalization
// trims, case-folds, and collapses interior whitespace so that textually
// identical questions always map to the same cache key, across restarts.
func Fingerprint(question string) string {
	normalized := NormalizeQuery(question)
	hash := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", hash)
}

// NormalizeQuery lowercases and collapses whitespace.
func NormalizeQuery(question string) string {
	fields := strings.Fields(strings.ToLower(question))
	return strings.Join(fields, " ")
}
