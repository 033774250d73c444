package lint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Digest returns a stable content fingerprint for document text, used as
// the cache key discriminator. The same text always yields the same digest.
func Digest(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// CountLines returns the number of lines in text. Empty text has one
// (empty) line, matching the editor's view of a buffer.
func CountLines(text string) int {
	return strings.Count(text, "\n") + 1
}

// SplitLines splits text into lines without trailing newlines.
func SplitLines(text string) []string {
	return strings.Split(text, "\n")
}
