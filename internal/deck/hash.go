package deck

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// Normalize joins the entry's fields after lowercasing, trimming and
// unifying line endings. The fields are newline-separated so adjacent
// fields can never run together and collide.
func Normalize(e Entry) string {
	part := func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimSpace(s)
		s = strings.ReplaceAll(s, "\r\n", "\n")
		return s
	}
	return strings.Join([]string{part(e.Question), part(e.Answer), part(e.Context)}, "\n")
}

// ID returns the SHA-256 of the normalized entry as a hex string. Content
// identity means a reworded card is a new card and starts over as new,
// while formatting-only edits keep their review history.
func ID(e Entry) string {
	sum := sha256.Sum256([]byte(Normalize(e)))
	return fmt.Sprintf("%x", sum)
}
