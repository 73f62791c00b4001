package util

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns a fresh UUID string. Primary keys across the schema are UUIDs.
func NewID() string {
	return uuid.NewString()
}

// Slugify lowercases s and collapses every run of non-alphanumeric characters
// into a single hyphen. Organizations are addressed by these slugs.
func Slugify(s string) string {
	var b strings.Builder
	pendingHyphen := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
		default:
			pendingHyphen = true
		}
	}
	return b.String()
}
