// Package idgen generates opaque identifiers for attempts and requests.
package idgen

import (
	"strings"

	"github.com/google/uuid"
)

// AttemptPrefix prefixes authentication attempt ids.
const AttemptPrefix = "att"

// New returns a random UUID in its canonical dashed form.
func New() string {
	return uuid.NewString()
}

// WithPrefix returns prefix + "_" + 32 hex chars, e.g. "att_3f2a...".
func WithPrefix(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// IsValid reports whether id has the shape WithPrefix(prefix) produces.
func IsValid(prefix, id string) bool {
	rest, ok := strings.CutPrefix(id, prefix+"_")
	if !ok || len(rest) != 32 {
		return false
	}
	for _, c := range rest {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
