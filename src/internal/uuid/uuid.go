// Package uuid generates the identifiers used for viztrails, branches, workflows and modules.
package uuid

import (
	"strings"

	"github.com/google/uuid"
)

// New returns a new random UUID in its canonical dashed form.
func New() string {
	return uuid.NewString()
}

// NewWithoutDashes returns a new random UUID with the dashes removed.  All vizier resource
// identifiers use this form.
func NewWithoutDashes() string {
	return strings.ReplaceAll(New(), "-", "")
}

// IsUUIDWithoutDashes reports whether s looks like an identifier produced by NewWithoutDashes.
func IsUUIDWithoutDashes(s string) bool {
	if len(s) != 32 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}
