package addon

import (
	"fmt"
	"regexp"
)

// idPattern accepts the two extension ID forms Firefox understands: a
// braced GUID or an email-like identifier.
var idPattern = regexp.MustCompile(`(?i)^(\{[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\}|[a-z0-9._-]*@[a-z0-9._-]+)$`)

// ValidationError reports a manifest field that cannot be used.
type ValidationError struct {
	// Field is the manifest field that failed validation.
	Field string

	// Message describes what is wrong with the field value.
	Message string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("extension manifest: %s: %s", e.Field, e.Message)
}

// Validate checks that the manifest can be installed into a profile. The
// ID becomes a file name under extensions/, so anything outside the two
// accepted ID forms is rejected.
func (m *Manifest) Validate() error {
	if m.ID == "" {
		return &ValidationError{Field: "id", Message: "must not be empty"}
	}
	if !idPattern.MatchString(m.ID) {
		return &ValidationError{
			Field:   "id",
			Message: fmt.Sprintf("%q is neither a {GUID} nor an email-style ID", m.ID),
		}
	}
	if !m.Kind.IsValid() {
		return &ValidationError{Field: "kind", Message: fmt.Sprintf("unknown manifest kind %q", m.Kind)}
	}
	return nil
}

// IsValid checks whether k is a known manifest kind.
func (k Kind) IsValid() bool {
	switch k {
	case KindWebExtension, KindLegacy:
		return true
	default:
		return false
	}
}
