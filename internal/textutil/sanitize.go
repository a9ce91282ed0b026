package textutil

import (
	"errors"
	"fmt"
	"strings"
)

// MaxRunIDLength bounds sanitized run identifiers.
const MaxRunIDLength = 96

var ErrInvalidRunID = errors.New("invalid run id")

// SanitizeRunID converts an externally supplied run identifier into a single
// safe path segment. Path separators, parent references, NUL bytes, and
// leading dots are rejected outright; any other character outside
// [A-Za-z0-9._-] becomes an underscore.
func SanitizeRunID(value string) (string, error) {
	value = strings.TrimSpace(value)
	switch {
	case value == "":
		return "", fmt.Errorf("%w: empty", ErrInvalidRunID)
	case strings.ContainsAny(value, "/\\\x00"):
		return "", fmt.Errorf("%w: %q contains a path separator", ErrInvalidRunID, value)
	case strings.Contains(value, ".."):
		return "", fmt.Errorf("%w: %q contains a parent reference", ErrInvalidRunID, value)
	case strings.HasPrefix(value, "."):
		return "", fmt.Errorf("%w: %q starts with a dot", ErrInvalidRunID, value)
	}

	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := b.String()
	if len(out) > MaxRunIDLength {
		return "", fmt.Errorf("%w: longer than %d characters", ErrInvalidRunID, MaxRunIDLength)
	}
	return out, nil
}

// SanitizeToken converts a string to a lowercase filesystem-safe token.
// Letters are lowercased, digits and hyphens/underscores are kept, everything
// else becomes an underscore. Returns "unknown" for empty input.
func SanitizeToken(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	var b strings.Builder
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), "_-")
	if out == "" {
		return "unknown"
	}
	return out
}
