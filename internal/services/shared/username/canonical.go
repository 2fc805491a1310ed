// Package username canonicalizes and validates claimable handles.
package username

import (
	"regexp"
	"strings"
	"unicode"

	apperrors "github.com/designftw/graffiti-chat/internal/platform/errors"
)

var canonicalPattern = regexp.MustCompile(`^[a-z][a-z0-9._-]{2,31}$`)

// Canonicalize normalizes a handle to lowercase ASCII and validates policy.
// A single leading "@" is accepted and dropped.
func Canonicalize(input string) (string, error) {
	input = strings.TrimPrefix(strings.TrimSpace(input), "@")
	if input == "" {
		return "", apperrors.Validation(apperrors.CodeUsernameInvalid, "username is required")
	}
	for _, r := range input {
		if r > unicode.MaxASCII {
			return "", apperrors.Validation(apperrors.CodeUsernameInvalid, "username must be ASCII")
		}
	}

	canonical := strings.ToLower(input)
	if !canonicalPattern.MatchString(canonical) {
		return "", apperrors.Validation(apperrors.CodeUsernameInvalid, "username does not match required format")
	}
	return canonical, nil
}

// FromActor derives the default handle shown for an actor id: the text after
// the last ":".
func FromActor(actorID string) string {
	actorID = strings.TrimSpace(actorID)
	if idx := strings.LastIndex(actorID, ":"); idx >= 0 {
		return actorID[idx+1:]
	}
	return actorID
}
