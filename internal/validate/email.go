// Package validate normalizes and checks the channel addresses attached to
// emergency contacts before they reach storage or a delivery provider.
package validate

import (
	"errors"
	"regexp"
	"strings"
)

// Address validation errors.
var (
	ErrEmpty        = errors.New("value is empty")
	ErrTooLong      = errors.New("value is too long")
	ErrInvalidEmail = errors.New("invalid email format")
)

// emailPattern covers the common shapes of a deliverable address. Anything
// stricter belongs to the SMTP conversation, not to input validation.
var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// Email validates an email address and returns it trimmed and lowercased.
func Email(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", ErrEmpty
	}
	// RFC 5321 limits: 254 total, 64 local part.
	if len(email) > 254 {
		return "", ErrTooLong
	}
	if !emailPattern.MatchString(email) {
		return "", ErrInvalidEmail
	}
	local, _, ok := strings.Cut(email, "@")
	if !ok || len(local) > 64 {
		return "", ErrInvalidEmail
	}
	return email, nil
}
