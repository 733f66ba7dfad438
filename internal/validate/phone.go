package validate

import (
	"errors"
	"strings"
)

// ErrInvalidPhone is returned when a phone number is not in E.164 form.
var ErrInvalidPhone = errors.New("phone number must be in E.164 format")

// Phone validates a phone number and returns it in bare E.164 form: a
// leading "+" followed by 7 to 15 digits. Separator characters people
// commonly type (spaces, hyphens, dots, parentheses) are stripped.
func Phone(phone string) (string, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return "", ErrEmpty
	}

	var b strings.Builder
	b.Grow(len(phone))
	for _, r := range phone {
		switch r {
		case ' ', '-', '.', '(', ')':
		default:
			b.WriteRune(r)
		}
	}
	phone = b.String()

	if !strings.HasPrefix(phone, "+") {
		return "", ErrInvalidPhone
	}
	digits := phone[1:]
	if len(digits) < 7 || len(digits) > 15 {
		return "", ErrInvalidPhone
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", ErrInvalidPhone
		}
	}
	return phone, nil
}
