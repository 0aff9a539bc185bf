package auth

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// SpecialCharacters is the set a password must draw at least one character from.
const SpecialCharacters = `!@#$%^&*(),.?":{}|<>`

const (
	minUsernameLength = 3
	minPasswordLength = 5
)

// Rule violations. Each validator reports only the first rule that fails.
var (
	ErrUsernameTooShort    = errors.New("at least 3 characters")
	ErrUsernameNoUppercase = errors.New("must contain an uppercase letter")
	ErrPasswordTooShort    = errors.New("at least 5 characters")
	ErrPasswordNoUppercase = errors.New("must contain an uppercase letter")
	ErrPasswordNoSpecial   = errors.New("must contain a special character")
	ErrEmailNoAt           = errors.New("must contain @")
	ErrRequired            = errors.New("is required")
	ErrUsernameTaken       = errors.New("username already taken")
)

// ValidateUsername checks length, then the presence of an A-Z letter.
func ValidateUsername(s string) error {
	if utf8.RuneCountInString(s) < minUsernameLength {
		return ErrUsernameTooShort
	}
	if !hasUppercase(s) {
		return ErrUsernameNoUppercase
	}
	return nil
}

// ValidatePassword checks length, an A-Z letter and a special character, in that order.
func ValidatePassword(s string) error {
	if utf8.RuneCountInString(s) < minPasswordLength {
		return ErrPasswordTooShort
	}
	if !hasUppercase(s) {
		return ErrPasswordNoUppercase
	}
	if !strings.ContainsAny(s, SpecialCharacters) {
		return ErrPasswordNoSpecial
	}
	return nil
}

// ValidateEmail only requires a literal '@'.
func ValidateEmail(s string) error {
	if !strings.Contains(s, "@") {
		return ErrEmailNoAt
	}
	return nil
}

func hasUppercase(s string) bool {
	for _, r := range s {
		if r >= 'A' && r <= 'Z' {
			return true
		}
	}
	return false
}
