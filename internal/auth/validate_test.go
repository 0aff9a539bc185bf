package auth

import (
	"errors"
	"testing"
)

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		name     string
		username string
		want     error
	}{
		{"too short", "al", ErrUsernameTooShort},
		{"too short and lowercase reports length only", "ab", ErrUsernameTooShort},
		{"no uppercase", "alice", ErrUsernameNoUppercase},
		{"valid", "Alice", nil},
		{"valid with digits", "Bob1", nil},
		{"non-ascii uppercase does not count", "élan", ErrUsernameNoUppercase},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateUsername(tt.username); !errors.Is(err, tt.want) {
				t.Errorf("ValidateUsername(%q) = %v, want %v", tt.username, err, tt.want)
			}
		})
	}
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		want     error
	}{
		{"too short", "ab", ErrPasswordTooShort},
		{"no uppercase reported before special", "abcde", ErrPasswordNoUppercase},
		{"no special character", "Abcde", ErrPasswordNoSpecial},
		{"valid", "Abcde!", nil},
		{"quote counts as special", `Secret"`, nil},
		{"brace counts as special", "Secret{", nil},
		{"dash is not special", "Secret-", ErrPasswordNoSpecial},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidatePassword(tt.password); !errors.Is(err, tt.want) {
				t.Errorf("ValidatePassword(%q) = %v, want %v", tt.password, err, tt.want)
			}
		})
	}
}

func TestValidateEmail(t *testing.T) {
	if err := ValidateEmail("b@x.com"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateEmail("not-an-email"); !errors.Is(err, ErrEmailNoAt) {
		t.Errorf("expected ErrEmailNoAt, got %v", err)
	}
	if err := ValidateEmail("@"); err != nil {
		t.Errorf("a bare @ passes the literal check, got %v", err)
	}
}
