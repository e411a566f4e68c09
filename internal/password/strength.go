package password

import (
	"errors"
	"strings"
	"unicode"
)

// Strength policy bounds.
const (
	MinLength = 12
	MaxLength = 128
)

// Strength policy violations.
var (
	ErrTooShort      = errors.New("password must be at least 12 characters")
	ErrTooLong       = errors.New("password must be at most 128 characters")
	ErrMissingUpper  = errors.New("password must contain an uppercase letter")
	ErrMissingLower  = errors.New("password must contain a lowercase letter")
	ErrMissingDigit  = errors.New("password must contain a digit")
	ErrMissingSymbol = errors.New("password must contain a punctuation character")
	ErrWeakSubstring = errors.New("password contains a common weak sequence")
	ErrContainsUser  = errors.New("password must not contain the username")
	ErrContainsEmail = errors.New("password must not contain the email local part")
)

// weakSubstrings are rejected case-insensitively anywhere in the password.
// Keyboard walks and dictionary words only; short numeric runs and role
// words like "admin" stay out of the list because they show up inside
// otherwise strong passphrases.
var weakSubstrings = []string{
	"password", "contraseña", "contrasena", "qwerty", "asdfgh", "zxcvbn",
	"654321", "111111", "abcdef", "welcome", "letmein",
	"iloveyou", "dragon", "monkey", "qwertz", "azerty", "1q2w3e", "passw0rd",
}

// CheckStrength validates candidate against the full strength policy.
// username and email may be empty; when username has fewer than 3 characters
// the own-name check is skipped.
func CheckStrength(candidate, username, emailLocalPart string) error {
	if len(candidate) < MinLength {
		return ErrTooShort
	}
	if len(candidate) > MaxLength {
		return ErrTooLong
	}

	var upper, lower, digit, symbol bool
	for _, r := range candidate {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}
	switch {
	case !upper:
		return ErrMissingUpper
	case !lower:
		return ErrMissingLower
	case !digit:
		return ErrMissingDigit
	case !symbol:
		return ErrMissingSymbol
	}

	folded := strings.ToLower(candidate)
	for _, weak := range weakSubstrings {
		if strings.Contains(folded, weak) {
			return ErrWeakSubstring
		}
	}

	if len(username) >= 3 && strings.Contains(folded, strings.ToLower(username)) {
		return ErrContainsUser
	}
	if len(emailLocalPart) >= 3 && strings.Contains(folded, strings.ToLower(emailLocalPart)) {
		return ErrContainsEmail
	}

	return nil
}
