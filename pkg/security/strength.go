// Package security rates the passwords stored in a vault and reports
// weak and reused ones.
package security

import "unicode/utf8"

// PasswordStrength represents the strength level of a password.
type PasswordStrength int

const (
	// PasswordWeak indicates an insecure password (fewer than 8 characters).
	PasswordWeak PasswordStrength = iota
	// PasswordFair indicates a minimally acceptable password.
	PasswordFair
	// PasswordGood indicates a good password.
	PasswordGood
	// PasswordStrong indicates a strong password.
	PasswordStrong
)

// String returns a human-readable representation of the password strength.
func (s PasswordStrength) String() string {
	switch s {
	case PasswordWeak:
		return "Weak"
	case PasswordFair:
		return "Fair"
	case PasswordGood:
		return "Good"
	case PasswordStrong:
		return "Strong"
	default:
		return "Unknown"
	}
}

// Points returns the score points for this strength level:
// Weak=0, Fair=16, Good=33, Strong=50.
func (s PasswordStrength) Points() int {
	switch s {
	case PasswordFair:
		return 16
	case PasswordGood:
		return 33
	case PasswordStrong:
		return 50
	default:
		return 0
	}
}

// Strength rates a password by its length in characters, following NIST
// SP 800-63B: length counts, composition rules do not. A password made of
// one repeated character is always weak.
func Strength(password string) PasswordStrength {
	if repeated(password) {
		return PasswordWeak
	}

	switch n := utf8.RuneCountInString(password); {
	case n >= 20:
		return PasswordStrong
	case n >= 14:
		return PasswordGood
	case n >= 8:
		return PasswordFair
	default:
		return PasswordWeak
	}
}

func repeated(s string) bool {
	first, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return false
	}
	for _, r := range s[size:] {
		if r != first {
			return false
		}
	}
	return true
}
