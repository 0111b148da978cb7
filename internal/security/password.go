package security

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const MinPasswordLength = 8

var ErrWeakPassword = errors.New("weak password")

var commonPasswords = map[string]struct{}{
	"password":    {},
	"password1":   {},
	"password123": {},
	"passw0rd":    {},
	"12345678":    {},
	"123456789":   {},
	"1234567890":  {},
	"qwerty123":   {},
	"qwertyuiop":  {},
	"iloveyou":    {},
	"admin123":    {},
	"welcome1":    {},
	"welcome123":  {},
	"letmein1":    {},
	"monkey123":   {},
	"abc12345":    {},
	"sunshine1":   {},
	"football1":   {},
}

var sequentialRuns = []string{"123", "abc", "qwe", "asd", "zxc"}

// PasswordValidation lists every policy rule a password violates
type PasswordValidation struct {
	IsValid bool     `json:"is_valid"`
	Errors  []string `json:"errors"`
}

// ValidatePassword checks password against the policy and returns all
// violations, not only the first
func ValidatePassword(password string) PasswordValidation {
	var errs []string

	if len([]rune(password)) < MinPasswordLength {
		errs = append(errs, "Password must be at least 8 characters long")
	}

	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			special = true
		}
	}
	if !upper {
		errs = append(errs, "Password must contain at least one uppercase letter")
	}
	if !lower {
		errs = append(errs, "Password must contain at least one lowercase letter")
	}
	if !digit {
		errs = append(errs, "Password must contain at least one number")
	}
	if !special {
		errs = append(errs, "Password must contain at least one special character")
	}

	lowered := strings.ToLower(password)
	if _, ok := commonPasswords[lowered]; ok {
		errs = append(errs, "Password is too common")
	}
	for _, run := range sequentialRuns {
		if strings.Contains(lowered, run) {
			errs = append(errs, "Password must not contain sequential characters")
			break
		}
	}

	return PasswordValidation{IsValid: len(errs) == 0, Errors: errs}
}

// HashPassword validates password against the policy and returns its bcrypt hash
func HashPassword(password string) (string, error) {
	if v := ValidatePassword(password); !v.IsValid {
		return "", fmt.Errorf("%w: %s", ErrWeakPassword, strings.Join(v.Errors, "; "))
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// CheckPassword verifies password against a bcrypt hash
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
