package auth

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

const (
	minNameLength     = 4
	minPasswordLength = 6
)

// Registration accepts three consumer domains; local login accepts only gmail.
// The asymmetry is intentional: yahoo/hotmail accounts registered locally
// cannot sign in with a password afterwards.
var (
	signupDomains = map[string]struct{}{
		"gmail.com":   {},
		"yahoo.com":   {},
		"hotmail.com": {},
	}
	loginDomain = "gmail.com"
)

var namePattern = regexp.MustCompile(`^[A-Za-zÀ-ÖØ-öø-ÿ\s]+$`)

var shape = validator.New()

func emailDomain(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return email[at+1:]
}

// IsAllowedSignupDomain reports whether email may be used to register.
func IsAllowedSignupDomain(email string) bool {
	_, ok := signupDomains[emailDomain(email)]
	return ok
}

// IsGmailOnly reports whether email may be used for password login.
func IsGmailOnly(email string) bool {
	return emailDomain(email) == loginDomain
}

// IsValidName requires at least four letters or spaces after trimming.
func IsValidName(name string) bool {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) < minNameLength {
		return false
	}
	return namePattern.MatchString(name)
}

func IsValidPassword(password string) bool {
	return utf8.RuneCountInString(password) >= minPasswordLength
}

func IsValidEmail(email string) bool {
	email = strings.TrimSpace(email)
	if email == "" {
		return false
	}
	return shape.Var(email, "email") == nil
}

// NormalizeEmail trims and lower-cases an address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
