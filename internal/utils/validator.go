package utils

import (
	"fmt"
	"net/url"
	"regexp"

	"golang.org/x/crypto/bcrypt"
)

var (
	usernameRe = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
	emailRe    = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
)

// HashSecret hashes a login secret with bcrypt.
func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	return string(hash), err
}

// CheckSecret reports whether secret matches the stored hash.
func CheckSecret(hash, secret string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

// ValidateUsername checks the username format (3-20 chars, alphanumeric and underscore).
func ValidateUsername(username string) bool {
	if len(username) < 3 || len(username) > 20 {
		return false
	}
	return usernameRe.MatchString(username)
}

// ValidateEmail checks the email format.
func ValidateEmail(email string) bool {
	return emailRe.MatchString(email)
}

// ValidateSecret checks the secret strength (at least 8 chars).
func ValidateSecret(secret string) bool {
	return len(secret) >= 8
}

// UserAvatarURL derives a deterministic avatar for a user.
func UserAvatarURL(seed string) string {
	return fmt.Sprintf("https://api.dicebear.com/6.x/avataaars/svg?seed=%s", url.QueryEscape(seed))
}

// GroupAvatarURL derives a deterministic avatar for a group.
func GroupAvatarURL(seed string) string {
	return fmt.Sprintf("https://api.dicebear.com/6.x/identicon/svg?seed=%s", url.QueryEscape(seed))
}
