package auth

import (
	"errors"
	"fmt"
	"regexp"

	"golang.org/x/crypto/bcrypt"
)

const (
	bcryptCost        = 12
	minPasswordLength = 8
	maxUsernameLength = 50
	minUsernameLength = 3
	maxEmailLength    = 320
)

// ErrWeakPassword indicates the password does not meet the minimum requirements.
var ErrWeakPassword = errors.New("password does not meet requirements")

var (
	emailPattern    = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_\-]+$`)
)

// HashPassword hashes a password with bcrypt after a strength check.
func HashPassword(password string) (string, error) {
	if err := ValidatePassword(password); err != nil {
		return "", err
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}

// ComparePassword reports whether password matches the stored bcrypt hash.
func ComparePassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

// ValidatePassword checks minimum password strength.
func ValidatePassword(password string) error {
	if len(password) < minPasswordLength {
		return fmt.Errorf("%w: minimum length is %d characters", ErrWeakPassword, minPasswordLength)
	}
	return nil
}

// ValidateEmail validates an email address format.
func ValidateEmail(email string) error {
	if !emailPattern.MatchString(email) {
		return errors.New("invalid email format")
	}
	if len(email) > maxEmailLength {
		return errors.New("email address too long")
	}
	return nil
}

// ValidateUsername validates a display username.
func ValidateUsername(username string) error {
	if len(username) < minUsernameLength {
		return fmt.Errorf("username must be at least %d characters", minUsernameLength)
	}
	if len(username) > maxUsernameLength {
		return fmt.Errorf("username must not exceed %d characters", maxUsernameLength)
	}
	if !usernamePattern.MatchString(username) {
		return errors.New("username can only contain letters, numbers, underscore, and hyphen")
	}
	return nil
}
