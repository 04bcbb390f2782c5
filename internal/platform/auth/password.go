package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength = 8
	// bcrypt only reads the first 72 bytes and rejects longer input.
	maxPasswordBytes = 72
)

var (
	// ErrPasswordMismatch reports a failed credential comparison.
	ErrPasswordMismatch = errors.New("auth: password mismatch")
	// ErrPasswordTooShort reports a password below the minimum length.
	ErrPasswordTooShort = fmt.Errorf("auth: password must be at least %d characters", minPasswordLength)
	// ErrPasswordTooLong reports a password bcrypt cannot hash.
	ErrPasswordTooLong = fmt.Errorf("auth: password must be at most %d bytes", maxPasswordBytes)
)

// Hasher hashes and compares passwords with bcrypt.
type Hasher struct {
	cost int
}

// NewHasher returns a bcrypt hasher; a zero cost uses bcrypt.DefaultCost.
func NewHasher(cost int) Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return Hasher{cost: cost}
}

// Hash returns the bcrypt hash of password.
func (h Hasher) Hash(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", ErrPasswordTooShort
	}
	if len(password) > maxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	cost := h.cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("auth: hash password: %w", err)
	}
	return string(hashed), nil
}

// Compare checks password against hash.
func (h Hasher) Compare(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrPasswordMismatch
	}
	return nil
}
