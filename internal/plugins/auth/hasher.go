package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// MaxPasswordBytes is bcrypt's input ceiling. Bytes past it are ignored by
// the algorithm, so longer passwords are rejected instead of silently
// truncated.
const MaxPasswordBytes = 72

var (
	// ErrEmptyPassword is returned when hashing an empty password.
	ErrEmptyPassword = errors.New("password cannot be empty")

	// ErrPasswordTooLong is returned when hashing a password whose UTF-8
	// encoding exceeds MaxPasswordBytes.
	ErrPasswordTooLong = errors.New("password exceeds 72 bytes")
)

// PasswordHasher derives and checks password digests.
type PasswordHasher interface {
	// Hash produces a self-describing digest (algorithm, cost and salt are
	// embedded in the output).
	Hash(password string) (string, error)

	// Verify returns (true, nil) on match and (false, nil) on mismatch.
	// A malformed digest or internal failure returns a non-nil error, which
	// callers must not report as a wrong password.
	Verify(password, hash string) (bool, error)

	// IsTooLong reports whether password would be truncated by the hash.
	IsTooLong(password string) bool
}

// BcryptHasher implements PasswordHasher with bcrypt.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher creates a hasher with the given work factor. Cost 12 takes
// roughly 200-300ms on commodity hardware.
func NewBcryptHasher(cost int) *BcryptHasher {
	return &BcryptHasher{cost: cost}
}

// Hash implements PasswordHasher.
func (h *BcryptHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	if h.IsTooLong(password) {
		return "", ErrPasswordTooLong
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("generating bcrypt hash: %w", err)
	}
	return string(hash), nil
}

// Verify implements PasswordHasher.
func (h *BcryptHasher) Verify(password, hash string) (bool, error) {
	// No stored digest can match a password longer than the ceiling.
	if h.IsTooLong(password) {
		return false, nil
	}

	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("comparing bcrypt hash: %w", err)
	}
}

// IsTooLong implements PasswordHasher.
func (h *BcryptHasher) IsTooLong(password string) bool {
	return len(password) > MaxPasswordBytes
}
