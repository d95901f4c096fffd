package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	// BcryptCost keeps a single verification in the tens-to-hundreds of
	// milliseconds range on current hardware.
	BcryptCost = 12
	// TokenBytes is the entropy of a session token (256 bits).
	TokenBytes = 32
)

var (
	// ErrAuthFailure is returned for any rejected secret.
	ErrAuthFailure = errors.New("invalid credentials")
	// ErrInvalidSession is returned for missing, unknown, or expired tokens.
	ErrInvalidSession = errors.New("invalid or expired session")
)

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword compares in constant time. A malformed hash yields false, the
// same as a wrong password.
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Verifier checks a submitted shared secret.
type Verifier interface {
	Verify(secret string) bool
}

// HashVerifier verifies against a single stored bcrypt hash.
type HashVerifier struct {
	hash string
}

func NewHashVerifier(hash string) *HashVerifier {
	return &HashVerifier{hash: hash}
}

func (v *HashVerifier) Verify(secret string) bool {
	return CheckPassword(secret, v.hash)
}

// GenerateToken returns TokenBytes of crypto/rand entropy, hex encoded.
func GenerateToken() (string, error) {
	b := make([]byte, TokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
