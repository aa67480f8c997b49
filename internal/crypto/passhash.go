// Package crypto implements server-side password hashing and verification.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters (tuned for server-side hashing).
const (
	argonTime    uint32 = 3         // iterations
	argonMemory  uint32 = 64 * 1024 // 64 MB
	argonThreads uint8  = 1
	argonKeyLen  uint32 = 32

	saltLen = 16
)

// ErrMalformedHash is returned when a stored hash has the wrong length.
var ErrMalformedHash = errors.New("malformed password hash")

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// HashPassword returns salt||Argon2id(password, salt) with a fresh random salt.
func HashPassword(password string) ([]byte, error) {
	salt, err := RandBytes(saltLen)
	if err != nil {
		return nil, err
	}
	return append(salt, derive([]byte(password), salt)...), nil
}

// VerifyPassword checks password against a value produced by HashPassword.
func VerifyPassword(password string, stored []byte) (bool, error) {
	if len(stored) != saltLen+int(argonKeyLen) {
		return false, ErrMalformedHash
	}
	salt, expected := stored[:saltLen], stored[saltLen:]
	got := derive([]byte(password), salt)
	return subtle.ConstantTimeCompare(got, expected) == 1, nil
}

func derive(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}
