// Package limiter throttles repeated failed logins per username and client address.
package limiter

import (
	"context"
	"crypto/sha256"
	"net"
	"time"
)

// Key identifies a login source. Client addresses are stored only as hashes.
type Key struct {
	Username   string
	ClientHash []byte
}

// NewKey builds a key from a username and a peer address ("host:port" or bare host).
func NewKey(username, addr string) Key {
	host := addr
	if h, _, err := net.SplitHostPort(addr); err == nil {
		host = h
	}
	return Key{Username: username, ClientHash: HashIP(host)}
}

// HashIP returns a stable hash for an IP string to avoid storing raw addresses.
func HashIP(ip string) []byte {
	h := sha256.Sum256([]byte(ip))
	return h[:]
}

// Limiter controls login attempts and temporary lockouts.
type Limiter interface {
	// Allow reports whether login is currently allowed and optional retry-after.
	Allow(ctx context.Context, k Key) (bool, time.Duration, error)
	// Success resets counters after a successful login.
	Success(ctx context.Context, k Key) error
	// Failure records a failed attempt; may place a temporary block.
	Failure(ctx context.Context, k Key) (bool, time.Duration, error)
}

// Settings holds the lockout policy shared by all implementations.
type Settings struct {
	Window   time.Duration
	MaxFails int
	BlockFor time.Duration
}

// Nop never blocks.
type Nop struct{}

func (Nop) Allow(context.Context, Key) (bool, time.Duration, error) { return true, 0, nil }
func (Nop) Success(context.Context, Key) error { return nil }
func (Nop) Failure(context.Context, Key) (bool, time.Duration, error) { return false, 0, nil }
