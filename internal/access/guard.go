package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/and161185/lendkeeper/internal/errs"
	"github.com/and161185/lendkeeper/internal/model"
)

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID   int64
	Username string
	Role     model.Role
}

// TokenVerifier is the subset of the token service the guard needs.
type TokenVerifier interface {
	ExtractSubject(raw string) (string, error)
	Verify(raw, expected string) bool
}

// UserLookup resolves a token subject to a stored user.
type UserLookup interface {
	GetByUsername(ctx context.Context, username string) (*model.User, error)
}

// Guard authenticates bearer tokens and authorizes capabilities. It keeps no per-request state.
type Guard struct {
	tokens TokenVerifier
	users  UserLookup
}

// NewGuard constructs a Guard.
func NewGuard(tokens TokenVerifier, users UserLookup) *Guard {
	return &Guard{tokens: tokens, users: users}
}

// Authenticate resolves raw to a principal. The subject is read first, the user loaded,
// then the token is fully verified against that user.
func (g *Guard) Authenticate(ctx context.Context, raw string) (Principal, error) {
	if raw == "" {
		return Principal{}, fmt.Errorf("authenticate: missing token: %w", errs.ErrInvalidInput)
	}
	sub, err := g.tokens.ExtractSubject(raw)
	if err != nil {
		if errors.Is(err, errs.ErrUnauthenticated) || errors.Is(err, errs.ErrInvalidInput) {
			return Principal{}, fmt.Errorf("authenticate: %w", err)
		}
		return Principal{}, fmt.Errorf("authenticate: %v: %w", err, errs.ErrUnauthenticated)
	}
	u, err := g.users.GetByUsername(ctx, sub)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return Principal{}, fmt.Errorf("authenticate: unknown subject: %w", errs.ErrUnauthenticated)
		}
		return Principal{}, fmt.Errorf("authenticate: load user: %w", err)
	}
	if !g.tokens.Verify(raw, u.Username) {
		return Principal{}, fmt.Errorf("authenticate: token rejected: %w", errs.ErrUnauthenticated)
	}
	return Principal{UserID: u.ID, Username: u.Username, Role: u.Role}, nil
}

// Authorize returns ErrForbidden when p may not exercise c.
func (g *Guard) Authorize(p Principal, c Capability) error {
	if !Allowed(p.Role, c) {
		return fmt.Errorf("%s requires another role than %q: %w", c, p.Role, errs.ErrForbidden)
	}
	return nil
}

// Check authenticates raw and authorizes c in one step. Public capabilities skip authentication
// and return a zero Principal.
func (g *Guard) Check(ctx context.Context, raw string, c Capability) (Principal, error) {
	if c == Public {
		return Principal{}, nil
	}
	p, err := g.Authenticate(ctx, raw)
	if err != nil {
		return Principal{}, err
	}
	if err := g.Authorize(p, c); err != nil {
		return Principal{}, err
	}
	return p, nil
}
