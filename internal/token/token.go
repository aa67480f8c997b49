// Package token issues and verifies HS256 access tokens bound to a username.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/and161185/lendkeeper/internal/errs"
	"github.com/and161185/lendkeeper/internal/model"
	"github.com/golang-jwt/jwt/v5"
)

// Service signs and verifies access tokens. It holds no mutable state and is safe for concurrent use.
type Service struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides the time source used for iat/exp and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService constructs a token service with the given signing key and token lifetime.
func NewService(key []byte, ttl time.Duration, opts ...Option) (*Service, error) {
	if len(key) == 0 {
		return nil, fmt.Errorf("token: empty signing key: %w", errs.ErrInvalidInput)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("token: non-positive ttl: %w", errs.ErrInvalidInput)
	}
	s := &Service{key: key, ttl: ttl, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// TTL returns the configured token lifetime.
func (s *Service) TTL() time.Duration { return s.ttl }

// Issue creates a signed token for username.
func (s *Service) Issue(username string) (model.Tokens, error) {
	return s.IssueWithClaims(username, nil)
}

// IssueWithClaims creates a signed token carrying extra claims. sub, iat and exp always win.
func (s *Service) IssueWithClaims(username string, extra map[string]any) (model.Tokens, error) {
	if username == "" {
		return model.Tokens{}, fmt.Errorf("token: empty subject: %w", errs.ErrInvalidInput)
	}
	now := s.now()
	exp := now.Add(s.ttl)

	claims := make(jwt.MapClaims, len(extra)+3)
	for k, v := range extra {
		claims[k] = v
	}
	claims["sub"] = username
	claims["iat"] = jwt.NewNumericDate(now)
	claims["exp"] = jwt.NewNumericDate(exp)

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return model.Tokens{}, fmt.Errorf("token: sign: %w", err)
	}
	return model.Tokens{AccessToken: signed, ExpiresAt: jwt.NewNumericDate(exp).Time}, nil
}

// Verify reports whether raw is a well-formed, correctly signed, unexpired token issued for expected.
// It fails closed on any problem.
func (s *Service) Verify(raw, expected string) bool {
	if raw == "" || expected == "" {
		return false
	}
	parsed, err := jwt.Parse(raw, s.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
		jwt.WithSubject(expected),
	)
	return err == nil && parsed.Valid
}

// ExtractSubject returns the sub claim of a correctly signed token. Expiry is not checked here.
func (s *Service) ExtractSubject(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("token: empty: %w", errs.ErrInvalidInput)
	}
	parsed, err := jwt.Parse(raw, s.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return "", fmt.Errorf("token: %v: %w", err, errs.ErrMalformedToken)
	}
	sub, err := parsed.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("token: missing subject: %w", errs.ErrMalformedToken)
	}
	return sub, nil
}

func (s *Service) keyFunc(t *jwt.Token) (any, error) {
	if t.Method != jwt.SigningMethodHS256 {
		return nil, errors.New("unexpected signing method")
	}
	return s.key, nil
}
