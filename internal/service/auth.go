// Package service contains application services for accounts, the catalog and lending.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	pkgcrypto "github.com/and161185/lendkeeper/internal/crypto"
	"github.com/and161185/lendkeeper/internal/errs"
	"github.com/and161185/lendkeeper/internal/limiter"
	"github.com/and161185/lendkeeper/internal/model"
	"github.com/and161185/lendkeeper/internal/repository"
)

// TokenIssuer signs access tokens.
type TokenIssuer interface {
	IssueWithClaims(username string, extra map[string]any) (model.Tokens, error)
}

// RegisterInput carries the fields of a new account.
type RegisterInput struct {
	Username    string
	Password    string
	Name        string
	ContactInfo string
	Role        model.Role // PATRON when empty
}

// AuthService defines registration and login.
type AuthService interface {
	// Register creates a new user with secure password hashing.
	Register(ctx context.Context, in RegisterInput) (model.User, error)
	// LoginWithIP applies rate-limiting and authenticates the user.
	LoginWithIP(ctx context.Context, username, password, ip string) (model.Tokens, model.User, error)
}

type AuthServiceImpl struct {
	users  repository.UserRepository
	tokens TokenIssuer
	lim    limiter.Limiter
	log    *zap.Logger
}

// NewAuthService constructs AuthService with required dependencies. A nil limiter never blocks.
func NewAuthService(users repository.UserRepository, tokens TokenIssuer, lim limiter.Limiter, log *zap.Logger) *AuthServiceImpl {
	if lim == nil {
		lim = limiter.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthServiceImpl{users: users, tokens: tokens, lim: lim, log: log}
}

// Register creates a new user record.
func (s *AuthServiceImpl) Register(ctx context.Context, in RegisterInput) (model.User, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" || in.Password == "" {
		return model.User{}, fmt.Errorf("register: empty username/password: %w", errs.ErrInvalidInput)
	}
	role := in.Role
	if role == "" {
		role = model.RolePatron
	}
	if !role.Valid() {
		return model.User{}, fmt.Errorf("register: unknown role %q: %w", in.Role, errs.ErrInvalidInput)
	}

	hash, err := pkgcrypto.HashPassword(in.Password)
	if err != nil {
		return model.User{}, fmt.Errorf("register: hash password: %w", err)
	}
	u := &model.User{
		Username:    username,
		PwdHash:     hash,
		Name:        in.Name,
		ContactInfo: in.ContactInfo,
		Role:        role,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return model.User{}, fmt.Errorf("register %q: %w", username, err)
	}
	s.log.Info("user registered", zap.Int64("user_id", u.ID), zap.String("role", string(role)))
	return public(*u), nil
}

// LoginWithIP authenticates with rate limiting by (username, ip).
func (s *AuthServiceImpl) LoginWithIP(ctx context.Context, username, password, ip string) (model.Tokens, model.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return model.Tokens{}, model.User{}, fmt.Errorf("login: empty username/password: %w", errs.ErrInvalidInput)
	}
	key := limiter.NewKey(username, ip)

	// Check if requests are currently allowed for this (user, ip).
	allowed, _, err := s.lim.Allow(ctx, key)
	if err != nil {
		return model.Tokens{}, model.User{}, err
	}
	if !allowed {
		return model.Tokens{}, model.User{}, errs.ErrRateLimited
	}

	u, err := s.users.GetByUsername(ctx, username)
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return model.Tokens{}, model.User{}, err
	}
	if err != nil || !s.passwordMatches(password, u) {
		if blocked, _, ferr := s.lim.Failure(ctx, key); ferr == nil && blocked {
			s.log.Warn("login blocked", zap.String("username", username))
			return model.Tokens{}, model.User{}, errs.ErrRateLimited
		}
		// unknown user and wrong password look the same
		return model.Tokens{}, model.User{}, fmt.Errorf("bad credentials: %w", errs.ErrUnauthenticated)
	}

	// Success: reset counters (best-effort).
	_ = s.lim.Success(ctx, key)

	tok, err := s.tokens.IssueWithClaims(u.Username, map[string]any{
		"role": string(u.Role),
		"name": u.Name,
	})
	if err != nil {
		return model.Tokens{}, model.User{}, err
	}
	return tok, public(*u), nil
}

func (s *AuthServiceImpl) passwordMatches(password string, u *model.User) bool {
	ok, err := pkgcrypto.VerifyPassword(password, u.PwdHash)
	if err != nil {
		s.log.Error("stored password hash unreadable", zap.Int64("user_id", u.ID), zap.Error(err))
		return false
	}
	return ok
}

// public strips secrets before a user leaves the service layer.
func public(u model.User) model.User {
	u.PwdHash = nil
	return u
}
