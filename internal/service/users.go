package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/and161185/lendkeeper/internal/errs"
	"github.com/and161185/lendkeeper/internal/model"
	"github.com/and161185/lendkeeper/internal/repository"
)

// UserUpdate holds editable profile fields. An empty Role keeps the current one.
type UserUpdate struct {
	Name        string
	ContactInfo string
	Role        model.Role
}

// UserService manages accounts on behalf of librarians.
type UserService interface {
	List(ctx context.Context) ([]model.User, error)
	Get(ctx context.Context, id int64) (model.User, error)
	Update(ctx context.Context, id int64, in UserUpdate) (model.User, error)
	Delete(ctx context.Context, id int64) error
}

type UserServiceImpl struct {
	users repository.UserRepository
	log   *zap.Logger
}

// NewUserService constructs UserService.
func NewUserService(users repository.UserRepository, log *zap.Logger) *UserServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	return &UserServiceImpl{users: users, log: log}
}

func (s *UserServiceImpl) List(ctx context.Context) ([]model.User, error) {
	us, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range us {
		us[i] = public(us[i])
	}
	return us, nil
}

func (s *UserServiceImpl) Get(ctx context.Context, id int64) (model.User, error) {
	if id <= 0 {
		return model.User{}, fmt.Errorf("user id %d: %w", id, errs.ErrInvalidInput)
	}
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return model.User{}, fmt.Errorf("user %d: %w", id, err)
	}
	return public(*u), nil
}

// Update changes the profile and role. The username is immutable.
func (s *UserServiceImpl) Update(ctx context.Context, id int64, in UserUpdate) (model.User, error) {
	if in.Role != "" && !in.Role.Valid() {
		return model.User{}, fmt.Errorf("update user: unknown role %q: %w", in.Role, errs.ErrInvalidInput)
	}
	u, err := s.Get(ctx, id)
	if err != nil {
		return model.User{}, err
	}
	u.Name = in.Name
	u.ContactInfo = in.ContactInfo
	if in.Role != "" {
		u.Role = in.Role
	}
	if err := s.users.Update(ctx, &u); err != nil {
		return model.User{}, fmt.Errorf("update user %d: %w", id, err)
	}
	s.log.Info("user updated", zap.Int64("user_id", id), zap.String("role", string(u.Role)))
	return u, nil
}

// Delete removes a user and its returned borrows. Users with open borrows are kept.
func (s *UserServiceImpl) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return fmt.Errorf("user id %d: %w", id, errs.ErrInvalidInput)
	}
	if err := s.users.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete user %d: %w", id, err)
	}
	s.log.Info("user deleted", zap.Int64("user_id", id))
	return nil
}
