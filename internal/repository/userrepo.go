// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/and161185/lendkeeper/internal/model"
)

// UserRepository provides access to user accounts.
type UserRepository interface {
	// Create inserts a new user and fills its ID and CreatedAt.
	Create(ctx context.Context, u *model.User) error
	// GetByID loads a user by ID.
	GetByID(ctx context.Context, id int64) (*model.User, error)
	// GetByUsername loads a user by username.
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	// Exists reports whether the username is taken.
	Exists(ctx context.Context, username string) (bool, error)
	// List returns all users ordered by ID.
	List(ctx context.Context) ([]model.User, error)
	// Update stores name, contact info and role. Username and password hash are left untouched.
	Update(ctx context.Context, u *model.User) error
	// Delete removes a user. Users with open borrows cannot be deleted.
	Delete(ctx context.Context, id int64) error
}
