package memory

import (
	"context"
	"fmt"

	"github.com/and161185/lendkeeper/internal/errs"
	"github.com/and161185/lendkeeper/internal/model"
)

// UserRepo implements repository.UserRepository in memory.
type UserRepo struct{ s *Store }

// Create inserts a user with a unique username.
func (r *UserRepo) Create(_ context.Context, u *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, x := range r.s.users {
		if x.Username == u.Username {
			return errs.ErrAlreadyExists
		}
	}
	r.s.userSeq++
	u.ID = r.s.userSeq
	u.CreatedAt = r.s.now().UTC()
	r.s.users[u.ID] = cloneUser(u)
	return nil
}

// GetByID loads a user by ID.
func (r *UserRepo) GetByID(_ context.Context, id int64) (*model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return cloneUser(u), nil
}

// GetByUsername loads a user by username.
func (r *UserRepo) GetByUsername(_ context.Context, username string) (*model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if u := r.byName(username); u != nil {
		return cloneUser(u), nil
	}
	return nil, errs.ErrNotFound
}

// Exists reports whether the username is taken.
func (r *UserRepo) Exists(_ context.Context, username string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.byName(username) != nil, nil
}

// List returns all users ordered by ID.
func (r *UserRepo) List(_ context.Context) ([]model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]model.User, 0, len(r.s.users))
	for _, u := range r.s.users {
		out = append(out, *cloneUser(u))
	}
	sortByID(out, func(u model.User) int64 { return u.ID })
	return out, nil
}

// Update stores name, contact info and role.
func (r *UserRepo) Update(_ context.Context, u *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.users[u.ID]
	if !ok {
		return errs.ErrNotFound
	}
	cur.Name = u.Name
	cur.ContactInfo = u.ContactInfo
	cur.Role = u.Role
	return nil
}

// Delete removes a user without open borrows and its borrow history.
func (r *UserRepo) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[id]; !ok {
		return errs.ErrNotFound
	}
	for _, b := range r.s.borrows {
		if b.UserID == id && b.Open() {
			return fmt.Errorf("user %d has open borrows: %w", id, errs.ErrConflict)
		}
	}
	for bid, b := range r.s.borrows {
		if b.UserID == id {
			delete(r.s.borrows, bid)
		}
	}
	delete(r.s.users, id)
	return nil
}

func (r *UserRepo) byName(username string) *model.User {
	for _, u := range r.s.users {
		if u.Username == username {
			return u
		}
	}
	return nil
}
