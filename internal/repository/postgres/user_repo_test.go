package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/and161185/lendkeeper/internal/errs"
	"github.com/and161185/lendkeeper/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

func newDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return &DB{Pool: mock}, mock
}

var userCols = []string{"id", "username", "pwd_hash", "name", "contact_info", "role", "created_at"}

func TestUserRepo_Create_OK_and_UniqueViolation(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewUserRepo(db)
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	u := &model.User{Username: "alice", PwdHash: []byte("h"), Name: "Alice", ContactInfo: "a@x", Role: model.RolePatron}

	mock.ExpectQuery(`INSERT INTO users \(username, pwd_hash, name, contact_info, role\) VALUES \(\$1, \$2, \$3, \$4, \$5\) RETURNING id, created_at`).
		WithArgs("alice", []byte("h"), "Alice", "a@x", "PATRON").
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(int64(7), now))
	require.NoError(t, r.Create(ctx, u))
	require.Equal(t, int64(7), u.ID)
	require.Equal(t, now, u.CreatedAt)

	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs("alice", []byte("h"), "Alice", "a@x", "PATRON").
		WillReturnError(&pgconn.PgError{Code: "23505"})
	err := r.Create(ctx, u)
	require.ErrorIs(t, err, errs.ErrAlreadyExists)
	require.ErrorIs(t, err, errs.ErrConflict)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_GetByUsername(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewUserRepo(db)
	ctx := context.Background()
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT id, username, pwd_hash, name, contact_info, role, created_at FROM users WHERE username=\$1`).
		WithArgs("libby").
		WillReturnRows(pgxmock.NewRows(userCols).AddRow(int64(2), "libby", []byte("h"), "Libby", "", "LIBRARIAN", now))
	u, err := r.GetByUsername(ctx, "libby")
	require.NoError(t, err)
	require.Equal(t, int64(2), u.ID)
	require.Equal(t, model.RoleLibrarian, u.Role)

	mock.ExpectQuery(`FROM users WHERE username=\$1`).
		WithArgs("ghost").
		WillReturnError(pgx.ErrNoRows)
	_, err = r.GetByUsername(ctx, "ghost")
	require.ErrorIs(t, err, errs.ErrNotFound)

	boom := errors.New("conn reset")
	mock.ExpectQuery(`FROM users WHERE username=\$1`).
		WithArgs("x").
		WillReturnError(boom)
	_, err = r.GetByUsername(ctx, "x")
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, errs.ErrNotFound)
}

func TestUserRepo_GetByID_And_List(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewUserRepo(db)
	ctx := context.Background()
	now := time.Now().UTC()

	mock.ExpectQuery(`FROM users WHERE id=\$1`).
		WithArgs(int64(1)).
		WillReturnRows(pgxmock.NewRows(userCols).AddRow(int64(1), "alice", []byte("h"), "", "", "PATRON", now))
	u, err := r.GetByID(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "alice", u.Username)

	mock.ExpectQuery(`FROM users ORDER BY id`).
		WillReturnRows(pgxmock.NewRows(userCols).
			AddRow(int64(1), "alice", []byte("h"), "", "", "PATRON", now).
			AddRow(int64(2), "libby", []byte("h"), "", "", "LIBRARIAN", now))
	list, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "libby", list[1].Username)
}

func TestUserRepo_Exists(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewUserRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS (SELECT 1 FROM users WHERE username=$1)`)).
		WithArgs("alice").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	ok, err := r.Exists(context.Background(), "alice")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestUserRepo_Update(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewUserRepo(db)
	ctx := context.Background()
	u := &model.User{ID: 3, Name: "N", ContactInfo: "C", Role: model.RoleLibrarian}

	mock.ExpectExec(`UPDATE users SET name=\$2, contact_info=\$3, role=\$4 WHERE id=\$1`).
		WithArgs(int64(3), "N", "C", "LIBRARIAN").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, r.Update(ctx, u))

	mock.ExpectExec(`UPDATE users SET`).
		WithArgs(int64(3), "N", "C", "LIBRARIAN").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	require.ErrorIs(t, r.Update(ctx, u), errs.ErrNotFound)
}

func TestUserRepo_Delete(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewUserRepo(db)
	ctx := context.Background()

	// deleted
	mock.ExpectQuery(`DELETE FROM users WHERE id=\$1 AND NOT EXISTS`).
		WithArgs(int64(1)).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(1)))
	require.NoError(t, r.Delete(ctx, 1))

	// has open borrows
	mock.ExpectQuery(`DELETE FROM users`).
		WithArgs(int64(2)).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS (SELECT 1 FROM users WHERE id=$1)`)).
		WithArgs(int64(2)).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	require.ErrorIs(t, r.Delete(ctx, 2), errs.ErrConflict)

	// missing
	mock.ExpectQuery(`DELETE FROM users`).
		WithArgs(int64(3)).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(int64(3)).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	require.ErrorIs(t, r.Delete(ctx, 3), errs.ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}
