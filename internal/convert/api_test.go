package convert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/and161185/lendkeeper/internal/api"
	"github.com/and161185/lendkeeper/internal/model"
)

func TestToAPIUser_DropsHash(t *testing.T) {
	t.Parallel()
	u := ToAPIUser(model.User{ID: 1, Username: "alice", PwdHash: []byte("secret"), Role: model.RoleLibrarian})
	require.Equal(t, api.User{ID: 1, Username: "alice", Role: "LIBRARIAN"}, u)
}

func TestToAPIBook_CopiesDate(t *testing.T) {
	t.Parallel()
	pub := time.Date(1965, 8, 1, 0, 0, 0, 0, time.UTC)
	b := model.Book{ID: 2, Title: "Dune", PublicationDate: &pub, Available: true}

	out := ToAPIBook(b)
	require.Equal(t, "Dune", out.Title)
	require.True(t, out.Available)
	require.NotSame(t, b.PublicationDate, out.PublicationDate)
	require.Equal(t, pub, *out.PublicationDate)
}

func TestToAPIBorrows_EmptyIsNotNil(t *testing.T) {
	t.Parallel()
	require.NotNil(t, ToAPIBorrows(nil))
	require.NotNil(t, ToAPIBooks(nil))
	require.NotNil(t, ToAPIUsers(nil))
	require.NotNil(t, ToAPIOverdue(nil))
}

func TestFromAPIBorrow(t *testing.T) {
	t.Parallel()
	d := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rr := d.AddDate(0, 0, 7)
	in := FromAPIBorrow(&api.BorrowRequest{BookID: 5, BorrowDate: d, RequestedReturnDate: &rr})
	require.Equal(t, int64(5), in.BookID)
	require.Equal(t, d, in.BorrowDate)
	require.Equal(t, rr, *in.RequestedReturnDate)
}

func TestFromAPIRegister_Role(t *testing.T) {
	t.Parallel()
	in := FromAPIRegister(&api.RegisterRequest{Username: "u", Password: "p", Role: "LIBRARIAN"})
	require.Equal(t, model.RoleLibrarian, in.Role)
	require.Equal(t, model.Role(""), FromAPIRegister(&api.RegisterRequest{}).Role)
}
