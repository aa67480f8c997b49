// Package convert maps domain models to API wire types and back.
package convert

import (
	"time"

	"github.com/and161185/lendkeeper/internal/api"
	"github.com/and161185/lendkeeper/internal/model"
	"github.com/and161185/lendkeeper/internal/service"
)

// --- helpers ---

func timePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// --- Users ---

// ToAPIUser drops the password hash.
func ToAPIUser(u model.User) api.User {
	return api.User{
		ID:          u.ID,
		Username:    u.Username,
		Name:        u.Name,
		ContactInfo: u.ContactInfo,
		Role:        string(u.Role),
		CreatedAt:   u.CreatedAt,
	}
}

func ToAPIUsers(us []model.User) []api.User {
	out := make([]api.User, 0, len(us))
	for _, u := range us {
		out = append(out, ToAPIUser(u))
	}
	return out
}

func FromAPIRegister(in *api.RegisterRequest) service.RegisterInput {
	return service.RegisterInput{
		Username:    in.Username,
		Password:    in.Password,
		Name:        in.Name,
		ContactInfo: in.ContactInfo,
		Role:        model.Role(in.Role),
	}
}

func FromAPIUserUpdate(in *api.UpdateUserRequest) service.UserUpdate {
	return service.UserUpdate{Name: in.Name, ContactInfo: in.ContactInfo, Role: model.Role(in.Role)}
}

// --- Books ---

func ToAPIBook(b model.Book) api.Book {
	return api.Book{
		ID: b.ID,
		BookInput: api.BookInput{
			Title:           b.Title,
			Author:          b.Author,
			ISBN:            b.ISBN,
			PublicationDate: timePtr(b.PublicationDate),
			Genre:           b.Genre,
		},
		Available: b.Available,
	}
}

func ToAPIBooks(bs []model.Book) []api.Book {
	out := make([]api.Book, 0, len(bs))
	for _, b := range bs {
		out = append(out, ToAPIBook(b))
	}
	return out
}

func FromAPIBookInput(in api.BookInput) service.BookInput {
	return service.BookInput{
		Title:           in.Title,
		Author:          in.Author,
		ISBN:            in.ISBN,
		PublicationDate: timePtr(in.PublicationDate),
		Genre:           in.Genre,
	}
}

// --- Borrows ---

func FromAPIBorrow(in *api.BorrowRequest) service.BorrowInput {
	return service.BorrowInput{
		BookID:              in.BookID,
		BorrowDate:          in.BorrowDate,
		RequestedReturnDate: timePtr(in.RequestedReturnDate),
	}
}

func ToAPIBorrow(r model.BorrowRecord) api.BorrowRecord {
	return api.BorrowRecord{
		ID:                  r.ID,
		BookID:              r.BookID,
		Username:            r.Username,
		BookTitle:           r.BookTitle,
		BorrowDate:          r.BorrowDate,
		RequestedReturnDate: timePtr(r.RequestedReturnDate),
		ReturnDate:          timePtr(r.ReturnDate),
		Returned:            r.Returned,
	}
}

func ToAPIBorrows(rs []model.BorrowRecord) []api.BorrowRecord {
	out := make([]api.BorrowRecord, 0, len(rs))
	for _, r := range rs {
		out = append(out, ToAPIBorrow(r))
	}
	return out
}

func ToAPIOverdue(es []model.OverdueEntry) []api.OverdueEntry {
	out := make([]api.OverdueEntry, 0, len(es))
	for _, e := range es {
		out = append(out, api.OverdueEntry{
			BorrowID:   e.BorrowID,
			BookTitle:  e.BookTitle,
			Username:   e.Username,
			BorrowDate: e.BorrowDate,
			DueDate:    e.DueDate,
		})
	}
	return out
}

// --- Events ---

func ToAPIEvent(ev model.AvailabilityEvent) *api.AvailabilityEvent {
	return &api.AvailabilityEvent{BookID: ev.BookID, Available: ev.Available}
}
