package api

import "time"

// Empty is the request or response of calls without a payload.
type Empty struct{}

// IDRequest addresses a single book, borrow or user.
type IDRequest struct {
	ID int64 `json:"id"`
}

type RegisterRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	Name        string `json:"name,omitempty"`
	ContactInfo string `json:"contact_info,omitempty"`
	Role        string `json:"role,omitempty"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	User        User      `json:"user"`
}

type User struct {
	ID          int64     `json:"id"`
	Username    string    `json:"username"`
	Name        string    `json:"name,omitempty"`
	ContactInfo string    `json:"contact_info,omitempty"`
	Role        string    `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
}

type UsersResponse struct {
	Users []User `json:"users"`
}

type UpdateUserRequest struct {
	ID          int64  `json:"id"`
	Name        string `json:"name,omitempty"`
	ContactInfo string `json:"contact_info,omitempty"`
	Role        string `json:"role,omitempty"`
}

// BookInput carries the editable fields of a book.
type BookInput struct {
	Title           string     `json:"title"`
	Author          string     `json:"author"`
	ISBN            string     `json:"isbn"`
	PublicationDate *time.Time `json:"publication_date,omitempty"`
	Genre           string     `json:"genre,omitempty"`
}

type UpdateBookRequest struct {
	ID int64 `json:"id"`
	BookInput
}

type Book struct {
	ID int64 `json:"id"`
	BookInput
	Available bool `json:"available"`
}

type BooksResponse struct {
	Books []Book `json:"books"`
}

type SearchBooksRequest struct {
	Keyword string `json:"keyword"`
}

type BorrowRequest struct {
	BookID              int64      `json:"book_id"`
	BorrowDate          time.Time  `json:"borrow_date"`
	RequestedReturnDate *time.Time `json:"requested_return_date,omitempty"`
}

type ReturnRequest struct {
	BorrowID int64 `json:"borrow_id"`
}

type BorrowRecord struct {
	ID                  int64      `json:"id"`
	BookID              int64      `json:"book_id"`
	Username            string     `json:"username"`
	BookTitle           string     `json:"book_title"`
	BorrowDate          time.Time  `json:"borrow_date"`
	RequestedReturnDate *time.Time `json:"requested_return_date,omitempty"`
	ReturnDate          *time.Time `json:"return_date,omitempty"`
	Returned            bool       `json:"returned"`
}

type BorrowsResponse struct {
	Borrows []BorrowRecord `json:"borrows"`
}

// OverdueRequest pins the reference day. The server clock is used when AsOf is nil.
type OverdueRequest struct {
	AsOf *time.Time `json:"as_of,omitempty"`
}

type OverdueEntry struct {
	BorrowID   int64     `json:"borrow_id"`
	BookTitle  string    `json:"book_title"`
	Username   string    `json:"username"`
	BorrowDate time.Time `json:"borrow_date"`
	DueDate    time.Time `json:"due_date"`
}

type OverdueReportResponse struct {
	Entries []OverdueEntry `json:"entries"`
}

// WatchRequest opens an availability stream. An empty BookIDs watches every book.
type WatchRequest struct {
	BookIDs []int64 `json:"book_ids,omitempty"`
}

type AvailabilityEvent struct {
	BookID    int64 `json:"book_id"`
	Available bool  `json:"available"`
}

// HistoryRequest selects one user's borrow history. An empty Username selects everyone's.
type HistoryRequest struct {
	Username string `json:"username,omitempty"`
}
