// Package access decides which roles may perform which operations and authenticates callers.
package access

import (
	"slices"

	"github.com/and161185/lendkeeper/internal/model"
)

// Capability tags an operation with the permission it requires.
type Capability string

// Known capabilities.
const (
	Public        Capability = "PUBLIC"
	Authenticated Capability = "AUTHENTICATED"

	BookRead   Capability = "BOOK_READ"
	BookWrite  Capability = "BOOK_WRITE"
	BookDelete Capability = "BOOK_DELETE"

	BorrowCreate        Capability = "BORROW_CREATE"
	BorrowRead          Capability = "BORROW_READ"
	BorrowReturnOwn     Capability = "BORROW_RETURN_OWN"
	BorrowDelete        Capability = "BORROW_DELETE"
	BorrowHistoryAll    Capability = "BORROW_HISTORY_ALL"
	BorrowOverdue       Capability = "BORROW_OVERDUE"
	BorrowOverdueReport Capability = "BORROW_OVERDUE_REPORT"

	UserRead  Capability = "USER_READ"
	UserWrite Capability = "USER_WRITE"
)

var (
	librarianOnly = []model.Role{model.RoleLibrarian}
	patronOnly    = []model.Role{model.RolePatron}
	anyRole       = []model.Role{model.RolePatron, model.RoleLibrarian}
)

// policy lists the roles allowed per capability. Capabilities absent here need any valid role.
var policy = map[Capability][]model.Role{
	BookRead:   librarianOnly,
	BookWrite:  librarianOnly,
	BookDelete: librarianOnly,

	BorrowCreate:        patronOnly,
	BorrowRead:          anyRole,
	BorrowReturnOwn:     patronOnly,
	BorrowDelete:        librarianOnly,
	BorrowHistoryAll:    librarianOnly,
	BorrowOverdue:       librarianOnly,
	BorrowOverdueReport: librarianOnly,

	UserRead:  librarianOnly,
	UserWrite: librarianOnly,
}

// Allowed reports whether role may exercise capability c.
func Allowed(role model.Role, c Capability) bool {
	if c == Public {
		return true
	}
	if !role.Valid() {
		return false
	}
	roles, ok := policy[c]
	if !ok {
		return true
	}
	return slices.Contains(roles, role)
}
