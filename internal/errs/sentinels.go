// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import (
	"errors"
	"fmt"
)

// Error kinds. Transport layers map these to status codes with errors.Is.
var (
	// ErrInvalidInput indicates a malformed or incomplete request.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthenticated indicates a missing, invalid or expired credential.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrForbidden indicates an authenticated caller without the required role or ownership.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a state conflict with the current data.
	ErrConflict = errors.New("conflict")

	// ErrRateLimited indicates temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")
)

// Refinements. Each one also matches its kind.
var (
	// ErrAlreadyExists indicates a unique constraint violation (username or ISBN taken).
	ErrAlreadyExists = fmt.Errorf("%w: already exists", ErrConflict)

	// ErrBookUnavailable indicates the book is lent out.
	ErrBookUnavailable = fmt.Errorf("%w: book is not available", ErrConflict)

	// ErrAlreadyReturned indicates the borrow was already closed.
	ErrAlreadyReturned = fmt.Errorf("%w: book already returned", ErrConflict)

	// ErrMalformedToken indicates a token that cannot be parsed or whose signature is wrong.
	ErrMalformedToken = fmt.Errorf("%w: malformed token", ErrUnauthenticated)
)
