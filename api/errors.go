package api

import (
	"errors"
	"fmt"
)

var (
	// ErrTooManyPages is returned when a fetch exceeds ClientOptions.MaxPages.
	ErrTooManyPages = errors.New("page limit exceeded")

	// ErrCursorCycle is returned when a server hands out a cursor it already
	// returned during the same fetch.
	ErrCursorCycle = errors.New("pagination cursor repeated")
)

// AuthenticationError is returned when the login call fails or answers with
// a non-success status.
type AuthenticationError struct {
	URL string
	Err error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication against %s failed: %v", e.URL, e.Err)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// FetchError is returned when any page of a collection cannot be retrieved.
// Records from earlier pages are discarded.
type FetchError struct {
	URL  string
	Page int
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching %s (page %d) failed: %v", e.URL, e.Page, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
