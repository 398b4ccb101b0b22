package profile

import "errors"

var (
	ErrMissingID    = errors.New("profile id is required")
	ErrEmptyUpdate  = errors.New("no profile fields to update")
	ErrStoreRequest = errors.New("document store request failed")

	// ErrNotFound is returned by stores for an absent document. The client
	// turns it into a nil profile.
	ErrNotFound = errors.New("document not found")
)
