package session

import "errors"

var (
	ErrNotAuthenticated = errors.New("no signed-in patient")
	ErrClosed           = errors.New("session manager closed")
	ErrAlreadyStarted   = errors.New("session manager already started")
)
