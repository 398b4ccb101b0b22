package tracking

import "errors"

var (
	ErrNoActiveSession = errors.New("no active emergency session")
	ErrClosed          = errors.New("tracker closed")
	ErrInvalidLocation = errors.New("location coordinates out of range")
)
