package location

import "errors"

var (
	ErrPermissionDenied = errors.New("location permission denied")
	ErrNoFix            = errors.New("no location fix available")
	ErrNotSupported     = errors.New("operation not supported by this location device")
	ErrGeocodeRequest   = errors.New("reverse geocode request failed")
)
