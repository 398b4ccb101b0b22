package location

import "time"

// NotAvailable is the address used when reverse geocoding yields nothing.
const NotAvailable = "Location not available"

// Default watch thresholds.
const (
	DefaultMinInterval = 10 * time.Second
	DefaultMinDistance = 10.0 // meters
)

// Point is a latitude/longitude pair in decimal degrees.
type Point struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Fix is a raw position reported by a device.
type Fix struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  float64   `json:"accuracy,omitempty"` // meters
	Timestamp time.Time `json:"timestamp"`
}

// Point returns the fix coordinates.
func (f Fix) Point() Point {
	return Point{Latitude: f.Latitude, Longitude: f.Longitude}
}

// Sample is a geocoded location handed to consumers.
type Sample struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Address   string    `json:"address"`
	Timestamp time.Time `json:"timestamp"`
}

// Point returns the sample coordinates.
func (s Sample) Point() Point {
	return Point{Latitude: s.Latitude, Longitude: s.Longitude}
}

// Accuracy requested from a device. The zero value is high accuracy.
type Accuracy int

const (
	AccuracyHigh Accuracy = iota
	AccuracyBalanced
	AccuracyLow
)

// PermissionStatus is the device's foreground location permission.
type PermissionStatus string

const (
	PermissionUndetermined PermissionStatus = "undetermined"
	PermissionGranted      PermissionStatus = "granted"
	PermissionDenied       PermissionStatus = "denied"
)

// WatchOptions configures a continuous location subscription. Zero values
// fall back to the defaults (10s / 10m).
type WatchOptions struct {
	Accuracy    Accuracy
	MinInterval time.Duration
	MinDistance float64
}

func (o WatchOptions) withDefaults() WatchOptions {
	if o.MinInterval <= 0 {
		o.MinInterval = DefaultMinInterval
	}
	if o.MinDistance <= 0 {
		o.MinDistance = DefaultMinDistance
	}
	return o
}
