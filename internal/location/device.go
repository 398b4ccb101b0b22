package location

import (
	"context"
	"time"
)

// Device is the source of raw position fixes.
type Device interface {
	// RequestPermission asks for foreground location access.
	RequestPermission(ctx context.Context) (PermissionStatus, error)
	// CurrentFix takes one position fix.
	CurrentFix(ctx context.Context, accuracy Accuracy) (Fix, error)
	// Watch streams fixes until ctx is done, then closes the channel.
	Watch(ctx context.Context) (<-chan Fix, error)
}

// StaticDevice always reports the same position. It backs sample mode.
type StaticDevice struct {
	Position   Point
	Permission PermissionStatus
	now        func() time.Time
}

// NewStaticDevice creates a device pinned to p with permission granted.
func NewStaticDevice(p Point) *StaticDevice {
	return &StaticDevice{Position: p, Permission: PermissionGranted, now: time.Now}
}

func (d *StaticDevice) RequestPermission(ctx context.Context) (PermissionStatus, error) {
	if d.Permission == "" {
		return PermissionGranted, nil
	}
	return d.Permission, nil
}

func (d *StaticDevice) CurrentFix(ctx context.Context, accuracy Accuracy) (Fix, error) {
	if err := ctx.Err(); err != nil {
		return Fix{}, err
	}
	return Fix{Latitude: d.Position.Latitude, Longitude: d.Position.Longitude, Timestamp: d.now()}, nil
}

// Watch emits the fixed position once.
func (d *StaticDevice) Watch(ctx context.Context) (<-chan Fix, error) {
	ch := make(chan Fix, 1)
	ch <- Fix{Latitude: d.Position.Latitude, Longitude: d.Position.Longitude, Timestamp: d.now()}
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}
