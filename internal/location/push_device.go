package location

import (
	"context"
	"sync"
	"time"
)

// PushDevice receives fixes and permission changes from the native shell
// that owns the real GPS hardware.
type PushDevice struct {
	mu         sync.Mutex
	permission PermissionStatus
	latest     *Fix
	maxAge     time.Duration
	waiters    []chan Fix
	watchers   map[chan Fix]struct{}
	now        func() time.Time
}

// NewPushDevice creates a device with the given initial permission. A
// stored fix older than maxAge is not returned by CurrentFix; zero
// disables the age check.
func NewPushDevice(initial PermissionStatus, maxAge time.Duration) *PushDevice {
	if initial == "" {
		initial = PermissionUndetermined
	}
	return &PushDevice{
		permission: initial,
		maxAge:     maxAge,
		watchers:   make(map[chan Fix]struct{}),
		now:        time.Now,
	}
}

// SetPermission records the permission answer reported by the shell.
func (d *PushDevice) SetPermission(status PermissionStatus) {
	d.mu.Lock()
	d.permission = status
	d.mu.Unlock()
}

// Push records a new fix and hands it to pending CurrentFix calls and
// watchers. Watchers that are not keeping up miss the fix.
func (d *PushDevice) Push(fix Fix) {
	if fix.Timestamp.IsZero() {
		fix.Timestamp = d.now()
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.latest = &fix
	for _, w := range d.waiters {
		w <- fix
	}
	d.waiters = nil
	for w := range d.watchers {
		select {
		case w <- fix:
		default:
		}
	}
}

func (d *PushDevice) RequestPermission(ctx context.Context) (PermissionStatus, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.permission, nil
}

// CurrentFix returns the newest fix, or waits for the next push.
func (d *PushDevice) CurrentFix(ctx context.Context, accuracy Accuracy) (Fix, error) {
	d.mu.Lock()
	if d.latest != nil && (d.maxAge <= 0 || d.now().Sub(d.latest.Timestamp) <= d.maxAge) {
		fix := *d.latest
		d.mu.Unlock()
		return fix, nil
	}
	w := make(chan Fix, 1)
	d.waiters = append(d.waiters, w)
	d.mu.Unlock()

	select {
	case fix := <-w:
		return fix, nil
	case <-ctx.Done():
		d.dropWaiter(w)
		select {
		case fix := <-w:
			return fix, nil
		default:
		}
		return Fix{}, ErrNoFix
	}
}

func (d *PushDevice) Watch(ctx context.Context) (<-chan Fix, error) {
	ch := make(chan Fix, 8)

	d.mu.Lock()
	d.watchers[ch] = struct{}{}
	d.mu.Unlock()

	go func() {
		<-ctx.Done()
		d.mu.Lock()
		delete(d.watchers, ch)
		close(ch)
		d.mu.Unlock()
	}()
	return ch, nil
}

func (d *PushDevice) dropWaiter(w chan Fix) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, c := range d.waiters {
		if c == w {
			d.waiters = append(d.waiters[:i], d.waiters[i+1:]...)
			return
		}
	}
}
