package location

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MetricsRecorder records location fix outcomes.
type MetricsRecorder interface {
	RecordLocationFix(ctx context.Context, kind string, ok bool)
}

// Provider wraps a device and a geocoder into geocoded samples.
type Provider struct {
	device   Device
	geocoder Geocoder
	logger   *zap.Logger
	metrics  MetricsRecorder
	timeout  time.Duration
	now      func() time.Time
}

// DefaultFixTimeout bounds a single CurrentLocation call.
const DefaultFixTimeout = 15 * time.Second

// NewProvider creates a provider. A nil geocoder yields NotAvailable for
// every address.
func NewProvider(device Device, geocoder Geocoder, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		device:   device,
		geocoder: geocoder,
		logger:   logger,
		timeout:  DefaultFixTimeout,
		now:      time.Now,
	}
}

// WithFixTimeout overrides how long CurrentLocation waits for a fix.
func (p *Provider) WithFixTimeout(d time.Duration) *Provider {
	if d > 0 {
		p.timeout = d
	}
	return p
}

// WithMetrics attaches a metrics recorder.
func (p *Provider) WithMetrics(m MetricsRecorder) *Provider {
	p.metrics = m
	return p
}

// RequestPermission resolves true when access is granted and
// ErrPermissionDenied otherwise.
func (p *Provider) RequestPermission(ctx context.Context) (bool, error) {
	status, err := p.device.RequestPermission(ctx)
	if err != nil {
		p.logger.Error("Error requesting location permissions", zap.Error(err))
		return false, err
	}
	if status != PermissionGranted {
		p.logger.Warn("Location permission denied", zap.String("status", string(status)))
		return false, ErrPermissionDenied
	}
	return true, nil
}

// CurrentLocation takes one high-accuracy fix and geocodes it.
func (p *Provider) CurrentLocation(ctx context.Context) (Sample, error) {
	if _, err := p.RequestPermission(ctx); err != nil {
		p.record(ctx, "current", false)
		return Sample{}, err
	}

	fixCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	fix, err := p.device.CurrentFix(fixCtx, AccuracyHigh)
	if err != nil {
		p.logger.Error("Error getting current location", zap.Error(err))
		p.record(ctx, "current", false)
		return Sample{}, err
	}

	p.record(ctx, "current", true)
	return p.sample(ctx, fix), nil
}

// AddressFor reverse geocodes lat/lon. Failures fall back to NotAvailable.
func (p *Provider) AddressFor(ctx context.Context, lat, lon float64) string {
	if p.geocoder == nil {
		return NotAvailable
	}
	addr, err := p.geocoder.Reverse(ctx, lat, lon)
	if err != nil {
		p.logger.Warn("Error getting address", zap.Error(err),
			zap.Float64("latitude", lat), zap.Float64("longitude", lon))
		return NotAvailable
	}
	return addr.Format()
}

func (p *Provider) sample(ctx context.Context, fix Fix) Sample {
	return Sample{
		Latitude:  fix.Latitude,
		Longitude: fix.Longitude,
		Address:   p.AddressFor(ctx, fix.Latitude, fix.Longitude),
		Timestamp: p.now(),
	}
}

func (p *Provider) record(ctx context.Context, kind string, ok bool) {
	if p.metrics != nil {
		p.metrics.RecordLocationFix(ctx, kind, ok)
	}
}

// Subscription is a running location watch.
type Subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Stop cancels the watch. Safe to call more than once.
func (s *Subscription) Stop() {
	s.once.Do(s.cancel)
}

// Done is closed once the watch goroutine has exited.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Watch subscribes to position changes. fn receives a freshly geocoded
// sample for the first fix and for every later fix that is at least
// MinInterval newer and MinDistance away from the last delivered one.
func (p *Provider) Watch(ctx context.Context, fn func(Sample), opts WatchOptions) (*Subscription, error) {
	opts = opts.withDefaults()
	if _, err := p.RequestPermission(ctx); err != nil {
		return nil, err
	}

	wctx, cancel := context.WithCancel(ctx)
	fixes, err := p.device.Watch(wctx)
	if err != nil {
		cancel()
		p.logger.Error("Error starting location watch", zap.Error(err))
		return nil, err
	}

	sub := &Subscription{cancel: cancel, done: make(chan struct{})}
	go p.runWatch(wctx, fixes, fn, opts, sub.done)
	return sub, nil
}

// Stop releases a subscription; nil is ignored.
func (p *Provider) Stop(sub *Subscription) {
	if sub != nil {
		sub.Stop()
	}
}

func (p *Provider) runWatch(ctx context.Context, fixes <-chan Fix, fn func(Sample), opts WatchOptions, done chan struct{}) {
	defer close(done)

	var last *Fix
	for {
		select {
		case <-ctx.Done():
			return
		case fix, ok := <-fixes:
			if !ok {
				return
			}
			if last != nil {
				elapsed := fix.Timestamp.Sub(last.Timestamp)
				moved := Distance(last.Point(), fix.Point())
				if elapsed < opts.MinInterval || moved < opts.MinDistance {
					continue
				}
			}
			f := fix
			last = &f

			s := p.sample(ctx, fix)
			if ctx.Err() != nil {
				return
			}
			p.record(ctx, "watch", true)
			p.deliver(fn, s)
		}
	}
}

func (p *Provider) deliver(fn func(Sample), s Sample) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Error in location watch callback", zap.Any("panic", r))
		}
	}()
	fn(s)
}
