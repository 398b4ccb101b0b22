// Package tracking keeps the ephemeral emergency session shown while an
// ambulance is dispatched, refreshing the patient location periodically.
package tracking

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/Jayavarshini-Srinivasan/RapidAid-Dashboard/patient-service/internal/broadcast"
	"github.com/Jayavarshini-Srinivasan/RapidAid-Dashboard/patient-service/internal/location"
	"github.com/Jayavarshini-Srinivasan/RapidAid-Dashboard/patient-service/internal/profile"
)

const (
	StatusAmbulanceAssigned = "ambulance_assigned"
	DefaultSeverity         = "standard"
	DefaultRefreshInterval  = 30 * time.Second

	minETA = 3
	maxETA = 12
)

var tracer = otel.Tracer("patient-service/tracking")

// EmergencySession is the synthetic dispatch record. It is never persisted.
type EmergencySession struct {
	ID         string           `json:"id"`
	Timestamp  time.Time        `json:"timestamp"`
	Location   location.Sample  `json:"location"`
	Severity   string           `json:"severity"`
	Status     string           `json:"status"`
	ETAMinutes int              `json:"eta"`
	Patient    *profile.Profile `json:"patientProfile,omitempty"`
}

// View is what subscribers see: the active session, if any, and the most
// recently refreshed location.
type View struct {
	Active    bool              `json:"active"`
	Session   *EmergencySession `json:"session,omitempty"`
	Current   *location.Sample  `json:"currentLocation,omitempty"`
	UpdatedAt *time.Time        `json:"updatedAt,omitempty"`
	Version   uint64            `json:"version"`
}

// StartRequest opens a session. A nil Location is fetched from the device.
type StartRequest struct {
	Location *location.Sample `json:"location,omitempty"`
	Severity string           `json:"severity,omitempty"`
	Patient  *profile.Profile `json:"-"`
}

// LocationSource supplies fresh device locations.
type LocationSource interface {
	CurrentLocation(ctx context.Context) (location.Sample, error)
}

// MetricsRecorder records refresh outcomes.
type MetricsRecorder interface {
	RecordTrackingRefresh(ctx context.Context, applied bool)
}

// Tracker owns at most one active emergency session and its refresh loop.
type Tracker struct {
	location LocationSource
	interval time.Duration
	logger   *zap.Logger
	metrics  MetricsRecorder
	hub      *broadcast.Hub[View]
	now      func() time.Time
	intn     func(int) int

	mu      sync.Mutex
	active  *EmergencySession
	current *location.Sample
	updated time.Time
	version uint64
	// generation identifies the active session; refreshes started under an
	// older generation are dropped.
	generation uint64
	// issued and applied are refresh sequence numbers.
	issued  uint64
	applied uint64
	cancel  context.CancelFunc
	closed  bool

	wg sync.WaitGroup
}

// NewTracker creates a tracker. A non-positive interval uses the 30s default.
func NewTracker(loc LocationSource, interval time.Duration, logger *zap.Logger) *Tracker {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		location: loc,
		interval: interval,
		logger:   logger,
		hub:      broadcast.NewHub[View](),
		now:      time.Now,
		intn:     rand.IntN,
	}
}

// WithMetrics sets the refresh recorder.
func (t *Tracker) WithMetrics(m MetricsRecorder) *Tracker {
	t.metrics = m
	return t
}

// Start opens a new session, replacing any active one, and starts the
// refresh loop.
func (t *Tracker) Start(ctx context.Context, req StartRequest) (View, error) {
	ctx, span := tracer.Start(ctx, "tracking.Start")
	defer span.End()

	var sample location.Sample
	if req.Location != nil {
		sample = *req.Location
		if !validCoordinates(sample) {
			return View{}, ErrInvalidLocation
		}
	} else {
		s, err := t.location.CurrentLocation(ctx)
		if err != nil {
			span.RecordError(err)
			t.logger.Error("Error initializing tracking", zap.Error(err))
			return View{}, fmt.Errorf("initial location: %w", err)
		}
		sample = s
	}

	severity := strings.TrimSpace(req.Severity)
	if severity == "" {
		severity = DefaultSeverity
	}
	now := t.now()
	if sample.Timestamp.IsZero() {
		sample.Timestamp = now
	}
	session := &EmergencySession{
		ID:         fmt.Sprintf("EMG-%d", now.UnixMilli()),
		Timestamp:  now,
		Location:   sample,
		Severity:   severity,
		Status:     StatusAmbulanceAssigned,
		ETAMinutes: minETA + t.intn(maxETA-minETA+1),
		Patient:    copyProfile(req.Patient),
	}
	span.SetAttributes(attribute.String("emergency.id", session.ID), attribute.String("emergency.severity", severity))

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return View{}, ErrClosed
	}
	t.stopLocked()
	t.generation++
	gen := t.generation
	t.active = session
	current := sample
	t.current = &current
	t.updated = now
	loopCtx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.wg.Add(1)
	view := t.publishLocked()
	t.mu.Unlock()

	go t.loop(loopCtx, gen)
	t.logger.Info("Emergency tracking started",
		zap.String("emergency_id", session.ID),
		zap.String("severity", severity),
		zap.Int("eta_minutes", session.ETAMinutes))
	return view, nil
}

// Refresh fetches the location now. The result is applied only if no newer
// refresh has been applied and the session is still active.
func (t *Tracker) Refresh(ctx context.Context) (View, error) {
	t.mu.Lock()
	if t.active == nil {
		t.mu.Unlock()
		return View{}, ErrNoActiveSession
	}
	gen := t.generation
	t.mu.Unlock()

	if err := t.refresh(ctx, gen); err != nil {
		return View{}, err
	}
	return t.Current(), nil
}

// Current returns the tracker view.
func (t *Tracker) Current() View {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.viewLocked()
}

// Stop ends the active session. Stopping with no session is a no-op.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active == nil {
		return
	}
	id := t.active.ID
	t.stopLocked()
	t.generation++
	t.publishLocked()
	t.logger.Info("Emergency tracking stopped", zap.String("emergency_id", id))
}

// Subscribe returns a latest-wins subscription to view changes.
func (t *Tracker) Subscribe() *broadcast.Subscription[View] {
	return t.hub.Subscribe()
}

// ShareText returns the message a patient sends to family.
func (t *Tracker) ShareText() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active == nil {
		return "", ErrNoActiveSession
	}
	s := t.active.Location
	if t.current != nil {
		s = *t.current
	}
	return fmt.Sprintf("Emergency Location: %s\nGPS: %.6f, %.6f", s.Address, s.Latitude, s.Longitude), nil
}

// Close stops the session, waits for the refresh loop and closes all
// subscriptions.
func (t *Tracker) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.stopLocked()
	t.generation++
	t.mu.Unlock()

	t.wg.Wait()
	t.hub.Close()
}

func (t *Tracker) loop(ctx context.Context, gen uint64) {
	defer t.wg.Done()
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := t.refresh(ctx, gen); err != nil && ctx.Err() == nil {
				t.logger.Warn("Location update error", zap.Error(err))
			}
		}
	}
}

func (t *Tracker) refresh(ctx context.Context, gen uint64) error {
	t.mu.Lock()
	t.issued++
	seq := t.issued
	t.mu.Unlock()

	sample, err := t.location.CurrentLocation(ctx)
	if err != nil {
		return err
	}

	t.mu.Lock()
	applied := gen == t.generation && t.active != nil && seq > t.applied
	if applied {
		t.applied = seq
		t.current = &sample
		t.updated = t.now()
		t.publishLocked()
	}
	t.mu.Unlock()

	if !applied {
		t.logger.Debug("Discarding stale location refresh", zap.Uint64("seq", seq))
	}
	if t.metrics != nil {
		t.metrics.RecordTrackingRefresh(ctx, applied)
	}
	return nil
}

// stopLocked cancels the refresh loop and drops the session. t.mu must be held.
func (t *Tracker) stopLocked() {
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	t.active = nil
	t.current = nil
	t.updated = time.Time{}
}

func (t *Tracker) publishLocked() View {
	t.version++
	v := t.viewLocked()
	t.hub.Publish(v)
	return v
}

func (t *Tracker) viewLocked() View {
	v := View{Active: t.active != nil, Version: t.version}
	if t.active != nil {
		s := *t.active
		s.Patient = copyProfile(s.Patient)
		v.Session = &s
	}
	if t.current != nil {
		c := *t.current
		v.Current = &c
	}
	if !t.updated.IsZero() {
		u := t.updated
		v.UpdatedAt = &u
	}
	return v
}

func copyProfile(p *profile.Profile) *profile.Profile {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

func validCoordinates(s location.Sample) bool {
	return s.Latitude >= -90 && s.Latitude <= 90 && s.Longitude >= -180 && s.Longitude <= 180
}
