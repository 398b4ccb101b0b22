package tracking

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jayavarshini-Srinivasan/RapidAid-Dashboard/patient-service/internal/location"
	"github.com/Jayavarshini-Srinivasan/RapidAid-Dashboard/patient-service/internal/profile"
)

type mockLocation struct {
	fn    func(ctx context.Context) (location.Sample, error)
	calls int32
}

func (m *mockLocation) CurrentLocation(ctx context.Context) (location.Sample, error) {
	atomic.AddInt32(&m.calls, 1)
	return m.fn(ctx)
}

func fixedLocation(lat, lon float64, address string) *mockLocation {
	return &mockLocation{fn: func(ctx context.Context) (location.Sample, error) {
		return location.Sample{Latitude: lat, Longitude: lon, Address: address, Timestamp: time.Now()}, nil
	}}
}

type recordingMetrics struct {
	mu      sync.Mutex
	applied []bool
}

func (r *recordingMetrics) RecordTrackingRefresh(ctx context.Context, applied bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applied = append(r.applied, applied)
}

func (r *recordingMetrics) snapshot() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.applied...)
}

func newTestTracker(t *testing.T, loc LocationSource, interval time.Duration) *Tracker {
	t.Helper()
	tr := NewTracker(loc, interval, nil)
	t.Cleanup(tr.Close)
	return tr
}

func TestTracker_StartFetchesLocation(t *testing.T) {
	loc := fixedLocation(40.7128, -74.006, "1 Main St New York, NY")
	tr := newTestTracker(t, loc, time.Hour)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return now }
	tr.intn = func(n int) int {
		assert.Equal(t, 10, n)
		return 4
	}

	view, err := tr.Start(context.Background(), StartRequest{Patient: &profile.Profile{ID: "p1", Name: "Ana"}})
	require.NoError(t, err)

	require.True(t, view.Active)
	s := view.Session
	assert.Equal(t, "EMG-1740830400000", s.ID)
	assert.Equal(t, now, s.Timestamp)
	assert.Equal(t, DefaultSeverity, s.Severity)
	assert.Equal(t, StatusAmbulanceAssigned, s.Status)
	assert.Equal(t, 7, s.ETAMinutes)
	assert.Equal(t, "1 Main St New York, NY", s.Location.Address)
	assert.Equal(t, "Ana", s.Patient.Name)
	require.NotNil(t, view.Current)
	assert.Equal(t, 40.7128, view.Current.Latitude)
	assert.Equal(t, int32(1), loc.calls)
}

func TestTracker_StartUsesProvidedLocation(t *testing.T) {
	loc := fixedLocation(0, 0, "")
	tr := newTestTracker(t, loc, time.Hour)

	view, err := tr.Start(context.Background(), StartRequest{
		Location: &location.Sample{Latitude: 51.5, Longitude: -0.12, Address: "Strand London"},
		Severity: " critical ",
	})
	require.NoError(t, err)
	assert.Equal(t, "critical", view.Session.Severity)
	assert.Equal(t, 51.5, view.Session.Location.Latitude)
	assert.False(t, view.Session.Location.Timestamp.IsZero())
	assert.Equal(t, int32(0), loc.calls)

	_, err = tr.Start(context.Background(), StartRequest{Location: &location.Sample{Latitude: 91}})
	assert.ErrorIs(t, err, ErrInvalidLocation)
}

func TestTracker_StartLocationError(t *testing.T) {
	loc := &mockLocation{fn: func(ctx context.Context) (location.Sample, error) {
		return location.Sample{}, location.ErrPermissionDenied
	}}
	tr := newTestTracker(t, loc, time.Hour)

	_, err := tr.Start(context.Background(), StartRequest{})
	assert.ErrorIs(t, err, location.ErrPermissionDenied)
	assert.False(t, tr.Current().Active)
}

func TestTracker_ETAWithinRange(t *testing.T) {
	tr := newTestTracker(t, fixedLocation(1, 1, "x"), time.Hour)
	seen := map[int]bool{}
	for i := 0; i < 500; i++ {
		view, err := tr.Start(context.Background(), StartRequest{})
		require.NoError(t, err)
		eta := view.Session.ETAMinutes
		require.GreaterOrEqual(t, eta, 3)
		require.LessOrEqual(t, eta, 12)
		seen[eta] = true
	}
	assert.Len(t, seen, 10, "every minute in [3,12] is reachable")
}

func TestTracker_StartReplacesActiveSession(t *testing.T) {
	tr := newTestTracker(t, fixedLocation(1, 1, "x"), time.Hour)
	tick := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	tr.now = func() time.Time {
		tick = tick.Add(time.Millisecond)
		return tick
	}

	first, err := tr.Start(context.Background(), StartRequest{})
	require.NoError(t, err)
	second, err := tr.Start(context.Background(), StartRequest{Severity: "critical"})
	require.NoError(t, err)

	assert.NotEqual(t, first.Session.ID, second.Session.ID)
	current := tr.Current()
	assert.Equal(t, second.Session.ID, current.Session.ID)
	assert.Greater(t, current.Version, first.Version)
}

func TestTracker_RefreshLoop(t *testing.T) {
	var n int64
	loc := &mockLocation{fn: func(ctx context.Context) (location.Sample, error) {
		v := atomic.AddInt64(&n, 1)
		return location.Sample{Latitude: float64(v), Address: "moving"}, nil
	}}
	metrics := &recordingMetrics{}
	tr := newTestTracker(t, loc, 10*time.Millisecond).WithMetrics(metrics)

	_, err := tr.Start(context.Background(), StartRequest{Location: &location.Sample{Latitude: 0}})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		c := tr.Current().Current
		return c != nil && c.Latitude >= 3
	}, 2*time.Second, 5*time.Millisecond)
	assert.NotEmpty(t, metrics.snapshot())
}

func TestTracker_RefreshErrorKeepsLastLocation(t *testing.T) {
	fail := atomic.Bool{}
	loc := &mockLocation{fn: func(ctx context.Context) (location.Sample, error) {
		if fail.Load() {
			return location.Sample{}, location.ErrNoFix
		}
		return location.Sample{Latitude: 5, Address: "here"}, nil
	}}
	tr := newTestTracker(t, loc, time.Hour)
	_, err := tr.Start(context.Background(), StartRequest{})
	require.NoError(t, err)

	fail.Store(true)
	_, err = tr.Refresh(context.Background())
	assert.ErrorIs(t, err, location.ErrNoFix)
	assert.Equal(t, 5.0, tr.Current().Current.Latitude)
}

func TestTracker_DiscardsOutOfOrderRefresh(t *testing.T) {
	release := make(chan struct{})
	var n int32
	loc := &mockLocation{fn: func(ctx context.Context) (location.Sample, error) {
		if atomic.AddInt32(&n, 1) == 1 {
			<-release
			return location.Sample{Latitude: 1, Address: "slow"}, nil
		}
		return location.Sample{Latitude: 2, Address: "fast"}, nil
	}}
	metrics := &recordingMetrics{}
	tr := newTestTracker(t, loc, time.Hour).WithMetrics(metrics)
	_, err := tr.Start(context.Background(), StartRequest{Location: &location.Sample{Latitude: 0}})
	require.NoError(t, err)

	slow := make(chan error, 1)
	go func() {
		_, err := tr.Refresh(context.Background())
		slow <- err
	}()
	require.Eventually(t, func() bool { return atomic.LoadInt32(&n) == 1 }, time.Second, time.Millisecond)

	view, err := tr.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fast", view.Current.Address)

	close(release)
	require.NoError(t, <-slow)
	assert.Equal(t, "fast", tr.Current().Current.Address, "older refresh does not overwrite a newer one")
	assert.Equal(t, []bool{true, false}, metrics.snapshot())
}

func TestTracker_DiscardsRefreshForReplacedSession(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	loc := &mockLocation{fn: func(ctx context.Context) (location.Sample, error) {
		close(started)
		<-release
		return location.Sample{Latitude: 9, Address: "stale"}, nil
	}}
	tr := newTestTracker(t, loc, time.Hour)
	_, err := tr.Start(context.Background(), StartRequest{Location: &location.Sample{Latitude: 1, Address: "first"}})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		tr.Refresh(context.Background())
	}()
	<-started

	second, err := tr.Start(context.Background(), StartRequest{Location: &location.Sample{Latitude: 2, Address: "second"}})
	require.NoError(t, err)
	close(release)
	<-done

	current := tr.Current()
	assert.Equal(t, second.Session.ID, current.Session.ID)
	assert.Equal(t, "second", current.Current.Address)
}

func TestTracker_StopIsIdempotent(t *testing.T) {
	tr := newTestTracker(t, fixedLocation(1, 1, "x"), time.Hour)
	tr.Stop()
	assert.False(t, tr.Current().Active)

	_, err := tr.Start(context.Background(), StartRequest{})
	require.NoError(t, err)
	tr.Stop()
	version := tr.Current().Version
	tr.Stop()

	view := tr.Current()
	assert.False(t, view.Active)
	assert.Nil(t, view.Session)
	assert.Nil(t, view.Current)
	assert.Equal(t, version, view.Version)

	_, err = tr.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrNoActiveSession)
}

func TestTracker_ShareText(t *testing.T) {
	tr := newTestTracker(t, fixedLocation(40.7128, -74.006, "1 Main St New York, NY"), time.Hour)

	_, err := tr.ShareText()
	assert.ErrorIs(t, err, ErrNoActiveSession)

	_, err = tr.Start(context.Background(), StartRequest{})
	require.NoError(t, err)
	text, err := tr.ShareText()
	require.NoError(t, err)
	assert.Equal(t, "Emergency Location: 1 Main St New York, NY\nGPS: 40.712800, -74.006000", text)
}

func TestTracker_Subscribe(t *testing.T) {
	tr := newTestTracker(t, fixedLocation(1, 1, "x"), time.Hour)
	sub := tr.Subscribe()
	defer sub.Close()

	_, err := tr.Start(context.Background(), StartRequest{})
	require.NoError(t, err)

	select {
	case v := <-sub.C:
		assert.True(t, v.Active)
	case <-time.After(time.Second):
		t.Fatal("no view published")
	}
}

func TestTracker_Close(t *testing.T) {
	tr := NewTracker(fixedLocation(1, 1, "x"), 5*time.Millisecond, nil)
	sub := tr.Subscribe()
	_, err := tr.Start(context.Background(), StartRequest{})
	require.NoError(t, err)

	tr.Close()
	tr.Close()

	for range sub.C {
	}
	_, err = tr.Start(context.Background(), StartRequest{})
	assert.True(t, errors.Is(err, ErrClosed))
}
