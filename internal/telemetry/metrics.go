package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/Jayavarshini-Srinivasan/RapidAid-Dashboard/patient-service"

// Metrics holds the service's instruments. A *Metrics satisfies the
// recorder interfaces of the location, profile, session, tracking and http
// packages.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal metric.Int64Counter
	HTTPDurationMs    metric.Float64Histogram

	// Domain metrics
	AuthFailuresTotal   metric.Int64Counter
	LoginsTotal         metric.Int64Counter
	RegistrationsTotal  metric.Int64Counter
	ProfileOpsTotal     metric.Int64Counter
	ProfileOpDurationMs metric.Float64Histogram
	LocationFixesTotal  metric.Int64Counter
	TrackingRefreshes   metric.Int64Counter
}

// InitMetrics creates the instruments on the global meter provider.
func InitMetrics() (*Metrics, error) {
	return NewMetrics(otel.GetMeterProvider())
}

// NewMetrics creates the instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(meterName)
	m := &Metrics{}

	counters := []struct {
		dst        *metric.Int64Counter
		name, desc string
		unit       string
	}{
		{&m.HTTPRequestsTotal, "http_server_requests_total", "Total number of HTTP requests", "{request}"},
		{&m.AuthFailuresTotal, "auth_failures_total", "Requests rejected for lack of a signed-in session", "{failure}"},
		{&m.LoginsTotal, "session_logins_total", "Login attempts by outcome", "{attempt}"},
		{&m.RegistrationsTotal, "session_registrations_total", "Registrations by partial-failure outcome", "{registration}"},
		{&m.ProfileOpsTotal, "profile_operations_total", "Profile store operations", "{operation}"},
		{&m.LocationFixesTotal, "location_fixes_total", "Location fixes requested from the device", "{fix}"},
		{&m.TrackingRefreshes, "tracking_refreshes_total", "Emergency location refreshes by outcome", "{refresh}"},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit(c.unit))
		if err != nil {
			return nil, err
		}
		*c.dst = counter
	}

	var err error
	m.HTTPDurationMs, err = meter.Float64Histogram(
		"http_server_duration_milliseconds",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}
	m.ProfileOpDurationMs, err = meter.Float64Histogram(
		"profile_operation_duration_milliseconds",
		metric.WithDescription("Profile store operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// RecordHTTPRequest records an HTTP request metric
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, route string, statusCode int, durationMs float64) {
	attrs := metric.WithAttributes(
		attribute.String("http_method", method),
		attribute.String("http_route", route),
		attribute.Int("http_status_code", statusCode),
	)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)
	m.HTTPDurationMs.Record(ctx, durationMs, attrs)
}

// RecordAuthFailure records a request rejected by the session gate.
func (m *Metrics) RecordAuthFailure(ctx context.Context, reason string) {
	m.AuthFailuresTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *Metrics) RecordLogin(ctx context.Context, outcome string) {
	m.LoginsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *Metrics) RecordRegistration(ctx context.Context, profileStored, backendNotified bool) {
	m.RegistrationsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("profile_stored", profileStored),
		attribute.Bool("backend_notified", backendNotified),
	))
}

func (m *Metrics) RecordProfileOperation(ctx context.Context, op string, ok bool, durationMs float64) {
	attrs := metric.WithAttributes(
		attribute.String("operation", op),
		attribute.Bool("ok", ok),
	)
	m.ProfileOpsTotal.Add(ctx, 1, attrs)
	m.ProfileOpDurationMs.Record(ctx, durationMs, attrs)
}

func (m *Metrics) RecordLocationFix(ctx context.Context, kind string, ok bool) {
	m.LocationFixesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.Bool("ok", ok),
	))
}

// RecordTrackingRefresh records one refresh; applied is false when the
// result was discarded as stale.
func (m *Metrics) RecordTrackingRefresh(ctx context.Context, applied bool) {
	m.TrackingRefreshes.Add(ctx, 1, metric.WithAttributes(attribute.Bool("applied", applied)))
}
