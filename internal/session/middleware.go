package session

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Jayavarshini-Srinivasan/RapidAid-Dashboard/patient-service/internal/identity"
)

// AuthMetricsRecorder records rejected requests.
type AuthMetricsRecorder interface {
	RecordAuthFailure(ctx context.Context, reason string)
}

// RequireAuthenticated rejects requests while no patient is signed in and
// stores the signed-in user in the request context (identity.WithUser).
func RequireAuthenticated(m *Manager, metrics AuthMetricsRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := tracer.Start(r.Context(), "session.RequireAuthenticated",
				trace.WithSpanKind(trace.SpanKindInternal),
			)
			defer span.End()

			snap := m.Snapshot()
			if !snap.Authenticated() {
				reason := "unauthenticated"
				if snap.State == StateLoading {
					reason = "session_loading"
				}
				span.SetStatus(codes.Error, reason)
				span.SetAttributes(attribute.String("error.type", reason))
				if metrics != nil {
					metrics.RecordAuthFailure(ctx, reason)
				}
				respondError(w, http.StatusUnauthorized, reason, ErrNotAuthenticated.Error())
				return
			}

			span.SetAttributes(
				attribute.String("user.id", snap.User.UID),
				attribute.String("user.email", snap.User.Email),
			)
			ctx = identity.WithUser(ctx, snap.User)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
