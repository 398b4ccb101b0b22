package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jayavarshini-Srinivasan/RapidAid-Dashboard/patient-service/internal/identity"
)

type recordingAuthMetrics struct {
	reasons []string
}

func (r *recordingAuthMetrics) RecordAuthFailure(ctx context.Context, reason string) {
	r.reasons = append(r.reasons, reason)
}

func TestRequireAuthenticated(t *testing.T) {
	e := newEnv(t, true)
	metrics := &recordingAuthMetrics{}

	var seen *identity.User
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = identity.UserFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	handler := RequireAuthenticated(e.manager, metrics)(next)

	serve := func() *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/profile", nil))
		return rr
	}

	rr := serve()
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "session_loading", decodeError(t, rr))

	e.start(t)
	rr = serve()
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "unauthenticated", decodeError(t, rr))
	assert.Nil(t, seen)

	_, err := e.manager.Login(context.Background(), anaEmail, anaPassword)
	require.NoError(t, err)
	rr = serve()
	assert.Equal(t, http.StatusNoContent, rr.Code)
	require.NotNil(t, seen)
	assert.Equal(t, "uid-ana", seen.UID)

	assert.Equal(t, []string{"session_loading", "unauthenticated"}, metrics.reasons)
}
