package location

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body
}

func TestGetCurrentLocation(t *testing.T) {
	d := newScriptedDevice()
	d.fix = Fix{Latitude: 10, Longitude: 20}
	p := newTestProvider(d, StaticGeocoder{Address: &Address{Street: "1 Dock Rd", City: "Harbor", Region: "Coast"}})
	h := NewHandler(p, nil)

	rr := httptest.NewRecorder()
	h.GetCurrentLocation(rr, httptest.NewRequest(http.MethodGet, "/location/current", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	var s Sample
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &s))
	assert.Equal(t, "1 Dock Rd Harbor, Coast", s.Address)
	assert.Equal(t, 10.0, s.Latitude)
}

func TestGetCurrentLocation_Errors(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(d *scriptedDevice)
		wantStatus int
		wantError  string
	}{
		{"permission denied", func(d *scriptedDevice) { d.permission = PermissionDenied }, http.StatusForbidden, "permission_denied"},
		{"no fix", func(d *scriptedDevice) { d.fixErr = ErrNoFix }, http.StatusServiceUnavailable, "no_fix"},
		{"device failure", func(d *scriptedDevice) { d.fixErr = errors.New("hardware fault") }, http.StatusInternalServerError, "location_failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newScriptedDevice()
			tt.setup(d)
			h := NewHandler(newTestProvider(d, nil), nil)

			rr := httptest.NewRecorder()
			h.GetCurrentLocation(rr, httptest.NewRequest(http.MethodGet, "/location/current", nil))

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, tt.wantError, decodeBody(t, rr)["error"])
		})
	}
}

func TestSetPermission(t *testing.T) {
	push := NewPushDevice(PermissionUndetermined, 0)
	h := NewHandler(NewProvider(push, nil, nil), push)

	rr := httptest.NewRecorder()
	h.SetPermission(rr, httptest.NewRequest(http.MethodPost, "/location/permission", strings.NewReader(`{"status":"granted"}`)))
	assert.Equal(t, http.StatusOK, rr.Code)

	status, _ := push.RequestPermission(context.Background())
	assert.Equal(t, PermissionGranted, status)

	rr = httptest.NewRecorder()
	h.SetPermission(rr, httptest.NewRequest(http.MethodPost, "/location/permission", strings.NewReader(`{"status":"maybe"}`)))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "validation_error", decodeBody(t, rr)["error"])

	rr = httptest.NewRecorder()
	h.SetPermission(rr, httptest.NewRequest(http.MethodPost, "/location/permission", strings.NewReader(`{`)))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "invalid_request", decodeBody(t, rr)["error"])
}

func TestPushFix(t *testing.T) {
	push := NewPushDevice(PermissionGranted, 0)
	h := NewHandler(NewProvider(push, nil, nil), push)

	rr := httptest.NewRecorder()
	h.PushFix(rr, httptest.NewRequest(http.MethodPost, "/location/fix", strings.NewReader(`{"latitude":12.5,"longitude":-3.25}`)))
	assert.Equal(t, http.StatusAccepted, rr.Code)

	fix, err := push.CurrentFix(context.Background(), AccuracyHigh)
	require.NoError(t, err)
	assert.Equal(t, 12.5, fix.Latitude)
	assert.Equal(t, -3.25, fix.Longitude)
	assert.False(t, fix.Timestamp.IsZero())

	rr = httptest.NewRecorder()
	h.PushFix(rr, httptest.NewRequest(http.MethodPost, "/location/fix", strings.NewReader(`{"latitude":95,"longitude":0}`)))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPushEndpoints_WithoutPushDevice(t *testing.T) {
	h := NewHandler(newTestProvider(newScriptedDevice(), nil), nil)

	rr := httptest.NewRecorder()
	h.PushFix(rr, httptest.NewRequest(http.MethodPost, "/location/fix", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = httptest.NewRecorder()
	h.SetPermission(rr, httptest.NewRequest(http.MethodPost, "/location/permission", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "not_supported", decodeBody(t, rr)["error"])
}

func TestGetDistance(t *testing.T) {
	h := NewHandler(newTestProvider(newScriptedDevice(), nil), nil)

	rr := httptest.NewRecorder()
	h.GetDistance(rr, httptest.NewRequest(http.MethodGet, "/location/distance?lat1=51.5074&lon1=-0.1278&lat2=48.8566&lon2=2.3522", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	meters := decodeBody(t, rr)["meters"].(float64)
	assert.InDelta(t, 343000, meters, 343000*0.05)

	rr = httptest.NewRecorder()
	h.GetDistance(rr, httptest.NewRequest(http.MethodGet, "/location/distance?lat1=1&lon1=2", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, decodeBody(t, rr)["message"], "lat2")
}
