package location

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Jayavarshini-Srinivasan/RapidAid-Dashboard/patient-service/internal/broadcast"
)

// Handler exposes the provider and, when present, the push device to the
// UI shell.
type Handler struct {
	provider *Provider
	push     *PushDevice
	logger   *zap.Logger

	mu    sync.Mutex
	watch *activeWatch
}

// activeWatch is the single live /location/watch stream.
type activeWatch struct {
	sub *Subscription
	hub *broadcast.Hub[Sample]
}

func (a *activeWatch) stop() {
	a.sub.Stop()
	a.hub.Close()
}

// NewHandler creates a handler. push may be nil when the configured device
// is not shell-driven.
func NewHandler(provider *Provider, push *PushDevice) *Handler {
	return &Handler{provider: provider, push: push, logger: zap.NewNop()}
}

// WithLogger sets the logger used by the watch stream.
func (h *Handler) WithLogger(logger *zap.Logger) *Handler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

type permissionRequest struct {
	Status PermissionStatus `json:"status"`
}

// GetCurrentLocation handles GET /location/current
func (h *Handler) GetCurrentLocation(w http.ResponseWriter, r *http.Request) {
	sample, err := h.provider.CurrentLocation(r.Context())
	if err != nil {
		respondLocationError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sample)
}

// SetPermission handles POST /location/permission
func (h *Handler) SetPermission(w http.ResponseWriter, r *http.Request) {
	if h.push == nil {
		respondError(w, http.StatusConflict, "not_supported", ErrNotSupported.Error())
		return
	}
	var req permissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON payload: "+err.Error())
		return
	}
	switch req.Status {
	case PermissionGranted, PermissionDenied, PermissionUndetermined:
	default:
		respondError(w, http.StatusBadRequest, "validation_error", "status must be granted, denied or undetermined")
		return
	}
	h.push.SetPermission(req.Status)
	respondJSON(w, http.StatusOK, req)
}

// PushFix handles POST /location/fix
func (h *Handler) PushFix(w http.ResponseWriter, r *http.Request) {
	if h.push == nil {
		respondError(w, http.StatusConflict, "not_supported", ErrNotSupported.Error())
		return
	}
	var fix Fix
	if err := json.NewDecoder(r.Body).Decode(&fix); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON payload: "+err.Error())
		return
	}
	if fix.Latitude < -90 || fix.Latitude > 90 || fix.Longitude < -180 || fix.Longitude > 180 {
		respondError(w, http.StatusBadRequest, "validation_error", "coordinates out of range")
		return
	}
	h.push.Push(fix)
	w.WriteHeader(http.StatusAccepted)
}

// GetDistance handles GET /location/distance?lat1=&lon1=&lat2=&lon2=
func (h *Handler) GetDistance(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var coords [4]float64
	for i, key := range []string{"lat1", "lon1", "lat2", "lon2"} {
		v, err := strconv.ParseFloat(q.Get(key), 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "validation_error", "invalid or missing "+key)
			return
		}
		coords[i] = v
	}
	respondJSON(w, http.StatusOK, map[string]float64{
		"meters": DistanceBetween(coords[0], coords[1], coords[2], coords[3]),
	})
}

// Watch handles GET /location/watch?interval=&distance= (WebSocket). It
// streams filtered, geocoded samples. Only one watch is active: a new
// connection stops the previous one, which is then closed.
func (h *Handler) Watch(w http.ResponseWriter, r *http.Request) {
	opts, err := watchOptions(r.URL.Query())
	if err != nil {
		respondError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	hub := broadcast.NewHub[Sample]()
	samples := hub.Subscribe()
	sub, err := h.provider.Watch(r.Context(), hub.Publish, opts)
	if err != nil {
		samples.Close()
		respondLocationError(w, err)
		return
	}

	active := &activeWatch{sub: sub, hub: hub}
	h.replaceWatch(active)
	defer h.releaseWatch(active)

	broadcast.Follow(w, r, samples, h.logger)
}

func (h *Handler) replaceWatch(active *activeWatch) {
	h.mu.Lock()
	prev := h.watch
	h.watch = active
	h.mu.Unlock()
	if prev != nil {
		h.logger.Debug("Replacing location watch")
		prev.stop()
	}
}

func (h *Handler) releaseWatch(active *activeWatch) {
	h.mu.Lock()
	if h.watch == active {
		h.watch = nil
	}
	h.mu.Unlock()
	active.stop()
}

// Watching reports whether a watch stream is live.
func (h *Handler) Watching() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.watch != nil
}

func watchOptions(q url.Values) (WatchOptions, error) {
	opts := WatchOptions{Accuracy: AccuracyHigh}
	if v := q.Get("interval"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return opts, errors.New("interval must be a non-negative duration such as 10s")
		}
		opts.MinInterval = d
	}
	if v := q.Get("distance"); v != "" {
		m, err := strconv.ParseFloat(v, 64)
		if err != nil || m < 0 {
			return opts, errors.New("distance must be a non-negative number of meters")
		}
		opts.MinDistance = m
	}
	return opts, nil
}

func respondLocationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		respondError(w, http.StatusForbidden, "permission_denied", err.Error())
	case errors.Is(err, ErrNoFix):
		respondError(w, http.StatusServiceUnavailable, "no_fix", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "location_failed", err.Error())
	}
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, statusCode int, errorType, message string) {
	respondJSON(w, statusCode, map[string]interface{}{
		"error":   errorType,
		"message": message,
	})
}
