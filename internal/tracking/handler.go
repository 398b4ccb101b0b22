package tracking

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/Jayavarshini-Srinivasan/RapidAid-Dashboard/patient-service/internal/broadcast"
	"github.com/Jayavarshini-Srinivasan/RapidAid-Dashboard/patient-service/internal/location"
	"github.com/Jayavarshini-Srinivasan/RapidAid-Dashboard/patient-service/internal/profile"
)

// PatientSource returns the signed-in patient's profile, or nil.
type PatientSource interface {
	CurrentPatient() *profile.Profile
}

// Handler exposes the tracker over HTTP.
type Handler struct {
	tracker  *Tracker
	patients PatientSource
	logger   *zap.Logger
}

func NewHandler(t *Tracker, patients PatientSource, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{tracker: t, patients: patients, logger: logger}
}

// Start handles POST /tracking. The body is optional.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON payload: "+err.Error())
		return
	}
	if h.patients != nil {
		req.Patient = h.patients.CurrentPatient()
	}

	view, err := h.tracker.Start(r.Context(), req)
	if err != nil {
		h.respondTrackingError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, view)
}

// Get handles GET /tracking
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	view := h.tracker.Current()
	if !view.Active {
		respondError(w, http.StatusNotFound, "no_active_session", ErrNoActiveSession.Error())
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// Stop handles DELETE /tracking
func (h *Handler) Stop(w http.ResponseWriter, r *http.Request) {
	h.tracker.Stop()
	w.WriteHeader(http.StatusNoContent)
}

// Refresh handles POST /tracking/refresh
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	view, err := h.tracker.Refresh(r.Context())
	if err != nil {
		h.respondTrackingError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// Share handles GET /tracking/share
func (h *Handler) Share(w http.ResponseWriter, r *http.Request) {
	text, err := h.tracker.ShareText()
	if err != nil {
		h.respondTrackingError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"text": text})
}

// Stream handles GET /tracking/stream (WebSocket).
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	sub := h.tracker.Subscribe()
	broadcast.Stream(w, r, sub, h.tracker.Current(), h.logger)
}

func (h *Handler) respondTrackingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNoActiveSession):
		respondError(w, http.StatusNotFound, "no_active_session", err.Error())
	case errors.Is(err, ErrInvalidLocation):
		respondError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, location.ErrPermissionDenied):
		respondError(w, http.StatusForbidden, "permission_denied", err.Error())
	case errors.Is(err, location.ErrNoFix):
		respondError(w, http.StatusServiceUnavailable, "no_fix", err.Error())
	case errors.Is(err, ErrClosed):
		respondError(w, http.StatusServiceUnavailable, "shutting_down", err.Error())
	default:
		h.logger.Error("Tracking request failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
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
