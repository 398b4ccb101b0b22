package profile

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Jayavarshini-Srinivasan/RapidAid-Dashboard/patient-service/internal/identity"
	"github.com/Jayavarshini-Srinivasan/RapidAid-Dashboard/patient-service/internal/location"
)

// LocationSource supplies the device location for PUT /profile/location.
type LocationSource interface {
	CurrentLocation(ctx context.Context) (location.Sample, error)
}

// Observer is told about every profile the handler writes, so that cached
// copies (the session snapshot) stay current.
type Observer interface {
	ProfileChanged(p *Profile)
}

// Handler serves the signed-in patient's profile. Routes must sit behind a
// middleware that stores the user with identity.WithUser.
type Handler struct {
	client   *Client
	location LocationSource
	observer Observer
}

func NewHandler(client *Client, loc LocationSource) *Handler {
	return &Handler{client: client, location: loc}
}

// WithObserver sets the profile change observer.
func (h *Handler) WithObserver(o Observer) *Handler {
	h.observer = o
	return h
}

// GetProfile handles GET /profile
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	p, err := h.client.GetProfile(r.Context(), user.UID)
	if err != nil {
		respondProfileError(w, err)
		return
	}
	if p == nil {
		respondError(w, http.StatusNotFound, "profile_not_found", "no profile for the signed-in user")
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// UpdateProfile handles PUT /profile
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req Update
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON payload: "+err.Error())
		return
	}
	if req.IsEmpty() {
		respondError(w, http.StatusBadRequest, "validation_error", ErrEmptyUpdate.Error())
		return
	}

	p, err := h.client.UpdateProfile(r.Context(), user.UID, req)
	if err != nil {
		respondProfileError(w, err)
		return
	}
	h.changed(p)
	respondJSON(w, http.StatusOK, p)
}

// AddMedicalData handles PUT /profile/medical
func (h *Handler) AddMedicalData(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req MedicalData
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON payload: "+err.Error())
		return
	}

	if err := h.client.AddMedicalData(r.Context(), user.UID, req); err != nil {
		respondProfileError(w, err)
		return
	}
	h.refetch(w, r, user.UID)
}

// UpdateLocation handles PUT /profile/location. It reads the current
// device location and stores it on the profile.
func (h *Handler) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	if h.location == nil {
		respondError(w, http.StatusConflict, "not_supported", "no location source configured")
		return
	}

	sample, err := h.location.CurrentLocation(r.Context())
	if err != nil {
		respondProfileError(w, err)
		return
	}
	if err := h.client.UpdateLocation(r.Context(), user.UID, sample); err != nil {
		respondProfileError(w, err)
		return
	}
	h.refetch(w, r, user.UID)
}

// Diagnose handles GET /profile/diagnostics
func (h *Handler) Diagnose(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	d, err := h.client.Diagnose(r.Context(), user.UID)
	if err != nil {
		respondProfileError(w, err)
		return
	}
	if d == nil {
		respondError(w, http.StatusServiceUnavailable, "diagnostics_unavailable", "probe document was not readable after write")
		return
	}
	respondJSON(w, http.StatusOK, d)
}

func (h *Handler) refetch(w http.ResponseWriter, r *http.Request, id string) {
	p, err := h.client.GetProfile(r.Context(), id)
	if err != nil {
		respondProfileError(w, err)
		return
	}
	if p == nil {
		respondError(w, http.StatusNotFound, "profile_not_found", "no profile for the signed-in user")
		return
	}
	h.changed(p)
	respondJSON(w, http.StatusOK, p)
}

func (h *Handler) changed(p *Profile) {
	if h.observer != nil && p != nil {
		h.observer.ProfileChanged(p)
	}
}

func requireUser(w http.ResponseWriter, r *http.Request) (*identity.User, bool) {
	user, ok := identity.UserFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthenticated", identity.ErrNotSignedIn.Error())
		return nil, false
	}
	return user, true
}

func respondProfileError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		respondError(w, http.StatusNotFound, "profile_not_found", err.Error())
	case errors.Is(err, ErrMissingID):
		respondError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, location.ErrPermissionDenied):
		respondError(w, http.StatusForbidden, "permission_denied", err.Error())
	case errors.Is(err, location.ErrNoFix):
		respondError(w, http.StatusServiceUnavailable, "no_fix", err.Error())
	default:
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
