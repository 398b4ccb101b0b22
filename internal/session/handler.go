package session

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/Jayavarshini-Srinivasan/RapidAid-Dashboard/patient-service/internal/broadcast"
	"github.com/Jayavarshini-Srinivasan/RapidAid-Dashboard/patient-service/internal/identity"
	"github.com/Jayavarshini-Srinivasan/RapidAid-Dashboard/patient-service/internal/location"
	"github.com/Jayavarshini-Srinivasan/RapidAid-Dashboard/patient-service/internal/profile"
)

// Handler exposes the Manager over HTTP.
type Handler struct {
	manager *Manager
	logger  *zap.Logger
}

func NewHandler(m *Manager, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{manager: m, logger: logger}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	credentialsRequest
	RegistrationFields
}

type registerResponse struct {
	User         *identity.User   `json:"user"`
	Profile      *profile.Profile `json:"profile,omitempty"`
	ProfileError string           `json:"profileError,omitempty"`
	BackendError string           `json:"backendError,omitempty"`
	Session      Snapshot         `json:"session"`
}

// GetSession handles GET /session
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.manager.Snapshot())
}

// Login handles POST /session/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeCredentials(w, r, &req) {
		return
	}
	if _, err := h.manager.Login(r.Context(), req.Email, req.Password); err != nil {
		respondIdentityError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.manager.Snapshot())
}

// Register handles POST /session/register. Partial failures are reported
// in the body of a 201 response.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON payload: "+err.Error())
		return
	}
	if req.Email == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "email and password are required")
		return
	}

	res, err := h.manager.Register(r.Context(), req.Email, req.Password, req.RegistrationFields)
	if err != nil {
		respondIdentityError(w, err)
		return
	}
	body := registerResponse{User: res.User, Profile: res.Profile, Session: h.manager.Snapshot()}
	if res.ProfileErr != nil {
		body.ProfileError = res.ProfileErr.Error()
	}
	if res.BackendErr != nil {
		body.BackendError = res.BackendErr.Error()
	}
	respondJSON(w, http.StatusCreated, body)
}

// Logout handles POST /session/logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Logout(r.Context()); err != nil {
		respondIdentityError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.manager.Snapshot())
}

// SyncLocation handles POST /session/location
func (h *Handler) SyncLocation(w http.ResponseWriter, r *http.Request) {
	p, err := h.manager.SyncLocation(r.Context())
	if err != nil {
		switch {
		case errors.Is(err, ErrNotAuthenticated):
			respondError(w, http.StatusUnauthorized, "unauthenticated", err.Error())
		case errors.Is(err, location.ErrPermissionDenied):
			respondError(w, http.StatusForbidden, "permission_denied", err.Error())
		case errors.Is(err, location.ErrNoFix):
			respondError(w, http.StatusServiceUnavailable, "no_fix", err.Error())
		case errors.Is(err, location.ErrNotSupported):
			respondError(w, http.StatusConflict, "not_supported", err.Error())
		case errors.Is(err, profile.ErrNotFound):
			respondError(w, http.StatusNotFound, "profile_not_found", err.Error())
		default:
			h.logger.Error("Location sync failed", zap.Error(err))
			respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
		}
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// Stream handles GET /session/stream (WebSocket). The current snapshot is
// sent first, then every change.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	sub := h.manager.Subscribe()
	broadcast.Stream(w, r, sub, h.manager.Snapshot(), h.logger)
}

func decodeCredentials(w http.ResponseWriter, r *http.Request, req *credentialsRequest) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON payload: "+err.Error())
		return false
	}
	if req.Email == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "email and password are required")
		return false
	}
	return true
}

func respondIdentityError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, identity.ErrInvalidCredentials):
		respondError(w, http.StatusUnauthorized, "invalid_credentials", err.Error())
	case errors.Is(err, identity.ErrUserNotFound):
		respondError(w, http.StatusUnauthorized, "user_not_found", err.Error())
	case errors.Is(err, identity.ErrEmailInUse):
		respondError(w, http.StatusConflict, "email_in_use", err.Error())
	case errors.Is(err, identity.ErrWeakPassword), errors.Is(err, identity.ErrInvalidEmail):
		respondError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, identity.ErrTooManyAttempts):
		respondError(w, http.StatusTooManyRequests, "too_many_attempts", err.Error())
	case errors.Is(err, identity.ErrNetwork):
		respondError(w, http.StatusBadGateway, "network_error", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "identity_error", err.Error())
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
