package http

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.uber.org/zap"

	"github.com/Jayavarshini-Srinivasan/RapidAid-Dashboard/patient-service/internal/location"
	"github.com/Jayavarshini-Srinivasan/RapidAid-Dashboard/patient-service/internal/profile"
	"github.com/Jayavarshini-Srinivasan/RapidAid-Dashboard/patient-service/internal/session"
	"github.com/Jayavarshini-Srinivasan/RapidAid-Dashboard/patient-service/internal/tracking"
)

// Handlers are the feature handlers mounted by the router.
type Handlers struct {
	Session  *session.Handler
	Profile  *profile.Handler
	Location *location.Handler
	Tracking *tracking.Handler
}

// Options configure the router middleware.
type Options struct {
	ServiceName    string
	Mode           string
	AllowedOrigins []string
	HTTPMetrics    MetricsRecorder
	AuthMetrics    session.AuthMetricsRecorder
	Logger         *zap.Logger
}

// SetupRouter initializes all routes for the patient core
func SetupRouter(manager *session.Manager, h Handlers, opts Options) *mux.Router {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	r := mux.NewRouter()
	r.Use(otelmux.Middleware(opts.ServiceName))
	r.Use(RequestLogger(opts.Logger, opts.HTTPMetrics))
	r.Use(CORSMiddleware(opts.AllowedOrigins))

	// Public health endpoint
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok","service":"` + opts.ServiceName + `","mode":"` + opts.Mode + `"}`))
	}).Methods("GET")

	// Session routes
	r.HandleFunc("/session", h.Session.GetSession).Methods("GET")
	r.HandleFunc("/session/login", h.Session.Login).Methods("POST", "OPTIONS")
	r.HandleFunc("/session/register", h.Session.Register).Methods("POST", "OPTIONS")
	r.HandleFunc("/session/logout", h.Session.Logout).Methods("POST", "OPTIONS")
	r.HandleFunc("/session/location", h.Session.SyncLocation).Methods("POST", "OPTIONS")
	r.HandleFunc("/session/stream", h.Session.Stream).Methods("GET")

	// Device location routes
	r.HandleFunc("/location/current", h.Location.GetCurrentLocation).Methods("GET")
	r.HandleFunc("/location/permission", h.Location.SetPermission).Methods("POST", "OPTIONS")
	r.HandleFunc("/location/fix", h.Location.PushFix).Methods("POST", "OPTIONS")
	r.HandleFunc("/location/distance", h.Location.GetDistance).Methods("GET")
	r.HandleFunc("/location/watch", h.Location.Watch).Methods("GET")

	requireAuth := session.RequireAuthenticated(manager, opts.AuthMetrics)

	// Profile routes (signed-in patient only)
	r.Handle("/profile", requireAuth(http.HandlerFunc(h.Profile.GetProfile))).Methods("GET")
	r.Handle("/profile", requireAuth(http.HandlerFunc(h.Profile.UpdateProfile))).Methods("PUT", "OPTIONS")
	r.Handle("/profile/medical", requireAuth(http.HandlerFunc(h.Profile.AddMedicalData))).Methods("PUT", "OPTIONS")
	r.Handle("/profile/location", requireAuth(http.HandlerFunc(h.Profile.UpdateLocation))).Methods("PUT", "OPTIONS")
	r.Handle("/profile/diagnostics", requireAuth(http.HandlerFunc(h.Profile.Diagnose))).Methods("GET")

	// Emergency tracking routes (signed-in patient only)
	r.Handle("/tracking", requireAuth(http.HandlerFunc(h.Tracking.Start))).Methods("POST", "OPTIONS")
	r.Handle("/tracking", requireAuth(http.HandlerFunc(h.Tracking.Get))).Methods("GET")
	r.Handle("/tracking", requireAuth(http.HandlerFunc(h.Tracking.Stop))).Methods("DELETE")
	r.Handle("/tracking/refresh", requireAuth(http.HandlerFunc(h.Tracking.Refresh))).Methods("POST", "OPTIONS")
	r.Handle("/tracking/share", requireAuth(http.HandlerFunc(h.Tracking.Share))).Methods("GET")
	r.Handle("/tracking/stream", requireAuth(http.HandlerFunc(h.Tracking.Stream))).Methods("GET")

	return r
}
