// Package session owns the device's single patient session: the signed-in
// identity, its profile, and the state machine between them.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Jayavarshini-Srinivasan/RapidAid-Dashboard/patient-service/internal/backend"
	"github.com/Jayavarshini-Srinivasan/RapidAid-Dashboard/patient-service/internal/broadcast"
	"github.com/Jayavarshini-Srinivasan/RapidAid-Dashboard/patient-service/internal/identity"
	"github.com/Jayavarshini-Srinivasan/RapidAid-Dashboard/patient-service/internal/location"
	"github.com/Jayavarshini-Srinivasan/RapidAid-Dashboard/patient-service/internal/messaging"
	"github.com/Jayavarshini-Srinivasan/RapidAid-Dashboard/patient-service/internal/profile"
)

var tracer = otel.Tracer("patient-service/session")

// State is the session state.
type State string

const (
	StateLoading         State = "loading"
	StateUnauthenticated State = "unauthenticated"
	StateAuthenticated   State = "authenticated"
)

// Snapshot is an immutable view of the session. Version increases with
// every published change.
type Snapshot struct {
	State   State            `json:"state"`
	User    *identity.User   `json:"user,omitempty"`
	Profile *profile.Profile `json:"profile,omitempty"`
	Version uint64           `json:"version"`
}

// Authenticated reports whether a patient is signed in.
func (s Snapshot) Authenticated() bool {
	return s.State == StateAuthenticated && s.User != nil
}

// ProfileService is the part of profile.Client the manager uses.
type ProfileService interface {
	GetProfile(ctx context.Context, id string) (*profile.Profile, error)
	CreateProfile(ctx context.Context, id string, f profile.Fields) (*profile.Profile, error)
	UpdateLocation(ctx context.Context, id string, s location.Sample) error
	Diagnose(ctx context.Context, id string) (*profile.Diagnostics, error)
}

// LocationSource supplies the device location.
type LocationSource interface {
	CurrentLocation(ctx context.Context) (location.Sample, error)
}

// MetricsRecorder records session outcomes.
type MetricsRecorder interface {
	RecordLogin(ctx context.Context, outcome string)
	RecordRegistration(ctx context.Context, profileStored, backendNotified bool)
}

// RegistrationFields are the optional profile values supplied at sign-up.
type RegistrationFields struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Age   string `json:"age"`
}

// RegisterResult reports a sign-up. The identity exists whenever Register
// returns a nil error; ProfileErr and BackendErr report the two follow-up
// writes independently and never roll the identity back.
type RegisterResult struct {
	User       *identity.User
	Profile    *profile.Profile
	ProfileErr error
	BackendErr error
}

// Options configure a Manager.
type Options struct {
	// Sample skips the identity subscription; the session starts
	// unauthenticated and logout only clears local state.
	Sample bool
	// SyncTimeout bounds background profile sync and diagnostics. Default 15s.
	SyncTimeout time.Duration
	Publisher   messaging.PublisherInterface
	Metrics     MetricsRecorder
	Logger      *zap.Logger
}

// Manager is the explicit session object shared by the HTTP handlers.
type Manager struct {
	identity identity.Provider
	profiles ProfileService
	location LocationSource
	backend  backend.Registrar
	opts     Options
	logger   *zap.Logger
	hub      *broadcast.Hub[Snapshot]

	// syncMu serializes profile provisioning for identities, so a login
	// and its change callback never create the profile twice.
	syncMu sync.Mutex

	mu      sync.Mutex
	state   State
	user    *identity.User
	prof    *profile.Profile
	version uint64
	// epoch advances whenever the signed-in identity is cleared; results of
	// work started in an older epoch are dropped.
	epoch       uint64
	started     bool
	closed      bool
	unsubscribe func()

	bgCtx    context.Context
	bgCancel context.CancelFunc
	wg       sync.WaitGroup
}

// NewManager creates a manager in the loading state.
func NewManager(provider identity.Provider, profiles ProfileService, loc LocationSource, registrar backend.Registrar, opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.SyncTimeout <= 0 {
		opts.SyncTimeout = 15 * time.Second
	}
	if registrar == nil {
		registrar = backend.Noop{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		identity: provider,
		profiles: profiles,
		location: loc,
		backend:  registrar,
		opts:     opts,
		logger:   opts.Logger,
		hub:      broadcast.NewHub[Snapshot](),
		state:    StateLoading,
		bgCtx:    ctx,
		bgCancel: cancel,
	}
}

// Start leaves the loading state. In live mode it subscribes to identity
// changes; the first callback carries the current identity.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	m.mu.Unlock()

	if m.opts.Sample {
		m.logger.Info("Session started in sample mode")
		m.clear()
		return nil
	}

	unsubscribe := m.identity.OnChange(m.onIdentityChange)
	m.mu.Lock()
	m.unsubscribe = unsubscribe
	m.mu.Unlock()
	m.logger.Info("Session started, waiting for identity")
	return nil
}

// Close unsubscribes from identity changes, waits for background work and
// closes every snapshot subscription.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	unsubscribe := m.unsubscribe
	m.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	m.bgCancel()
	m.wg.Wait()
	m.hub.Close()
}

// Snapshot returns the current session view.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Subscribe returns a subscription receiving every later snapshot. Only the
// newest pending snapshot is kept for a slow reader.
func (m *Manager) Subscribe() *broadcast.Subscription[Snapshot] {
	return m.hub.Subscribe()
}

// Login signs in and ensures a profile exists. Identity errors are
// returned unchanged; profile errors are logged and the login still
// succeeds.
func (m *Manager) Login(ctx context.Context, email, password string) (u *identity.User, err error) {
	ctx, span := tracer.Start(ctx, "session.Login")
	defer func() { endSpan(span, err) }()

	user, err := m.identity.SignIn(ctx, email, password)
	if err != nil {
		m.recordLogin(ctx, err)
		m.logger.Info("Login failed", zap.String("email", email), zap.Error(err))
		return nil, err
	}
	span.SetAttributes(attribute.String("user.id", user.UID))

	m.adopt(ctx, user)
	m.recordLogin(ctx, nil)
	return user, nil
}

// Register creates the identity, then its profile, then notifies the
// backend.
func (m *Manager) Register(ctx context.Context, email, password string, fields RegistrationFields) (res *RegisterResult, err error) {
	ctx, span := tracer.Start(ctx, "session.Register")
	defer func() { endSpan(span, err) }()

	m.syncMu.Lock()
	defer m.syncMu.Unlock()

	user, err := m.identity.SignUp(ctx, email, password)
	if err != nil {
		m.logger.Info("Registration failed", zap.String("email", email), zap.Error(err))
		return nil, err
	}
	span.SetAttributes(attribute.String("user.id", user.UID))
	res = &RegisterResult{User: user}

	name := fields.Name
	if name == "" {
		name = user.LocalPart()
	}
	res.Profile, res.ProfileErr = m.profiles.CreateProfile(ctx, user.UID, profile.Fields{
		Email: user.Email,
		Name:  name,
		Phone: fields.Phone,
		Age:   fields.Age,
	})
	if res.ProfileErr != nil {
		m.logger.Error("Error creating user profile", zap.String("patient_id", user.UID), zap.Error(res.ProfileErr))
	}

	res.BackendErr = m.backend.Register(ctx, backend.Registration{
		Email:    email,
		Password: password,
		Name:     fields.Name,
		Phone:    fields.Phone,
		Age:      fields.Age,
	})
	if res.BackendErr != nil {
		m.logger.Error("Backend registration failed", zap.String("patient_id", user.UID), zap.Error(res.BackendErr))
	}

	m.mu.Lock()
	m.setLocked(StateAuthenticated, user, res.Profile)
	m.mu.Unlock()
	m.startDiagnostics(user.UID)

	if m.opts.Metrics != nil {
		m.opts.Metrics.RecordRegistration(ctx, res.ProfileErr == nil, res.BackendErr == nil)
	}
	m.publish(ctx, messaging.EventRegistered, messaging.RegisteredEvent{
		BaseEvent: messaging.NewBaseEvent(messaging.EventRegistered),
		Data: messaging.RegisteredEventData{
			PatientID:       user.UID,
			Email:           user.Email,
			ProfileStored:   res.ProfileErr == nil,
			BackendNotified: res.BackendErr == nil,
		},
	})
	return res, nil
}

// Logout ends the session. In sample mode only local state is cleared.
func (m *Manager) Logout(ctx context.Context) error {
	if !m.opts.Sample {
		if err := m.identity.SignOut(ctx); err != nil {
			m.logger.Error("Sign out failed", zap.Error(err))
			return err
		}
	}
	m.clear()
	return nil
}

// SyncLocation stores the current device location on the signed-in
// patient's profile and returns the refreshed profile.
func (m *Manager) SyncLocation(ctx context.Context) (*profile.Profile, error) {
	snap := m.Snapshot()
	if !snap.Authenticated() {
		return nil, ErrNotAuthenticated
	}
	if m.location == nil {
		return nil, location.ErrNotSupported
	}

	sample, err := m.location.CurrentLocation(ctx)
	if err != nil {
		return nil, err
	}
	if err := m.profiles.UpdateLocation(ctx, snap.User.UID, sample); err != nil {
		return nil, err
	}
	p, err := m.profiles.GetProfile(ctx, snap.User.UID)
	if err != nil {
		return nil, err
	}
	if p != nil {
		m.ProfileChanged(p)
	}
	return p, nil
}

// ProfileChanged replaces the snapshot profile when p belongs to the
// signed-in patient.
func (m *Manager) ProfileChanged(p *profile.Profile) {
	if p == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateAuthenticated || m.user == nil || m.user.UID != p.ID {
		return
	}
	m.setLocked(StateAuthenticated, m.user, p)
}

// onIdentityChange runs on the provider's notifier goroutine.
func (m *Manager) onIdentityChange(u *identity.User) {
	current := m.identity.Current()
	if u == nil {
		if current != nil {
			// superseded by a later sign-in
			return
		}
		m.clear()
		return
	}
	if current == nil || current.UID != u.UID {
		m.logger.Debug("Discarding stale identity change", zap.String("uid", u.UID))
		return
	}

	ctx, cancel := context.WithTimeout(m.bgCtx, m.opts.SyncTimeout)
	defer cancel()
	m.adopt(ctx, u)
}

// adopt makes u the signed-in patient, provisioning a profile when needed.
func (m *Manager) adopt(ctx context.Context, u *identity.User) {
	m.syncMu.Lock()
	defer m.syncMu.Unlock()

	m.mu.Lock()
	if m.state == StateAuthenticated && m.user != nil && m.user.UID == u.UID {
		m.user = u
		m.mu.Unlock()
		return
	}
	epoch := m.epoch
	m.mu.Unlock()

	p := m.ensureProfile(ctx, u)

	m.mu.Lock()
	if m.epoch != epoch || m.closed {
		m.mu.Unlock()
		m.logger.Debug("Discarding profile sync for signed-out identity", zap.String("uid", u.UID))
		return
	}
	m.setLocked(StateAuthenticated, u, p)
	m.mu.Unlock()

	m.startDiagnostics(u.UID)
}

// ensureProfile returns the profile for u, creating it with the email's
// local part as name when absent. Failures are logged and yield nil.
func (m *Manager) ensureProfile(ctx context.Context, u *identity.User) *profile.Profile {
	p, err := m.profiles.GetProfile(ctx, u.UID)
	if err != nil {
		m.logger.Error("Error fetching user profile", zap.String("patient_id", u.UID), zap.Error(err))
		return nil
	}
	if p != nil {
		return p
	}
	p, err = m.profiles.CreateProfile(ctx, u.UID, profile.Fields{Email: u.Email, Name: u.LocalPart()})
	if err != nil {
		m.logger.Error("Error creating default profile", zap.String("patient_id", u.UID), zap.Error(err))
		return nil
	}
	m.logger.Info("Created default profile", zap.String("patient_id", u.UID))
	return p
}

func (m *Manager) startDiagnostics(uid string) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(m.bgCtx, m.opts.SyncTimeout)
		defer cancel()
		d, err := m.profiles.Diagnose(ctx, uid)
		if err != nil {
			m.logger.Warn("Diagnostics failed", zap.String("patient_id", uid), zap.Error(err))
			return
		}
		m.logger.Debug("Diagnostics result", zap.String("patient_id", uid), zap.Bool("readable", d != nil))
	}()
}

func (m *Manager) clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.epoch++
	if m.state == StateUnauthenticated {
		return
	}
	m.setLocked(StateUnauthenticated, nil, nil)
}

// setLocked updates state and publishes a snapshot. m.mu must be held.
func (m *Manager) setLocked(state State, u *identity.User, p *profile.Profile) {
	m.state = state
	m.user = u
	m.prof = p
	m.version++
	m.hub.Publish(m.snapshotLocked())
}

func (m *Manager) snapshotLocked() Snapshot {
	s := Snapshot{State: m.state, Version: m.version}
	if m.user != nil {
		u := *m.user
		s.User = &u
	}
	if m.prof != nil {
		p := *m.prof
		s.Profile = &p
	}
	return s
}

func (m *Manager) recordLogin(ctx context.Context, err error) {
	if m.opts.Metrics == nil {
		return
	}
	m.opts.Metrics.RecordLogin(ctx, loginOutcome(err))
}

func loginOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, identity.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, identity.ErrUserNotFound):
		return "user_not_found"
	case errors.Is(err, identity.ErrNetwork):
		return "network"
	default:
		return "error"
	}
}

func (m *Manager) publish(ctx context.Context, routingKey string, event interface{}) {
	if m.opts.Publisher == nil {
		return
	}
	if err := m.opts.Publisher.Publish(ctx, routingKey, event); err != nil {
		m.logger.Warn("Failed to publish session event", zap.String("routing_key", routingKey), zap.Error(err))
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
	}
	span.End()
}

// CurrentPatient returns a copy of the signed-in patient's profile, or nil.
func (m *Manager) CurrentPatient() *profile.Profile {
	return m.Snapshot().Profile
}
