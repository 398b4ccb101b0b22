// Package app builds the patient core from configuration: live backing
// services or the offline sample stubs.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/Jayavarshini-Srinivasan/RapidAid-Dashboard/patient-service/internal/backend"
	"github.com/Jayavarshini-Srinivasan/RapidAid-Dashboard/patient-service/internal/config"
	httpapi "github.com/Jayavarshini-Srinivasan/RapidAid-Dashboard/patient-service/internal/http"
	"github.com/Jayavarshini-Srinivasan/RapidAid-Dashboard/patient-service/internal/identity"
	"github.com/Jayavarshini-Srinivasan/RapidAid-Dashboard/patient-service/internal/location"
	"github.com/Jayavarshini-Srinivasan/RapidAid-Dashboard/patient-service/internal/messaging"
	"github.com/Jayavarshini-Srinivasan/RapidAid-Dashboard/patient-service/internal/profile"
	"github.com/Jayavarshini-Srinivasan/RapidAid-Dashboard/patient-service/internal/sample"
	"github.com/Jayavarshini-Srinivasan/RapidAid-Dashboard/patient-service/internal/session"
	"github.com/Jayavarshini-Srinivasan/RapidAid-Dashboard/patient-service/internal/telemetry"
	"github.com/Jayavarshini-Srinivasan/RapidAid-Dashboard/patient-service/internal/tracking"
)

// ErrBootstrapDisabled is returned by EnsureTestProfile when the build has no
// bootstrap routine.
var ErrBootstrapDisabled = errors.New("test profile bootstrap is disabled")

// App is the wired patient core.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Identity identity.Provider
	Profiles *profile.Client
	Location *location.Provider
	Push     *location.PushDevice
	Session  *session.Manager
	Tracker  *tracking.Tracker
	Metrics  *telemetry.Metrics

	bootstrap *session.Bootstrap
	publisher messaging.PublisherInterface
	closers   []func() error
}

// New builds every component for cfg.Mode. Nothing runs until Start.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (a *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a = &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			a.closeResources()
		}
	}()

	if m, err := telemetry.InitMetrics(); err != nil {
		logger.Warn("Metrics disabled", zap.Error(err))
	} else {
		a.Metrics = m
	}

	if cfg.Messaging.URL != "" {
		pub, err := messaging.NewPublisher(cfg.Messaging.URL, cfg.Messaging.Exchange, logger)
		if err != nil {
			logger.Warn("Event publishing disabled", zap.Error(err))
		} else {
			a.publisher = pub
			a.closers = append(a.closers, pub.Close)
		}
	}

	var (
		store     profile.DocumentStore
		registrar backend.Registrar
		device    location.Device
		geocoder  location.Geocoder
	)
	switch cfg.Mode {
	case config.ModeSample:
		fixture, err := sample.Load(cfg.Sample.FixturePath)
		if err != nil {
			return nil, err
		}
		memory := identity.NewMemoryProvider()
		store = profile.NewMemoryStore()
		a.Identity = memory
		a.Profiles = a.newProfileClient(store)
		if err := fixture.Seed(ctx, memory, a.Profiles, logger); err != nil {
			return nil, err
		}
		registrar = backend.Noop{}
		device = location.NewStaticDevice(fixture.Location.Point())
		geocoder = location.StaticGeocoder{Address: fixture.Location.Address}

	case config.ModeLive:
		provider, err := a.newFirebase(ctx)
		if err != nil {
			return nil, err
		}
		a.Identity = provider
		if store, err = a.newStore(ctx); err != nil {
			return nil, err
		}
		a.Profiles = a.newProfileClient(store)
		registrar = backend.NewClient(cfg.Backend.URL, cfg.Backend.Timeout, provider, logger)
		if device, err = a.newDevice(); err != nil {
			return nil, err
		}
		geocoder = a.newGeocoder()
		if cfg.Bootstrap.Enabled {
			if a.bootstrap, err = a.newBootstrap(ctx); err != nil {
				return nil, err
			}
		}

	default:
		return nil, fmt.Errorf("%w: unresolved mode %q", config.ErrInvalidConfig, cfg.Mode)
	}

	a.Location = location.NewProvider(device, geocoder, logger).WithFixTimeout(cfg.Location.FixTimeout)
	if a.Metrics != nil {
		a.Location.WithMetrics(a.Metrics)
	}

	opts := session.Options{
		Sample:    cfg.Mode == config.ModeSample,
		Publisher: a.publisher,
		Logger:    logger,
	}
	if a.Metrics != nil {
		opts.Metrics = a.Metrics
	}
	a.Session = session.NewManager(a.Identity, a.Profiles, a.Location, registrar, opts)

	a.Tracker = tracking.NewTracker(a.Location, cfg.Tracking.RefreshInterval, logger)
	if a.Metrics != nil {
		a.Tracker.WithMetrics(a.Metrics)
	}

	logger.Info("Patient core assembled",
		zap.String("mode", string(cfg.Mode)),
		zap.String("store", storeName(cfg, store)),
		zap.Bool("events", a.publisher != nil))
	return a, nil
}

// Start starts the session and, when enabled, runs the test profile
// bootstrap in the background.
func (a *App) Start(ctx context.Context) error {
	if err := a.Session.Start(ctx); err != nil {
		return err
	}
	if a.bootstrap != nil {
		go func() {
			if err := a.EnsureTestProfile(ctx); err != nil {
				a.Logger.Error("Test profile bootstrap failed", zap.Error(err))
			}
		}()
	}
	return nil
}

// EnsureTestProfile runs the test profile bootstrap once in the foreground.
func (a *App) EnsureTestProfile(ctx context.Context) error {
	if a.bootstrap == nil {
		return ErrBootstrapDisabled
	}
	return a.bootstrap.EnsureTestProfile(ctx)
}

// Handler returns the HTTP API.
func (a *App) Handler() http.Handler {
	profiles := profile.NewHandler(a.Profiles, a.Location).WithObserver(a.Session)
	opts := httpapi.Options{
		ServiceName:    a.Config.Telemetry.ServiceName,
		Mode:           string(a.Config.Mode),
		AllowedOrigins: a.Config.Server.AllowedOrigins,
		Logger:         a.Logger,
	}
	if a.Metrics != nil {
		opts.HTTPMetrics = a.Metrics
		opts.AuthMetrics = a.Metrics
	}
	return httpapi.SetupRouter(a.Session, httpapi.Handlers{
		Session:  session.NewHandler(a.Session, a.Logger),
		Profile:  profiles,
		Location: location.NewHandler(a.Location, a.Push).WithLogger(a.Logger),
		Tracking: tracking.NewHandler(a.Tracker, a.Session, a.Logger),
	}, opts)
}

// Close stops the tracker and session and releases every connection.
func (a *App) Close() error {
	if a.Tracker != nil {
		a.Tracker.Close()
	}
	if a.Session != nil {
		a.Session.Close()
	}
	return a.closeResources()
}

func (a *App) closeResources() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) newProfileClient(store profile.DocumentStore) *profile.Client {
	c := profile.NewClient(store, a.Logger).
		WithCollections(a.Config.Store.Collection, a.Config.Store.DiagnosticsCollection)
	if a.publisher != nil {
		c.WithPublisher(a.publisher)
	}
	if a.Metrics != nil {
		c.WithMetrics(a.Metrics)
	}
	return c
}

func storeName(cfg *config.Config, store profile.DocumentStore) string {
	if _, ok := store.(*profile.MemoryStore); ok {
		return "memory"
	}
	return cfg.Store.Driver
}
