package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Jayavarshini-Srinivasan/RapidAid-Dashboard/patient-service/internal/config"
	"github.com/Jayavarshini-Srinivasan/RapidAid-Dashboard/patient-service/internal/db"
	"github.com/Jayavarshini-Srinivasan/RapidAid-Dashboard/patient-service/internal/identity"
	"github.com/Jayavarshini-Srinivasan/RapidAid-Dashboard/patient-service/internal/location"
	"github.com/Jayavarshini-Srinivasan/RapidAid-Dashboard/patient-service/internal/profile"
	"github.com/Jayavarshini-Srinivasan/RapidAid-Dashboard/patient-service/internal/session"
)

func (a *App) newFirebase(ctx context.Context) (*identity.FirebaseClient, error) {
	fc := a.Config.Firebase

	var verifier *identity.Verifier
	if fc.VerifyTokens {
		if fc.ProjectID == "" {
			return nil, fmt.Errorf("%w: firebase.project_id is required to verify tokens", config.ErrInvalidConfig)
		}
		keys, err := identity.NewJWKS(ctx, fc.JWKSURL, 0, a.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to load token signing keys: %w", err)
		}
		a.closers = append(a.closers, func() error { keys.Close(); return nil })
		verifier = identity.NewVerifier(fc.ProjectID, keys)
	}

	return identity.NewFirebaseClient(identity.FirebaseConfig{
		APIKey:      fc.APIKey,
		IdentityURL: fc.IdentityURL,
		TokenURL:    fc.TokenURL,
	}, verifier, a.Logger)
}

func (a *App) newStore(ctx context.Context) (profile.DocumentStore, error) {
	switch a.Config.Store.Driver {
	case "firestore", "":
		fs, err := profile.NewFirestoreStore(ctx, a.Config.Firebase.ProjectID, a.Config.Firebase.CredentialsFile)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, fs.Close)
		return fs, nil
	case "postgres":
		conn, err := db.Connect(ctx, a.Config.Database, a.Logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, conn.Close)
		store := profile.NewPostgresStore(conn)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return store, nil
	case "memory":
		a.Logger.Warn("Using in-memory profile store; profiles are lost on exit")
		return profile.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: unknown store driver %q", config.ErrInvalidConfig, a.Config.Store.Driver)
	}
}

func (a *App) newDevice() (location.Device, error) {
	lc := a.Config.Location
	switch lc.Device {
	case "push", "":
		a.Push = location.NewPushDevice(location.PermissionUndetermined, lc.FixMaxAge)
		return a.Push, nil
	case "static":
		return location.NewStaticDevice(location.Point{Latitude: lc.StaticLatitude, Longitude: lc.StaticLongitude}), nil
	case "geoip":
		d, err := location.OpenGeoIPDevice(lc.GeoIPDatabase, lc.GeoIPAddress, lc.GeoIPInterval)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, d.Close)
		return d, nil
	default:
		return nil, fmt.Errorf("%w: unknown location device %q", config.ErrInvalidConfig, lc.Device)
	}
}

func (a *App) newGeocoder() location.Geocoder {
	lc := a.Config.Location
	switch lc.Geocoder {
	case "nominatim":
		nominatim := location.NewNominatimGeocoder(lc.NominatimURL, lc.UserAgent, lc.Language, lc.GeocodeTimeout)
		return location.NewCachedGeocoder(nominatim, lc.GeocodeCacheTTL)
	case "none", "":
		return nil
	default:
		a.Logger.Warn("Unknown geocoder, addresses disabled", zap.String("geocoder", lc.Geocoder))
		return nil
	}
}

// newBootstrap builds the test profile routine on its own identity client
// so its sign-in and sign-out never touch the device session.
func (a *App) newBootstrap(ctx context.Context) (*session.Bootstrap, error) {
	provider, err := a.newFirebase(ctx)
	if err != nil {
		return nil, err
	}
	bc := a.Config.Bootstrap
	return session.NewBootstrap(provider, a.Profiles, session.BootstrapOptions{
		Email:       bc.Email,
		Password:    bc.Password,
		CreateFirst: bc.CreateFirst,
	}, a.Logger.Named("bootstrap")), nil
}
