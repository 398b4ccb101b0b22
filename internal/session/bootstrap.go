package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Jayavarshini-Srinivasan/RapidAid-Dashboard/patient-service/internal/identity"
	"github.com/Jayavarshini-Srinivasan/RapidAid-Dashboard/patient-service/internal/profile"
)

// Test account used when none is configured.
const (
	DefaultTestEmail    = "patient.test002@rapidaid.dev"
	DefaultTestPassword = "RapidAidTest!2025"
	TestPatientName     = "Test Patient"
)

// BootstrapOptions configure the test account routine.
type BootstrapOptions struct {
	Email    string
	Password string
	// CreateFirst signs the account up before ensuring its profile. An
	// existing account counts as success.
	CreateFirst bool
}

// Bootstrap makes sure a test patient account and its profile exist. It
// must be given its own identity provider instance: it signs in and out,
// which would otherwise end the device's real session.
type Bootstrap struct {
	identity identity.Provider
	profiles ProfileService
	opts     BootstrapOptions
	logger   *zap.Logger
}

func NewBootstrap(provider identity.Provider, profiles ProfileService, opts BootstrapOptions, logger *zap.Logger) *Bootstrap {
	if opts.Email == "" {
		opts.Email = DefaultTestEmail
	}
	if opts.Password == "" {
		opts.Password = DefaultTestPassword
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bootstrap{identity: provider, profiles: profiles, opts: opts, logger: logger}
}

// EnsureTestProfile runs the routine once. It is idempotent.
func (b *Bootstrap) EnsureTestProfile(ctx context.Context) error {
	if b.opts.CreateFirst {
		if err := b.createTestUser(ctx); err != nil {
			b.logger.Error("Error creating test user", zap.String("email", b.opts.Email), zap.Error(err))
		}
	}

	user, err := b.identity.SignIn(ctx, b.opts.Email, b.opts.Password)
	if errors.Is(err, identity.ErrUserNotFound) {
		return b.signUpAndEnsure(ctx)
	}
	if err != nil {
		b.logger.Error("Ensure profile sign-in failed", zap.String("email", b.opts.Email), zap.Error(err))
		return fmt.Errorf("test account sign-in: %w", err)
	}
	defer b.signOut(ctx)

	existing, err := b.profiles.GetProfile(ctx, user.UID)
	if err != nil {
		return fmt.Errorf("test profile lookup: %w", err)
	}
	if existing != nil {
		b.logger.Info("Test patient profile already exists", zap.String("patient_id", user.UID))
		return nil
	}
	if _, err := b.profiles.CreateProfile(ctx, user.UID, profile.Fields{Email: user.Email, Name: b.localPart()}); err != nil {
		return fmt.Errorf("test profile create: %w", err)
	}
	b.logger.Info("Ensured test patient profile", zap.String("patient_id", user.UID))
	return nil
}

func (b *Bootstrap) signUpAndEnsure(ctx context.Context) error {
	user, err := b.identity.SignUp(ctx, b.opts.Email, b.opts.Password)
	if err != nil {
		b.logger.Error("Ensure profile creation failed", zap.String("email", b.opts.Email), zap.Error(err))
		return fmt.Errorf("test account sign-up: %w", err)
	}
	defer b.signOut(ctx)

	if _, err := b.profiles.CreateProfile(ctx, user.UID, profile.Fields{Email: user.Email, Name: b.localPart()}); err != nil {
		b.logger.Error("Ensure profile creation failed", zap.String("patient_id", user.UID), zap.Error(err))
		return fmt.Errorf("test profile create: %w", err)
	}
	b.logger.Info("Created test account and profile", zap.String("patient_id", user.UID))
	return nil
}

func (b *Bootstrap) createTestUser(ctx context.Context) error {
	user, err := b.identity.SignUp(ctx, b.opts.Email, b.opts.Password)
	if errors.Is(err, identity.ErrEmailInUse) {
		b.logger.Info("Test email already exists, skipping creation", zap.String("email", b.opts.Email))
		return nil
	}
	if err != nil {
		return err
	}
	defer b.signOut(ctx)

	_, err = b.profiles.CreateProfile(ctx, user.UID, profile.Fields{Email: user.Email, Name: TestPatientName})
	return err
}

func (b *Bootstrap) signOut(ctx context.Context) {
	if err := b.identity.SignOut(ctx); err != nil {
		b.logger.Warn("Test account sign-out failed", zap.Error(err))
	}
}

func (b *Bootstrap) localPart() string {
	local, _, _ := strings.Cut(b.opts.Email, "@")
	return local
}
