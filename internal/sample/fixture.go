// Package sample loads the offline fixture used in sample mode and seeds
// the stub identity provider and profile store from it.
package sample

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/Jayavarshini-Srinivasan/RapidAid-Dashboard/patient-service/internal/identity"
	"github.com/Jayavarshini-Srinivasan/RapidAid-Dashboard/patient-service/internal/location"
	"github.com/Jayavarshini-Srinivasan/RapidAid-Dashboard/patient-service/internal/profile"
)

//go:embed fixture.yaml
var defaultFixture []byte

var ErrInvalidFixture = errors.New("invalid sample fixture")

// Fixture is the offline data set.
type Fixture struct {
	Accounts []Account `yaml:"accounts"`
	Location Location  `yaml:"location"`
}

// Account is a stub identity and, optionally, its stored profile.
type Account struct {
	UID      string          `yaml:"uid"`
	Email    string          `yaml:"email"`
	Password string          `yaml:"password"`
	Profile  *ProfileFixture `yaml:"profile"`
}

// ProfileFixture mirrors profile.Fields with the document's field names.
type ProfileFixture struct {
	Name             string   `yaml:"name"`
	Phone            string   `yaml:"phone"`
	Age              string   `yaml:"age"`
	BloodType        string   `yaml:"bloodType"`
	EmergencyContact string   `yaml:"emergencyContact"`
	EmergencyPhone   string   `yaml:"emergencyPhone"`
	Allergies        []string `yaml:"allergies"`
	Conditions       []string `yaml:"conditions"`
	Medications      []string `yaml:"medications"`
}

// Location is the fixed position reported in sample mode.
type Location struct {
	Latitude  float64           `yaml:"latitude"`
	Longitude float64           `yaml:"longitude"`
	Address   *location.Address `yaml:"address"`
}

// Point returns the fixture coordinates.
func (l Location) Point() location.Point {
	return location.Point{Latitude: l.Latitude, Longitude: l.Longitude}
}

// ProfileCreator is the profile write used for seeding.
type ProfileCreator interface {
	CreateProfile(ctx context.Context, id string, f profile.Fields) (*profile.Profile, error)
}

// Load reads a fixture file. An empty path yields the built-in fixture.
func Load(path string) (*Fixture, error) {
	data := defaultFixture
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read sample fixture: %w", err)
		}
		data = b
	}
	return Parse(data)
}

// Parse decodes and validates fixture YAML.
func Parse(data []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFixture, err)
	}
	seen := make(map[string]bool, len(f.Accounts))
	for i, a := range f.Accounts {
		if a.Email == "" || a.Password == "" {
			return nil, fmt.Errorf("%w: account %d needs email and password", ErrInvalidFixture, i)
		}
		if seen[a.Email] {
			return nil, fmt.Errorf("%w: duplicate account %s", ErrInvalidFixture, a.Email)
		}
		seen[a.Email] = true
	}
	if f.Location.Latitude < -90 || f.Location.Latitude > 90 || f.Location.Longitude < -180 || f.Location.Longitude > 180 {
		return nil, fmt.Errorf("%w: location out of range", ErrInvalidFixture)
	}
	return &f, nil
}

// Seed registers every fixture account with the provider and writes the
// profiles that the fixture defines. Accounts without a profile get one
// lazily on first sign-in.
func (f *Fixture) Seed(ctx context.Context, provider *identity.MemoryProvider, profiles ProfileCreator, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	for _, a := range f.Accounts {
		if err := provider.Seed(a.Email, a.Password, a.UID); err != nil {
			return fmt.Errorf("failed to seed account %s: %w", a.Email, err)
		}
		if a.Profile == nil || a.UID == "" {
			continue
		}
		p := a.Profile
		if _, err := profiles.CreateProfile(ctx, a.UID, profile.Fields{
			Email:            a.Email,
			Name:             p.Name,
			Phone:            p.Phone,
			Age:              p.Age,
			BloodType:        p.BloodType,
			EmergencyContact: p.EmergencyContact,
			EmergencyPhone:   p.EmergencyPhone,
			Allergies:        p.Allergies,
			Conditions:       p.Conditions,
			Medications:      p.Medications,
		}); err != nil {
			return fmt.Errorf("failed to seed profile %s: %w", a.UID, err)
		}
	}
	logger.Info("Seeded sample data", zap.Int("accounts", len(f.Accounts)))
	return nil
}
