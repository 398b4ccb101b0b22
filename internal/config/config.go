// Package config provides configuration loading for the patient core.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Jayavarshini-Srinivasan/RapidAid-Dashboard/patient-service/internal/logger"
)

// Mode selects live backing services or the offline stubs.
type Mode string

const (
	ModeAuto   Mode = "auto"
	ModeLive   Mode = "live"
	ModeSample Mode = "sample"
)

// Config holds all configuration for the patient core.
type Config struct {
	Mode      Mode            `mapstructure:"mode"`
	Server    ServerConfig    `mapstructure:"server"`
	Log       logger.Config   `mapstructure:"log"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Firebase  FirebaseConfig  `mapstructure:"firebase"`
	Store     StoreConfig     `mapstructure:"store"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Location  LocationConfig  `mapstructure:"location"`
	Tracking  TrackingConfig  `mapstructure:"tracking"`
	Backend   BackendConfig   `mapstructure:"backend"`
	Messaging MessagingConfig `mapstructure:"messaging"`
	Sample    SampleConfig    `mapstructure:"sample"`
	Bootstrap BootstrapConfig `mapstructure:"bootstrap"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

// Addr returns the listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// TelemetryConfig holds OpenTelemetry exporter settings.
type TelemetryConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	ServiceName      string        `mapstructure:"service_name"`
	ServiceNamespace string        `mapstructure:"service_namespace"`
	ServiceVersion   string        `mapstructure:"service_version"`
	Environment      string        `mapstructure:"environment"`
	OTLPEndpoint     string        `mapstructure:"otlp_endpoint"`
	TracesSampler    string        `mapstructure:"traces_sampler"`
	MetricsInterval  time.Duration `mapstructure:"metrics_interval"`
}

// FirebaseConfig holds the identity and document store project settings.
type FirebaseConfig struct {
	APIKey          string `mapstructure:"api_key"`
	ProjectID       string `mapstructure:"project_id"`
	CredentialsFile string `mapstructure:"credentials_file"`
	IdentityURL     string `mapstructure:"identity_url"`
	TokenURL        string `mapstructure:"token_url"`
	VerifyTokens    bool   `mapstructure:"verify_tokens"`
	JWKSURL         string `mapstructure:"jwks_url"`
}

// StoreConfig selects the profile document store.
type StoreConfig struct {
	Driver                string `mapstructure:"driver"` // firestore, postgres, memory
	Collection            string `mapstructure:"collection"`
	DiagnosticsCollection string `mapstructure:"diagnostics_collection"`
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// LocationConfig selects the position device and the geocoder.
type LocationConfig struct {
	Device          string        `mapstructure:"device"` // push, static, geoip
	StaticLatitude  float64       `mapstructure:"static_latitude"`
	StaticLongitude float64       `mapstructure:"static_longitude"`
	GeoIPDatabase   string        `mapstructure:"geoip_database"`
	GeoIPAddress    string        `mapstructure:"geoip_address"`
	GeoIPInterval   time.Duration `mapstructure:"geoip_interval"`
	FixMaxAge       time.Duration `mapstructure:"fix_max_age"`
	FixTimeout      time.Duration `mapstructure:"fix_timeout"`
	Geocoder        string        `mapstructure:"geocoder"` // nominatim, static, none
	NominatimURL    string        `mapstructure:"nominatim_url"`
	UserAgent       string        `mapstructure:"user_agent"`
	Language        string        `mapstructure:"language"`
	GeocodeTimeout  time.Duration `mapstructure:"geocode_timeout"`
	GeocodeCacheTTL time.Duration `mapstructure:"geocode_cache_ttl"`
}

// TrackingConfig holds emergency tracking settings.
type TrackingConfig struct {
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

// BackendConfig points at the RapidAid backend API.
type BackendConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// MessagingConfig holds RabbitMQ settings. An empty URL disables publishing.
type MessagingConfig struct {
	URL      string `mapstructure:"url"`
	Exchange string `mapstructure:"exchange"`
}

// SampleConfig holds the offline fixture location.
type SampleConfig struct {
	FixturePath string `mapstructure:"fixture_path"`
}

// BootstrapConfig drives the test profile bootstrap routine.
type BootstrapConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Email       string `mapstructure:"email"`
	Password    string `mapstructure:"password"`
	CreateFirst bool   `mapstructure:"create_first"`
}

// Load reads configuration from files and environment variables.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/rapidaid")

	return load(v)
}

// LoadFile reads configuration from an explicit file path.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("RAPIDAID")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindLegacyEnv(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	mode, err := ResolveMode(cfg.Mode, cfg.Firebase.APIKey, legacySampleFlag())
	if err != nil {
		return nil, err
	}
	cfg.Mode = mode

	return &cfg, nil
}

// setDefaults configures default values for all settings.
func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", string(ModeAuto))

	// Server defaults
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8787)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:8081", "http://localhost:19006"})

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.filename", "")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_age", 28)
	v.SetDefault("log.max_backups", 3)

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "patient-service")
	v.SetDefault("telemetry.service_namespace", "rapidaid")
	v.SetDefault("telemetry.service_version", "1.0.0")
	v.SetDefault("telemetry.environment", "development")
	v.SetDefault("telemetry.otlp_endpoint", "localhost:4317")
	v.SetDefault("telemetry.traces_sampler", "always_on")
	v.SetDefault("telemetry.metrics_interval", "30s")

	// Firebase defaults
	v.SetDefault("firebase.api_key", "")
	v.SetDefault("firebase.project_id", "")
	v.SetDefault("firebase.credentials_file", "")
	v.SetDefault("firebase.identity_url", "https://identitytoolkit.googleapis.com/v1")
	v.SetDefault("firebase.token_url", "https://securetoken.googleapis.com/v1")
	v.SetDefault("firebase.verify_tokens", true)
	v.SetDefault("firebase.jwks_url", "https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com")

	// Store defaults
	v.SetDefault("store.driver", "firestore")
	v.SetDefault("store.collection", "patients")
	v.SetDefault("store.diagnostics_collection", "diagnostics")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "rapidaid")
	v.SetDefault("database.password", "rapidaid")
	v.SetDefault("database.name", "rapidaid")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")

	// Location defaults
	v.SetDefault("location.device", "push")
	v.SetDefault("location.static_latitude", 0.0)
	v.SetDefault("location.static_longitude", 0.0)
	v.SetDefault("location.geoip_database", "")
	v.SetDefault("location.geoip_address", "")
	v.SetDefault("location.geoip_interval", "1m")
	v.SetDefault("location.fix_max_age", "30s")
	v.SetDefault("location.fix_timeout", "15s")
	v.SetDefault("location.geocoder", "nominatim")
	v.SetDefault("location.nominatim_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("location.user_agent", "rapidaid-patient-service/1.0")
	v.SetDefault("location.language", "en")
	v.SetDefault("location.geocode_timeout", "10s")
	v.SetDefault("location.geocode_cache_ttl", "10m")

	v.SetDefault("tracking.refresh_interval", "30s")

	v.SetDefault("backend.url", "http://localhost:5000/api")
	v.SetDefault("backend.timeout", "15s")

	v.SetDefault("messaging.url", "")
	v.SetDefault("messaging.exchange", "rapidaid.patient")

	v.SetDefault("sample.fixture_path", "")

	// Bootstrap is off unless asked for
	v.SetDefault("bootstrap.enabled", false)
	v.SetDefault("bootstrap.email", "")
	v.SetDefault("bootstrap.password", "")
	v.SetDefault("bootstrap.create_first", false)
}

// bindLegacyEnv maps the mobile client's environment flags onto config keys.
func bindLegacyEnv(v *viper.Viper) {
	v.BindEnv("bootstrap.email", "RAPIDAID_BOOTSTRAP_EMAIL", "EXPO_PUBLIC_TEST_EMAIL")
	v.BindEnv("bootstrap.password", "RAPIDAID_BOOTSTRAP_PASSWORD", "EXPO_PUBLIC_TEST_PASSWORD")
	v.BindEnv("bootstrap.create_first", "RAPIDAID_BOOTSTRAP_CREATE_FIRST", "EXPO_PUBLIC_CREATE_TEST_USER")
	v.BindEnv("firebase.api_key", "RAPIDAID_FIREBASE_API_KEY", "EXPO_PUBLIC_FIREBASE_API_KEY")
	v.BindEnv("firebase.project_id", "RAPIDAID_FIREBASE_PROJECT_ID", "EXPO_PUBLIC_FIREBASE_PROJECT_ID")
	v.BindEnv("backend.url", "RAPIDAID_BACKEND_URL", "EXPO_PUBLIC_API_URL")
}

func legacySampleFlag() bool {
	for _, key := range []string{"USE_SAMPLE_DATA", "EXPO_PUBLIC_USE_SAMPLE_DATA", "VITE_USE_SAMPLE_DATA"} {
		if os.Getenv(key) == "true" {
			return true
		}
	}
	return false
}

// ResolveMode turns the configured mode into live or sample. Auto picks
// live only when an identity API key is present; the legacy sample flag
// forces sample unless live was asked for explicitly.
func ResolveMode(mode Mode, apiKey string, legacySample bool) (Mode, error) {
	switch Mode(strings.ToLower(string(mode))) {
	case ModeLive:
		if apiKey == "" {
			return "", fmt.Errorf("%w: live mode requires firebase.api_key", ErrInvalidConfig)
		}
		return ModeLive, nil
	case ModeSample:
		return ModeSample, nil
	case ModeAuto, "":
		if legacySample || apiKey == "" {
			return ModeSample, nil
		}
		return ModeLive, nil
	default:
		return "", fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, mode)
	}
}
