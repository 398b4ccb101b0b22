package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearLegacyEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"USE_SAMPLE_DATA", "EXPO_PUBLIC_USE_SAMPLE_DATA", "VITE_USE_SAMPLE_DATA",
		"EXPO_PUBLIC_FIREBASE_API_KEY", "RAPIDAID_FIREBASE_API_KEY", "RAPIDAID_MODE",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearLegacyEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ModeSample, cfg.Mode, "auto without api key resolves to sample")
	assert.Equal(t, "127.0.0.1:8787", cfg.Server.Addr())
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "patients", cfg.Store.Collection)
	assert.Equal(t, "diagnostics", cfg.Store.DiagnosticsCollection)
	assert.Equal(t, "push", cfg.Location.Device)
	assert.Equal(t, 10*time.Minute, cfg.Location.GeocodeCacheTTL)
	assert.Equal(t, 30*time.Second, cfg.Tracking.RefreshInterval)
	assert.False(t, cfg.Bootstrap.Enabled)
	assert.True(t, cfg.Firebase.VerifyTokens)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearLegacyEnv(t)
	t.Setenv("RAPIDAID_SERVER_PORT", "9999")
	t.Setenv("RAPIDAID_FIREBASE_API_KEY", "AIza-test")
	t.Setenv("RAPIDAID_TRACKING_REFRESH_INTERVAL", "5s")
	t.Setenv("EXPO_PUBLIC_TEST_EMAIL", "someone@rapidaid.dev")
	t.Setenv("EXPO_PUBLIC_CREATE_TEST_USER", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, ModeLive, cfg.Mode)
	assert.Equal(t, 5*time.Second, cfg.Tracking.RefreshInterval)
	assert.Equal(t, "someone@rapidaid.dev", cfg.Bootstrap.Email)
	assert.True(t, cfg.Bootstrap.CreateFirst)
}

func TestLoad_LegacySampleFlag(t *testing.T) {
	clearLegacyEnv(t)
	t.Setenv("RAPIDAID_FIREBASE_API_KEY", "AIza-test")
	t.Setenv("EXPO_PUBLIC_USE_SAMPLE_DATA", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ModeSample, cfg.Mode)
}

func TestLoadFile(t *testing.T) {
	clearLegacyEnv(t)
	path := filepath.Join(t.TempDir(), "patient.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode: live
firebase:
  api_key: AIza-file
  project_id: rapidaid-demo
store:
  driver: postgres
database:
  host: db.internal
  port: 6432
  name: patients
location:
  device: static
  static_latitude: 52.37
  static_longitude: 4.89
`), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, ModeLive, cfg.Mode)
	assert.Equal(t, "rapidaid-demo", cfg.Firebase.ProjectID)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "host=db.internal port=6432 user=rapidaid password=rapidaid dbname=patients sslmode=disable", cfg.Database.DSN())
	assert.Equal(t, 52.37, cfg.Location.StaticLatitude)
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestResolveMode(t *testing.T) {
	tests := []struct {
		mode         Mode
		apiKey       string
		legacySample bool
		want         Mode
		wantErr      bool
	}{
		{ModeAuto, "", false, ModeSample, false},
		{ModeAuto, "key", false, ModeLive, false},
		{ModeAuto, "key", true, ModeSample, false},
		{"", "key", false, ModeLive, false},
		{ModeSample, "key", false, ModeSample, false},
		{ModeLive, "key", true, ModeLive, false},
		{ModeLive, "", false, "", true},
		{"LIVE", "key", false, ModeLive, false},
		{"offline", "", false, "", true},
	}
	for _, tt := range tests {
		got, err := ResolveMode(tt.mode, tt.apiKey, tt.legacySample)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidConfig, "mode %q", tt.mode)
			continue
		}
		require.NoError(t, err, "mode %q", tt.mode)
		assert.Equal(t, tt.want, got, "mode %q key %q legacy %v", tt.mode, tt.apiKey, tt.legacySample)
	}
}
