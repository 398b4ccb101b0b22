package e2e

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap/zaptest"

	"github.com/Jayavarshini-Srinivasan/RapidAid-Dashboard/patient-service/internal/app"
	"github.com/Jayavarshini-Srinivasan/RapidAid-Dashboard/patient-service/internal/config"
	"github.com/Jayavarshini-Srinivasan/RapidAid-Dashboard/patient-service/internal/testutil"
)

// TestServer is a sample-mode patient core behind an httptest server.
type TestServer struct {
	Server *httptest.Server
	App    *app.App
}

// TestConfig returns a sample-mode configuration with a slow tracking loop.
func TestConfig() *config.Config {
	return &config.Config{
		Mode: config.ModeSample,
		Server: config.ServerConfig{
			AllowedOrigins: []string{"http://localhost:8081"},
		},
		Telemetry: config.TelemetryConfig{ServiceName: "patient-service"},
		Store: config.StoreConfig{
			Collection:            "patients",
			DiagnosticsCollection: "diagnostics",
		},
		Tracking: config.TrackingConfig{RefreshInterval: time.Hour},
	}
}

// SetupE2ETest builds and starts the app from cfg (TestConfig when nil).
func SetupE2ETest(t *testing.T, cfg *config.Config) *TestServer {
	t.Helper()
	if cfg == nil {
		cfg = TestConfig()
	}

	a, err := app.New(context.Background(), cfg, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Failed to build app: %v", err)
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start app: %v", err)
	}

	ts := &TestServer{Server: httptest.NewServer(a.Handler()), App: a}
	t.Cleanup(ts.Cleanup)
	return ts
}

// Cleanup closes the server and the app.
func (ts *TestServer) Cleanup() {
	ts.Server.Close()
	ts.App.Close()
}

// NewClient creates an HTTP test client for this server
func (ts *TestServer) NewClient() *testutil.HTTPTestClient {
	return testutil.NewHTTPTestClient(ts.Server.URL)
}

// Dial opens a WebSocket to path.
func (ts *TestServer) Dial(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.Server.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to dial %s: %v", path, err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}
