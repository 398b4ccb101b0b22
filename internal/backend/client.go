// Package backend calls the RapidAid backend API on behalf of the patient.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Jayavarshini-Srinivasan/RapidAid-Dashboard/patient-service/internal/identity"
)

var ErrBackendRequest = errors.New("backend request failed")

// RolePatient is the role sent with every registration from this service.
const RolePatient = "patient"

// Registration is the body of POST /auth/register.
type Registration struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Age      string `json:"age,omitempty"`
	Role     string `json:"role"`
}

// Registrar notifies the backend of a new patient account.
type Registrar interface {
	Register(ctx context.Context, r Registration) error
}

// Client talks to the backend REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     identity.TokenSource
	logger     *zap.Logger
}

// NewClient creates a client for baseURL (e.g. http://localhost:5000/api).
// tokens may be nil; when set its ID token is sent as a bearer token.
func NewClient(baseURL string, timeout time.Duration, tokens identity.TokenSource, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		tokens:     tokens,
		logger:     logger,
	}
}

// Register posts the registration. The role is always RolePatient.
func (c *Client) Register(ctx context.Context, r Registration) error {
	r.Role = RolePatient
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal registration: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/register", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.tokens != nil {
		if token, err := c.tokens.IDToken(ctx); err == nil && token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Error("Backend registration failed",
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(raw)),
		)
		return fmt.Errorf("%w: status %d", ErrBackendRequest, resp.StatusCode)
	}
	return nil
}

// Noop accepts every registration. It backs sample mode.
type Noop struct{}

func (Noop) Register(ctx context.Context, r Registration) error { return nil }

var (
	_ Registrar = (*Client)(nil)
	_ Registrar = Noop{}
)
