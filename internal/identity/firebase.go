package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Default Firebase REST endpoints.
const (
	DefaultIdentityURL = "https://identitytoolkit.googleapis.com/v1"
	DefaultTokenURL    = "https://securetoken.googleapis.com/v1"
)

// FirebaseConfig configures the Firebase Authentication REST client.
type FirebaseConfig struct {
	APIKey      string
	IdentityURL string
	TokenURL    string
	Timeout     time.Duration
}

// FirebaseClient signs in against Firebase Authentication over its REST
// API and keeps the resulting session in memory.
type FirebaseClient struct {
	apiKey      string
	identityURL string
	tokenURL    string
	httpClient  *http.Client
	verifier    *Verifier
	logger      *zap.Logger
	notifier    *notifier
	now         func() time.Time

	mu   sync.RWMutex
	user *User
}

// NewFirebaseClient creates a client. verifier may be nil to skip local
// verification of returned ID tokens.
func NewFirebaseClient(cfg FirebaseConfig, verifier *Verifier, logger *zap.Logger) (*FirebaseClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("firebase api key is required")
	}
	if cfg.IdentityURL == "" {
		cfg.IdentityURL = DefaultIdentityURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultTokenURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FirebaseClient{
		apiKey:      cfg.APIKey,
		identityURL: strings.TrimSuffix(cfg.IdentityURL, "/"),
		tokenURL:    strings.TrimSuffix(cfg.TokenURL, "/"),
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		verifier:    verifier,
		logger:      logger,
		notifier:    newNotifier(),
		now:         time.Now,
	}, nil
}

type passwordRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

type passwordResponse struct {
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
}

type refreshResponse struct {
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    string `json:"expires_in"`
	UserID       string `json:"user_id"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *FirebaseClient) SignIn(ctx context.Context, email, password string) (*User, error) {
	return c.passwordCall(ctx, "accounts:signInWithPassword", email, password)
}

func (c *FirebaseClient) SignUp(ctx context.Context, email, password string) (*User, error) {
	return c.passwordCall(ctx, "accounts:signUp", email, password)
}

func (c *FirebaseClient) passwordCall(ctx context.Context, method, email, password string) (*User, error) {
	body, err := json.Marshal(passwordRequest{Email: email, Password: password, ReturnSecureToken: true})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s?key=%s", c.identityURL, method, url.QueryEscape(c.apiKey))
	var result passwordResponse
	if err := c.do(ctx, endpoint, "application/json", bytes.NewReader(body), &result); err != nil {
		c.logger.Warn("Identity request failed", zap.String("method", method), zap.Error(err))
		return nil, err
	}

	user := &User{
		UID:          result.LocalID,
		Email:        result.Email,
		IDToken:      result.IDToken,
		RefreshToken: result.RefreshToken,
		ExpiresAt:    c.expiry(result.ExpiresIn),
	}
	if err := c.verify(ctx, user); err != nil {
		return nil, err
	}

	c.setUser(user)
	c.logger.Info("Signed in", zap.String("uid", user.UID), zap.String("method", method))
	return copyUser(user), nil
}

func (c *FirebaseClient) SignOut(ctx context.Context) error {
	c.notifier.change(func() (*User, bool) {
		c.mu.Lock()
		defer c.mu.Unlock()
		had := c.user != nil
		c.user = nil
		return nil, had
	})
	return nil
}

func (c *FirebaseClient) Current() *User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return copyUser(c.user)
}

func (c *FirebaseClient) OnChange(fn func(*User)) func() {
	return c.notifier.subscribe(fn, c.Current)
}

// IDToken returns the current ID token, refreshing it when it is within a
// minute of expiry.
func (c *FirebaseClient) IDToken(ctx context.Context) (string, error) {
	c.mu.RLock()
	if c.user == nil {
		c.mu.RUnlock()
		return "", ErrNotSignedIn
	}
	if c.user.IDToken != "" && c.now().Before(c.user.ExpiresAt.Add(-time.Minute)) {
		token := c.user.IDToken
		c.mu.RUnlock()
		return token, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double check after acquiring write lock
	if c.user == nil {
		return "", ErrNotSignedIn
	}
	if c.user.IDToken != "" && c.now().Before(c.user.ExpiresAt.Add(-time.Minute)) {
		return c.user.IDToken, nil
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", c.user.RefreshToken)

	endpoint := fmt.Sprintf("%s/token?key=%s", c.tokenURL, url.QueryEscape(c.apiKey))
	var result refreshResponse
	if err := c.do(ctx, endpoint, "application/x-www-form-urlencoded", strings.NewReader(form.Encode()), &result); err != nil {
		c.logger.Warn("Token refresh failed", zap.String("uid", c.user.UID), zap.Error(err))
		return "", err
	}

	c.user.IDToken = result.IDToken
	c.user.RefreshToken = result.RefreshToken
	c.user.ExpiresAt = c.expiry(result.ExpiresIn)

	c.logger.Debug("Refreshed ID token", zap.String("uid", c.user.UID))
	return c.user.IDToken, nil
}

func (c *FirebaseClient) do(ctx context.Context, endpoint, contentType string, body io.Reader, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return mapFirebaseError(resp.StatusCode, raw)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode response: %v", ErrIdentityRequest, err)
	}
	return nil
}

func (c *FirebaseClient) verify(ctx context.Context, user *User) error {
	if c.verifier == nil {
		return nil
	}
	claims, err := c.verifier.Verify(ctx, user.IDToken)
	if err != nil {
		c.logger.Error("ID token verification failed", zap.Error(err))
		return fmt.Errorf("%w: %w", ErrIdentityRequest, err)
	}
	if claims.UID != user.UID {
		return fmt.Errorf("%w: token subject does not match account", ErrIdentityRequest)
	}
	return nil
}

func (c *FirebaseClient) setUser(u *User) {
	c.notifier.change(func() (*User, bool) {
		c.mu.Lock()
		defer c.mu.Unlock()
		changed := c.user == nil || c.user.UID != u.UID
		c.user = u
		return u, changed
	})
}

func (c *FirebaseClient) expiry(expiresIn string) time.Time {
	secs, err := strconv.Atoi(expiresIn)
	if err != nil || secs <= 0 {
		secs = 3600
	}
	return c.now().Add(time.Duration(secs) * time.Second)
}

// mapFirebaseError translates an error body such as
// {"error":{"message":"INVALID_PASSWORD"}} into a sentinel.
func mapFirebaseError(status int, raw []byte) error {
	var body errorResponse
	_ = json.Unmarshal(raw, &body)

	code := body.Error.Message
	if i := strings.Index(code, " "); i >= 0 {
		code = code[:i]
	}

	switch code {
	case "EMAIL_NOT_FOUND", "USER_NOT_FOUND":
		return ErrUserNotFound
	case "INVALID_PASSWORD", "INVALID_LOGIN_CREDENTIALS", "USER_DISABLED":
		return ErrInvalidCredentials
	case "EMAIL_EXISTS":
		return ErrEmailInUse
	case "WEAK_PASSWORD":
		return ErrWeakPassword
	case "INVALID_EMAIL", "MISSING_EMAIL":
		return ErrInvalidEmail
	case "TOO_MANY_ATTEMPTS_TRY_LATER":
		return ErrTooManyAttempts
	case "TOKEN_EXPIRED", "INVALID_REFRESH_TOKEN":
		return ErrNotSignedIn
	}
	if code == "" {
		return fmt.Errorf("%w: status %d", ErrIdentityRequest, status)
	}
	return fmt.Errorf("%w: status %d: %s", ErrIdentityRequest, status, code)
}

func copyUser(u *User) *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

var (
	_ Provider    = (*FirebaseClient)(nil)
	_ TokenSource = (*FirebaseClient)(nil)
)
