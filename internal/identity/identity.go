// Package identity signs patients in and tracks the current identity.
package identity

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailInUse         = errors.New("email already in use")
	ErrWeakPassword       = errors.New("password is too weak")
	ErrInvalidEmail       = errors.New("invalid email")
	ErrTooManyAttempts    = errors.New("too many attempts, try again later")
	ErrNetwork            = errors.New("network error")
	ErrNotSignedIn        = errors.New("not signed in")
	ErrIdentityRequest    = errors.New("identity request failed")
)

// User is a signed-in identity.
type User struct {
	UID          string    `json:"uid"`
	Email        string    `json:"email"`
	IDToken      string    `json:"-"`
	RefreshToken string    `json:"-"`
	ExpiresAt    time.Time `json:"-"`
}

// LocalPart returns the part of the email before '@'.
func (u *User) LocalPart() string {
	if u == nil {
		return ""
	}
	local, _, _ := strings.Cut(u.Email, "@")
	return local
}

// Provider is an identity backend holding at most one signed-in user.
type Provider interface {
	SignIn(ctx context.Context, email, password string) (*User, error)
	SignUp(ctx context.Context, email, password string) (*User, error)
	SignOut(ctx context.Context) error
	// Current returns the signed-in user or nil.
	Current() *User
	// OnChange registers fn for identity changes. fn is first called with
	// the current identity, then once per change, in order and never
	// concurrently with itself. The returned func unsubscribes.
	OnChange(fn func(*User)) (unsubscribe func())
}

// TokenSource yields a valid ID token for outbound calls.
type TokenSource interface {
	IDToken(ctx context.Context) (string, error)
}

type ctxKey string

const userKey ctxKey = "identity_user"

// WithUser returns a copy of ctx carrying u.
func WithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

// UserFromContext returns the user stored by WithUser.
func UserFromContext(ctx context.Context) (*User, bool) {
	u, ok := ctx.Value(userKey).(*User)
	return u, ok && u != nil
}
