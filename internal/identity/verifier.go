package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var (
	ErrNoToken         = errors.New("no token provided")
	ErrInvalidToken    = errors.New("invalid token")
	ErrInvalidIssuer   = errors.New("invalid issuer")
	ErrInvalidAudience = errors.New("invalid audience")
	ErrMissingSubject  = errors.New("missing sub claim")
)

// Claims holds identity extracted from a validated ID token.
type Claims struct {
	UID       string
	Email     string
	ExpiresAt time.Time
	Raw       jwt.MapClaims
}

// Verifier validates Firebase ID tokens: RS256 signature, issuer,
// audience, expiry and subject.
type Verifier struct {
	issuer   string
	audience string
	keys     KeySource
}

// NewVerifier creates a verifier for tokens issued to projectID.
func NewVerifier(projectID string, keys KeySource) *Verifier {
	return &Verifier{
		issuer:   "https://securetoken.google.com/" + projectID,
		audience: projectID,
		keys:     keys,
	}
}

// Verify parses and validates tokenString.
func (v *Verifier) Verify(ctx context.Context, tokenString string) (*Claims, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return nil, ErrNoToken
	}

	parsed, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, ErrInvalidToken
		}
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, ErrInvalidToken
		}
		return v.keys.Key(ctx, kid)
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	if iss, _ := claims["iss"].(string); iss != v.issuer {
		return nil, ErrInvalidIssuer
	}
	if !claims.VerifyAudience(v.audience, true) {
		return nil, ErrInvalidAudience
	}
	if !claims.VerifyExpiresAt(jwt.TimeFunc().Unix(), true) {
		return nil, ErrInvalidToken
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, ErrMissingSubject
	}

	email, _ := claims["email"].(string)
	var exp time.Time
	if f, ok := claims["exp"].(float64); ok {
		exp = time.Unix(int64(f), 0)
	}

	return &Claims{UID: sub, Email: email, ExpiresAt: exp, Raw: claims}, nil
}
