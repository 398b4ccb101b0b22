package identity

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/Jayavarshini-Srinivasan/RapidAid-Dashboard/patient-service/internal/testutil"
)

const testProject = "rapidaid-test"

type staticKeys map[string]*rsa.PublicKey

func (s staticKeys) Key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if k, ok := s[kid]; ok {
		return k, nil
	}
	return nil, ErrKeyNotFound
}

func TestVerifier_Success(t *testing.T) {
	priv, pub := testutil.GenerateTestKeyPair(t)
	v := NewVerifier(testProject, staticKeys{"k1": pub})

	claims, err := v.Verify(context.Background(), testutil.SignTestJWT(t, priv, "k1", testutil.FirebaseClaims(testProject, "uid-1")))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if claims.UID != "uid-1" {
		t.Errorf("Expected UID 'uid-1', got '%s'", claims.UID)
	}
	if claims.Email != "uid-1@rapidaid.dev" {
		t.Errorf("Expected email 'uid-1@rapidaid.dev', got '%s'", claims.Email)
	}
	if claims.ExpiresAt.Before(time.Now()) {
		t.Errorf("Expected expiry in the future, got %v", claims.ExpiresAt)
	}
}

func TestVerifier_Rejections(t *testing.T) {
	priv, pub := testutil.GenerateTestKeyPair(t)
	other, _ := testutil.GenerateTestKeyPair(t)
	v := NewVerifier(testProject, staticKeys{"k1": pub})

	tests := []struct {
		name    string
		token   func() string
		wantErr error
	}{
		{"empty", func() string { return "  " }, ErrNoToken},
		{"garbage", func() string { return "not.a.jwt" }, ErrInvalidToken},
		{"unknown kid", func() string { return testutil.SignTestJWT(t, priv, "k2", testutil.FirebaseClaims(testProject, "u")) }, ErrInvalidToken},
		{"wrong key", func() string { return testutil.SignTestJWT(t, other, "k1", testutil.FirebaseClaims(testProject, "u")) }, ErrInvalidToken},
		{"wrong issuer", func() string {
			c := testutil.FirebaseClaims(testProject, "u")
			c["iss"] = "https://securetoken.google.com/other"
			return testutil.SignTestJWT(t, priv, "k1", c)
		}, ErrInvalidIssuer},
		{"wrong audience", func() string {
			c := testutil.FirebaseClaims(testProject, "u")
			c["aud"] = "other"
			return testutil.SignTestJWT(t, priv, "k1", c)
		}, ErrInvalidAudience},
		{"expired", func() string {
			c := testutil.FirebaseClaims(testProject, "u")
			c["exp"] = time.Now().Add(-time.Hour).Unix()
			return testutil.SignTestJWT(t, priv, "k1", c)
		}, ErrInvalidToken},
		{"missing sub", func() string {
			c := testutil.FirebaseClaims(testProject, "u")
			delete(c, "sub")
			return testutil.SignTestJWT(t, priv, "k1", c)
		}, ErrMissingSubject},
		{"hmac", func() string {
			tok := jwt.NewWithClaims(jwt.SigningMethodHS256, testutil.FirebaseClaims(testProject, "u"))
			tok.Header["kid"] = "k1"
			s, _ := tok.SignedString([]byte("secret"))
			return s
		}, ErrInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), tt.token())
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func jwksHandler(t *testing.T, kid string, pub *rsa.PublicKey, hits *int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		e := big.NewInt(int64(pub.E)).Bytes()
		json.NewEncoder(w).Encode(jwksJSON{Keys: []jwkKey{
			{Kty: "EC", Kid: "ignored"},
			{
				Kty: "RSA",
				Kid: kid,
				Alg: "RS256",
				N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				E:   base64.RawURLEncoding.EncodeToString(e),
			},
		}})
	}
}

func TestJWKS_LoadAndLookup(t *testing.T) {
	priv, pub := testutil.GenerateTestKeyPair(t)
	var hits int32
	server := httptest.NewServer(jwksHandler(t, "k1", pub, &hits))
	defer server.Close()

	jwks, err := NewJWKS(context.Background(), server.URL, time.Hour, nil)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	defer jwks.Close()

	key, err := jwks.Key(context.Background(), "k1")
	if err != nil {
		t.Fatalf("Expected key, got error: %v", err)
	}
	if key.N.Cmp(pub.N) != 0 || key.E != pub.E {
		t.Error("Loaded key does not match the served key")
	}
	if _, err := jwks.Key(context.Background(), "ignored"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Expected ErrKeyNotFound for non-RSA key, got %v", err)
	}
	// the miss above triggers exactly one refresh
	if got := atomic.LoadInt32(&hits); got != 2 {
		t.Errorf("Expected 2 fetches, got %d", got)
	}

	v := NewVerifier(testProject, jwks)
	if _, err := v.Verify(context.Background(), testutil.SignTestJWT(t, priv, "k1", testutil.FirebaseClaims(testProject, "uid-9"))); err != nil {
		t.Errorf("Expected token to verify against JWKS, got %v", err)
	}
	jwks.Close()
}

func TestJWKS_LoadFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	if _, err := NewJWKS(context.Background(), server.URL, 0, nil); err == nil {
		t.Fatal("Expected error for failing JWKS endpoint")
	}
}
