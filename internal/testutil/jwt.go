package testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// GenerateTestKeyPair generates an RSA key pair for testing JWT tokens
func GenerateTestKeyPair(t *testing.T) (*rsa.PrivateKey, *rsa.PublicKey) {
	t.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("Failed to generate RSA key: %v", err)
	}
	return privateKey, &privateKey.PublicKey
}

// FirebaseClaims returns the claims of a valid Firebase ID token for uid,
// issued for project and expiring in one hour.
func FirebaseClaims(project, uid string) jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"sub":   uid,
		"iss":   "https://securetoken.google.com/" + project,
		"aud":   project,
		"email": uid + "@rapidaid.dev",
		"exp":   now.Add(time.Hour).Unix(),
		"iat":   now.Unix(),
	}
}

// SignTestJWT signs claims with RS256 under the given key id.
func SignTestJWT(t *testing.T, privateKey *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid

	tokenString, err := token.SignedString(privateKey)
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return tokenString
}
