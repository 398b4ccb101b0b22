package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTokens struct {
	token string
	err   error
}

func (s staticTokens) IDToken(ctx context.Context) (string, error) { return s.token, s.err }

func TestRegister(t *testing.T) {
	var got map[string]interface{}
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/auth/register", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	c := NewClient(server.URL+"/api/", time.Second, staticTokens{token: "id-1"}, nil)
	err := c.Register(context.Background(), Registration{
		Email:    "ana@rapidaid.dev",
		Password: "secret1",
		Name:     "Ana",
		Role:     "admin",
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer id-1", auth)
	assert.Equal(t, "ana@rapidaid.dev", got["email"])
	assert.Equal(t, "secret1", got["password"])
	assert.Equal(t, "Ana", got["name"])
	assert.Equal(t, "patient", got["role"], "role is always patient")
	assert.NotContains(t, got, "phone")
}

func TestRegister_WithoutToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	for _, tokens := range []staticTokens{{}, {err: errors.New("signed out")}} {
		c := NewClient(server.URL, 0, tokens, nil)
		assert.NoError(t, c.Register(context.Background(), Registration{Email: "a@b.c"}))
	}
	assert.NoError(t, NewClient(server.URL, 0, nil, nil).Register(context.Background(), Registration{}))
}

func TestRegister_Failures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"message":"exists"}`))
	}))
	defer server.Close()

	err := NewClient(server.URL, 0, nil, nil).Register(context.Background(), Registration{})
	assert.ErrorIs(t, err, ErrBackendRequest)
	assert.Contains(t, err.Error(), "409")

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := down.URL
	down.Close()
	err = NewClient(url, time.Second, nil, nil).Register(context.Background(), Registration{})
	assert.ErrorIs(t, err, ErrBackendRequest)
}

func TestNoop(t *testing.T) {
	assert.NoError(t, Noop{}.Register(context.Background(), Registration{}))
}
