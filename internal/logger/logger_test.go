package logger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DefaultLevel(t *testing.T) {
	l, err := New(Config{})
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(0)) // info
	assert.False(t, l.Core().Enabled(-1))
}

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	assert.Error(t, err)
}

func TestNew_WithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patient.log")
	l, err := New(Config{Level: "debug", Format: "console", Filename: path, MaxSize: 1})
	require.NoError(t, err)
	l.Debug("hello")
	_ = l.Sync() // stdout sync fails on some platforms
	assert.FileExists(t, path)
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
}
