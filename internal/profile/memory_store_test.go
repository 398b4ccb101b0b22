package profile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_SetGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.Get(ctx, "patients", "p1")
	assert.ErrorIs(t, err, ErrNotFound)

	tags := []string{"a"}
	require.NoError(t, s.Set(ctx, "patients", "p1", map[string]interface{}{"name": "Ana", "tags": tags}))
	tags[0] = "mutated"

	doc, err := s.Get(ctx, "patients", "p1")
	require.NoError(t, err)
	assert.Equal(t, "Ana", doc["name"])
	assert.Equal(t, []interface{}{"a"}, doc["tags"], "store keeps its own copy")

	doc["name"] = "changed"
	again, _ := s.Get(ctx, "patients", "p1")
	assert.Equal(t, "Ana", again["name"])
	assert.Equal(t, 1, s.Len("patients"))
	assert.Equal(t, 0, s.Len("diagnostics"))
}

func TestMemoryStore_UpdateRequiresDocument(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	err := s.Update(ctx, "patients", "p1", map[string]interface{}{"name": "Ana"})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, s.Len("patients"))

	require.NoError(t, s.Set(ctx, "patients", "p1", map[string]interface{}{"name": "Ana", "phone": "1"}))
	require.NoError(t, s.Update(ctx, "patients", "p1", map[string]interface{}{"phone": "2"}))

	doc, _ := s.Get(ctx, "patients", "p1")
	assert.Equal(t, "Ana", doc["name"])
	assert.Equal(t, "2", doc["phone"])
}

func TestMemoryStore_MergeUpserts(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Merge(ctx, "diagnostics", "p1", map[string]interface{}{"ok": true}))
	require.NoError(t, s.Merge(ctx, "diagnostics", "p1", map[string]interface{}{"n": 2}))

	doc, err := s.Get(ctx, "diagnostics", "p1")
	require.NoError(t, err)
	assert.Equal(t, true, doc["ok"])
	assert.Equal(t, float64(2), doc["n"])
}

func TestMemoryStore_ServerTimestamp(t *testing.T) {
	s := NewMemoryStore()
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return at }

	require.NoError(t, s.Set(context.Background(), "patients", "p1", map[string]interface{}{
		"createdAt": ServerTimestamp,
		"location":  map[string]interface{}{"timestamp": ServerTimestamp},
	}))

	doc, _ := s.Get(context.Background(), "patients", "p1")
	var out struct {
		CreatedAt time.Time `json:"createdAt"`
		Location  struct {
			Timestamp time.Time `json:"timestamp"`
		} `json:"location"`
	}
	require.NoError(t, decode(doc, &out))
	assert.True(t, at.Equal(out.CreatedAt))
	assert.True(t, at.Equal(out.Location.Timestamp))
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, s.Set(ctx, "patients", "p1", map[string]interface{}{}), context.Canceled)
	_, err := s.Get(ctx, "patients", "p1")
	assert.ErrorIs(t, err, context.Canceled)
}
