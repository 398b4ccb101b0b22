package broadcast

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHub_LatestWins(t *testing.T) {
	h := NewHub[int]()
	s := h.Subscribe()
	defer s.Close()

	h.Publish(1)
	h.Publish(2)
	h.Publish(3)

	assert.Equal(t, 3, <-s.C)
	select {
	case v := <-s.C:
		t.Fatalf("expected no pending value, got %d", v)
	default:
	}
}

func TestHub_MultipleSubscribers(t *testing.T) {
	h := NewHub[string]()
	a := h.Subscribe()
	b := h.Subscribe()
	assert.Equal(t, 2, h.Len())

	h.Publish("x")
	assert.Equal(t, "x", <-a.C)
	assert.Equal(t, "x", <-b.C)

	a.Close()
	a.Close()
	assert.Equal(t, 1, h.Len())
	_, ok := <-a.C
	assert.False(t, ok)
}

func TestHub_Close(t *testing.T) {
	h := NewHub[int]()
	s := h.Subscribe()
	h.Close()
	h.Close()

	_, ok := <-s.C
	assert.False(t, ok)
	s.Close()

	late := h.Subscribe()
	_, ok = <-late.C
	assert.False(t, ok)
	h.Publish(1)
	assert.Equal(t, 0, h.Len())
}
