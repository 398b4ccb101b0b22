package testutil

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/Jayavarshini-Srinivasan/RapidAid-Dashboard/patient-service/internal/messaging"
)

// PublishedEvent is one event captured by MockPublisher.
type PublishedEvent struct {
	RoutingKey string
	RawJSON    []byte
}

// MockPublisher records published events in memory. Setting Err makes every
// Publish fail after recording nothing.
type MockPublisher struct {
	mu     sync.RWMutex
	events []PublishedEvent
	Err    error
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) Publish(ctx context.Context, routingKey string, eventData interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	raw, err := json.Marshal(eventData)
	if err != nil {
		return err
	}
	m.events = append(m.events, PublishedEvent{RoutingKey: routingKey, RawJSON: raw})
	return nil
}

func (m *MockPublisher) Close() error { return nil }

// RoutingKeys returns the routing keys in publish order.
func (m *MockPublisher) RoutingKeys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, len(m.events))
	for i, e := range m.events {
		keys[i] = e.RoutingKey
	}
	return keys
}

// Last decodes the most recent event with routingKey into dst.
func (m *MockPublisher) Last(t *testing.T, routingKey string, dst interface{}) {
	t.Helper()
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := len(m.events) - 1; i >= 0; i-- {
		if m.events[i].RoutingKey == routingKey {
			if err := json.Unmarshal(m.events[i].RawJSON, dst); err != nil {
				t.Fatalf("failed to decode %s event: %v", routingKey, err)
			}
			return
		}
	}
	t.Fatalf("no %s event published", routingKey)
}

// AssertEventCount asserts the number of events with routingKey.
func (m *MockPublisher) AssertEventCount(t *testing.T, routingKey string, expected int) {
	t.Helper()
	count := 0
	for _, k := range m.RoutingKeys() {
		if k == routingKey {
			count++
		}
	}
	if count != expected {
		t.Errorf("Expected %d events with routing key '%s', got %d", expected, routingKey, count)
	}
}

var _ messaging.PublisherInterface = (*MockPublisher)(nil)
