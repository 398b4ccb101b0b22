package messaging

import (
	"time"

	"github.com/google/uuid"
)

// ServiceName identifies this service in published events.
const ServiceName = "patient-service"

// Event routing keys as constants
const (
	EventProfileCreated  = "patient.profile_created"
	EventProfileUpdated  = "patient.profile_updated"
	EventLocationUpdated = "patient.location_updated"
	EventRegistered      = "patient.registered"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventType   string    `json:"event_type"`
	EventID     string    `json:"event_id"`
	Timestamp   time.Time `json:"timestamp"`
	ServiceName string    `json:"service_name"`
}

// ProfileEvent is published after a profile document is written.
type ProfileEvent struct {
	BaseEvent
	Data ProfileEventData `json:"data"`
}

type ProfileEventData struct {
	PatientID string   `json:"patient_id"`
	Email     string   `json:"email,omitempty"`
	Name      string   `json:"name,omitempty"`
	Fields    []string `json:"fields,omitempty"` // changed fields on update
}

// LocationEvent is published after the last-known location is stored.
type LocationEvent struct {
	BaseEvent
	Data LocationEventData `json:"data"`
}

type LocationEventData struct {
	PatientID string  `json:"patient_id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address"`
}

// RegisteredEvent is published once a new identity has been created.
type RegisteredEvent struct {
	BaseEvent
	Data RegisteredEventData `json:"data"`
}

type RegisteredEventData struct {
	PatientID       string `json:"patient_id"`
	Email           string `json:"email"`
	ProfileStored   bool   `json:"profile_stored"`
	BackendNotified bool   `json:"backend_notified"`
}

// NewBaseEvent creates a base event with common fields
func NewBaseEvent(eventType string) BaseEvent {
	return BaseEvent{
		EventType:   eventType,
		EventID:     uuid.NewString(),
		Timestamp:   time.Now().UTC(),
		ServiceName: ServiceName,
	}
}

// ID is used as the AMQP message id.
func (e BaseEvent) ID() string { return e.EventID }
