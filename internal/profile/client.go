package profile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Jayavarshini-Srinivasan/RapidAid-Dashboard/patient-service/internal/location"
	"github.com/Jayavarshini-Srinivasan/RapidAid-Dashboard/patient-service/internal/messaging"
)

// MetricsRecorder records profile store operations.
type MetricsRecorder interface {
	RecordProfileOperation(ctx context.Context, op string, ok bool, durationMs float64)
}

// Client reads and writes patient profiles in a document store. Store
// failures are logged and returned wrapped; nothing is retried.
type Client struct {
	store       DocumentStore
	collection  string
	diagnostics string
	publisher   messaging.PublisherInterface
	metrics     MetricsRecorder
	logger      *zap.Logger
	tracer      trace.Tracer
}

func NewClient(store DocumentStore, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		store:       store,
		collection:  DefaultCollection,
		diagnostics: DefaultDiagnosticsCollection,
		logger:      logger,
		tracer:      otel.Tracer("patient-service/profile"),
	}
}

// WithCollections overrides the profile and diagnostics collection names.
// Empty values keep the defaults.
func (c *Client) WithCollections(profiles, diagnostics string) *Client {
	if profiles != "" {
		c.collection = profiles
	}
	if diagnostics != "" {
		c.diagnostics = diagnostics
	}
	return c
}

// WithPublisher enables lifecycle events.
func (c *Client) WithPublisher(p messaging.PublisherInterface) *Client {
	c.publisher = p
	return c
}

// WithMetrics attaches a metrics recorder.
func (c *Client) WithMetrics(m MetricsRecorder) *Client {
	c.metrics = m
	return c
}

// CreateProfile writes a full profile document, replacing any existing one.
func (c *Client) CreateProfile(ctx context.Context, id string, f Fields) (p *Profile, err error) {
	ctx, done := c.begin(ctx, "CreateProfile", id)
	defer func() { done(err) }()

	if id == "" {
		return nil, ErrMissingID
	}

	if err := c.store.Set(ctx, c.collection, id, fullDocument(id, f)); err != nil {
		c.logger.Error("Error creating user profile", zap.String("patient_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}

	// timestamps are assigned by the store
	p, err = c.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("failed to create profile: %w", ErrNotFound)
	}

	c.publish(ctx, messaging.EventProfileCreated, messaging.ProfileEvent{
		BaseEvent: messaging.NewBaseEvent(messaging.EventProfileCreated),
		Data:      messaging.ProfileEventData{PatientID: id, Email: f.Email, Name: f.Name},
	})
	return p, nil
}

// GetProfile returns the profile, or nil when none exists.
func (c *Client) GetProfile(ctx context.Context, id string) (p *Profile, err error) {
	ctx, done := c.begin(ctx, "GetProfile", id)
	defer func() { done(err) }()

	if id == "" {
		return nil, ErrMissingID
	}
	return c.get(ctx, id)
}

func (c *Client) get(ctx context.Context, id string) (*Profile, error) {
	doc, err := c.store.Get(ctx, c.collection, id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		c.logger.Error("Error getting user profile", zap.String("patient_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	var p Profile
	if err := decode(doc, &p); err != nil {
		c.logger.Error("Error decoding user profile", zap.String("patient_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}
	if p.ID == "" {
		p.ID = id
	}
	return &p, nil
}

// UpdateProfile merges u into the profile and returns the stored result.
// When no profile exists it performs the same full write as CreateProfile
// with u's fields.
func (c *Client) UpdateProfile(ctx context.Context, id string, u Update) (p *Profile, err error) {
	ctx, done := c.begin(ctx, "UpdateProfile", id)
	defer func() { done(err) }()

	if id == "" {
		return nil, ErrMissingID
	}

	existing, err := c.get(ctx, id)
	if err != nil {
		return nil, err
	}

	patch := u.patch()
	if existing == nil {
		err = c.store.Set(ctx, c.collection, id, fullDocument(id, u.Fields()))
	} else {
		fields := make(map[string]interface{}, len(patch)+1)
		for k, v := range patch {
			fields[k] = v
		}
		fields["updatedAt"] = ServerTimestamp
		err = c.store.Update(ctx, c.collection, id, fields)
		if errors.Is(err, ErrNotFound) {
			err = c.store.Set(ctx, c.collection, id, fullDocument(id, u.Fields()))
		}
	}
	if err != nil {
		c.logger.Error("Error updating user profile", zap.String("patient_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	p, err = c.get(ctx, id)
	if err != nil {
		return nil, err
	}

	eventType := messaging.EventProfileUpdated
	if existing == nil {
		eventType = messaging.EventProfileCreated
	}
	c.publish(ctx, eventType, messaging.ProfileEvent{
		BaseEvent: messaging.NewBaseEvent(eventType),
		Data:      messaging.ProfileEventData{PatientID: id, Fields: fieldNames(patch)},
	})
	return p, nil
}

// UpdateLocation stores s as the last-known location. The stored timestamp
// is the write time. The profile must exist.
func (c *Client) UpdateLocation(ctx context.Context, id string, s location.Sample) (err error) {
	ctx, done := c.begin(ctx, "UpdateLocation", id)
	defer func() { done(err) }()

	if id == "" {
		return ErrMissingID
	}

	err = c.store.Update(ctx, c.collection, id, map[string]interface{}{
		"location": map[string]interface{}{
			"latitude":  s.Latitude,
			"longitude": s.Longitude,
			"address":   s.Address,
			"timestamp": ServerTimestamp,
		},
		"updatedAt": ServerTimestamp,
	})
	if err != nil {
		c.logger.Error("Error updating user location", zap.String("patient_id", id), zap.Error(err))
		return fmt.Errorf("failed to update location: %w", err)
	}

	c.publish(ctx, messaging.EventLocationUpdated, messaging.LocationEvent{
		BaseEvent: messaging.NewBaseEvent(messaging.EventLocationUpdated),
		Data: messaging.LocationEventData{
			PatientID: id,
			Latitude:  s.Latitude,
			Longitude: s.Longitude,
			Address:   s.Address,
		},
	})
	return nil
}

// AddMedicalData replaces the medical section of an existing profile.
func (c *Client) AddMedicalData(ctx context.Context, id string, m MedicalData) (err error) {
	ctx, done := c.begin(ctx, "AddMedicalData", id)
	defer func() { done(err) }()

	if id == "" {
		return ErrMissingID
	}

	fields := map[string]interface{}{
		"bloodType":        m.BloodType,
		"allergies":        list(m.Allergies),
		"conditions":       list(m.Conditions),
		"medications":      list(m.Medications),
		"emergencyContact": m.EmergencyContact,
		"emergencyPhone":   m.EmergencyPhone,
		"updatedAt":        ServerTimestamp,
	}
	if err := c.store.Update(ctx, c.collection, id, fields); err != nil {
		c.logger.Error("Error adding medical data", zap.String("patient_id", id), zap.Error(err))
		return fmt.Errorf("failed to add medical data: %w", err)
	}

	c.publish(ctx, messaging.EventProfileUpdated, messaging.ProfileEvent{
		BaseEvent: messaging.NewBaseEvent(messaging.EventProfileUpdated),
		Data: messaging.ProfileEventData{PatientID: id, Fields: []string{
			"bloodType", "allergies", "conditions", "medications", "emergencyContact", "emergencyPhone",
		}},
	})
	return nil
}

// Diagnose writes a probe document for id and reads it back. A nil result
// with a nil error means the write was not visible.
func (c *Client) Diagnose(ctx context.Context, id string) (d *Diagnostics, err error) {
	ctx, done := c.begin(ctx, "Diagnose", id)
	defer func() { done(err) }()

	if id == "" {
		return nil, ErrMissingID
	}

	if err := c.store.Merge(ctx, c.diagnostics, id, map[string]interface{}{
		"ts": ServerTimestamp,
		"ok": true,
	}); err != nil {
		c.logger.Error("Diagnostics probe error", zap.String("patient_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to write diagnostics: %w", err)
	}

	doc, err := c.store.Get(ctx, c.diagnostics, id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		c.logger.Error("Diagnostics probe error", zap.String("patient_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to read diagnostics: %w", err)
	}

	var diag Diagnostics
	if err := decode(doc, &diag); err != nil {
		return nil, fmt.Errorf("failed to decode diagnostics: %w", err)
	}
	c.logger.Info("Diagnostics doc read", zap.String("patient_id", id), zap.Bool("ok", diag.OK))
	return &diag, nil
}

// begin starts a span for op and returns a func that ends it and records
// the outcome.
func (c *Client) begin(ctx context.Context, op, id string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := c.tracer.Start(ctx, "profile."+op,
		trace.WithAttributes(attribute.String("patient.id", id)))

	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, err.Error())
		}
		span.End()
		if c.metrics != nil {
			c.metrics.RecordProfileOperation(ctx, op, err == nil, float64(time.Since(start).Milliseconds()))
		}
	}
}

func (c *Client) publish(ctx context.Context, routingKey string, event interface{}) {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.Publish(ctx, routingKey, event); err != nil {
		c.logger.Warn("Failed to publish profile event", zap.String("routing_key", routingKey), zap.Error(err))
	}
}

func fullDocument(id string, f Fields) map[string]interface{} {
	return map[string]interface{}{
		"id":               id,
		"email":            f.Email,
		"name":             f.Name,
		"phone":            f.Phone,
		"age":              f.Age,
		"bloodType":        f.BloodType,
		"emergencyContact": f.EmergencyContact,
		"emergencyPhone":   f.EmergencyPhone,
		"allergies":        list(f.Allergies),
		"conditions":       list(f.Conditions),
		"medications":      list(f.Medications),
		"location":         locationDoc(f.Location),
		"createdAt":        ServerTimestamp,
		"updatedAt":        ServerTimestamp,
	}
}
