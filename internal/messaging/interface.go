package messaging

import "context"

// PublisherInterface is what the profile client and session manager publish
// through. A nil PublisherInterface disables events.
type PublisherInterface interface {
	Publish(ctx context.Context, routingKey string, eventData interface{}) error
	Close() error
}

var _ PublisherInterface = (*Publisher)(nil)
