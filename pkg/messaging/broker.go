package messaging

import (
	"context"
)

// Broker defines the interface for the change-feed transport. Publish fans a
// payload out to every live subscriber of the channel; Subscribe returns a
// channel that is closed when ctx is cancelled.
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}
