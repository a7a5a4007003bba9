// Package eventbus defines the port for publishing decision events to
// external subscribers.
package eventbus

import "context"

// Publisher sends a message to the given subject. Publishing is
// fire-and-forget relative to the decision response.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}
