// Package channels connects external messaging platforms to the agents.
// A channel turns platform messages into viewer chat and relays the
// agents' outgoing chat lines back out.
package channels

import (
	"context"
)

// Channel is a messaging platform integration.
type Channel interface {
	// Name returns the unique name of the channel (e.g., "telegram").
	Name() string

	// Start begins listening for messages. It blocks until the context is
	// canceled or a fatal error occurs.
	Start(ctx context.Context) error
}

// ChatSink receives viewer messages routed from a channel. Implemented
// by the per-agent brains.
type ChatSink interface {
	QueueChat(from, text string, paid bool)
}
