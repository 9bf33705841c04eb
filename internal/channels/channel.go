// Package channels connects the orchestrator to the surfaces an operator
// actually watches. Every transport renders outbound notices and gate
// prompts and feeds replies back through the message bus; the gate bridge
// turns those replies into resolutions for suspended investigations.
package channels

import (
	"context"

	"github.com/faultline/faultline/internal/bus"
)

// Channel defines the interface for operator transports (CLI, Slack).
type Channel interface {
	// Name returns the channel name (e.g. "slack").
	Name() string
	// Start starts the channel listener.
	Start(ctx context.Context) error
	// Stop stops the channel listener.
	Stop() error
	// Send delivers a message to the operator surface.
	Send(ctx context.Context, msg *bus.OutboundMessage) error
}

// BaseChannel provides common functionality for channels.
type BaseChannel struct {
	Bus *bus.MessageBus
}

// gateRef remembers which session and gate a delivered prompt belongs to
// so a later reply can be routed back without the operator naming either.
type gateRef struct {
	SessionID string
	Gate      string
}
