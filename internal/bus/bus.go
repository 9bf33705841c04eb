// Package bus provides the async message bus between notification
// channels and the orchestrator.
package bus

import (
	"context"
	"sync"
	"time"
)

// Well-known metadata keys and message type discriminators. The type tells
// a channel how to render a prompt without knowing gate internals.
const (
	MetaKeyType    = "type"
	MetaKeySession = "session_id"
	MetaKeyGate    = "gate"

	TypeRepoConfirm  = "repo_confirm"
	TypeRepoMismatch = "repo_mismatch"
	TypeFixProposal  = "fix_proposal"
	TypeQuestion     = "question"
	TypeNotice       = "notice"
)

// InboundMessage is a human reply travelling from a channel to the
// orchestrator, usually resolving a gate.
type InboundMessage struct {
	Channel   string            `json:"channel"`
	SenderID  string            `json:"sender_id"`
	SessionID string            `json:"session_id"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Type returns the metadata type discriminator, defaulting to a plain
// question reply.
func (m *InboundMessage) Type() string {
	if v := m.Metadata[MetaKeyType]; v != "" {
		return v
	}
	return TypeQuestion
}

// OutboundMessage is a prompt or notice travelling from the orchestrator
// to a channel.
type OutboundMessage struct {
	Channel   string            `json:"channel"`
	SessionID string            `json:"session_id"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Type returns the metadata type discriminator, defaulting to notice.
func (m *OutboundMessage) Type() string {
	if v := m.Metadata[MetaKeyType]; v != "" {
		return v
	}
	return TypeNotice
}

// MessageBus decouples channels from the orchestrator core.
type MessageBus struct {
	inbound  chan *InboundMessage
	outbound chan *OutboundMessage
	subs     map[string][]func(*OutboundMessage)
	mu       sync.RWMutex
}

// NewMessageBus creates a new message bus.
func NewMessageBus() *MessageBus {
	return &MessageBus{
		inbound:  make(chan *InboundMessage, 100),
		outbound: make(chan *OutboundMessage, 100),
		subs:     make(map[string][]func(*OutboundMessage)),
	}
}

// PublishInbound sends a reply from a channel to the orchestrator.
func (b *MessageBus) PublishInbound(msg *InboundMessage) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	b.inbound <- msg
}

// ConsumeInbound blocks until a reply is available or the context ends.
func (b *MessageBus) ConsumeInbound(ctx context.Context) (*InboundMessage, error) {
	select {
	case msg := <-b.inbound:
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// PublishOutbound sends a prompt or notice toward the channels.
func (b *MessageBus) PublishOutbound(msg *OutboundMessage) {
	b.outbound <- msg
}

// TryPublishOutbound sends without blocking and reports whether the
// message was accepted. Used by senders that must never stall on a full
// buffer.
func (b *MessageBus) TryPublishOutbound(msg *OutboundMessage) bool {
	select {
	case b.outbound <- msg:
		return true
	default:
		return false
	}
}

// Subscribe registers a callback for outbound messages to a specific
// channel. An empty channel name subscribes to everything.
func (b *MessageBus) Subscribe(channel string, callback func(*OutboundMessage)) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subs[channel] = append(b.subs[channel], callback)
}

// DispatchOutbound runs the outbound message dispatcher.
// This should be run as a goroutine.
func (b *MessageBus) DispatchOutbound(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-b.outbound:
			b.mu.RLock()
			callbacks := append([]func(*OutboundMessage){}, b.subs[msg.Channel]...)
			callbacks = append(callbacks, b.subs[""]...)
			b.mu.RUnlock()

			for _, cb := range callbacks {
				cb(msg)
			}
		}
	}
}

// InboundSize returns the number of pending inbound messages.
func (b *MessageBus) InboundSize() int {
	return len(b.inbound)
}

// OutboundSize returns the number of pending outbound messages.
func (b *MessageBus) OutboundSize() int {
	return len(b.outbound)
}
