// Package notify forwards investigation progress onto the message bus so
// attached channels can show it to humans.
package notify

import (
	"log/slog"
	"time"

	"github.com/faultline/faultline/internal/bus"
)

const defaultRetryAfter = 100 * time.Millisecond

// Sink turns supervisor notifications into outbound bus notices. It
// satisfies the supervisor's Notifier interface.
type Sink struct {
	Bus     *bus.MessageBus
	Channel string // target channel, empty broadcasts to every subscriber

	// RetryAfter is the pause before the single redelivery attempt when
	// the outbound buffer is full.
	RetryAfter time.Duration
}

func NewSink(b *bus.MessageBus, channel string) *Sink {
	return &Sink{Bus: b, Channel: channel, RetryAfter: defaultRetryAfter}
}

// Emit publishes a notice without blocking the caller. A full outbound
// buffer gets one delayed retry, then the notice is dropped.
func (s *Sink) Emit(source, kind, message string, details map[string]string) {
	if s.Bus == nil {
		return
	}
	meta := map[string]string{
		bus.MetaKeyType: bus.TypeNotice,
		"source":        source,
		"kind":          kind,
	}
	for k, v := range details {
		if k == bus.MetaKeySession {
			continue
		}
		if _, reserved := meta[k]; !reserved {
			meta[k] = v
		}
	}
	msg := &bus.OutboundMessage{
		Channel:   s.Channel,
		SessionID: details[bus.MetaKeySession],
		Content:   message,
		Metadata:  meta,
	}
	if s.Bus.TryPublishOutbound(msg) {
		return
	}
	go func() {
		time.Sleep(s.retryAfter())
		if !s.Bus.TryPublishOutbound(msg) {
			slog.Warn("notification dropped", "kind", kind, "session", msg.SessionID)
		}
	}()
}

func (s *Sink) retryAfter() time.Duration {
	if s.RetryAfter > 0 {
		return s.RetryAfter
	}
	return defaultRetryAfter
}
