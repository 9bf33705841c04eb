package notify

import (
	"context"
	"testing"
	"time"

	"github.com/faultline/faultline/internal/bus"
)

func TestEmitDeliversNotice(t *testing.T) {
	b := bus.NewMessageBus()
	got := make(chan *bus.OutboundMessage, 1)
	b.Subscribe("cli", func(m *bus.OutboundMessage) { got <- m })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = b.DispatchOutbound(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	sink := NewSink(b, "cli")
	sink.Emit("supervisor", "diagnosis", "diagnosis complete (confidence 80)", map[string]string{
		"session_id": "sess-1",
		"service":    "checkout-api",
	})

	select {
	case m := <-got:
		if m.SessionID != "sess-1" {
			t.Errorf("session = %q, want sess-1", m.SessionID)
		}
		if m.Type() != bus.TypeNotice {
			t.Errorf("type = %q, want notice", m.Type())
		}
		if m.Metadata["kind"] != "diagnosis" || m.Metadata["source"] != "supervisor" {
			t.Errorf("metadata = %v", m.Metadata)
		}
		if m.Metadata["service"] != "checkout-api" {
			t.Errorf("expected detail keys to be forwarded, got %v", m.Metadata)
		}
		if m.Metadata["session_id"] != "" {
			t.Errorf("session id must ride the message field, not metadata")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("notice never delivered")
	}
}

func TestEmitRetriesOnceWhenBusFull(t *testing.T) {
	b := bus.NewMessageBus()
	for b.TryPublishOutbound(&bus.OutboundMessage{Content: "fill"}) {
	}

	sink := NewSink(b, "")
	sink.RetryAfter = 10 * time.Millisecond
	sink.Emit("supervisor", "task.failed", "log_analysis: boom", nil)

	got := make(chan string, 200)
	b.Subscribe("", func(m *bus.OutboundMessage) { got <- m.Content })
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = b.DispatchOutbound(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case v := <-got:
			if v == "log_analysis: boom" {
				return
			}
		case <-deadline:
			t.Fatal("retried notice never delivered")
		}
	}
}

func TestEmitDropsWhenRetryFails(t *testing.T) {
	b := bus.NewMessageBus()
	for b.TryPublishOutbound(&bus.OutboundMessage{Content: "fill"}) {
	}
	full := b.OutboundSize()

	sink := NewSink(b, "")
	sink.RetryAfter = 2 * time.Millisecond
	sink.Emit("supervisor", "task.failed", "dropped notice", nil)

	// Nothing drains the bus, so the retry must also fail and give up.
	time.Sleep(50 * time.Millisecond)
	if b.OutboundSize() != full {
		t.Fatalf("outbound size = %d, want %d", b.OutboundSize(), full)
	}
}

func TestEmitWithoutBusIsANop(t *testing.T) {
	var sink Sink
	sink.Emit("supervisor", "diagnosis", "no bus attached", nil)
}
