package channels

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/faultline/faultline/internal/bus"
	"github.com/faultline/faultline/internal/gate"
)

func newTestBridge(t *testing.T, channel string) (*GateBridge, *bus.MessageBus, *gate.Manager) {
	t.Helper()
	b := bus.NewMessageBus()
	gates := gate.NewManager()
	return NewGateBridge(b, gates, &gate.Parser{}, channel), b, gates
}

func startRouting(t *testing.T, bridge *GateBridge) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		bridge.Route(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func waitForPending(t *testing.T, gates *gate.Manager, sessionID string, kind gate.Kind) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if gates.Pending(sessionID, kind) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("gate never armed")
}

func TestNotifyFuncPublishesPrompt(t *testing.T) {
	bridge, b, _ := newTestBridge(t, "cli")

	got := make(chan *bus.OutboundMessage, 1)
	b.Subscribe("cli", func(msg *bus.OutboundMessage) { got <- msg })
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		b.DispatchOutbound(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	bridge.NotifyFunc()(gate.Request{
		SessionID: "sess-1",
		Kind:      gate.KindRepoConfirm,
		Prompt:    "Confirm repository https://github.com/acme/checkout",
		Context:   map[string]string{"repo_url": "https://github.com/acme/checkout"},
	}, time.Now().Add(3*time.Minute))

	select {
	case msg := <-got:
		if msg.SessionID != "sess-1" {
			t.Errorf("SessionID = %q, want sess-1", msg.SessionID)
		}
		if msg.Type() != bus.TypeRepoConfirm {
			t.Errorf("type = %q, want %q", msg.Type(), bus.TypeRepoConfirm)
		}
		if msg.Metadata[bus.MetaKeyGate] != string(gate.KindRepoConfirm) {
			t.Errorf("gate metadata = %q", msg.Metadata[bus.MetaKeyGate])
		}
		if msg.Metadata["repo_url"] != "https://github.com/acme/checkout" {
			t.Error("request context not forwarded into metadata")
		}
		if !strings.Contains(msg.Content, "Confirm repository") {
			t.Errorf("content missing prompt: %q", msg.Content)
		}
		if !strings.Contains(msg.Content, "reply within") {
			t.Errorf("content missing deadline hint: %q", msg.Content)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no prompt published")
	}
}

func TestRouteResolvesPendingGate(t *testing.T) {
	bridge, b, gates := newTestBridge(t, "slack")
	startRouting(t, bridge)

	resCh := make(chan gate.Resolution, 1)
	go func() {
		res, err := gates.Wait(context.Background(), gate.Request{
			SessionID: "sess-1",
			Kind:      gate.KindFixApproval,
			Prompt:    "Apply the staged fix?",
			Timeout:   5 * time.Second,
		})
		if err != nil {
			t.Errorf("Wait: %v", err)
		}
		resCh <- res
	}()
	waitForPending(t, gates, "sess-1", gate.KindFixApproval)

	b.PublishInbound(&bus.InboundMessage{
		Channel:   "slack",
		SenderID:  "U1",
		SessionID: "sess-1",
		Content:   "approve",
		Metadata:  map[string]string{bus.MetaKeyGate: string(gate.KindFixApproval)},
	})

	select {
	case res := <-resCh:
		if res.Decision != gate.DecisionConfirm {
			t.Errorf("decision = %q, want %q", res.Decision, gate.DecisionConfirm)
		}
		if res.TimedOut {
			t.Error("resolution marked timed out")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("gate never resolved")
	}
}

func TestRouteInfersKindForUntaggedReply(t *testing.T) {
	bridge, b, gates := newTestBridge(t, "cli")
	startRouting(t, bridge)

	resCh := make(chan gate.Resolution, 1)
	go func() {
		res, err := gates.Wait(context.Background(), gate.Request{
			SessionID: "sess-2",
			Kind:      gate.KindRepoConfirm,
			Prompt:    "Confirm repository?",
			Timeout:   5 * time.Second,
		})
		if err != nil {
			t.Errorf("Wait: %v", err)
		}
		resCh <- res
	}()
	waitForPending(t, gates, "sess-2", gate.KindRepoConfirm)

	b.PublishInbound(&bus.InboundMessage{
		Channel:   "cli",
		SenderID:  "operator",
		SessionID: "sess-2",
		Content:   "skip",
	})

	select {
	case res := <-resCh:
		if res.Decision != gate.DecisionReject {
			t.Errorf("decision = %q, want %q", res.Decision, gate.DecisionReject)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("gate never resolved")
	}
}

func TestRouteDropsReplyWithoutPendingGate(t *testing.T) {
	bridge, b, _ := newTestBridge(t, "cli")
	startRouting(t, bridge)

	b.PublishInbound(&bus.InboundMessage{Channel: "cli", SessionID: "sess-9", Content: "yes"})
	b.PublishInbound(&bus.InboundMessage{Channel: "cli", Content: "yes"})

	deadline := time.Now().Add(time.Second)
	for b.InboundSize() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n := b.InboundSize(); n != 0 {
		t.Fatalf("inbound size = %d, want 0", n)
	}
}

func TestTypeForKind(t *testing.T) {
	cases := map[gate.Kind]string{
		gate.KindRepoConfirm:  bus.TypeRepoConfirm,
		gate.KindRepoMismatch: bus.TypeRepoMismatch,
		gate.KindFixApproval:  bus.TypeFixProposal,
		gate.KindQuestion:     bus.TypeQuestion,
	}
	for kind, want := range cases {
		if got := typeForKind(kind); got != want {
			t.Errorf("typeForKind(%s) = %q, want %q", kind, got, want)
		}
	}
}
