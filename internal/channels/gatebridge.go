package channels

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/faultline/faultline/internal/bus"
	"github.com/faultline/faultline/internal/gate"
)

// GateBridge wires the gate manager to the message bus. Armed gates become
// outbound prompts on one channel; inbound replies are parsed and delivered
// back to whichever gate is waiting.
type GateBridge struct {
	Bus    *bus.MessageBus
	Gates  *gate.Manager
	Parser *gate.Parser

	// Channel is where gate prompts are sent, e.g. "slack" or "cli".
	Channel string
}

// NewGateBridge creates a bridge publishing prompts on the named channel.
func NewGateBridge(messageBus *bus.MessageBus, gates *gate.Manager, parser *gate.Parser, channel string) *GateBridge {
	return &GateBridge{Bus: messageBus, Gates: gates, Parser: parser, Channel: channel}
}

// NotifyFunc returns the callback to install as gate.Manager.Notify. The
// publish blocks when the outbound buffer is full: a gate prompt nobody
// sees resolves to its safe default, so it must not be silently dropped.
func (g *GateBridge) NotifyFunc() func(req gate.Request, deadline time.Time) {
	return func(req gate.Request, deadline time.Time) {
		meta := map[string]string{
			bus.MetaKeyType: typeForKind(req.Kind),
			bus.MetaKeyGate: string(req.Kind),
		}
		for k, v := range req.Context {
			switch k {
			case bus.MetaKeyType, bus.MetaKeyGate, bus.MetaKeySession:
				continue
			}
			meta[k] = v
		}
		content := fmt.Sprintf("%s\n(reply within %s)",
			strings.TrimSpace(req.Prompt),
			time.Until(deadline).Round(time.Second))
		g.Bus.PublishOutbound(&bus.OutboundMessage{
			Channel:   g.Channel,
			SessionID: req.SessionID,
			Content:   content,
			Metadata:  meta,
		})
	}
}

// Route consumes inbound replies until the context is cancelled.
func (g *GateBridge) Route(ctx context.Context) {
	for {
		msg, err := g.Bus.ConsumeInbound(ctx)
		if err != nil {
			return
		}
		g.handle(ctx, msg)
	}
}

func (g *GateBridge) handle(ctx context.Context, msg *bus.InboundMessage) {
	sessionID := strings.TrimSpace(msg.SessionID)
	if sessionID == "" {
		slog.Warn("reply without a session, dropping", "channel", msg.Channel, "sender", msg.SenderID)
		return
	}
	kind := gate.Kind(msg.Metadata[bus.MetaKeyGate])
	if kind == "" {
		// Untagged reply: unambiguous only when a single gate is pending.
		if kinds := g.Gates.PendingKinds(sessionID); len(kinds) == 1 {
			kind = kinds[0]
		}
	}
	if kind == "" || !g.Gates.Pending(sessionID, kind) {
		slog.Warn("no pending gate for reply",
			"session_id", sessionID,
			"kind", kind,
			"channel", msg.Channel)
		return
	}
	res := g.Parser.Parse(ctx, msg.Content)
	if !g.Gates.Deliver(sessionID, kind, res) {
		slog.Warn("gate resolved before reply arrived", "session_id", sessionID, "kind", kind)
	}
}

func typeForKind(k gate.Kind) string {
	switch k {
	case gate.KindRepoConfirm:
		return bus.TypeRepoConfirm
	case gate.KindRepoMismatch:
		return bus.TypeRepoMismatch
	case gate.KindFixApproval:
		return bus.TypeFixProposal
	default:
		return bus.TypeQuestion
	}
}
