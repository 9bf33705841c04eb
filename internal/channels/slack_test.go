package channels

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/faultline/faultline/internal/bus"
	"github.com/faultline/faultline/internal/config"
)

func newTestSlack(t *testing.T, cfg config.SlackConfig) (*SlackChannel, *bus.MessageBus) {
	t.Helper()
	b := bus.NewMessageBus()
	return NewSlackChannel(cfg, b), b
}

func recvInbound(t *testing.T, b *bus.MessageBus) *bus.InboundMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	msg, err := b.ConsumeInbound(ctx)
	if err != nil {
		t.Fatalf("ConsumeInbound: %v", err)
	}
	return msg
}

func TestSlackThreadReplyRoutesToSession(t *testing.T) {
	c, b := newTestSlack(t, config.SlackConfig{ChannelID: "C42"})
	c.track("171.001", gateRef{SessionID: "sess-1", Gate: "fix_approval"})

	c.handleReply("U1", "C42", "171.001", "approve")

	msg := recvInbound(t, b)
	if msg.Channel != "slack" {
		t.Errorf("channel = %q, want slack", msg.Channel)
	}
	if msg.SessionID != "sess-1" {
		t.Errorf("SessionID = %q, want sess-1", msg.SessionID)
	}
	if msg.Metadata[bus.MetaKeyGate] != "fix_approval" {
		t.Errorf("gate metadata = %q, want fix_approval", msg.Metadata[bus.MetaKeyGate])
	}
	if msg.Content != "approve" {
		t.Errorf("content = %q, want approve", msg.Content)
	}
}

func TestSlackTopLevelReplyAnswersLatestPrompt(t *testing.T) {
	c, b := newTestSlack(t, config.SlackConfig{ChannelID: "C42"})
	c.track("171.001", gateRef{SessionID: "sess-1", Gate: "repo_confirm"})
	c.track("171.002", gateRef{SessionID: "sess-2", Gate: "fix_approval"})

	c.handleReply("U1", "C42", "", "yes")

	msg := recvInbound(t, b)
	if msg.SessionID != "sess-2" {
		t.Errorf("SessionID = %q, want sess-2 (latest prompt)", msg.SessionID)
	}
	if msg.Metadata[bus.MetaKeyGate] != "fix_approval" {
		t.Errorf("gate metadata = %q, want fix_approval", msg.Metadata[bus.MetaKeyGate])
	}
}

func TestSlackReplyInOtherChannelIgnored(t *testing.T) {
	c, b := newTestSlack(t, config.SlackConfig{ChannelID: "C42"})
	c.track("171.001", gateRef{SessionID: "sess-1", Gate: "question"})

	c.handleReply("U1", "C99", "171.001", "yes")

	if n := b.InboundSize(); n != 0 {
		t.Fatalf("inbound size = %d, want 0", n)
	}
}

func TestSlackReplyFromUnlistedUserIgnored(t *testing.T) {
	c, b := newTestSlack(t, config.SlackConfig{ChannelID: "C42", AllowFrom: []string{"U9"}})
	c.track("171.001", gateRef{SessionID: "sess-1", Gate: "question"})

	c.handleReply("U1", "C42", "171.001", "yes")
	if n := b.InboundSize(); n != 0 {
		t.Fatalf("inbound size = %d, want 0", n)
	}

	c.handleReply("U9", "C42", "171.001", "yes")
	msg := recvInbound(t, b)
	if msg.SenderID != "U9" {
		t.Errorf("SenderID = %q, want U9", msg.SenderID)
	}
}

func TestSlackReplyToUnknownThreadIgnored(t *testing.T) {
	c, b := newTestSlack(t, config.SlackConfig{ChannelID: "C42"})
	c.track("171.001", gateRef{SessionID: "sess-1", Gate: "question"})

	c.handleReply("U1", "C42", "999.999", "yes")

	if n := b.InboundSize(); n != 0 {
		t.Fatalf("inbound size = %d, want 0", n)
	}
}

func TestSlackPromptTrackingIsBounded(t *testing.T) {
	c, _ := newTestSlack(t, config.SlackConfig{ChannelID: "C42"})
	for i := 0; i < maxTrackedPrompts+10; i++ {
		c.track(fmt.Sprintf("171.%03d", i), gateRef{SessionID: "sess", Gate: "question"})
	}
	if len(c.pending) != maxTrackedPrompts {
		t.Fatalf("tracked %d prompts, want %d", len(c.pending), maxTrackedPrompts)
	}
	if _, ok := c.lookup("171.000"); ok {
		t.Error("oldest prompt should have been evicted")
	}
	if _, ok := c.lookup(fmt.Sprintf("171.%03d", maxTrackedPrompts+9)); !ok {
		t.Error("newest prompt should still be tracked")
	}
}

func TestStripMentions(t *testing.T) {
	if got := stripMentions("<@U123ABC> approve"); got != "approve" {
		t.Errorf("stripMentions = %q, want approve", got)
	}
	if got := stripMentions("approve"); got != "approve" {
		t.Errorf("stripMentions = %q, want approve", got)
	}
}

func TestSlackStartValidatesConfig(t *testing.T) {
	c, _ := newTestSlack(t, config.SlackConfig{Enabled: false})
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("disabled channel should start clean: %v", err)
	}

	c, _ = newTestSlack(t, config.SlackConfig{Enabled: true})
	if err := c.Start(context.Background()); err == nil {
		t.Fatal("expected error for missing tokens")
	}

	c, _ = newTestSlack(t, config.SlackConfig{Enabled: true, BotToken: "xoxb-test", AppToken: "xapp-test"})
	err := c.Start(context.Background())
	if err == nil || !strings.Contains(err.Error(), "channelId") {
		t.Fatalf("expected channelId error, got %v", err)
	}
}

func TestWithRetryStopsWhenNotRetryable(t *testing.T) {
	calls := 0
	err := withRetry(3, time.Millisecond, func() (bool, error) {
		calls++
		return false, errors.New("fatal")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestWithRetryRetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := withRetry(3, time.Millisecond, func() (bool, error) {
		calls++
		if calls < 3 {
			return true, errors.New("transient")
		}
		return false, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}
