package channels

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/faultline/faultline/internal/bus"
	"github.com/faultline/faultline/internal/config"
)

// maxTrackedPrompts bounds the thread map so a long-lived daemon does not
// accumulate one entry per prompt forever.
const maxTrackedPrompts = 64

var mentionPattern = regexp.MustCompile(`<@[A-Z0-9]+>`)

// SlackChannel connects over socket mode and relays notices and gate
// prompts into one Slack channel. Each prompt is tracked by its message
// timestamp so threaded replies route back to the right session; a
// top-level reply falls back to the most recent prompt.
type SlackChannel struct {
	BaseChannel
	cfg  config.SlackConfig
	api  *slack.Client
	sock *socketmode.Client

	mu         sync.Mutex
	pending    map[string]gateRef
	order      []string
	lastPrompt *gateRef

	cancel context.CancelFunc
	done   chan struct{}
}

// NewSlackChannel creates the channel. The client is only built when both
// tokens are present; Start reports the misconfiguration otherwise.
func NewSlackChannel(cfg config.SlackConfig, messageBus *bus.MessageBus) *SlackChannel {
	c := &SlackChannel{
		BaseChannel: BaseChannel{Bus: messageBus},
		cfg:         cfg,
		pending:     make(map[string]gateRef),
	}
	bot := strings.TrimSpace(cfg.BotToken)
	app := strings.TrimSpace(cfg.AppToken)
	if bot != "" && app != "" {
		c.api = slack.New(bot, slack.OptionAppLevelToken(app))
		c.sock = socketmode.New(c.api)
	}
	return c
}

func (c *SlackChannel) Name() string { return "slack" }

func (c *SlackChannel) Start(ctx context.Context) error {
	if !c.cfg.Enabled {
		return nil
	}
	if c.sock == nil {
		return errors.New("slack enabled but botToken or appToken missing")
	}
	if strings.TrimSpace(c.cfg.ChannelID) == "" {
		return errors.New("slack enabled but channelId missing")
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.Bus.Subscribe(c.Name(), func(msg *bus.OutboundMessage) {
		if err := c.Send(runCtx, msg); err != nil {
			slog.Error("slack send failed", "error", err, "session_id", msg.SessionID)
		}
	})
	go c.handleEvents(runCtx)
	go func() {
		defer close(c.done)
		if err := c.sock.RunContext(runCtx); err != nil && runCtx.Err() == nil {
			slog.Error("slack socket mode stopped", "error", err)
		}
	}()
	return nil
}

func (c *SlackChannel) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	if c.done != nil {
		select {
		case <-c.done:
		case <-time.After(5 * time.Second):
		}
	}
	return nil
}

// Send posts the message and, for gate prompts, remembers the resulting
// message timestamp so thread replies can be routed back to the session.
func (c *SlackChannel) Send(ctx context.Context, msg *bus.OutboundMessage) error {
	if c.api == nil {
		return errors.New("slack client not configured")
	}
	ts, err := c.post(ctx, msg.Content)
	if err != nil {
		return err
	}
	if kind := msg.Metadata[bus.MetaKeyGate]; kind != "" && msg.SessionID != "" {
		c.track(ts, gateRef{SessionID: msg.SessionID, Gate: kind})
	}
	return nil
}

func (c *SlackChannel) post(ctx context.Context, text string) (string, error) {
	var ts string
	err := withRetry(3, 200*time.Millisecond, func() (bool, error) {
		var err error
		_, ts, err = c.api.PostMessageContext(ctx, c.cfg.ChannelID, slack.MsgOptionText(text, false))
		return slackRetryDecision(err)
	})
	return ts, err
}

func (c *SlackChannel) handleEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-c.sock.Events:
			if !ok {
				return
			}
			c.handleEvent(evt)
		}
	}
}

func (c *SlackChannel) handleEvent(evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeEventsAPI:
		if evt.Request != nil {
			c.sock.Ack(*evt.Request)
		}
		ev, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok || ev.Type != slackevents.CallbackEvent {
			return
		}
		switch in := ev.InnerEvent.Data.(type) {
		case *slackevents.MessageEvent:
			if in == nil || in.BotID != "" || in.SubType != "" {
				return
			}
			c.handleReply(in.User, in.Channel, in.ThreadTimeStamp, in.Text)
		case *slackevents.AppMentionEvent:
			if in == nil {
				return
			}
			c.handleReply(in.User, in.Channel, in.ThreadTimeStamp, stripMentions(in.Text))
		}
	case socketmode.EventTypeSlashCommand, socketmode.EventTypeInteractive:
		// Acked so Slack does not retry; gates resolve via thread replies.
		if evt.Request != nil {
			c.sock.Ack(*evt.Request)
		}
	}
}

// handleReply routes an operator message to its session. Thread replies
// resolve through the prompt they answer; a bare channel message counts as
// an answer to the latest prompt so "approve" works without threading.
func (c *SlackChannel) handleReply(user, channel, threadTS, text string) {
	if id := strings.TrimSpace(c.cfg.ChannelID); id != "" && channel != id {
		return
	}
	if !c.allowed(user) {
		slog.Warn("slack reply from unlisted user ignored", "user", user)
		return
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	ref, ok := c.lookup(threadTS)
	if !ok {
		return
	}
	c.Bus.PublishInbound(&bus.InboundMessage{
		Channel:   c.Name(),
		SenderID:  strings.TrimSpace(user),
		SessionID: ref.SessionID,
		Content:   text,
		Metadata:  map[string]string{bus.MetaKeyGate: ref.Gate},
		Timestamp: time.Now(),
	})
}

func (c *SlackChannel) allowed(user string) bool {
	if len(c.cfg.AllowFrom) == 0 {
		return true
	}
	for _, id := range c.cfg.AllowFrom {
		if strings.EqualFold(strings.TrimSpace(id), strings.TrimSpace(user)) {
			return true
		}
	}
	return false
}

func (c *SlackChannel) track(ts string, ref gateRef) {
	if strings.TrimSpace(ts) == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[ts] = ref
	c.order = append(c.order, ts)
	for len(c.order) > maxTrackedPrompts {
		delete(c.pending, c.order[0])
		c.order = c.order[1:]
	}
	c.lastPrompt = &ref
}

func (c *SlackChannel) lookup(threadTS string) (gateRef, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if threadTS != "" {
		ref, ok := c.pending[threadTS]
		return ref, ok
	}
	if c.lastPrompt != nil {
		return *c.lastPrompt, true
	}
	return gateRef{}, false
}

func stripMentions(text string) string {
	return strings.TrimSpace(mentionPattern.ReplaceAllString(text, ""))
}

func slackRetryDecision(err error) (bool, error) {
	if err == nil {
		return false, nil
	}
	var rle *slack.RateLimitedError
	if errors.As(err, &rle) && rle != nil {
		if rle.RetryAfter > 0 {
			time.Sleep(rle.RetryAfter)
		}
		return true, err
	}
	return false, err
}

func withRetry(attempts int, baseDelay time.Duration, fn func() (retryable bool, err error)) error {
	if attempts <= 0 {
		attempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		retryable, err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable || i == attempts-1 {
			break
		}
		time.Sleep(baseDelay * time.Duration(1<<i))
	}
	return lastErr
}
