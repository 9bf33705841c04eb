package channels

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/faultline/faultline/internal/bus"
)

// CLIChannel renders outbound traffic on the terminal and feeds typed
// replies back through the bus. One-shot investigations run on it; replies
// always answer the most recent prompt.
type CLIChannel struct {
	BaseChannel

	in  io.Reader
	out io.Writer

	mu         sync.Mutex
	lastPrompt *gateRef

	done chan struct{}
}

// NewCLIChannel creates a terminal channel bound to stdin and stdout.
func NewCLIChannel(messageBus *bus.MessageBus) *CLIChannel {
	return &CLIChannel{
		BaseChannel: BaseChannel{Bus: messageBus},
		in:          os.Stdin,
		out:         os.Stdout,
	}
}

func (c *CLIChannel) Name() string { return "cli" }

func (c *CLIChannel) Start(ctx context.Context) error {
	c.done = make(chan struct{})
	c.Bus.Subscribe(c.Name(), func(msg *bus.OutboundMessage) {
		_ = c.Send(ctx, msg)
	})
	go c.readLoop(ctx)
	return nil
}

// Stop is a no-op: the read loop blocks on stdin and unwinds when the
// process exits or the input stream closes.
func (c *CLIChannel) Stop() error { return nil }

func (c *CLIChannel) Send(ctx context.Context, msg *bus.OutboundMessage) error {
	header := c.label(msg.Type())
	if id := strings.TrimSpace(msg.SessionID); id != "" {
		header += " " + color.HiBlackString(id)
	}
	fmt.Fprintf(c.out, "%s %s\n", header, msg.Content)
	if kind := msg.Metadata[bus.MetaKeyGate]; kind != "" && msg.SessionID != "" {
		ref := gateRef{SessionID: msg.SessionID, Gate: kind}
		c.mu.Lock()
		c.lastPrompt = &ref
		c.mu.Unlock()
		fmt.Fprintln(c.out, color.HiBlackString("> type a reply and press enter"))
	}
	return nil
}

func (c *CLIChannel) label(msgType string) string {
	switch msgType {
	case bus.TypeFixProposal:
		return color.YellowString("[fix approval]")
	case bus.TypeRepoConfirm, bus.TypeRepoMismatch:
		return color.YellowString("[confirm]")
	case bus.TypeQuestion:
		return color.CyanString("[question]")
	default:
		return color.HiBlackString("[notice]")
	}
}

func (c *CLIChannel) readLoop(ctx context.Context) {
	defer close(c.done)
	scanner := bufio.NewScanner(c.in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		c.mu.Lock()
		ref := c.lastPrompt
		c.mu.Unlock()
		if ref == nil {
			fmt.Fprintln(c.out, color.HiBlackString("no pending prompt"))
			continue
		}
		c.Bus.PublishInbound(&bus.InboundMessage{
			Channel:   c.Name(),
			SenderID:  "operator",
			SessionID: ref.SessionID,
			Content:   line,
			Metadata:  map[string]string{bus.MetaKeyGate: ref.Gate},
			Timestamp: time.Now(),
		})
	}
}
