package gate

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/faultline/faultline/internal/provider"
)

var confirmWords = map[string]bool{
	"yes": true, "y": true, "ok": true, "okay": true,
	"approve": true, "approved": true, "confirm": true, "confirmed": true,
	"proceed": true, "lgtm": true, "ship it": true, "go ahead": true,
}

var rejectWords = map[string]bool{
	"no": true, "n": true, "skip": true, "reject": true, "rejected": true,
	"deny": true, "denied": true, "cancel": true, "stop": true, "abort": true,
}

const classifyPrompt = `You classify a human reply to a yes/no operational question.
Answer with exactly one word: confirm, reject, correction, or feedback.
confirm = the human agrees or approves.
reject = the human declines, skips, or cancels.
correction = the human supplies a replacement value (like a different URL).
feedback = anything else: commentary, requested changes, questions.`

// Parser turns free-text replies into gate resolutions. Exact keywords are
// tried first, then a "key: value" structured form, then a model call whose
// only job is classifying the reply. A reply is never left unhandled.
type Parser struct {
	// Provider enables the model fallback. When nil, unclassified replies
	// resolve as feedback.
	Provider provider.LLMProvider
	Model    string
}

// Parse classifies one reply.
func (p *Parser) Parse(ctx context.Context, text string) Resolution {
	now := time.Now().UTC()
	trimmed := strings.TrimSpace(text)
	lowered := strings.ToLower(strings.Trim(trimmed, ".!? "))

	if confirmWords[lowered] {
		return Resolution{Decision: DecisionConfirm, Message: trimmed, ResolvedAt: now}
	}
	if rejectWords[lowered] {
		return Resolution{Decision: DecisionReject, Message: trimmed, ResolvedAt: now}
	}

	if fields, feedback, ok := parseStructured(trimmed); ok {
		if feedback != "" && len(fields) == 0 {
			return Resolution{Decision: DecisionFeedback, Message: feedback, ResolvedAt: now}
		}
		return Resolution{Decision: DecisionCorrection, Message: trimmed, Fields: fields, ResolvedAt: now}
	}

	return p.classify(ctx, trimmed, now)
}

// parseStructured extracts "key: value" lines. A lone "feedback:" key is
// reported separately so it resolves as feedback rather than correction.
func parseStructured(text string) (map[string]string, string, bool) {
	fields := make(map[string]string)
	feedback := ""
	matched := false
	for _, line := range strings.Split(text, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		if key == "" || value == "" || strings.ContainsAny(key, " \t") {
			continue
		}
		matched = true
		if key == "feedback" || key == "comment" {
			feedback = value
			continue
		}
		fields[key] = value
	}
	if !matched {
		return nil, "", false
	}
	return fields, feedback, true
}

// classify is the model fallback. Any failure degrades to feedback so the
// caller always gets a usable resolution.
func (p *Parser) classify(ctx context.Context, text string, now time.Time) Resolution {
	fallback := Resolution{Decision: DecisionFeedback, Message: text, ResolvedAt: now}
	if p.Provider == nil {
		return fallback
	}

	model := p.Model
	if model == "" {
		model = p.Provider.DefaultModel()
	}
	resp, err := p.Provider.Chat(ctx, &provider.ChatRequest{
		Model: model,
		Messages: []provider.Message{
			{Role: "system", Content: classifyPrompt},
			{Role: "user", Content: text},
		},
		MaxTokens:   10,
		Temperature: 0,
	})
	if err != nil {
		slog.Warn("reply classification failed", "error", err)
		return fallback
	}

	word := strings.ToLower(strings.Trim(strings.TrimSpace(resp.Content), ".\"' "))
	switch Decision(word) {
	case DecisionConfirm, DecisionReject, DecisionCorrection, DecisionFeedback:
		return Resolution{Decision: Decision(word), Message: text, ResolvedAt: now}
	}
	return fallback
}
