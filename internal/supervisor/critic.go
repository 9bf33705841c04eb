package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/faultline/faultline/internal/evidence"
	"github.com/faultline/faultline/internal/provider"
)

// Critic reviews a finding against the evidence behind it and either
// validates or challenges it.
type Critic interface {
	Review(ctx context.Context, f evidence.Finding, pins []evidence.Pin) evidence.CriticVerdict
}

const criticSystemPrompt = `You are a skeptical reviewer of incident findings. Your job is to decide whether a finding is supported by the evidence pins collected during the investigation.

Respond with ONLY a JSON object:
{"verdict": "validated" or "challenged", "confidence": <0-100>, "reasoning": "<one or two sentences>"}

Rules:
1. Challenge a finding only when the evidence contradicts it or clearly fails to support it.
2. Confidence expresses how sure you are of YOUR verdict, not of the finding.
3. Do not invent evidence that is not in the list.
4. Output the JSON object and nothing else.`

// LLMCritic asks the model to second-guess each finding. Any provider or
// parse failure degrades to a low-confidence validation so a flaky critic
// can never stall an investigation.
type LLMCritic struct {
	Provider provider.LLMProvider
	Model    string
}

func (c *LLMCritic) Review(ctx context.Context, f evidence.Finding, pins []evidence.Pin) evidence.CriticVerdict {
	model := c.Model
	if model == "" {
		model = c.Provider.DefaultModel()
	}
	resp, err := c.Provider.Chat(ctx, &provider.ChatRequest{
		Model: model,
		Messages: []provider.Message{
			{Role: "system", Content: criticSystemPrompt},
			{Role: "user", Content: criticPrompt(f, pins)},
		},
		MaxTokens:   512,
		Temperature: 0,
	})
	if err != nil {
		slog.Warn("critic unavailable, accepting finding", "task", f.Task, "error", err)
		return failOpenVerdict("critic unavailable: " + err.Error())
	}

	raw := strings.TrimSpace(resp.Content)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var parsed struct {
		Verdict    string `json:"verdict"`
		Confidence int    `json:"confidence"`
		Reasoning  string `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		slog.Warn("critic returned unparsable verdict, accepting finding", "task", f.Task)
		return failOpenVerdict("unparsable critic response")
	}

	verdict := evidence.VerdictValidated
	if strings.EqualFold(parsed.Verdict, evidence.VerdictChallenged) {
		verdict = evidence.VerdictChallenged
	}
	conf := parsed.Confidence
	if conf < 0 {
		conf = 0
	}
	if conf > 100 {
		conf = 100
	}
	return evidence.CriticVerdict{
		Verdict:     verdict,
		Confidence:  conf,
		Reasoning:   parsed.Reasoning,
		AgentSource: "critic",
		At:          time.Now().UTC(),
	}
}

func failOpenVerdict(reason string) evidence.CriticVerdict {
	return evidence.CriticVerdict{
		Verdict:     evidence.VerdictValidated,
		Confidence:  10,
		Reasoning:   reason,
		AgentSource: "critic",
		At:          time.Now().UTC(),
	}
}

func criticPrompt(f evidence.Finding, pins []evidence.Pin) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Finding from the %s task (category %s, confidence %d):\n%s\n", f.Task, f.Category, f.Confidence, f.Summary)
	if len(pins) == 0 {
		b.WriteString("\nNo evidence pins were recorded for this session.\n")
	} else {
		b.WriteString("\nEvidence pins:\n")
		for _, p := range pins {
			fmt.Fprintf(&b, "- [%s] %s (confidence %d, via %s)\n", p.Type, p.Claim, p.Confidence, p.Source.Tool)
		}
	}
	b.WriteString("\nReview the finding:")
	return b.String()
}
