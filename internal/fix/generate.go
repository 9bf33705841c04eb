package fix

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/faultline/faultline/internal/provider"
)

const generateSystemPrompt = `You are a senior engineer writing a minimal fix for a diagnosed production incident.
Respond with a single JSON object and nothing else:
{
  "summary": "one-line description of the change",
  "root_cause": "what the change addresses",
  "diff": "unified diff of the change",
  "files": [{"path": "relative/path", "content": "full new file content"}],
  "commit_message": "conventional commit message"
}
Change as little as possible. Do not refactor unrelated code.`

// LLMGenerator asks a model for a fix proposal built from the
// investigation's evidence.
type LLMGenerator struct {
	Provider  provider.LLMProvider
	Model     string
	MaxTokens int
}

func (g *LLMGenerator) Generate(ctx context.Context, req Request, guidance []string) (*Proposal, error) {
	model := g.Model
	if model == "" {
		model = g.Provider.DefaultModel()
	}
	maxTokens := g.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	resp, err := g.Provider.Chat(ctx, &provider.ChatRequest{
		Model: model,
		Messages: []provider.Message{
			{Role: "system", Content: generateSystemPrompt},
			{Role: "user", Content: buildFixPrompt(req, guidance)},
		},
		MaxTokens:   maxTokens,
		Temperature: 0,
	})
	if err != nil {
		return nil, fmt.Errorf("fix generation call: %w", err)
	}

	txt := strings.TrimSpace(resp.Content)
	txt = strings.TrimPrefix(txt, "```json")
	txt = strings.TrimPrefix(txt, "```")
	txt = strings.TrimSuffix(txt, "```")

	var p Proposal
	if err := json.Unmarshal([]byte(strings.TrimSpace(txt)), &p); err != nil {
		return nil, fmt.Errorf("fix proposal did not parse: %w", err)
	}
	if p.Diff == "" && len(p.Files) == 0 {
		return nil, fmt.Errorf("fix proposal contains no change")
	}
	return &p, nil
}

func buildFixPrompt(req Request, guidance []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Service: %s\nRepository: %s\n", req.Service, req.RepoURL)
	b.WriteString("Root cause: " + req.RootCause + "\n\n")

	if len(req.Findings) > 0 {
		b.WriteString("Findings:\n")
		for _, f := range req.Findings {
			fmt.Fprintf(&b, "- [%s] %s (confidence %d)\n", f.Category, f.Summary, f.Confidence)
		}
		b.WriteString("\n")
	}
	if len(req.Pins) > 0 {
		b.WriteString("Key evidence:\n")
		for _, pin := range req.Pins {
			fmt.Fprintf(&b, "- (%s) %s\n", pin.Type, pin.Claim)
		}
		b.WriteString("\n")
	}
	for _, g := range guidance {
		b.WriteString(g + "\n")
	}
	b.WriteString("\nProduce the fix now.")
	return b.String()
}
