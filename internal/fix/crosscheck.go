package fix

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/faultline/faultline/internal/provider"
)

const crossCheckPrompt = `You are reviewing a proposed fix against the incident evidence.
Respond with a single JSON object and nothing else:
{"approved": true|false, "issues": ["..."], "regression_risk": "low"|"medium"|"high"}
Flag the fix if it does not address the stated root cause, touches unrelated code,
or could plausibly break existing behavior.`

// LLMCrossChecker has a second model pass review the proposal against the
// evidence. Its report informs the human reviewer; it never blocks on its own.
type LLMCrossChecker struct {
	Provider provider.LLMProvider
	Model    string
}

func (c *LLMCrossChecker) Check(ctx context.Context, req Request, p *Proposal) CrossCheckReport {
	model := c.Model
	if model == "" {
		model = c.Provider.DefaultModel()
	}

	resp, err := c.Provider.Chat(ctx, &provider.ChatRequest{
		Model: model,
		Messages: []provider.Message{
			{Role: "system", Content: crossCheckPrompt},
			{Role: "user", Content: buildCrossCheckPrompt(req, p)},
		},
		MaxTokens:   512,
		Temperature: 0,
	})
	if err != nil {
		slog.Warn("fix cross-check unavailable", "error", err)
		return CrossCheckReport{Approved: true, RegressionRisk: "medium",
			Issues: []string{"automated cross-check unavailable: " + err.Error()}}
	}

	txt := strings.TrimSpace(resp.Content)
	txt = strings.TrimPrefix(txt, "```json")
	txt = strings.TrimPrefix(txt, "```")
	txt = strings.TrimSuffix(txt, "```")

	var report CrossCheckReport
	if err := json.Unmarshal([]byte(strings.TrimSpace(txt)), &report); err != nil {
		slog.Warn("fix cross-check did not parse", "error", err)
		return CrossCheckReport{Approved: true, RegressionRisk: "medium",
			Issues: []string{"cross-check response did not parse"}}
	}
	if report.RegressionRisk == "" {
		report.RegressionRisk = "medium"
	}
	return report
}

func buildCrossCheckPrompt(req Request, p *Proposal) string {
	var b strings.Builder
	b.WriteString("Root cause: " + req.RootCause + "\n\n")
	if len(req.Findings) > 0 {
		b.WriteString("Findings:\n")
		for _, f := range req.Findings {
			b.WriteString("- " + f.Summary + "\n")
		}
		b.WriteString("\n")
	}
	b.WriteString("Proposed fix: " + p.Summary + "\n\n" + p.Diff + "\n")
	return b.String()
}
