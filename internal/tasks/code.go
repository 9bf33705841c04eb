package tasks

import (
	"context"
	"fmt"
	"strings"

	"github.com/faultline/faultline/internal/evidence"
	"github.com/faultline/faultline/internal/tools"
)

const codeSystemPrompt = `You are a code impact agent investigating a production incident. Your job is to locate the code paths implicated by the evidence gathered so far.

Use the tools to search the repository for the error signatures and read the surrounding code. Look for missing error handling, unbounded growth, and misconfigured timeouts or limits.

When you are done, respond with a single JSON object and nothing else:
{
  "summary": "one-paragraph assessment of the implicated code",
  "suspects": [{"file": "path:line", "reason": "why this code is implicated"}],
  "confidence": 0-100
}

Rules:
1. Cite file and line for every suspect.
2. Quote the code construct, not a paraphrase.
3. If the search turns up nothing, say which signatures you tried.`

type codeTask struct{}

func (codeTask) Kind() Kind { return KindCodeImpact }

func (codeTask) Prerequisite(tc Context, src Sources) string {
	if tc.RepoURL == "" {
		return "no repository confirmed for the service"
	}
	if src.RepoDir == "" {
		return "no local checkout configured"
	}
	return ""
}

func (t codeTask) Run(ctx context.Context, tc Context, src Sources) Outcome {
	if reason := t.Prerequisite(tc, src); reason != "" {
		return Skip(KindCodeImpact, reason)
	}
	rec := evidence.NewRecorder(tc.SessionID, string(KindCodeImpact))
	reg := tools.NewRegistry()
	reg.Register(tools.NewCodeSearchTool(src.RepoDir, rec))
	reg.Register(tools.NewCodeReadTool(src.RepoDir, rec))

	res := runLoop(ctx, KindCodeImpact, tc, src, reg, rec, codeSystemPrompt, codePrompt(tc))
	return outcomeFromResult(KindCodeImpact, res, rec, decodeCodeReport)
}

func codePrompt(tc Context) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Incident: %s\nService: %s\nRepository: %s\n", tc.Description, tc.Service, tc.RepoURL)
	if tc.Background != "" {
		b.WriteString("\nEarlier findings:\n" + tc.Background + "\n")
	}
	b.WriteString("\nFind the code paths that produce the observed failure.")
	return b.String()
}
