package tasks

import (
	"context"
	"fmt"
	"strings"

	"github.com/faultline/faultline/internal/evidence"
	"github.com/faultline/faultline/internal/tools"
)

const changeSystemPrompt = `You are a change correlation agent investigating a production incident. Your job is to find recent commits that plausibly introduced the failure.

Use the tools to list recent history and inspect suspicious commits. Weight commits touching the implicated code paths higher than unrelated churn.

When you are done, respond with a single JSON object and nothing else:
{
  "summary": "one-paragraph assessment of recent changes",
  "commits": [{"hash": "abc1234", "subject": "commit subject", "risk": "high" | "medium" | "low"}],
  "confidence": 0-100
}

Rules:
1. Only rank a commit high risk when its diff touches the failing path.
2. No recent changes is a finding; report an empty commits list.`

type changeTask struct{}

func (changeTask) Kind() Kind { return KindChangeCorrelation }

func (changeTask) Prerequisite(tc Context, src Sources) string {
	if tc.RepoURL == "" {
		return "no repository confirmed for the service"
	}
	if src.RepoDir == "" {
		return "no local checkout configured"
	}
	return ""
}

func (t changeTask) Run(ctx context.Context, tc Context, src Sources) Outcome {
	if reason := t.Prerequisite(tc, src); reason != "" {
		return Skip(KindChangeCorrelation, reason)
	}
	rec := evidence.NewRecorder(tc.SessionID, string(KindChangeCorrelation))
	reg := tools.NewRegistry()
	reg.Register(tools.NewChangeHistoryTool(src.RepoDir, rec))
	reg.Register(tools.NewChangeDiffTool(src.RepoDir, rec))

	res := runLoop(ctx, KindChangeCorrelation, tc, src, reg, rec, changeSystemPrompt, changePrompt(tc))
	return outcomeFromResult(KindChangeCorrelation, res, rec, decodeChangeReport)
}

func changePrompt(tc Context) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Incident: %s\nService: %s\nRepository: %s\n", tc.Description, tc.Service, tc.RepoURL)
	if tc.Background != "" {
		b.WriteString("\nEarlier findings:\n" + tc.Background + "\n")
	}
	b.WriteString("\nCorrelate recent commits with the failure and rank their risk.")
	return b.String()
}
