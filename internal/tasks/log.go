package tasks

import (
	"context"
	"fmt"
	"strings"

	"github.com/faultline/faultline/internal/evidence"
	"github.com/faultline/faultline/internal/tools"
)

const logSystemPrompt = `You are a log analysis agent investigating a production incident. Your job is to find the error signature that best explains the incident.

Use the tools to search logs and summarize error patterns. Start broad, then narrow to the dominant pattern. Note what you checked even when it turned up nothing.

When you are done, respond with a single JSON object and nothing else:
{
  "summary": "one-paragraph diagnosis of what the logs show",
  "patterns": [{"pattern": "normalized error line", "count": 47, "level": "error"}],
  "confidence": 0-100,
  "severity": "critical" | "high" | "medium" | "low" | "info"
}

Rules:
1. Ground every claim in a log line you actually saw.
2. Report frequencies, not impressions.
3. Absence of errors is a result too; say so with low severity.`

type logTask struct{}

func (logTask) Kind() Kind { return KindLogAnalysis }

func (logTask) Prerequisite(_ Context, src Sources) string {
	if src.LokiURL == "" {
		return "no log store configured"
	}
	return ""
}

func (t logTask) Run(ctx context.Context, tc Context, src Sources) Outcome {
	if reason := t.Prerequisite(tc, src); reason != "" {
		return Skip(KindLogAnalysis, reason)
	}
	rec := evidence.NewRecorder(tc.SessionID, string(KindLogAnalysis))
	reg := tools.NewRegistry()
	reg.Register(tools.NewLogSearchTool(src.LokiURL, rec))
	reg.Register(tools.NewLogPatternTool(src.LokiURL, rec))

	res := runLoop(ctx, KindLogAnalysis, tc, src, reg, rec, logSystemPrompt, logPrompt(tc))
	return outcomeFromResult(KindLogAnalysis, res, rec, decodeLogReport)
}

func logPrompt(tc Context) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Incident: %s\nService: %s\nSeverity: %s\n", tc.Description, tc.Service, tc.Severity)
	b.WriteString("\nInvestigate the service's logs around the incident and identify the dominant error signature.")
	return b.String()
}
