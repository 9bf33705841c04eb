package tasks

import (
	"context"
	"fmt"
	"strings"

	"github.com/faultline/faultline/internal/evidence"
	"github.com/faultline/faultline/internal/tools"
)

const metricsSystemPrompt = `You are a metrics analysis agent investigating a production incident. Your job is to find resource or traffic anomalies that correlate with the reported symptoms.

Use the tools to query current values and ranges. Check error rates, latency, saturation (CPU, memory, connections) and restarts for the affected service.

When you are done, respond with a single JSON object and nothing else:
{
  "summary": "one-paragraph diagnosis of what the metrics show",
  "anomalies": [{"metric": "metric name", "observation": "what it did and when"}],
  "correlated_with_logs": true|false,
  "confidence": 0-100
}

Rules:
1. Compare against the earlier findings you were given; say whether the metrics support them.
2. Quote numbers from query results, never estimates.
3. A flat, healthy dashboard is a finding; report it with low confidence in an anomaly.`

type metricsTask struct{}

func (metricsTask) Kind() Kind { return KindMetricsAnalysis }

func (metricsTask) Prerequisite(_ Context, src Sources) string {
	if src.PromURL == "" {
		return "no metrics store configured"
	}
	return ""
}

func (t metricsTask) Run(ctx context.Context, tc Context, src Sources) Outcome {
	if reason := t.Prerequisite(tc, src); reason != "" {
		return Skip(KindMetricsAnalysis, reason)
	}
	rec := evidence.NewRecorder(tc.SessionID, string(KindMetricsAnalysis))
	reg := tools.NewRegistry()
	reg.Register(tools.NewMetricsQueryTool(src.PromURL, rec))
	reg.Register(tools.NewMetricsRangeTool(src.PromURL, rec))

	res := runLoop(ctx, KindMetricsAnalysis, tc, src, reg, rec, metricsSystemPrompt, metricsPrompt(tc))
	return outcomeFromResult(KindMetricsAnalysis, res, rec, decodeMetricsReport)
}

func metricsPrompt(tc Context) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Incident: %s\nService: %s\n", tc.Description, tc.Service)
	if tc.Background != "" {
		b.WriteString("\nEarlier findings:\n" + tc.Background + "\n")
	}
	b.WriteString("\nCheck whether the service's metrics corroborate the incident and the earlier findings.")
	return b.String()
}
