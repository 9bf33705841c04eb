package tasks

import (
	"context"
	"fmt"
	"strings"

	"github.com/faultline/faultline/internal/evidence"
	"github.com/faultline/faultline/internal/tools"
)

const traceSystemPrompt = `You are a distributed tracing agent investigating a production incident. Your job is to locate where in the request path time is lost or errors originate.

Use the tools to find slow or errored traces for the service, then drill into individual traces to attribute latency to a span.

When you are done, respond with a single JSON object and nothing else:
{
  "summary": "one-paragraph diagnosis of the request path",
  "slow_spans": [{"service": "svc", "operation": "op", "duration_ms": 1200}],
  "errored_services": ["services whose spans carry error tags"],
  "confidence": 0-100
}

Rules:
1. Attribute latency to the deepest span that accounts for it, not the root.
2. Distinguish upstream slowness from downstream slowness explicitly.`

type traceTask struct{}

func (traceTask) Kind() Kind { return KindTraceAnalysis }

func (traceTask) Prerequisite(tc Context, src Sources) string {
	if src.JaegerURL == "" {
		return "no trace store configured"
	}
	if tc.TraceID == "" && tc.Service == "" {
		return "no trace id or service to search by"
	}
	return ""
}

func (t traceTask) Run(ctx context.Context, tc Context, src Sources) Outcome {
	if reason := t.Prerequisite(tc, src); reason != "" {
		return Skip(KindTraceAnalysis, reason)
	}
	rec := evidence.NewRecorder(tc.SessionID, string(KindTraceAnalysis))
	reg := tools.NewRegistry()
	reg.Register(tools.NewTraceSearchTool(src.JaegerURL, rec))
	reg.Register(tools.NewTraceDetailTool(src.JaegerURL, rec))

	res := runLoop(ctx, KindTraceAnalysis, tc, src, reg, rec, traceSystemPrompt, tracePrompt(tc))
	return outcomeFromResult(KindTraceAnalysis, res, rec, decodeTraceReport)
}

func tracePrompt(tc Context) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Incident: %s\nService: %s\n", tc.Description, tc.Service)
	if tc.TraceID != "" {
		fmt.Fprintf(&b, "Known trace id: %s\n", tc.TraceID)
	}
	if tc.Background != "" {
		b.WriteString("\nEarlier findings:\n" + tc.Background + "\n")
	}
	b.WriteString("\nFind where the latency or errors originate in the request path.")
	return b.String()
}
