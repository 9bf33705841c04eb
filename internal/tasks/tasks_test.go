package tasks

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/faultline/faultline/internal/agent"
	"github.com/faultline/faultline/internal/evidence"
	"github.com/faultline/faultline/internal/provider"
)

// replayProvider returns its scripted responses in order.
type replayProvider struct {
	steps    []*provider.ChatResponse
	errs     []error
	calls    int
	requests []*provider.ChatRequest
}

func (p *replayProvider) Chat(_ context.Context, req *provider.ChatRequest) (*provider.ChatResponse, error) {
	copied := *req
	copied.Messages = append([]provider.Message{}, req.Messages...)
	p.requests = append(p.requests, &copied)
	if p.calls >= len(p.steps) {
		return nil, fmt.Errorf("replay provider exhausted after %d calls", p.calls)
	}
	i := p.calls
	p.calls++
	if i < len(p.errs) && p.errs[i] != nil {
		return nil, p.errs[i]
	}
	return p.steps[i], nil
}

func (p *replayProvider) DefaultModel() string { return "test-model" }

func answer(content string) *provider.ChatResponse {
	return &provider.ChatResponse{Content: content, FinishReason: "stop", Usage: provider.Usage{TotalTokens: 25}}
}

func toolUse(name string, args map[string]any) *provider.ChatResponse {
	return &provider.ChatResponse{
		ToolCalls:    []provider.ToolCall{{ID: "call_1", Name: name, Arguments: args}},
		FinishReason: "tool_calls",
		Usage:        provider.Usage{TotalTokens: 10},
	}
}

func TestEveryKindConstructs(t *testing.T) {
	kinds := Kinds()
	if len(kinds) != 6 {
		t.Fatalf("expected 6 task kinds, got %d", len(kinds))
	}
	for _, k := range kinds {
		task, ok := New(k)
		if !ok {
			t.Fatalf("no constructor for %s", k)
		}
		if task.Kind() != k {
			t.Fatalf("constructor for %s built a %s task", k, task.Kind())
		}
	}
	if _, ok := New(Kind("made_up")); ok {
		t.Fatal("unknown kinds must not construct")
	}
}

func TestPrerequisites(t *testing.T) {
	full := Sources{
		LokiURL: "http://loki", PromURL: "http://prom", JaegerURL: "http://jaeger",
		KubectlPath: "kubectl", RepoDir: "/repo",
	}
	tcFull := Context{Service: "checkout", RepoURL: "https://github.com/acme/checkout", TraceID: "abc"}

	cases := []struct {
		kind  Kind
		tc    Context
		src   Sources
		block string
	}{
		{KindLogAnalysis, tcFull, Sources{}, "log store"},
		{KindMetricsAnalysis, tcFull, Sources{}, "metrics store"},
		{KindClusterHealth, tcFull, Sources{}, "cluster access"},
		{KindTraceAnalysis, tcFull, Sources{}, "trace store"},
		{KindTraceAnalysis, Context{}, Sources{JaegerURL: "http://jaeger"}, "trace id"},
		{KindCodeImpact, Context{}, full, "repository"},
		{KindCodeImpact, Context{RepoURL: "x"}, Sources{}, "checkout"},
		{KindChangeCorrelation, Context{}, full, "repository"},
	}
	for _, tc := range cases {
		task, _ := New(tc.kind)
		reason := task.Prerequisite(tc.tc, tc.src)
		if !strings.Contains(reason, tc.block) {
			t.Fatalf("%s: expected skip reason containing %q, got %q", tc.kind, tc.block, reason)
		}
	}
	for _, k := range Kinds() {
		task, _ := New(k)
		if reason := task.Prerequisite(tcFull, full); reason != "" {
			t.Fatalf("%s: unexpected skip with everything configured: %q", k, reason)
		}
	}
}

func TestSkipOutcome(t *testing.T) {
	task, _ := New(KindLogAnalysis)
	out := task.Run(context.Background(), Context{SessionID: "s"}, Sources{})
	if out.Status != StatusSkipped {
		t.Fatalf("expected skip, got %s", out.Status)
	}
	if !strings.Contains(out.Reason, "log store") {
		t.Fatalf("unexpected reason %q", out.Reason)
	}
}

func TestLogTaskEndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"status":"success","data":{"result":[{"stream":{"service":"checkout"},"values":[["1700000000000000000","ConnectionTimeout to payments:8443"]]}]}}`)
	}))
	defer srv.Close()

	prov := &replayProvider{steps: []*provider.ChatResponse{
		toolUse("log_search", map[string]any{"query": "ConnectionTimeout"}),
		answer(`{"summary": "timeouts toward payments dominate", "patterns": [{"pattern": "ConnectionTimeout to payments:<n>", "count": 47, "level": "error"}], "confidence": 82, "severity": "high"}`),
	}}

	task, _ := New(KindLogAnalysis)
	out := task.Run(context.Background(),
		Context{SessionID: "sess-1", Service: "checkout", Description: "p99 latency above SLO"},
		Sources{Provider: prov, LokiURL: srv.URL})

	if out.Status != StatusSuccess {
		t.Fatalf("expected success, got %s (%s)", out.Status, out.Reason)
	}
	report, ok := out.Report.(LogReport)
	if !ok {
		t.Fatalf("expected a LogReport, got %T", out.Report)
	}
	if report.Confidence != 82 || len(report.Patterns) != 1 || report.Patterns[0].Count != 47 {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(out.Findings) != 1 || out.Findings[0].Task != string(KindLogAnalysis) {
		t.Fatalf("unexpected findings %+v", out.Findings)
	}
	if out.Result == nil || len(out.Result.Breadcrumbs) == 0 {
		t.Fatal("expected the tool query to leave a breadcrumb")
	}
	if len(out.Result.Pins) != 1 || out.Result.Pins[0].Type != evidence.TypeLog {
		t.Fatalf("expected one log-typed pin, got %+v", out.Result.Pins)
	}
	if len(prov.requests[0].Tools) != 2 {
		t.Fatalf("expected 2 log tools offered to the model, got %d", len(prov.requests[0].Tools))
	}
	if !strings.Contains(prov.requests[0].Messages[1].Content, "p99 latency above SLO") {
		t.Fatal("prompt should carry the incident description")
	}
}

func TestTaskFailsWhenDataSourceDies(t *testing.T) {
	prov := &replayProvider{steps: []*provider.ChatResponse{
		toolUse("metrics_query", map[string]any{"query": "up"}),
		toolUse("metrics_query", map[string]any{"query": "up"}),
	}}

	task, _ := New(KindMetricsAnalysis)
	out := task.Run(context.Background(),
		Context{SessionID: "sess-2", Service: "checkout"},
		// A closed port makes every query fail with a transport error.
		Sources{Provider: prov, PromURL: "http://127.0.0.1:1"})

	if out.Status != StatusFailed {
		t.Fatalf("expected failure, got %s", out.Status)
	}
	if !strings.Contains(out.Reason, string(agent.ErrorDataSourceUnreachable)) {
		t.Fatalf("expected unreachable reason, got %q", out.Reason)
	}
	if out.Result == nil || out.Result.Iterations != 2 {
		t.Fatalf("expected the abort on the second failure, got %+v", out.Result)
	}
}

func TestTaskFallsBackOnUnparsableAnswer(t *testing.T) {
	prov := &replayProvider{steps: []*provider.ChatResponse{
		answer("The cluster looks fine to me overall."),
	}}

	task, _ := New(KindClusterHealth)
	out := task.Run(context.Background(),
		Context{SessionID: "sess-3", Service: "checkout", Namespace: "prod"},
		Sources{Provider: prov, KubectlPath: "kubectl-definitely-missing"})

	if out.Status != StatusSuccess {
		t.Fatalf("expected a low-confidence success, got %s (%s)", out.Status, out.Reason)
	}
	report := out.Report.(ClusterReport)
	if report.Confidence != fallbackConfidence {
		t.Fatalf("expected fallback confidence %d, got %d", fallbackConfidence, report.Confidence)
	}
	if !strings.Contains(report.Summary, "cluster looks fine") {
		t.Fatalf("fallback should keep the raw answer, got %q", report.Summary)
	}
}
