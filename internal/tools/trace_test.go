package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/faultline/faultline/internal/evidence"
)

const jaegerTracesBody = `{"data":[
	{"traceID":"abc123","spans":[
		{"spanID":"s1","operationName":"GET /checkout","startTime":1700000000000000,"duration":1500000,"processID":"p1","tags":[]},
		{"spanID":"s2","operationName":"charge","startTime":1700000000100000,"duration":1200000,"processID":"p2","tags":[{"key":"error","value":"true"}]}
	],"processes":{"p1":{"serviceName":"checkout"},"p2":{"serviceName":"payment"}}},
	{"traceID":"def456","spans":[
		{"spanID":"s3","operationName":"GET /checkout","startTime":1700000001000000,"duration":90000,"processID":"p1","tags":[]}
	],"processes":{"p1":{"serviceName":"checkout"}}}
]}`

func TestTraceSearchTool(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/traces" {
			http.NotFound(w, r)
			return
		}
		if r.URL.Query().Get("service") == "" {
			http.Error(w, "missing service", http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, jaegerTracesBody)
	}))
	defer srv.Close()

	rec := evidence.NewRecorder("sess-1", "tracing_analysis")
	tool := NewTraceSearchTool(srv.URL, rec)
	tool.client = srv.Client()

	result, err := tool.Execute(context.Background(), map[string]any{"service": "checkout"})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if !strings.Contains(result, "2 traces") {
		t.Errorf("expected trace count, got '%s'", result)
	}
	// Slowest trace first, with its errored span count.
	lines := strings.Split(strings.TrimSpace(result), "\n")
	if len(lines) < 3 {
		t.Fatalf("expected header plus two traces, got %q", result)
	}
	if !strings.Contains(lines[1], "abc123") || !strings.Contains(lines[1], "1 errored") {
		t.Errorf("expected slowest errored trace first, got '%s'", lines[1])
	}
	if !strings.Contains(lines[2], "def456") {
		t.Errorf("expected faster trace second, got '%s'", lines[2])
	}
}

func TestTraceSearchToolEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[]}`)
	}))
	defer srv.Close()

	rec := evidence.NewRecorder("sess-1", "tracing_analysis")
	tool := NewTraceSearchTool(srv.URL, rec)
	tool.client = srv.Client()

	result, err := tool.Execute(context.Background(), map[string]any{"service": "ghost"})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if !strings.Contains(result, "No traces") {
		t.Errorf("expected empty-result message, got '%s'", result)
	}

	_, _, negs := rec.Snapshot()
	if len(negs) != 1 {
		t.Errorf("expected 1 negative finding, got %d", len(negs))
	}
}

func TestTraceDetailTool(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/traces/") {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, jaegerTracesBody)
	}))
	defer srv.Close()

	tool := NewTraceDetailTool(srv.URL, nil)
	tool.client = srv.Client()

	result, err := tool.Execute(context.Background(), map[string]any{"trace_id": "abc123"})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if !strings.Contains(result, "Trace abc123, 2 spans") {
		t.Errorf("expected span header, got '%s'", result)
	}
	if !strings.Contains(result, "checkout/GET /checkout 1500ms") {
		t.Errorf("expected root span line, got '%s'", result)
	}
	if !strings.Contains(result, "payment/charge 1200ms ERROR") {
		t.Errorf("expected errored span line, got '%s'", result)
	}
}

func TestTraceDetailToolNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[]}`)
	}))
	defer srv.Close()

	rec := evidence.NewRecorder("sess-1", "tracing_analysis")
	tool := NewTraceDetailTool(srv.URL, rec)
	tool.client = srv.Client()

	result, err := tool.Execute(context.Background(), map[string]any{"trace_id": "missing"})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if !strings.Contains(result, "not found") {
		t.Errorf("expected not-found message, got '%s'", result)
	}
}

func TestSpanErrorTag(t *testing.T) {
	sp := jaegerSpan{Tags: []jaegerTag{{Key: "otel.status_code", Value: "ERROR"}}}
	if _, ok := spanErrorTag(sp); !ok {
		t.Error("expected otel status ERROR to register as errored")
	}
	sp = jaegerSpan{Tags: []jaegerTag{{Key: "http.status_code", Value: float64(200)}}}
	if _, ok := spanErrorTag(sp); ok {
		t.Error("expected clean span to not register as errored")
	}
}
