package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/faultline/faultline/internal/evidence"
)

// TraceSearchTool finds recent distributed traces for a service, optionally
// filtered to errored spans.
type TraceSearchTool struct {
	baseURL  string
	client   *http.Client
	recorder *evidence.Recorder
}

// NewTraceSearchTool creates a trace search tool against a Jaeger-style
// query endpoint.
func NewTraceSearchTool(baseURL string, rec *evidence.Recorder) *TraceSearchTool {
	return &TraceSearchTool{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		client:   &http.Client{Timeout: 15 * time.Second},
		recorder: rec,
	}
}

func (t *TraceSearchTool) Name() string { return "trace_search" }

func (t *TraceSearchTool) Description() string {
	return "Search recent distributed traces for a service, surfacing slow or errored requests."
}

func (t *TraceSearchTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"service": map[string]any{
				"type":        "string",
				"description": "Service name to search traces for",
			},
			"errors_only": map[string]any{
				"type":        "boolean",
				"description": "Only return traces containing errored spans",
			},
			"since_minutes": map[string]any{
				"type":        "integer",
				"description": "Look-back window in minutes (default 60)",
			},
			"limit": map[string]any{
				"type":        "integer",
				"description": "Maximum traces to return (default 20)",
			},
		},
		"required": []string{"service"},
	}
}

func (t *TraceSearchTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	service := GetString(params, "service", "")
	if service == "" {
		return "Error: service is required", nil
	}
	errorsOnly := GetBool(params, "errors_only", false)
	since := GetInt(params, "since_minutes", 60)
	limit := GetInt(params, "limit", 20)

	end := time.Now().UTC()
	start := end.Add(-time.Duration(since) * time.Minute)

	q := url.Values{}
	q.Set("service", service)
	q.Set("start", fmt.Sprintf("%d", start.UnixMicro()))
	q.Set("end", fmt.Sprintf("%d", end.UnixMicro()))
	q.Set("limit", fmt.Sprintf("%d", limit))
	if errorsOnly {
		q.Set("tags", `{"error":"true"}`)
	}

	var resp jaegerSearchResponse
	if err := getJSON(ctx, t.client, t.baseURL+"/api/traces?"+q.Encode(), &resp); err != nil {
		return "", err
	}

	where := fmt.Sprintf("trace store, last %dm", since)
	if t.recorder != nil {
		t.recorder.Breadcrumb(fmt.Sprintf("trace search service=%s errors_only=%v", service, errorsOnly), where)
	}
	if len(resp.Data) == 0 {
		if t.recorder != nil {
			t.recorder.Negative(fmt.Sprintf("traces for service %s", service), where, "no traces in window")
		}
		return fmt.Sprintf("No traces for service %q in the last %d minutes.", service, since), nil
	}

	summaries := make([]traceSummary, 0, len(resp.Data))
	for _, tr := range resp.Data {
		summaries = append(summaries, summarizeTrace(tr))
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].durationMS > summaries[j].durationMS })

	var b strings.Builder
	fmt.Fprintf(&b, "%d traces for %q (last %dm, slowest first):\n", len(summaries), service, since)
	for _, s := range summaries {
		fmt.Fprintf(&b, "trace %s: %dms %d spans", s.id, s.durationMS, s.spans)
		if s.erroredSpans > 0 {
			fmt.Fprintf(&b, " (%d errored)", s.erroredSpans)
		}
		if s.rootOp != "" {
			fmt.Fprintf(&b, " root=%s", s.rootOp)
		}
		b.WriteString("\n")
	}
	return truncateObservation(b.String()), nil
}

// TraceDetailTool fetches one trace and renders its span tree flattened to
// operation, duration and error tags.
type TraceDetailTool struct {
	baseURL  string
	client   *http.Client
	recorder *evidence.Recorder
}

// NewTraceDetailTool creates a per-trace detail tool against a Jaeger-style
// query endpoint.
func NewTraceDetailTool(baseURL string, rec *evidence.Recorder) *TraceDetailTool {
	return &TraceDetailTool{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		client:   &http.Client{Timeout: 15 * time.Second},
		recorder: rec,
	}
}

func (t *TraceDetailTool) Name() string { return "trace_detail" }

func (t *TraceDetailTool) Description() string {
	return "Fetch a single trace by id and list its spans with durations and error tags."
}

func (t *TraceDetailTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"trace_id": map[string]any{
				"type":        "string",
				"description": "Trace id from a previous trace_search result",
			},
		},
		"required": []string{"trace_id"},
	}
}

func (t *TraceDetailTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	traceID := GetString(params, "trace_id", "")
	if traceID == "" {
		return "Error: trace_id is required", nil
	}

	var resp jaegerSearchResponse
	if err := getJSON(ctx, t.client, t.baseURL+"/api/traces/"+url.PathEscape(traceID), &resp); err != nil {
		return "", err
	}
	if t.recorder != nil {
		t.recorder.Breadcrumb(fmt.Sprintf("trace detail %s", traceID), "trace store")
	}
	if len(resp.Data) == 0 {
		if t.recorder != nil {
			t.recorder.Negative(fmt.Sprintf("trace %s", traceID), "trace store", "trace not found")
		}
		return fmt.Sprintf("Trace %q not found.", traceID), nil
	}

	tr := resp.Data[0]
	spans := append([]jaegerSpan(nil), tr.Spans...)
	sort.Slice(spans, func(i, j int) bool { return spans[i].StartTime < spans[j].StartTime })

	var b strings.Builder
	fmt.Fprintf(&b, "Trace %s, %d spans:\n", tr.TraceID, len(spans))
	for _, sp := range spans {
		svc := ""
		if proc, ok := tr.Processes[sp.ProcessID]; ok {
			svc = proc.ServiceName
		}
		fmt.Fprintf(&b, "%s/%s %dms", svc, sp.OperationName, sp.Duration/1000)
		if tag, ok := spanErrorTag(sp); ok {
			fmt.Fprintf(&b, " ERROR %s", tag)
		}
		b.WriteString("\n")
	}
	return truncateObservation(b.String()), nil
}

type traceSummary struct {
	id           string
	durationMS   int64
	spans        int
	erroredSpans int
	rootOp       string
}

func summarizeTrace(tr jaegerTrace) traceSummary {
	s := traceSummary{id: tr.TraceID, spans: len(tr.Spans)}
	var earliest int64
	for _, sp := range tr.Spans {
		if sp.Duration/1000 > s.durationMS {
			s.durationMS = sp.Duration / 1000
		}
		if _, ok := spanErrorTag(sp); ok {
			s.erroredSpans++
		}
		if earliest == 0 || sp.StartTime < earliest {
			earliest = sp.StartTime
			s.rootOp = sp.OperationName
		}
	}
	return s
}

func spanErrorTag(sp jaegerSpan) (string, bool) {
	for _, tag := range sp.Tags {
		if tag.Key == "error" && fmt.Sprintf("%v", tag.Value) == "true" {
			return "error=true", true
		}
		if tag.Key == "otel.status_code" && fmt.Sprintf("%v", tag.Value) == "ERROR" {
			return "status=ERROR", true
		}
	}
	return "", false
}

type jaegerTrace struct {
	TraceID   string                   `json:"traceID"`
	Spans     []jaegerSpan             `json:"spans"`
	Processes map[string]jaegerProcess `json:"processes"`
}

type jaegerSpan struct {
	SpanID        string      `json:"spanID"`
	OperationName string      `json:"operationName"`
	StartTime     int64       `json:"startTime"`
	Duration      int64       `json:"duration"`
	ProcessID     string      `json:"processID"`
	Tags          []jaegerTag `json:"tags"`
}

type jaegerTag struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

type jaegerProcess struct {
	ServiceName string `json:"serviceName"`
}

type jaegerSearchResponse struct {
	Data []jaegerTrace `json:"data"`
}
