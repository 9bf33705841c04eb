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

// MetricsQueryTool evaluates an instant PromQL expression.
type MetricsQueryTool struct {
	baseURL  string
	client   *http.Client
	recorder *evidence.Recorder
}

// NewMetricsQueryTool creates an instant-query tool against a
// Prometheus-compatible endpoint.
func NewMetricsQueryTool(baseURL string, rec *evidence.Recorder) *MetricsQueryTool {
	return &MetricsQueryTool{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		client:   &http.Client{Timeout: 15 * time.Second},
		recorder: rec,
	}
}

func (t *MetricsQueryTool) Name() string { return "metrics_query" }

func (t *MetricsQueryTool) Description() string {
	return "Evaluate an instant PromQL expression against the metrics store."
}

func (t *MetricsQueryTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "PromQL expression, e.g. rate(http_requests_total{status=~\"5..\"}[5m])",
			},
		},
		"required": []string{"query"},
	}
}

func (t *MetricsQueryTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	query := GetString(params, "query", "")
	if query == "" {
		return "Error: query is required", nil
	}

	q := url.Values{}
	q.Set("query", query)

	var resp promResponse
	if err := getJSON(ctx, t.client, t.baseURL+"/api/v1/query?"+q.Encode(), &resp); err != nil {
		return "", err
	}
	if t.recorder != nil {
		t.recorder.Breadcrumb(fmt.Sprintf("metrics query %q", query), "metrics store")
	}
	if len(resp.Data.Result) == 0 {
		if t.recorder != nil {
			t.recorder.Negative(fmt.Sprintf("series for %q", query), "metrics store", "query returned no series")
		}
		return fmt.Sprintf("No series returned for %q.", query), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d series for %q:\n", len(resp.Data.Result), query)
	for _, r := range resp.Data.Result {
		if len(r.Value) == 2 {
			fmt.Fprintf(&b, "%s = %v\n", formatMetricLabels(r.Metric), r.Value[1])
		}
	}
	return truncateObservation(b.String()), nil
}

// MetricsRangeTool evaluates a PromQL expression over a time range, for
// spotting when a signal changed.
type MetricsRangeTool struct {
	baseURL  string
	client   *http.Client
	recorder *evidence.Recorder
}

// NewMetricsRangeTool creates a range-query tool against a
// Prometheus-compatible endpoint.
func NewMetricsRangeTool(baseURL string, rec *evidence.Recorder) *MetricsRangeTool {
	return &MetricsRangeTool{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		client:   &http.Client{Timeout: 15 * time.Second},
		recorder: rec,
	}
}

func (t *MetricsRangeTool) Name() string { return "metrics_range" }

func (t *MetricsRangeTool) Description() string {
	return "Evaluate a PromQL expression over a recent time range to see how it evolved."
}

func (t *MetricsRangeTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "PromQL expression",
			},
			"since_minutes": map[string]any{
				"type":        "integer",
				"description": "Look-back window in minutes (default 60)",
			},
			"step_seconds": map[string]any{
				"type":        "integer",
				"description": "Resolution step in seconds (default 60)",
			},
		},
		"required": []string{"query"},
	}
}

func (t *MetricsRangeTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	query := GetString(params, "query", "")
	if query == "" {
		return "Error: query is required", nil
	}
	since := GetInt(params, "since_minutes", 60)
	step := GetInt(params, "step_seconds", 60)

	end := time.Now().UTC()
	start := end.Add(-time.Duration(since) * time.Minute)

	q := url.Values{}
	q.Set("query", query)
	q.Set("start", fmt.Sprintf("%d", start.Unix()))
	q.Set("end", fmt.Sprintf("%d", end.Unix()))
	q.Set("step", fmt.Sprintf("%d", step))

	var resp promResponse
	if err := getJSON(ctx, t.client, t.baseURL+"/api/v1/query_range?"+q.Encode(), &resp); err != nil {
		return "", err
	}
	where := fmt.Sprintf("metrics store, last %dm", since)
	if t.recorder != nil {
		t.recorder.Breadcrumb(fmt.Sprintf("metrics range query %q", query), where)
	}
	if len(resp.Data.Result) == 0 {
		if t.recorder != nil {
			t.recorder.Negative(fmt.Sprintf("series for %q", query), where, "range query returned no series")
		}
		return fmt.Sprintf("No series returned for %q over the last %d minutes.", query, since), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d series for %q (last %dm, step %ds):\n", len(resp.Data.Result), query, since, step)
	for _, r := range resp.Data.Result {
		fmt.Fprintf(&b, "%s: %s\n", formatMetricLabels(r.Metric), summarizeSeries(r.Values))
	}
	return truncateObservation(b.String()), nil
}

// summarizeSeries compresses a sample vector into first/min/max/last, which
// is what the model needs to spot a step change without raw sample dumps.
func summarizeSeries(values [][2]any) string {
	nums := make([]float64, 0, len(values))
	for _, v := range values {
		if s, ok := v[1].(string); ok {
			var f float64
			if _, err := fmt.Sscanf(s, "%g", &f); err == nil {
				nums = append(nums, f)
			}
		}
	}
	if len(nums) == 0 {
		return "(no samples)"
	}
	min, max := nums[0], nums[0]
	for _, n := range nums[1:] {
		if n < min {
			min = n
		}
		if n > max {
			max = n
		}
	}
	return fmt.Sprintf("first=%g min=%g max=%g last=%g samples=%d", nums[0], min, max, nums[len(nums)-1], len(nums))
}

func formatMetricLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return "{}"
	}
	name := labels["__name__"]
	parts := make([]string, 0, len(labels))
	for k, v := range labels {
		if k == "__name__" {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%q", k, v))
	}
	if len(parts) == 0 {
		return name
	}
	sort.Strings(parts)
	return name + "{" + strings.Join(parts, ",") + "}"
}

type promResponse struct {
	Status string `json:"status"`
	Data   struct {
		ResultType string `json:"resultType"`
		Result     []struct {
			Metric map[string]string `json:"metric"`
			Value  [2]any            `json:"value"`
			Values [][2]any          `json:"values"`
		} `json:"result"`
	} `json:"data"`
}
