package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/faultline/faultline/internal/evidence"
)

// LogSearchTool queries a Loki-compatible log store for raw entries.
type LogSearchTool struct {
	baseURL  string
	client   *http.Client
	recorder *evidence.Recorder
}

// NewLogSearchTool creates a log search tool against a Loki-style endpoint.
func NewLogSearchTool(baseURL string, rec *evidence.Recorder) *LogSearchTool {
	return &LogSearchTool{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		client:   &http.Client{Timeout: 15 * time.Second},
		recorder: rec,
	}
}

func (t *LogSearchTool) Name() string { return "log_search" }

func (t *LogSearchTool) Description() string {
	return "Search application logs for entries matching a text filter within a recent time window."
}

func (t *LogSearchTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "Text to match in log lines, e.g. an error message fragment",
			},
			"service": map[string]any{
				"type":        "string",
				"description": "Optional service name to scope the search",
			},
			"since_minutes": map[string]any{
				"type":        "integer",
				"description": "Look-back window in minutes (default 60)",
			},
			"limit": map[string]any{
				"type":        "integer",
				"description": "Maximum entries to return (default 50)",
			},
		},
		"required": []string{"query"},
	}
}

func (t *LogSearchTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	query := GetString(params, "query", "")
	if query == "" {
		return "Error: query is required", nil
	}
	service := GetString(params, "service", "")
	since := GetInt(params, "since_minutes", 60)
	limit := GetInt(params, "limit", 50)

	selector := `{job=~".+"}`
	if service != "" {
		selector = fmt.Sprintf(`{service=%q}`, service)
	}
	logql := fmt.Sprintf("%s |= %q", selector, query)

	entries, err := t.queryRange(ctx, logql, since, limit)
	if err != nil {
		return "", err
	}

	where := fmt.Sprintf("log store, last %dm", since)
	if t.recorder != nil {
		t.recorder.Breadcrumb(fmt.Sprintf("log search %q", query), where)
	}
	if len(entries) == 0 {
		if t.recorder != nil {
			t.recorder.Negative(fmt.Sprintf("log entries matching %q", query), where, "no matches in window")
		}
		return fmt.Sprintf("No log entries matching %q in the last %d minutes.", query, since), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d log entries matching %q (last %dm):\n", len(entries), query, since)
	for _, e := range entries {
		b.WriteString(e)
		b.WriteString("\n")
	}
	return truncateObservation(b.String()), nil
}

func (t *LogSearchTool) queryRange(ctx context.Context, logql string, sinceMinutes, limit int) ([]string, error) {
	q := url.Values{}
	q.Set("query", logql)
	q.Set("since", fmt.Sprintf("%dm", sinceMinutes))
	q.Set("limit", fmt.Sprintf("%d", limit))

	var resp lokiResponse
	if err := getJSON(ctx, t.client, t.baseURL+"/loki/api/v1/query_range?"+q.Encode(), &resp); err != nil {
		return nil, err
	}

	var entries []string
	for _, stream := range resp.Data.Result {
		for _, v := range stream.Values {
			if len(v) == 2 {
				entries = append(entries, v[1])
			}
		}
	}
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// LogPatternTool aggregates matching log lines into frequency-ranked
// patterns, the seed signal for most investigations.
type LogPatternTool struct {
	search *LogSearchTool
}

// NewLogPatternTool creates a pattern aggregation tool sharing the search
// tool's endpoint.
func NewLogPatternTool(baseURL string, rec *evidence.Recorder) *LogPatternTool {
	return &LogPatternTool{search: NewLogSearchTool(baseURL, rec)}
}

func (t *LogPatternTool) Name() string { return "log_patterns" }

func (t *LogPatternTool) Description() string {
	return "Cluster recent error-level log lines into frequency-ranked patterns."
}

func (t *LogPatternTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"service": map[string]any{
				"type":        "string",
				"description": "Optional service name to scope the aggregation",
			},
			"since_minutes": map[string]any{
				"type":        "integer",
				"description": "Look-back window in minutes (default 120)",
			},
		},
	}
}

func (t *LogPatternTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	service := GetString(params, "service", "")
	since := GetInt(params, "since_minutes", 120)

	selector := `{job=~".+"}`
	if service != "" {
		selector = fmt.Sprintf(`{service=%q}`, service)
	}
	logql := fmt.Sprintf(`%s |~ "(?i)(error|exception|fatal|timeout)"`, selector)

	entries, err := t.search.queryRange(ctx, logql, since, 500)
	if err != nil {
		return "", err
	}

	where := fmt.Sprintf("log store, last %dm", since)
	if t.search.recorder != nil {
		t.search.recorder.Breadcrumb("error pattern aggregation", where)
	}
	if len(entries) == 0 {
		if t.search.recorder != nil {
			t.search.recorder.Negative("error-level log patterns", where, "no error lines in window")
		}
		return fmt.Sprintf("No error-level log lines in the last %d minutes.", since), nil
	}

	counts := make(map[string]int)
	for _, e := range entries {
		counts[normalizeLogLine(e)]++
	}
	type pattern struct {
		text  string
		count int
	}
	patterns := make([]pattern, 0, len(counts))
	for text, n := range counts {
		patterns = append(patterns, pattern{text, n})
	}
	sort.Slice(patterns, func(i, j int) bool {
		if patterns[i].count != patterns[j].count {
			return patterns[i].count > patterns[j].count
		}
		return patterns[i].text < patterns[j].text
	})
	if len(patterns) > 10 {
		patterns = patterns[:10]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Top error patterns (last %dm, %d lines total):\n", since, len(entries))
	for i, p := range patterns {
		fmt.Fprintf(&b, "%d. [x%d] %s\n", i+1, p.count, p.text)
	}
	return truncateObservation(b.String()), nil
}

// normalizeLogLine strips volatile tokens (timestamps, ids, numbers) so
// lines differing only in those collapse into one pattern.
func normalizeLogLine(line string) string {
	fields := strings.Fields(line)
	for i, f := range fields {
		if len(f) > 8 && strings.Count(f, "-") >= 2 {
			fields[i] = "<ts>"
			continue
		}
		if isMostlyDigits(f) {
			fields[i] = "<n>"
		}
	}
	out := strings.Join(fields, " ")
	if len(out) > 160 {
		out = out[:160]
	}
	return out
}

func isMostlyDigits(s string) bool {
	if s == "" {
		return false
	}
	digits := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	return digits*2 > len(s)
}

type lokiResponse struct {
	Status string `json:"status"`
	Data   struct {
		Result []struct {
			Stream map[string]string `json:"stream"`
			Values [][2]string       `json:"values"`
		} `json:"result"`
	} `json:"data"`
}

// getJSON fetches a URL and decodes the JSON body, folding non-200 statuses
// into errors that carry the status code for unreachable-detection.
func getJSON(ctx context.Context, client *http.Client, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, truncateObservation(string(body)))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}
