package tasks

import (
	"encoding/json"
	"strings"

	"github.com/faultline/faultline/internal/evidence"
)

// One strongly-typed report per task kind, decoded at the task boundary.
// The decode helpers are total: a model answer that fails to parse becomes
// a low-confidence default instead of an error.

const fallbackConfidence = 30

type LogReport struct {
	Summary    string       `json:"summary"`
	Patterns   []LogPattern `json:"patterns,omitempty"`
	Confidence int          `json:"confidence"`
	Severity   string       `json:"severity,omitempty"`
}

type LogPattern struct {
	Pattern string `json:"pattern"`
	Count   int    `json:"count"`
	Level   string `json:"level,omitempty"`
}

type MetricsReport struct {
	Summary    string          `json:"summary"`
	Anomalies  []MetricAnomaly `json:"anomalies,omitempty"`
	Correlated bool            `json:"correlated_with_logs,omitempty"`
	Confidence int             `json:"confidence"`
}

type MetricAnomaly struct {
	Metric      string `json:"metric"`
	Observation string `json:"observation"`
}

type ClusterReport struct {
	Summary       string   `json:"summary"`
	UnhealthyPods []string `json:"unhealthy_pods,omitempty"`
	Events        []string `json:"events,omitempty"`
	Confidence    int      `json:"confidence"`
}

type TraceReport struct {
	Summary         string     `json:"summary"`
	SlowSpans       []SpanNote `json:"slow_spans,omitempty"`
	ErroredServices []string   `json:"errored_services,omitempty"`
	Confidence      int        `json:"confidence"`
}

type SpanNote struct {
	Service    string `json:"service"`
	Operation  string `json:"operation"`
	DurationMS int    `json:"duration_ms"`
}

type CodeReport struct {
	Summary    string        `json:"summary"`
	Suspects   []CodeSuspect `json:"suspects,omitempty"`
	Confidence int           `json:"confidence"`
}

type CodeSuspect struct {
	File   string `json:"file"`
	Reason string `json:"reason"`
}

type ChangeReport struct {
	Summary    string       `json:"summary"`
	Commits    []CommitNote `json:"commits,omitempty"`
	Confidence int          `json:"confidence"`
}

type CommitNote struct {
	Hash    string `json:"hash"`
	Subject string `json:"subject"`
	Risk    string `json:"risk,omitempty"`
}

// decodeAnswer parses a model answer into the report, applying the
// low-confidence fallback when the answer is not valid JSON. It reports
// whether the parse succeeded.
func decodeAnswer(answer string, out any) bool {
	txt := strings.TrimSpace(answer)
	txt = strings.TrimPrefix(txt, "```json")
	txt = strings.TrimPrefix(txt, "```")
	txt = strings.TrimSuffix(txt, "```")
	txt = strings.TrimSpace(txt)

	// Models sometimes wrap the object in prose. Take the outermost braces.
	if !strings.HasPrefix(txt, "{") {
		if i := strings.Index(txt, "{"); i >= 0 {
			if j := strings.LastIndex(txt, "}"); j > i {
				txt = txt[i : j+1]
			}
		}
	}
	return json.Unmarshal([]byte(txt), out) == nil
}

// fallbackSummary carries the raw answer into a default report.
func fallbackSummary(answer string) string {
	s := strings.TrimSpace(answer)
	if len(s) > 500 {
		s = s[:500]
	}
	return s
}

func clampConfidence(c int) int {
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return c
}

func severityFrom(s string) evidence.Severity {
	switch strings.ToLower(s) {
	case "critical":
		return evidence.SeverityCritical
	case "high":
		return evidence.SeverityHigh
	case "medium":
		return evidence.SeverityMedium
	case "low":
		return evidence.SeverityLow
	default:
		return evidence.SeverityInfo
	}
}

func decodeLogReport(answer string) (any, []evidence.Finding) {
	var r LogReport
	if !decodeAnswer(answer, &r) {
		r = LogReport{Summary: fallbackSummary(answer), Confidence: fallbackConfidence}
	}
	r.Confidence = clampConfidence(r.Confidence)
	f := evidence.NewFinding(string(KindLogAnalysis), "logs", r.Summary, r.Confidence, severityFrom(r.Severity))
	return r, []evidence.Finding{f}
}

func decodeMetricsReport(answer string) (any, []evidence.Finding) {
	var r MetricsReport
	if !decodeAnswer(answer, &r) {
		r = MetricsReport{Summary: fallbackSummary(answer), Confidence: fallbackConfidence}
	}
	r.Confidence = clampConfidence(r.Confidence)
	f := evidence.NewFinding(string(KindMetricsAnalysis), "metrics", r.Summary, r.Confidence, "")
	return r, []evidence.Finding{f}
}

func decodeClusterReport(answer string) (any, []evidence.Finding) {
	var r ClusterReport
	if !decodeAnswer(answer, &r) {
		r = ClusterReport{Summary: fallbackSummary(answer), Confidence: fallbackConfidence}
	}
	r.Confidence = clampConfidence(r.Confidence)
	sev := evidence.SeverityInfo
	if len(r.UnhealthyPods) > 0 {
		sev = evidence.SeverityHigh
	}
	f := evidence.NewFinding(string(KindClusterHealth), "cluster", r.Summary, r.Confidence, sev)
	return r, []evidence.Finding{f}
}

func decodeTraceReport(answer string) (any, []evidence.Finding) {
	var r TraceReport
	if !decodeAnswer(answer, &r) {
		r = TraceReport{Summary: fallbackSummary(answer), Confidence: fallbackConfidence}
	}
	r.Confidence = clampConfidence(r.Confidence)
	f := evidence.NewFinding(string(KindTraceAnalysis), "tracing", r.Summary, r.Confidence, "")
	return r, []evidence.Finding{f}
}

func decodeCodeReport(answer string) (any, []evidence.Finding) {
	var r CodeReport
	if !decodeAnswer(answer, &r) {
		r = CodeReport{Summary: fallbackSummary(answer), Confidence: fallbackConfidence}
	}
	r.Confidence = clampConfidence(r.Confidence)
	f := evidence.NewFinding(string(KindCodeImpact), "code", r.Summary, r.Confidence, "")
	return r, []evidence.Finding{f}
}

func decodeChangeReport(answer string) (any, []evidence.Finding) {
	var r ChangeReport
	if !decodeAnswer(answer, &r) {
		r = ChangeReport{Summary: fallbackSummary(answer), Confidence: fallbackConfidence}
	}
	r.Confidence = clampConfidence(r.Confidence)
	f := evidence.NewFinding(string(KindChangeCorrelation), "changes", r.Summary, r.Confidence, "")
	return r, []evidence.Finding{f}
}
