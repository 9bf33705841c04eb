package tasks

import (
	"strings"
	"testing"

	"github.com/faultline/faultline/internal/evidence"
)

func TestDecodeLogReport(t *testing.T) {
	raw := `{"summary": "timeouts dominate", "patterns": [{"pattern": "ConnectionTimeout", "count": 47, "level": "error"}], "confidence": 82, "severity": "high"}`
	report, findings := decodeLogReport(raw)
	r := report.(LogReport)
	if r.Confidence != 82 || r.Patterns[0].Count != 47 {
		t.Fatalf("unexpected report %+v", r)
	}
	if len(findings) != 1 {
		t.Fatalf("expected one finding, got %d", len(findings))
	}
	f := findings[0]
	if f.Category != "logs" || f.Confidence != 82 || f.Severity != evidence.SeverityHigh {
		t.Fatalf("unexpected finding %+v", f)
	}
}

func TestDecodeStripsFences(t *testing.T) {
	raw := "```json\n{\"summary\": \"ok\", \"confidence\": 55}\n```"
	report, _ := decodeMetricsReport(raw)
	if r := report.(MetricsReport); r.Confidence != 55 || r.Summary != "ok" {
		t.Fatalf("fenced JSON did not decode: %+v", r)
	}
}

func TestDecodeExtractsEmbeddedObject(t *testing.T) {
	raw := `Here is my assessment: {"summary": "one slow span", "confidence": 70} Hope that helps.`
	report, _ := decodeTraceReport(raw)
	if r := report.(TraceReport); r.Confidence != 70 || r.Summary != "one slow span" {
		t.Fatalf("embedded JSON did not decode: %+v", r)
	}
}

func TestDecodeFallsBackOnGarbage(t *testing.T) {
	report, findings := decodeCodeReport("the handler at line 40 looks wrong")
	r := report.(CodeReport)
	if r.Confidence != fallbackConfidence {
		t.Fatalf("expected fallback confidence, got %d", r.Confidence)
	}
	if !strings.Contains(r.Summary, "line 40") {
		t.Fatalf("fallback should keep the raw text, got %q", r.Summary)
	}
	if findings[0].Confidence != fallbackConfidence {
		t.Fatalf("fallback finding should be low confidence, got %d", findings[0].Confidence)
	}
}

func TestDecodeClampsConfidence(t *testing.T) {
	report, _ := decodeChangeReport(`{"summary": "sure", "confidence": 900}`)
	if r := report.(ChangeReport); r.Confidence != 100 {
		t.Fatalf("expected clamp to 100, got %d", r.Confidence)
	}
	report, _ = decodeChangeReport(`{"summary": "sure", "confidence": -5}`)
	if r := report.(ChangeReport); r.Confidence != 0 {
		t.Fatalf("expected clamp to 0, got %d", r.Confidence)
	}
}

func TestClusterSeverityFollowsPodHealth(t *testing.T) {
	_, findings := decodeClusterReport(`{"summary": "oomkills", "unhealthy_pods": ["checkout-7d9f"], "confidence": 75}`)
	if findings[0].Severity != evidence.SeverityHigh {
		t.Fatalf("unhealthy pods should raise severity, got %s", findings[0].Severity)
	}
	_, findings = decodeClusterReport(`{"summary": "all healthy", "confidence": 60}`)
	if findings[0].Severity != evidence.SeverityInfo {
		t.Fatalf("healthy cluster should stay info, got %s", findings[0].Severity)
	}
}

func TestSeverityFrom(t *testing.T) {
	cases := map[string]evidence.Severity{
		"critical": evidence.SeverityCritical,
		"HIGH":     evidence.SeverityHigh,
		"medium":   evidence.SeverityMedium,
		"low":      evidence.SeverityLow,
		"":         evidence.SeverityInfo,
		"bogus":    evidence.SeverityInfo,
	}
	for in, want := range cases {
		if got := severityFrom(in); got != want {
			t.Fatalf("severityFrom(%q) = %s, want %s", in, got, want)
		}
	}
}
