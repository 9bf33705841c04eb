package evidence

import (
	"testing"
)

func TestNewFindingClampsAndDefaults(t *testing.T) {
	f := NewFinding("log_analysis", "error_pattern", "ConnectionTimeout spike", 150, "")
	if f.Confidence != 100 {
		t.Fatalf("expected clamp to 100, got %d", f.Confidence)
	}
	if f.Severity != SeverityInfo {
		t.Fatalf("expected default severity info, got %s", f.Severity)
	}
	if f.ID == "" {
		t.Fatal("expected generated id")
	}
	if f.Verdict != nil {
		t.Fatal("verdict must start absent")
	}

	g := NewFinding("log_analysis", "error_pattern", "x", -5, SeverityHigh)
	if g.Confidence != 0 {
		t.Fatalf("expected clamp to 0, got %d", g.Confidence)
	}
}

func TestAttachVerdictOnce(t *testing.T) {
	f := NewFinding("metrics_analysis", "resource", "memory spike", 70, SeverityHigh)
	v := CriticVerdict{Verdict: VerdictValidated, Confidence: 85, Reasoning: "corroborated", AgentSource: "metrics_analysis"}

	if err := f.AttachVerdict(v); err != nil {
		t.Fatalf("first attach failed: %v", err)
	}
	if f.Verdict == nil || f.Verdict.Verdict != VerdictValidated {
		t.Fatalf("verdict not attached: %+v", f.Verdict)
	}
	if f.Verdict.At.IsZero() {
		t.Fatal("expected timestamp to be set")
	}

	if err := f.AttachVerdict(v); err == nil {
		t.Fatal("second attach must fail")
	}
}

func TestRecorderSnapshotCopies(t *testing.T) {
	r := NewRecorder("sess-1", "log_analysis")
	r.Breadcrumb("error patterns", "app-server logs 2h")
	r.Negative("OOMKilled events", "pod events", "none in window")
	pin := r.Pin(TypeLog, "ConnectionTimeout x47", 85, "log_pattern")

	if pin.SessionID != "sess-1" || pin.Source.Task != "log_analysis" || pin.Source.Tool != "log_pattern" {
		t.Fatalf("pin provenance wrong: %+v", pin)
	}

	pins, crumbs, negs := r.Snapshot()
	if len(pins) != 1 || len(crumbs) != 1 || len(negs) != 1 {
		t.Fatalf("snapshot sizes: %d %d %d", len(pins), len(crumbs), len(negs))
	}

	// Mutating the snapshot must not affect the recorder.
	pins[0].Claim = "mutated"
	again, _, _ := r.Snapshot()
	if again[0].Claim != "ConnectionTimeout x47" {
		t.Fatal("snapshot is not a copy")
	}
}
