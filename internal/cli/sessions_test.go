package cli

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/faultline/faultline/internal/session"
	"github.com/faultline/faultline/internal/timeline"
)

func seedSession(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("FAULTLINE_HOME", home)
	t.Setenv("FAULTLINE_CONFIG", "")
	t.Setenv("FAULTLINE_ENV_FILE", "")
	dataDir := filepath.Join(home, ".faultline")

	reg, err := session.NewRegistry(filepath.Join(dataDir, "sessions"))
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	id, err := reg.Create(session.Incident{
		Service:     "checkout-api",
		Severity:    "critical",
		Description: "error rate spike after deploy",
		Source:      "test",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	tl, err := timeline.NewService(filepath.Join(dataDir, "timeline.db"))
	if err != nil {
		t.Fatalf("timeline.NewService: %v", err)
	}
	defer tl.Close()
	ctx := context.Background()
	if err := tl.Record(ctx, id, "investigation.opened", "checkout-api"); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := tl.Record(ctx, id, "phase.changed", "LOGS_ANALYZED"); err != nil {
		t.Fatalf("Record: %v", err)
	}
	return id
}

func TestSessionsListShowsSeededSession(t *testing.T) {
	id := seedSession(t)

	out, err := runRootCommand(t, "sessions", "list")
	if err != nil {
		t.Fatalf("sessions list: %v", err)
	}
	if !strings.Contains(out, id) || !strings.Contains(out, "checkout-api") {
		t.Fatalf("listing missing session, got %q", out)
	}
}

func TestSessionsShowRendersStateAndTimeline(t *testing.T) {
	id := seedSession(t)

	out, err := runRootCommand(t, "sessions", "show", id)
	if err != nil {
		t.Fatalf("sessions show: %v", err)
	}
	for _, want := range []string{id, "checkout-api", "Timeline", "investigation.opened"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestSessionsShowJSON(t *testing.T) {
	id := seedSession(t)
	t.Cleanup(func() { sessionsJSON = false })

	out, err := runRootCommand(t, "sessions", "show", id, "--json")
	if err != nil {
		t.Fatalf("sessions show --json: %v", err)
	}
	var payload struct {
		State  *session.InvestigationState `json:"state"`
		Events []timeline.Event            `json:"events"`
	}
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("unmarshal: %v\nout=%s", err, out)
	}
	if payload.State == nil || payload.State.ID != id {
		t.Fatalf("unexpected state: %+v", payload.State)
	}
	if len(payload.Events) != 2 {
		t.Fatalf("events = %d, want 2", len(payload.Events))
	}
}

func TestSessionsShowUnknownID(t *testing.T) {
	seedSession(t)
	if _, err := runRootCommand(t, "sessions", "show", "sess-missing"); err == nil {
		t.Fatal("expected error for unknown session")
	}
}
