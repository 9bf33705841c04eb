package timeline

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(filepath.Join(t.TempDir(), "timeline.db"))
	if err != nil {
		t.Fatalf("failed to create timeline service: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func TestRecordAndQueryEvents(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if err := svc.Record(ctx, "sess-1", "investigation.opened", "service checkout-api"); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := svc.Record(ctx, "sess-2", "investigation.opened", ""); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := svc.Record(ctx, "sess-1", "task.completed", "log_analysis"); err != nil {
		t.Fatalf("record: %v", err)
	}

	events, err := svc.Events(ctx, Filter{SessionID: "sess-1"})
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events for sess-1, got %d", len(events))
	}
	if events[0].Kind != "investigation.opened" || events[1].Kind != "task.completed" {
		t.Errorf("events out of order: %q then %q", events[0].Kind, events[1].Kind)
	}
	if events[1].Detail != "log_analysis" {
		t.Errorf("detail = %q, want log_analysis", events[1].Detail)
	}
	if events[0].CreatedAt.IsZero() {
		t.Errorf("expected created_at to be set")
	}
}

func TestRecordRequiresSessionAndKind(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if err := svc.Record(ctx, "", "task.completed", ""); err == nil {
		t.Fatalf("expected error for empty session id")
	}
	if err := svc.Record(ctx, "sess-1", "", ""); err == nil {
		t.Fatalf("expected error for empty kind")
	}
}

func TestEventsFilterByKind(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_ = svc.Record(ctx, "sess-1", "task.completed", "log_analysis")
	_ = svc.Record(ctx, "sess-1", "phase.changed", "LOGS_ANALYZED")
	_ = svc.Record(ctx, "sess-1", "task.completed", "metrics_analysis")

	events, err := svc.Events(ctx, Filter{SessionID: "sess-1", Kind: "task.completed"})
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 task.completed events, got %d", len(events))
	}
}

func TestEventsLimitAndOffset(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for _, detail := range []string{"one", "two", "three", "four"} {
		_ = svc.Record(ctx, "sess-1", "step", detail)
	}

	events, err := svc.Events(ctx, Filter{SessionID: "sess-1", Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Detail != "two" || events[1].Detail != "three" {
		t.Errorf("got %q and %q, want two and three", events[0].Detail, events[1].Detail)
	}
}

func TestSessionSnapshotTracksActivity(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_ = svc.Record(ctx, "sess-1", "investigation.opened", "")
	_ = svc.Record(ctx, "sess-1", "task.completed", "log_analysis")
	_ = svc.Record(ctx, "sess-1", "diagnosis.complete", "confidence 80")

	snaps, err := svc.Sessions(ctx, 10)
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	if len(snaps) != 1 {
		t.Fatalf("expected 1 snapshot, got %d", len(snaps))
	}
	sn := snaps[0]
	if sn.SessionID != "sess-1" {
		t.Errorf("session id = %q", sn.SessionID)
	}
	if sn.EventCount != 3 {
		t.Errorf("event count = %d, want 3", sn.EventCount)
	}
	if sn.FirstKind != "investigation.opened" {
		t.Errorf("first kind = %q", sn.FirstKind)
	}
	if sn.LastKind != "diagnosis.complete" {
		t.Errorf("last kind = %q", sn.LastKind)
	}
	if sn.StartedAt.IsZero() || sn.UpdatedAt.IsZero() {
		t.Errorf("expected timestamps to be set")
	}
}

func TestSessionsOrderedByRecentActivity(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_ = svc.Record(ctx, "sess-old", "investigation.opened", "")
	_ = svc.Record(ctx, "sess-new", "investigation.opened", "")
	_ = svc.Record(ctx, "sess-old", "task.completed", "log_analysis")

	snaps, err := svc.Sessions(ctx, 10)
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	if len(snaps) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(snaps))
	}
	if snaps[0].SessionID != "sess-old" || snaps[1].SessionID != "sess-new" {
		t.Errorf("order = %q, %q; want sess-old first", snaps[0].SessionID, snaps[1].SessionID)
	}
}

func TestReopenExistingDatabase(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "timeline.db")
	ctx := context.Background()

	svc, err := NewService(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if err := svc.Record(ctx, "sess-1", "investigation.opened", ""); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := svc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	svc, err = NewService(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer svc.Close()

	events, err := svc.Events(ctx, Filter{SessionID: "sess-1"})
	if err != nil {
		t.Fatalf("events after reopen: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 persisted event, got %d", len(events))
	}
}

func TestEventsSinceFilter(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_ = svc.Record(ctx, "sess-1", "step", "early")

	future := time.Now().Add(time.Hour).UTC()
	events, err := svc.Events(ctx, Filter{SessionID: "sess-1", Since: &future})
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events after future cutoff, got %d", len(events))
	}
}
