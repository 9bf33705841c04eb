package supervisor

import "context"

// EventPublisher emits lifecycle events (investigation.opened,
// phase.changed, diagnosis.complete, fix.published) to whatever transport
// the caller wired up. Publish failures are logged and swallowed; the
// investigation never blocks on the bus.
type EventPublisher interface {
	Publish(ctx context.Context, kind string, payload map[string]any) error
}

// TimelineSink records a human-readable audit trail per session.
type TimelineSink interface {
	Record(ctx context.Context, sessionID, kind, detail string) error
}

// Archive stores finished diagnoses and surfaces similar past incidents
// when a new one opens.
type Archive interface {
	Similar(ctx context.Context, service, description string, limit int) ([]ArchiveHit, error)
	Store(ctx context.Context, st ArchiveEntry) error
}

// ArchiveHit is one prior incident the archive considers related.
type ArchiveHit struct {
	SessionID string
	Service   string
	Summary   string
	Rank      float64
}

// ArchiveEntry is the durable record of a completed diagnosis.
type ArchiveEntry struct {
	SessionID  string
	Service    string
	Severity   string
	Summary    string
	RootCause  string
	Confidence int
}

// Notifier pushes progress lines at humans (terminal, Slack). Emit must
// not block.
type Notifier interface {
	Emit(source, kind, message string, details map[string]string)
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, map[string]any) error { return nil }

type nopTimeline struct{}

func (nopTimeline) Record(context.Context, string, string, string) error { return nil }

type nopNotifier struct{}

func (nopNotifier) Emit(string, string, string, map[string]string) {}
