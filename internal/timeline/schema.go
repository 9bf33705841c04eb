package timeline

import (
	"time"
)

// Event is one recorded step of an investigation: a task finishing, a
// phase change, a gate resolution, a fix transition.
type Event struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Kind      string    `json:"kind"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionSnapshot summarizes the recorded activity of one session.
type SessionSnapshot struct {
	SessionID  string    `json:"session_id"`
	FirstKind  string    `json:"first_kind"`
	LastKind   string    `json:"last_kind"`
	EventCount int       `json:"event_count"`
	StartedAt  time.Time `json:"started_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Filter narrows an event query. Zero values mean no constraint.
type Filter struct {
	SessionID string
	Kind      string
	Since     *time.Time
	Limit     int
	Offset    int
}

const Schema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id TEXT PRIMARY KEY,
	first_kind TEXT DEFAULT '',
	last_kind TEXT DEFAULT '',
	event_count INTEGER NOT NULL DEFAULT 0,
	last_event_id INTEGER NOT NULL DEFAULT 0,
	started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	detail TEXT DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id);
CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind);
CREATE INDEX IF NOT EXISTS idx_events_created ON events(created_at);
`
