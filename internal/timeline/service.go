// Package timeline persists the audit trail of every investigation in a
// local sqlite database.
package timeline

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Service stores and queries investigation events. One row is appended per
// recorded step and a per-session snapshot row is kept current alongside.
type Service struct {
	db *sql.DB
}

// NewService opens the timeline database at dbPath, creating it and its
// schema when missing.
func NewService(dbPath string) (*Service, error) {
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open timeline db: %w", err)
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	// Best-effort migrations for databases created before these columns
	// existed (no-op on fresh files).
	_, _ = db.Exec(`ALTER TABLE events ADD COLUMN detail TEXT DEFAULT ''`)
	_, _ = db.Exec(`ALTER TABLE sessions ADD COLUMN first_kind TEXT DEFAULT ''`)
	_, _ = db.Exec(`ALTER TABLE sessions ADD COLUMN last_event_id INTEGER NOT NULL DEFAULT 0`)
	_, _ = db.Exec(`CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind)`)
	return &Service{db: db}, nil
}

func (s *Service) Close() error {
	return s.db.Close()
}

// Record appends an event to the trail and refreshes the session snapshot.
// It satisfies the supervisor's timeline sink.
func (s *Service) Record(ctx context.Context, sessionID, kind, detail string) error {
	if sessionID == "" || kind == "" {
		return fmt.Errorf("timeline: session id and kind are required")
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO events (session_id, kind, detail) VALUES (?, ?, ?)`,
		sessionID, kind, detail)
	if err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	eventID, _ := res.LastInsertId()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, first_kind, last_kind, event_count, last_event_id)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			last_kind = excluded.last_kind,
			event_count = event_count + 1,
			last_event_id = excluded.last_event_id,
			updated_at = datetime('now')
	`, sessionID, kind, kind, eventID)
	if err != nil {
		return fmt.Errorf("update session snapshot: %w", err)
	}
	return nil
}

// Events returns the recorded trail matching filter, oldest first.
func (s *Service) Events(ctx context.Context, filter Filter) ([]Event, error) {
	query := `SELECT id, session_id, kind, COALESCE(detail,''), created_at FROM events WHERE 1=1`
	args := []any{}

	if filter.SessionID != "" {
		query += " AND session_id = ?"
		args = append(args, filter.SessionID)
	}
	if filter.Kind != "" {
		query += " AND kind = ?"
		args = append(args, filter.Kind)
	}
	if filter.Since != nil {
		// created_at is CURRENT_TIMESTAMP text; bind the cutoff in the
		// same layout so the comparison stays lexicographic.
		query += " AND created_at >= ?"
		args = append(args, filter.Since.UTC().Format("2006-01-02 15:04:05"))
	}

	query += " ORDER BY id ASC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Kind, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Sessions returns session snapshots, most recently active first.
func (s *Service) Sessions(ctx context.Context, limit int) ([]SessionSnapshot, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, COALESCE(first_kind,''), COALESCE(last_kind,''), event_count, started_at, updated_at
		FROM sessions ORDER BY last_event_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionSnapshot
	for rows.Next() {
		var sn SessionSnapshot
		if err := rows.Scan(&sn.SessionID, &sn.FirstKind, &sn.LastKind, &sn.EventCount, &sn.StartedAt, &sn.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, sn)
	}
	return out, rows.Err()
}
