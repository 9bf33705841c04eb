// Package archive keeps completed diagnoses in a local sqlite database and
// finds past incidents similar to a new one.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"unicode"

	_ "modernc.org/sqlite"

	"github.com/faultline/faultline/internal/supervisor"
)

const schema = `
CREATE TABLE IF NOT EXISTS diagnoses (
	session_id TEXT PRIMARY KEY,
	service TEXT NOT NULL,
	severity TEXT DEFAULT '',
	summary TEXT DEFAULT '',
	root_cause TEXT DEFAULT '',
	confidence INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_diagnoses_service ON diagnoses(service);
`

const ftsSchema = `
CREATE VIRTUAL TABLE IF NOT EXISTS diagnoses_fts USING fts5(
	session_id UNINDEXED,
	service,
	summary,
	root_cause
);
`

// Store is the past-diagnosis archive. It satisfies the supervisor's
// Archive interface.
type Store struct {
	db  *sql.DB
	fts bool
}

// NewStore opens the archive database at dbPath, creating it when missing.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open archive db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply archive schema: %w", err)
	}
	// Best-effort migration for databases created before this column existed.
	_, _ = db.Exec(`ALTER TABLE diagnoses ADD COLUMN confidence INTEGER NOT NULL DEFAULT 0`)

	st := &Store{db: db}
	// FTS5 availability depends on the driver build. When the virtual table
	// cannot be created, Similar falls back to same-service lookups.
	if _, err := db.Exec(ftsSchema); err == nil {
		st.fts = true
	}
	return st, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Store upserts a completed diagnosis keyed by session id.
func (s *Store) Store(ctx context.Context, e supervisor.ArchiveEntry) error {
	if e.SessionID == "" {
		return fmt.Errorf("archive: session id is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO diagnoses (session_id, service, severity, summary, root_cause, confidence)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			service = excluded.service,
			severity = excluded.severity,
			summary = excluded.summary,
			root_cause = excluded.root_cause,
			confidence = excluded.confidence
	`, e.SessionID, e.Service, e.Severity, e.Summary, e.RootCause, e.Confidence)
	if err != nil {
		return fmt.Errorf("store diagnosis: %w", err)
	}
	if !s.fts {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM diagnoses_fts WHERE session_id = ?`, e.SessionID); err != nil {
		return fmt.Errorf("reindex diagnosis: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO diagnoses_fts (session_id, service, summary, root_cause)
		VALUES (?, ?, ?, ?)
	`, e.SessionID, e.Service, e.Summary, e.RootCause); err != nil {
		return fmt.Errorf("index diagnosis: %w", err)
	}
	return nil
}

// Similar returns past diagnoses related to the given service and incident
// description, best match first.
func (s *Store) Similar(ctx context.Context, service, description string, limit int) ([]supervisor.ArchiveHit, error) {
	if limit <= 0 {
		limit = 5
	}
	if !s.fts {
		return s.similarByService(ctx, service, limit)
	}
	match := ftsQuery(service + " " + description)
	if match == "" {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, service, summary, bm25(diagnoses_fts)
		FROM diagnoses_fts WHERE diagnoses_fts MATCH ?
		ORDER BY bm25(diagnoses_fts) LIMIT ?`, match, limit)
	if err != nil {
		return nil, fmt.Errorf("search archive: %w", err)
	}
	defer rows.Close()
	return scanHits(rows)
}

// similarByService is the degraded lookup when FTS5 is unavailable: recent
// diagnoses for the same service, newest first.
func (s *Store) similarByService(ctx context.Context, service string, limit int) ([]supervisor.ArchiveHit, error) {
	if service == "" {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, service, summary, 0.0
		FROM diagnoses WHERE service = ?
		ORDER BY created_at DESC LIMIT ?`, service, limit)
	if err != nil {
		return nil, fmt.Errorf("search archive: %w", err)
	}
	defer rows.Close()
	return scanHits(rows)
}

func scanHits(rows *sql.Rows) ([]supervisor.ArchiveHit, error) {
	var out []supervisor.ArchiveHit
	for rows.Next() {
		var h supervisor.ArchiveHit
		if err := rows.Scan(&h.SessionID, &h.Service, &h.Summary, &h.Rank); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// ftsQuery reduces free text to an OR query of lowercase alphanumeric
// terms. Punctuation would otherwise be parsed as MATCH syntax.
func ftsQuery(text string) string {
	clean := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, text)

	seen := make(map[string]bool)
	var terms []string
	for _, w := range strings.Fields(clean) {
		if len(w) < 3 || seen[w] {
			continue
		}
		seen[w] = true
		terms = append(terms, w)
		if len(terms) == 12 {
			break
		}
	}
	return strings.Join(terms, " OR ")
}
