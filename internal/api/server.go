// Package api exposes the daemon's local control endpoint. The reply and
// sessions CLI commands talk to it; operator traffic otherwise flows
// through the channels.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/faultline/faultline/internal/bus"
	"github.com/faultline/faultline/internal/config"
	"github.com/faultline/faultline/internal/fix"
	"github.com/faultline/faultline/internal/gate"
	"github.com/faultline/faultline/internal/session"
	"github.com/faultline/faultline/internal/timeline"
)

// Server is the daemon control API.
type Server struct {
	cfg      config.APIConfig
	bus      *bus.MessageBus
	gates    *gate.Manager
	registry *session.Registry
	timeline *timeline.Service
	version  string
	started  time.Time

	// StartFix, when set, lets POST /api/v1/fix kick off the remediation
	// pipeline for a diagnosed session. Left nil when fix is disabled.
	StartFix func(ctx context.Context, sessionID string) (*fix.State, error)

	srv *http.Server
}

// NewServer wires the API over the daemon's shared components. The
// timeline may be nil; session listings then omit event counts.
func NewServer(cfg config.APIConfig, messageBus *bus.MessageBus, gates *gate.Manager, registry *session.Registry, tl *timeline.Service, version string) *Server {
	s := &Server{
		cfg:      cfg,
		bus:      messageBus,
		gates:    gates,
		registry: registry,
		timeline: tl,
		version:  version,
		started:  time.Now(),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/reply", s.handleReply)
	mux.HandleFunc("/api/v1/fix", s.handleFix)
	mux.HandleFunc("/api/v1/sessions", s.handleSessions)
	mux.HandleFunc("/api/v1/sessions/", s.handleSessionDetail)
	s.srv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the route table, used directly in tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.ListenAndServe() }()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) authorized(r *http.Request) bool {
	token := strings.TrimSpace(s.cfg.Token)
	if token == "" {
		return true
	}
	h := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
	return h == token
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	json.NewEncoder(w).Encode(map[string]any{
		"version":        s.version,
		"uptime_seconds": int(time.Since(s.started).Seconds()),
		"sessions":       len(s.registry.List()),
	})
}

// ReplyRequest is the body of POST /api/v1/reply.
type ReplyRequest struct {
	SessionID string `json:"session_id"`
	Kind      string `json:"kind,omitempty"`
	Text      string `json:"text"`
}

func (s *Server) handleReply(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.authorized(r) {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	var body ReplyRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	body.SessionID = strings.TrimSpace(body.SessionID)
	body.Text = strings.TrimSpace(body.Text)
	if body.SessionID == "" || body.Text == "" {
		http.Error(w, "session_id and text required", http.StatusBadRequest)
		return
	}
	pending := s.gates.PendingKinds(body.SessionID)
	if len(pending) == 0 {
		http.Error(w, "no pending gate for session", http.StatusConflict)
		return
	}
	meta := map[string]string{}
	if kind := strings.TrimSpace(body.Kind); kind != "" {
		meta[bus.MetaKeyGate] = kind
	}
	s.bus.PublishInbound(&bus.InboundMessage{
		Channel:   "api",
		SenderID:  "api",
		SessionID: body.SessionID,
		Content:   body.Text,
		Metadata:  meta,
		Timestamp: time.Now(),
	})
	json.NewEncoder(w).Encode(map[string]any{"ok": true, "pending": pending})
}

// FixRequest is the body of POST /api/v1/fix.
type FixRequest struct {
	SessionID string `json:"session_id"`
}

func (s *Server) handleFix(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.authorized(r) {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	if s.StartFix == nil {
		http.Error(w, "fix pipeline not enabled", http.StatusServiceUnavailable)
		return
	}
	var body FixRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	body.SessionID = strings.TrimSpace(body.SessionID)
	if body.SessionID == "" {
		http.Error(w, "session_id required", http.StatusBadRequest)
		return
	}
	st, err := s.StartFix(r.Context(), body.SessionID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	json.NewEncoder(w).Encode(map[string]any{"ok": true, "state": st})
}

// SessionSummary is one row of GET /api/v1/sessions.
type SessionSummary struct {
	ID         string    `json:"id"`
	Service    string    `json:"service"`
	Severity   string    `json:"severity"`
	Phase      string    `json:"phase"`
	Confidence int       `json:"confidence"`
	Events     int       `json:"events,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.authorized(r) {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	counts := map[string]int{}
	if s.timeline != nil {
		if snaps, err := s.timeline.Sessions(r.Context(), 0); err == nil {
			for _, sn := range snaps {
				counts[sn.SessionID] = sn.EventCount
			}
		}
	}

	out := []SessionSummary{}
	for _, sum := range s.registry.List() {
		row := SessionSummary{
			ID:        sum.ID,
			Service:   sum.Service,
			Severity:  sum.Severity,
			Phase:     string(sum.Phase),
			Events:    counts[sum.ID],
			UpdatedAt: sum.UpdatedAt,
		}
		if st, err := s.registry.Get(sum.ID); err == nil {
			row.Confidence = st.OverallConfidence
		}
		out = append(out, row)
	}
	json.NewEncoder(w).Encode(out)
}

// SessionDetail is the body of GET /api/v1/sessions/{id}.
type SessionDetail struct {
	State  *session.InvestigationState `json:"state"`
	Events []timeline.Event            `json:"events,omitempty"`
}

func (s *Server) handleSessionDetail(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.authorized(r) {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	id := strings.TrimSpace(strings.TrimPrefix(r.URL.Path, "/api/v1/sessions/"))
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, "session id required", http.StatusBadRequest)
		return
	}
	st, err := s.registry.Get(id)
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	detail := SessionDetail{State: st}
	if s.timeline != nil {
		if events, err := s.timeline.Events(r.Context(), timeline.Filter{SessionID: id}); err == nil {
			detail.Events = events
		}
	}
	json.NewEncoder(w).Encode(detail)
}
