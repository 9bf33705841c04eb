// Package gate provides human-in-the-loop gates that suspend an
// investigation on an external decision with a timeout and a safe default.
package gate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Kind identifies what a gate is asking the human.
type Kind string

const (
	// KindRepoConfirm asks the human to confirm an identified repository URL.
	KindRepoConfirm Kind = "repo_confirm"
	// KindRepoMismatch asks how to proceed when evidence points at a
	// different repository than configured.
	KindRepoMismatch Kind = "repo_mismatch"
	// KindFixApproval asks for approval of a staged fix before publishing.
	KindFixApproval Kind = "fix_approval"
	// KindQuestion is a free-form question to the human.
	KindQuestion Kind = "question"
)

// Default suspend timeouts. Quick confirmations resolve fast or not at all;
// fix review gets longer because a human is reading a diff.
const (
	DefaultQuickTimeout = 180 * time.Second
	DefaultFixTimeout   = 300 * time.Second
	MaxFixTimeout       = 600 * time.Second
)

// Decision is the parsed outcome of a gate.
type Decision string

const (
	// DecisionConfirm approves the question as asked.
	DecisionConfirm Decision = "confirm"
	// DecisionReject declines or skips the optional step.
	DecisionReject Decision = "reject"
	// DecisionCorrection supplies structured replacement values.
	DecisionCorrection Decision = "correction"
	// DecisionFeedback supplies free-form guidance.
	DecisionFeedback Decision = "feedback"
)

// Resolution is what a suspended caller receives when its gate resolves.
type Resolution struct {
	Decision   Decision          `json:"decision"`
	Message    string            `json:"message,omitempty"`
	Fields     map[string]string `json:"fields,omitempty"`
	TimedOut   bool              `json:"timed_out"`
	ResolvedAt time.Time         `json:"resolved_at"`
}

// Request describes the gate being armed.
type Request struct {
	SessionID string            `json:"session_id"`
	Kind      Kind              `json:"kind"`
	Prompt    string            `json:"prompt"`
	Context   map[string]string `json:"context,omitempty"`
	// Timeout overrides the kind's default when positive.
	Timeout time.Duration `json:"-"`
}

type gateKey struct {
	sessionID string
	kind      Kind
}

// Manager owns all pending gates, keyed by session and kind. Exactly one
// gate of a given kind may be outstanding per session.
type Manager struct {
	mu      sync.Mutex
	pending map[gateKey]chan Resolution

	// Notify, when set, is called after a gate is armed and before the
	// caller suspends. It is invoked outside the manager lock.
	Notify func(req Request, deadline time.Time)

	// QuickTimeout and FixTimeout override the defaults when positive.
	QuickTimeout time.Duration
	FixTimeout   time.Duration
}

// NewManager creates a gate manager.
func NewManager() *Manager {
	return &Manager{pending: make(map[gateKey]chan Resolution)}
}

// Wait arms the gate, emits the notification, and suspends until a reply
// arrives or the timeout fires. On timeout the kind's safe default is
// applied exactly once and the gate is no longer pending. Arming a kind
// that is already pending for the session is a caller error.
func (m *Manager) Wait(ctx context.Context, req Request) (Resolution, error) {
	key := gateKey{sessionID: req.SessionID, kind: req.Kind}

	ch := make(chan Resolution, 1)
	m.mu.Lock()
	if _, exists := m.pending[key]; exists {
		m.mu.Unlock()
		return Resolution{}, fmt.Errorf("gate %s already armed for session %s", req.Kind, req.SessionID)
	}
	m.pending[key] = ch
	m.mu.Unlock()

	timeout := m.timeoutFor(req)
	deadline := time.Now().Add(timeout)
	if m.Notify != nil {
		m.Notify(req, deadline)
	}

	slog.Info("gate armed",
		"session_id", req.SessionID,
		"kind", req.Kind,
		"timeout", timeout)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		m.remove(key)
		if res.ResolvedAt.IsZero() {
			res.ResolvedAt = time.Now().UTC()
		}
		slog.Info("gate resolved", "session_id", req.SessionID, "kind", req.Kind, "decision", res.Decision)
		return res, nil
	case <-timer.C:
		m.remove(key)
		slog.Warn("gate timed out", "session_id", req.SessionID, "kind", req.Kind)
		return m.safeDefault(req.Kind), nil
	case <-ctx.Done():
		m.remove(key)
		return m.safeDefault(req.Kind), nil
	}
}

// Deliver resolves a pending gate. It reports false when no gate of that
// kind is pending for the session, which makes a reply that arrives after
// the timeout a no-op.
func (m *Manager) Deliver(sessionID string, kind Kind, res Resolution) bool {
	key := gateKey{sessionID: sessionID, kind: kind}
	m.mu.Lock()
	ch, ok := m.pending[key]
	m.mu.Unlock()
	if !ok {
		return false
	}
	if res.ResolvedAt.IsZero() {
		res.ResolvedAt = time.Now().UTC()
	}
	// Non-blocking send (channel is buffered with size 1)
	select {
	case ch <- res:
	default:
	}
	return true
}

// Pending reports whether a gate of the given kind is outstanding.
func (m *Manager) Pending(sessionID string, kind Kind) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.pending[gateKey{sessionID: sessionID, kind: kind}]
	return ok
}

// PendingKinds lists the outstanding gate kinds for a session.
func (m *Manager) PendingKinds(sessionID string) []Kind {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kinds []Kind
	for key := range m.pending {
		if key.sessionID == sessionID {
			kinds = append(kinds, key.kind)
		}
	}
	return kinds
}

func (m *Manager) remove(key gateKey) {
	m.mu.Lock()
	delete(m.pending, key)
	m.mu.Unlock()
}

func (m *Manager) timeoutFor(req Request) time.Duration {
	if req.Timeout > 0 {
		if req.Kind == KindFixApproval && req.Timeout > MaxFixTimeout {
			return MaxFixTimeout
		}
		return req.Timeout
	}
	if req.Kind == KindFixApproval {
		if m.FixTimeout > 0 {
			return m.FixTimeout
		}
		return DefaultFixTimeout
	}
	if m.QuickTimeout > 0 {
		return m.QuickTimeout
	}
	return DefaultQuickTimeout
}

// safeDefault is what a gate resolves to when nobody answers. Optional
// steps are skipped; a fix without review is rejected.
func (m *Manager) safeDefault(kind Kind) Resolution {
	return Resolution{
		Decision:   DecisionReject,
		TimedOut:   true,
		ResolvedAt: time.Now().UTC(),
	}
}
