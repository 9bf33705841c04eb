package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Registry owns all investigation state. Mutation happens only through a
// Locked handle, one holder per session at a time.
type Registry struct {
	dir     string
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	mu    sync.Mutex
	state *InvestigationState
}

// NewRegistry opens a registry persisting under dir. An empty dir keeps
// sessions in memory only.
func NewRegistry(dir string) (*Registry, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create session dir: %w", err)
		}
	}
	return &Registry{dir: dir, entries: make(map[string]*entry)}, nil
}

// Create opens a new investigation for the incident and returns its id.
func (r *Registry) Create(inc Incident) (string, error) {
	id := uuid.NewString()
	st := newState(id, inc)

	r.mu.Lock()
	r.entries[id] = &entry{state: st}
	r.mu.Unlock()

	if err := r.persist(st); err != nil {
		return "", err
	}
	return id, nil
}

// Acquire locks the session for exclusive mutation. Callers must Release.
func (r *Registry) Acquire(id string) (*Locked, error) {
	r.mu.Lock()
	ent, ok := r.entries[id]
	if !ok {
		st, err := r.load(id)
		if err != nil {
			r.mu.Unlock()
			return nil, err
		}
		ent = &entry{state: st}
		r.entries[id] = ent
	}
	r.mu.Unlock()

	ent.mu.Lock()
	return &Locked{reg: r, ent: ent}, nil
}

// Get returns a point-in-time copy of the session state.
func (r *Registry) Get(id string) (*InvestigationState, error) {
	l, err := r.Acquire(id)
	if err != nil {
		return nil, err
	}
	defer l.Release()
	return l.ent.state.clone()
}

// Summary is the list view of a session.
type Summary struct {
	ID        string    `json:"id"`
	Service   string    `json:"service"`
	Severity  string    `json:"severity"`
	Phase     Phase     `json:"phase"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// List returns all known sessions, most recently updated first.
func (r *Registry) List() []Summary {
	seen := make(map[string]bool)
	var out []Summary

	r.mu.Lock()
	for id, ent := range r.entries {
		ent.mu.Lock()
		out = append(out, summarize(ent.state))
		ent.mu.Unlock()
		seen[id] = true
	}
	r.mu.Unlock()

	if r.dir != "" {
		if files, err := os.ReadDir(r.dir); err == nil {
			for _, f := range files {
				if !strings.HasSuffix(f.Name(), ".json") {
					continue
				}
				var st InvestigationState
				raw, err := os.ReadFile(filepath.Join(r.dir, f.Name()))
				if err != nil || json.Unmarshal(raw, &st) != nil || st.ID == "" || seen[st.ID] {
					continue
				}
				out = append(out, summarize(&st))
			}
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out
}

func summarize(st *InvestigationState) Summary {
	return Summary{
		ID:        st.ID,
		Service:   st.Incident.Service,
		Severity:  st.Incident.Severity,
		Phase:     st.Phase,
		CreatedAt: st.CreatedAt,
		UpdatedAt: st.UpdatedAt,
	}
}

// Locked is an exclusive handle on one session's state.
type Locked struct {
	reg      *Registry
	ent      *entry
	released atomic.Bool
}

// State exposes the state for mutation while the handle is held.
func (l *Locked) State() *InvestigationState {
	return l.ent.state
}

// Save persists the current state without releasing the handle.
func (l *Locked) Save() error {
	l.ent.state.UpdatedAt = time.Now().UTC()
	return l.reg.persist(l.ent.state)
}

// Release unlocks the session. Safe to call more than once.
func (l *Locked) Release() {
	if l.released.CompareAndSwap(false, true) {
		l.ent.mu.Unlock()
	}
}

func (r *Registry) persist(st *InvestigationState) error {
	if r.dir == "" {
		return nil
	}
	raw, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session %s: %w", st.ID, err)
	}
	if err := os.WriteFile(r.path(st.ID), raw, 0o644); err != nil {
		return fmt.Errorf("write session %s: %w", st.ID, err)
	}
	return nil
}

func (r *Registry) load(id string) (*InvestigationState, error) {
	if r.dir == "" {
		return nil, fmt.Errorf("unknown session %s", id)
	}
	raw, err := os.ReadFile(r.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("unknown session %s", id)
		}
		return nil, fmt.Errorf("read session %s: %w", id, err)
	}
	var st InvestigationState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	if st.TasksCompleted == nil {
		st.TasksCompleted = make(map[string]TaskRecord)
	}
	if st.Results == nil {
		st.Results = make(map[string]json.RawMessage)
	}
	return &st, nil
}

func (r *Registry) path(id string) string {
	// Strip separators and traversal components to prevent path injection.
	safe := strings.ReplaceAll(id, "/", "_")
	safe = strings.ReplaceAll(safe, "\\", "_")
	safe = strings.ReplaceAll(safe, "..", "_")
	return filepath.Join(r.dir, filepath.Base(safe)+".json")
}
