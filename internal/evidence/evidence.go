// Package evidence holds the typed evidence model shared by analysis tasks:
// pins, breadcrumbs, negative findings, and the confidence ledger.
package evidence

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type classifies where a piece of evidence came from.
type Type string

const (
	TypeLog    Type = "log"
	TypeMetric Type = "metric"
	TypeTrace  Type = "trace"
	TypeK8s    Type = "k8s"
	TypeCode   Type = "code"
	TypeChange Type = "change"
)

// ValidTypes lists every evidence type in a stable order.
var ValidTypes = []Type{TypeLog, TypeMetric, TypeTrace, TypeK8s, TypeCode, TypeChange}

// Severity grades how serious a finding is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Provenance records which tool in which task produced a pin.
type Provenance struct {
	Tool string `json:"tool"`
	Task string `json:"task"`
}

// Pin is an immutable, confidence-scored claim backed by a tool observation.
type Pin struct {
	ID         string     `json:"id"`
	SessionID  string     `json:"session_id"`
	Type       Type       `json:"type"`
	Claim      string     `json:"claim"`
	Confidence int        `json:"confidence"`
	Source     Provenance `json:"source"`
	CreatedAt  time.Time  `json:"created_at"`
}

// NewPin builds a pin with a fresh id and a clamped confidence.
func NewPin(sessionID string, t Type, claim string, confidence int, source Provenance) Pin {
	return Pin{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		Type:       t,
		Claim:      claim,
		Confidence: clampConfidence(confidence),
		Source:     source,
		CreatedAt:  time.Now().UTC(),
	}
}

// Breadcrumb records what was checked and where, for traceability.
type Breadcrumb struct {
	Checked  string    `json:"checked"`
	Location string    `json:"location"`
	At       time.Time `json:"at"`
}

// NegativeFinding records what was checked and found absent.
type NegativeFinding struct {
	Checked  string    `json:"checked"`
	Location string    `json:"location"`
	Note     string    `json:"note,omitempty"`
	At       time.Time `json:"at"`
}

// CriticVerdict is the critic's judgement of one finding.
type CriticVerdict struct {
	Verdict     string    `json:"verdict"` // "validated" or "challenged"
	Confidence  int       `json:"confidence"`
	Reasoning   string    `json:"reasoning"`
	AgentSource string    `json:"agent_source"`
	At          time.Time `json:"at"`
}

// VerdictValidated and VerdictChallenged are the only verdict values.
const (
	VerdictValidated  = "validated"
	VerdictChallenged = "challenged"
)

// Finding is an agent-attributed claim about the incident.
// The critic verdict starts absent and is attached at most once.
type Finding struct {
	ID         string         `json:"id"`
	Task       string         `json:"task"`
	Category   string         `json:"category"`
	Summary    string         `json:"summary"`
	Confidence int            `json:"confidence"`
	Severity   Severity       `json:"severity"`
	Verdict    *CriticVerdict `json:"verdict,omitempty"`
}

// NewFinding builds a finding with a fresh id and a clamped confidence.
// An empty severity defaults to info.
func NewFinding(task, category, summary string, confidence int, severity Severity) Finding {
	if severity == "" {
		severity = SeverityInfo
	}
	return Finding{
		ID:         uuid.NewString(),
		Task:       task,
		Category:   category,
		Summary:    summary,
		Confidence: clampConfidence(confidence),
		Severity:   severity,
	}
}

// AttachVerdict sets the critic verdict. It fails if one is already attached.
func (f *Finding) AttachVerdict(v CriticVerdict) error {
	if f.Verdict != nil {
		return fmt.Errorf("finding %s already has a verdict", f.ID)
	}
	if v.At.IsZero() {
		v.At = time.Now().UTC()
	}
	f.Verdict = &v
	return nil
}

// Recorder accumulates evidence produced during one task run.
// It is append-only; Snapshot returns copies.
type Recorder struct {
	mu        sync.Mutex
	sessionID string
	task      string

	pins        []Pin
	breadcrumbs []Breadcrumb
	negatives   []NegativeFinding
}

// NewRecorder creates a recorder bound to one session and task.
func NewRecorder(sessionID, task string) *Recorder {
	return &Recorder{sessionID: sessionID, task: task}
}

// Pin records a typed claim with the tool that produced it.
func (r *Recorder) Pin(t Type, claim string, confidence int, tool string) Pin {
	pin := NewPin(r.sessionID, t, claim, confidence, Provenance{Tool: tool, Task: r.task})
	r.mu.Lock()
	r.pins = append(r.pins, pin)
	r.mu.Unlock()
	return pin
}

// Breadcrumb records a checked location.
func (r *Recorder) Breadcrumb(checked, location string) {
	r.mu.Lock()
	r.breadcrumbs = append(r.breadcrumbs, Breadcrumb{Checked: checked, Location: location, At: time.Now().UTC()})
	r.mu.Unlock()
}

// Negative records something checked and found absent.
func (r *Recorder) Negative(checked, location, note string) {
	r.mu.Lock()
	r.negatives = append(r.negatives, NegativeFinding{Checked: checked, Location: location, Note: note, At: time.Now().UTC()})
	r.mu.Unlock()
}

// Snapshot returns copies of everything recorded so far.
func (r *Recorder) Snapshot() ([]Pin, []Breadcrumb, []NegativeFinding) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pins := make([]Pin, len(r.pins))
	copy(pins, r.pins)
	crumbs := make([]Breadcrumb, len(r.breadcrumbs))
	copy(crumbs, r.breadcrumbs)
	negs := make([]NegativeFinding, len(r.negatives))
	copy(negs, r.negatives)
	return pins, crumbs, negs
}

func clampConfidence(c int) int {
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return c
}
