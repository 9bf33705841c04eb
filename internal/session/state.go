// Package session holds per-investigation state and the registry that
// hands out locked handles to it.
package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/faultline/faultline/internal/evidence"
	"github.com/faultline/faultline/internal/fix"
)

// Phase is the investigation's position in the diagnosis state machine.
type Phase string

const (
	PhaseInitial           Phase = "INITIAL"
	PhaseLogsAnalyzed      Phase = "LOGS_ANALYZED"
	PhaseMetricsAnalyzed   Phase = "METRICS_ANALYZED"
	PhaseK8sAnalyzed       Phase = "K8S_ANALYZED"
	PhaseTracingAnalyzed   Phase = "TRACING_ANALYZED"
	PhaseCodeAnalyzed      Phase = "CODE_ANALYZED"
	PhaseDiagnosisComplete Phase = "DIAGNOSIS_COMPLETE"
	PhaseReinvestigating   Phase = "RE_INVESTIGATING"
	PhaseFixInProgress     Phase = "FIX_IN_PROGRESS"
)

// Task completion statuses.
const (
	TaskSuccess = "success"
	TaskSkipped = "skipped"
	TaskFailed  = "failed"
)

// Incident is the alert that opened the investigation.
type Incident struct {
	ID          string `json:"id"`
	Service     string `json:"service"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
	Source      string `json:"source,omitempty"`
	TraceID     string `json:"trace_id,omitempty"`
	RepoURL     string `json:"repo_url,omitempty"`
	Namespace   string `json:"namespace,omitempty"`
}

// TaskRecord marks one diagnostic task as done, successfully or not.
type TaskRecord struct {
	Status      string    `json:"status"`
	Reason      string    `json:"reason,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

// InvestigationState is everything known about one investigation. It is
// mutated only while its registry handle is held; readers get JSON
// snapshots.
type InvestigationState struct {
	ID        string    `json:"id"`
	Incident  Incident  `json:"incident"`
	Phase     Phase     `json:"phase"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	TasksCompleted map[string]TaskRecord      `json:"tasks_completed"`
	Results        map[string]json.RawMessage `json:"results,omitempty"`

	Findings    []evidence.Finding         `json:"findings,omitempty"`
	Pins        []evidence.Pin             `json:"pins,omitempty"`
	Breadcrumbs []evidence.Breadcrumb      `json:"breadcrumbs,omitempty"`
	Negatives   []evidence.NegativeFinding `json:"negative_findings,omitempty"`

	OverallConfidence int        `json:"overall_confidence"`
	RepoConfirmed     bool       `json:"repo_confirmed,omitempty"`
	Reinvestigated    bool       `json:"reinvestigated"`
	Fix               *fix.State `json:"fix,omitempty"`
}

func newState(id string, inc Incident) *InvestigationState {
	now := time.Now().UTC()
	return &InvestigationState{
		ID:             id,
		Incident:       inc,
		Phase:          PhaseInitial,
		CreatedAt:      now,
		UpdatedAt:      now,
		TasksCompleted: make(map[string]TaskRecord),
		Results:        make(map[string]json.RawMessage),
	}
}

// CompleteTask records a task as done. A task completes at most once per
// phase cycle; a second completion is a caller error.
func (s *InvestigationState) CompleteTask(name, status, reason string) error {
	if _, ok := s.TasksCompleted[name]; ok {
		return fmt.Errorf("task %s already completed in session %s", name, s.ID)
	}
	s.TasksCompleted[name] = TaskRecord{Status: status, Reason: reason, CompletedAt: time.Now().UTC()}
	return nil
}

// Completed reports whether the named task has finished in this cycle.
func (s *InvestigationState) Completed(name string) bool {
	_, ok := s.TasksCompleted[name]
	return ok
}

// SetResult stores a task's typed report. Each slot is written at most
// once per cycle.
func (s *InvestigationState) SetResult(name string, report any) error {
	if _, ok := s.Results[name]; ok {
		return fmt.Errorf("result for %s already recorded in session %s", name, s.ID)
	}
	raw, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode %s result: %w", name, err)
	}
	if s.Results == nil {
		s.Results = make(map[string]json.RawMessage)
	}
	s.Results[name] = raw
	return nil
}

// Result returns the raw stored report for a task, if any.
func (s *InvestigationState) Result(name string) (json.RawMessage, bool) {
	raw, ok := s.Results[name]
	return raw, ok
}

// AddFindings appends findings from a merged task result.
func (s *InvestigationState) AddFindings(fs ...evidence.Finding) {
	s.Findings = append(s.Findings, fs...)
}

// AddEvidence appends a task run's trail to the session.
func (s *InvestigationState) AddEvidence(pins []evidence.Pin, crumbs []evidence.Breadcrumb, negs []evidence.NegativeFinding) {
	s.Pins = append(s.Pins, pins...)
	s.Breadcrumbs = append(s.Breadcrumbs, crumbs...)
	s.Negatives = append(s.Negatives, negs...)
}

// BeginReinvestigation reopens the named tasks so a challenged verdict can
// be re-examined. Allowed once per session.
func (s *InvestigationState) BeginReinvestigation(tasks []string) error {
	if s.Reinvestigated {
		return fmt.Errorf("session %s already re-investigated", s.ID)
	}
	s.Reinvestigated = true
	for _, name := range tasks {
		delete(s.TasksCompleted, name)
		delete(s.Results, name)
	}
	s.Phase = PhaseReinvestigating
	return nil
}

// Snapshot renders the state as JSON for readers outside the lock.
func (s *InvestigationState) Snapshot() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

func (s *InvestigationState) clone() (*InvestigationState, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var out InvestigationState
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
