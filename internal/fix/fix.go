// Package fix implements the remediation pipeline: generate a change from
// accumulated evidence, verify it, stage it, and publish it after human
// approval.
package fix

import (
	"time"

	"github.com/faultline/faultline/internal/evidence"
)

// Status is the fix pipeline state.
type Status string

const (
	StatusGenerating     Status = "GENERATING"
	StatusVerifying      Status = "VERIFICATION_IN_PROGRESS"
	StatusAwaitingReview Status = "AWAITING_REVIEW"
	StatusPRCreating     Status = "PR_CREATING"
	StatusPRCreated      Status = "PR_CREATED"
	StatusRejected       Status = "REJECTED"
	StatusHumanFeedback  Status = "HUMAN_FEEDBACK"
	StatusFailed         Status = "FAILED"
)

// Terminal reports whether the pipeline stops in this status.
func (s Status) Terminal() bool {
	switch s {
	case StatusPRCreated, StatusRejected, StatusFailed:
		return true
	}
	return false
}

// FileChange is one file the proposed fix touches.
type FileChange struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Proposal is a generated fix candidate.
type Proposal struct {
	Summary       string       `json:"summary"`
	RootCause     string       `json:"root_cause"`
	Diff          string       `json:"diff"`
	Files         []FileChange `json:"files"`
	CommitMessage string       `json:"commit_message"`
}

// VerificationReport is the outcome of static validation.
type VerificationReport struct {
	Passed        bool     `json:"passed"`
	Issues        []string `json:"issues,omitempty"`
	SelfCorrected bool     `json:"self_corrected"`
}

// CrossCheckReport is the second-opinion review of a proposal against the
// investigation's other findings.
type CrossCheckReport struct {
	Approved       bool     `json:"approved"`
	Issues         []string `json:"issues,omitempty"`
	RegressionRisk string   `json:"regression_risk"` // low, medium, high
}

// Request carries everything the pipeline needs to produce a fix.
type Request struct {
	SessionID string
	RepoURL   string
	RepoDir   string
	Service   string
	RootCause string
	Findings  []evidence.Finding
	Pins      []evidence.Pin
}

// State is the observable pipeline state, embedded in the investigation
// session and serialized with it.
type State struct {
	SessionID    string              `json:"session_id"`
	Status       Status              `json:"status"`
	Attempt      int                 `json:"attempt"`
	MaxAttempts  int                 `json:"max_attempts"`
	Guidance     []string            `json:"guidance,omitempty"`
	Proposal     *Proposal           `json:"proposal,omitempty"`
	Verification *VerificationReport `json:"verification,omitempty"`
	CrossCheck   *CrossCheckReport   `json:"cross_check,omitempty"`
	Branch       string              `json:"branch,omitempty"`
	PRURL        string              `json:"pr_url,omitempty"`
	Error        string              `json:"error,omitempty"`
	UpdatedAt    time.Time           `json:"updated_at"`
}
