package fix

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/faultline/faultline/internal/gate"
)

// Generator produces a fix proposal from evidence and accumulated guidance.
type Generator interface {
	Generate(ctx context.Context, req Request, guidance []string) (*Proposal, error)
}

// Verifier statically validates a proposal.
type Verifier interface {
	Verify(ctx context.Context, p *Proposal) VerificationReport
}

// CrossChecker reviews a proposal against the rest of the investigation.
type CrossChecker interface {
	Check(ctx context.Context, req Request, p *Proposal) CrossCheckReport
}

// Stager commits the proposal to a local branch and returns the branch name.
type Stager interface {
	Stage(ctx context.Context, req Request, p *Proposal) (string, error)
}

// Publisher pushes the staged branch and opens a pull request.
type Publisher interface {
	Publish(ctx context.Context, req Request, branch string, p *Proposal) (string, error)
}

const defaultMaxAttempts = 3

// Pipeline drives one fix from generation through review to publication.
type Pipeline struct {
	generator  Generator
	verifier   Verifier
	crossCheck CrossChecker
	stager     Stager
	publisher  Publisher
	gates      *gate.Manager

	// MaxAttempts bounds the generate/review cycle. Defaults to 3.
	MaxAttempts int
	// OnUpdate, when set, observes every state transition.
	OnUpdate func(st State)

	mu        sync.Mutex
	published map[string]bool
}

// NewPipeline assembles a fix pipeline.
func NewPipeline(g Generator, v Verifier, c CrossChecker, s Stager, p Publisher, gates *gate.Manager) *Pipeline {
	return &Pipeline{
		generator:   g,
		verifier:    v,
		crossCheck:  c,
		stager:      s,
		publisher:   p,
		gates:       gates,
		MaxAttempts: defaultMaxAttempts,
		published:   make(map[string]bool),
	}
}

// Run executes the pipeline until a terminal status. Operational failures
// land in the returned state; only programming errors (like arming a gate
// twice) surface as errors.
func (p *Pipeline) Run(ctx context.Context, req Request) (*State, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	st := &State{SessionID: req.SessionID, MaxAttempts: maxAttempts}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		st.Attempt = attempt
		p.transition(st, StatusGenerating)

		proposal, err := p.generator.Generate(ctx, req, st.Guidance)
		if err != nil {
			return p.fail(st, fmt.Sprintf("generation failed: %v", err)), nil
		}
		st.Proposal = proposal

		p.transition(st, StatusVerifying)
		report := p.verifier.Verify(ctx, proposal)
		if !report.Passed {
			// One bounded self-correction pass: regenerate with the
			// verification issues appended to the guidance.
			corrected, corrErr := p.generator.Generate(ctx, req,
				append(append([]string{}, st.Guidance...), correctionGuidance(report.Issues)))
			if corrErr == nil {
				report = p.verifier.Verify(ctx, corrected)
				report.SelfCorrected = true
				if report.Passed {
					proposal = corrected
					st.Proposal = corrected
				}
			}
			if !report.Passed {
				st.Verification = &report
				return p.fail(st, "verification rejected the proposal"), nil
			}
		}
		st.Verification = &report

		check := p.crossCheck.Check(ctx, req, proposal)
		st.CrossCheck = &check

		branch, err := p.stager.Stage(ctx, req, proposal)
		if err != nil {
			return p.fail(st, fmt.Sprintf("staging failed: %v", err)), nil
		}
		st.Branch = branch

		p.transition(st, StatusAwaitingReview)
		res, err := p.gates.Wait(ctx, gate.Request{
			SessionID: req.SessionID,
			Kind:      gate.KindFixApproval,
			Prompt:    reviewPrompt(proposal, report, check),
			Context: map[string]string{
				"branch":  branch,
				"attempt": fmt.Sprintf("%d/%d", attempt, maxAttempts),
			},
		})
		if err != nil {
			return st, err
		}

		switch {
		case res.TimedOut:
			// Nobody reviewed the fix; without review it does not ship.
			return p.fail(st, "fix approval timed out"), nil
		case res.Decision == gate.DecisionConfirm:
			return p.publish(ctx, st, req, branch, proposal)
		case res.Decision == gate.DecisionReject:
			p.transition(st, StatusRejected)
			return st, nil
		default:
			// Correction and feedback both feed the next generation.
			p.transition(st, StatusHumanFeedback)
			st.Guidance = append(st.Guidance, feedbackGuidance(res))
		}
	}

	return p.fail(st, fmt.Sprintf("exhausted %d attempts without approval", maxAttempts)), nil
}

// publish runs the side-effecting step exactly once per session.
func (p *Pipeline) publish(ctx context.Context, st *State, req Request, branch string, proposal *Proposal) (*State, error) {
	p.mu.Lock()
	if p.published[req.SessionID] {
		p.mu.Unlock()
		return st, fmt.Errorf("fix already published for session %s", req.SessionID)
	}
	p.published[req.SessionID] = true
	p.mu.Unlock()

	p.transition(st, StatusPRCreating)
	prURL, err := p.publisher.Publish(ctx, req, branch, proposal)
	if err != nil {
		p.mu.Lock()
		delete(p.published, req.SessionID)
		p.mu.Unlock()
		return p.fail(st, fmt.Sprintf("publish failed: %v", err)), nil
	}
	st.PRURL = prURL
	p.transition(st, StatusPRCreated)
	return st, nil
}

func (p *Pipeline) fail(st *State, reason string) *State {
	st.Error = reason
	p.transition(st, StatusFailed)
	return st
}

func (p *Pipeline) transition(st *State, to Status) {
	st.Status = to
	st.UpdatedAt = time.Now().UTC()
	slog.Info("fix status", "session", st.SessionID, "status", to, "attempt", st.Attempt)
	if p.OnUpdate != nil {
		p.OnUpdate(*st)
	}
}

func correctionGuidance(issues []string) string {
	return "The previous attempt failed validation. Fix these issues: " + strings.Join(issues, "; ")
}

func feedbackGuidance(res gate.Resolution) string {
	if len(res.Fields) > 0 {
		parts := make([]string, 0, len(res.Fields))
		for k, v := range res.Fields {
			parts = append(parts, k+"="+v)
		}
		return "Reviewer corrections: " + strings.Join(parts, ", ")
	}
	return "Reviewer feedback: " + res.Message
}

func reviewPrompt(p *Proposal, v VerificationReport, c CrossCheckReport) string {
	var b strings.Builder
	b.WriteString("A fix is staged and needs review.\n\n")
	b.WriteString("Summary: " + p.Summary + "\n")
	if p.RootCause != "" {
		b.WriteString("Root cause: " + p.RootCause + "\n")
	}
	fmt.Fprintf(&b, "Verification: passed (self-corrected: %v)\n", v.SelfCorrected)
	fmt.Fprintf(&b, "Cross-check: approved=%v risk=%s\n", c.Approved, c.RegressionRisk)
	if len(c.Issues) > 0 {
		b.WriteString("Cross-check notes: " + strings.Join(c.Issues, "; ") + "\n")
	}
	b.WriteString("\n" + p.Diff + "\n\nReply approve, reject, or feedback: <guidance>.")
	return b.String()
}
