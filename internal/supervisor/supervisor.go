package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os/exec"
	"strings"

	"github.com/faultline/faultline/internal/evidence"
	"github.com/faultline/faultline/internal/fix"
	"github.com/faultline/faultline/internal/gate"
	"github.com/faultline/faultline/internal/session"
	"github.com/faultline/faultline/internal/tasks"
)

const (
	defaultMaxConcurrent = 3
	defaultMaxRounds     = 8

	// reinvestigateThreshold is the critic confidence a challenged verdict
	// must exceed before a task is reopened.
	reinvestigateThreshold = 80
)

// Supervisor owns the investigation lifecycle for every session in the
// registry. Wire the optional collaborators before calling Run; nil ones
// are replaced with no-ops.
type Supervisor struct {
	Registry *session.Registry
	Sources  tasks.Sources
	Gates    *gate.Manager

	Critic   Critic
	Ledger   *evidence.Ledger
	Events   EventPublisher
	Timeline TimelineSink
	Archive  Archive
	Notify   Notifier

	// MaxConcurrent caps parallel diagnostic tasks per round.
	MaxConcurrent int
	// MaxRounds bounds the dispatch loop for one Run call.
	MaxRounds int

	fixPipeline *fix.Pipeline
}

// New builds a supervisor over the given registry, data sources and gates.
func New(reg *session.Registry, src tasks.Sources, gates *gate.Manager) *Supervisor {
	return &Supervisor{
		Registry: reg,
		Sources:  src,
		Gates:    gates,
		Ledger:   evidence.NewLedger(),
	}
}

// AttachFixPipeline wires the fix pipeline and persists its state
// transitions into the owning session.
func (s *Supervisor) AttachFixPipeline(p *fix.Pipeline) {
	p.OnUpdate = s.persistFix
	s.fixPipeline = p
}

// Open registers a new incident and returns its session id. The
// investigation itself starts when Run is called.
func (s *Supervisor) Open(ctx context.Context, inc session.Incident) (string, error) {
	id, err := s.Registry.Create(inc)
	if err != nil {
		return "", err
	}
	s.publish(ctx, "investigation.opened", map[string]any{
		"session_id": id,
		"service":    inc.Service,
		"severity":   inc.Severity,
	})
	s.record(ctx, id, "investigation.opened", inc.Description)
	return id, nil
}

// roundPlan is what one locked planning pass produces: the tasks to
// dispatch, the prompt context for them, and the repository gate to arm
// first, when one is needed.
type roundPlan struct {
	phase session.Phase
	kinds []tasks.Kind
	tc    tasks.Context
	gate  *gate.Request
}

// Run drives one session from its current phase toward diagnosis. It is
// idempotent: calling it on a finished session is a no-op, and calling it
// after a partial run resumes from the completed-task set. The session
// handle is held only while planning and merging; gate waits and task
// dispatch run unlocked so snapshot reads stay responsive.
func (s *Supervisor) Run(ctx context.Context, id string) error {
	snap, err := s.Registry.Get(id)
	if err != nil {
		return err
	}
	background := s.similarBackground(ctx, snap)
	sem := newSemaphore(s.concurrency())

	for round := 0; round < s.rounds(); round++ {
		plan, done, err := s.planRoundLocked(id, background)
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		if plan.gate != nil {
			res, err := s.Gates.Wait(ctx, *plan.gate)
			if err != nil {
				return err
			}
			plan.tc, err = s.applyRepoResolution(ctx, id, background, res)
			if err != nil {
				return err
			}
		}

		slog.Info("dispatching round", "session", id, "phase", plan.phase, "tasks", len(plan.kinds))
		outcomes := dispatch(ctx, plan.kinds, plan.tc, s.Sources, sem)

		finished, err := s.mergeRoundLocked(ctx, id, outcomes)
		if err != nil {
			return err
		}
		if finished {
			if snap, err := s.Registry.Get(id); err == nil {
				s.finishDiagnosis(ctx, snap)
			} else {
				slog.Warn("reading finished session", "session", id, "error", err)
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return fmt.Errorf("session %s did not converge within %d rounds", id, s.rounds())
}

// planRoundLocked computes the next round under the session lock. done is
// true when the investigation has nothing left to dispatch.
func (s *Supervisor) planRoundLocked(id, background string) (roundPlan, bool, error) {
	locked, err := s.Registry.Acquire(id)
	if err != nil {
		return roundPlan{}, false, err
	}
	defer locked.Release()
	st := locked.State()

	if st.Phase == session.PhaseDiagnosisComplete || st.Phase == session.PhaseFixInProgress {
		return roundPlan{}, true, nil
	}
	kinds := planRound(st.Phase, st)
	if len(kinds) == 0 {
		return roundPlan{}, true, nil
	}
	return roundPlan{
		phase: st.Phase,
		kinds: kinds,
		tc:    taskContext(st, background),
		gate:  s.repoGate(st, kinds),
	}, false, nil
}

// mergeRoundLocked folds a round's outcomes into session state, advances
// the phase, and persists. It reports whether the diagnosis completed.
func (s *Supervisor) mergeRoundLocked(ctx context.Context, id string, outcomes []tasks.Outcome) (bool, error) {
	locked, err := s.Registry.Acquire(id)
	if err != nil {
		return false, err
	}
	defer locked.Release()
	st := locked.State()

	var reopen []string
	for _, out := range outcomes {
		if err := s.merge(ctx, st, out, &reopen); err != nil {
			return false, err
		}
	}
	s.recomputeConfidence(st)

	if len(reopen) > 0 {
		if err := st.BeginReinvestigation(reopen); err != nil {
			return false, err
		}
		s.publish(ctx, "phase.changed", map[string]any{"session_id": st.ID, "phase": st.Phase})
		s.record(ctx, st.ID, "reinvestigation", strings.Join(reopen, ", "))
		s.emit("reinvestigation", fmt.Sprintf("critic challenged %s, reopening", strings.Join(reopen, ", ")), map[string]string{"session_id": st.ID})
	} else if next := ComputePhase(st.TasksCompleted); next != st.Phase {
		st.Phase = next
		s.publish(ctx, "phase.changed", map[string]any{"session_id": st.ID, "phase": next})
		s.record(ctx, st.ID, "phase.changed", string(next))
	}

	if err := locked.Save(); err != nil {
		return false, err
	}
	return st.Phase == session.PhaseDiagnosisComplete, nil
}

// StartFix launches the fix pipeline for a diagnosed session. Calling it
// is the human attestation the pipeline requires; there is no separate
// confirmation step before generation starts.
func (s *Supervisor) StartFix(ctx context.Context, id string) (*fix.State, error) {
	if s.fixPipeline == nil {
		return nil, errors.New("no fix pipeline configured")
	}
	locked, err := s.Registry.Acquire(id)
	if err != nil {
		return nil, err
	}
	st := locked.State()
	if st.Phase != session.PhaseDiagnosisComplete {
		phase := st.Phase
		locked.Release()
		if phase == session.PhaseFixInProgress {
			return nil, fmt.Errorf("fix already started for session %s", id)
		}
		return nil, fmt.Errorf("fix requires a completed diagnosis, session %s is %s", id, phase)
	}
	if !st.RepoConfirmed || st.Incident.RepoURL == "" {
		locked.Release()
		return nil, fmt.Errorf("no confirmed repository for session %s", id)
	}

	req := fix.Request{
		SessionID: st.ID,
		RepoURL:   st.Incident.RepoURL,
		RepoDir:   s.Sources.RepoDir,
		Service:   st.Incident.Service,
		RootCause: topFinding(st.Findings),
		Findings:  st.Findings,
		Pins:      st.Pins,
	}
	st.Phase = session.PhaseFixInProgress
	if err := locked.Save(); err != nil {
		locked.Release()
		return nil, err
	}
	// Release before the pipeline runs: fix review keeps a gate open for
	// minutes and readers still need the session.
	locked.Release()

	s.publish(ctx, "fix.started", map[string]any{"session_id": id})
	fs, err := s.fixPipeline.Run(ctx, req)
	if fs != nil {
		s.persistFix(*fs)
	}
	if err != nil {
		return fs, err
	}
	switch fs.Status {
	case fix.StatusPRCreated:
		s.publish(ctx, "fix.published", map[string]any{"session_id": id, "pr_url": fs.PRURL})
		s.record(ctx, id, "fix.published", fs.PRURL)
	case fix.StatusRejected:
		s.publish(ctx, "fix.rejected", map[string]any{"session_id": id})
		s.record(ctx, id, "fix.rejected", "reviewer rejected the proposal")
	default:
		s.publish(ctx, "fix.failed", map[string]any{"session_id": id, "error": fs.Error})
		s.record(ctx, id, "fix.failed", fs.Error)
	}
	return fs, nil
}

// merge folds one task outcome into session state. Completion conflicts
// are programming errors and propagate.
func (s *Supervisor) merge(ctx context.Context, st *session.InvestigationState, out tasks.Outcome, reopen *[]string) error {
	name := string(out.Kind)
	switch out.Status {
	case tasks.StatusSkipped:
		if err := st.CompleteTask(name, session.TaskSkipped, out.Reason); err != nil {
			return err
		}
		s.record(ctx, st.ID, "task.skipped", name+": "+out.Reason)
	case tasks.StatusFailed:
		if err := st.CompleteTask(name, session.TaskFailed, out.Reason); err != nil {
			return err
		}
		s.record(ctx, st.ID, "task.failed", name+": "+out.Reason)
		s.emit("task.failed", name+": "+out.Reason, map[string]string{"session_id": st.ID})
	default:
		if err := st.CompleteTask(name, session.TaskSuccess, ""); err != nil {
			return err
		}
		if out.Report != nil {
			if err := st.SetResult(name, out.Report); err != nil {
				return err
			}
		}
		if out.Result != nil {
			st.AddEvidence(out.Result.Pins, out.Result.Breadcrumbs, out.Result.Negatives)
		}
		reviewed := make([]evidence.Finding, 0, len(out.Findings))
		for _, f := range out.Findings {
			if s.Critic != nil {
				v := s.Critic.Review(ctx, f, st.Pins)
				if err := f.AttachVerdict(v); err != nil {
					return err
				}
				if v.Verdict == evidence.VerdictChallenged && v.Confidence > reinvestigateThreshold && !st.Reinvestigated {
					*reopen = appendUnique(*reopen, f.Task)
				}
			}
			reviewed = append(reviewed, f)
		}
		st.AddFindings(reviewed...)
		s.record(ctx, st.ID, "task.completed", name)
	}
	return nil
}

// repoGate builds the repository confirmation gate for the first round
// that touches code. A mismatch between the incident's mapping and the
// local checkout's origin escalates the gate kind.
func (s *Supervisor) repoGate(st *session.InvestigationState, runnable []tasks.Kind) *gate.Request {
	if st.RepoConfirmed || st.Incident.RepoURL == "" {
		return nil
	}
	touchesCode := false
	for _, k := range runnable {
		if k == tasks.KindCodeImpact || k == tasks.KindChangeCorrelation {
			touchesCode = true
			break
		}
	}
	if !touchesCode {
		return nil
	}

	kind := gate.KindRepoConfirm
	prompt := fmt.Sprintf("Service %s maps to repository %s. Reply confirm, repo: <url> to correct, or reject.",
		st.Incident.Service, st.Incident.RepoURL)
	if origin := localOrigin(s.Sources.RepoDir); origin != "" && !sameRepo(origin, st.Incident.RepoURL) {
		kind = gate.KindRepoMismatch
		prompt = fmt.Sprintf("Local checkout tracks %s but the incident maps %s to %s. Reply confirm to proceed, repo: <url> to correct, or reject.",
			origin, st.Incident.Service, st.Incident.RepoURL)
	}
	return &gate.Request{
		SessionID: st.ID,
		Kind:      kind,
		Prompt:    prompt,
		Context:   map[string]string{"service": st.Incident.Service, "repo": st.Incident.RepoURL},
	}
}

// applyRepoResolution folds the repository gate's outcome into the session
// and returns the refreshed task context. An unanswered or rejected gate
// leaves the repo unconfirmed and the code tasks skip themselves.
func (s *Supervisor) applyRepoResolution(ctx context.Context, id, background string, res gate.Resolution) (tasks.Context, error) {
	locked, err := s.Registry.Acquire(id)
	if err != nil {
		return tasks.Context{}, err
	}
	defer locked.Release()
	st := locked.State()

	switch {
	case res.TimedOut:
		s.record(ctx, st.ID, "gate.timeout", "repository unconfirmed, code analysis will be skipped")
	case res.Decision == gate.DecisionReject:
		s.record(ctx, st.ID, "gate.rejected", "repository rejected, code analysis will be skipped")
	case res.Decision == gate.DecisionCorrection:
		if repo := res.Fields["repo"]; repo != "" {
			st.Incident.RepoURL = repo
		}
		st.RepoConfirmed = true
		s.record(ctx, st.ID, "gate.corrected", "repository set to "+st.Incident.RepoURL)
	default:
		st.RepoConfirmed = true
		s.record(ctx, st.ID, "gate.confirmed", st.Incident.RepoURL)
	}
	if err := locked.Save(); err != nil {
		return tasks.Context{}, err
	}
	return taskContext(st, background), nil
}

func (s *Supervisor) recomputeConfidence(st *session.InvestigationState) {
	if len(st.Pins) > 0 {
		score := s.ledger().Recompute(st.Pins)
		st.OverallConfidence = int(math.Round(score.Final))
		return
	}
	confs := make([]int, 0, len(st.Findings))
	for _, f := range st.Findings {
		confs = append(confs, f.Confidence)
	}
	st.OverallConfidence = evidence.MeanConfidence(confs)
}

func (s *Supervisor) finishDiagnosis(ctx context.Context, st *session.InvestigationState) {
	root := topFinding(st.Findings)
	s.publish(ctx, "diagnosis.complete", map[string]any{
		"session_id": st.ID,
		"confidence": st.OverallConfidence,
		"root_cause": root,
	})
	s.record(ctx, st.ID, "diagnosis.complete", root)
	s.emit("diagnosis", fmt.Sprintf("diagnosis complete (confidence %d): %s", st.OverallConfidence, root), map[string]string{"session_id": st.ID})
	if s.Archive == nil {
		return
	}
	err := s.Archive.Store(ctx, ArchiveEntry{
		SessionID:  st.ID,
		Service:    st.Incident.Service,
		Severity:   st.Incident.Severity,
		Summary:    st.Incident.Description,
		RootCause:  root,
		Confidence: st.OverallConfidence,
	})
	if err != nil {
		slog.Warn("archiving diagnosis", "session", st.ID, "error", err)
	}
}

// similarBackground asks the archive for related past incidents and
// renders them as prompt background for the diagnostic tasks.
func (s *Supervisor) similarBackground(ctx context.Context, st *session.InvestigationState) string {
	if s.Archive == nil {
		return ""
	}
	hits, err := s.Archive.Similar(ctx, st.Incident.Service, st.Incident.Description, 3)
	if err != nil {
		slog.Warn("archive lookup failed", "error", err)
		return ""
	}
	if len(hits) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Similar past incidents:\n")
	for _, h := range hits {
		fmt.Fprintf(&b, "- %s: %s\n", h.Service, h.Summary)
	}
	return b.String()
}

func (s *Supervisor) persistFix(fs fix.State) {
	if fs.SessionID == "" {
		return
	}
	locked, err := s.Registry.Acquire(fs.SessionID)
	if err != nil {
		slog.Warn("persisting fix state", "session", fs.SessionID, "error", err)
		return
	}
	defer locked.Release()
	locked.State().Fix = &fs
	if err := locked.Save(); err != nil {
		slog.Warn("persisting fix state", "session", fs.SessionID, "error", err)
	}
}

func (s *Supervisor) publish(ctx context.Context, kind string, payload map[string]any) {
	if s.Events == nil {
		return
	}
	if err := s.Events.Publish(ctx, kind, payload); err != nil {
		slog.Warn("event publish failed", "kind", kind, "error", err)
	}
}

func (s *Supervisor) record(ctx context.Context, id, kind, detail string) {
	if s.Timeline == nil {
		return
	}
	if err := s.Timeline.Record(ctx, id, kind, detail); err != nil {
		slog.Warn("timeline record failed", "kind", kind, "error", err)
	}
}

func (s *Supervisor) emit(kind, message string, details map[string]string) {
	if s.Notify == nil {
		return
	}
	s.Notify.Emit("supervisor", kind, message, details)
}

func (s *Supervisor) ledger() *evidence.Ledger {
	if s.Ledger == nil {
		s.Ledger = evidence.NewLedger()
	}
	return s.Ledger
}

func (s *Supervisor) concurrency() int {
	if s.MaxConcurrent > 0 {
		return s.MaxConcurrent
	}
	return defaultMaxConcurrent
}

func (s *Supervisor) rounds() int {
	if s.MaxRounds > 0 {
		return s.MaxRounds
	}
	return defaultMaxRounds
}

func taskContext(st *session.InvestigationState, background string) tasks.Context {
	tc := tasks.Context{
		SessionID:   st.ID,
		Service:     st.Incident.Service,
		Description: st.Incident.Description,
		Severity:    st.Incident.Severity,
		Namespace:   st.Incident.Namespace,
		TraceID:     st.Incident.TraceID,
		Background:  background,
	}
	if st.RepoConfirmed {
		tc.RepoURL = st.Incident.RepoURL
	}
	return tc
}

// topFinding returns the highest-confidence finding summary.
func topFinding(fs []evidence.Finding) string {
	best := -1
	root := "no findings recorded"
	for _, f := range fs {
		if f.Confidence > best {
			best = f.Confidence
			root = f.Summary
		}
	}
	return root
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

// localOrigin reads the origin remote of the configured checkout, or ""
// when there is no usable checkout.
func localOrigin(repoDir string) string {
	if repoDir == "" {
		return ""
	}
	out, err := exec.Command("git", "-C", repoDir, "remote", "get-url", "origin").Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

// sameRepo compares repository URLs ignoring scheme, ssh form and a
// trailing .git.
func sameRepo(a, b string) bool {
	return normalizeRepo(a) == normalizeRepo(b)
}

func normalizeRepo(u string) string {
	u = strings.TrimSpace(strings.ToLower(u))
	u = strings.TrimPrefix(u, "https://")
	u = strings.TrimPrefix(u, "http://")
	u = strings.TrimPrefix(u, "ssh://")
	if i := strings.Index(u, "git@"); i == 0 {
		u = strings.Replace(u[4:], ":", "/", 1)
	}
	u = strings.TrimSuffix(u, ".git")
	return strings.TrimSuffix(u, "/")
}
