// Package supervisor orchestrates an investigation: it plans each dispatch
// round from the phase machine, fans tasks out, merges their results into
// session state, runs the critic, and drives the fix pipeline after
// diagnosis.
package supervisor

import (
	"github.com/faultline/faultline/internal/session"
	"github.com/faultline/faultline/internal/tasks"
)

// ComputePhase derives the phase purely from the set of completed tasks,
// so recomputing after partial failures is idempotent. Skipped and failed
// tasks count as completed; only a successful trace or cluster run earns
// its deep-dive label.
func ComputePhase(done map[string]session.TaskRecord) session.Phase {
	has := func(k tasks.Kind) bool {
		_, ok := done[string(k)]
		return ok
	}
	succeeded := func(k tasks.Kind) bool {
		rec, ok := done[string(k)]
		return ok && rec.Status == session.TaskSuccess
	}

	switch {
	case has(tasks.KindLogAnalysis) && has(tasks.KindMetricsAnalysis) &&
		has(tasks.KindClusterHealth) && has(tasks.KindTraceAnalysis) &&
		has(tasks.KindCodeImpact) && has(tasks.KindChangeCorrelation):
		return session.PhaseDiagnosisComplete
	case has(tasks.KindCodeImpact):
		return session.PhaseCodeAnalyzed
	case succeeded(tasks.KindTraceAnalysis):
		return session.PhaseTracingAnalyzed
	case has(tasks.KindTraceAnalysis) && succeeded(tasks.KindClusterHealth):
		return session.PhaseK8sAnalyzed
	case has(tasks.KindMetricsAnalysis):
		return session.PhaseMetricsAnalyzed
	case has(tasks.KindLogAnalysis):
		return session.PhaseLogsAnalyzed
	default:
		return session.PhaseInitial
	}
}

// planRound returns the task kinds the phase makes eligible, minus those
// already completed. The log task runs alone first since it seeds
// everything downstream; metrics and cluster health go out together; the
// deeper tasks join once their phase is reached.
func planRound(phase session.Phase, st *session.InvestigationState) []tasks.Kind {
	var eligible []tasks.Kind
	switch phase {
	case session.PhaseInitial:
		eligible = []tasks.Kind{tasks.KindLogAnalysis}
	case session.PhaseLogsAnalyzed:
		eligible = []tasks.Kind{tasks.KindMetricsAnalysis, tasks.KindClusterHealth}
	case session.PhaseMetricsAnalyzed, session.PhaseK8sAnalyzed, session.PhaseTracingAnalyzed:
		eligible = []tasks.Kind{tasks.KindTraceAnalysis, tasks.KindCodeImpact, tasks.KindChangeCorrelation}
	case session.PhaseCodeAnalyzed:
		eligible = []tasks.Kind{tasks.KindTraceAnalysis, tasks.KindChangeCorrelation}
	case session.PhaseReinvestigating:
		// Only the reopened tasks are incomplete here.
		eligible = tasks.Kinds()
	default:
		return nil
	}

	out := make([]tasks.Kind, 0, len(eligible))
	for _, k := range eligible {
		if !st.Completed(string(k)) {
			out = append(out, k)
		}
	}
	return out
}
