// Package tasks defines the closed set of diagnostic tasks the supervisor
// can dispatch, one strongly-typed report per kind.
package tasks

import (
	"context"
	"sort"
	"time"

	"github.com/faultline/faultline/internal/agent"
	"github.com/faultline/faultline/internal/evidence"
	"github.com/faultline/faultline/internal/policy"
	"github.com/faultline/faultline/internal/provider"
	"github.com/faultline/faultline/internal/tools"
)

// Kind names one diagnostic task.
type Kind string

const (
	KindLogAnalysis       Kind = "log_analysis"
	KindMetricsAnalysis   Kind = "metrics_analysis"
	KindClusterHealth     Kind = "cluster_health"
	KindTraceAnalysis     Kind = "trace_analysis"
	KindCodeImpact        Kind = "code_impact"
	KindChangeCorrelation Kind = "change_correlation"
)

// Status is the explicit variant a task invocation returns.
type Status string

const (
	StatusSuccess Status = "success"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Context carries the incident slice a task needs. The supervisor builds it
// from session state; tasks never touch the session directly.
type Context struct {
	SessionID   string
	Service     string
	Description string
	Severity    string
	Namespace   string
	TraceID     string
	RepoURL     string
	// Background summarizes findings from earlier phases so later tasks can
	// correlate against them.
	Background string
}

// Sources is the configured backend surface shared by all tasks.
type Sources struct {
	Provider provider.LLMProvider
	Model    string

	LokiURL     string
	PromURL     string
	JaegerURL   string
	KubectlPath string
	RepoDir     string

	Policy policy.Engine
	// NewBudget returns a fresh budget per invocation; nil uses defaults.
	NewBudget func() *agent.Budget

	Progress agent.ProgressFunc
	Sleep    func(time.Duration)
}

func (s Sources) budget() *agent.Budget {
	if s.NewBudget != nil {
		return s.NewBudget()
	}
	return agent.NewBudget(0, 0, 0)
}

// Outcome is what one task invocation produced.
type Outcome struct {
	Kind     Kind
	Status   Status
	Reason   string
	Report   any
	Findings []evidence.Finding
	Result   *agent.Result
}

// Task is one runnable diagnostic unit.
type Task interface {
	Kind() Kind
	// Prerequisite returns a skip reason when the task cannot run against
	// the given context and sources, or "" when it can.
	Prerequisite(tc Context, src Sources) string
	Run(ctx context.Context, tc Context, src Sources) Outcome
}

// constructors is the closed registry of task kinds. Adding a Kind without
// a constructor fails TestEveryKindConstructs.
var constructors = map[Kind]func() Task{
	KindLogAnalysis:       func() Task { return logTask{} },
	KindMetricsAnalysis:   func() Task { return metricsTask{} },
	KindClusterHealth:     func() Task { return clusterTask{} },
	KindTraceAnalysis:     func() Task { return traceTask{} },
	KindCodeImpact:        func() Task { return codeTask{} },
	KindChangeCorrelation: func() Task { return changeTask{} },
}

// New constructs the task for a kind; false for kinds outside the set.
func New(k Kind) (Task, bool) {
	ctor, ok := constructors[k]
	if !ok {
		return nil, false
	}
	return ctor(), true
}

// Kinds lists every task kind in stable order.
func Kinds() []Kind {
	out := make([]Kind, 0, len(constructors))
	for k := range constructors {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// runLoop wires the shared plumbing for one task run: a fresh budget, the
// policy guard in front of the registry, and the execution loop.
func runLoop(ctx context.Context, kind Kind, tc Context, src Sources, reg *tools.Registry, rec *evidence.Recorder, system, prompt string) *agent.Result {
	guard := policy.NewGuard(reg, src.Policy)
	guard.SessionID = tc.SessionID
	guard.Task = string(kind)
	loop := agent.NewLoop(agent.LoopOptions{
		Provider:     src.Provider,
		Handler:      guard,
		Tools:        reg.Definitions(),
		Budget:       src.budget(),
		Recorder:     rec,
		SystemPrompt: system,
		Model:        src.Model,
		Progress:     src.Progress,
		Sleep:        src.Sleep,
	})
	return loop.Run(ctx, prompt)
}

// evidenceTypes maps each task kind to the pin type its claims carry.
var evidenceTypes = map[Kind]evidence.Type{
	KindLogAnalysis:       evidence.TypeLog,
	KindMetricsAnalysis:   evidence.TypeMetric,
	KindClusterHealth:     evidence.TypeK8s,
	KindTraceAnalysis:     evidence.TypeTrace,
	KindCodeImpact:        evidence.TypeCode,
	KindChangeCorrelation: evidence.TypeChange,
}

// outcomeFromResult folds a loop result into the task's outcome: a dead
// data source or total model failure fails the task, anything with an
// answer decodes into the typed report. Each decoded finding is pinned so
// the confidence ledger can weigh the domain.
func outcomeFromResult(kind Kind, res *agent.Result, rec *evidence.Recorder, decode func(answer string) (any, []evidence.Finding)) Outcome {
	if res.ErrorKind != agent.ErrorNone {
		reason := string(res.ErrorKind)
		if res.Detail != "" {
			reason += ": " + res.Detail
		}
		return Outcome{Kind: kind, Status: StatusFailed, Reason: reason, Result: res}
	}
	if res.Answer == "" {
		return Outcome{Kind: kind, Status: StatusFailed, Reason: "no answer produced", Result: res}
	}
	report, findings := decode(res.Answer)
	for _, f := range findings {
		rec.Pin(evidenceTypes[kind], f.Summary, f.Confidence, "analysis")
	}
	res.Pins, res.Breadcrumbs, res.Negatives = rec.Snapshot()
	return Outcome{Kind: kind, Status: StatusSuccess, Report: report, Findings: findings, Result: res}
}

// Skip builds the completed-with-reason outcome for a missing prerequisite.
func Skip(kind Kind, reason string) Outcome {
	return Outcome{Kind: kind, Status: StatusSkipped, Reason: reason}
}
