package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/faultline/faultline/internal/evidence"
	"github.com/faultline/faultline/internal/provider"
)

// ToolHandler executes one named tool call and returns a text observation.
// Implementations turn their own failures into descriptive observations or
// errors; the loop never lets either crash the run.
type ToolHandler interface {
	Execute(ctx context.Context, name string, params map[string]any) (string, error)
}

// ProgressFunc receives coarse progress notifications during a run.
type ProgressFunc func(stage, detail string)

// LoopOptions configures an execution loop run.
type LoopOptions struct {
	Provider     provider.LLMProvider
	Handler      ToolHandler
	Tools        []provider.ToolDefinition
	Budget       *Budget
	Recorder     *evidence.Recorder
	SystemPrompt string

	Model         string
	MaxTokens     int
	Temperature   float64
	MaxIterations int

	Progress ProgressFunc
	// Sleep overrides the retry backoff sleep in tests.
	Sleep func(time.Duration)
}

// Loop drives one task to completion: it calls the model with accumulated
// history and tool schemas, executes requested tool calls, appends the
// observations, and repeats until a final answer, the iteration cap, budget
// exhaustion, or an unreachable data source ends the run.
type Loop struct {
	opts LoopOptions

	nudged        bool
	infraFailures int
}

const (
	defaultMaxIterations = 10

	// consecutiveInfraLimit aborts the run once this many tool failures in a
	// row look like a dead backend rather than a bad query.
	consecutiveInfraLimit = 2

	wrapUpNudge = "You are close to your iteration limit. Wrap up now: produce " +
		"your final answer in the required format from the evidence gathered so " +
		"far. Avoid further tool calls unless strictly necessary."

	forcedFinalPrompt = "Tool access is now disabled. Produce your final answer " +
		"in the required format using only the information gathered above."
)

// infraFailurePatterns mark tool failures caused by an unreachable backend
// rather than a bad query. Matched case-insensitively against observations
// produced from handler errors.
var infraFailurePatterns = []string{
	"connection refused",
	"connection reset",
	"no such host",
	"dial tcp",
	"i/o timeout",
	"tls handshake",
	"dns",
	"401",
	"403",
	"404",
	"unauthorized",
	"forbidden",
	"not found",
	"unreachable",
}

// NewLoop creates an execution loop. Budget defaults apply when nil.
func NewLoop(opts LoopOptions) *Loop {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = defaultMaxIterations
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 4096
	}
	if opts.Budget == nil {
		opts.Budget = NewBudget(0, 0, 0)
	}
	return &Loop{opts: opts}
}

// Run executes the loop. It always returns a non-nil Result; model and tool
// failures are folded into the result instead of being raised. The budget
// and iteration cap are never exceeded by more than the one forced
// final-answer call.
func (l *Loop) Run(ctx context.Context, initialPrompt string) *Result {
	messages := []provider.Message{
		{Role: "system", Content: l.opts.SystemPrompt},
		{Role: "user", Content: initialPrompt},
	}

	iterations := 0
	for i := 0; i < l.opts.MaxIterations; i++ {
		iterations = i + 1

		if l.opts.Budget.Exhausted() {
			slog.Debug("Budget exhausted, forcing final answer", "iteration", iterations)
			return l.forceFinalAnswer(ctx, messages, iterations)
		}

		if l.shouldNudge(i) {
			messages = append(messages, provider.Message{Role: "user", Content: wrapUpNudge})
			l.nudged = true
			l.progress("nudge", "wrap-up nudge injected")
		}

		resp, err := l.callModel(ctx, messages, l.opts.Tools)
		if err != nil {
			slog.Warn("Model call failed permanently", "iteration", iterations, "error", err)
			return l.failed(ErrorLLMFailed, err.Error(), iterations)
		}
		l.opts.Budget.RecordLLMCall()
		l.opts.Budget.RecordTokens(resp.Usage.TotalTokens)

		if len(resp.ToolCalls) == 0 {
			l.progress("answer", "final answer received")
			return l.succeeded(resp.Content, iterations, false)
		}

		messages = append(messages, provider.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		for _, tc := range resp.ToolCalls {
			obs, failed := l.executeTool(ctx, tc)
			l.opts.Budget.RecordToolCall()
			messages = append(messages, provider.Message{
				Role:       "tool",
				Content:    obs,
				ToolCallID: tc.ID,
			})

			if failed && looksInfraFailure(obs) {
				l.infraFailures++
			} else {
				l.infraFailures = 0
			}
			if l.infraFailures >= consecutiveInfraLimit {
				slog.Warn("Data source unreachable, aborting task", "tool", tc.Name, "failures", l.infraFailures)
				return l.failed(ErrorDataSourceUnreachable, obs, iterations)
			}
		}
	}

	slog.Debug("Iteration cap reached, forcing final answer", "iterations", iterations)
	return l.forceFinalAnswer(ctx, messages, iterations)
}

// forceFinalAnswer makes one model call with tools disabled to squeeze a
// best-effort answer out of everything gathered so far. If that call fails
// too, the result is budget_exhausted with partial evidence.
func (l *Loop) forceFinalAnswer(ctx context.Context, messages []provider.Message, iterations int) *Result {
	l.progress("force_final", "requesting final answer with tools disabled")
	messages = append(messages, provider.Message{Role: "user", Content: forcedFinalPrompt})

	resp, err := l.callModel(ctx, messages, nil)
	if err != nil {
		slog.Warn("Forced final answer failed", "error", err)
		return l.failed(ErrorBudgetExhausted, err.Error(), iterations)
	}
	l.opts.Budget.RecordLLMCall()
	l.opts.Budget.RecordTokens(resp.Usage.TotalTokens)
	return l.succeeded(resp.Content, iterations, true)
}

func (l *Loop) callModel(ctx context.Context, messages []provider.Message, tools []provider.ToolDefinition) (*provider.ChatResponse, error) {
	req := &provider.ChatRequest{
		Messages:    messages,
		Tools:       tools,
		Model:       l.opts.Model,
		MaxTokens:   l.opts.MaxTokens,
		Temperature: l.opts.Temperature,
	}
	return callWithRetry(ctx, l.opts.Provider, req, l.opts.Sleep)
}

// executeTool runs one tool call, turning handler errors into observations.
// The bool reports whether the handler failed.
func (l *Loop) executeTool(ctx context.Context, tc provider.ToolCall) (string, bool) {
	if l.opts.Handler == nil {
		return fmt.Sprintf("Error: no tool handler registered for %s", tc.Name), true
	}
	start := time.Now()
	obs, err := l.opts.Handler.Execute(ctx, tc.Name, tc.Arguments)
	if err != nil {
		obs = fmt.Sprintf("Error: %v", err)
	}
	slog.Debug("Tool executed", "tool", tc.Name, "duration_ms", time.Since(start).Milliseconds(), "failed", err != nil)
	l.progress("tool", tc.Name)
	return obs, err != nil
}

// shouldNudge reports whether the one-time wrap-up nudge is due: at least
// 60% of iterations used and little room left in iterations, model calls, or
// tokens.
func (l *Loop) shouldNudge(iteration int) bool {
	if l.nudged {
		return false
	}
	if float64(iteration) < 0.6*float64(l.opts.MaxIterations) {
		return false
	}
	iterationsLeft := l.opts.MaxIterations - iteration
	return iterationsLeft <= 2 ||
		l.opts.Budget.LLMCallsRemaining() <= 2 ||
		l.opts.Budget.TokensRemainingFraction() < 0.15
}

func (l *Loop) succeeded(answer string, iterations int, forced bool) *Result {
	r := &Result{
		Answer:     answer,
		Iterations: iterations,
		Forced:     forced,
		Budget:     l.opts.Budget.Snapshot(),
	}
	l.attachEvidence(r)
	return r
}

func (l *Loop) failed(kind ErrorKind, detail string, iterations int) *Result {
	r := &Result{
		ErrorKind:  kind,
		Detail:     detail,
		Iterations: iterations,
		Budget:     l.opts.Budget.Snapshot(),
	}
	l.attachEvidence(r)
	return r
}

func (l *Loop) attachEvidence(r *Result) {
	if l.opts.Recorder == nil {
		return
	}
	r.Pins, r.Breadcrumbs, r.Negatives = l.opts.Recorder.Snapshot()
}

func (l *Loop) progress(stage, detail string) {
	if l.opts.Progress != nil {
		l.opts.Progress(stage, detail)
	}
}

func looksInfraFailure(obs string) bool {
	lower := strings.ToLower(obs)
	for _, p := range infraFailurePatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
