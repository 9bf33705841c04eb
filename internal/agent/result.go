package agent

import "github.com/faultline/faultline/internal/evidence"

// ErrorKind classifies how a run ended when no clean final answer was
// produced. An empty kind means success.
type ErrorKind string

const (
	ErrorNone ErrorKind = ""
	// ErrorBudgetExhausted: the budget ran out and the forced final answer
	// call failed too.
	ErrorBudgetExhausted ErrorKind = "budget_exhausted"
	// ErrorDataSourceUnreachable: two consecutive tool failures matched the
	// infrastructure-unreachable pattern.
	ErrorDataSourceUnreachable ErrorKind = "data_source_unreachable"
	// ErrorLLMFailed: the model call failed permanently (non-retryable, or
	// retries exhausted) before any answer was produced.
	ErrorLLMFailed ErrorKind = "llm_failed"
)

// Result is the structured outcome of one execution loop run. Run always
// returns one; model and tool failures are folded into ErrorKind instead of
// being raised.
type Result struct {
	Answer     string    `json:"answer"`
	ErrorKind  ErrorKind `json:"error,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	Iterations int       `json:"iterations"`
	// Forced marks answers produced by the wrap-up call made with tools
	// disabled after budget or iteration exhaustion.
	Forced bool   `json:"forced,omitempty"`
	Budget Budget `json:"budget"`

	Pins        []evidence.Pin             `json:"pins,omitempty"`
	Breadcrumbs []evidence.Breadcrumb      `json:"breadcrumbs,omitempty"`
	Negatives   []evidence.NegativeFinding `json:"negative_findings,omitempty"`
}

// OK reports whether the run produced a usable answer.
func (r *Result) OK() bool {
	return r.ErrorKind == ErrorNone
}
