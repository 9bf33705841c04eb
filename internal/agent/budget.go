// Package agent implements the bounded tool-calling execution loop that
// drives one analysis task to completion.
package agent

// Budget caps LLM calls, tool calls, and total tokens for one task
// invocation. It is created fresh per invocation and owned by a single run,
// so it needs no locking. Exhaustion is a pure function of current vs max.
type Budget struct {
	MaxLLMCalls  int `json:"max_llm_calls"`
	MaxToolCalls int `json:"max_tool_calls"`
	MaxTokens    int `json:"max_tokens"`

	LLMCalls  int `json:"llm_calls"`
	ToolCalls int `json:"tool_calls"`
	Tokens    int `json:"tokens"`
}

// Default budget caps applied when a limit is zero or negative.
const (
	DefaultMaxLLMCalls  = 10
	DefaultMaxToolCalls = 20
	DefaultMaxTokens    = 60000
)

// NewBudget creates a budget, substituting defaults for non-positive caps.
func NewBudget(llmCalls, toolCalls, tokens int) *Budget {
	if llmCalls <= 0 {
		llmCalls = DefaultMaxLLMCalls
	}
	if toolCalls <= 0 {
		toolCalls = DefaultMaxToolCalls
	}
	if tokens <= 0 {
		tokens = DefaultMaxTokens
	}
	return &Budget{MaxLLMCalls: llmCalls, MaxToolCalls: toolCalls, MaxTokens: tokens}
}

// Exhausted reports whether any counter has reached its cap.
func (b *Budget) Exhausted() bool {
	return b.LLMCalls >= b.MaxLLMCalls || b.ToolCalls >= b.MaxToolCalls || b.Tokens >= b.MaxTokens
}

// RecordLLMCall counts one model call.
func (b *Budget) RecordLLMCall() {
	b.LLMCalls++
}

// RecordToolCall counts one tool execution.
func (b *Budget) RecordToolCall() {
	b.ToolCalls++
}

// RecordTokens adds token usage from one response.
func (b *Budget) RecordTokens(n int) {
	if n > 0 {
		b.Tokens += n
	}
}

// LLMCallsRemaining returns how many model calls are left.
func (b *Budget) LLMCallsRemaining() int {
	left := b.MaxLLMCalls - b.LLMCalls
	if left < 0 {
		return 0
	}
	return left
}

// TokensRemainingFraction returns the unused share of the token budget.
func (b *Budget) TokensRemainingFraction() float64 {
	if b.MaxTokens <= 0 {
		return 0
	}
	left := float64(b.MaxTokens-b.Tokens) / float64(b.MaxTokens)
	if left < 0 {
		return 0
	}
	return left
}

// Snapshot returns a copy for embedding in results.
func (b *Budget) Snapshot() Budget {
	return *b
}
