package policy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/faultline/faultline/internal/tools"
)

// Guard fronts a tool registry with policy evaluation. It satisfies the
// agent loop's tool handler contract, so every tool call an analysis task
// makes passes through Evaluate first.
type Guard struct {
	registry *tools.Registry
	engine   Engine

	// SessionID and Task label decisions for the audit log.
	SessionID string
	Task      string
}

// NewGuard wraps a registry with a policy engine.
func NewGuard(registry *tools.Registry, engine Engine) *Guard {
	if engine == nil {
		engine = NewDefaultEngine()
	}
	return &Guard{registry: registry, engine: engine}
}

// Execute evaluates policy for the named tool and runs it when allowed.
// Denials come back as observations, not errors, so the loop treats them
// as information for the model rather than infrastructure failures.
func (g *Guard) Execute(ctx context.Context, name string, params map[string]any) (string, error) {
	tool, ok := g.registry.Get(name)
	if !ok {
		return "", fmt.Errorf("tool not found: %s", name)
	}

	tier := tools.ToolTier(tool)
	if de, ok := g.engine.(*DefaultEngine); ok {
		tier = de.EffectiveTier(name, tier)
	}

	decision := g.engine.Evaluate(Context{
		SessionID: g.SessionID,
		Task:      g.Task,
		Tool:      name,
		Tier:      tier,
		Arguments: params,
	})

	slog.Debug("policy decision",
		"session_id", g.SessionID,
		"task", g.Task,
		"tool", name,
		"tier", tier,
		"allowed", decision.Allow,
		"reason", decision.Reason)

	if !decision.Allow {
		if decision.RequiresApproval {
			return fmt.Sprintf("Tool %q (tier %d) requires human approval and is not available in this run.", name, tier), nil
		}
		return fmt.Sprintf("Tool %q is not permitted by policy (%s).", name, decision.Reason), nil
	}

	return tool.Execute(ctx, params)
}
