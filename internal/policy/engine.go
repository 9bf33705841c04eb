// Package policy provides tool execution authorization.
package policy

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/faultline/faultline/internal/tools"
)

// Context holds information about a pending tool execution.
type Context struct {
	SessionID string
	Task      string
	Tool      string
	Tier      int
	Arguments map[string]any
	TraceID   string
}

// Decision is the result of a policy evaluation.
type Decision struct {
	Allow            bool
	RequiresApproval bool // true when tier exceeds auto-approve and a human gate could authorize it
	Reason           string
	Tier             int
	Ts               time.Time
	TraceID          string
}

// Engine evaluates whether a tool execution should proceed.
type Engine interface {
	Evaluate(ctx Context) Decision
}

// Rules is the on-disk policy file format.
type Rules struct {
	// MaxAutoTier is the highest tier auto-approved without a human gate.
	MaxAutoTier int `yaml:"max_auto_tier"`
	// DeniedTools are always rejected regardless of tier.
	DeniedTools []string `yaml:"denied_tools"`
	// ToolTiers overrides the tier a tool declares for itself.
	ToolTiers map[string]int `yaml:"tool_tiers"`
}

// LoadRules reads a policy rules file. A missing path returns defaults.
func LoadRules(path string) (Rules, error) {
	r := Rules{MaxAutoTier: tools.TierShell}
	if path == "" {
		return r, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return r, fmt.Errorf("read policy rules: %w", err)
	}
	if err := yaml.Unmarshal(data, &r); err != nil {
		return r, fmt.Errorf("parse policy rules: %w", err)
	}
	if r.MaxAutoTier < 0 {
		r.MaxAutoTier = 0
	}
	return r, nil
}

// DefaultEngine checks tool tier against the configured max auto tier and
// the per-tool deny list.
type DefaultEngine struct {
	// MaxAutoTier is the highest tier that is auto-approved (default: 1).
	MaxAutoTier int
	// Denied is the set of tool names always rejected.
	Denied map[string]bool
	// TierOverrides replaces a tool's declared tier.
	TierOverrides map[string]int
}

// NewDefaultEngine creates a policy engine with sensible defaults.
func NewDefaultEngine() *DefaultEngine {
	return &DefaultEngine{
		MaxAutoTier: tools.TierShell,
	}
}

// NewEngineFromRules creates a policy engine from a loaded rules file.
func NewEngineFromRules(r Rules) *DefaultEngine {
	e := &DefaultEngine{
		MaxAutoTier:   r.MaxAutoTier,
		TierOverrides: r.ToolTiers,
	}
	if len(r.DeniedTools) > 0 {
		e.Denied = make(map[string]bool, len(r.DeniedTools))
		for _, name := range r.DeniedTools {
			e.Denied[name] = true
		}
	}
	return e
}

// EffectiveTier returns the tier the engine will evaluate for a tool,
// applying any override.
func (e *DefaultEngine) EffectiveTier(tool string, declared int) int {
	if t, ok := e.TierOverrides[tool]; ok {
		return t
	}
	return declared
}

// Evaluate checks the deny list and the tool tier.
func (e *DefaultEngine) Evaluate(ctx Context) Decision {
	d := Decision{
		Tier:    ctx.Tier,
		Ts:      time.Now(),
		TraceID: ctx.TraceID,
	}

	if e.Denied[ctx.Tool] {
		d.Allow = false
		d.Reason = fmt.Sprintf("tool_denied: %s", ctx.Tool)
		return d
	}

	// Tier 0 tools are always allowed
	if ctx.Tier == tools.TierReadOnly {
		d.Allow = true
		d.Reason = "tier_0_always_allowed"
		return d
	}

	if ctx.Tier > e.MaxAutoTier {
		d.Allow = false
		d.RequiresApproval = true
		d.Reason = fmt.Sprintf("tier_%d_requires_approval", ctx.Tier)
		return d
	}

	d.Allow = true
	d.Reason = fmt.Sprintf("tier_%d_auto_approved", ctx.Tier)
	return d
}
