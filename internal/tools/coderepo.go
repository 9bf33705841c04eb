package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/faultline/faultline/internal/evidence"
)

// CodeSearchTool greps a local checkout of the service under investigation.
type CodeSearchTool struct {
	repoDir  string
	recorder *evidence.Recorder
}

// NewCodeSearchTool creates a code search tool over a local git checkout.
func NewCodeSearchTool(repoDir string, rec *evidence.Recorder) *CodeSearchTool {
	return &CodeSearchTool{repoDir: repoDir, recorder: rec}
}

func (t *CodeSearchTool) Name() string { return "code_search" }

func (t *CodeSearchTool) Description() string {
	return "Search the service source tree for a pattern using git grep."
}

func (t *CodeSearchTool) Tier() int { return TierShell }

func (t *CodeSearchTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"pattern": map[string]any{
				"type":        "string",
				"description": "Pattern to search for, e.g. a function name or error string",
			},
			"path": map[string]any{
				"type":        "string",
				"description": "Optional path prefix to scope the search",
			},
		},
		"required": []string{"pattern"},
	}
}

func (t *CodeSearchTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	pattern := GetString(params, "pattern", "")
	if pattern == "" {
		return "Error: pattern is required", nil
	}

	argv := []string{"git", "grep", "-n", "-I", "--max-count", "50", "-e", pattern}
	if path := GetString(params, "path", ""); path != "" {
		argv = append(argv, "--", path)
	}
	if t.recorder != nil {
		t.recorder.Breadcrumb(fmt.Sprintf("code search %q", pattern), t.repoDir)
	}
	out := runCommand(ctx, t.repoDir, argv...)
	// git grep exits 1 with no output when nothing matches.
	trimmed := strings.TrimSpace(out)
	if trimmed == "(no output)" || trimmed == "Exit code: 1" {
		if t.recorder != nil {
			t.recorder.Negative(fmt.Sprintf("code matching %q", pattern), t.repoDir, "no matches in tree")
		}
		return fmt.Sprintf("No matches for %q in the source tree.", pattern), nil
	}
	return out, nil
}

// CodeReadTool prints a file slice from the checkout.
type CodeReadTool struct {
	repoDir  string
	recorder *evidence.Recorder
}

// NewCodeReadTool creates a file reading tool over a local git checkout.
func NewCodeReadTool(repoDir string, rec *evidence.Recorder) *CodeReadTool {
	return &CodeReadTool{repoDir: repoDir, recorder: rec}
}

func (t *CodeReadTool) Name() string { return "code_read" }

func (t *CodeReadTool) Description() string {
	return "Read a file from the service source tree, optionally a line range."
}

func (t *CodeReadTool) Tier() int { return TierShell }

func (t *CodeReadTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "File path relative to the repository root",
			},
			"start_line": map[string]any{
				"type":        "integer",
				"description": "First line to show (default 1)",
			},
			"end_line": map[string]any{
				"type":        "integer",
				"description": "Last line to show (default start_line+120)",
			},
		},
		"required": []string{"path"},
	}
}

func (t *CodeReadTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	path := GetString(params, "path", "")
	if path == "" {
		return "Error: path is required", nil
	}
	if strings.Contains(path, "..") {
		return "Error: path must stay inside the repository", nil
	}
	start := GetInt(params, "start_line", 1)
	if start < 1 {
		start = 1
	}
	end := GetInt(params, "end_line", start+120)
	if end < start {
		end = start + 120
	}

	if t.recorder != nil {
		t.recorder.Breadcrumb(fmt.Sprintf("read %s:%d-%d", path, start, end), t.repoDir)
	}
	argv := []string{"sed", "-n", fmt.Sprintf("%d,%dp", start, end), path}
	return runCommand(ctx, t.repoDir, argv...), nil
}

// ChangeHistoryTool lists recent commits touching the tree or a path,
// the primary signal for correlating an incident with a deploy.
type ChangeHistoryTool struct {
	repoDir  string
	recorder *evidence.Recorder
}

// NewChangeHistoryTool creates a commit history tool over a local git
// checkout.
func NewChangeHistoryTool(repoDir string, rec *evidence.Recorder) *ChangeHistoryTool {
	return &ChangeHistoryTool{repoDir: repoDir, recorder: rec}
}

func (t *ChangeHistoryTool) Name() string { return "change_history" }

func (t *ChangeHistoryTool) Description() string {
	return "List recent commits, optionally scoped to a path, to correlate changes with the incident window."
}

func (t *ChangeHistoryTool) Tier() int { return TierShell }

func (t *ChangeHistoryTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Optional path to scope the history",
			},
			"since": map[string]any{
				"type":        "string",
				"description": "Git-style time bound, e.g. '48 hours ago' (default '7 days ago')",
			},
			"limit": map[string]any{
				"type":        "integer",
				"description": "Maximum commits to list (default 20)",
			},
		},
	}
}

func (t *ChangeHistoryTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	since := GetString(params, "since", "7 days ago")
	limit := GetInt(params, "limit", 20)

	argv := []string{
		"git", "log",
		"--since", since,
		fmt.Sprintf("--max-count=%d", limit),
		"--date=iso-strict",
		"--pretty=format:%h %ad %an %s",
	}
	if path := GetString(params, "path", ""); path != "" {
		argv = append(argv, "--", path)
	}

	where := fmt.Sprintf("%s since %s", t.repoDir, since)
	if t.recorder != nil {
		t.recorder.Breadcrumb("change history", where)
	}
	out := runCommand(ctx, t.repoDir, argv...)
	if strings.TrimSpace(out) == "(no output)" {
		if t.recorder != nil {
			t.recorder.Negative("recent commits", where, "no commits in window")
		}
		return fmt.Sprintf("No commits since %s.", since), nil
	}
	return out, nil
}

// ChangeDiffTool shows one commit with its patch.
type ChangeDiffTool struct {
	repoDir  string
	recorder *evidence.Recorder
}

// NewChangeDiffTool creates a commit diff tool over a local git checkout.
func NewChangeDiffTool(repoDir string, rec *evidence.Recorder) *ChangeDiffTool {
	return &ChangeDiffTool{repoDir: repoDir, recorder: rec}
}

func (t *ChangeDiffTool) Name() string { return "change_diff" }

func (t *ChangeDiffTool) Description() string {
	return "Show a single commit's message and patch by hash."
}

func (t *ChangeDiffTool) Tier() int { return TierShell }

func (t *ChangeDiffTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"commit": map[string]any{
				"type":        "string",
				"description": "Commit hash from change_history",
			},
		},
		"required": []string{"commit"},
	}
}

func (t *ChangeDiffTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	commit := GetString(params, "commit", "")
	if commit == "" {
		return "Error: commit is required", nil
	}
	if strings.HasPrefix(commit, "-") {
		return "Error: invalid commit hash", nil
	}
	if t.recorder != nil {
		t.recorder.Breadcrumb(fmt.Sprintf("diff %s", commit), t.repoDir)
	}
	argv := []string{"git", "show", "--stat", "--patch", commit}
	return runCommand(ctx, t.repoDir, argv...), nil
}
