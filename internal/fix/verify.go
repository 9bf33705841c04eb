package fix

import (
	"context"
	"fmt"
	"path"
	"strings"
)

// StaticVerifier runs structural checks on a proposal without executing
// anything. It catches malformed output before a human spends time on it.
type StaticVerifier struct {
	// MaxFiles bounds how many files one fix may touch. Defaults to 8.
	MaxFiles int
}

func (v *StaticVerifier) Verify(_ context.Context, p *Proposal) VerificationReport {
	maxFiles := v.MaxFiles
	if maxFiles <= 0 {
		maxFiles = 8
	}

	var issues []string
	if strings.TrimSpace(p.Summary) == "" {
		issues = append(issues, "proposal has no summary")
	}
	if strings.TrimSpace(p.Diff) == "" && len(p.Files) == 0 {
		issues = append(issues, "proposal contains no change")
	}
	if p.Diff != "" && !strings.Contains(p.Diff, "---") && !strings.Contains(p.Diff, "+++") {
		issues = append(issues, "diff is not in unified format")
	}
	if len(p.Files) > maxFiles {
		issues = append(issues, fmt.Sprintf("fix touches %d files, limit is %d", len(p.Files), maxFiles))
	}
	for _, f := range p.Files {
		switch {
		case f.Path == "" || path.IsAbs(f.Path):
			issues = append(issues, fmt.Sprintf("file path %q must be relative", f.Path))
		case pathEscapes(f.Path):
			issues = append(issues, fmt.Sprintf("file path %q escapes the repository", f.Path))
		case strings.TrimSpace(f.Content) == "":
			issues = append(issues, fmt.Sprintf("file %s has empty content", f.Path))
		}
	}
	if strings.TrimSpace(p.CommitMessage) == "" {
		issues = append(issues, "commit message is empty")
	}

	return VerificationReport{Passed: len(issues) == 0, Issues: issues}
}

func pathEscapes(p string) bool {
	clean := path.Clean(p)
	return clean == ".." || strings.HasPrefix(clean, "../")
}
