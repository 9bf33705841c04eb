package fix

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// GitStager writes the proposal onto a fresh branch in the local checkout.
type GitStager struct {
	// BranchPrefix defaults to "faultline/fix".
	BranchPrefix string
}

func (s *GitStager) Stage(ctx context.Context, req Request, p *Proposal) (string, error) {
	if req.RepoDir == "" {
		return "", fmt.Errorf("no local checkout configured for %s", req.RepoURL)
	}
	prefix := s.BranchPrefix
	if prefix == "" {
		prefix = "faultline/fix"
	}
	branch := fmt.Sprintf("%s-%s", prefix, shortSessionID(req.SessionID))

	if _, err := gitRun(ctx, req.RepoDir, "checkout", "-B", branch); err != nil {
		return "", err
	}
	if len(p.Files) > 0 {
		for _, f := range p.Files {
			if pathEscapes(f.Path) {
				return "", fmt.Errorf("refusing to write outside the repository: %s", f.Path)
			}
			dst := filepath.Join(req.RepoDir, filepath.FromSlash(f.Path))
			if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
				return "", fmt.Errorf("create %s: %w", filepath.Dir(f.Path), err)
			}
			if err := os.WriteFile(dst, []byte(f.Content), 0o644); err != nil {
				return "", fmt.Errorf("write %s: %w", f.Path, err)
			}
		}
	} else if err := gitApply(ctx, req.RepoDir, p.Diff); err != nil {
		return "", err
	}

	if _, err := gitRun(ctx, req.RepoDir, "add", "-A"); err != nil {
		return "", err
	}
	msg := p.CommitMessage
	if msg == "" {
		msg = p.Summary
	}
	_, err := gitRun(ctx, req.RepoDir,
		"-c", "user.name=faultline", "-c", "user.email=faultline@localhost",
		"commit", "-m", msg)
	if err != nil {
		return "", err
	}
	return branch, nil
}

// GitPublisher pushes the staged branch and opens a pull request through the
// forge's REST API.
type GitPublisher struct {
	APIBase    string // for example https://api.github.com
	Token      string
	Remote     string // defaults to origin
	BaseBranch string // defaults to main
	HTTPClient *http.Client
}

func (pub *GitPublisher) Publish(ctx context.Context, req Request, branch string, p *Proposal) (string, error) {
	remote := pub.Remote
	if remote == "" {
		remote = "origin"
	}
	if _, err := gitRun(ctx, req.RepoDir, "push", "-u", remote, branch); err != nil {
		return "", err
	}
	if pub.APIBase == "" {
		return "", fmt.Errorf("pull request API base not configured")
	}

	owner, repo, err := parseRepoPath(req.RepoURL)
	if err != nil {
		return "", err
	}
	base := pub.BaseBranch
	if base == "" {
		base = "main"
	}
	body, err := json.Marshal(map[string]string{
		"title": p.Summary,
		"head":  branch,
		"base":  base,
		"body":  prBody(req, p),
	})
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/repos/%s/%s/pulls", strings.TrimSuffix(pub.APIBase, "/"), owner, repo)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/vnd.github+json")
	if pub.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+pub.Token)
	}

	client := pub.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("pull request create: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("pull request create failed with status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var created struct {
		HTMLURL string `json:"html_url"`
	}
	if err := json.Unmarshal(raw, &created); err != nil {
		return "", fmt.Errorf("pull request response did not parse: %w", err)
	}
	return created.HTMLURL, nil
}

// parseRepoPath extracts owner and repository name from an HTTPS or SSH
// remote URL.
func parseRepoPath(repoURL string) (owner, repo string, err error) {
	trimmed := strings.TrimSuffix(repoURL, ".git")
	if i := strings.Index(trimmed, "://"); i >= 0 {
		trimmed = trimmed[i+3:]
	} else if i := strings.Index(trimmed, "@"); i >= 0 {
		trimmed = strings.Replace(trimmed[i+1:], ":", "/", 1)
	}
	parts := strings.Split(trimmed, "/")
	if len(parts) < 3 {
		return "", "", fmt.Errorf("cannot derive owner/repo from %q", repoURL)
	}
	owner, repo = parts[len(parts)-2], parts[len(parts)-1]
	if owner == "" || repo == "" {
		return "", "", fmt.Errorf("cannot derive owner/repo from %q", repoURL)
	}
	return owner, repo, nil
}

func prBody(req Request, p *Proposal) string {
	var b strings.Builder
	b.WriteString(p.Summary + "\n\n")
	if p.RootCause != "" {
		b.WriteString("Root cause: " + p.RootCause + "\n\n")
	}
	fmt.Fprintf(&b, "Investigation session: %s\n", req.SessionID)
	return b.String()
}

func gitRun(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", dir}, args...)...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s: %v: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return strings.TrimSpace(string(out)), nil
}

func gitApply(ctx context.Context, dir, diff string) error {
	cmd := exec.CommandContext(ctx, "git", "-C", dir, "apply", "--whitespace=nowarn")
	cmd.Stdin = strings.NewReader(diff)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git apply: %v: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

func shortSessionID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
