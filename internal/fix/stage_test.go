package fix

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// initFixRepo creates a throwaway git repo with one committed file.
func initFixRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	dir := t.TempDir()
	gitT(t, dir, "init")
	if err := os.WriteFile(filepath.Join(dir, "app.txt"), []byte("hello\n"), 0644); err != nil {
		t.Fatal(err)
	}
	gitT(t, dir, "add", ".")
	gitT(t, dir, "commit", "-m", "initial")
	gitT(t, dir, "branch", "-M", "main")
	return dir
}

func gitT(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
		"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com",
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %v: %v\n%s", args, err, out)
	}
	return strings.TrimSpace(string(out))
}

func TestGitStagerCommitsFiles(t *testing.T) {
	dir := initFixRepo(t)
	s := &GitStager{}
	req := Request{SessionID: "0123456789abcdef", RepoDir: dir}
	p := &Proposal{
		Summary:       "add retry limit",
		Files:         []FileChange{{Path: "pkg/retry.go", Content: "package pkg\n"}},
		CommitMessage: "fix: add retry limit",
	}

	branch, err := s.Stage(context.Background(), req, p)
	if err != nil {
		t.Fatalf("Stage failed: %v", err)
	}
	if branch != "faultline/fix-01234567" {
		t.Fatalf("unexpected branch %q", branch)
	}
	if got := gitT(t, dir, "rev-parse", "--abbrev-ref", "HEAD"); got != branch {
		t.Fatalf("expected checkout on %s, got %s", branch, got)
	}
	if got := gitT(t, dir, "log", "-1", "--pretty=%s"); got != "fix: add retry limit" {
		t.Fatalf("unexpected commit subject %q", got)
	}
	data, err := os.ReadFile(filepath.Join(dir, "pkg", "retry.go"))
	if err != nil || string(data) != "package pkg\n" {
		t.Fatalf("staged file not written: %v %q", err, data)
	}
}

func TestGitStagerAppliesDiff(t *testing.T) {
	dir := initFixRepo(t)
	s := &GitStager{}
	p := &Proposal{
		Summary:       "greet differently",
		Diff:          "--- a/app.txt\n+++ b/app.txt\n@@ -1 +1 @@\n-hello\n+goodbye\n",
		CommitMessage: "fix: greet differently",
	}

	if _, err := s.Stage(context.Background(), Request{SessionID: "sess", RepoDir: dir}, p); err != nil {
		t.Fatalf("Stage failed: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "app.txt"))
	if err != nil || strings.TrimSpace(string(data)) != "goodbye" {
		t.Fatalf("diff not applied: %v %q", err, data)
	}
}

func TestGitStagerRejectsTraversal(t *testing.T) {
	dir := initFixRepo(t)
	s := &GitStager{}
	p := &Proposal{
		Summary:       "evil",
		Files:         []FileChange{{Path: "../evil.go", Content: "x"}},
		CommitMessage: "evil",
	}
	_, err := s.Stage(context.Background(), Request{SessionID: "sess", RepoDir: dir}, p)
	if err == nil || !strings.Contains(err.Error(), "outside the repository") {
		t.Fatalf("expected a traversal error, got %v", err)
	}
}

func TestGitStagerRequiresCheckout(t *testing.T) {
	s := &GitStager{}
	if _, err := s.Stage(context.Background(), Request{RepoURL: "https://example.com/a/b"}, validProposal()); err == nil {
		t.Fatal("expected an error without a local checkout")
	}
}

func TestGitPublisherCreatesPR(t *testing.T) {
	dir := initFixRepo(t)
	remote := t.TempDir()
	gitT(t, remote, "init", "--bare")
	gitT(t, dir, "remote", "add", "origin", remote)

	s := &GitStager{}
	req := Request{SessionID: "feedcafe0000", RepoDir: dir, RepoURL: "https://github.com/acme/checkout.git"}
	branch, err := s.Stage(context.Background(), req, validProposal())
	if err != nil {
		t.Fatalf("Stage failed: %v", err)
	}

	var gotPath, gotAuth string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"html_url": "https://github.com/acme/checkout/pull/42"})
	}))
	defer srv.Close()

	pub := &GitPublisher{APIBase: srv.URL, Token: "tok-abc", HTTPClient: srv.Client()}
	url, err := pub.Publish(context.Background(), req, branch, validProposal())
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if url != "https://github.com/acme/checkout/pull/42" {
		t.Fatalf("unexpected PR URL %q", url)
	}
	if gotPath != "/repos/acme/checkout/pulls" {
		t.Fatalf("unexpected API path %q", gotPath)
	}
	if gotAuth != "Bearer tok-abc" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if gotBody["head"] != branch || gotBody["base"] != "main" {
		t.Fatalf("unexpected PR payload %v", gotBody)
	}
	if got := gitT(t, remote, "branch", "--list", branch); !strings.Contains(got, branch) {
		t.Fatalf("branch not pushed to the remote: %q", got)
	}
}

func TestGitPublisherAPIError(t *testing.T) {
	dir := initFixRepo(t)
	remote := t.TempDir()
	gitT(t, remote, "init", "--bare")
	gitT(t, dir, "remote", "add", "origin", remote)

	req := Request{SessionID: "deadbeef0000", RepoDir: dir, RepoURL: "https://github.com/acme/checkout"}
	branch, err := (&GitStager{}).Stage(context.Background(), req, validProposal())
	if err != nil {
		t.Fatalf("Stage failed: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"message":"Validation Failed"}`, http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	pub := &GitPublisher{APIBase: srv.URL, HTTPClient: srv.Client()}
	_, err = pub.Publish(context.Background(), req, branch, validProposal())
	if err == nil || !strings.Contains(err.Error(), "422") {
		t.Fatalf("expected a status error, got %v", err)
	}
}

func TestParseRepoPath(t *testing.T) {
	cases := []struct {
		in, owner, repo string
		wantErr         bool
	}{
		{"https://github.com/acme/checkout.git", "acme", "checkout", false},
		{"https://github.com/acme/checkout", "acme", "checkout", false},
		{"git@github.com:acme/checkout.git", "acme", "checkout", false},
		{"github.com/acme/checkout", "acme", "checkout", false},
		{"acme/checkout", "", "", true},
		{"", "", "", true},
	}
	for _, tc := range cases {
		owner, repo, err := parseRepoPath(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("parseRepoPath(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil || owner != tc.owner || repo != tc.repo {
			t.Fatalf("parseRepoPath(%q) = %q/%q, %v", tc.in, owner, repo, err)
		}
	}
}
