package fix

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/faultline/faultline/internal/evidence"
	"github.com/faultline/faultline/internal/provider"
)

type cannedProvider struct {
	reply    string
	err      error
	lastUser string
}

func (p *cannedProvider) Chat(_ context.Context, req *provider.ChatRequest) (*provider.ChatResponse, error) {
	for _, m := range req.Messages {
		if m.Role == "user" {
			p.lastUser = m.Content
		}
	}
	if p.err != nil {
		return nil, p.err
	}
	return &provider.ChatResponse{Content: p.reply}, nil
}

func (p *cannedProvider) DefaultModel() string { return "test-model" }

const fencedProposal = "```json\n" + `{
  "summary": "close the response body",
  "root_cause": "leaked connections exhaust the pool",
  "diff": "--- a/client.go\n+++ b/client.go\n@@ -10 +10,2 @@\n resp, err := c.Do(req)\n+defer resp.Body.Close()\n",
  "commit_message": "fix: close response body in poller"
}` + "\n```"

func TestLLMGeneratorParsesFencedJSON(t *testing.T) {
	prov := &cannedProvider{reply: fencedProposal}
	gen := &LLMGenerator{Provider: prov}

	req := Request{
		Service:   "checkout",
		RepoURL:   "https://github.com/acme/checkout",
		RootCause: "connection pool exhaustion",
		Findings: []evidence.Finding{
			evidence.NewFinding("log_analysis", "logs", "connection reset storms", 85, evidence.SeverityHigh),
		},
	}
	p, err := gen.Generate(context.Background(), req, []string{"Reviewer feedback: only touch the poller"})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if p.Summary != "close the response body" {
		t.Fatalf("unexpected summary %q", p.Summary)
	}
	if !strings.Contains(p.Diff, "defer resp.Body.Close()") {
		t.Fatalf("unexpected diff %q", p.Diff)
	}
	if !strings.Contains(prov.lastUser, "connection pool exhaustion") {
		t.Fatal("prompt should carry the root cause")
	}
	if !strings.Contains(prov.lastUser, "connection reset storms") {
		t.Fatal("prompt should carry the findings")
	}
	if !strings.Contains(prov.lastUser, "only touch the poller") {
		t.Fatal("prompt should carry reviewer guidance")
	}
}

func TestLLMGeneratorRejectsProse(t *testing.T) {
	prov := &cannedProvider{reply: "I think you should close the body in the poller."}
	gen := &LLMGenerator{Provider: prov}
	if _, err := gen.Generate(context.Background(), Request{}, nil); err == nil {
		t.Fatal("expected a parse error for non-JSON output")
	}
}

func TestLLMGeneratorRejectsEmptyChange(t *testing.T) {
	prov := &cannedProvider{reply: `{"summary": "do nothing", "commit_message": "noop"}`}
	gen := &LLMGenerator{Provider: prov}
	_, err := gen.Generate(context.Background(), Request{}, nil)
	if err == nil || !strings.Contains(err.Error(), "no change") {
		t.Fatalf("expected an empty-change error, got %v", err)
	}
}

func TestLLMGeneratorPropagatesProviderError(t *testing.T) {
	prov := &cannedProvider{err: errors.New("overloaded")}
	gen := &LLMGenerator{Provider: prov}
	if _, err := gen.Generate(context.Background(), Request{}, nil); err == nil {
		t.Fatal("expected the provider error to surface")
	}
}
