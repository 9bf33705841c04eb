package tools

import (
	"context"
	"strings"
	"testing"

	"github.com/faultline/faultline/internal/evidence"
)

func TestClusterToolRejectsMutatingVerbs(t *testing.T) {
	tool := NewClusterTool("", "prod", nil)

	for _, verb := range []string{"delete", "apply", "edit", "scale", "exec", "drain"} {
		result, err := tool.Execute(context.Background(), map[string]any{
			"verb": verb,
			"args": "pod/checkout-7d4f",
		})
		if err != nil {
			t.Fatalf("Execute(%s) error: %v", verb, err)
		}
		if !strings.Contains(result, "not allowed") {
			t.Errorf("expected verb '%s' to be rejected, got '%s'", verb, result)
		}
	}
}

func TestClusterToolMissingBinary(t *testing.T) {
	rec := evidence.NewRecorder("sess-1", "k8s_analysis")
	tool := NewClusterTool("/nonexistent/kubectl", "prod", rec)

	result, err := tool.Execute(context.Background(), map[string]any{
		"verb": "get",
		"args": "pods",
	})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	// The process error folds into the observation, never into err.
	if !strings.Contains(result, "Error") {
		t.Errorf("expected execution error in observation, got '%s'", result)
	}

	_, crumbs, _ := rec.Snapshot()
	if len(crumbs) != 1 {
		t.Errorf("expected breadcrumb even on failure, got %d", len(crumbs))
	}
}

func TestIsEmptyClusterResult(t *testing.T) {
	if !isEmptyClusterResult("No resources found in prod namespace.") {
		t.Error("expected 'No resources found' to count as empty")
	}
	if !isEmptyClusterResult("(no output)") {
		t.Error("expected '(no output)' to count as empty")
	}
	if isEmptyClusterResult("NAME READY STATUS\ncheckout-7d4f 1/1 Running") {
		t.Error("expected pod listing to not count as empty")
	}
}
