package tools

import (
	"context"
	"strings"
	"testing"
)

func TestRunCommandBasic(t *testing.T) {
	out := runCommand(context.Background(), "", "echo", "hello")
	if !strings.Contains(out, "hello") {
		t.Errorf("expected 'hello' in output, got '%s'", out)
	}
}

func TestRunCommandStderr(t *testing.T) {
	out := runCommand(context.Background(), "", "sh", "-c", "echo oops >&2")
	if !strings.Contains(out, "STDERR") || !strings.Contains(out, "oops") {
		t.Errorf("expected stderr capture, got '%s'", out)
	}
}

func TestRunCommandExitCode(t *testing.T) {
	out := runCommand(context.Background(), "", "sh", "-c", "exit 42")
	if !strings.Contains(out, "Exit code: 42") {
		t.Errorf("expected 'Exit code: 42' in output, got '%s'", out)
	}
}

func TestRunCommandNoOutput(t *testing.T) {
	out := runCommand(context.Background(), "", "true")
	if out != "(no output)" {
		t.Errorf("expected '(no output)', got '%s'", out)
	}
}

func TestRunCommandMissingBinary(t *testing.T) {
	out := runCommand(context.Background(), "", "/nonexistent/binary")
	if !strings.Contains(out, "Error executing") {
		t.Errorf("expected execution error, got '%s'", out)
	}
}
