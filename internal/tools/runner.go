package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const (
	commandTimeout  = 30 * time.Second
	maxObservation  = 8192
	truncatedMarker = "\n... (output truncated)"
)

// runCommand executes argv directly (no shell interpretation), captures
// stdout and stderr, and folds timeouts and exit codes into the observation
// string so callers never see a raw process error.
func runCommand(ctx context.Context, dir string, argv ...string) string {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	if dir != "" {
		cmd.Dir = dir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	var result strings.Builder
	if stdout.Len() > 0 {
		result.WriteString(stdout.String())
	}
	if stderr.Len() > 0 {
		if result.Len() > 0 {
			result.WriteString("\n")
		}
		result.WriteString("STDERR:\n")
		result.WriteString(stderr.String())
	}

	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Sprintf("Error: command timed out after %v\n%s", commandTimeout, truncateObservation(result.String()))
	}
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			result.WriteString(fmt.Sprintf("\nExit code: %d", exitErr.ExitCode()))
		} else {
			return fmt.Sprintf("Error executing %s: %v", argv[0], err)
		}
	}
	if result.Len() == 0 {
		return "(no output)"
	}
	return truncateObservation(result.String())
}

func truncateObservation(s string) string {
	if len(s) <= maxObservation {
		return s
	}
	return s[:maxObservation] + truncatedMarker
}
