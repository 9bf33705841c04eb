package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runRootCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	_, err := rootCmd.ExecuteC()
	rootCmd.SetArgs(nil)
	return strings.TrimSpace(buf.String()), err
}

func TestRootRegistersCoreCommands(t *testing.T) {
	want := []string{"serve", "investigate", "sessions", "reply", "fix", "init", "version", "status", "doctor", "secrets"}
	have := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		have[c.Name()] = true
	}
	for _, name := range want {
		if !have[name] {
			t.Errorf("command %q not registered", name)
		}
	}
}

func TestInitWritesConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	t.Setenv("FAULTLINE_CONFIG", path)
	t.Cleanup(func() { initForce = false })

	if _, err := runRootCommand(t, "init"); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config not written: %v", err)
	}

	if _, err := runRootCommand(t, "init"); err == nil {
		t.Fatal("expected error when config already exists")
	}
	if _, err := runRootCommand(t, "init", "--force"); err != nil {
		t.Fatalf("init --force: %v", err)
	}
}
