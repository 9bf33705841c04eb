package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadWithIncludeAndEnvSubstitution(t *testing.T) {
	tmpDir := t.TempDir()
	pinEnv(t, tmpDir)
	configDir := filepath.Join(tmpDir, ".faultline")
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}

	basePath := filepath.Join(configDir, "base.json")
	mainPath := filepath.Join(configDir, "config.json")
	baseCfg := `{
		"model": { "name": "base-model", "maxTokens": 1024 },
		"datasources": { "lokiUrl": "http://loki:3100", "prometheusUrl": "http://prom:9090" }
	}`
	mainCfg := `{
		"$include": "base.json",
		"model": { "name": "${FL_TEST_MODEL}" },
		"datasources": { "prometheusUrl": "http://prom-override:9090" }
	}`
	if err := os.WriteFile(basePath, []byte(baseCfg), 0o600); err != nil {
		t.Fatalf("write base config: %v", err)
	}
	if err := os.WriteFile(mainPath, []byte(mainCfg), 0o600); err != nil {
		t.Fatalf("write main config: %v", err)
	}

	t.Setenv("FL_TEST_MODEL", "anthropic/env-model")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Model.Name != "anthropic/env-model" {
		t.Fatalf("expected env-substituted model name, got %q", cfg.Model.Name)
	}
	if cfg.Model.MaxTokens != 1024 {
		t.Fatalf("expected maxTokens from include file, got %d", cfg.Model.MaxTokens)
	}
	if cfg.Datasources.LokiURL != "http://loki:3100" {
		t.Fatalf("expected lokiUrl from include file, got %q", cfg.Datasources.LokiURL)
	}
	if cfg.Datasources.PrometheusURL != "http://prom-override:9090" {
		t.Fatalf("expected main config override, got %q", cfg.Datasources.PrometheusURL)
	}
}

func TestLoadDetectsIncludeCycle(t *testing.T) {
	tmpDir := t.TempDir()
	pinEnv(t, tmpDir)
	configDir := filepath.Join(tmpDir, ".faultline")
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	a := filepath.Join(configDir, "config.json")
	b := filepath.Join(configDir, "other.json")
	os.WriteFile(a, []byte(`{"$include": "other.json"}`), 0o600)
	os.WriteFile(b, []byte(`{"$include": "config.json"}`), 0o600)

	if _, err := Load(); err == nil {
		t.Fatal("expected include cycle error")
	}
}

func TestEnvFileSetsMissingVarsOnly(t *testing.T) {
	tmpDir := t.TempDir()
	pinEnv(t, tmpDir)
	envDir := filepath.Join(tmpDir, ".config", "faultline")
	if err := os.MkdirAll(envDir, 0o755); err != nil {
		t.Fatalf("mkdir env dir: %v", err)
	}
	envContent := "# comment\nexport FL_ENVFILE_A=\"from-file\"\nFL_ENVFILE_B=untouched\n"
	if err := os.WriteFile(filepath.Join(envDir, "env"), []byte(envContent), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	os.Unsetenv("FL_ENVFILE_A")
	t.Setenv("FL_ENVFILE_B", "already-set")
	t.Cleanup(func() { os.Unsetenv("FL_ENVFILE_A") })

	LoadEnvFileCandidates()

	if got := os.Getenv("FL_ENVFILE_A"); got != "from-file" {
		t.Fatalf("FL_ENVFILE_A = %q", got)
	}
	if got := os.Getenv("FL_ENVFILE_B"); got != "already-set" {
		t.Fatalf("FL_ENVFILE_B = %q, env file must not override", got)
	}
}
