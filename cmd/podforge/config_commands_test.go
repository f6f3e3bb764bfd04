package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"podforge/internal/testsupport"
)

func TestConfigInitWritesSample(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")

	out, _, err := runCLI(t, []string{"config", "init", "--path", target}, "", "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")

	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, "", ""); err == nil {
		t.Fatal("expected init to refuse overwriting an existing file")
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target, "--force"}, "", ""); err != nil {
		t.Fatalf("config init --force: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	t.Setenv("PODFORGE_LLM_API_KEY", "test")

	target := filepath.Join(t.TempDir(), "config.toml")
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, "", ""); err != nil {
		t.Fatalf("config init: %v", err)
	}

	out, _, err := runCLI(t, []string{"config", "validate"}, "", target)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, target)
}

func TestConfigValidateFallsBackToDefaults(t *testing.T) {
	t.Setenv("PODFORGE_LLM_API_KEY", "test")

	missing := filepath.Join(t.TempDir(), "nope.toml")
	out, _, err := runCLI(t, []string{"config", "validate"}, "", missing)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "defaults were used")
}

func TestConfigShowRedactsSecrets(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.LLM.APIKey = "super-secret"
	cfg.TTS.APIKey = "also-secret"
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	out, _, err := runCLI(t, []string{"config", "show"}, "", configPath)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "[workflow]")
	requireContains(t, out, "***")
	for _, secret := range []string{"super-secret", "also-secret"} {
		if strings.Contains(out, secret) {
			t.Fatalf("config show leaked secret %q", secret)
		}
	}
}
