package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected init to refuse overwriting without --overwrite")
	}
	if _, _, err := runCLI(t, []string{"config", "validate"}, target); err != nil {
		t.Fatalf("sample config should validate: %v", err)
	}
}

func TestConfigShowRedactsSecrets(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "show"}, env.configPath)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, env.configPath)
	requireContains(t, out, redacted)
	if strings.Contains(out, "test-key") {
		t.Fatalf("api key leaked:\n%s", out)
	}

	out, _, err = runCLI(t, []string{"config", "show", "--show-secrets"}, env.configPath)
	if err != nil {
		t.Fatalf("config show --show-secrets: %v", err)
	}
	requireContains(t, out, "test-key")
}

func TestMalformedConfigIsConfigurationError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.toml")
	if err := os.WriteFile(path, []byte("[chunking\nmax_chunk_seconds = "), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	_, _, err := runCLI(t, []string{"runs"}, path)
	if err == nil {
		t.Fatal("expected load failure")
	}
	if code := exitCode(err); code != 2 {
		t.Fatalf("exit code = %d, want 2", code)
	}
}

func TestCheckReportsTranscriptionEndpoint(t *testing.T) {
	env := setupCLITestEnv(t)

	// Free space on the test machine decides whether the command exits
	// non-zero, so only the report itself is asserted.
	out, _, _ := runCLI(t, []string{"check"}, env.configPath)
	requireContains(t, out, "Transcription API")
	requireContains(t, out, "Reachable")
	requireContains(t, out, "Classification LLM")
}
