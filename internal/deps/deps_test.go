package deps

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	script := []byte("#!/bin/sh\nexit 0\n")
	if err := os.WriteFile(present, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	notExec := filepath.Join(binDir, "plain")
	if err := os.WriteFile(notExec, script, 0o644); err != nil {
		t.Fatalf("write plain file: %v", err)
	}
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Plain", Command: notExec},
		{Name: "Unset", Command: "  ", Optional: true},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	if !results[0].Available || results[0].Detail != "" {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[1].Available || results[1].Detail == "" {
		t.Fatalf("expected missing binary to be unavailable with detail, got %#v", results[1])
	}
	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}
	if results[2].Available {
		t.Fatalf("expected non-executable file to be unavailable")
	}
	if results[3].Available || results[3].Detail != "command not configured" || !results[3].Optional {
		t.Fatalf("unexpected status for unset command: %#v", results[3])
	}
}

func TestResolveSearchesPath(t *testing.T) {
	binDir := t.TempDir()
	target := filepath.Join(binDir, "uvx")
	if err := os.WriteFile(target, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	t.Setenv("PATH", binDir)

	got, err := Resolve("uvx")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != target {
		t.Fatalf("Resolve = %q, want %q", got, target)
	}

	t.Setenv("PATH", "")
	if _, err := Resolve("uvx"); err == nil {
		t.Fatal("expected resolution to fail with empty PATH")
	}
}
