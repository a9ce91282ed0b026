package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"scribe/internal/config"
	"scribe/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckFreeSpace(t *testing.T) {
	dir := t.TempDir()
	if r := CheckFreeSpace("free", dir, 1); !r.Passed {
		t.Fatalf("expected pass with a one byte minimum, got: %s", r.Detail)
	}
	if r := CheckFreeSpace("free", dir, 1<<62); r.Passed {
		t.Fatal("expected failure with an impossible minimum")
	}
	if r := CheckFreeSpace("free", filepath.Join(dir, "missing"), 1); r.Passed {
		t.Fatal("expected failure for missing path")
	}
}

func TestCheckFreeSpaceReportsHumanSizes(t *testing.T) {
	r := CheckFreeSpace("free", t.TempDir(), 1<<62)
	if r.Passed {
		t.Fatal("expected failure with an impossible minimum")
	}
	if !strings.Contains(r.Detail, "need at least 4.0 EiB") {
		t.Fatalf("unexpected detail %q", r.Detail)
	}
}

func TestCheckTranscriptionEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Header.Get("Authorization") != "Bearer good-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if r := CheckTranscriptionEndpoint(context.Background(), srv.URL+"/v1/", "good-key"); !r.Passed {
		t.Fatalf("expected pass, got: %s", r.Detail)
	}
	if r := CheckTranscriptionEndpoint(context.Background(), srv.URL+"/v1", "bad-key"); r.Passed || r.Detail != "auth failed (invalid api key)" {
		t.Fatalf("expected auth failure, got %+v", r)
	}
	if r := CheckTranscriptionEndpoint(context.Background(), "", "key"); r.Passed {
		t.Fatal("expected failure for missing URL")
	}
	if r := CheckTranscriptionEndpoint(context.Background(), srv.URL, ""); r.Passed {
		t.Fatal("expected failure for missing key")
	}
}

func TestCheckLLM(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"ok\":true}"}}]}`))
	}))
	defer srv.Close()

	r := CheckLLM(context.Background(), "LLM", config.LLMConfig{APIKey: "k", BaseURL: srv.URL, Model: "m"})
	if !r.Passed {
		t.Fatalf("expected pass, got: %s", r.Detail)
	}
	if r := CheckLLM(context.Background(), "LLM", config.LLMConfig{}); r.Passed {
		t.Fatal("expected failure without key")
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	results := RunAll(context.Background(), nil)
	if results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_StubbedBinaries(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	cfg.Stages.Disabled = []string{config.StageDiarization}

	results := RunAll(context.Background(), cfg)
	byName := make(map[string]Result, len(results))
	for _, r := range results {
		byName[r.Name] = r
	}
	for _, name := range []string{"State directory", "Output directory", "FFmpeg", "uvx"} {
		r, ok := byName[name]
		if !ok {
			t.Fatalf("missing %s check in %+v", name, results)
		}
		if !r.Passed {
			t.Errorf("check %q failed: %s", name, r.Detail)
		}
	}
	if _, ok := byName["Diarization command"]; ok {
		t.Fatal("disabled diarization should not be checked")
	}
	llmCheck, ok := byName["Classification LLM"]
	if !ok || !llmCheck.Passed || llmCheck.Blocking {
		t.Fatalf("missing key for optional classification should be informational, got %+v", llmCheck)
	}
	for _, r := range Blocked(results) {
		if r.Name != "State free space" {
			t.Fatalf("unexpected blocking failure %+v", r)
		}
	}
}

func TestRunAll_MissingUVXBlocks(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries("ffmpeg"))
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	t.Setenv("PATH", filepath.Join(testsupport.BaseDir(cfg), "bin"))

	found := false
	for _, r := range Blocked(RunAll(context.Background(), cfg)) {
		if r.Name == "uvx" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected missing uvx to block the run")
	}
}
