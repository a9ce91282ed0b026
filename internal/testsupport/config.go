package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"scribe/internal/config"
)

// ConfigOption adjusts a test configuration after its directories exist.
type ConfigOption func(t testing.TB, cfg *config.Config)

// NewConfig returns the default configuration rooted in a fresh temp
// directory, with every credential and notification target cleared so tests
// never reach real services.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.OutputDir = filepath.Join(base, "out")
	cfg.Transcription.APIKey = ""
	cfg.Transcription.HFToken = ""
	cfg.Diarization.HFToken = ""
	cfg.LLM.APIKey = ""
	cfg.Notifications.NtfyTopic = ""
	cfg.Metrics.Listen = "127.0.0.1:0"

	for _, opt := range opts {
		opt(t, &cfg)
	}
	return &cfg
}

// BaseDir returns the temp directory NewConfig rooted cfg in.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}

// WithChunking sets the chunk planner's max length, overlap, and boundary
// search window in seconds.
func WithChunking(maxChunk, overlap, window float64) ConfigOption {
	return func(_ testing.TB, cfg *config.Config) {
		cfg.Chunking.MaxChunkSeconds = maxChunk
		cfg.Chunking.OverlapSeconds = overlap
		cfg.Chunking.SearchWindowSeconds = window
	}
}

func WithOptionalStages(names ...string) ConfigOption {
	return func(_ testing.TB, cfg *config.Config) { cfg.Stages.Optional = names }
}

func WithDisabledStages(names ...string) ConfigOption {
	return func(_ testing.TB, cfg *config.Config) { cfg.Stages.Disabled = names }
}

// WithStubbedBinaries puts no-op executables named names (uvx and ffmpeg
// when empty) at the front of PATH for the rest of the test.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(t testing.TB, cfg *config.Config) {
		t.Helper()
		if len(names) == 0 {
			names = []string{"uvx", "ffmpeg"}
		}
		binDir := filepath.Join(BaseDir(cfg), "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			t.Fatalf("mkdir bin dir: %v", err)
		}
		for _, name := range names {
			if err := os.WriteFile(filepath.Join(binDir, name), []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
				t.Fatalf("write stub %s: %v", name, err)
			}
		}
		t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
}
