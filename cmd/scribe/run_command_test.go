package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"scribe/internal/config"
	"scribe/internal/pipeline"
	"scribe/internal/services"
)

func TestRunProducesTranscript(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"run", "--run-id", "lecture", "--skip-checks", "--no-progress", env.source}, env.configPath)
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	requireContains(t, out, "Run lecture: SUCCEEDED")
	requireContains(t, out, "Skipped stages:")
	requireContains(t, out, "diarization")
	requireContains(t, out, "Transcript written to")

	if got := env.api.calls.Load(); got < 2 {
		t.Fatalf("transcription calls = %d, want one per chunk", got)
	}
	text, err := os.ReadFile(filepath.Join(env.cfg.Paths.OutputDir, "lecture", "transcript.txt"))
	if err != nil {
		t.Fatalf("read transcript: %v", err)
	}
	for _, word := range []string{"alpha0", "alpha1"} {
		requireContains(t, string(text), word)
	}

	out, _, err = runCLI(t, []string{"status", "lecture"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "State: SUCCEEDED")
	requireContains(t, out, "Checkpoints:")
	requireContains(t, out, "merging")

	out, _, err = runCLI(t, []string{"runs"}, env.configPath)
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	requireContains(t, out, "lecture")
	requireContains(t, out, "Total: 1 (succeeded 1)")
}

func TestRunResumesAfterTranscriptionFailure(t *testing.T) {
	env := setupCLITestEnv(t)
	env.api.failWith(http.StatusBadRequest)

	out, _, err := runCLI(t, []string{"run", "--run-id", "lecture", "--skip-checks", "--no-progress", env.source}, env.configPath)
	var stageErr *pipeline.StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != config.StageTranscription {
		t.Fatalf("expected transcription stage error, got %v", err)
	}
	if code := exitCode(err); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	requireContains(t, out, "Run lecture: ABORTED")

	out, _, err = runCLI(t, []string{"status", "lecture"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "State: ABORTED")
	requireContains(t, out, "Resume with: scribe run --resume --run-id lecture")

	env.api.failWith(0)
	out, _, err = runCLI(t, []string{"run", "--resume", "--run-id", "lecture", "--skip-checks", "--json", env.source}, env.configPath)
	if err != nil {
		t.Fatalf("resume: %v\n%s", err, out)
	}
	var view runView
	if err := json.Unmarshal([]byte(out), &view); err != nil {
		t.Fatalf("decode run json: %v\n%s", err, out)
	}
	if view.State != string(pipeline.StateSucceeded) || !view.Resume {
		t.Fatalf("unexpected run view %+v", view)
	}
	resumed := map[string]bool{}
	for _, s := range view.Stages {
		resumed[s.Name] = s.Resumed
	}
	if !resumed[config.StageInspect] || !resumed[config.StageChunking] {
		t.Fatalf("inspect and chunking should resume from checkpoints: %+v", view.Stages)
	}
	if resumed[config.StageTranscription] {
		t.Fatalf("failed transcription must run again: %+v", view.Stages)
	}
	if len(view.Files) == 0 {
		t.Fatalf("expected exported files in %+v", view)
	}

	out, _, err = runCLI(t, []string{"runs", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("runs --json: %v", err)
	}
	var listed []runListView
	if err := json.Unmarshal([]byte(out), &listed); err != nil {
		t.Fatalf("decode runs json: %v", err)
	}
	if len(listed) != 1 || listed[0].Attempts != 2 || listed[0].State != "SUCCEEDED" {
		t.Fatalf("unexpected run list %+v", listed)
	}
}

func TestRunValidatesRunID(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"run", "--resume", "--skip-checks", env.source}, env.configPath)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("--resume without --run-id: got %v", err)
	}
	_, _, err = runCLI(t, []string{"run", "--run-id", "../escape", "--skip-checks", env.source}, env.configPath)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("unsafe run id: got %v", err)
	}
	if code := exitCode(err); code != 2 {
		t.Fatalf("exit code = %d, want 2", code)
	}
}

func TestRunMissingSourceAbortsAtInspect(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"run", "--run-id", "ghost", "--skip-checks", "--no-progress", filepath.Join(t.TempDir(), "missing.wav")}, env.configPath)
	var stageErr *pipeline.StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != config.StageInspect {
		t.Fatalf("expected inspect stage error, got %v", err)
	}
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound cause, got %v", err)
	}
	if env.api.calls.Load() != 0 {
		t.Fatal("transcription must not be called")
	}
}

func TestRunsRemovePurgesCheckpoints(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := runCLI(t, []string{"run", "--run-id", "lecture", "--skip-checks", "--no-progress", env.source}, env.configPath); err != nil {
		t.Fatalf("run: %v", err)
	}
	out, _, err := runCLI(t, []string{"runs", "remove", "--purge", "lecture"}, env.configPath)
	if err != nil {
		t.Fatalf("runs remove: %v", err)
	}
	requireContains(t, out, "Removed run lecture and its checkpoints")
	if _, err := os.Stat(filepath.Join(env.cfg.Paths.StateDir, "runs", "lecture")); !os.IsNotExist(err) {
		t.Fatalf("run directory still present: %v", err)
	}

	_, _, err = runCLI(t, []string{"status", "lecture"}, env.configPath)
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("status after purge: got %v", err)
	}
}
