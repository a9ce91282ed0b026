package runs

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"scribe/internal/pipeline"
)

func openTestRegistry(t *testing.T, path string) *Registry {
	t.Helper()
	reg, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = reg.Close() })
	return reg
}

func sampleRun(state pipeline.State) pipeline.Run {
	start := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	return pipeline.Run{
		RunID: "lecture-7",
		State: state,
		Stages: []pipeline.StageState{
			{Name: "chunking", Policy: pipeline.PolicyCritical, Status: pipeline.StatusComplete, StartedAt: start, FinishedAt: start.Add(1500 * time.Millisecond)},
			{Name: "diarization", Policy: pipeline.PolicyOptional, Status: pipeline.StatusSkipped, Degraded: true, Reason: "script missing"},
		},
	}
}

func TestObserverRecordsLifecycle(t *testing.T) {
	reg := openTestRegistry(t, filepath.Join(t.TempDir(), "runs.db"))
	obs := NewObserver(reg, "/audio/lecture.wav", nil)

	run := sampleRun(pipeline.StateRunning)
	obs.RunStarted(run)
	obs.StageChanged(run, run.Stages[0])
	obs.StageChanged(run, run.Stages[1])
	run.State = pipeline.StateSucceeded
	obs.RunFinished(run)

	rec, err := reg.Get(context.Background(), "lecture-7")
	if err != nil || rec == nil {
		t.Fatalf("Get: %v %v", rec, err)
	}
	if rec.State != StateSucceeded || rec.SourcePath != "/audio/lecture.wav" || rec.FinishedAt == nil {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.CurrentStage != "diarization" || len(rec.Stages) != 2 || !rec.Stages[1].Degraded {
		t.Fatalf("unexpected stage snapshot %+v", rec.Stages)
	}
	if rec.Stages[0].DurationMs != 1500 {
		t.Fatalf("duration = %d", rec.Stages[0].DurationMs)
	}

	events, err := reg.Events(context.Background(), "lecture-7")
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(events) != 2 || events[1].Reason != "script missing" || events[0].Duration != 1500*time.Millisecond {
		t.Fatalf("unexpected events %+v", events)
	}
}

func TestStartAgainCountsAttempts(t *testing.T) {
	reg := openTestRegistry(t, filepath.Join(t.TempDir(), "runs.db"))
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := reg.Start(ctx, "r1", "a.wav", i > 0, nil); err != nil {
			t.Fatalf("Start: %v", err)
		}
		if err := reg.Finish(ctx, "r1", StateAborted, "transcription failed", nil); err != nil {
			t.Fatalf("Finish: %v", err)
		}
	}
	rec, _ := reg.Get(ctx, "r1")
	if rec.Attempts != 2 || !rec.Resumed || !rec.Resumable() {
		t.Fatalf("unexpected record %+v", rec)
	}
}

func TestMarkInterruptedSkipsActiveRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	reg := openTestRegistry(t, path)
	ctx := context.Background()
	for _, id := range []string{"crashed", "live"} {
		if err := reg.Start(ctx, id, id+".wav", false, nil); err != nil {
			t.Fatalf("Start %s: %v", id, err)
		}
	}

	n, err := reg.MarkInterrupted(ctx, func(runID string) bool { return runID == "live" })
	if err != nil {
		t.Fatalf("MarkInterrupted: %v", err)
	}
	if n != 1 {
		t.Fatalf("changed = %d, want 1", n)
	}

	crashed, err := reg.Get(ctx, "crashed")
	if err != nil || crashed == nil {
		t.Fatalf("Get crashed: %v %v", crashed, err)
	}
	if crashed.State != StateInterrupted || crashed.ErrorMessage == "" || !crashed.Resumable() {
		t.Fatalf("unexpected crashed record %+v", crashed)
	}
	live, err := reg.Get(ctx, "live")
	if err != nil || live == nil {
		t.Fatalf("Get live: %v %v", live, err)
	}
	if live.State != StateRunning {
		t.Fatalf("live run state = %s, want RUNNING", live.State)
	}
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	reg, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = reg.Close()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	if _, err := db.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	_ = db.Close()

	if _, err := Open(path); !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestListStatsAndRemove(t *testing.T) {
	reg := openTestRegistry(t, filepath.Join(t.TempDir(), "runs.db"))
	ctx := context.Background()
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	reg.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	for _, id := range []string{"first", "second", "third"} {
		if err := reg.Start(ctx, id, "", false, nil); err != nil {
			t.Fatalf("Start %s: %v", id, err)
		}
	}
	if err := reg.Finish(ctx, "first", StateSucceeded, "", nil); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	list, err := reg.List(ctx, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].RunID != "first" || list[1].RunID != "third" {
		t.Fatalf("unexpected order %+v", list)
	}
	stats, err := reg.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats[StateRunning] != 2 || stats[StateSucceeded] != 1 {
		t.Fatalf("unexpected stats %v", stats)
	}
	removed, err := reg.Remove(ctx, "second")
	if err != nil || !removed {
		t.Fatalf("Remove: %v %v", removed, err)
	}
	if rec, _ := reg.Get(ctx, "second"); rec != nil {
		t.Fatal("run still present after Remove")
	}
	if err := reg.Finish(ctx, "missing", StateAborted, "", nil); err == nil {
		t.Fatal("expected error finishing an unknown run")
	}
}
