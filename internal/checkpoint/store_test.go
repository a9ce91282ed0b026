package checkpoint

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"scribe/internal/services"
)

type chunkPayload struct {
	Paths []string `json:"paths"`
}

func (p chunkPayload) ArtifactPaths() []string { return p.Paths }

func decodeChunks(raw json.RawMessage) (any, error) {
	var p chunkPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return p, nil
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir(), "lecture-01")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return store
}

func TestWriteLoadRoundTrip(t *testing.T) {
	store := openTestStore(t)
	artifact := filepath.Join(store.ArtifactDir(), "chunk_0000.wav")
	if err := os.WriteFile(artifact, []byte("RIFF"), 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	digest, err := store.Write(2, "chunking", 1, "parent-digest", chunkPayload{Paths: []string{artifact}})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !strings.HasSuffix(store.Path(2, "chunking"), filepath.Join("checkpoints", "02-chunking.json")) {
		t.Fatalf("unexpected checkpoint path %s", store.Path(2, "chunking"))
	}

	loaded, err := store.Load(2, "chunking", Expect{SchemaVersion: 1, Parent: "parent-digest", Decode: decodeChunks})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Digest != digest {
		t.Fatalf("digest mismatch: %s vs %s", loaded.Digest, digest)
	}
	payload, ok := loaded.Value.(chunkPayload)
	if !ok || len(payload.Paths) != 1 {
		t.Fatalf("unexpected payload %#v", loaded.Value)
	}
	if loaded.Envelope.RunID != "lecture-01" || loaded.Envelope.Sequence != 2 {
		t.Fatalf("unexpected envelope %+v", loaded.Envelope)
	}
}

func TestLoadAbsentIsNotFound(t *testing.T) {
	store := openTestStore(t)
	_, err := store.Load(1, "inspect", Expect{SchemaVersion: 1})
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	var corrupt *CorruptionError
	if errors.As(err, &corrupt) {
		t.Fatal("absent checkpoint must not be reported as corruption")
	}
}

func TestLoadRejectsUntrustworthyCheckpoints(t *testing.T) {
	tests := []struct {
		name   string
		prep   func(t *testing.T, s *Store)
		expect Expect
		reason string
	}{
		{
			name: "garbage",
			prep: func(t *testing.T, s *Store) {
				if err := os.WriteFile(s.Path(1, "inspect"), []byte("{not json"), 0o644); err != nil {
					t.Fatal(err)
				}
			},
			expect: Expect{SchemaVersion: 1},
			reason: "malformed envelope",
		},
		{
			name: "schema version",
			prep: func(t *testing.T, s *Store) {
				if _, err := s.Write(1, "inspect", 1, "", map[string]int{"a": 1}); err != nil {
					t.Fatal(err)
				}
			},
			expect: Expect{SchemaVersion: 2},
			reason: "schema version",
		},
		{
			name: "stale parent",
			prep: func(t *testing.T, s *Store) {
				if _, err := s.Write(1, "inspect", 1, "old", map[string]int{"a": 1}); err != nil {
					t.Fatal(err)
				}
			},
			expect: Expect{SchemaVersion: 1, Parent: "new"},
			reason: "different upstream",
		},
		{
			name: "missing artifact",
			prep: func(t *testing.T, s *Store) {
				payload := chunkPayload{Paths: []string{filepath.Join(s.ArtifactDir(), "gone.wav")}}
				if _, err := s.Write(1, "inspect", 1, "", payload); err != nil {
					t.Fatal(err)
				}
			},
			expect: Expect{SchemaVersion: 1, Decode: decodeChunks},
			reason: "artifact missing",
		},
		{
			name: "undecodable payload",
			prep: func(t *testing.T, s *Store) {
				if _, err := s.Write(1, "inspect", 1, "", "text"); err != nil {
					t.Fatal(err)
				}
			},
			expect: Expect{SchemaVersion: 1, Decode: decodeChunks},
			reason: "does not decode",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := openTestStore(t)
			tt.prep(t, store)
			_, err := store.Load(1, "inspect", tt.expect)
			var corrupt *CorruptionError
			if !errors.As(err, &corrupt) {
				t.Fatalf("expected CorruptionError, got %v", err)
			}
			if !strings.Contains(corrupt.Reason, tt.reason) {
				t.Fatalf("unexpected reason %q", corrupt.Reason)
			}
			if !errors.Is(err, services.ErrCheckpoint) {
				t.Fatal("expected checkpoint classification")
			}
		})
	}
}

func TestQuarantineMovesFileAside(t *testing.T) {
	store := openTestStore(t)
	if _, err := store.Write(1, "inspect", 1, "", map[string]int{"a": 1}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	target, err := store.Quarantine(1, "inspect")
	if err != nil {
		t.Fatalf("Quarantine: %v", err)
	}
	if !strings.HasSuffix(target, CorruptSuffix) {
		t.Fatalf("unexpected quarantine path %s", target)
	}
	if _, err := store.Load(1, "inspect", Expect{SchemaVersion: 1}); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected checkpoint to be gone, got %v", err)
	}
	entries, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("quarantined file should not be listed: %+v", entries)
	}
}

func TestOpenRemovesInterruptedWrites(t *testing.T) {
	root := t.TempDir()
	store, err := Open(root, "run")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	tmp := filepath.Join(store.CheckpointDir(), ".02-chunking.json.123.tmp")
	if err := os.WriteFile(tmp, []byte("{"), 0o644); err != nil {
		t.Fatalf("write temp: %v", err)
	}

	reopened, err := Open(root, "run")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if len(reopened.RemovedTemps()) != 1 {
		t.Fatalf("expected one stale temp removed, got %v", reopened.RemovedTemps())
	}
	if _, err := reopened.Load(2, "chunking", Expect{SchemaVersion: 1}); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("interrupted write must read as not completed, got %v", err)
	}
}

func TestListAndLatest(t *testing.T) {
	store := openTestStore(t)
	for i, stage := range []string{"inspect", "chunking", "transcription"} {
		if _, err := store.Write(i+1, stage, 1, "", map[string]int{"i": i}); err != nil {
			t.Fatalf("Write %s: %v", stage, err)
		}
	}
	if err := os.WriteFile(store.Path(4, "merging"), []byte("garbage"), 0o644); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	entries, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 4 || entries[3].Err == nil {
		t.Fatalf("unexpected entries %+v", entries)
	}
	latest, ok, err := store.Latest()
	if err != nil || !ok {
		t.Fatalf("Latest: ok=%v err=%v", ok, err)
	}
	if latest.Stage != "transcription" || latest.Sequence != 3 {
		t.Fatalf("unexpected latest %+v", latest)
	}
}

func TestLockIsExclusive(t *testing.T) {
	root := t.TempDir()
	first, err := Open(root, "run")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	lock, err := first.Lock()
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer lock.Unlock()

	second, err := Open(root, "run")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := second.Lock(); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
}

func TestOpenRejectsUnsafeRunID(t *testing.T) {
	if _, err := Open(t.TempDir(), "../escape"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestOpenExistingLeavesTempsAlone(t *testing.T) {
	root := t.TempDir()
	if _, err := OpenExisting(root, "lecture-01"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("OpenExisting on missing run = %v, want ErrNotFound", err)
	}

	store, err := Open(root, "lecture-01")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	temp := filepath.Join(store.CheckpointDir(), ".01-inspect.json.tmp")
	if err := os.WriteFile(temp, []byte("{"), 0o644); err != nil {
		t.Fatalf("write temp: %v", err)
	}

	reader, err := OpenExisting(root, "lecture-01")
	if err != nil {
		t.Fatalf("OpenExisting: %v", err)
	}
	if reader.Dir() != store.Dir() {
		t.Fatalf("dir = %q, want %q", reader.Dir(), store.Dir())
	}
	if _, err := os.Stat(temp); err != nil {
		t.Fatalf("temp file removed by reader: %v", err)
	}
}

func TestHeldReflectsRunLock(t *testing.T) {
	root := t.TempDir()
	if Held(root, "absent") {
		t.Fatal("absent run reported as held")
	}
	store, err := Open(root, "lecture-01")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	lock, err := store.Lock()
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if !Held(root, "lecture-01") {
		t.Fatal("locked run not reported as held")
	}
	if err := lock.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if Held(root, "lecture-01") {
		t.Fatal("released run still reported as held")
	}
}
