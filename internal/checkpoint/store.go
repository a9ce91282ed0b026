package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"scribe/internal/fileutil"
	"scribe/internal/services"
	"scribe/internal/textutil"
)

const (
	checkpointsDirName = "checkpoints"
	artifactsDirName   = "artifacts"
	lockFileName       = "run.lock"
	// CorruptSuffix is appended to quarantined checkpoint files.
	CorruptSuffix = ".corrupt"
)

// ErrLocked reports that another process holds the run lock.
var ErrLocked = errors.New("run is locked by another process")

// Store manages checkpoints for a single run.
type Store struct {
	runID   string
	dir     string
	removed []string
	now     func() time.Time
}

// Open prepares the run directory under root and removes temp files left by
// interrupted writes.
func Open(root, runID string) (*Store, error) {
	id, err := textutil.SanitizeRunID(runID)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "checkpoint", "open", "invalid run id", err)
	}
	if strings.TrimSpace(root) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "checkpoint", "open", "state directory not set", nil)
	}
	s := &Store{runID: id, dir: filepath.Join(root, "runs", id), now: time.Now}
	for _, dir := range []string{s.CheckpointDir(), s.ArtifactDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create run directory: %w", err)
		}
	}
	removed, err := fileutil.RemoveStaleTemps(s.CheckpointDir())
	if err != nil {
		return nil, fmt.Errorf("remove stale temp files: %w", err)
	}
	s.removed = removed
	return s, nil
}

// OpenExisting returns a store for a run directory that already exists,
// without creating directories or touching temp files. It is meant for
// readers such as status displays that may run beside a live run.
func OpenExisting(root, runID string) (*Store, error) {
	id, err := textutil.SanitizeRunID(runID)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "checkpoint", "open", "invalid run id", err)
	}
	s := &Store{runID: id, dir: filepath.Join(root, "runs", id), now: time.Now}
	info, err := os.Stat(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, services.Wrap(services.ErrNotFound, "checkpoint", "open", "no run directory for "+id, nil)
		}
		return nil, fmt.Errorf("stat run directory: %w", err)
	}
	if !info.IsDir() {
		return nil, services.Wrap(services.ErrValidation, "checkpoint", "open", s.dir+" is not a directory", nil)
	}
	return s, nil
}

// RunID returns the sanitised run identifier.
func (s *Store) RunID() string { return s.runID }

// Dir returns the run directory.
func (s *Store) Dir() string { return s.dir }

// CheckpointDir returns the directory holding envelopes.
func (s *Store) CheckpointDir() string { return filepath.Join(s.dir, checkpointsDirName) }

// ArtifactDir returns the directory stages write large outputs into.
func (s *Store) ArtifactDir() string { return filepath.Join(s.dir, artifactsDirName) }

// RemovedTemps lists temp files cleaned up when the store was opened.
func (s *Store) RemovedTemps() []string { return s.removed }

// Path returns the envelope location for a stage.
func (s *Store) Path(seq int, stage string) string {
	return filepath.Join(s.CheckpointDir(), fmt.Sprintf("%02d-%s.json", seq, stage))
}

// Write persists payload as the checkpoint for stage and returns the digest
// of the written envelope.
func (s *Store) Write(seq int, stage string, version int, parent string, payload any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", services.Wrap(services.ErrCheckpoint, stage, "encode payload", "payload is not serialisable", err)
	}
	env := Envelope{
		RunID:         s.runID,
		StageName:     stage,
		SchemaVersion: version,
		Sequence:      seq,
		Parent:        parent,
		Payload:       raw,
		WrittenAt:     s.now().UTC(),
	}
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return "", services.Wrap(services.ErrCheckpoint, stage, "encode envelope", "envelope is not serialisable", err)
	}
	if err := fileutil.WriteFileAtomic(s.Path(seq, stage), data, 0o644); err != nil {
		return "", services.Wrap(services.ErrCheckpoint, stage, "write", "could not persist checkpoint", err)
	}
	return Digest(data), nil
}

// Expect describes what a caller will accept from a stored checkpoint.
type Expect struct {
	SchemaVersion int
	Parent        string
	Decode        func(json.RawMessage) (any, error)
}

// Loaded is an accepted checkpoint.
type Loaded struct {
	Envelope Envelope
	Digest   string
	Value    any
}

// Load reads and validates the checkpoint for stage. An absent file yields an
// error matching services.ErrNotFound; anything else that prevents trusting
// the file yields *CorruptionError.
func (s *Store) Load(seq int, stage string, expect Expect) (Loaded, error) {
	path := s.Path(seq, stage)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Loaded{}, services.Wrap(services.ErrNotFound, stage, "load checkpoint", "no checkpoint recorded", nil)
		}
		return Loaded{}, s.corrupt(stage, path, "unreadable", err)
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Loaded{}, s.corrupt(stage, path, "malformed envelope", err)
	}
	switch {
	case env.RunID != s.runID:
		return Loaded{}, s.corrupt(stage, path, fmt.Sprintf("run id %q does not match", env.RunID), nil)
	case env.StageName != stage:
		return Loaded{}, s.corrupt(stage, path, fmt.Sprintf("stage name %q does not match", env.StageName), nil)
	case env.Sequence != seq:
		return Loaded{}, s.corrupt(stage, path, fmt.Sprintf("sequence %d does not match %d", env.Sequence, seq), nil)
	case env.SchemaVersion != expect.SchemaVersion:
		return Loaded{}, s.corrupt(stage, path,
			fmt.Sprintf("schema version %d, want %d", env.SchemaVersion, expect.SchemaVersion), nil)
	case env.Parent != expect.Parent:
		return Loaded{}, s.corrupt(stage, path, "written after a different upstream result", nil)
	case len(env.Payload) == 0 || string(env.Payload) == "null":
		return Loaded{}, s.corrupt(stage, path, "empty payload", nil)
	}

	var value any = env.Payload
	if expect.Decode != nil {
		value, err = expect.Decode(env.Payload)
		if err != nil {
			return Loaded{}, s.corrupt(stage, path, "payload does not decode", err)
		}
	}
	if lister, ok := value.(ArtifactLister); ok {
		for _, artifact := range lister.ArtifactPaths() {
			if !filepath.IsAbs(artifact) {
				artifact = filepath.Join(s.dir, artifact)
			}
			if err := fileutil.NonEmptyFile(artifact); err != nil {
				return Loaded{}, s.corrupt(stage, path, "referenced artifact missing", err)
			}
		}
	}
	return Loaded{Envelope: env, Digest: Digest(data), Value: value}, nil
}

func (s *Store) corrupt(stage, path, reason string, err error) error {
	return &CorruptionError{Stage: stage, Path: path, Reason: reason, Err: err}
}

// Quarantine renames a stage's checkpoint aside so it is never loaded again
// and returns the new path.
func (s *Store) Quarantine(seq int, stage string) (string, error) {
	path := s.Path(seq, stage)
	target := path + "." + strconv.FormatInt(s.now().UnixNano(), 10) + CorruptSuffix
	if err := os.Rename(path, target); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("quarantine checkpoint: %w", err)
	}
	return target, fileutil.SyncDir(s.CheckpointDir())
}

// Entry summarises one checkpoint file for status displays.
type Entry struct {
	Sequence      int
	Stage         string
	SchemaVersion int
	WrittenAt     time.Time
	Size          int64
	Path          string
	Err           error
}

// List returns every checkpoint envelope in sequence order. Files that fail
// to parse are included with Err set.
func (s *Store) List() ([]Entry, error) {
	entries, err := os.ReadDir(s.CheckpointDir())
	if err != nil {
		return nil, fmt.Errorf("read checkpoints: %w", err)
	}
	var out []Entry
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != ".json" {
			continue
		}
		path := filepath.Join(s.CheckpointDir(), name)
		item := Entry{Path: path}
		if info, err := entry.Info(); err == nil {
			item.Size = info.Size()
		}
		data, err := os.ReadFile(path)
		if err == nil {
			var env Envelope
			if err = json.Unmarshal(data, &env); err == nil {
				item.Sequence = env.Sequence
				item.Stage = env.StageName
				item.SchemaVersion = env.SchemaVersion
				item.WrittenAt = env.WrittenAt
			}
		}
		if err != nil {
			item.Err = err
			item.Stage = strings.TrimSuffix(name, ".json")
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Latest returns the highest-sequence readable checkpoint. The boolean is
// false when none exist.
func (s *Store) Latest() (Entry, bool, error) {
	entries, err := s.List()
	if err != nil {
		return Entry{}, false, err
	}
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Err == nil {
			return entries[i], true, nil
		}
	}
	return Entry{}, false, nil
}

// Lock is a held run lock.
type Lock struct {
	fl *flock.Flock
}

// Lock acquires the per-run file lock without blocking.
func (s *Store) Lock() (*Lock, error) {
	fl := flock.New(filepath.Join(s.dir, lockFileName))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return nil, services.Wrap(services.ErrValidation, "checkpoint", "lock",
			fmt.Sprintf("run %s is already being processed", s.runID), ErrLocked)
	}
	return &Lock{fl: fl}, nil
}

// Unlock releases the run lock.
func (l *Lock) Unlock() error {
	if l == nil || l.fl == nil {
		return nil
	}
	return l.fl.Unlock()
}

// Held reports whether a live process holds the lock of runID under root.
// A missing run directory is not held.
func Held(root, runID string) bool {
	store, err := OpenExisting(root, runID)
	if err != nil {
		return false
	}
	lock, err := store.Lock()
	if err != nil {
		return errors.Is(err, ErrLocked)
	}
	_ = lock.Unlock()
	return false
}
