package testsupport

import (
	"testing"

	"scribe/internal/checkpoint"
	"scribe/internal/config"
)

// MustOpenCheckpoints opens the checkpoint store for runID under the
// config's state directory.
func MustOpenCheckpoints(t testing.TB, cfg *config.Config, runID string) *checkpoint.Store {
	t.Helper()

	store, err := checkpoint.Open(cfg.Paths.StateDir, runID)
	if err != nil {
		t.Fatalf("checkpoint.Open: %v", err)
	}
	return store
}
