package checkpoint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"scribe/internal/services"
)

// Envelope wraps one stage payload on disk.
type Envelope struct {
	RunID         string          `json:"run_id"`
	StageName     string          `json:"stage"`
	SchemaVersion int             `json:"schema_version"`
	Sequence      int             `json:"sequence"`
	Parent        string          `json:"parent,omitempty"`
	Payload       json.RawMessage `json:"payload"`
	WrittenAt     time.Time       `json:"written_at"`
}

// ArtifactLister is implemented by payloads that reference files which must
// still exist for the checkpoint to be trusted.
type ArtifactLister interface {
	ArtifactPaths() []string
}

// CorruptionError reports a checkpoint that exists but cannot be trusted.
type CorruptionError struct {
	Stage  string
	Path   string
	Reason string
	Err    error
}

func (e *CorruptionError) Error() string {
	msg := fmt.Sprintf("checkpoint for stage %s is unusable (%s)", e.Stage, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the checkpoint marker and the underlying cause.
func (e *CorruptionError) Unwrap() []error {
	if e.Err == nil {
		return []error{services.ErrCheckpoint}
	}
	return []error{services.ErrCheckpoint, e.Err}
}

// Digest returns the hex sha256 of an encoded envelope.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
