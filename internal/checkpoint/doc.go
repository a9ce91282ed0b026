// Package checkpoint persists per-stage results of a pipeline run so an
// interrupted run can resume.
//
// Each run owns a directory under <state_dir>/runs/<run-id>/ holding
// checkpoints/ (one JSON envelope per completed stage, written atomically) and
// artifacts/ (chunk audio and other files a payload references). Envelopes
// chain to their predecessor by digest, so a checkpoint left over from an
// earlier attempt is rejected once an upstream stage has re-run.
//
// Load distinguishes an absent checkpoint (services.ErrNotFound) from a
// damaged one (*CorruptionError). Damaged files are quarantined with a
// .corrupt suffix rather than deleted.
package checkpoint
