// Package pipeline runs an ordered list of stages with checkpointing,
// resumption, and per-stage failure isolation.
//
// Stages implement Handler. The Executor runs them strictly in sequence,
// writes each result through checkpoint.Store, and on resume skips every
// stage whose checkpoint is still trustworthy. Failure handling follows the
// stage Policy: a critical failure aborts the run with a *StageError, an
// optional one substitutes the stage's degraded output and carries on.
//
// Cancellation is observed only between stages; a running stage is allowed
// to finish so its checkpoint is never half written.
//
// Presentation layers consume Event values through Options.Progress, and
// bookkeeping (run registry, metrics) attaches through Observer.
package pipeline
