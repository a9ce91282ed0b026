// Package runs keeps a SQLite registry of pipeline runs.
//
// The registry archives every run's state transitions so `scribe runs` and
// `scribe status` can show history after the process exits. It is fed by an
// Observer attached to the pipeline executor. A run still marked RUNNING
// whose checkpoint lock is free belonged to a process that died;
// MarkInterrupted flags such runs INTERRUPTED so they can be resumed.
//
// The schema is versioned. Opening a database written with a different
// schema version fails with ErrSchemaMismatch rather than guessing.
package runs
