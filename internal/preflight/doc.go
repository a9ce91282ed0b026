// Package preflight provides readiness checks for the external programs,
// services, and filesystem paths that scribe depends on.
//
// These checks run in two contexts:
//   - "scribe run" calls RunAll before opening the run and refuses to start
//     when a check backing a critical stage fails.
//   - "scribe check" prints every result in a table.
//
// Checks for stages disabled in configuration are skipped. A failing check for
// an optional stage is reported but does not block a run.
package preflight
