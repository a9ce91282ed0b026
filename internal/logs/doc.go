// Package logs reads the rotating scribe log for `scribe logs`.
//
// Tail returns the last lines of the file, optionally narrowed to lines that
// mention a run id, and Follow polls for appended lines until its context
// ends. Memory stays bounded by the requested line count.
package logs
