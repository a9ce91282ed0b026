// Package logging builds the slog loggers used across scribe.
//
// Console output is a compact header line per record (time, level,
// component, run/stage/chunk subject, message) with fields on an indented
// line; JSON output is one object per line. When a log directory is
// configured every record is also written as JSON to a lumberjack-rotated
// file. WithContext tags records with the identifiers carried by a context,
// and WarnWithContext fills in event_type, error_hint, and impact so
// warnings say what to do next.
package logging
