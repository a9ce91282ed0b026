// Package main hosts the scribe CLI entrypoint and command graph.
//
// The Cobra command tree loads configuration once, then hands each
// subcommand a ready config: `run` drives the stage pipeline for one
// recording, `status` and `runs` read the run registry and checkpoint
// directories, `check` reports preflight results, and `config` scaffolds or
// prints the configuration file.
//
// Keep this package lean. New behaviour belongs in the internal packages and
// is surfaced here through a command or flag.
package main
