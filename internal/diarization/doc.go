// Package diarization attributes merged transcript segments to speakers.
//
// The engine itself is external: Script runs a configured command that
// prints speaker turns as JSON, and Assign maps those turns onto segments by
// maximum time overlap. Degrade produces the placeholder used when the
// engine is unavailable, with every speaker set to transcript.UnknownSpeaker.
package diarization
