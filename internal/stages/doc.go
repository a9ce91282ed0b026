// Package stages provides the concrete transcription pipeline: inspect,
// chunking, transcription, merging, diarization, classification, and export.
//
// Each stage is a pipeline.Handler whose output is a versioned payload type
// declared in payloads.go. Payloads are what the checkpoint store persists, so
// every field must survive a JSON round trip and any change to a payload's
// shape must bump that stage's schema version. Build assembles the stages
// from a configuration snapshot and a Deps value holding the external
// adapters (normaliser, transcriber, diarizer, classifier), which tests
// replace with fakes.
package stages
