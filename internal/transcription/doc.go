// Package transcription is the boundary between the pipeline and the
// speech-to-text engine.
//
// A Transcriber turns one audio.Chunk into a transcript.ChunkTranscript with
// chunk-local timestamps. WithTimeout bounds each call, and Batch fans calls
// out over a bounded worker pool while keeping results in chunk order. Two
// engines are provided: the WhisperX command-line tool (run through uvx) and
// any OpenAI-compatible /audio/transcriptions endpoint.
package transcription
